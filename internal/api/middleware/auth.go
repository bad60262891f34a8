package middleware

import (
	"context"
	"net/http"
	"strings"

	apiContext "quotr/internal/api/context"
	"quotr/internal/engine/access"
	"quotr/internal/pkg/errors"
	"quotr/internal/platform/auth"
)

// CallerResolver turns an authenticated user id into a Caller with the
// user's current role and organisation.
type CallerResolver interface {
	ResolveCaller(ctx context.Context, userID string) (access.Caller, error)
}

type AuthMiddleware struct {
	sessions *auth.SessionManager
	resolver CallerResolver
}

func NewAuthMiddleware(sessions *auth.SessionManager, resolver CallerResolver) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions, resolver: resolver}
}

// Handle puts the Caller of the request into the context. Requests without
// an Authorization header proceed as anonymous; a header that does not carry
// a valid access token is rejected.
func (m *AuthMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			ctx := context.WithValue(r.Context(), apiContext.Caller, access.Anonymous())
			next(w, r.WithContext(ctx))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid authorization header format", nil)
			return
		}

		claims, err := m.sessions.Authenticate(parts[1])
		if err != nil {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid or expired token", nil)
			return
		}

		caller, err := m.resolver.ResolveCaller(r.Context(), claims.UserID)
		if err != nil {
			errors.Write(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Caller, caller)
		next(w, r.WithContext(ctx))
	}
}

// CallerFrom returns the Caller stored by AuthMiddleware, or an anonymous
// one.
func CallerFrom(ctx context.Context) access.Caller {
	if caller, ok := ctx.Value(apiContext.Caller).(access.Caller); ok {
		return caller
	}
	return access.Anonymous()
}
