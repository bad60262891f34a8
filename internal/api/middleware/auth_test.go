package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quotr/internal/engine/access"
	"quotr/internal/engine/directory"
	"quotr/internal/platform/auth"
	"quotr/internal/platform/config"
	"quotr/internal/platform/models"
	"quotr/internal/platform/repositories"
)

func TestAuthMiddleware(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := directory.NewService(
		repositories.NewOrganisationRepository(db),
		repositories.NewUserRepository(db),
		nil, nil, nil,
	)
	tokens := auth.NewTokenService(config.JWTConfig{Secret: "test-secret"})
	sessions := auth.NewSessionManager(tokens, auth.NewMemorySessionStore(16, time.Hour))
	mw := NewAuthMiddleware(sessions, dir)

	user := &models.User{ID: "usr_1", Username: "ada", Role: models.RoleObserver}
	token, err := tokens.GenerateAccessToken(user)
	require.NoError(t, err)

	userColumns := []string{"id", "username", "password_hash", "role", "organisation_id", "created_at", "name"}

	serve := func(header string) (*httptest.ResponseRecorder, access.Caller, bool) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}

		var caller access.Caller
		called := false
		rr := httptest.NewRecorder()
		mw.Handle(func(w http.ResponseWriter, r *http.Request) {
			called = true
			caller = CallerFrom(r.Context())
			w.WriteHeader(http.StatusOK)
		})(rr, req)
		return rr, caller, called
	}

	t.Run("anonymous", func(t *testing.T) {
		rr, caller, called := serve("")
		assert.True(t, called)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.False(t, caller.Authenticated())
	})

	t.Run("role is reloaded", func(t *testing.T) {
		rows := sqlmock.NewRows(userColumns).
			AddRow("usr_1", "ada", "hash", int(models.RoleOrganisationManager), "org_1", 1234567890, "acme")
		mock.ExpectQuery("SELECT (.+) FROM users u").
			WithArgs("usr_1").
			WillReturnRows(rows)

		rr, caller, called := serve("Bearer " + token)
		assert.True(t, called)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, models.RoleOrganisationManager, caller.Role)
		assert.Equal(t, "org_1", caller.OrganisationID)
	})

	t.Run("deleted user", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM users u").
			WithArgs("usr_1").
			WillReturnRows(sqlmock.NewRows(userColumns))

		rr, _, called := serve("Bearer " + token)
		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		rr, _, called := serve("Token abc")
		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		rr, _, called := serve("Bearer not-a-jwt")
		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
