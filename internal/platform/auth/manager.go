package auth

import (
	"context"
	"fmt"

	"quotr/internal/pkg/errors"
	"quotr/internal/platform/models"
)

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// SessionManager issues, rotates and revokes token pairs.
type SessionManager struct {
	tokens *TokenService
	store  SessionStore
}

func NewSessionManager(tokens *TokenService, store SessionStore) *SessionManager {
	return &SessionManager{tokens: tokens, store: store}
}

func (m *SessionManager) Issue(ctx context.Context, user *models.User) (*TokenPair, error) {
	access, err := m.tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, tokenID, err := m.tokens.GenerateRefreshToken(user)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	if err := m.store.Save(ctx, user.ID, tokenID, m.tokens.RefreshTTL()); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(m.tokens.config.AccessTokenTTL.Seconds()),
	}, nil
}

// Authenticate validates an access token.
func (m *SessionManager) Authenticate(tokenString string) (*Claims, error) {
	return m.tokens.ValidateToken(tokenString, TokenTypeAccess)
}

// Refresh exchanges a live refresh token for a new pair. The presented
// token is revoked, so each refresh token works once.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string, load func(ctx context.Context, userID string) (*models.User, error)) (*TokenPair, error) {
	claims, err := m.validateRefresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := load(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	if err := m.store.Revoke(ctx, claims.UserID, claims.ID); err != nil {
		return nil, fmt.Errorf("revoke session: %w", err)
	}
	return m.Issue(ctx, user)
}

// Logout revokes the session behind a refresh token. Unknown or expired
// tokens are not an error.
func (m *SessionManager) Logout(ctx context.Context, refreshToken string) error {
	claims, err := m.tokens.ValidateToken(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil
	}
	return m.store.Revoke(ctx, claims.UserID, claims.ID)
}

// RevokeUser ends every session of a user.
func (m *SessionManager) RevokeUser(ctx context.Context, userID string) error {
	return m.store.RevokeAll(ctx, userID)
}

func (m *SessionManager) validateRefresh(ctx context.Context, refreshToken string) (*Claims, error) {
	claims, err := m.tokens.ValidateToken(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	active, err := m.store.Active(ctx, claims.UserID, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if !active {
		return nil, errors.Wrap(errors.ErrUnauthenticated, "session revoked")
	}
	return claims, nil
}
