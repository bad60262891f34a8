package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quotr/internal/pkg/errors"
	"quotr/internal/platform/config"
	"quotr/internal/platform/models"
)

var testUser = &models.User{
	ID:             "u1",
	Username:       "alice",
	Role:           models.RoleOrganisationManager,
	OrganisationID: "org",
}

func newTokenService() *TokenService {
	return NewTokenService(config.JWTConfig{
		Secret:          "test-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	})
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))
}

func TestTokenRoundTrip(t *testing.T) {
	svc := newTokenService()

	access, err := svc.GenerateAccessToken(testUser)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(access, TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleOrganisationManager, claims.Role)
	assert.Equal(t, "org", claims.OrganisationID)

	_, err = svc.ValidateToken(access, TokenTypeRefresh)
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)

	other := NewTokenService(config.JWTConfig{Secret: "other"})
	_, err = other.ValidateToken(access, TokenTypeAccess)
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)

	_, err = svc.ValidateToken("garbage", TokenTypeAccess)
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)
}

func TestExpiredToken(t *testing.T) {
	svc := newTokenService()
	svc.config.AccessTokenTTL = -time.Minute

	access, err := svc.GenerateAccessToken(testUser)
	require.NoError(t, err)

	_, err = svc.ValidateToken(access, TokenTypeAccess)
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)
}

func loadTestUser(ctx context.Context, id string) (*models.User, error) {
	return testUser, nil
}

func testStores(t *testing.T) map[string]SessionStore {
	mr := miniredis.RunT(t)
	redisStore, err := NewRedisSessionStore(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { redisStore.Close() })

	return map[string]SessionStore{
		"redis":  redisStore,
		"memory": NewMemorySessionStore(100, time.Hour),
	}
}

func TestSessionManager(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := NewSessionManager(newTokenService(), store)

			pair, err := m.Issue(ctx, testUser)
			require.NoError(t, err)

			claims, err := m.Authenticate(pair.AccessToken)
			require.NoError(t, err)
			assert.Equal(t, "alice", claims.Username)

			rotated, err := m.Refresh(ctx, pair.RefreshToken, loadTestUser)
			require.NoError(t, err)
			assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

			// a refresh token works once
			_, err = m.Refresh(ctx, pair.RefreshToken, loadTestUser)
			assert.ErrorIs(t, err, errors.ErrUnauthenticated)

			require.NoError(t, m.Logout(ctx, rotated.RefreshToken))
			_, err = m.Refresh(ctx, rotated.RefreshToken, loadTestUser)
			assert.ErrorIs(t, err, errors.ErrUnauthenticated)
		})
	}
}

func TestRevokeUserEndsAllSessions(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := NewSessionManager(newTokenService(), store)

			first, err := m.Issue(ctx, testUser)
			require.NoError(t, err)
			second, err := m.Issue(ctx, testUser)
			require.NoError(t, err)

			require.NoError(t, m.RevokeUser(ctx, testUser.ID))

			_, err = m.Refresh(ctx, first.RefreshToken, loadTestUser)
			assert.ErrorIs(t, err, errors.ErrUnauthenticated)
			_, err = m.Refresh(ctx, second.RefreshToken, loadTestUser)
			assert.ErrorIs(t, err, errors.ErrUnauthenticated)
		})
	}
}

func TestRedisStoreUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisSessionStore(context.Background(), config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}
