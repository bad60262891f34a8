package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"quotr/internal/platform/config"
)

// SessionStore tracks live refresh tokens so they can be revoked before
// they expire.
type SessionStore interface {
	Save(ctx context.Context, userID, tokenID string, ttl time.Duration) error
	Active(ctx context.Context, userID, tokenID string) (bool, error)
	Revoke(ctx context.Context, userID, tokenID string) error
	RevokeAll(ctx context.Context, userID string) error
}

type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore connects to Redis and verifies connectivity.
func NewRedisSessionStore(ctx context.Context, cfg config.RedisConfig) (*RedisSessionStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Msg("redis session store connected")
	return &RedisSessionStore{client: rdb}, nil
}

func sessionKey(userID, tokenID string) string {
	return "session:" + userID + ":" + tokenID
}

func userSessionsKey(userID string) string {
	return "user_sessions:" + userID
}

func (s *RedisSessionStore) Save(ctx context.Context, userID, tokenID string, ttl time.Duration) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(userID, tokenID), 1, ttl)
		pipe.SAdd(ctx, userSessionsKey(userID), tokenID)
		pipe.Expire(ctx, userSessionsKey(userID), ttl)
		return nil
	})
	return err
}

func (s *RedisSessionStore) Active(ctx context.Context, userID, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, sessionKey(userID, tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisSessionStore) Revoke(ctx context.Context, userID, tokenID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(userID, tokenID))
		pipe.SRem(ctx, userSessionsKey(userID), tokenID)
		return nil
	})
	return err
}

func (s *RedisSessionStore) RevokeAll(ctx context.Context, userID string) error {
	ids, err := s.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(userID, id))
	}
	keys = append(keys, userSessionsKey(userID))

	return s.client.Del(ctx, keys...).Err()
}

// Ping reports whether Redis is reachable.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

// MemorySessionStore keeps sessions in process. Used when no Redis address
// is configured; sessions do not survive a restart.
type MemorySessionStore struct {
	sessions *lru.LRU[string, struct{}]
}

func NewMemorySessionStore(size int, ttl time.Duration) *MemorySessionStore {
	if size <= 0 {
		size = 10000
	}
	return &MemorySessionStore{sessions: lru.NewLRU[string, struct{}](size, nil, ttl)}
}

func (s *MemorySessionStore) Save(ctx context.Context, userID, tokenID string, ttl time.Duration) error {
	s.sessions.Add(sessionKey(userID, tokenID), struct{}{})
	return nil
}

func (s *MemorySessionStore) Active(ctx context.Context, userID, tokenID string) (bool, error) {
	return s.sessions.Contains(sessionKey(userID, tokenID)), nil
}

func (s *MemorySessionStore) Revoke(ctx context.Context, userID, tokenID string) error {
	s.sessions.Remove(sessionKey(userID, tokenID))
	return nil
}

func (s *MemorySessionStore) RevokeAll(ctx context.Context, userID string) error {
	prefix := sessionKey(userID, "")
	for _, key := range s.sessions.Keys() {
		if strings.HasPrefix(key, prefix) {
			s.sessions.Remove(key)
		}
	}
	return nil
}
