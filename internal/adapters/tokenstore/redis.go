package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
	"github.com/canvango/canvango-group/internal/ports"
)

// refreshValidity bounds how long a stored token pair stays retrievable.
// The refresh token outlives the access token, so keys expire well after the
// access-token expiry rather than with it.
const refreshValidity = 30 * 24 * time.Hour

// RedisStore is a Redis-based token store for headless deployments where the
// lifecycle manager runs server-side (e.g., behind a gateway). It handles TTL
// semantics automatically based on refresh-token validity.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

var _ ports.TokenStore = (*RedisStore)(nil)

// NewRedisStore creates a new Redis-based token store. The prefix namespaces
// the token key, e.g. per deployment or per device.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "canvango:"
	}
	return &RedisStore{
		client: client,
		key:    prefix + "tokens",
	}
}

func (s *RedisStore) Load(ctx context.Context) (domainauth.Session, error) {
	data, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, nil
		}
		return domainauth.Session{}, fmt.Errorf("redis get: %w", err)
	}

	var sess domainauth.Session
	if unmarshalErr := json.Unmarshal([]byte(data), &sess); unmarshalErr != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal tokens: %w", unmarshalErr)
	}
	return sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess domainauth.Session) error {
	if sess.IsZero() {
		return errors.New("refusing to save empty session")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}

	return s.client.Set(ctx, s.key, data, refreshValidity).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
