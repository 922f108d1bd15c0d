package facade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shopmesh/identity/internal/apperror"
)

// RedisConfig holds connection settings for the Redis session store.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g. redis://localhost:6379).
	URL string

	PoolSize     int
	MinIdleConns int
}

// DefaultRedisConfig returns sensible defaults for local development.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		URL:          "redis://localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// RedisStore is a Redis-backed SessionStore, for running the facade with
// multiple replicas behind a load balancer. Expiry is delegated to Redis
// via key TTLs.
type RedisStore struct {
	client *redis.Client
}

var _ SessionStore = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("facade: parsing redis url: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("facade: pinging redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close closes the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func sessionKey(id string) string {
	return "session:" + id
}

func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("facade: marshaling session: %w", err)
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("facade: session %s already expired", sess.ID)
	}

	if err := s.client.Set(ctx, sessionKey(sess.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("facade: saving session: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperror.NotFound("session", id)
		}
		return nil, fmt.Errorf("facade: loading session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("facade: unmarshaling session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("facade: deleting session: %w", err)
	}
	return nil
}
