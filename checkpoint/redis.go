package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCheckpointer persists sessions in Redis, each under a
// "session:<id>" key. Grounded on evalgo-org-eve/db/repository's
// RedisRepository cache-operations shape (SetCache/GetCache/DeleteCache),
// generalized from a generic cache to the one document type this package
// persists.
//
// Suitable for multi-process deployments where several runtime instances
// share session state.
type RedisCheckpointer struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCheckpointer connects to the Redis instance at url (e.g.
// "redis://localhost:6379/0"). ttl is the key expiry applied on every
// Save; zero means keys never expire.
func NewRedisCheckpointer(url string, ttl time.Duration) (*RedisCheckpointer, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("checkpoint: connect to redis: %w", err)
	}

	return &RedisCheckpointer{client: client, ttl: ttl}, nil
}

// NewRedisCheckpointerFromClient wraps an already-constructed client —
// used by tests against a miniredis instance and by callers that need a
// custom redis.Options (TLS, cluster mode, auth).
func NewRedisCheckpointerFromClient(client *redis.Client, ttl time.Duration) *RedisCheckpointer {
	return &RedisCheckpointer{client: client, ttl: ttl}
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func (c *RedisCheckpointer) Load(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := c.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: load %s: %w", sessionID, err)
	}
	return data, nil
}

func (c *RedisCheckpointer) Save(ctx context.Context, sessionID string, snapshot []byte) error {
	if err := c.client.Set(ctx, sessionKey(sessionID), snapshot, c.ttl).Err(); err != nil {
		return fmt.Errorf("checkpoint: save %s: %w", sessionID, err)
	}
	return nil
}

func (c *RedisCheckpointer) Delete(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("checkpoint: delete %s: %w", sessionID, err)
	}
	return nil
}

// Close releases the underlying Redis client connection.
func (c *RedisCheckpointer) Close() error {
	return c.client.Close()
}
