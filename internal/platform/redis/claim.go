// Package redis provides a short-lived per-resource processing claim on
// Redis, used to keep concurrent redeliveries of the same resource from
// racing each other into the database.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ClaimKeyPrefix namespaces claim keys.
const ClaimKeyPrefix = "scribe:claim:"

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ClaimStore grants exclusive, expiring claims on resources.
type ClaimStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewClaimStore creates a ClaimStore from a Redis URL.
func NewClaimStore(redisURL string, ttl time.Duration) (*ClaimStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewClaimStoreWithClient(redis.NewClient(opts), ttl), nil
}

// NewClaimStoreWithClient wraps an existing client.
func NewClaimStoreWithClient(client *redis.Client, ttl time.Duration) *ClaimStore {
	return &ClaimStore{client: client, ttl: ttl}
}

// ClaimKey returns the Redis key guarding resourceID.
func ClaimKey(resourceID uuid.UUID) string {
	return ClaimKeyPrefix + resourceID.String()
}

// Ping checks connectivity.
func (s *ClaimStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Acquire tries to claim resourceID. It returns a release token and true
// when the claim was granted, or false when another holder has it.
func (s *ClaimStore) Acquire(ctx context.Context, resourceID uuid.UUID) (string, bool, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, ClaimKey(resourceID), token, s.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis SETNX: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release gives up a claim previously granted with token. Releasing a
// claim that expired or was taken over is a no-op.
func (s *ClaimStore) Release(ctx context.Context, resourceID uuid.UUID, token string) error {
	if err := releaseScript.Run(ctx, s.client, []string{ClaimKey(resourceID)}, token).Err(); err != nil {
		return fmt.Errorf("redis release: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *ClaimStore) Close() error {
	return s.client.Close()
}
