//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/platform/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns a connected ClaimStore.
func setupRedis(t *testing.T, ttl time.Duration) *redis.ClaimStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	s, err := redis.NewClaimStore("redis://"+host+":"+port.Port(), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Ping(ctx))
	return s
}

func TestClaimStore_AcquireRelease(t *testing.T) {
	s := setupRedis(t, time.Minute)
	ctx := context.Background()
	id := uuid.New()

	token, ok, err := s.Acquire(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = s.Acquire(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must be refused")

	// a stale token does not release someone else's claim
	require.NoError(t, s.Release(ctx, id, "not-the-token"))
	_, ok, err = s.Acquire(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Release(ctx, id, token))
	_, ok, err = s.Acquire(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClaimStore_Expiry(t *testing.T) {
	s := setupRedis(t, 200*time.Millisecond)
	ctx := context.Background()
	id := uuid.New()

	_, ok, err := s.Acquire(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok, err := s.Acquire(ctx, id)
		return err == nil && ok
	}, 3*time.Second, 50*time.Millisecond)
}
