//go:build integration

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"hfcloud/console/internal/models"
	"hfcloud/console/internal/repository"
)

func setupRedis(t *testing.T, ctx context.Context) *redis.Client {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestConfigCache_Redis(t *testing.T) {
	ctx := context.Background()
	client := setupRedis(t, ctx)
	c := NewConfigCache(client, "test:system_config")

	_, err := c.LoadConfig(ctx)
	require.ErrorIs(t, err, repository.ErrCacheMiss)

	want := models.SystemConfig{SystemName: "Edge", LogoSize: 64, MaintenanceMode: true}
	require.NoError(t, c.StoreConfig(ctx, want))

	got, err := c.LoadConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)

	ttl, err := client.TTL(ctx, "test:system_config").Result()
	require.NoError(t, err)
	require.Equal(t, time.Duration(-1), ttl)

	require.NoError(t, client.Set(ctx, "test:system_config", "{broken", 0).Err())
	_, err = c.LoadConfig(ctx)
	require.Error(t, err)
	require.NotErrorIs(t, err, repository.ErrCacheMiss)
}
