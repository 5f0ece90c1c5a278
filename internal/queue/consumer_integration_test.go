//go:build integration

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"hfcloud/console/internal/jobs"
	"hfcloud/console/internal/tasks"
)

type countingSweeper struct{ calls atomic.Int32 }

func (s *countingSweeper) SweepExpired(ctx context.Context) (int, error) {
	s.calls.Add(1)
	return 0, nil
}

type flakyRefresher struct{ calls atomic.Int32 }

// Refresh fails the first time so the entry stays pending and gets claimed.
func (r *flakyRefresher) Refresh(ctx context.Context) error {
	if r.calls.Add(1) == 1 {
		return errors.New("store unavailable")
	}
	return nil
}

func TestConsumer_Redis(t *testing.T) {
	ctx := context.Background()

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

	sweeper := &countingSweeper{}
	refresher := &flakyRefresher{}
	processor := tasks.NewProcessor(sweeper, refresher, zerolog.Nop())

	const stream = "test:maintenance"
	scheduler := jobs.NewScheduler(client, stream, nil, zerolog.Nop())
	require.NoError(t, scheduler.Dispatch(ctx, tasks.TypeSessionSweep))
	require.NoError(t, scheduler.Dispatch(ctx, tasks.TypeConfigRefresh))

	consumer := NewConsumer(client, stream, "workers", "w1", 500*time.Millisecond, zerolog.Nop(), processor)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Start(runCtx) }()

	require.Eventually(t, func() bool {
		return sweeper.calls.Load() == 1 && refresher.calls.Load() >= 2
	}, 30*time.Second, 100*time.Millisecond)

	require.Eventually(t, func() bool {
		pending, err := client.XPending(ctx, stream, "workers").Result()
		return err == nil && pending.Count == 0
	}, 10*time.Second, 100*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
