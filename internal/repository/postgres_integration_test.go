//go:build integration

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"hfcloud/console/internal/database"
	"hfcloud/console/internal/models"
)

// setupPostgres starts a postgres container and applies the migrations.
func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "console",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/console?sslmode=disable", host, port.Port())

	m, err := database.NewMigrator(dsn, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	poolConfig, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	poolConfig.MaxConns = 10

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func seedUser(t *testing.T, ctx context.Context, repo *UserRepository, id, username string, role models.UserRole) {
	t.Helper()
	require.NoError(t, repo.Create(ctx, models.User{
		ID:           id,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: []byte("$argon2id$placeholder"),
		Role:         role,
		Status:       models.UserStatusActive,
	}))
}

func TestPostgres(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	users := NewUserRepository(pool)
	sessions := NewSessionRepository(pool)
	configs := NewConfigRepository(pool)

	t.Run("users", func(t *testing.T) {
		seedUser(t, ctx, users, "u-alice", "alice", models.UserRoleUser)
		seedUser(t, ctx, users, "u-bob", "bob", models.UserRoleAdmin)

		err := users.Create(ctx, models.User{ID: "u-dup", Username: "alice", Role: models.UserRoleUser, Status: models.UserStatusActive})
		require.ErrorIs(t, err, ErrUsernameTaken)

		_, err = users.FindByUsername(ctx, "ALICE")
		require.ErrorIs(t, err, ErrUserNotFound)

		found, err := users.List(ctx, UserFilter{Search: "BO"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		require.Equal(t, "bob", found[0].Username)

		alice, err := users.GetByID(ctx, "u-alice")
		require.NoError(t, err)
		alice.RelatedProjects = []string{"cdn", "dns"}
		alice.Status = models.UserStatusDisabled
		require.NoError(t, users.Update(ctx, alice))

		alice, err = users.GetByID(ctx, "u-alice")
		require.NoError(t, err)
		require.Equal(t, []string{"cdn", "dns"}, alice.RelatedProjects)
		require.False(t, alice.Active())

		now := time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, users.TouchLastLogin(ctx, "u-bob", now))
		bob, err := users.GetByID(ctx, "u-bob")
		require.NoError(t, err)
		require.NotNil(t, bob.LastLoginAt)
		require.True(t, now.Equal(*bob.LastLoginAt))
	})

	t.Run("sessions enforce the device limit under concurrency", func(t *testing.T) {
		seedUser(t, ctx, users, "u-carol", "carol", models.UserRoleAdmin)

		now := time.Now().UTC()
		cutoff := now.Add(-24 * time.Hour)

		const attempts, limit = 20, 3
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
		)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := sessions.CreateWithinLimit(ctx, models.Session{
					ID:             fmt.Sprintf("s-carol-%d", i),
					UserID:         "u-carol",
					DeviceInfo:     "test",
					LoginAt:        now,
					LastActivityAt: now,
				}, limit, cutoff)
				if err == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		require.Equal(t, limit, accepted)
		live, err := sessions.CountLive(ctx, "u-carol", cutoff)
		require.NoError(t, err)
		require.Equal(t, limit, live)
	})

	t.Run("session lifecycle", func(t *testing.T) {
		seedUser(t, ctx, users, "u-dave", "dave", models.UserRoleUser)

		now := time.Now().UTC().Truncate(time.Microsecond)
		cutoff := now.Add(-24 * time.Hour)

		stale := models.Session{ID: "s-dave-old", UserID: "u-dave", LoginAt: now.Add(-30 * time.Hour), LastActivityAt: now.Add(-30 * time.Hour)}
		_, err := sessions.CreateWithinLimit(ctx, stale, 1, now.Add(-48*time.Hour))
		require.NoError(t, err)

		fresh := models.Session{ID: "s-dave-new", UserID: "u-dave", LoginAt: now, LastActivityAt: now}
		_, err = sessions.CreateWithinLimit(ctx, fresh, 1, cutoff)
		require.NoError(t, err)

		old, err := sessions.GetByID(ctx, "s-dave-old")
		require.NoError(t, err)
		require.False(t, old.IsActive)
		require.Equal(t, models.SessionEndExpired, old.EndReason)

		_, err = sessions.CreateWithinLimit(ctx, models.Session{ID: "s-dave-3", UserID: "u-dave", LoginAt: now, LastActivityAt: now}, 1, cutoff)
		require.ErrorIs(t, err, ErrDeviceLimitReached)

		touched, err := sessions.Touch(ctx, "s-dave-new", now.Add(time.Minute), cutoff)
		require.NoError(t, err)
		require.True(t, touched)

		ended, err := sessions.Deactivate(ctx, "s-dave-new", now.Add(2*time.Minute), models.SessionEndLogout)
		require.NoError(t, err)
		require.True(t, ended)
		ended, err = sessions.Deactivate(ctx, "s-dave-new", now.Add(3*time.Minute), models.SessionEndRevoked)
		require.NoError(t, err)
		require.False(t, ended)

		_, err = sessions.GetByID(ctx, "missing")
		require.ErrorIs(t, err, ErrSessionNotFound)

		_, err = sessions.CreateWithinLimit(ctx, models.Session{ID: "s-ghost", UserID: "nobody", LoginAt: now, LastActivityAt: now}, 1, cutoff)
		require.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("config entries are saved together", func(t *testing.T) {
		name, empty, size, off := "Edge", "", 48, false
		entries, err := models.ConfigPatch{
			SystemName:      &name,
			LogoURL:         &empty,
			LogoSize:        &size,
			FaviconURL:      &empty,
			AdminEmail:      &empty,
			Announcement:    &empty,
			MaintenanceMode: &off,
		}.Entries()
		require.NoError(t, err)
		require.NoError(t, configs.SaveEntries(ctx, entries, "u-bob"))
		require.NoError(t, configs.SaveEntries(ctx, entries, "u-bob"))

		loaded, err := configs.LoadEntries(ctx)
		require.NoError(t, err)
		require.Len(t, loaded, len(models.ConfigKeys))
		require.JSONEq(t, `"Edge"`, string(loaded[models.ConfigKeySystemName]))

		bad := map[string]json.RawMessage{
			models.ConfigKeyAnnouncement: json.RawMessage(`"Partial"`),
			models.ConfigKeySystemName:   json.RawMessage(`not json`),
		}
		require.Error(t, configs.SaveEntries(ctx, bad, "u-bob"))

		loaded, err = configs.LoadEntries(ctx)
		require.NoError(t, err)
		require.JSONEq(t, `""`, string(loaded[models.ConfigKeyAnnouncement]))
		require.JSONEq(t, `"Edge"`, string(loaded[models.ConfigKeySystemName]))
	})
}
