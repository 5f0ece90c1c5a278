package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hfcloud/console/internal/models"
	"hfcloud/console/internal/repository"
)

func TestUserStore_Create(t *testing.T) {
	t.Run("rejects duplicate username", func(t *testing.T) {
		st := NewUserStore()
		ctx := context.Background()

		require.NoError(t, st.Create(ctx, models.User{ID: "u1", Username: "alice", Role: models.UserRoleUser}))
		err := st.Create(ctx, models.User{ID: "u2", Username: "alice", Role: models.UserRoleUser})
		require.ErrorIs(t, err, repository.ErrUsernameTaken)
	})

	t.Run("usernames are case sensitive", func(t *testing.T) {
		st := NewUserStore()
		ctx := context.Background()

		require.NoError(t, st.Create(ctx, models.User{ID: "u1", Username: "alice"}))
		require.NoError(t, st.Create(ctx, models.User{ID: "u2", Username: "Alice"}))

		_, err := st.FindByUsername(ctx, "ALICE")
		require.ErrorIs(t, err, repository.ErrUserNotFound)
	})

	t.Run("returned users are copies", func(t *testing.T) {
		st := NewUserStore()
		ctx := context.Background()

		require.NoError(t, st.Create(ctx, models.User{ID: "u1", Username: "alice", RelatedProjects: []string{"cdn"}}))
		got, err := st.GetByID(ctx, "u1")
		require.NoError(t, err)
		got.RelatedProjects[0] = "changed"

		again, err := st.GetByID(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, []string{"cdn"}, again.RelatedProjects)
	})
}

func TestUserStore_List(t *testing.T) {
	st := NewUserStore()
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"alice", "bob", "carol"} {
		created := base.Add(time.Duration(i) * time.Hour)
		st.SetClock(func() time.Time { return created })
		require.NoError(t, st.Create(ctx, models.User{
			ID:       fmt.Sprintf("u%d", i),
			Username: name,
			Email:    name + "@Example.com",
		}))
	}

	all, err := st.List(ctx, repository.UserFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "carol", all[0].Username)
	require.Equal(t, "alice", all[2].Username)

	matched, err := st.List(ctx, repository.UserFilter{Search: "BO"})
	require.NoError(t, err)
	require.Len(t, matched, 1)
	require.Equal(t, "bob", matched[0].Username)

	byEmail, err := st.List(ctx, repository.UserFilter{Search: "example.COM"})
	require.NoError(t, err)
	require.Len(t, byEmail, 3)
}

func TestUserStore_Update(t *testing.T) {
	st := NewUserStore()
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, models.User{ID: "u1", Username: "alice"}))
	require.NoError(t, st.Create(ctx, models.User{ID: "u2", Username: "bob"}))

	err := st.Update(ctx, models.User{ID: "u2", Username: "alice"})
	require.ErrorIs(t, err, repository.ErrUsernameTaken)

	require.NoError(t, st.Update(ctx, models.User{ID: "u2", Username: "robert", Role: models.UserRoleAdmin}))
	_, err = st.FindByUsername(ctx, "bob")
	require.ErrorIs(t, err, repository.ErrUserNotFound)

	got, err := st.FindByUsername(ctx, "robert")
	require.NoError(t, err)
	require.Equal(t, models.UserRoleAdmin, got.Role)

	require.ErrorIs(t, st.Update(ctx, models.User{ID: "missing"}), repository.ErrUserNotFound)
	require.ErrorIs(t, st.UpdateStatus(ctx, "missing", models.UserStatusDisabled), repository.ErrUserNotFound)
}

func newSession(id, userID string, at time.Time) models.Session {
	return models.Session{
		ID:             id,
		UserID:         userID,
		DeviceInfo:     "test",
		LoginAt:        at,
		LastActivityAt: at,
	}
}

func TestSessionStore_CreateWithinLimit(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-24 * time.Hour)

	t.Run("refuses at the limit", func(t *testing.T) {
		st := NewSessionStore()
		ctx := context.Background()

		count, err := st.CreateWithinLimit(ctx, newSession("s1", "u1", now), 1, cutoff)
		require.NoError(t, err)
		require.Equal(t, 1, count)

		count, err = st.CreateWithinLimit(ctx, newSession("s2", "u1", now), 1, cutoff)
		require.ErrorIs(t, err, repository.ErrDeviceLimitReached)
		require.Equal(t, 1, count)

		_, err = st.GetByID(ctx, "s2")
		require.ErrorIs(t, err, repository.ErrSessionNotFound)
	})

	t.Run("idle sessions are expired before counting", func(t *testing.T) {
		st := NewSessionStore()
		ctx := context.Background()

		stale := newSession("old", "u1", now.Add(-25*time.Hour))
		_, err := st.CreateWithinLimit(ctx, stale, 1, stale.LoginAt.Add(-24*time.Hour))
		require.NoError(t, err)

		_, err = st.CreateWithinLimit(ctx, newSession("new", "u1", now), 1, cutoff)
		require.NoError(t, err)

		old, err := st.GetByID(ctx, "old")
		require.NoError(t, err)
		require.False(t, old.IsActive)
		require.Equal(t, models.SessionEndExpired, old.EndReason)
	})

	t.Run("limits are per user", func(t *testing.T) {
		st := NewSessionStore()
		ctx := context.Background()

		_, err := st.CreateWithinLimit(ctx, newSession("s1", "u1", now), 1, cutoff)
		require.NoError(t, err)
		_, err = st.CreateWithinLimit(ctx, newSession("s2", "u2", now), 1, cutoff)
		require.NoError(t, err)
	})

	t.Run("concurrent creates never exceed the limit", func(t *testing.T) {
		st := NewSessionStore()
		ctx := context.Background()

		const attempts, limit = 50, 3
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
		)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := st.CreateWithinLimit(ctx, newSession(fmt.Sprintf("s%d", i), "u1", now), limit, cutoff)
				if err == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		require.Equal(t, limit, accepted)
		count, err := st.CountLive(ctx, "u1", cutoff)
		require.NoError(t, err)
		require.Equal(t, limit, count)
	})
}

func TestSessionStore_Lifecycle(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-24 * time.Hour)
	st := NewSessionStore()
	ctx := context.Background()

	_, err := st.CreateWithinLimit(ctx, newSession("a", "u1", now.Add(-2*time.Hour)), 10, cutoff)
	require.NoError(t, err)
	_, err = st.CreateWithinLimit(ctx, newSession("b", "u1", now.Add(-1*time.Hour)), 10, cutoff)
	require.NoError(t, err)

	touched, err := st.Touch(ctx, "a", now, cutoff)
	require.NoError(t, err)
	require.True(t, touched)

	live, err := st.ListLive(ctx, "u1", cutoff)
	require.NoError(t, err)
	require.Len(t, live, 2)
	require.Equal(t, "a", live[0].ID)

	ended, err := st.Deactivate(ctx, "a", now, models.SessionEndLogout)
	require.NoError(t, err)
	require.True(t, ended)

	ended, err = st.Deactivate(ctx, "a", now.Add(time.Minute), models.SessionEndRevoked)
	require.NoError(t, err)
	require.False(t, ended)

	a, err := st.GetByID(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, models.SessionEndLogout, a.EndReason)
	require.Equal(t, now, *a.EndedAt)

	touched, err = st.Touch(ctx, "a", now.Add(time.Hour), cutoff)
	require.NoError(t, err)
	require.False(t, touched)

	touched, err = st.Touch(ctx, "missing", now, cutoff)
	require.NoError(t, err)
	require.False(t, touched)

	n, err := st.DeactivateByUser(ctx, "u1", now, models.SessionEndPasswordChanged)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestSessionStore_TouchSkipsIdleExpired(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-24 * time.Hour)
	st := NewSessionStore()
	ctx := context.Background()

	_, err := st.CreateWithinLimit(ctx, newSession("idle", "u1", now.Add(-25*time.Hour)), 10, now.Add(-48*time.Hour))
	require.NoError(t, err)

	touched, err := st.Touch(ctx, "idle", now, cutoff)
	require.NoError(t, err)
	require.False(t, touched)

	live, err := st.ListLive(ctx, "u1", cutoff)
	require.NoError(t, err)
	require.Empty(t, live)

	got, err := st.GetByID(ctx, "idle")
	require.NoError(t, err)
	require.Equal(t, now.Add(-25*time.Hour), got.LastActivityAt)
}

func TestSessionStore_DeactivateIdle(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st := NewSessionStore()
	ctx := context.Background()

	_, err := st.CreateWithinLimit(ctx, newSession("stale", "u1", now.Add(-30*time.Hour)), 10, now.Add(-54*time.Hour))
	require.NoError(t, err)
	_, err = st.CreateWithinLimit(ctx, newSession("fresh", "u1", now.Add(-time.Hour)), 10, now.Add(-54*time.Hour))
	require.NoError(t, err)

	cutoff := now.Add(-24 * time.Hour)
	n, err := st.DeactivateIdle(ctx, cutoff, now)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = st.DeactivateIdle(ctx, cutoff, now)
	require.NoError(t, err)
	require.Zero(t, n)

	live, err := st.ListLive(ctx, "u1", cutoff)
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, "fresh", live[0].ID)
}

func TestConfigStore(t *testing.T) {
	st := NewConfigStore()
	ctx := context.Background()

	require.NoError(t, st.SaveEntries(ctx, map[string]json.RawMessage{
		models.ConfigKeySystemName: json.RawMessage(`"Edge"`),
	}, "admin"))
	require.Equal(t, 1, st.Saves())
	require.Equal(t, "admin", st.UpdatedBy(models.ConfigKeySystemName))

	entries, err := st.LoadEntries(ctx)
	require.NoError(t, err)
	require.JSONEq(t, `"Edge"`, string(entries[models.ConfigKeySystemName]))

	boom := errors.New("boom")
	st.FailSaves(boom)
	err = st.SaveEntries(ctx, map[string]json.RawMessage{models.ConfigKeySystemName: json.RawMessage(`"X"`)}, "admin")
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, st.Saves())

	st.FailLoads(boom)
	_, err = st.LoadEntries(ctx)
	require.ErrorIs(t, err, boom)
}

func TestConfigCache(t *testing.T) {
	c := NewConfigCache()
	ctx := context.Background()

	_, err := c.LoadConfig(ctx)
	require.ErrorIs(t, err, repository.ErrCacheMiss)

	require.NoError(t, c.StoreConfig(ctx, models.SystemConfig{SystemName: "Edge"}))
	got, err := c.LoadConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, "Edge", got.SystemName)
}
