// Package repository defines the persistence contracts for users, sessions and
// system configuration, and implements them on PostgreSQL. In-memory
// implementations live in the memory subpackage.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"hfcloud/console/internal/models"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrSessionNotFound    = errors.New("session not found")
	ErrDeviceLimitReached = errors.New("device limit reached")
)

type UserFilter struct {
	// Search matches username or email, case-insensitively.
	Search string
}

type UserStore interface {
	Create(ctx context.Context, user models.User) error
	GetByID(ctx context.Context, id string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	// List returns users newest first.
	List(ctx context.Context, filter UserFilter) ([]models.User, error)
	// Update writes the profile fields: username, email, role, status and
	// related projects.
	Update(ctx context.Context, user models.User) error
	UpdatePassword(ctx context.Context, id string, passwordHash []byte) error
	UpdateStatus(ctx context.Context, id string, status models.UserStatus) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// SessionStore persists sessions. "Live" means is_active and last activity at
// or after the cutoff.
type SessionStore interface {
	// CreateWithinLimit deactivates the user's sessions idle since before
	// cutoff, then inserts session only if fewer than limit live sessions
	// remain. The check and the insert are atomic per user. On refusal it
	// returns the live count and ErrDeviceLimitReached.
	CreateWithinLimit(ctx context.Context, session models.Session, limit int, cutoff time.Time) (int, error)
	GetByID(ctx context.Context, id string) (models.Session, error)
	// ListLive returns live sessions, most recently active first.
	ListLive(ctx context.Context, userID string, cutoff time.Time) ([]models.Session, error)
	CountLive(ctx context.Context, userID string, cutoff time.Time) (int, error)
	// Touch refreshes last activity of a live session. Missing, inactive or
	// idle-expired sessions (last activity before cutoff) are left alone and
	// report false.
	Touch(ctx context.Context, id string, at, cutoff time.Time) (bool, error)
	// Deactivate ends one session. Already inactive sessions keep their
	// original end time and reason.
	Deactivate(ctx context.Context, id string, at time.Time, reason models.SessionEndReason) (bool, error)
	DeactivateByUser(ctx context.Context, userID string, at time.Time, reason models.SessionEndReason) (int, error)
	// DeactivateIdle marks every active session idle since before cutoff as
	// expired.
	DeactivateIdle(ctx context.Context, cutoff time.Time, at time.Time) (int, error)
}

// ConfigStore keeps system configuration as one JSON value per key.
type ConfigStore interface {
	LoadEntries(ctx context.Context) (map[string]json.RawMessage, error)
	// SaveEntries upserts every entry in a single atomic write.
	SaveEntries(ctx context.Context, entries map[string]json.RawMessage, updatedBy string) error
}

// ErrCacheMiss is returned by a ConfigCache that holds no snapshot yet.
var ErrCacheMiss = errors.New("config cache miss")

// ConfigCache holds the last configuration known to be good, for reads while
// the ConfigStore is unreachable.
type ConfigCache interface {
	LoadConfig(ctx context.Context) (models.SystemConfig, error)
	StoreConfig(ctx context.Context, cfg models.SystemConfig) error
}
