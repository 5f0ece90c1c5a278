// Package sessions creates, expires and ends login sessions and enforces the
// per-role limit on concurrently signed-in devices.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"hfcloud/console/internal/ids"
	"hfcloud/console/internal/models"
	"hfcloud/console/internal/permissions"
	"hfcloud/console/internal/repository"
)

const DefaultIdleTimeout = 24 * time.Hour

// Limits is the maximum number of live sessions per role.
type Limits struct {
	SuperAdmin int
	Admin      int
	User       int
}

var DefaultLimits = Limits{SuperAdmin: 10, Admin: 10, User: 1}

// For returns the limit of role. Unknown roles get the user limit.
func (l Limits) For(role models.UserRole) int {
	switch role {
	case models.UserRoleSuperAdmin:
		return l.SuperAdmin
	case models.UserRoleAdmin:
		return l.Admin
	default:
		return l.User
	}
}

// DeviceLimitError rejects a login because the account already has Limit
// live sessions.
type DeviceLimitError struct {
	Role  models.UserRole
	Label string
	Limit int
}

func (e *DeviceLimitError) Error() string {
	return fmt.Sprintf("%s accounts may be signed in on at most %d device(s) at a time; sign out of another device first",
		e.Label, e.Limit)
}

// Device describes the client a session is created for.
type Device struct {
	Info      string
	IPAddress string
}

type Manager struct {
	store  repository.SessionStore
	limits Limits
	idle   time.Duration
	now    func() time.Time
	locks  *keyedMutex
	log    zerolog.Logger
}

type Option func(*Manager)

func WithLimits(limits Limits) Option {
	return func(m *Manager) { m.limits = limits }
}

func WithIdleTimeout(idle time.Duration) Option {
	return func(m *Manager) { m.idle = idle }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(store repository.SessionStore, log zerolog.Logger, opts ...Option) *Manager {
	if store == nil {
		panic("sessions: nil store")
	}

	m := &Manager{
		store:  store,
		limits: DefaultLimits,
		idle:   DefaultIdleTimeout,
		now:    time.Now,
		locks:  newKeyedMutex(),
		log:    log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Limit(role models.UserRole) int {
	return m.limits.For(role)
}

func (m *Manager) IdleTimeout() time.Duration {
	return m.idle
}

// Live reports whether s counts as an active session right now.
func (m *Manager) Live(s models.Session) bool {
	return s.Live(m.now(), m.idle)
}

// Create opens a session for user if the role's device limit allows it. The
// check and the insert are serialized per user, in process and in the store.
func (m *Manager) Create(ctx context.Context, user models.User, device Device) (models.Session, error) {
	unlock := m.locks.Lock(user.ID)
	defer unlock()

	now := m.now().UTC()
	session := models.Session{
		ID:             ids.New(),
		UserID:         user.ID,
		DeviceInfo:     device.Info,
		IPAddress:      device.IPAddress,
		LoginAt:        now,
		LastActivityAt: now,
		IsActive:       true,
	}

	limit := m.limits.For(user.Role)
	live, err := m.store.CreateWithinLimit(ctx, session, limit, now.Add(-m.idle))
	if err != nil {
		if errors.Is(err, repository.ErrDeviceLimitReached) {
			m.log.Info().
				Str("user_id", user.ID).
				Str("role", string(user.Role)).
				Int("live", live).
				Int("limit", limit).
				Msg("device limit reached")
			return models.Session{}, m.limitError(user.Role)
		}
		return models.Session{}, fmt.Errorf("create session: %w", err)
	}

	m.log.Debug().Str("user_id", user.ID).Str("session_id", session.ID).Int("live", live).Msg("session created")
	return session, nil
}

// EnforceDeviceLimit reports whether user may open another session. Sessions
// idle past the timeout are not counted even if no sweep has marked them yet.
func (m *Manager) EnforceDeviceLimit(ctx context.Context, userID string, role models.UserRole) error {
	count, err := m.store.CountLive(ctx, userID, m.cutoff())
	if err != nil {
		return fmt.Errorf("count sessions: %w", err)
	}
	if count >= m.limits.For(role) {
		return m.limitError(role)
	}
	return nil
}

// ListActive returns the user's live sessions, most recently active first.
func (m *Manager) ListActive(ctx context.Context, userID string) ([]models.Session, error) {
	sessions, err := m.store.ListLive(ctx, userID, m.cutoff())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (m *Manager) Get(ctx context.Context, sessionID string) (models.Session, error) {
	return m.store.GetByID(ctx, sessionID)
}

// Touch records activity on a live session. Unknown, ended or idle-expired
// sessions are ignored; an expired session is never revived.
func (m *Manager) Touch(ctx context.Context, sessionID string) error {
	if _, err := m.store.Touch(ctx, sessionID, m.now().UTC(), m.cutoff()); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// End marks a session inactive. Ending an ended or unknown session is a no-op.
func (m *Manager) End(ctx context.Context, sessionID string, reason models.SessionEndReason) error {
	ended, err := m.store.Deactivate(ctx, sessionID, m.now().UTC(), reason)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if ended {
		m.log.Debug().Str("session_id", sessionID).Str("reason", string(reason)).Msg("session ended")
	}
	return nil
}

// EndAll ends every active session of userID.
func (m *Manager) EndAll(ctx context.Context, userID string, reason models.SessionEndReason) (int, error) {
	n, err := m.store.DeactivateByUser(ctx, userID, m.now().UTC(), reason)
	if err != nil {
		return 0, fmt.Errorf("end sessions: %w", err)
	}
	if n > 0 {
		m.log.Info().Str("user_id", userID).Int("count", n).Str("reason", string(reason)).Msg("sessions ended")
	}
	return n, nil
}

// SweepExpired marks every session idle past the timeout as expired. It is
// safe to run concurrently with itself and with Create.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	now := m.now().UTC()
	n, err := m.store.DeactivateIdle(ctx, now.Add(-m.idle), now)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	m.log.Info().Int("expired", n).Msg("session sweep finished")
	return n, nil
}

func (m *Manager) cutoff() time.Time {
	return m.now().UTC().Add(-m.idle)
}

func (m *Manager) limitError(role models.UserRole) *DeviceLimitError {
	return &DeviceLimitError{
		Role:  role,
		Label: permissions.Label(role),
		Limit: m.limits.For(role),
	}
}

// DescribeDevice builds the free-text device descriptor stored on a session.
func DescribeDevice(platform, userAgent string) string {
	const maxAgent = 50

	agent := []rune(userAgent)
	if len(agent) > maxAgent {
		userAgent = string(agent[:maxAgent]) + "..."
	}
	switch {
	case platform == "" && userAgent == "":
		return "Unknown device"
	case platform == "":
		return userAgent
	case userAgent == "":
		return platform
	default:
		return platform + " - " + userAgent
	}
}
