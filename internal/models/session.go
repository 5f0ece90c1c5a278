package models

import "time"

type SessionEndReason string

const (
	SessionEndLogout          SessionEndReason = "logout"
	SessionEndExpired         SessionEndReason = "expired"
	SessionEndPasswordChanged SessionEndReason = "password_changed"
	SessionEndAccountDisabled SessionEndReason = "account_disabled"
	SessionEndRevoked         SessionEndReason = "revoked"
)

// Session is one authenticated client instance. Once IsActive is false the
// session never becomes active again.
type Session struct {
	ID             string
	UserID         string
	DeviceInfo     string
	IPAddress      string
	LoginAt        time.Time
	LastActivityAt time.Time
	IsActive       bool
	EndedAt        *time.Time
	EndReason      SessionEndReason
}

// Live reports whether the session counts against the device limit at now.
// A session idle for longer than idle is treated as inactive whatever its
// persisted flag says.
func (s Session) Live(now time.Time, idle time.Duration) bool {
	return s.IsActive && now.Sub(s.LastActivityAt) <= idle
}
