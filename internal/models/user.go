package models

import "time"

type UserRole string

const (
	UserRoleUser       UserRole = "user"
	UserRoleAdmin      UserRole = "admin"
	UserRoleSuperAdmin UserRole = "super_admin"
)

// Roles lists every role from most to least privileged.
var Roles = []UserRole{UserRoleSuperAdmin, UserRoleAdmin, UserRoleUser}

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleUser, UserRoleAdmin, UserRoleSuperAdmin:
		return true
	}
	return false
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

func (s UserStatus) Valid() bool {
	return s == UserStatusActive || s == UserStatusDisabled
}

type User struct {
	ID              string
	Username        string
	Email           string
	PasswordHash    []byte
	Role            UserRole
	Status          UserStatus
	RelatedProjects []string
	LastLoginAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (u User) Active() bool {
	return u.Status == UserStatusActive
}

// Clone returns a copy that shares no slices with u.
func (u User) Clone() User {
	c := u
	if u.PasswordHash != nil {
		c.PasswordHash = append([]byte(nil), u.PasswordHash...)
	}
	if u.RelatedProjects != nil {
		c.RelatedProjects = append([]string(nil), u.RelatedProjects...)
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	return c
}
