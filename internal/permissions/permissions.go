// Package permissions maps roles to privilege levels, display attributes and
// the capability checks every other package consults before acting.
package permissions

import (
	"errors"

	"hfcloud/console/internal/models"
)

// ErrForbidden is wrapped by services when the acting user lacks authority.
var ErrForbidden = errors.New("permission denied")

const (
	LevelNone       = 0
	LevelUser       = 1
	LevelAdmin      = 2
	LevelSuperAdmin = 3
)

func Level(role models.UserRole) int {
	switch role {
	case models.UserRoleUser:
		return LevelUser
	case models.UserRoleAdmin:
		return LevelAdmin
	case models.UserRoleSuperAdmin:
		return LevelSuperAdmin
	default:
		return LevelNone
	}
}

// HasPermission reports whether actual is at least as privileged as required.
// Unknown roles satisfy nothing.
func HasPermission(actual, required models.UserRole) bool {
	level := Level(actual)
	return level != LevelNone && level >= Level(required)
}

func IsAdmin(role models.UserRole) bool {
	return HasPermission(role, models.UserRoleAdmin)
}

func IsSuperAdmin(role models.UserRole) bool {
	return role == models.UserRoleSuperAdmin
}

func Label(role models.UserRole) string {
	switch role {
	case models.UserRoleSuperAdmin:
		return "Super Administrator"
	case models.UserRoleAdmin:
		return "Administrator"
	case models.UserRoleUser:
		return "User"
	default:
		return string(role)
	}
}

// Color is the foreground style token for role badges.
func Color(role models.UserRole) string {
	switch role {
	case models.UserRoleSuperAdmin:
		return "text-red-400"
	case models.UserRoleAdmin:
		return "text-blue-400"
	case models.UserRoleUser:
		return "text-green-400"
	default:
		return "text-gray-400"
	}
}

// BgColor is the background/border style token for role badges.
func BgColor(role models.UserRole) string {
	switch role {
	case models.UserRoleSuperAdmin:
		return "bg-red-500/10 border-red-500/20"
	case models.UserRoleAdmin:
		return "bg-blue-500/10 border-blue-500/20"
	case models.UserRoleUser:
		return "bg-green-500/10 border-green-500/20"
	default:
		return "bg-gray-500/10 border-gray-500/20"
	}
}

// CanAccessUserManagement is true for every role: any signed-in user may open
// the user-management view, which then only shows what CanViewUser allows.
func CanAccessUserManagement(role models.UserRole) bool {
	return true
}

func CanManageUsers(role models.UserRole) bool {
	return IsAdmin(role)
}

func CanSaveConfig(role models.UserRole) bool {
	return IsAdmin(role)
}

// Descriptor bundles a role's presentation and capability flags.
type Descriptor struct {
	Role                    models.UserRole `json:"role"`
	Level                   int             `json:"level"`
	Label                   string          `json:"label"`
	Color                   string          `json:"color"`
	BgColor                 string          `json:"bgColor"`
	IsAdmin                 bool            `json:"isAdmin"`
	IsSuperAdmin            bool            `json:"isSuperAdmin"`
	CanAccessUserManagement bool            `json:"canAccessUserManagement"`
	CanManageUsers          bool            `json:"canManageUsers"`
	CanSaveConfig           bool            `json:"canSaveConfig"`
}

func Describe(role models.UserRole) Descriptor {
	return Descriptor{
		Role:                    role,
		Level:                   Level(role),
		Label:                   Label(role),
		Color:                   Color(role),
		BgColor:                 BgColor(role),
		IsAdmin:                 IsAdmin(role),
		IsSuperAdmin:            IsSuperAdmin(role),
		CanAccessUserManagement: CanAccessUserManagement(role),
		CanManageUsers:          CanManageUsers(role),
		CanSaveConfig:           CanSaveConfig(role),
	}
}
