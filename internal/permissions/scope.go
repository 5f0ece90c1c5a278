package permissions

import "hfcloud/console/internal/models"

// CanViewUser: super admins see everyone, admins see themselves and plain
// users, users see only themselves.
func CanViewUser(actor, target models.User) bool {
	switch actor.Role {
	case models.UserRoleSuperAdmin:
		return true
	case models.UserRoleAdmin:
		return target.Role == models.UserRoleUser || target.ID == actor.ID
	case models.UserRoleUser:
		return target.ID == actor.ID
	default:
		return false
	}
}

// CanEditUser shares the view scope: whatever an actor can see it may edit.
func CanEditUser(actor, target models.User) bool {
	return CanViewUser(actor, target)
}

// CanEditUserStatus gates enabling/disabling an account. Nobody may change
// their own status.
func CanEditUserStatus(actor, target models.User) bool {
	if target.ID == actor.ID {
		return false
	}
	switch actor.Role {
	case models.UserRoleSuperAdmin:
		return true
	case models.UserRoleAdmin:
		return target.Role == models.UserRoleUser
	default:
		return false
	}
}

func CanChangeRole(actor models.User) bool {
	return IsSuperAdmin(actor.Role)
}

func CanCreateUser(actor models.User) bool {
	return IsSuperAdmin(actor.Role)
}

// CanResetPassword lets a super admin set another account's password without
// knowing the old one.
func CanResetPassword(actor, target models.User) bool {
	return IsSuperAdmin(actor.Role) && actor.ID != target.ID
}

// FilterVisible returns the subset of users actor may see, preserving order.
func FilterVisible(actor models.User, users []models.User) []models.User {
	visible := make([]models.User, 0, len(users))
	for _, u := range users {
		if CanViewUser(actor, u) {
			visible = append(visible, u)
		}
	}
	return visible
}
