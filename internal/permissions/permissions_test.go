package permissions

import (
	"testing"

	"github.com/stretchr/testify/require"

	"hfcloud/console/internal/models"
)

func TestHasPermission(t *testing.T) {
	for _, role := range models.Roles {
		t.Run(string(role), func(t *testing.T) {
			require.True(t, HasPermission(role, models.UserRoleUser))
			require.Equal(t, role == models.UserRoleSuperAdmin, IsSuperAdmin(role))
			require.True(t, CanAccessUserManagement(role))
		})
	}

	tests := []struct {
		actual   models.UserRole
		required models.UserRole
		want     bool
	}{
		{models.UserRoleUser, models.UserRoleAdmin, false},
		{models.UserRoleAdmin, models.UserRoleAdmin, true},
		{models.UserRoleAdmin, models.UserRoleSuperAdmin, false},
		{models.UserRoleSuperAdmin, models.UserRoleAdmin, true},
		{models.UserRoleSuperAdmin, models.UserRoleSuperAdmin, true},
		{models.UserRole("guest"), models.UserRoleUser, false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, HasPermission(tt.actual, tt.required), "%s >= %s", tt.actual, tt.required)
	}
}

func TestIsAdmin(t *testing.T) {
	require.False(t, IsAdmin(models.UserRoleUser))
	require.True(t, IsAdmin(models.UserRoleAdmin))
	require.True(t, IsAdmin(models.UserRoleSuperAdmin))
	require.False(t, IsAdmin(models.UserRole("")))
}

func TestDescribe(t *testing.T) {
	d := Describe(models.UserRoleAdmin)
	require.Equal(t, LevelAdmin, d.Level)
	require.Equal(t, "Administrator", d.Label)
	require.Equal(t, "text-blue-400", d.Color)
	require.True(t, d.CanSaveConfig)
	require.False(t, d.IsSuperAdmin)

	unknown := Describe(models.UserRole("guest"))
	require.Equal(t, "guest", unknown.Label)
	require.Equal(t, LevelNone, unknown.Level)
	require.False(t, unknown.CanManageUsers)
}

func TestUserScope(t *testing.T) {
	root := models.User{ID: "1", Role: models.UserRoleSuperAdmin}
	manager := models.User{ID: "2", Role: models.UserRoleAdmin}
	otherAdmin := models.User{ID: "6", Role: models.UserRoleAdmin}
	alice := models.User{ID: "3", Role: models.UserRoleUser}
	bob := models.User{ID: "4", Role: models.UserRoleUser}

	t.Run("view", func(t *testing.T) {
		require.True(t, CanViewUser(root, manager))
		require.True(t, CanViewUser(manager, alice))
		require.True(t, CanViewUser(manager, manager))
		require.False(t, CanViewUser(manager, otherAdmin))
		require.False(t, CanViewUser(manager, root))
		require.True(t, CanViewUser(alice, alice))
		require.False(t, CanViewUser(alice, bob))
	})

	t.Run("status", func(t *testing.T) {
		require.True(t, CanEditUserStatus(root, manager))
		require.False(t, CanEditUserStatus(root, root))
		require.True(t, CanEditUserStatus(manager, alice))
		require.False(t, CanEditUserStatus(manager, manager))
		require.False(t, CanEditUserStatus(manager, otherAdmin))
		require.False(t, CanEditUserStatus(alice, alice))
		require.False(t, CanEditUserStatus(alice, bob))
	})

	t.Run("role and creation", func(t *testing.T) {
		require.True(t, CanChangeRole(root))
		require.False(t, CanChangeRole(manager))
		require.True(t, CanCreateUser(root))
		require.False(t, CanCreateUser(manager))
		require.True(t, CanResetPassword(root, alice))
		require.False(t, CanResetPassword(root, root))
		require.False(t, CanResetPassword(manager, alice))
	})

	t.Run("filter", func(t *testing.T) {
		all := []models.User{root, manager, alice, otherAdmin, bob}
		require.Equal(t, []models.User{manager, alice, bob}, FilterVisible(manager, all))
		require.Equal(t, []models.User{alice}, FilterVisible(alice, all))
		require.Len(t, FilterVisible(root, all), 5)
	})
}
