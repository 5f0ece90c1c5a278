package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hfcloud/console/internal/models"
	"hfcloud/console/internal/permissions"
)

// RequireRole admits principals at least as privileged as min.
func RequireRole(min models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := CurrentPrincipal(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "authentication required")
			return
		}

		if !permissions.HasPermission(principal.User.Role, min) {
			abortWithError(c, http.StatusForbidden, permissions.ErrForbidden.Error())
			return
		}

		c.Next()
	}
}
