package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hfcloud/console/internal/auth"
	"hfcloud/console/internal/credentials"
	"hfcloud/console/internal/permissions"
	"hfcloud/console/internal/sessions"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Platform string `json:"platform"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "username and password are required")
		return
	}

	result, err := h.auth.Login(c.Request.Context(), auth.LoginInput{
		Username: req.Username,
		Password: req.Password,
		Device: sessions.Device{
			Info:      sessions.DescribeDevice(req.Platform, c.GetHeader("User-Agent")),
			IPAddress: c.ClientIP(),
		},
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"accessToken": result.AccessToken,
		"expiresAt":   result.ExpiresAt,
		"sessionId":   result.Session.ID,
		"user":        toUserResponse(result.User),
	})
}

func (h HandlerSet) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), principal(c).Session.ID); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, nil)
}

// Heartbeat confirms the session is still live and hands back a fresh token.
func (h HandlerSet) Heartbeat(c *gin.Context) {
	p := principal(c)
	token, expiresAt, err := h.auth.Reissue(p)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"accessToken": token,
		"expiresAt":   expiresAt,
		"sessionId":   p.Session.ID,
		"user":        toUserResponse(p.User),
	})
}

func (h HandlerSet) Me(c *gin.Context) {
	p := principal(c)
	ok(c, http.StatusOK, gin.H{
		"user":        toUserResponse(p.User),
		"sessionId":   p.Session.ID,
		"permissions": permissions.Describe(p.User.Role),
		"deviceLimit": h.auth.DeviceLimit(p.User.Role),
	})
}

func (h HandlerSet) ListSessions(c *gin.Context) {
	p := principal(c)
	list, err := h.auth.Sessions(c.Request.Context(), p)
	if err != nil {
		h.fail(c, err)
		return
	}

	items := make([]sessionResponse, 0, len(list))
	for _, s := range list {
		items = append(items, toSessionResponse(s, p.Session.ID))
	}
	ok(c, http.StatusOK, gin.H{
		"sessions":    items,
		"deviceLimit": h.auth.DeviceLimit(p.User.Role),
	})
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// ChangePassword ends every session of the user, this one included, so the
// client has to sign in again.
func (h HandlerSet) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "oldPassword and newPassword are required")
		return
	}

	if err := h.auth.ChangePassword(c.Request.Context(), principal(c), req.OldPassword, req.NewPassword); err != nil {
		// 401 is reserved for a dead session here.
		if errors.Is(err, credentials.ErrInvalidCredentials) {
			c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "current password is incorrect"})
			return
		}
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "password changed, please sign in again"})
}
