package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hfcloud/console/internal/auth"
	"hfcloud/console/internal/branding"
	"hfcloud/console/internal/credentials"
	"hfcloud/console/internal/middleware"
	"hfcloud/console/internal/permissions"
	"hfcloud/console/internal/repository"
	"hfcloud/console/internal/sessions"
	"hfcloud/console/internal/sysconfig"
	"hfcloud/console/internal/users"
)

func ok(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	c.JSON(status, body)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": message})
}

// fail maps a service error onto a status code and a {success:false} body.
// Unexpected errors are logged and reported without detail.
func (h HandlerSet) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	body := gin.H{"success": false, "error": err.Error()}

	var limitErr *sessions.DeviceLimitError
	var saveErr *sysconfig.SaveError

	switch {
	case errors.As(err, &limitErr):
		status = http.StatusConflict
		body["deviceLimit"] = limitErr.Limit
	case errors.As(err, &saveErr):
		status = http.StatusBadGateway
		body["error"] = sysconfig.ErrSaveFailed.Error()
		body["cachedLocally"] = saveErr.CachedLocally
	case errors.Is(err, credentials.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, auth.ErrSessionEnded), errors.Is(err, auth.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, permissions.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, repository.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrUsernameTaken):
		status = http.StatusConflict
	case errors.Is(err, users.ErrInvalidInput), errors.Is(err, credentials.ErrWeakPassword):
		status = http.StatusBadRequest
	case errors.Is(err, branding.ErrTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, branding.ErrUnknownKind), errors.Is(err, branding.ErrEmptyFile),
		errors.Is(err, branding.ErrUnsupportedImage):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		body["error"] = "internal server error"
	}
	c.JSON(status, body)
}

// principal is only called behind middleware.Auth.
func principal(c *gin.Context) auth.Principal {
	p, _ := middleware.CurrentPrincipal(c)
	return p
}
