package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"hfcloud/console/internal/auth"
)

const principalKey = "principal"

// Authenticator restores the principal behind a bearer token.
type Authenticator interface {
	Restore(ctx context.Context, token string) (auth.Principal, error)
}

func Auth(authn Authenticator, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			abortWithError(c, http.StatusUnauthorized, "authentication required")
			return
		}

		tokenStr := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

		principal, err := authn.Restore(c.Request.Context(), tokenStr)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrSessionEnded):
				abortWithError(c, http.StatusUnauthorized, err.Error())
			case errors.Is(err, auth.ErrUnauthenticated):
				abortWithError(c, http.StatusUnauthorized, "invalid access token")
			default:
				log.Error().Err(err).Msg("restore session failed")
				abortWithError(c, http.StatusServiceUnavailable, "session lookup failed")
			}
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

func CurrentPrincipal(c *gin.Context) (auth.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return auth.Principal{}, false
	}
	principal, ok := v.(auth.Principal)
	return principal, ok
}
