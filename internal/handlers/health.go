package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
	ConfigSource string            `json:"configSource"`
	Environment  string            `json:"environment"`
}

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		deps[name] = "ok"
		if err := check(ctx); err != nil {
			deps[name] = "error"
			status = "degraded"
			h.log.Error().Err(err).Str("dependency", name).Msg("health check failed")
		}
	}

	c.JSON(http.StatusOK, healthResponse{
		Status:       status,
		Dependencies: deps,
		ConfigSource: string(h.config.Source()),
		Environment:  h.environment,
	})
}

// Site is public so that the title and favicon can be rendered before login.
func (h HandlerSet) Site(c *gin.Context) {
	cfg, _ := h.config.Load(c.Request.Context())
	ok(c, http.StatusOK, gin.H{"site": toSiteResponse(cfg)})
}
