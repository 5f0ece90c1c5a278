package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"hfcloud/console/internal/auth"
	"hfcloud/console/internal/branding"
	"hfcloud/console/internal/middleware"
	"hfcloud/console/internal/models"
	"hfcloud/console/internal/sysconfig"
	"hfcloud/console/internal/users"
)

// HealthCheck pings one backing dependency.
type HealthCheck func(ctx context.Context) error

type Dependencies struct {
	Auth        *auth.Service
	Users       *users.Service
	Config      *sysconfig.Resolver
	Branding    *branding.Service // nil when object storage is not configured
	LoginLimit  *middleware.RateLimiter
	Checks      map[string]HealthCheck
	Environment string
}

type HandlerSet struct {
	log         zerolog.Logger
	auth        *auth.Service
	users       *users.Service
	config      *sysconfig.Resolver
	branding    *branding.Service
	loginLimit  *middleware.RateLimiter
	checks      map[string]HealthCheck
	environment string
}

func NewHandlerSet(log zerolog.Logger, deps Dependencies) HandlerSet {
	if deps.Auth == nil || deps.Users == nil || deps.Config == nil {
		panic("handlers: nil dependency")
	}
	limiter := deps.LoginLimit
	if limiter == nil {
		limiter = middleware.NewRateLimiter(0, 0)
	}
	return HandlerSet{
		log:         log,
		auth:        deps.Auth,
		users:       deps.Users,
		config:      deps.Config,
		branding:    deps.Branding,
		loginLimit:  limiter,
		checks:      deps.Checks,
		environment: deps.Environment,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	v1.GET("/site", h.Site)
	v1.POST("/auth/login", h.loginLimit.Middleware(), h.Login)

	protected := v1.Group("")
	protected.Use(middleware.Auth(h.auth, h.log))
	{
		authGroup := protected.Group("/auth")
		authGroup.POST("/logout", h.Logout)
		authGroup.POST("/heartbeat", h.Heartbeat)
		authGroup.GET("/me", h.Me)
		authGroup.GET("/sessions", h.ListSessions)
		authGroup.POST("/password", h.ChangePassword)

		protected.GET("/config", h.GetConfig)
		admin := protected.Group("/config", middleware.RequireRole(models.UserRoleAdmin))
		admin.PUT("", h.UpdateConfig)
		admin.POST("/branding/:kind", h.UploadBranding)

		usersGroup := protected.Group("/users")
		usersGroup.GET("", h.ListUsers)
		usersGroup.GET("/stats", h.UserStats)
		usersGroup.GET("/:id", h.GetUser)
		usersGroup.POST("", middleware.RequireRole(models.UserRoleSuperAdmin), h.CreateUser)
		usersGroup.PATCH("/:id", h.UpdateUser)
		usersGroup.POST("/:id/password", middleware.RequireRole(models.UserRoleSuperAdmin), h.ResetPassword)
	}
}
