// Package app assembles the console services from an AppConfig. It is shared
// by the API server, the maintenance worker and the admin commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"hfcloud/console/internal/auth"
	"hfcloud/console/internal/branding"
	"hfcloud/console/internal/cache"
	"hfcloud/console/internal/config"
	"hfcloud/console/internal/credentials"
	"hfcloud/console/internal/database"
	"hfcloud/console/internal/handlers"
	"hfcloud/console/internal/middleware"
	"hfcloud/console/internal/models"
	"hfcloud/console/internal/repository"
	"hfcloud/console/internal/repository/memory"
	"hfcloud/console/internal/security"
	"hfcloud/console/internal/sessions"
	"hfcloud/console/internal/storage"
	"hfcloud/console/internal/sysconfig"
	"hfcloud/console/internal/tasks"
	"hfcloud/console/internal/users"
)

const devJWTSecret = "hfcloud-development-secret"

type App struct {
	Config *config.AppConfig
	Log    zerolog.Logger

	Pool    *pgxpool.Pool        // nil with the memory driver
	Redis   *redis.Client        // nil when redis.addr is empty
	Objects *storage.ObjectStore // nil when storage.endpoint is empty

	UserStore   repository.UserStore
	Credentials *credentials.Store
	Sessions    *sessions.Manager
	Resolver    *sysconfig.Resolver
	Auth        *auth.Service
	Users       *users.Service
	Branding    *branding.Service // nil without object storage
	Processor   *tasks.Processor
}

// New connects to the configured backends and builds the services. The
// caller owns the returned App and must Close it.
func New(ctx context.Context, cfg *config.AppConfig, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	var (
		sessionStore repository.SessionStore
		configStore  repository.ConfigStore
		configCache  repository.ConfigCache
	)

	switch cfg.Datastore.Driver {
	case config.DriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.Pool = pool
		a.UserStore = repository.NewUserRepository(pool)
		sessionStore = repository.NewSessionRepository(pool)
		configStore = repository.NewConfigRepository(pool)
	case config.DriverMemory:
		log.Warn().Msg("using in-memory datastore, data is lost on restart")
		a.UserStore = memory.NewUserStore()
		sessionStore = memory.NewSessionStore()
		configStore = memory.NewConfigStore()
	default:
		return nil, fmt.Errorf("unknown datastore driver %q", cfg.Datastore.Driver)
	}

	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.Redis = client
		configCache = cache.NewConfigCache(client, cfg.Redis.CacheKey)
	} else {
		configCache = memory.NewConfigCache()
	}

	if cfg.Storage.Endpoint != "" {
		objects, err := storage.NewObjectStore(cfg.Storage)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init object store: %w", err)
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			log.Warn().Err(err).Str("bucket", cfg.Storage.Bucket).Msg("ensure bucket failed")
		}
		a.Objects = objects
	}

	secret := cfg.Security.JWTSecret
	if secret == "" {
		log.Warn().Msg("security.jwtsecret is empty, using the development secret")
		secret = devJWTSecret
	}

	a.Credentials = credentials.NewStore(a.UserStore, security.NewHasher(security.DefaultParams), cfg.Security.PasswordMinLength, log)
	a.Sessions = sessions.NewManager(sessionStore, log,
		sessions.WithIdleTimeout(cfg.Sessions.IdleTimeout),
		sessions.WithLimits(sessions.Limits{
			SuperAdmin: cfg.Sessions.SuperAdminDevices,
			Admin:      cfg.Sessions.AdminDevices,
			User:       cfg.Sessions.UserDevices,
		}),
	)
	a.Resolver = sysconfig.NewResolver(configStore, configCache, SiteDefaults(cfg.Site), log)
	a.Auth = auth.NewService(a.Credentials, a.Sessions, a.UserStore, security.NewTokenIssuer(secret, cfg.Security.AccessTokenTTL), log)
	a.Users = users.NewService(a.UserStore, a.Credentials, a.Sessions, log)
	if a.Objects != nil {
		a.Branding = branding.NewService(a.Objects, a.Resolver, cfg.Storage.MaxUploadSize, log)
	}
	a.Processor = tasks.NewProcessor(a.Sessions, a.Resolver, log)

	return a, nil
}

// SiteDefaults converts the site section into the SystemConfig served before
// anything has been persisted.
func SiteDefaults(site config.SiteConfig) models.SystemConfig {
	return models.SystemConfig{
		SystemName:      site.SystemName,
		LogoURL:         site.LogoURL,
		LogoSize:        site.LogoSize,
		FaviconURL:      site.FaviconURL,
		AdminEmail:      site.AdminEmail,
		Announcement:    site.Announcement,
		MaintenanceMode: site.MaintenanceMode,
	}
}

// Seed creates the bootstrap super administrator if no account exists yet.
func (a *App) Seed(ctx context.Context) error {
	boot := a.Config.Bootstrap
	if boot.Password == "" {
		return nil
	}

	existing, err := a.UserStore.List(ctx, repository.UserFilter{})
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	user, err := a.Users.Bootstrap(ctx, users.CreateInput{
		Username: boot.Username,
		Email:    boot.Email,
		Password: boot.Password,
		Role:     models.UserRoleSuperAdmin,
	})
	if err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return nil
		}
		return fmt.Errorf("seed super admin: %w", err)
	}
	a.Log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("seeded super administrator")
	return nil
}

// Handlers builds the HTTP handler set over the app's services.
func (a *App) Handlers() handlers.HandlerSet {
	checks := map[string]handlers.HealthCheck{}
	if a.Pool != nil {
		checks["database"] = a.Pool.Ping
	}
	if a.Redis != nil {
		checks["cache"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	if a.Objects != nil {
		checks["storage"] = a.Objects.Ping
	}

	return handlers.NewHandlerSet(a.Log, handlers.Dependencies{
		Auth:        a.Auth,
		Users:       a.Users,
		Config:      a.Resolver,
		Branding:    a.Branding,
		LoginLimit:  middleware.NewRateLimiter(a.Config.Security.LoginRatePerMin, a.Config.Security.LoginBurst),
		Checks:      checks,
		Environment: a.Config.Environment,
	})
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Error().Err(err).Msg("redis close error")
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
