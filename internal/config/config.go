package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatastoreConfig struct {
	Driver string
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

// RedisConfig leaves Addr empty to run without redis; the config cache then
// lives in process memory and maintenance tasks run inline.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
	Consumer string
	CacheKey string
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	Region        string
	PublicBaseURL string
	MaxUploadSize int64
}

type SecurityConfig struct {
	JWTSecret         string
	AccessTokenTTL    time.Duration
	PasswordMinLength int
	LoginRatePerMin   int
	LoginBurst        int
}

type SessionsConfig struct {
	IdleTimeout           time.Duration
	SuperAdminDevices     int
	AdminDevices          int
	UserDevices           int
	SweepSchedule         string
	ConfigRefreshSchedule string
}

type QueueConfig struct {
	ClaimInterval time.Duration
}

type LoggingConfig struct {
	Level string
}

// SiteConfig seeds the SystemConfig defaults served before anything is persisted.
type SiteConfig struct {
	SystemName      string
	LogoURL         string
	LogoSize        int
	FaviconURL      string
	AdminEmail      string
	Announcement    string
	MaintenanceMode bool
}

// BootstrapConfig seeds a super administrator when the user table is empty.
// Leaving Password empty disables seeding.
type BootstrapConfig struct {
	Username string
	Password string
	Email    string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	TLS              TLSConfig
	Datastore        DatastoreConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Sessions         SessionsConfig
	Queue            QueueConfig
	Logging          LoggingConfig
	Site             SiteConfig
	Bootstrap        BootstrapConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	return LoadFile("")
}

// LoadFile reads the given config file, or searches the default locations when
// path is empty.
func LoadFile(path string) (*AppConfig, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
	}

	v.SetEnvPrefix("HFCLOUD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

func (c *AppConfig) Validate() error {
	switch c.Datastore.Driver {
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("config: postgres.dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown datastore driver %q", c.Datastore.Driver)
	}

	if c.Security.JWTSecret == "" && c.Environment != "development" {
		return errors.New("config: security.jwtsecret is required")
	}

	if c.Sessions.SuperAdminDevices < 1 || c.Sessions.AdminDevices < 1 || c.Sessions.UserDevices < 1 {
		return errors.New("config: device limits must be at least 1")
	}
	if c.Sessions.IdleTimeout <= 0 {
		return errors.New("config: sessions.idletimeout must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("datastore.driver", DriverPostgres)

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "console:maintenance")
	v.SetDefault("redis.group", "console-workers")
	v.SetDefault("redis.consumer", "worker-1")
	v.SetDefault("redis.cachekey", "console:system_config")

	v.SetDefault("storage.bucket", "hfcloud-branding")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.maxuploadsize", 1<<20)

	v.SetDefault("security.accesstokenttl", "24h")
	v.SetDefault("security.passwordminlength", 6)
	v.SetDefault("security.loginratepermin", 20)
	v.SetDefault("security.loginburst", 5)

	v.SetDefault("sessions.idletimeout", "24h")
	v.SetDefault("sessions.superadmindevices", 10)
	v.SetDefault("sessions.admindevices", 10)
	v.SetDefault("sessions.userdevices", 1)
	v.SetDefault("sessions.sweepschedule", "0 0 * * * *") // hourly
	v.SetDefault("sessions.configrefreshschedule", "0 30 3 * * *")

	v.SetDefault("queue.claiminterval", "30s")

	v.SetDefault("logging.level", "")

	v.SetDefault("site.systemname", "HFCloud Edge Platform")
	v.SetDefault("site.logourl", "/logo.png")
	v.SetDefault("site.logosize", 32)
	v.SetDefault("site.faviconurl", "/favicon.ico")
	v.SetDefault("site.adminemail", "admin@hfcloud.com")
	v.SetDefault("site.announcement", "")
	v.SetDefault("site.maintenancemode", false)

	v.SetDefault("bootstrap.username", "admin")
	v.SetDefault("bootstrap.password", "")
	v.SetDefault("bootstrap.email", "")

	v.SetDefault("allowcorsorigins", []string{})
}
