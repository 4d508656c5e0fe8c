package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates all runtime settings required by the application.
type Config struct {
	AppName     string
	Environment string
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Identity    IdentityConfig
	Resolution  ResolutionConfig
	Routes      RoutesConfig
	Session     SessionConfig
	Audit       AuditConfig
	Context     ContextConfig
	Logger      LoggerConfig
	Migrations  MigrationsConfig
}

type HTTPConfig struct {
	Host          string
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	MaxConn       int
	EnableMetrics bool
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	SSLMode         string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// IdentityConfig covers the external providers and the synthetic credential.
type IdentityConfig struct {
	CredentialPepper       string
	OTPSecret              string
	OTPIssuer              string
	OIDCIssuer             string
	OIDCClientID           string
	PlaceholderEmailDomain string
}

type ResolutionConfig struct {
	Timeout           time.Duration
	BridgeTimeout     time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
	UpgradeOnFallback bool
}

type RoutesConfig struct {
	Login         string
	AccountStatus string
	AdminHome     string
	RiderHome     string
	CustomerHome  string
}

type SessionConfig struct {
	TTL           time.Duration
	RevocationTTL time.Duration
	CookieName    string
	BcryptCost    int
}

// AuditConfig drives the bbolt outbox used while postgres is unreachable.
type AuditConfig struct {
	OutboxPath   string
	SyncInterval time.Duration
	MaxRetry     int
	BatchSize    int
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type MigrationsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from environment variables (optionally .env)
// and applies sane defaults so the service can boot in any environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "rolegate"),
		Environment: getString("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Host:          getString("SERVER_HOST", "0.0.0.0"),
			Port:          getString("SERVER_PORT", "8080"),
			ReadTimeout:   getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:  getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:   getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			MaxConn:       getInt("SERVER_MAX_CONN", 0),
			EnableMetrics: getBool("SERVER_ENABLE_METRICS", false),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getString("DB_HOST", "localhost"),
			Port:            getString("DB_PORT", "5432"),
			Name:            getString("DB_NAME", "rolegate"),
			User:            getString("DB_USER", "rolegate"),
			Password:        os.Getenv("DB_PASSWORD"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			MaxConnLifetime: getDuration("DB_CONN_LIFETIME", time.Hour),
			SSLMode:         getString("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getString("REDIS_URL", "redis://localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		Identity: IdentityConfig{
			CredentialPepper:       os.Getenv("CREDENTIAL_PEPPER"),
			OTPSecret:              os.Getenv("OTP_JWT_SECRET"),
			OTPIssuer:              getString("OTP_JWT_ISSUER", "otp-provider"),
			OIDCIssuer:             os.Getenv("OIDC_ISSUER"),
			OIDCClientID:           os.Getenv("OIDC_CLIENT_ID"),
			PlaceholderEmailDomain: getString("IDENTITY_PLACEHOLDER_EMAIL_DOMAIN", "phone.invalid"),
		},
		Resolution: ResolutionConfig{
			Timeout:           getDuration("RESOLVE_TIMEOUT", 12*time.Second),
			BridgeTimeout:     getDuration("BRIDGE_TIMEOUT", 12*time.Second),
			RetryAttempts:     getInt("RESOLVE_RETRY_ATTEMPTS", 3),
			RetryDelay:        getDuration("RESOLVE_RETRY_DELAY", 500*time.Millisecond),
			UpgradeOnFallback: getBool("RESOLVE_UPGRADE_ON_FALLBACK", false),
		},
		Routes: RoutesConfig{
			Login:         getString("LOGIN_PATH", "/login"),
			AccountStatus: getString("ACCOUNT_STATUS_PATH", "/account-status"),
			AdminHome:     getString("ADMIN_HOME_PATH", "/admin"),
			RiderHome:     getString("RIDER_HOME_PATH", "/rider"),
			CustomerHome:  getString("CUSTOMER_HOME_PATH", "/customer"),
		},
		Session: SessionConfig{
			TTL:           getDuration("SESSION_TTL", 24*time.Hour),
			RevocationTTL: getDuration("TOKEN_REVOCATION_TTL", 24*time.Hour),
			CookieName:    getString("SESSION_COOKIE_NAME", "rg_session"),
			BcryptCost:    getInt("SESSION_BCRYPT_COST", 0),
		},
		Audit: AuditConfig{
			OutboxPath:   getString("AUDIT_OUTBOX_PATH", "./data/audit-outbox.db"),
			SyncInterval: getDuration("AUDIT_SYNC_INTERVAL", 30*time.Second),
			MaxRetry:     getInt("AUDIT_MAX_RETRY", 5),
			BatchSize:    getInt("AUDIT_BATCH_SIZE", 100),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 15*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		Migrations: MigrationsConfig{
			Enabled: getBool("RUN_MIGRATIONS", true),
			Path:    getString("MIGRATIONS_PATH", "./assets/migrations"),
		},
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = buildPostgresURL(cfg)
	}

	return cfg, nil
}

// Validate checks the settings the HTTP service cannot run without.
func (c *Config) Validate() error {
	if c.Identity.OTPSecret == "" && c.Identity.OIDCIssuer == "" {
		return fmt.Errorf("config: at least one of OTP_JWT_SECRET or OIDC_ISSUER must be set")
	}
	if c.Identity.CredentialPepper == "" {
		return fmt.Errorf("config: CREDENTIAL_PEPPER must be set")
	}
	if c.Resolution.RetryAttempts < 1 {
		return fmt.Errorf("config: RESOLVE_RETRY_ATTEMPTS must be at least 1")
	}
	return nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func buildPostgresURL(cfg *Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}
