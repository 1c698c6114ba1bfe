// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development, except for
// the token signing secret, which must always be supplied.
package config

import (
	"errors"
	"fmt"
	"net"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-sql-driver/mysql"
)

// Supported database drivers for the user directory.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// minProductionSecretLen is the shortest JWT_SECRET accepted in production.
const minProductionSecretLen = 32

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string `env:"ENV" envDefault:"development"`

	// Port is the HTTP listen port (default: 8080).
	Port int `env:"PORT" envDefault:"8080"`

	// BaseURL is the public-facing URL used for CORS and redirects.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string `env:"LOG_LEVEL" envDefault:"debug"`

	// TrustedProxies lists the CIDR ranges whose forwarding headers are
	// believed when resolving the client IP.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:"," envDefault:"127.0.0.0/8,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,fd00::/8"`

	// Database holds user directory connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings (browser sessions).
	Redis RedisConfig

	// Auth holds authentication-related settings.
	Auth AuthConfig

	// Seed describes an optional bootstrap account created at startup.
	Seed SeedConfig

	// Import holds CSV import settings.
	Import ImportConfig
}

// DatabaseConfig holds user directory connection parameters. Individual
// fields (Host, User, Password, Name) are read from separate env vars so
// container orchestrators can manage each independently. If DATABASE_URL is
// set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Driver selects the backing store: "mysql" (MariaDB) or "sqlite".
	Driver string `env:"DB_DRIVER" envDefault:"mysql"`

	// Host is the MariaDB address in host:port format. If no port is
	// specified, 3306 is appended automatically.
	Host string `env:"DB_HOST" envDefault:"localhost:3306"`

	User     string `env:"DB_USER" envDefault:"userdir"`
	Password string `env:"DB_PASSWORD" envDefault:"userdir"`
	Name     string `env:"DB_NAME" envDefault:"userdir"`

	// URL overrides the DSN built from the individual fields.
	URL string `env:"DATABASE_URL"`

	// Path is the SQLite database file, used when Driver is "sqlite".
	Path string `env:"DB_PATH" envDefault:"var/userdir.db"`

	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// Host/User/Password/Name fields using the driver's Config.FormatDSN()
// to safely handle special characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.MultiStatements = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`

	// PoolSize overrides go-redis' default pool size when positive.
	PoolSize int `env:"REDIS_POOL_SIZE" envDefault:"0"`

	// OpTimeout bounds each read and write against Redis.
	OpTimeout time.Duration `env:"REDIS_TIMEOUT" envDefault:"2s"`
}

// AuthConfig holds authentication settings. The signing secret is read once
// here and never reloaded; rotating it requires a restart and invalidates
// every token issued before.
type AuthConfig struct {
	// JWTSecret is the HMAC key used to sign and verify bearer tokens.
	JWTSecret string `env:"JWT_SECRET"`

	// TokenTTL is the fixed lifetime of every issued bearer token.
	TokenTTL time.Duration `env:"JWT_TTL" envDefault:"24h"`

	// SessionTTL is the idle timeout of a browser session. Each
	// authenticated request pushes the expiry forward.
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"30m"`

	// BcryptCost is the bcrypt work factor for password hashes.
	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`

	// HashWorkers bounds concurrent hash computations. Zero means one per CPU.
	HashWorkers int `env:"HASH_WORKERS" envDefault:"0"`

	// PublicPaths lists paths that bypass authentication. Entries ending in
	// "/" match as prefixes, everything else matches exactly.
	PublicPaths []string `env:"PUBLIC_PATHS" envSeparator:"," envDefault:"/login,/logout,/error,/healthz,/static/,/css/,/js/,/images/,/api/auth/login,/api/auth/register"`

	// DirectoryTimeout bounds the per-request principal lookup.
	DirectoryTimeout time.Duration `env:"DIRECTORY_TIMEOUT" envDefault:"3s"`
}

// SeedConfig describes an account created at startup when it doesn't exist.
// Seeding is skipped unless both email and password are set.
type SeedConfig struct {
	Email    string `env:"SEED_ADMIN_EMAIL"`
	Password string `env:"SEED_ADMIN_PASSWORD"`
	Name     string `env:"SEED_ADMIN_NAME" envDefault:"Administrator"`
}

// Enabled reports whether a seed account was configured.
func (s SeedConfig) Enabled() bool {
	return s.Email != "" && s.Password != ""
}

// ImportConfig holds CSV import settings.
type ImportConfig struct {
	// DefaultPassword is assigned to imported rows that carry only a name
	// and an email. Empty means such rows are skipped.
	DefaultPassword string `env:"IMPORT_DEFAULT_PASSWORD"`
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing or invalid. A missing
// signing secret is always fatal: the server must never issue tokens signed
// with a predictable key.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Auth.HashWorkers <= 0 {
		cfg.Auth.HashWorkers = runtime.NumCPU()
	}

	return cfg, nil
}

// validate checks the invariants Load cannot express with struct tags.
func (c *Config) validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.IsProduction() && len(c.Auth.JWTSecret) < minProductionSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in production", minProductionSecretLen)
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}
	if c.Auth.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}

	switch c.Database.Driver {
	case DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverMySQL, DriverSQLite, c.Database.Driver)
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// IsProduction returns true for "production" and common variants like "prod".
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}
