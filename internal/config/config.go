package config

import (
	"fmt"
	"time"
	_ "time/tzdata" // TOKEN_TIMEZONE must resolve without system zoneinfo

	"github.com/cockroachdb/errors"
	"github.com/kelseyhightower/envconfig"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	Server ServerConfig
	DB     DBConfig
	Log    LogConfig
	Store  StoreConfig
	Cache  CacheConfig
	Token  TokenConfig
	Notify NotifyConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string `envconfig:"SERVER_PORT" default:"3000"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT" default:"30"` // seconds
}

// DBConfig holds database-related configuration.
// WARNING: Default password is for local development only.
// In production, always set DB_PASSWORD via environment variable.
type DBConfig struct {
	Host       string `envconfig:"DB_HOST" default:"localhost"`
	Port       int    `envconfig:"DB_PORT" default:"5432"`
	User       string `envconfig:"DB_USER" default:"postgres"`
	Password   string `envconfig:"DB_PASSWORD" default:"postgres"`
	Name       string `envconfig:"DB_NAME" default:"token_db"`
	SSLMode    string `envconfig:"DB_SSLMODE" default:"disable"`
	MaxConns   int    `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns   int    `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxRetries int    `envconfig:"DB_MAX_RETRIES" default:"5"`
}

// DSN returns the PostgreSQL connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d&pool_min_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode, c.MaxConns, c.MinConns)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// StoreConfig selects and bounds the token store.
type StoreConfig struct {
	Backend string `envconfig:"STORE_BACKEND" default:"postgres"`
	Timeout int    `envconfig:"STORE_TIMEOUT" default:"5"` // seconds, per store call
}

// TimeoutDuration returns Timeout as a duration.
func (c StoreConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// CacheConfig bounds listing staleness.
type CacheConfig struct {
	TTL  int `envconfig:"CACHE_TTL" default:"30"` // seconds, 0 disables
	Size int `envconfig:"CACHE_SIZE" default:"16"`
}

// TTLDuration returns TTL as a duration.
func (c CacheConfig) TTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// TokenConfig holds issuance and redemption policy.
type TokenConfig struct {
	IDLength      int    `envconfig:"TOKEN_ID_LENGTH" default:"10"`
	Timezone      string `envconfig:"TOKEN_TIMEZONE" default:"UTC"`
	CompareAndSet bool   `envconfig:"REDEEM_COMPARE_AND_SET" default:"true"`
	VerifyPayload bool   `envconfig:"REDEEM_VERIFY_PAYLOAD" default:"true"`
}

// Location resolves Timezone.
func (c TokenConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// NotifyConfig holds QR rendering and e-mail delivery settings.
// Delivery is disabled while ResendAPIKey is empty.
type NotifyConfig struct {
	ResendAPIKey  string `envconfig:"RESEND_API_KEY"`
	ResendBaseURL string `envconfig:"RESEND_BASE_URL" default:"https://api.resend.com"`
	From          string `envconfig:"NOTIFY_FROM" default:"Allowance Tokens <tokens@example.com>"`
	Timeout       int    `envconfig:"NOTIFY_TIMEOUT" default:"10"` // seconds
	QRSize        int    `envconfig:"QR_SIZE" default:"256"`
}

// Load parses environment variables into the Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the application cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendPostgres, BackendMemory:
	default:
		return errors.Newf("STORE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, c.Store.Backend)
	}
	if c.Store.Timeout < 1 {
		return errors.Newf("STORE_TIMEOUT must be at least 1 second, got %d", c.Store.Timeout)
	}
	if c.Cache.TTL < 0 {
		return errors.Newf("CACHE_TTL must not be negative, got %d", c.Cache.TTL)
	}
	if c.Token.IDLength < 8 || c.Token.IDLength > 12 {
		return errors.Newf("TOKEN_ID_LENGTH must be between 8 and 12, got %d", c.Token.IDLength)
	}
	if _, err := c.Token.Location(); err != nil {
		return errors.Wrap(err, "TOKEN_TIMEZONE")
	}
	if c.Notify.QRSize < 64 {
		return errors.Newf("QR_SIZE must be at least 64, got %d", c.Notify.QRSize)
	}
	return nil
}
