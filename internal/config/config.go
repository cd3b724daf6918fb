// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Import       ImportConfig
	Security     SecurityConfig
	Logging      LoggingConfig
	Notification NotificationConfig
	Metrics      MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`

	// Port is the port to listen on
	Port int `env:"SERVER_PORT" envDefault:"8080"`

	// ReadTimeout is the maximum duration for reading the request body
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`

	// WriteTimeout is the maximum duration for writing the response
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"5m"`

	// IdleTimeout is the keep-alive timeout
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// RequestTimeout is the middleware timeout for non-import requests
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" envDefault:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. DB_URL is accepted as well.
	URL string `env:"DATABASE_URL"`

	// InMemory runs against an in-memory store instead of PostgreSQL.
	InMemory bool `env:"DB_IN_MEMORY" envDefault:"false"`

	// Migrate applies the embedded schema on startup
	Migrate bool `env:"DB_MIGRATE" envDefault:"true"`

	MaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"20"`
	MinConns        int32         `env:"DB_MIN_CONNS" envDefault:"4"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
}

// ImportConfig holds spreadsheet import settings.
type ImportConfig struct {
	// MaxFileSize is the maximum accepted file size in bytes (default: 20MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" envDefault:"20971520"`

	// MaxConcurrent is the maximum number of imports running at once
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" envDefault:"4"`

	// MaxWaitTime is how long an import waits for a free slot
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" envDefault:"30s"`

	// AllOrNothing is the default for requests that do not set it
	AllOrNothing bool `env:"IMPORT_ALL_OR_NOTHING" envDefault:"false"`

	// Timeout bounds a single import
	Timeout time.Duration `env:"IMPORT_TIMEOUT" envDefault:"5m"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// APIKeys maps API keys to role names: "key1=Administrator,key2=Reader"
	APIKeys map[string]string `env:"API_KEYS" envSeparator:"," envKeyValSeparator:"="`

	// RequireAPIKey rejects requests without a known X-API-Key header
	RequireAPIKey bool `env:"REQUIRE_API_KEY" envDefault:"false"`

	// DefaultRole is used for requests without a key when keys are optional
	DefaultRole string `env:"DEFAULT_ROLE" envDefault:"Administrator"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error
	Level string `env:"LOG_LEVEL" envDefault:"info"`

	// Format is the log format: text or json
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// NotificationConfig holds email notification settings.
type NotificationConfig struct {
	// DigestSchedule is the cron spec of the daily digest; empty disables it
	DigestSchedule string `env:"NOTIFY_DIGEST_SCHEDULE" envDefault:"0 7 * * *"`

	// Sender is the From address of outgoing mail
	Sender string `env:"NOTIFY_SENDER" envDefault:"grc@localhost"`

	// BaseURL prefixes object links in email bodies
	BaseURL string `env:"NOTIFY_BASE_URL" envDefault:"http://localhost:8080/"`

	// CycleDueDays warns about cycles due within this many days
	CycleDueDays int `env:"NOTIFY_CYCLE_DUE_DAYS" envDefault:"3"`

	// CycleStartingDays warns about cycles starting within this many days
	CycleStartingDays int `env:"NOTIFY_CYCLE_STARTING_DAYS" envDefault:"7"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	Path    string `env:"METRICS_PATH" envDefault:"/metrics"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
