// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Storage  StorageConfig
	Parser   ParserConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0, unlimited)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds statement import pipeline settings.
type ImportConfig struct {
	// MaxFileSize is the maximum allowed statement size in bytes (default: 10MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"10485760"`

	// AllowedMIMETypes are the accepted content types, comma-separated
	AllowedMIMETypes []string `env:"IMPORT_ALLOWED_MIME_TYPES" default:"application/pdf,text/csv"`

	// AllowedExtensions are the accepted file extensions, comma-separated
	AllowedExtensions []string `env:"IMPORT_ALLOWED_EXTENSIONS" default:".pdf,.csv"`

	// BatchRetention is how long a finished batch stays queryable (default: 10m)
	BatchRetention time.Duration `env:"IMPORT_BATCH_RETENTION" default:"10m"`

	// StatusPollInterval is how often import status is polled (default: 2s)
	StatusPollInterval time.Duration `env:"IMPORT_STATUS_POLL_INTERVAL" default:"2s"`
}

// StorageConfig holds object storage settings for raw statement files.
type StorageConfig struct {
	// Endpoint is the object storage base URL (required)
	Endpoint string `env:"STORAGE_ENDPOINT" required:"true"`

	// Bucket is the bucket statements are written to (default: statements)
	Bucket string `env:"STORAGE_BUCKET" default:"statements"`

	// Token is the bearer token for the storage API
	Token string `env:"STORAGE_TOKEN"`

	// Timeout is the maximum duration for a single upload (default: 2m)
	Timeout time.Duration `env:"STORAGE_TIMEOUT" default:"2m"`
}

// ParserConfig holds settings for the external statement parsing service.
type ParserConfig struct {
	// TriggerURL is the endpoint that starts a parsing job (required)
	TriggerURL string `env:"PARSER_TRIGGER_URL" required:"true"`

	// APIKey authenticates trigger requests
	APIKey string `env:"PARSER_API_KEY"`

	// TriggerTimeout bounds the trigger request, not the job (default: 10s)
	TriggerTimeout time.Duration `env:"PARSER_TRIGGER_TIMEOUT" default:"10s"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ImportLimit is requests per minute for the import endpoint (default: 10)
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireParserAuth controls whether parser callbacks must present an API key (default: false)
	RequireParserAuth bool `env:"REQUIRE_PARSER_AUTH" default:"false"`

	// ParserCallbackKeys are accepted X-API-Key values for parser callbacks, comma-separated
	ParserCallbackKeys []string `env:"PARSER_CALLBACK_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
