// Package config provides centralized configuration management for chargeflow.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Environments recognised by ENVIRONMENT.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Pipeline PipelineConfig
	Export   ExportConfig
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

	// WriteTimeout is the maximum duration for writing response (default: 10m, loads can be slow)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"10m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// MaxUploadSize is the largest CSV accepted by POST /api/load (default: 100MB)
	MaxUploadSize int64 `env:"SERVER_MAX_UPLOAD_SIZE" default:"104857600"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// PipelineConfig holds load / transform / extract settings.
type PipelineConfig struct {
	// Environment is development, production or testing (default: development)
	Environment string `env:"ENVIRONMENT" default:"development"`

	// BatchSize is the number of rows inserted per loader transaction (default: 1000)
	BatchSize int `env:"BATCH_SIZE" default:"1000"`

	// ChunkSize is the number of rows read per query during extraction (default: 10000)
	ChunkSize int `env:"CHUNK_SIZE" default:"10000"`

	// ValidationLevel is strict or lenient (default: strict).
	// Lenient skips loader validation unless a request asks for it.
	ValidationLevel string `env:"VALIDATION_LEVEL" default:"strict"`

	// ErrorThreshold is the share of invalid rows that flags a load (default: 0.05)
	ErrorThreshold float64 `env:"ERROR_THRESHOLD" default:"0.05"`

	// InputDir is where relative load paths are resolved (default: ./data/input)
	InputDir string `env:"INPUT_DATA_PATH" default:"./data/input"`

	// OutputDir is where extracted files are written (default: ./data/output)
	OutputDir string `env:"OUTPUT_DATA_PATH" default:"./data/output"`

	// RulesFile is an optional YAML file of business-rule toggles
	RulesFile string `env:"RULES_FILE"`

	// HistoryPath is the SQLite file holding the run ledger (default: ./data/history.db)
	HistoryPath string `env:"HISTORY_DB_PATH" default:"./data/history.db"`

	// RunTimeout bounds a single pipeline run (default: 30m)
	RunTimeout time.Duration `env:"PIPELINE_RUN_TIMEOUT" default:"30m"`

	// WaitTime is how long a run waits for the run slot (default: 0, fail fast)
	WaitTime time.Duration `env:"PIPELINE_WAIT_TIME" default:"0s"`
}

// IsStrict reports whether loader validation is on by default.
func (c *PipelineConfig) IsStrict() bool {
	return c.ValidationLevel == "strict"
}

// ExportConfig holds extraction output settings.
type ExportConfig struct {
	// Delimiter is the CSV field separator (default: ,)
	Delimiter string `env:"EXPORT_DELIMITER" default:","`

	// IncludeHeader writes a header row to CSV output (default: true)
	IncludeHeader bool `env:"EXPORT_INCLUDE_HEADER" default:"true"`

	// DateLayout formats timestamps in CSV and xlsx output (default: 2006-01-02 15:04:05)
	DateLayout string `env:"EXPORT_DATE_LAYOUT" default:"2006-01-02 15:04:05"`

	// Compression is the parquet codec: snappy, gzip, zstd, brotli or none (default: snappy)
	Compression string `env:"EXPORT_COMPRESSION" default:"snappy"`

	// PublishURL is an optional s3:// or gs:// prefix extracted files are copied to
	PublishURL string `env:"EXPORT_PUBLISH_URL"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// APIKeys is a comma-separated list of keys accepted in X-API-Key
	APIKeys []string `env:"API_KEYS"`

	// RequireAPIKey rejects /api requests without a valid key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// TrustedProxies lists CIDRs whose X-Real-IP / X-Forwarded-For headers are honoured
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RateLimit is the number of API requests allowed per client per minute (default: 120)
	RateLimit int `env:"RATE_LIMIT_PER_MINUTE" default:"120"`
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
