// Package config provides centralized configuration management for the
// loader. It reads environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	Clean    CleanConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of pooled connections (default: 8)
	MaxConns int `env:"DB_MAX_CONNS" default:"8"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
}

// CleanConfig holds pipeline settings.
type CleanConfig struct {
	// MetadataDir is the directory holding tables.json and table-dtypes/
	MetadataDir string `env:"EOIR_METADATA_DIR" default:"metadata"`

	// SampleSize caps the audit reservoir per file (default: 100)
	SampleSize int `env:"EOIR_AUDIT_SAMPLE_SIZE" default:"100"`

	// MaxConcurrent bounds how many files clean in parallel (default: 2).
	// Each file gets its own pipeline and its own transaction.
	MaxConcurrent int `env:"EOIR_MAX_CONCURRENT_FILES" default:"2"`

	// Postfix is the default staging-table postfix, MM_YY. Empty means the
	// caller must supply one on the command line.
	Postfix string `env:"EOIR_TABLE_POSTFIX"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}
