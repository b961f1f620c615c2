// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Loader functions accept context.Context as the first parameter.
// - Validation failures are reported as ErrInvalidConfig.
package config

import (
	"context"
	"time"
)

// Store drivers accepted by db_driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// DBDriver picks the store backend.
	DBDriver string `koanf:"db_driver" validate:"oneof=sqlite postgres memory"`

	// DBDSN is the driver data source; ignored by the memory driver.
	DBDSN string `koanf:"db_dsn" validate:"required_unless=DBDriver memory"`

	// JWTSecret verifies HS256 bearer tokens issued by the hosted backend.
	JWTSecret string `koanf:"jwt_secret" validate:"required,min=16"`

	// ProvisionalThreshold is the voted/assigned ratio below which a result is provisional.
	ProvisionalThreshold float64 `koanf:"provisional_threshold" validate:"gt=0,lte=1"`

	// AuditQueueSize bounds the in-memory audit queue.
	AuditQueueSize int `koanf:"audit_queue_size" validate:"gte=1"`

	// AuditWorkers sets the number of audit writers.
	AuditWorkers int `koanf:"audit_workers" validate:"gte=1,lte=64"`

	// SaveRatePerSecond and SaveBurst limit evaluation saves per judge. Zero rate disables the limit.
	SaveRatePerSecond float64 `koanf:"save_rate_per_second" validate:"gte=0"`
	SaveBurst         int     `koanf:"save_burst" validate:"gte=1"`

	// MaxAuditLimit caps GET /v1/audit?limit.
	MaxAuditLimit int `koanf:"max_audit_limit" validate:"gte=1"`

	// ShutdownTimeoutMS bounds graceful shutdown of the HTTP server and the audit drain.
	ShutdownTimeoutMS int `koanf:"shutdown_timeout_ms" validate:"gte=1"`
}

// New creates a Config with defaults. Context is accepted first to satisfy the
// project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		DBDriver:             DriverSQLite,
		DBDSN:                "file:stark.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		ProvisionalThreshold: 0.5,
		AuditQueueSize:       1024,
		AuditWorkers:         2,
		SaveRatePerSecond:    5,
		SaveBurst:            10,
		MaxAuditLimit:        200,
		ShutdownTimeoutMS:    10_000,
	}
}

// ShutdownTimeout returns ShutdownTimeoutMS as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}
