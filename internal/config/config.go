// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Blob storage backends.
const (
	BlobBackendS3     = "s3"
	BlobBackendGCS    = "gcs"
	BlobBackendMemory = "memory"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL        string        `env:"DATABASE_URL,required"`
	DBMaxConns         int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns         int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBStatementTimeout time.Duration `env:"DB_STATEMENT_TIMEOUT" envDefault:"30s"`

	// Cache (Redis). Empty disables run events and the scheduler lock.
	RedisURL string `env:"REDIS_URL" envDefault:""`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Tracing. Empty endpoint keeps spans in-process (trace ids still flow).
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"sitereport"`

	// Server timeouts. Generation runs synchronously inside the request,
	// so the write timeout has to cover a full run.
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"5m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Client registry
	ClientsFile string `env:"CLIENTS_FILE" envDefault:"clients.toml"`

	// Traffic and security analytics (GraphQL)
	AnalyticsAPIURL   string `env:"ANALYTICS_API_URL" envDefault:"https://api.cloudflare.com/client/v4/graphql"`
	AnalyticsAPIToken string `env:"ANALYTICS_API_TOKEN"`

	// Page performance
	PageSpeedAPIURL   string  `env:"PAGESPEED_API_URL" envDefault:"https://www.googleapis.com/pagespeedonline/v5/runPagespeed"`
	PageSpeedAPIKey   string  `env:"PAGESPEED_API_KEY"`
	PageSpeedRPS      float64 `env:"PAGESPEED_RPS" envDefault:"2"`
	PageSpeedDetailed bool    `env:"PAGESPEED_DETAILED" envDefault:"true"`

	// Per-request timeout for every upstream call
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"60s"`

	// HTML to PDF conversion service
	PDFConverterURL string `env:"PDF_CONVERTER_URL" envDefault:"http://localhost:3000"`

	// Artifact storage
	BlobBackend        string `env:"BLOB_BACKEND" envDefault:"s3"`
	S3Bucket           string `env:"S3_BUCKET"`
	S3Region           string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint         string `env:"S3_ENDPOINT"`
	GCSBucket          string `env:"GCS_BUCKET"`
	GCSCredentialsFile string `env:"GCS_CREDENTIALS_FILE"`

	// Report shaping
	TopCategories    int `env:"TOP_CATEGORIES" envDefault:"5"`
	TopPaths         int `env:"TOP_PATHS" envDefault:"10"`
	MaxWarningLength int `env:"MAX_WARNING_LENGTH" envDefault:"300"`

	// Manual trigger rate limit per client (needs Redis). 0 disables.
	TriggerRatePerHour int `env:"TRIGGER_RATE_PER_HOUR" envDefault:"6"`
	TriggerBurst       int `env:"TRIGGER_BURST" envDefault:"2"`

	// Run notification webhook. Empty URL disables it.
	RunWebhookURL          string `env:"RUN_WEBHOOK_URL"`
	RunWebhookSecret       string `env:"RUN_WEBHOOK_SECRET"`
	RunWebhookOnlyFailures bool   `env:"RUN_WEBHOOK_ONLY_FAILURES" envDefault:"true"`

	// Scheduled trigger
	SchedulerEnabled bool `env:"SCHEDULER_ENABLED" envDefault:"false"`
	ScheduleDay      int  `env:"SCHEDULE_DAY" envDefault:"1"`
	ScheduleHour     int  `env:"SCHEDULE_HOUR" envDefault:"6"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	switch c.BlobBackend {
	case BlobBackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when BLOB_BACKEND=%s", BlobBackendS3)
		}
	case BlobBackendGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when BLOB_BACKEND=%s", BlobBackendGCS)
		}
	case BlobBackendMemory:
	default:
		return fmt.Errorf("unknown BLOB_BACKEND %q", c.BlobBackend)
	}

	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
	}
	if c.ScheduleDay < 1 || c.ScheduleDay > 28 {
		return fmt.Errorf("SCHEDULE_DAY must be between 1 and 28, got %d", c.ScheduleDay)
	}
	if c.ScheduleHour < 0 || c.ScheduleHour > 23 {
		return fmt.Errorf("SCHEDULE_HOUR must be between 0 and 23, got %d", c.ScheduleHour)
	}
	if c.TopCategories <= 0 || c.TopPaths <= 0 {
		return fmt.Errorf("TOP_CATEGORIES and TOP_PATHS must be positive")
	}
	if c.TriggerRatePerHour < 0 || c.TriggerBurst < 1 {
		return fmt.Errorf("TRIGGER_RATE_PER_HOUR must be >= 0 and TRIGGER_BURST >= 1")
	}
	if c.RunWebhookURL != "" && c.RunWebhookSecret == "" {
		return fmt.Errorf("RUN_WEBHOOK_SECRET is required when RUN_WEBHOOK_URL is set")
	}
	if c.MaxWarningLength <= 0 {
		return fmt.Errorf("MAX_WARNING_LENGTH must be positive")
	}
	return nil
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
