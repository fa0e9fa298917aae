// Package config defines the configuration for the fieldwatch alert engine.
// Configuration is loaded once at process start and is immutable thereafter.
// Values come from the OS environment, topped up from a .env file when one
// exists in the working directory. Any missing required value or invalid
// format fails the process immediately on startup.
package config

import (
	"time"

	"fieldwatch/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used in configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration for the alert engine. Sub-components
// receive only the specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"fieldwatch-engine"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Database  DatabaseConfig
	Upstream  UpstreamConfig
	Scheduler SchedulerConfig
	Cache     CacheConfig
	Dispatch  DispatchConfig
	AWS       AWSConfig
	Ops       OpsConfig

	// Build metadata, injected via ldflags rather than the environment.
	Build BuildInfo
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2" validate:"min=0"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`

	// InitRetries is how many immediate connection attempts startup makes
	// before giving up; only a failure after all of them is fatal.
	InitRetries int `envconfig:"DB_INIT_RETRIES" default:"3" validate:"min=1"`
}

// UpstreamConfig holds the observation provider client settings.
type UpstreamConfig struct {
	BaseURL string       `envconfig:"OBSERVATION_BASE_URL" validate:"required,url"`
	APIKey  SecretString `envconfig:"OBSERVATION_API_KEY"`

	// Timeout bounds a single observation fetch; a timeout is treated as a
	// cache MISS, never an error that surfaces to the scheduler.
	Timeout    time.Duration `envconfig:"OBSERVATION_TIMEOUT" default:"5s" validate:"min=1s"`
	MaxRetries int           `envconfig:"OBSERVATION_MAX_RETRIES" default:"2" validate:"min=0"`

	// RateLimit is the call quota per rolling RateWindow across all alerts.
	RateLimit  int           `envconfig:"OBSERVATION_RATE_LIMIT" default:"100" validate:"min=1"`
	RateWindow time.Duration `envconfig:"OBSERVATION_RATE_WINDOW" default:"1h" validate:"min=1m"`
}

// SchedulerConfig holds the evaluation cycle timing and sizing knobs.
type SchedulerConfig struct {
	Interval time.Duration `envconfig:"SCHEDULER_INTERVAL" default:"30m" validate:"min=1m"`

	// Jitter is the maximum random offset added to or subtracted from each
	// tick so multiple instances do not stampede the provider together.
	Jitter time.Duration `envconfig:"SCHEDULER_JITTER" default:"3m" validate:"min=0"`

	// StartupDelayMax caps the random delay before the first cycle.
	StartupDelayMax time.Duration `envconfig:"SCHEDULER_STARTUP_DELAY_MAX" default:"2m" validate:"min=0"`

	BatchSize       int           `envconfig:"SCHEDULER_BATCH_SIZE" default:"10" validate:"min=1"`
	BatchPause      time.Duration `envconfig:"SCHEDULER_BATCH_PAUSE" default:"2s" validate:"min=0"`
	EvalConcurrency int           `envconfig:"SCHEDULER_EVAL_CONCURRENCY" default:"5" validate:"min=1"`

	DispatchWorkers int           `envconfig:"SCHEDULER_DISPATCH_WORKERS" default:"4" validate:"min=1"`
	DrainTimeout    time.Duration `envconfig:"SCHEDULER_DRAIN_TIMEOUT" default:"10s" validate:"min=1s"`

	// LeaseEnabled turns on the best-effort database cycle lease used to
	// keep multiple instances from running overlapping cycles.
	LeaseEnabled bool   `envconfig:"SCHEDULER_LEASE_ENABLED" default:"true"`
	LeaseName    string `envconfig:"SCHEDULER_LEASE_NAME" default:"alert-cycle"`
}

// CacheConfig holds TTLs and windows for the in-memory caches.
type CacheConfig struct {
	WeatherTTL time.Duration `envconfig:"CACHE_WEATHER_TTL" default:"10m" validate:"min=1m"`

	// WeatherGrace extends how long an expired observation may still be
	// served, flagged stale, when the provider is unavailable.
	WeatherGrace  time.Duration `envconfig:"CACHE_WEATHER_GRACE" default:"30m" validate:"min=0"`
	LocationTTL   time.Duration `envconfig:"CACHE_LOCATION_TTL" default:"1h" validate:"min=1m"`
	SweepInterval time.Duration `envconfig:"CACHE_SWEEP_INTERVAL" default:"10m" validate:"min=1m"`

	// Cooldown is the in-memory suppression window after a dispatch,
	// independent of the alert's frequency policy.
	Cooldown time.Duration `envconfig:"COOLDOWN_WINDOW" default:"45m" validate:"min=30m,max=1h"`
}

// DispatchConfig holds notification handoff settings. An empty QueueURL
// selects the logging dispatcher, which is only sensible outside prod.
type DispatchConfig struct {
	QueueURL string `envconfig:"SQS_DISPATCH_QUEUE"`

	// MetricsNamespace is the CloudWatch namespace for engine heartbeat
	// metrics. Empty disables CloudWatch publishing.
	MetricsNamespace string `envconfig:"CLOUDWATCH_NAMESPACE" default:"Fieldwatch/Engine"`
}

// AWSConfig holds regional configuration shared by the SQS and CloudWatch
// clients.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// EndpointURL points the SDK at LocalStack in development. Empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// OpsConfig holds the operational HTTP surface settings.
type OpsConfig struct {
	Port            string        `envconfig:"OPS_PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"OPS_SHUTDOWN_TIMEOUT" default:"5s"`
}
