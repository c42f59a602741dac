// Package config loads the service configuration from environment variables
// (prefix "TRONRELIC") and validates it before anything else starts.
package config

import (
	"time"

	"github.com/delphian/tronrelic-sub011/internal/pkg/validator"

	"github.com/kelseyhightower/envconfig"
)

// envPrefix is the environment variable prefix shared by all settings.
const envPrefix = "tronrelic"

// Config holds every runtime setting of the service.
type Config struct {
	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// TelemetryEnabled turns on OTLP telemetry export. The collector endpoint
	// is taken from the standard OTEL_* environment variables.
	TelemetryEnabled bool `envconfig:"TELEMETRY_ENABLED" default:"false"`

	// TronNodeURL is the TRON full node API root.
	TronNodeURL string `envconfig:"TRON_NODE_URL" default:"https://api.trongrid.io" validate:"required,url"`

	// TronRequestTimeout caps a single node HTTP request.
	TronRequestTimeout time.Duration `envconfig:"TRON_REQUEST_TIMEOUT" default:"10s"`

	// PollInterval is how long the feed waits between polls once it reaches
	// the chain head. TRON produces a block roughly every 3 seconds.
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"3s"`

	// RedisAddr enables Redis-backed checkpointing and the plugin cache when
	// non-empty. Without it the feed starts from the chain head on every boot
	// and plugins run with a no-op cache.
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisUsername string `envconfig:"REDIS_USERNAME"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// DelegationAmountTRX and StakeAmountTRX are the category thresholds: the
	// minimum TRX a delegation or stake must move to be flagged.
	DelegationAmountTRX float64 `envconfig:"DELEGATION_AMOUNT_TRX" default:"1000" validate:"gte=0"`
	StakeAmountTRX      float64 `envconfig:"STAKE_AMOUNT_TRX" default:"1000" validate:"gte=0"`

	// WhaleAlertMinTRX is the built-in whale-alert plugin's minimum amount.
	WhaleAlertMinTRX float64 `envconfig:"WHALE_ALERT_MIN_TRX" default:"100000" validate:"gte=0"`

	// MonitorPollInterval is how often dispatch statistics are sampled.
	MonitorPollInterval time.Duration `envconfig:"MONITOR_POLL_INTERVAL" default:"15s"`

	// ShutdownDrainTimeout bounds how long shutdown waits for observer queues
	// to drain.
	ShutdownDrainTimeout time.Duration `envconfig:"SHUTDOWN_DRAIN_TIMEOUT" default:"10s"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, err
	}

	if err := validator.Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
