// Package config defines the global configuration structure for the cropwise
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes startup to fail
// immediately (fail fast).
package config

import (
	"time"

	"cropwise/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the cropwise service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"cropwise"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server   ServerConfig
	Store    StoreConfig
	Model    ModelConfig
	Farm     FarmConfig
	Pipeline PipelineConfig
	Database DatabaseConfig
	Security SecurityConfig
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// StoreBackend selects the remote key/value store implementation.
type StoreBackend string

const (
	StoreBackendRTDB   StoreBackend = "rtdb"
	StoreBackendRedis  StoreBackend = "redis"
	StoreBackendMemory StoreBackend = "memory"
)

// StoreConfig holds the remote store connection parameters. The store is a
// path-addressed key/value tree; SensorPath names the subtree holding the
// sensor reading and receiving the prediction write-backs.
type StoreConfig struct {
	Backend    StoreBackend  `envconfig:"STORE_BACKEND" default:"rtdb" validate:"required,oneof=rtdb redis memory"`
	BaseURL    string        `envconfig:"STORE_BASE_URL" validate:"required_if=Backend rtdb,omitempty,url"`
	AuthToken  SecretString  `envconfig:"STORE_AUTH_TOKEN"`
	SensorPath string        `envconfig:"STORE_SENSOR_PATH" default:"sensorData"`
	RedisURL   SecretString  `envconfig:"REDIS_URL"`
	Timeout    time.Duration `envconfig:"STORE_TIMEOUT" default:"10s"`
}

// ModelConfig locates the serialized artifact bundle.
type ModelConfig struct {
	Path string `envconfig:"MODEL_PATH" default:"irrigation_model.json" validate:"required"`
}

// FarmConfig holds the static categorical context for this deployment.
// These are configuration constants, not derived from the sensor reading;
// a single install serves a single farm. Each value must exist in the
// corresponding label encoder's trained vocabulary, which is checked at
// startup.
type FarmConfig struct {
	District       string  `envconfig:"FARM_DISTRICT" default:"Coimbatore" validate:"required"`
	Zone           string  `envconfig:"FARM_ZONE" default:"Western Zone" validate:"required"`
	Season         string  `envconfig:"FARM_SEASON" default:"southwest_monsoon" validate:"required"`
	RainfallNext1H float64 `envconfig:"RAINFALL_NEXT_1H" default:"0.5" validate:"gte=0"`
}

// TriggerMode selects which background trigger source runs alongside the
// HTTP surface. Poll and push are interchangeable; running both would
// produce duplicate pipeline runs per physical change, so exactly one (or
// none) is wired at startup.
type TriggerMode string

const (
	TriggerModePoll TriggerMode = "poll"
	TriggerModePush TriggerMode = "push"
	TriggerModeNone TriggerMode = "none"
)

// PipelineConfig holds trigger scheduling and failure-governor tuning.
type PipelineConfig struct {
	TriggerMode       TriggerMode   `envconfig:"TRIGGER_MODE" default:"poll" validate:"required,oneof=poll push none"`
	PollInterval      time.Duration `envconfig:"POLL_INTERVAL" default:"5s" validate:"min=1s"`
	GovernorThreshold int           `envconfig:"GOVERNOR_THRESHOLD" default:"5" validate:"min=1"`
}

// DatabaseConfig holds the optional prediction-history database. History
// recording is enabled only when URL is set.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL"`

	// Pool tuning
	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"4"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// HistoryEnabled reports whether the prediction-history repository should be
// wired at startup.
func (d DatabaseConfig) HistoryEnabled() bool {
	return d.URL.Unmask() != ""
}

// SecurityConfig holds CORS settings for the inbound request surface.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
