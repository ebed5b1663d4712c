// Package config defines the global configuration for the power scheduling
// tools. Configuration is loaded once at process start and is immutable
// thereafter, following 12-Factor principles: code and configuration stay
// strictly separated.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or invalid format fails startup immediately.
package config

import (
	"time"

	"powersched/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// config subsets they require.
type Config struct {
	// System metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"powersched"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain configurations
	Server   ServerConfig
	Database DatabaseConfig
	Remote   RemoteConfig
	Local    LocalConfig
	Data     DataConfig
	Auth     AuthConfig
	AWS      AWSConfig

	// Build metadata (injected via ldflags, not env)
	Build BuildInfo
}

// ServerConfig holds HTTP server settings for the schedule store service.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// DatabaseConfig holds connection and pool tuning for the schedule store
// service's database.
type DatabaseConfig struct {
	// Resolved from SSM or env
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// RemoteConfig holds the sync client's view of the remote schedule store.
type RemoteConfig struct {
	BaseURL       string        `envconfig:"REMOTE_STORE_URL" validate:"required,url"`
	RetryAttempts int           `envconfig:"REMOTE_RETRY_ATTEMPTS" default:"3"`
	BaseDelay     time.Duration `envconfig:"REMOTE_RETRY_BASE_DELAY" default:"500ms"`
	Timeout       time.Duration `envconfig:"REMOTE_TIMEOUT" default:"15s"`
}

// LocalConfig holds the embedded local cache settings.
type LocalConfig struct {
	// StorePath is the directory of the badger database backing offline
	// schedule and snapshot state. Empty disables local persistence.
	StorePath string `envconfig:"LOCAL_STORE_PATH" default:".powersched"`
}

// DataConfig holds the paths of the static data files every session loads.
type DataConfig struct {
	InventoryPath string `envconfig:"INVENTORY_CSV" default:"machines.csv"`
	UsersPath     string `envconfig:"USERS_JSON" default:"users.json"`
	// AuditLimit bounds the in-session audit trail.
	AuditLimit int `envconfig:"AUDIT_LIMIT" default:"200"`
}

// AuthConfig holds the GitHub OAuth credentials and session token secret.
type AuthConfig struct {
	GithubClientID     string        `envconfig:"GITHUB_CLIENT_ID"`
	GithubClientSecret SecretString  `envconfig:"GITHUB_CLIENT_SECRET"`
	SessionSecret      SecretString  `envconfig:"SESSION_SECRET" validate:"required,min=32"`
	SessionTTL         time.Duration `envconfig:"SESSION_TTL" default:"12h"`
}

// AWSConfig holds regional configuration for SSM secret resolution and the
// OAuth exchange Lambda.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"eu-central-1"`
}

// BuildInfo holds build-time metadata injected via ldflags. These values are
// NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
