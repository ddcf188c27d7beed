// Package config defines the global configuration structure for the
// mail-merge service. Configuration is loaded once at process startup and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes startup to fail
// immediately.
package config

import (
	"time"

	"mailmerge/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the mail-merge service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"mailmerge"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server    ServerConfig
	Database  DatabaseConfig
	Email     EmailConfig
	Templates TemplatesConfig
	Auth      AuthConfig
	Security  SecurityConfig
	Dispatch  DispatchConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
// URL may be empty in local mode, in which case the file-backed template
// store is used and auth state lives in memory.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// EmailConfig holds email delivery provider selection and credentials.
// Provider selects the outbound path:
//
//	"func"    - hosted send-email function (default)
//	"smtp2go" - direct SMTP2GO API
//	"resend"  - Resend API
//	"noop"    - log-only, for local development
type EmailConfig struct {
	Provider        string       `envconfig:"EMAIL_PROVIDER" default:"func" validate:"oneof=func smtp2go resend noop"`
	FromAddress     string       `envconfig:"EMAIL_FROM_ADDRESS" default:"outreach@localhost"`
	SendFunctionURL string       `envconfig:"SEND_FUNCTION_URL" validate:"omitempty,url"`
	SendFunctionKey SecretString `envconfig:"SEND_FUNCTION_KEY"`
	SMTP2GOAPIKey   SecretString `envconfig:"SMTP2GO_API_KEY"`
	ResendAPIKey    SecretString `envconfig:"RESEND_API_KEY"`
}

// TemplatesConfig holds template persistence settings.
// Backend "postgres" stores templates in the database; "file" stores one
// JSON document per user under Dir. When Backend is left at its default and
// no DATABASE_URL is configured, loading falls back to "file" so local mode
// starts without a database.
type TemplatesConfig struct {
	Backend string `envconfig:"TEMPLATE_BACKEND" default:"postgres" validate:"oneof=postgres file"`
	Dir     string `envconfig:"TEMPLATE_DIR" default:"./data/templates"`
}

// AuthConfig holds session management settings.
type AuthConfig struct {
	SessionDuration time.Duration `envconfig:"SESSION_DURATION" default:"168h"`
	CookieName      string        `envconfig:"SESSION_COOKIE_NAME" default:"mm_session"`
	CookieSecure    bool          `envconfig:"SESSION_COOKIE_SECURE" default:"true"`
}

// SecurityConfig holds CORS settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DispatchConfig holds batch send pacing settings.
type DispatchConfig struct {
	InterSendDelay time.Duration `envconfig:"DISPATCH_INTER_SEND_DELAY" default:"500ms"`
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
