// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid
// debugging. It wraps a ConfigErrorType and an underlying error message.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadConfig loads and validates the service configuration.
//
// It performs the following steps in order:
//  1. Sets the process timezone to UTC.
//  2. Loads a .env file if present (non-fatal if missing).
//  3. Processes envconfig tags to populate the Config struct.
//  4. Validates the Config struct.
func LoadConfig() (*Config, error) {
	// Step 1: Enforce UTC timezone to prevent drift bugs.
	time.Local = time.UTC

	// Step 2: Load .env file (non-fatal if absent).
	// godotenv.Load() does NOT override existing environment variables.
	_ = godotenv.Load()

	// Step 3: Process envconfig tags to populate the Config struct.
	// The empty prefix "" means envconfig will use the exact tag values
	// (e.g., envconfig:"APP_ENV" reads APP_ENV directly).
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	// Step 4: Validate the populated struct.
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	// Cross-field checks envconfig tags cannot express.
	if err := validateProviderCredentials(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateProviderCredentials ensures the selected email provider has the
// credentials it needs, and the selected template backend has a database when
// it requires one.
func validateProviderCredentials(cfg *Config) error {
	switch cfg.Email.Provider {
	case "func":
		if cfg.Email.SendFunctionURL == "" {
			return &ConfigError{
				Type:    ErrValidation,
				Message: "SEND_FUNCTION_URL is required when EMAIL_PROVIDER=func",
			}
		}
	case "smtp2go":
		if cfg.Email.SMTP2GOAPIKey.Unmask() == "" {
			return &ConfigError{
				Type:    ErrValidation,
				Message: "SMTP2GO_API_KEY is required when EMAIL_PROVIDER=smtp2go",
			}
		}
	case "resend":
		if cfg.Email.ResendAPIKey.Unmask() == "" {
			return &ConfigError{
				Type:    ErrValidation,
				Message: "RESEND_API_KEY is required when EMAIL_PROVIDER=resend",
			}
		}
	}

	// The postgres template backend needs a database. When the backend was
	// left at its default and no database is configured, fall back to the
	// file backend so local mode starts; an explicit TEMPLATE_BACKEND=postgres
	// without a database is a configuration error.
	if cfg.Templates.Backend == "postgres" && cfg.Database.URL.Unmask() == "" {
		if _, explicit := os.LookupEnv("TEMPLATE_BACKEND"); explicit {
			return &ConfigError{
				Type:    ErrValidation,
				Message: "DATABASE_URL is required when TEMPLATE_BACKEND=postgres",
			}
		}
		cfg.Templates.Backend = "file"
	}

	return nil
}
