// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs in expiry math.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
//  5. Enforce environment-dependent credential requirements: webhook secrets
//     and API keys may be absent only when APP_ENV=local.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig.
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

// localEnv is the APP_ENV value that relaxes credential requirements.
const localEnv = "local"

// LoadConfig loads and validates the Crixen configuration from the process
// environment. Missing required values cause an error; callers are expected
// to treat any error as fatal at startup.
func LoadConfig() (*Config, error) {
	// Expiry windows and sweep boundaries are all computed in UTC.
	time.Local = time.UTC

	// godotenv.Load silently succeeds if no .env file exists and never
	// overrides variables already set in the environment.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if err := checkProviderCredentials(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// checkProviderCredentials enforces that payment and email credentials are
// present outside the local environment. Local development may run without
// them (signature verification is skipped and email delivery disabled), but a
// deployed instance must never accept an unsigned webhook.
func checkProviderCredentials(cfg *Config) error {
	if cfg.Environment == localEnv {
		return nil
	}

	var missing []string
	if !cfg.Billing.HotPayWebhookSecret.IsSet() {
		missing = append(missing, "HOTPAY_WEBHOOK_SECRET")
	}
	if !cfg.Billing.PingPayWebhookSecret.IsSet() {
		missing = append(missing, "PINGPAY_WEBHOOK_SECRET")
	}
	if !cfg.Billing.PingPayAPIKey.IsSet() {
		missing = append(missing, "PINGPAY_API_KEY")
	}
	if cfg.Email.Enabled && !cfg.Email.ResendAPIKey.IsSet() {
		missing = append(missing, "RESEND_API_KEY")
	}

	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrMissingCredential,
			Message: fmt.Sprintf("required credentials missing for APP_ENV=%s: %s", cfg.Environment, strings.Join(missing, ", ")),
		}
	}
	return nil
}

// ParseDailyAt parses the "HH:MM" sweep time into hour and minute.
func ParseDailyAt(v string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid SCHEDULER_DAILY_AT %q: %w", v, err)
	}
	return t.Hour(), t.Minute(), nil
}
