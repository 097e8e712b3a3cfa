// Package config defines the global configuration structure for the Crixen
// billing service. Configuration is loaded once at process startup and is
// immutable thereafter; it follows 12-Factor principles by strictly separating
// code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import (
	"time"

	"crixen/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the Crixen billing service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"crixen-billing"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server    ServerConfig
	Database  DatabaseConfig
	AWS       AWSConfig
	Billing   BillingConfig
	Email     EmailConfig
	Scheduler SchedulerConfig
	Security  SecurityConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URLs for provider callbacks and redirects (no trailing slash)
	APIExternalURL string        `envconfig:"API_EXTERNAL_URL" validate:"required,url"` // e.g., https://api.crixen.io
	FrontendURL    string        `envconfig:"FRONTEND_URL" validate:"required,url"`     // e.g., https://app.crixen.io
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Resource Identifiers
	NotificationQueue   string `envconfig:"SQS_NOTIFICATIONS" validate:"required,url"`
	TicketArchiveBucket string `envconfig:"TICKET_ARCHIVE_BUCKET"` // Cold storage for issued tickets

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BillingConfig holds payment provider credentials and checkout defaults.
//
// Webhook secrets are optional in the local environment only; Loader enforces
// their presence everywhere else.
type BillingConfig struct {
	// HotPay (redirect flow)
	HotPayCheckoutURL   string       `envconfig:"HOTPAY_CHECKOUT_URL" default:"https://checkout.hotpay.example/pay"`
	HotPayItemID        string       `envconfig:"HOTPAY_ITEM_ID" default:"crixen-pro-monthly"`
	HotPayAmount        string       `envconfig:"HOTPAY_AMOUNT" default:"29.00"`
	HotPayWebhookSecret SecretString `envconfig:"HOTPAY_WEBHOOK_SECRET"`

	// PingPay (hosted session flow)
	PingPayBaseURL       string       `envconfig:"PINGPAY_BASE_URL" default:"https://api.pingpay.example"`
	PingPayAPIKey        SecretString `envconfig:"PINGPAY_API_KEY"`
	PingPayWebhookSecret SecretString `envconfig:"PINGPAY_WEBHOOK_SECRET"`

	// Grace period granted per successful payment.
	SubscriptionPeriod time.Duration `envconfig:"SUBSCRIPTION_PERIOD" default:"720h"` // 30 days
}

// EmailConfig holds email delivery provider credentials and sender identity.
type EmailConfig struct {
	ResendAPIKey SecretString `envconfig:"RESEND_API_KEY"`
	FromAddress  string       `envconfig:"EMAIL_FROM_ADDRESS" default:"billing@crixen.io"`
	FromName     string       `envconfig:"EMAIL_FROM_NAME" default:"Crixen"`
	Enabled      bool         `envconfig:"FEATURE_ENABLE_EMAIL" default:"true"`
}

// SchedulerConfig holds subscription sweep and ledger maintenance settings.
type SchedulerConfig struct {
	// DailyAt is the UTC wall-clock time of the daily sweep, "HH:MM".
	DailyAt       string        `envconfig:"SCHEDULER_DAILY_AT" default:"09:00" validate:"required,len=5"`
	RunOnStartup  bool          `envconfig:"RUN_SCHEDULER_ON_STARTUP" default:"false"`
	WarningWindow time.Duration `envconfig:"EXPIRY_WARNING_WINDOW" default:"72h"`

	// Ledger maintenance
	StalePendingAge  time.Duration `envconfig:"STALE_PENDING_AGE" default:"168h"`     // 7 days
	ArchiveAfter     time.Duration `envconfig:"TICKET_ARCHIVE_AFTER" default:"2160h"` // 90 days
	ArchiveBatchSize int           `envconfig:"TICKET_ARCHIVE_BATCH" default:"500"`
}

// SecurityConfig holds CORS and inbound auth settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string     `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	APIKey             SecretString `envconfig:"API_KEY"`
}

// TelemetryConfig holds metric emission settings.
type TelemetryConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Crixen"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrMissingCredential indicates a provider secret required outside the
	// local environment was not supplied.
	ErrMissingCredential ConfigErrorType = "MISSING_CREDENTIAL"
)
