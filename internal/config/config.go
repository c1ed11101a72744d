// Package config defines the runtime configuration of the BreatheWatch API.
// Configuration is read once at startup and treated as immutable.
//
// Values are resolved in priority order:
//
//	OS environment -> .env file -> AWS SSM Parameter Store
//
// Provider credentials are optional: when the OpenWeatherMap or SendGrid key
// is absent the corresponding client runs in simulated mode instead of
// failing startup.
package config

import (
	"time"

	"breathewatch/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers need
// not import types for secrets.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Components receive only the
// sub-struct they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"breathewatch-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Storage       StorageConfig
	Weather       WeatherConfig
	Email         EmailConfig
	Notify        NotifyConfig
	Observability ObservabilityConfig
	AWS           AWSConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// ServerConfig holds HTTP listener and request-handling settings.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s" validate:"gt=0"`
	RateLimitRPS       float64       `envconfig:"RATE_LIMIT_RPS" default:"5" validate:"gte=0"`
	RateLimitBurst     int           `envconfig:"RATE_LIMIT_BURST" default:"10" validate:"gte=0"`
	// TrustProxyHeaders makes the rate limiter read X-Forwarded-For. Only
	// enable it behind a proxy that appends the header.
	TrustProxyHeaders bool     `envconfig:"TRUST_PROXY_HEADERS" default:"false"`
	TrustedProxyCIDRs []string `envconfig:"TRUSTED_PROXY_CIDRS" validate:"dive,cidr"`
}

// StorageConfig selects and tunes the subscription store.
type StorageConfig struct {
	Backend    string       `envconfig:"STORAGE_BACKEND" default:"memory" validate:"oneof=memory sqlite postgres"`
	URL        SecretString `envconfig:"DATABASE_URL" validate:"required_if=Backend postgres"`
	SQLitePath string       `envconfig:"SQLITE_PATH" default:"breathewatch.db"`

	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"gte=1"`
	MinConns        int32         `envconfig:"DB_MIN_CONNS" default:"0" validate:"gte=0"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
}

// WeatherConfig configures the OpenWeatherMap client.
type WeatherConfig struct {
	APIKey         SecretString  `envconfig:"OPENWEATHER_API_KEY"`
	BaseURL        string        `envconfig:"OPENWEATHER_BASE_URL" default:"https://api.openweathermap.org" validate:"url"`
	Timeout        time.Duration `envconfig:"WEATHER_TIMEOUT" default:"10s" validate:"gt=0"`
	MaxRetries     int           `envconfig:"WEATHER_MAX_RETRIES" default:"0" validate:"gte=0,lte=5"`
	ForecastPoints int           `envconfig:"FORECAST_POINTS" default:"8" validate:"gte=1,lte=40"`
}

// EmailConfig configures the mail dispatcher.
type EmailConfig struct {
	Provider         string        `envconfig:"EMAIL_PROVIDER" default:"sendgrid" validate:"oneof=sendgrid ses"`
	SendGridAPIKey   SecretString  `envconfig:"SENDGRID_API_KEY"`
	SendGridBaseURL  string        `envconfig:"SENDGRID_BASE_URL" default:"https://api.sendgrid.com" validate:"url"`
	FromAddress      string        `envconfig:"EMAIL_FROM_ADDRESS" default:"alerts@breathewatch.app" validate:"email"`
	FromName         string        `envconfig:"EMAIL_FROM_NAME" default:"BreatheWatch Alerts"`
	Timeout          time.Duration `envconfig:"EMAIL_TIMEOUT" default:"10s" validate:"gt=0"`
	MaxRetries       int           `envconfig:"EMAIL_MAX_RETRIES" default:"0" validate:"gte=0,lte=5"`
	SESConfiguration string        `envconfig:"SES_CONFIGURATION_SET"`
}

// NotifyConfig tunes same-request automatic alerts.
type NotifyConfig struct {
	AutoNotifyCooldown time.Duration `envconfig:"AUTO_NOTIFY_COOLDOWN" default:"6h" validate:"gte=0"`
}

// ObservabilityConfig holds metrics settings.
type ObservabilityConfig struct {
	MetricsEnabled    bool   `envconfig:"METRICS_ENABLED" default:"true"`
	CloudWatchMetrics bool   `envconfig:"CLOUDWATCH_METRICS" default:"false"`
	MetricNamespace   string `envconfig:"METRIC_NAMESPACE" default:"BreatheWatch"`
}

// AWSConfig holds regional settings shared by SES, SSM and CloudWatch.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`
	// LocalStack support; empty in production.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// UsesAWS reports whether any configured component needs an AWS SDK config.
func (c *Config) UsesAWS() bool {
	return c.Email.Provider == "ses" || c.Observability.CloudWatchMetrics
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
