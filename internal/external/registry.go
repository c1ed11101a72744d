package external

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"breathewatch/internal/config"
)

// ClientRegistry holds the vendor clients used by the rest of the
// application. A client whose credentials are absent is replaced by its stub.
type ClientRegistry struct {
	Weather WeatherProvider
	Email   EmailProvider
}

// RegistryOption supplies dependencies not derivable from config alone.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	awsCfg     *aws.Config
	httpClient *http.Client
	baseOpts   []BaseClientOption
}

// WithAWSConfig provides the AWS SDK config required by the SES provider.
func WithAWSConfig(cfg aws.Config) RegistryOption {
	return func(rc *registryConfig) { rc.awsCfg = &cfg }
}

// WithHTTPClient overrides the HTTP client used by every HTTP vendor,
// including its timeout.
func WithHTTPClient(c *http.Client) RegistryOption {
	return func(rc *registryConfig) { rc.httpClient = c }
}

// WithBaseClientOptions forwards options to every BaseClient.
func WithBaseClientOptions(opts ...BaseClientOption) RegistryOption {
	return func(rc *registryConfig) { rc.baseOpts = append(rc.baseOpts, opts...) }
}

// NewClientRegistry builds the weather and email clients from configuration.
//
//   - Weather: OpenWeatherMap when OPENWEATHER_API_KEY is set, else stub.
//   - Email: SES when EMAIL_PROVIDER=ses and an AWS config was supplied;
//     SendGrid when SENDGRID_API_KEY is set; else stub.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger, opts ...RegistryOption) *ClientRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	rc := &registryConfig{}
	for _, opt := range opts {
		opt(rc)
	}

	reg := &ClientRegistry{}
	stubLogger := logger.With("mode", "stub")

	if cfg.Weather.APIKey.IsSet() {
		reg.Weather = NewOpenWeatherClient(rc.client(cfg.Weather.Timeout), OpenWeatherConfig{
			APIKey:     cfg.Weather.APIKey.Unmask(),
			BaseURL:    cfg.Weather.BaseURL,
			MaxRetries: cfg.Weather.MaxRetries,
			Logger:     logger.With("client", "openweathermap"),
		}, rc.baseOpts...)
	} else {
		reg.Weather = NewStubWeatherProvider(stubLogger)
	}

	switch {
	case cfg.Email.Provider == "ses" && rc.awsCfg != nil:
		reg.Email = NewSESClient(*rc.awsCfg, SESClientConfig{
			ConfigSetName: cfg.Email.SESConfiguration,
			Logger:        logger.With("client", "ses"),
		})
	case cfg.Email.Provider == "sendgrid" && cfg.Email.SendGridAPIKey.IsSet():
		reg.Email = NewSendGridClient(rc.client(cfg.Email.Timeout), SendGridClientConfig{
			APIKey:     cfg.Email.SendGridAPIKey.Unmask(),
			BaseURL:    cfg.Email.SendGridBaseURL,
			MaxRetries: cfg.Email.MaxRetries,
			Logger:     logger.With("client", "sendgrid"),
		}, rc.baseOpts...)
	default:
		reg.Email = NewStubEmailProvider(stubLogger)
	}

	logger.Info("external clients initialized",
		"weather", reg.Weather.Name(),
		"weather_configured", reg.Weather.IsConfigured(),
		"email", reg.Email.Name(),
		"email_configured", reg.Email.IsConfigured(),
	)

	return reg
}

func (rc *registryConfig) client(timeout time.Duration) *http.Client {
	if rc.httpClient != nil {
		return rc.httpClient
	}
	return &http.Client{Timeout: timeout}
}
