// Package main is the entry point for the BreatheWatch API.
//
// It loads configuration, builds the vendor clients, subscription store,
// mail channel and coordinator, mounts the HTTP handlers on the core chassis
// and serves them.
//
// Inside AWS Lambda the router is served through a Function URL with
// lambdaurl. Everywhere else it runs as a standard HTTP server with graceful
// shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambdaurl"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"breathewatch/internal/api/handlers"
	"breathewatch/internal/conditions"
	"breathewatch/internal/config"
	"breathewatch/internal/core"
	"breathewatch/internal/db"
	"breathewatch/internal/external"
	"breathewatch/internal/notifications/email"
	"breathewatch/internal/subscriptions"
)

// shutdownTimeout bounds graceful shutdown in HTTP mode.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.LoadConfig(secretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel).With("service", cfg.Service)
	slog.SetDefault(logger)
	logger.Info("breathewatch API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"storage", cfg.Storage.Backend,
	)

	srv, err := buildServer(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if isLambdaEnvironment() {
		logger.Info("serving via Lambda Function URL")
		lambdaurl.Start(srv.Handler())
		return nil
	}
	return runHTTPServer(srv, cfg, logger)
}

// secretProvider returns the SSM provider outside local development. It is
// read before LoadConfig, so it consults the raw environment.
func secretProvider() config.SecretProvider {
	if env := os.Getenv("APP_ENV"); env == "" || env == "local" {
		return nil
	}
	return config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL"))
}

// buildServer wires every dependency and returns a server with routes
// mounted. Resources acquired here are released by srv.Shutdown.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*core.Server, error) {
	var awsCfg *aws.Config
	if cfg.UsesAWS() {
		loaded, err := loadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
		awsCfg = &loaded
	}

	var regOpts []external.RegistryOption
	if awsCfg != nil {
		regOpts = append(regOpts, external.WithAWSConfig(*awsCfg))
	}
	clients := external.NewClientRegistry(cfg, logger, regOpts...)

	store, closeStore, err := db.OpenStore(ctx, cfg.Storage, logger.With("component", "store"))
	if err != nil {
		return nil, fmt.Errorf("opening subscription store: %w", err)
	}

	renderer, err := email.NewRenderer(email.RendererConfig{
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
	})
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("building email renderer: %w", err)
	}
	channel := email.NewChannel(email.ChannelConfig{
		Provider: clients.Email,
		Renderer: renderer,
		Logger:   logger.With("component", "email"),
	})

	srv, err := core.NewServer(cfg, store, logger)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.OnShutdown(closeStore)

	var registry *prometheus.Registry
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		collector := core.NewPrometheusCollector(registry)
		srv.Metrics = collector
		srv.MetricsHandler = collector.Handler()
	}

	coordinator := subscriptions.New(subscriptions.Config{
		Store:              store,
		Dispatcher:         channel,
		Metrics:            newDispatchMetrics(cfg, awsCfg, registry, logger),
		Logger:             logger.With("component", "subscriptions"),
		AutoNotifyCooldown: cfg.Notify.AutoNotifyCooldown,
	})
	conditionsSvc := conditions.NewService(clients.Weather, cfg.Weather.ForecastPoints,
		logger.With("component", "conditions"))

	srv.ProviderModes = map[string]string{
		"weather": providerMode(clients.Weather.IsConfigured()),
		"email":   providerMode(channel.IsConfigured()),
	}

	conditionsHandler := handlers.NewConditionsHandler(conditionsSvc, coordinator, logger)
	subscriptionHandler := handlers.NewSubscriptionHandler(coordinator, srv.Validator, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		conditionsHandler.RegisterRoutes,
		subscriptionHandler.RegisterRoutes,
	)

	srv.MountRoutes()
	return srv, nil
}

// newDispatchMetrics prefers CloudWatch when enabled, then the Prometheus
// registry, then a no-op.
func newDispatchMetrics(cfg *config.Config, awsCfg *aws.Config, registry *prometheus.Registry, logger *slog.Logger) subscriptions.DispatchMetrics {
	switch {
	case cfg.Observability.CloudWatchMetrics && awsCfg != nil:
		client := cloudwatch.NewFromConfig(*awsCfg)
		return subscriptions.NewCloudWatchDispatchMetrics(client, cfg.Observability.MetricNamespace,
			logger.With("component", "dispatch_metrics"))
	case registry != nil:
		return subscriptions.NewPrometheusDispatchMetrics(registry)
	default:
		return subscriptions.NoopDispatchMetrics{}
	}
}

// loadAWSConfig loads the default credential chain for the configured region.
// AWS_ENDPOINT_URL redirects every client, which is how LocalStack is used.
func loadAWSConfig(ctx context.Context, c config.AWSConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config (region=%s): %w", c.Region, err)
	}
	if c.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(c.EndpointURL)
	}
	return awsCfg, nil
}

func providerMode(configured bool) string {
	if configured {
		return "live"
	}
	return "simulated"
}

// isLambdaEnvironment reports whether the process runs inside the Lambda
// runtime.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	return hasRuntimeAPI
}

// runHTTPServer serves until SIGINT/SIGTERM, then drains connections and
// releases server resources.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			_ = srv.Shutdown(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a JSON slog.Logger at the given level; unknown levels
// fall back to info.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
