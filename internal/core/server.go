// Package core provides the API chassis for BreatheWatch. It builds a chi
// router usable both as a standard HTTP server and behind a Lambda Function
// URL, and applies the cross-cutting concerns (recovery, request ids,
// logging, compression, CORS, metrics, rate limiting) before requests reach
// the domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"breathewatch/internal/config"
	"breathewatch/internal/types"
)

// Server holds the dependencies shared by every request.
type Server struct {
	Config    *config.Config
	Store     types.SubscriptionStore
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	// MetricsHandler serves GET /metrics when non-nil.
	MetricsHandler http.Handler

	// HealthProbes are checked by GET /health. ProviderModes is reported
	// as-is, e.g. {"weather": "live", "email": "simulated"}.
	HealthProbes  []HealthProbe
	ProviderModes map[string]string

	// V1RouteRegistrars are populated by the entry point so that core does
	// not import the handler packages.
	V1RouteRegistrars []func(chi.Router)

	onShutdown []func()
	limiter    *clientLimiter
	clients    clientResolver
	router     *chi.Mux
}

// NewServer validates the critical dependencies and prepares an empty router.
// The caller mounts routes with MountRoutes once registrars are added.
func NewServer(cfg *config.Config, store types.SubscriptionStore, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("subscription store must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	clients, err := newClientResolver(cfg.Server.TrustProxyHeaders, cfg.Server.TrustedProxyCIDRs)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Config:       cfg,
		Store:        store,
		Logger:       logger,
		Validator:    NewValidator(logger),
		HealthProbes: []HealthProbe{StoreProbe{Store: store}},
		clients:      clients,
		router:       chi.NewRouter(),
	}
	if cfg.Server.RateLimitRPS > 0 {
		s.limiter = newClientLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	}
	return s, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi.Mux for tests and custom mounting.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// OnShutdown registers fn to run during Shutdown. Functions run in reverse
// registration order.
func (s *Server) OnShutdown(fn func()) {
	s.onShutdown = append(s.onShutdown, fn)
}

// Shutdown releases server resources such as store connections. It returns
// ctx.Err() if the deadline passes before all hooks complete.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := len(s.onShutdown) - 1; i >= 0; i-- {
			s.onShutdown[i]()
		}
	}()

	select {
	case <-done:
		s.Logger.Info("server shutdown complete")
		return nil
	case <-ctx.Done():
		s.Logger.Error("server shutdown timed out", "error", ctx.Err())
		return ctx.Err()
	}
}
