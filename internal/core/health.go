package core

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"breathewatch/internal/types"
)

// healthCheckTimeout bounds all probes together. Probes still running at the
// deadline are reported as timed out.
const healthCheckTimeout = 2 * time.Second

// StoreProbe pings the subscription store.
type StoreProbe struct {
	Store types.SubscriptionStore
}

func (p StoreProbe) Name() string { return "subscription_store" }

func (p StoreProbe) Check(ctx context.Context) error {
	return p.Store.Ping(ctx)
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
	Providers  map[string]string          `json:"providers,omitempty"`
}

type probeResult struct {
	name string
	err  error
}

// HandleHealth runs every probe concurrently. It returns 200 when all probes
// pass and 503 otherwise. Provider modes are informational and never affect
// the status, since simulated providers are a supported configuration.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{
		Status:    "healthy",
		Version:   s.Config.Build.Version,
		Providers: s.ProviderModes,
	}

	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	// Buffered so late probes never block after the handler returns.
	results := make(chan probeResult, len(s.HealthProbes))
	for _, probe := range s.HealthProbes {
		go func(p HealthProbe) {
			results <- probeResult{name: p.Name(), err: runProbe(ctx, p)}
		}(probe)
	}

	resp.Components = make(map[string]componentStatus, len(s.HealthProbes))
	pending := len(s.HealthProbes)
collect:
	for pending > 0 {
		select {
		case res := <-results:
			pending--
			if res.err != nil {
				resp.Components[res.name] = componentStatus{Status: "unhealthy", Message: res.err.Error()}
				continue
			}
			resp.Components[res.name] = componentStatus{Status: "healthy"}
		case <-ctx.Done():
			break collect
		}
	}

	for _, probe := range s.HealthProbes {
		if _, ok := resp.Components[probe.Name()]; !ok {
			resp.Components[probe.Name()] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		}
	}

	status := http.StatusOK
	for _, c := range resp.Components {
		if c.Status != "healthy" {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			break
		}
	}
	JSON(w, r, status, resp)
}

func runProbe(ctx context.Context, p HealthProbe) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("probe panicked: %v", rvr)
		}
	}()
	return p.Check(ctx)
}
