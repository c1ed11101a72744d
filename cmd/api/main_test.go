package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"breathewatch/internal/config"
	"breathewatch/internal/core"
)

// setTestEnv pins configuration to local mode with in-memory storage and no
// vendor credentials, so every provider runs as a stub.
func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "local")
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("OPENWEATHER_API_KEY", "")
	t.Setenv("SENDGRID_API_KEY", "")
	t.Setenv("EMAIL_PROVIDER", "sendgrid")
	t.Setenv("METRICS_ENABLED", "true")
	t.Setenv("CLOUDWATCH_METRICS", "false")
	t.Setenv("RATE_LIMIT_RPS", "0")
}

// buildTestServer wires the server exactly as production does, on stubs.
func buildTestServer(t *testing.T) *core.Server {
	t.Helper()
	setTestEnv(t)

	cfg, err := config.LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := buildServer(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("buildServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func serve(srv *core.Server, method, target, body string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// TestHealthEndpoint verifies that the fully wired server reports healthy and
// that both providers run in simulated mode without credentials.
func TestHealthEndpoint(t *testing.T) {
	srv := buildTestServer(t)

	rec := serve(srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health: got status %d, want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp struct {
		Status    string            `json:"status"`
		Providers map[string]string `json:"providers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want %q", resp.Status, "healthy")
	}
	for _, name := range []string{"weather", "email"} {
		if got := resp.Providers[name]; got != "simulated" {
			t.Errorf("providers[%s] = %q, want %q", name, got, "simulated")
		}
	}
}

func TestConditionsEndpoint(t *testing.T) {
	srv := buildTestServer(t)

	rec := serve(srv, http.MethodGet, "/v1/conditions?city=Oslo", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/conditions: got status %d; body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Simulated  bool `json:"simulated"`
		Assessment struct {
			Level string `json:"level"`
		} `json:"assessment"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if !resp.Simulated {
		t.Error("expected simulated report without a weather API key")
	}
	if resp.Assessment.Level == "" {
		t.Error("expected a risk level in the assessment")
	}
}

// TestNotifyThenStatus exercises the coordinator end to end: a simulated
// send that saves the subscription, followed by a status lookup and an
// unsubscribe.
func TestNotifyThenStatus(t *testing.T) {
	srv := buildTestServer(t)

	body := `{"email":"Jane@Example.com","location_name":"Oslo","level":"High","score":5,
		"triggers":["Cold Air"],"advice":["Cover your nose and mouth outdoors."],
		"save_subscription":true,"auto_notify":true}`
	rec := serve(srv, http.MethodPost, "/v1/notifications", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /v1/notifications: got status %d; body: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"status":"simulated"`) {
		t.Errorf("expected simulated send, got %s", rec.Body.String())
	}

	rec = serve(srv, http.MethodGet, "/v1/subscriptions/status?email=jane@example.com", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/subscriptions/status: got status %d", rec.Code)
	}
	var status struct {
		Subscribed bool `json:"subscribed"`
		AutoNotify bool `json:"auto_notify"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to unmarshal status: %v", err)
	}
	if !status.Subscribed || !status.AutoNotify {
		t.Errorf("status = %+v, want subscribed with auto-notify", status)
	}

	rec = serve(srv, http.MethodDelete, "/v1/subscriptions?email=jane@example.com", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE /v1/subscriptions: got status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"removed"`) {
		t.Errorf("expected removed, got %s", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := buildTestServer(t)

	serve(srv, http.MethodGet, "/v1/conditions?city=Oslo", "")
	rec := serve(srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics: got status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "breathewatch_http_requests_total") {
		t.Error("expected request counter in metrics output")
	}
}

func TestIsLambdaEnvironment(t *testing.T) {
	orig, had := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	t.Cleanup(func() {
		if had {
			os.Setenv("AWS_LAMBDA_RUNTIME_API", orig)
		} else {
			os.Unsetenv("AWS_LAMBDA_RUNTIME_API")
		}
	})

	os.Unsetenv("AWS_LAMBDA_RUNTIME_API")
	if isLambdaEnvironment() {
		t.Error("expected false when AWS_LAMBDA_RUNTIME_API is unset")
	}

	os.Setenv("AWS_LAMBDA_RUNTIME_API", "127.0.0.1:9001")
	if !isLambdaEnvironment() {
		t.Error("expected true when AWS_LAMBDA_RUNTIME_API is set")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := newLogger(tt.level)
			if !logger.Enabled(context.Background(), tt.want) {
				t.Errorf("level %s not enabled", tt.want)
			}
			if tt.want > slog.LevelDebug && logger.Enabled(context.Background(), tt.want-4) {
				t.Errorf("level below %s unexpectedly enabled", tt.want)
			}
		})
	}
}

func TestProviderMode(t *testing.T) {
	if got := providerMode(true); got != "live" {
		t.Errorf("providerMode(true) = %q", got)
	}
	if got := providerMode(false); got != "simulated" {
		t.Errorf("providerMode(false) = %q", got)
	}
}
