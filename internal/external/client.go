// Package external wraps the third-party services BreatheWatch depends on:
// OpenWeatherMap for conditions and SendGrid or SES for mail. HTTP vendors go
// through BaseClient, which applies one circuit breaker per vendor, optional
// retries and mapping of transport failures to AppErrors.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"breathewatch/internal/types"
)

// RetryPolicy configures retries on 429 and 5xx responses. MaxRetries of
// zero means a single attempt.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// NoRetryPolicy performs exactly one attempt.
func NoRetryPolicy() RetryPolicy {
	return RetryPolicy{MinWait: 250 * time.Millisecond, MaxWait: 2 * time.Second}
}

// BaseClientConfig describes one vendor's resilience settings.
type BaseClientConfig struct {
	// Name identifies the circuit breaker in errors and logs.
	Name      string
	UserAgent string
	Retry     RetryPolicy
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker. Defaults to 5.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open. Defaults to 30s.
	OpenTimeout time.Duration
	// TransportCode is the error code used for network failures and
	// exhausted 5xx retries. Defaults to ErrCodeUpstreamUnavailable.
	TransportCode types.ErrorCode
}

// BaseClient wraps an *http.Client and a circuit breaker.
type BaseClient struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	cfg     BaseClientConfig
	sleep   func(context.Context, time.Duration) error
}

// BaseClientOption is a functional option for configuring a BaseClient.
type BaseClientOption func(*BaseClient)

// WithSleepFunc replaces the wait between retries. Tests use it to avoid
// real delays.
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(c *BaseClient) {
		c.sleep = func(_ context.Context, d time.Duration) error {
			fn(d)
			return nil
		}
	}
}

// NewBaseClient creates a BaseClient for one vendor.
func NewBaseClient(httpClient *http.Client, cfg BaseClientConfig, opts ...BaseClientOption) *BaseClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.TransportCode == "" {
		cfg.TransportCode = types.ErrCodeUpstreamUnavailable
	}

	threshold := cfg.FailureThreshold
	bc := &BaseClient{
		client: httpClient,
		cfg:    cfg,
		sleep:  sleepContext,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				// Caller cancellation says nothing about vendor health.
				return err == nil || errors.Is(err, context.Canceled)
			},
		}),
	}
	for _, opt := range opts {
		opt(bc)
	}

	return bc
}

// BreakerState reports the breaker's current state.
func (c *BaseClient) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Do executes req through the breaker, retrying 429 and 5xx responses per
// the retry policy. Any other response, including 4xx, is returned as-is and
// the caller must close its body. Exhausted retries, an open breaker or a
// transport failure yield a *types.AppError.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if id := types.GetRequestID(req.Context()); id != "" {
		req.Header.Set("X-Request-Id", id)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	// Buffer the body so it can be replayed on retries.
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to buffer request body", err)
		}
	}

	attempts := 1 + max(c.cfg.Retry.MaxRetries, 0)
	var (
		lastResp *http.Response
		lastErr  error
	)

	for attempt := 0; attempt < attempts; attempt++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			req.ContentLength = int64(len(body))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("%s returned %d", c.cfg.Name, r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		if lastResp != nil {
			lastResp.Body.Close()
		}
		lastResp, lastErr = resp, err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if req.Context().Err() != nil {
			break
		}
		if attempt == attempts-1 {
			break
		}

		if sleepErr := c.sleep(req.Context(), c.computeBackoff(attempt, resp)); sleepErr != nil {
			lastErr = sleepErr
			break
		}
	}

	return nil, c.mapError(lastResp, lastErr)
}

// computeBackoff honours Retry-After when present, otherwise uses
// exponential backoff with jitter clamped to [MinWait, MaxWait].
func (c *BaseClient) computeBackoff(attempt int, resp *http.Response) time.Duration {
	p := c.cfg.Retry
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				return min(time.Duration(secs)*time.Second, p.MaxWait)
			}
			if t, err := http.ParseTime(ra); err == nil {
				wait := time.Until(t)
				if wait <= 0 {
					return p.MinWait
				}
				return min(wait, p.MaxWait)
			}
		}
	}

	ceiling := math.Min(float64(p.MinWait)*math.Pow(2, float64(attempt)), float64(p.MaxWait))
	floor := float64(p.MinWait)
	if ceiling <= floor {
		return p.MinWait
	}
	return time.Duration(floor + rand.Float64()*(ceiling-floor))
}

// mapError closes any final response and translates the failure into an
// AppError. The upstream status is carried in Details.
func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	status := 0
	upstreamMsg := ""
	if resp != nil {
		status = resp.StatusCode
		upstreamMsg = readUpstreamMessage(resp)
		resp.Body.Close()
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s is temporarily unavailable (circuit open)", c.cfg.Name), err)
	case status == http.StatusTooManyRequests:
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s rate limit exceeded", c.cfg.Name), err,
			map[string]any{"upstream_status": status})
	case status >= 500:
		msg := upstreamMsg
		if msg == "" {
			msg = fmt.Sprintf("%s returned HTTP %d", c.cfg.Name, status)
		}
		return types.NewAppErrorWithDetails(c.cfg.TransportCode, msg, err,
			map[string]any{"upstream_status": status})
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewAppError(c.cfg.TransportCode,
			fmt.Sprintf("%s request timed out", c.cfg.Name), err)
	default:
		return types.NewAppError(c.cfg.TransportCode,
			fmt.Sprintf("%s request failed", c.cfg.Name), err)
	}
}

// upstreamErrorBody covers the error shapes of the vendors we call:
// OpenWeatherMap uses {"cod":..,"message":..}, SendGrid uses {"errors":[..]}.
type upstreamErrorBody struct {
	Message string `json:"message"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// readUpstreamMessage extracts a human-readable error message from a vendor
// response body. It reads at most 4 KiB and returns "" when nothing usable
// is found.
func readUpstreamMessage(resp *http.Response) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if err != nil || len(raw) == 0 {
		return ""
	}

	var parsed upstreamErrorBody
	if json.Unmarshal(raw, &parsed) == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if len(parsed.Errors) > 0 && parsed.Errors[0].Message != "" {
			return parsed.Errors[0].Message
		}
		return ""
	}

	text := strings.TrimSpace(string(raw))
	if len(text) > 200 || strings.HasPrefix(text, "<") {
		return ""
	}
	return text
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
