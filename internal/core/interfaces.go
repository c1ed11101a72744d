package core

import (
	"context"
	"time"
)

// MetricsCollector records API request telemetry.
type MetricsCollector interface {
	// RecordRequest records one completed request. route is the chi route
	// pattern, not the raw path, to keep label cardinality bounded.
	RecordRequest(method, route, status string, duration time.Duration)
}

// HealthProbe is one dependency checked by GET /health.
type HealthProbe interface {
	Name() string
	// Check must respect the context deadline.
	Check(ctx context.Context) error
}
