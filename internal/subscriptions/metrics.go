package subscriptions

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DispatchSource identifies which path triggered a dispatch.
type DispatchSource string

const (
	SourceManual DispatchSource = "manual"
	SourceAuto   DispatchSource = "auto"
)

// DispatchOutcome is the metric label for a coordinator outcome.
type DispatchOutcome string

const (
	OutcomeSent              DispatchOutcome = "sent"
	OutcomeSimulated         DispatchOutcome = "simulated"
	OutcomeFailed            DispatchOutcome = "failed"
	OutcomePolicyRestricted  DispatchOutcome = "policy_restricted"
	OutcomeInvalidEmail      DispatchOutcome = "invalid_email"
	OutcomeAutoNotifySkipped DispatchOutcome = "skipped"
)

// DispatchMetrics records coordinator outcomes. Implementations must not
// block the request for long and must swallow their own errors.
type DispatchMetrics interface {
	RecordDispatch(ctx context.Context, source DispatchSource, outcome DispatchOutcome)
}

// NoopDispatchMetrics discards every observation.
type NoopDispatchMetrics struct{}

func (NoopDispatchMetrics) RecordDispatch(context.Context, DispatchSource, DispatchOutcome) {}

// PrometheusDispatchMetrics counts outcomes in
// breathewatch_notifications_dispatch_total{source,outcome}.
type PrometheusDispatchMetrics struct {
	dispatches *prometheus.CounterVec
}

// NewPrometheusDispatchMetrics registers the dispatch counter with reg.
func NewPrometheusDispatchMetrics(reg prometheus.Registerer) *PrometheusDispatchMetrics {
	return &PrometheusDispatchMetrics{
		dispatches: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "breathewatch",
			Subsystem: "notifications",
			Name:      "dispatch_total",
			Help:      "Notification dispatch outcomes by source",
		}, []string{"source", "outcome"}),
	}
}

func (m *PrometheusDispatchMetrics) RecordDispatch(_ context.Context, source DispatchSource, outcome DispatchOutcome) {
	m.dispatches.WithLabelValues(string(source), string(outcome)).Inc()
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

const (
	metricDispatch = "NotificationDispatch"
	dimSource      = "Source"
	dimOutcome     = "Outcome"
)

// CloudWatchDispatchMetrics emits one NotificationDispatch datum per outcome
// with Source and Outcome dimensions.
type CloudWatchDispatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchDispatchMetrics creates a publisher for the given namespace.
func NewCloudWatchDispatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchDispatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchDispatchMetrics{client: client, namespace: namespace, logger: logger}
}

func (m *CloudWatchDispatchMetrics) RecordDispatch(ctx context.Context, source DispatchSource, outcome DispatchOutcome) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricDispatch),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(dimSource), Value: aws.String(string(source))},
					{Name: aws.String(dimOutcome), Value: aws.String(string(outcome))},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record dispatch metric",
			"error", err.Error(),
			"source", string(source),
			"outcome", string(outcome),
		)
	}
}

var (
	_ DispatchMetrics = NoopDispatchMetrics{}
	_ DispatchMetrics = (*PrometheusDispatchMetrics)(nil)
	_ DispatchMetrics = (*CloudWatchDispatchMetrics)(nil)
)
