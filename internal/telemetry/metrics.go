// Package telemetry emits operational metrics to CloudWatch. Metric emission
// is always best-effort: a metrics failure must never fail the operation that
// produced it.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"crixen/internal/types"
)

// CloudWatchClient abstracts the PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metric names and dimensions.
const (
	metricReconciliation = "WebhookReconciliation"
	metricSweepAction    = "SubscriptionSweep"
	metricAPIRequest     = "APIRequest"
	metricAPILatency     = "APILatency"

	dimProvider = "Provider"
	dimResult   = "Result"
	dimAction   = "Action"
	dimMethod   = "Method"
	dimEndpoint = "Endpoint"
	dimStatus   = "Status"
)

// Metrics publishes Crixen billing metrics to a CloudWatch namespace.
type Metrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewMetrics creates a Metrics publisher.
func NewMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *Metrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Metrics{client: client, namespace: namespace, logger: logger}
}

// RecordReconciliation counts one webhook reconciliation outcome, dimensioned
// by provider and result (granted, already_paid, ignored_non_success, ...).
func (m *Metrics) RecordReconciliation(provider types.PaymentProvider, result string) {
	m.put(metricReconciliation, 1, cwtypes.StandardUnitCount,
		cwtypes.Dimension{Name: aws.String(dimProvider), Value: aws.String(string(provider))},
		cwtypes.Dimension{Name: aws.String(dimResult), Value: aws.String(result)},
	)
}

// RecordSweep counts rows acted on by a scheduler pass (warning_sent,
// downgraded, replayed, archived, stale_pending).
func (m *Metrics) RecordSweep(action string, count int) {
	if count == 0 {
		return
	}
	m.put(metricSweepAction, float64(count), cwtypes.StandardUnitCount,
		cwtypes.Dimension{Name: aws.String(dimAction), Value: aws.String(action)},
	)
}

// RecordRequest emits API request count and latency.
func (m *Metrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(dimMethod), Value: aws.String(method)},
		{Name: aws.String(dimEndpoint), Value: aws.String(endpoint)},
		{Name: aws.String(dimStatus), Value: aws.String(status)},
	}
	m.put(metricAPIRequest, 1, cwtypes.StandardUnitCount, dims...)
	m.put(metricAPILatency, float64(duration.Milliseconds()), cwtypes.StandardUnitMilliseconds, dims...)
}

func (m *Metrics) put(name string, value float64, unit cwtypes.StandardUnit, dims ...cwtypes.Dimension) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(value),
				Unit:       unit,
				Dimensions: dims,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Warn("failed to publish metric",
			slog.String("metric", name),
			slog.Any("error", err),
		)
	}
}
