// Package observe provides metrics collectors for the API chassis. The
// CloudWatch implementation publishes request telemetry; the noop collector
// serves local development and tests.
package observe

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric names emitted by the API chassis.
const (
	metricAPILatency      = "APILatency"
	metricAPIRequestCount = "APIRequestCount"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchCollector implements core.MetricsCollector by emitting request
// latency and count metrics to AWS CloudWatch.
//
// Metrics emitted:
//   - APILatency: Dims {Method, Endpoint} -- request duration
//   - APIRequestCount: Dims {Method, Endpoint, Status} -- on every request
type CloudWatchCollector struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchCollector creates a collector publishing to the given
// CloudWatch namespace.
func NewCloudWatchCollector(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchCollector{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordRequest publishes one latency datum and one count datum for the
// completed request. Failures are logged, never propagated: metrics must
// not affect request handling.
func (c *CloudWatchCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String("Method"), Value: aws.String(method)},
		{Name: aws.String("Endpoint"), Value: aws.String(endpoint)},
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricAPILatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: dims,
			},
			{
				MetricName: aws.String(metricAPIRequestCount),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: append(dims, cwtypes.Dimension{
					Name:  aws.String("Status"),
					Value: aws.String(status),
				}),
			},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := c.client.PutMetricData(ctx, input); err != nil {
		c.logger.Error("failed to record request metrics",
			"error", err,
			"method", method,
			"endpoint", endpoint,
		)
	}
}

// NoopCollector discards all metrics. Used in local mode and tests.
type NoopCollector struct{}

// RecordRequest implements core.MetricsCollector as a no-op.
func (NoopCollector) RecordRequest(_, _, _ string, _ time.Duration) {}
