package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"fieldwatch/internal/types"
)

// DefaultNamespace is the CloudWatch namespace engine metrics publish under.
const DefaultNamespace = "Fieldwatch/Engine"

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability. Production code uses the *cloudwatch.Client from
// aws-sdk-go-v2.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// EngineMetrics publishes cycle outcomes and a heartbeat to CloudWatch. The
// heartbeat feeds a dead-man's-switch alarm: if the engine stops emitting
// it, the alarm fires even though the process may still be running.
//
// Publishing is best-effort. A metrics failure is logged and swallowed; it
// never affects cycle execution. A nil *EngineMetrics is valid and does
// nothing, so callers need no guard when CloudWatch is not configured.
type EngineMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewEngineMetrics creates an EngineMetrics publishing to the given
// namespace. An empty namespace falls back to DefaultNamespace.
func NewEngineMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *EngineMetrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EngineMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordCycle emits the outcome of one evaluation cycle: duration with a
// Status dimension, plus evaluated/triggered/dispatched counts.
func (m *EngineMetrics) RecordCycle(ctx context.Context, rec *types.CycleRecord, duration time.Duration) {
	if m == nil || m.client == nil {
		return
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("CycleDuration"),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String("Status"),
						Value: aws.String(rec.Status),
					},
				},
			},
			{
				MetricName: aws.String("AlertsEvaluated"),
				Value:      aws.Float64(float64(rec.Evaluated)),
				Unit:       cwtypes.StandardUnitCount,
			},
			{
				MetricName: aws.String("AlertsTriggered"),
				Value:      aws.Float64(float64(rec.Triggered)),
				Unit:       cwtypes.StandardUnitCount,
			},
			{
				MetricName: aws.String("NotificationsDispatched"),
				Value:      aws.Float64(float64(rec.Dispatched)),
				Unit:       cwtypes.StandardUnitCount,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.WarnContext(ctx, "failed to record cycle metrics",
			"error", err.Error(),
			"cycle_id", rec.ID.String(),
			"status", rec.Status,
		)
	}
}

// Heartbeat emits a single EngineHeartbeat count. Called once per scheduler
// tick whether or not a cycle ran.
func (m *EngineMetrics) Heartbeat(ctx context.Context) {
	if m == nil || m.client == nil {
		return
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("EngineHeartbeat"),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.WarnContext(ctx, "failed to record heartbeat", "error", err.Error())
	}
}
