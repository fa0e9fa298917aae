package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"fieldwatch/internal/metrics"
	"fieldwatch/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// QueueDispatcher publishes notifications onto the transport SQS queue.
// External transport workers consume the messages and perform the actual
// email or SMS delivery; from the engine's side, acceptance by SQS is
// success.
type QueueDispatcher struct {
	client   SQSSender
	queueURL string
	clock    types.Clock
	logger   *slog.Logger
}

// NewQueueDispatcher creates a QueueDispatcher targeting the given SQS queue.
func NewQueueDispatcher(client SQSSender, queueURL string, logger *slog.Logger) *QueueDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueDispatcher{
		client:   client,
		queueURL: queueURL,
		clock:    types.RealClock{},
		logger:   logger,
	}
}

// Send serializes a DispatchMessage and publishes it to the queue with the
// channel as a message attribute so workers can filter without decoding the
// body. The alert and trace IDs are read from the context, stamped there by
// the dispatch worker.
func (d *QueueDispatcher) Send(ctx context.Context, channel types.Channel, recipients []string, msg types.RenderedMessage) (types.DispatchResult, error) {
	if len(recipients) == 0 {
		return types.DispatchResult{}, types.NewAppError(types.ErrCodeDispatchFailed,
			"no recipients configured for channel "+string(channel), nil)
	}

	payload := types.DispatchMessage{
		AlertID:    types.GetAlertID(ctx),
		Channel:    channel,
		Recipients: recipients,
		Message:    msg,
		TraceID:    types.GetTraceID(ctx),
		EnqueuedAt: d.clock.Now(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return types.DispatchResult{}, types.NewAppError(types.ErrCodeDispatchFailed,
			"failed to marshal dispatch message", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"channel": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(channel)),
			},
		},
	}

	out, err := d.client.SendMessage(ctx, input)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(channel), "failed").Inc()
		return types.DispatchResult{}, types.NewAppError(types.ErrCodeDispatchUnavailable,
			"failed to publish notification to "+d.queueURL, err)
	}

	result := types.DispatchResult{}
	if out.MessageId != nil {
		result.ProviderMessageID = *out.MessageId
	}

	metrics.NotificationsTotal.WithLabelValues(string(channel), "sent").Inc()
	d.logger.InfoContext(ctx, "notification enqueued",
		"channel", string(channel),
		"recipients", len(recipients),
		"queue_url", d.queueURL,
		"provider_message_id", result.ProviderMessageID,
		"alert_id", payload.AlertID,
		"trace_id", payload.TraceID,
	)

	return result, nil
}

// Compile-time assertion that QueueDispatcher satisfies the dispatcher
// contract.
var _ types.NotificationDispatcher = (*QueueDispatcher)(nil)
