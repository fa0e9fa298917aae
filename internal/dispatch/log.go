package dispatch

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"fieldwatch/internal/metrics"
	"fieldwatch/internal/types"
)

// LogDispatcher writes notifications to the log instead of a queue. Used in
// local and development environments where no transport queue is configured;
// every send succeeds with a synthetic provider message ID.
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher creates a LogDispatcher.
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

// Send logs the notification payload at info level.
func (d *LogDispatcher) Send(ctx context.Context, channel types.Channel, recipients []string, msg types.RenderedMessage) (types.DispatchResult, error) {
	if len(recipients) == 0 {
		return types.DispatchResult{}, types.NewAppError(types.ErrCodeDispatchFailed,
			"no recipients configured for channel "+string(channel), nil)
	}

	id := "log-" + uuid.New().String()
	d.logger.InfoContext(ctx, "notification (log dispatch)",
		"channel", string(channel),
		"recipients", recipients,
		"subject", msg.Subject,
		"body", msg.Body,
		"provider_message_id", id,
		"alert_id", types.GetAlertID(ctx),
		"trace_id", types.GetTraceID(ctx),
	)

	metrics.NotificationsTotal.WithLabelValues(string(channel), "sent").Inc()
	return types.DispatchResult{ProviderMessageID: id}, nil
}

var _ types.NotificationDispatcher = (*LogDispatcher)(nil)
