package dispatch

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"fieldwatch/internal/types"
)

func TestLogDispatcher_SendSucceeds(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	d := NewLogDispatcher(logger)

	res, err := d.Send(context.Background(), types.ChannelEmail, []string{"grower@example.com"}, testMessage())
	if err != nil {
		t.Fatalf("Send returned unexpected error: %v", err)
	}
	if !strings.HasPrefix(res.ProviderMessageID, "log-") {
		t.Errorf("expected synthetic provider message ID, got %q", res.ProviderMessageID)
	}

	out := buf.String()
	if !strings.Contains(out, "notification (log dispatch)") {
		t.Errorf("expected log line, got %q", out)
	}
	if !strings.Contains(out, "grower@example.com") {
		t.Errorf("expected recipient in log output, got %q", out)
	}
}

func TestLogDispatcher_EmptyRecipientsRejected(t *testing.T) {
	d := NewLogDispatcher(discardLogger())

	_, err := d.Send(context.Background(), types.ChannelSMS, []string{}, testMessage())
	if err == nil {
		t.Fatal("expected error for empty recipients")
	}
	if types.CodeOf(err) != types.ErrCodeDispatchFailed {
		t.Errorf("expected code %q, got %q", types.ErrCodeDispatchFailed, types.CodeOf(err))
	}
}
