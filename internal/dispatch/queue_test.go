package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"fieldwatch/internal/types"
)

// --- Mock SQS Client ---

// mockSQSSender captures SendMessage calls for test assertions.
type mockSQSSender struct {
	// calls records every SendMessageInput passed to SendMessage.
	calls []*sqs.SendMessageInput
	// err is returned by SendMessage if non-nil (simulates SQS failures).
	err error
	// messageID is the MessageId returned on success.
	messageID string
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	out := &sqs.SendMessageOutput{}
	if m.messageID != "" {
		out.MessageId = aws.String(m.messageID)
	}
	return out, nil
}

// --- Test Helpers ---

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789/fieldwatch-notify"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError + 1,
	}))
}

func newTestDispatcher(mock *mockSQSSender) *QueueDispatcher {
	return NewQueueDispatcher(mock, testQueueURL, discardLogger())
}

func testMessage() types.RenderedMessage {
	return types.RenderedMessage{
		Subject: "Fieldwatch alert: frost watch at North Orchard",
		Body:    "Temperature at North Orchard measured -2.0 celsius.\nAlert condition: below 0.0 celsius.",
	}
}

// --- Tests ---

func TestQueueDispatcher_PublishesDispatchMessage(t *testing.T) {
	mock := &mockSQSSender{}
	d := newTestDispatcher(mock)

	recipients := []string{"grower@example.com", "ops@example.com"}
	_, err := d.Send(context.Background(), types.ChannelEmail, recipients, testMessage())
	if err != nil {
		t.Fatalf("Send returned unexpected error: %v", err)
	}

	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 SQS call, got %d", len(mock.calls))
	}
	call := mock.calls[0]
	if *call.QueueUrl != testQueueURL {
		t.Errorf("expected queue URL %q, got %q", testQueueURL, *call.QueueUrl)
	}

	var payload types.DispatchMessage
	if err := json.Unmarshal([]byte(*call.MessageBody), &payload); err != nil {
		t.Fatalf("failed to unmarshal message body: %v", err)
	}
	if payload.Channel != types.ChannelEmail {
		t.Errorf("expected channel %q, got %q", types.ChannelEmail, payload.Channel)
	}
	if len(payload.Recipients) != 2 || payload.Recipients[0] != "grower@example.com" {
		t.Errorf("unexpected recipients: %v", payload.Recipients)
	}
	if payload.Message.Subject != testMessage().Subject {
		t.Errorf("unexpected subject: %q", payload.Message.Subject)
	}
	if payload.EnqueuedAt.IsZero() {
		t.Error("expected EnqueuedAt to be set")
	}
}

func TestQueueDispatcher_SetsChannelMessageAttribute(t *testing.T) {
	mock := &mockSQSSender{}
	d := newTestDispatcher(mock)

	_, err := d.Send(context.Background(), types.ChannelSMS, []string{"+15035550100"}, testMessage())
	if err != nil {
		t.Fatalf("Send returned unexpected error: %v", err)
	}

	attrs := mock.calls[0].MessageAttributes
	attr, ok := attrs["channel"]
	if !ok {
		t.Fatal("expected 'channel' message attribute")
	}
	if *attr.DataType != "String" {
		t.Errorf("expected DataType String, got %q", *attr.DataType)
	}
	if *attr.StringValue != "sms" {
		t.Errorf("expected channel attribute 'sms', got %q", *attr.StringValue)
	}
}

func TestQueueDispatcher_CarriesAlertAndTraceIDs(t *testing.T) {
	mock := &mockSQSSender{}
	d := newTestDispatcher(mock)

	ctx := types.WithTraceID(context.Background(), "cycle-42")
	ctx = types.WithAlertID(ctx, "a3a52fc0-0000-0000-0000-000000000001")

	_, err := d.Send(ctx, types.ChannelEmail, []string{"grower@example.com"}, testMessage())
	if err != nil {
		t.Fatalf("Send returned unexpected error: %v", err)
	}

	var payload types.DispatchMessage
	if err := json.Unmarshal([]byte(*mock.calls[0].MessageBody), &payload); err != nil {
		t.Fatalf("failed to unmarshal message body: %v", err)
	}
	if payload.TraceID != "cycle-42" {
		t.Errorf("expected trace ID 'cycle-42', got %q", payload.TraceID)
	}
	if payload.AlertID != "a3a52fc0-0000-0000-0000-000000000001" {
		t.Errorf("unexpected alert ID %q", payload.AlertID)
	}
}

func TestQueueDispatcher_ReturnsProviderMessageID(t *testing.T) {
	mock := &mockSQSSender{messageID: "sqs-msg-789"}
	d := newTestDispatcher(mock)

	res, err := d.Send(context.Background(), types.ChannelEmail, []string{"grower@example.com"}, testMessage())
	if err != nil {
		t.Fatalf("Send returned unexpected error: %v", err)
	}
	if res.ProviderMessageID != "sqs-msg-789" {
		t.Errorf("expected provider message ID 'sqs-msg-789', got %q", res.ProviderMessageID)
	}
}

func TestQueueDispatcher_EmptyRecipientsRejected(t *testing.T) {
	mock := &mockSQSSender{}
	d := newTestDispatcher(mock)

	_, err := d.Send(context.Background(), types.ChannelEmail, nil, testMessage())
	if err == nil {
		t.Fatal("expected error for empty recipients")
	}
	if types.CodeOf(err) != types.ErrCodeDispatchFailed {
		t.Errorf("expected code %q, got %q", types.ErrCodeDispatchFailed, types.CodeOf(err))
	}
	if len(mock.calls) != 0 {
		t.Errorf("expected no SQS call, got %d", len(mock.calls))
	}
}

func TestQueueDispatcher_SQSFailureMapsToUnavailable(t *testing.T) {
	mock := &mockSQSSender{err: errors.New("AWS.SimpleQueueService.NonExistentQueue")}
	d := newTestDispatcher(mock)

	_, err := d.Send(context.Background(), types.ChannelEmail, []string{"grower@example.com"}, testMessage())
	if err == nil {
		t.Fatal("expected error from SQS failure")
	}
	if types.CodeOf(err) != types.ErrCodeDispatchUnavailable {
		t.Errorf("expected code %q, got %q", types.ErrCodeDispatchUnavailable, types.CodeOf(err))
	}
	if !strings.Contains(err.Error(), "failed to publish") {
		t.Errorf("unexpected error message: %v", err)
	}
}
