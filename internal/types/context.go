package types

import "context"

// Context Keys
type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	alertIDKey contextKey = "alert_id"
)

// WithTraceID stores the evaluation-cycle trace ID in the context. Every
// outbound call made on behalf of a cycle carries this ID for correlation.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// GetTraceID retrieves the trace ID from the context, or "" if unset.
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// WithAlertID stores the alert being dispatched in the context. Set by the
// dispatch worker so channel implementations can stamp outbound payloads
// without widening the Send interface.
func WithAlertID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, alertIDKey, id)
}

// GetAlertID retrieves the alert ID from the context, or "" if unset.
func GetAlertID(ctx context.Context) string {
	id, _ := ctx.Value(alertIDKey).(string)
	return id
}
