package types

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrorCode is a typed string for categorizing engine errors.
type ErrorCode string

// Error code constants, grouped by the engine's failure taxonomy. The prefix
// determines how the scheduler treats the failure: data_unavailable codes are
// routine skips, upstream codes are transient, dispatch and config codes are
// actionable, internal codes are bugs or infrastructure faults.
const (
	// Data unavailable: valid non-error states, alert skipped this cycle.
	ErrCodeDataMissingCoordinates ErrorCode = "data_unavailable_missing_coordinates"
	ErrCodeDataMissingMetric      ErrorCode = "data_unavailable_missing_metric"
	ErrCodeDataObservationMiss    ErrorCode = "data_unavailable_observation_miss"
	ErrCodeDataInsufficientChecks ErrorCode = "data_unavailable_insufficient_history"

	// Upstream transient failures: stale fallback or skip, retried next cycle.
	ErrCodeUpstreamTimeout     ErrorCode = "upstream_timeout"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamBadPayload  ErrorCode = "upstream_bad_payload"
	ErrCodeUpstreamBreakerOpen ErrorCode = "upstream_breaker_open"

	// Dispatch failures: trigger recorded with notification_sent=false.
	ErrCodeDispatchFailed      ErrorCode = "dispatch_failed"
	ErrCodeDispatchUnavailable ErrorCode = "dispatch_queue_unavailable"

	// Configuration errors: alert skipped, surfaced loudly.
	ErrCodeConfigInvalidOperator  ErrorCode = "config_invalid_operator"
	ErrCodeConfigInvalidFrequency ErrorCode = "config_invalid_frequency"
	ErrCodeConfigUnknownMetric    ErrorCode = "config_unknown_metric"
	ErrCodeConfigThresholdRange   ErrorCode = "config_threshold_out_of_range"
	ErrCodeConfigMissingThreshold ErrorCode = "config_missing_between_threshold"
	ErrCodeConfigInvalidRecipient ErrorCode = "config_invalid_recipient"
	ErrCodeConfigNoRecipients     ErrorCode = "config_no_recipients"

	// Internal faults.
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// LogLevel maps an ErrorCode to the slog level the scheduler logs it at.
// Data-unavailable states are routine and stay at debug; upstream hiccups
// warrant a warning; everything else is an error. Unrecognized codes log as
// errors as a safe default.
func (c ErrorCode) LogLevel() slog.Level {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "data_unavailable_"):
		return slog.LevelDebug
	case strings.HasPrefix(s, "upstream_"):
		return slog.LevelWarn
	case strings.HasPrefix(s, "dispatch_"):
		return slog.LevelError
	case strings.HasPrefix(s, "config_"):
		return slog.LevelError
	default:
		return slog.LevelError
	}
}

// Transient reports whether the failure is expected to clear on its own,
// meaning the alert should simply be retried on a later cycle.
func (c ErrorCode) Transient() bool {
	s := string(c)
	return strings.HasPrefix(s, "data_unavailable_") || strings.HasPrefix(s, "upstream_")
}

// AppError is the standard application error type used throughout the engine.
// Repository, upstream, and dispatch boundaries wrap failures as AppError so
// the scheduler can classify them without string matching.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error. This is the standard constructor for engine
// errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf extracts the ErrorCode from an error chain. Returns
// ErrCodeInternalUnexpected when the chain contains no AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalUnexpected
}
