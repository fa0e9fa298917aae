package types

import (
	"time"

	"github.com/google/uuid"
)

// LocationMetadata describes a monitored location. Owned by the external
// field-management component; the engine treats it as read-only and cached.
// Coordinates are nullable: a location without them is a valid state, and
// alerts targeting it are skipped rather than errored.
type LocationMetadata struct {
	ID          uuid.UUID `json:"id" db:"id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Latitude    *float64  `json:"latitude,omitempty" db:"latitude"`
	Longitude   *float64  `json:"longitude,omitempty" db:"longitude"`
}

// HasCoordinates reports whether the location can be resolved against the
// observation provider.
func (l *LocationMetadata) HasCoordinates() bool {
	return l != nil && l.Latitude != nil && l.Longitude != nil
}

// AlertDefinition is a stored rule describing a metric, comparison,
// threshold(s), target location, and notification recipients. Created and
// mutated by the external CRUD layer; the engine reads active definitions
// each cycle and writes back only last_triggered.
type AlertDefinition struct {
	ID         uuid.UUID `json:"id" db:"id"`
	LocationID uuid.UUID `json:"location_id" db:"location_id"`
	Name       string    `json:"name" db:"name"`

	Metric   MetricKind        `json:"metric" db:"metric"`
	Operator ConditionOperator `json:"operator" db:"operator"`

	// Threshold is the primary bound. ThresholdHigh is required iff
	// Operator is OpBetween, with Threshold <= ThresholdHigh.
	Threshold     float64  `json:"threshold" db:"threshold"`
	ThresholdHigh *float64 `json:"threshold_high,omitempty" db:"threshold_high"`

	// PersistenceHours is how long the condition must hold before the
	// alert is considered truly triggered. 0 or 1 means immediate.
	PersistenceHours int `json:"persistence_hours" db:"persistence_hours"`

	Active     bool           `json:"active" db:"active"`
	Frequency  AlertFrequency `json:"frequency" db:"frequency"`
	Recipients Recipients     `json:"recipients" db:"recipients"`

	LastTriggered *time.Time `json:"last_triggered,omitempty" db:"last_triggered"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`

	// Location is populated by the scheduler once the referenced location
	// has been resolved through the location cache. Nil until then, and
	// nil when the referenced location row no longer exists.
	Location *LocationMetadata `json:"location,omitempty" db:"-"`
}

// Observation is a snapshot of metric readings for a location at a point in
// time. Ephemeral: it lives only in the weather cache and is never persisted.
type Observation struct {
	Metrics    map[MetricKind]float64 `json:"metrics"`
	ObservedAt time.Time              `json:"observed_at"`

	// Stale marks an observation served from the grace window after its
	// TTL expired, when the upstream provider was unavailable.
	Stale bool `json:"stale,omitempty"`
}

// Value returns the reading for a metric kind and whether it was present.
func (o *Observation) Value(kind MetricKind) (float64, bool) {
	if o == nil || o.Metrics == nil {
		return 0, false
	}
	v, ok := o.Metrics[kind]
	return v, ok
}

// AlertCheckRecord is one append-only evaluation log entry. Written once per
// evaluated alert per cycle regardless of outcome; the persistence tracker
// reads the most recent records to decide whether a breach is sustained.
type AlertCheckRecord struct {
	ID           uuid.UUID `json:"id" db:"id"`
	AlertID      uuid.UUID `json:"alert_id" db:"alert_id"`
	Value        float64   `json:"value" db:"value"`
	ConditionMet bool      `json:"condition_met" db:"condition_met"`
	CheckedAt    time.Time `json:"checked_at" db:"checked_at"`
}

// AlertTriggerRecord is one append-only trigger log entry, written whenever a
// confirmed alert reaches dispatch. NotificationSent records whether at least
// one channel accepted the notification.
type AlertTriggerRecord struct {
	ID               uuid.UUID `json:"id" db:"id"`
	AlertID          uuid.UUID `json:"alert_id" db:"alert_id"`
	Value            float64   `json:"value" db:"value"`
	NotificationSent bool      `json:"notification_sent" db:"notification_sent"`
	TriggeredAt      time.Time `json:"triggered_at" db:"triggered_at"`
}

// CycleRecord is the operational history row for one scheduler cycle.
type CycleRecord struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`

	// Status is "running" until the cycle finishes, then "completed" or
	// "failed".
	Status string `json:"status" db:"status"`

	Loaded     int `json:"loaded" db:"loaded"`
	Evaluated  int `json:"evaluated" db:"evaluated"`
	Triggered  int `json:"triggered" db:"triggered"`
	Dispatched int `json:"dispatched" db:"dispatched"`
	Skipped    int `json:"skipped" db:"skipped"`
	Failed     int `json:"failed" db:"failed"`
}

// RenderedMessage is the channel-agnostic notification content handed to the
// dispatcher. The engine supplies the render inputs; transports own any
// further formatting.
type RenderedMessage struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// DispatchResult reports the outcome of handing a notification to a channel.
type DispatchResult struct {
	ProviderMessageID string `json:"provider_message_id,omitempty"`
}

// DispatchMessage is the queue payload sent to the external transport
// workers. JSON tags use snake_case to match the worker contract.
type DispatchMessage struct {
	AlertID    string          `json:"alert_id"`
	Channel    Channel         `json:"channel"`
	Recipients []string        `json:"recipients"`
	Message    RenderedMessage `json:"message"`

	// TraceID ties the dispatch back to the scheduler cycle that produced it.
	TraceID string `json:"trace_id"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}
