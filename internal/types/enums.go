package types

import "time"

// MetricKind identifies a weather telemetry metric an alert can observe.
type MetricKind string

const (
	MetricTemperature     MetricKind = "temperature"
	MetricRainfall        MetricKind = "rainfall"
	MetricVegetationIndex MetricKind = "vegetation_index"
	MetricWindSpeed       MetricKind = "wind_speed"
)

// AllMetricKinds lists every supported metric kind. Used for validation and
// for checking the provider vocabulary covers the full enum.
func AllMetricKinds() []MetricKind {
	return []MetricKind{MetricTemperature, MetricRainfall, MetricVegetationIndex, MetricWindSpeed}
}

// IsValid reports whether the metric kind is a member of the closed enum.
func (m MetricKind) IsValid() bool {
	switch m {
	case MetricTemperature, MetricRainfall, MetricVegetationIndex, MetricWindSpeed:
		return true
	}
	return false
}

// ConditionOperator is the comparison applied between an observed value and
// an alert's threshold(s).
type ConditionOperator string

const (
	OpGreaterThan ConditionOperator = "greater_than"
	OpLessThan    ConditionOperator = "less_than"
	// OpEqualTo matches within a fixed tolerance to absorb sensor noise.
	OpEqualTo ConditionOperator = "equal_to"
	// OpBetween requires both thresholds; bounds are inclusive.
	OpBetween ConditionOperator = "between"
)

// IsValid reports whether the operator is a member of the closed enum.
func (o ConditionOperator) IsValid() bool {
	switch o {
	case OpGreaterThan, OpLessThan, OpEqualTo, OpBetween:
		return true
	}
	return false
}

// AlertFrequency is the notification frequency policy of an alert.
type AlertFrequency string

const (
	// FrequencyOnce re-arms only after the condition has been observed as
	// not met since the last trigger.
	FrequencyOnce AlertFrequency = "once"
	// FrequencyHourly allows at most one notification per hour.
	FrequencyHourly AlertFrequency = "hourly"
	// FrequencyDaily allows at most one notification per 24 hours.
	FrequencyDaily AlertFrequency = "daily"
)

// IsValid reports whether the frequency is a member of the closed enum.
func (f AlertFrequency) IsValid() bool {
	switch f {
	case FrequencyOnce, FrequencyHourly, FrequencyDaily:
		return true
	}
	return false
}

// MinInterval returns the minimum time that must elapse after a trigger
// before this policy permits another notification. FrequencyOnce has no
// time-based interval; re-arming is reset-based, so it returns 0.
func (f AlertFrequency) MinInterval() time.Duration {
	switch f {
	case FrequencyHourly:
		return time.Hour
	case FrequencyDaily:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Channel identifies a notification delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// IsValid reports whether the channel is a member of the closed enum.
func (c Channel) IsValid() bool {
	return c == ChannelEmail || c == ChannelSMS
}
