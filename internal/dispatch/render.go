// Package dispatch hands rendered notifications to delivery channels. The
// engine decides whether an alert notifies; this package owns how the
// notification leaves the process, either onto the transport queue or into
// the log when no queue is configured.
package dispatch

import (
	"fmt"
	"strings"

	"fieldwatch/internal/types"
)

// Render builds the channel-agnostic notification content for a triggered
// alert. Inputs are the alert's condition, the observed value, and the
// location display name; transports own any further formatting.
func Render(def *types.AlertDefinition, value float64, loc *types.LocationMetadata) types.RenderedMessage {
	name := "unknown location"
	if loc != nil && loc.DisplayName != "" {
		name = loc.DisplayName
	}

	unit := ""
	if info, ok := types.MetricCatalog[def.Metric]; ok {
		unit = info.Unit
	}

	return types.RenderedMessage{
		Subject: fmt.Sprintf("Fieldwatch alert: %s at %s", def.Name, name),
		Body: fmt.Sprintf("%s at %s measured %s.\nAlert condition: %s.",
			metricLabel(def.Metric),
			name,
			formatReading(value, unit),
			conditionPhrase(def, unit),
		),
	}
}

// metricLabel turns a metric kind into a human-readable label, e.g.
// "vegetation_index" becomes "Vegetation index".
func metricLabel(kind types.MetricKind) string {
	s := strings.ReplaceAll(string(kind), "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// conditionPhrase describes the configured comparison in words.
func conditionPhrase(def *types.AlertDefinition, unit string) string {
	switch def.Operator {
	case types.OpGreaterThan:
		return "above " + formatReading(def.Threshold, unit)
	case types.OpLessThan:
		return "below " + formatReading(def.Threshold, unit)
	case types.OpEqualTo:
		return "at " + formatReading(def.Threshold, unit)
	case types.OpBetween:
		high := def.Threshold
		if def.ThresholdHigh != nil {
			high = *def.ThresholdHigh
		}
		return fmt.Sprintf("between %s and %s",
			formatReading(def.Threshold, unit), formatReading(high, unit))
	}
	return string(def.Operator) + " " + formatReading(def.Threshold, unit)
}

// formatReading renders a value with its unit at the engine's comparison
// granularity.
func formatReading(v float64, unit string) string {
	if unit == "" {
		return fmt.Sprintf("%.1f", v)
	}
	return fmt.Sprintf("%.1f %s", v, unit)
}
