// Package rules implements the alert decision core: pure condition
// evaluation, the persistence window check that separates sustained breaches
// from single noisy samples, and the notification policy that decides
// whether a confirmed trigger may notify.
package rules

import (
	"math"

	"fieldwatch/internal/types"
)

// EqualityTolerance is the fixed epsilon for the equal_to operator. Observed
// values within this distance of the threshold count as equal, absorbing
// floating-point and sensor noise.
const EqualityTolerance = 0.1

// EvaluateCondition reports whether an observed value satisfies a comparison
// against the given threshold(s). thresholdHigh is consulted only by the
// between operator, whose bounds are inclusive.
//
// Missing data must never be treated as a trigger: a NaN or infinite value
// returns false for every operator, as does an unknown operator or a between
// comparison without its upper bound. Pure function, no side effects.
func EvaluateCondition(value float64, op types.ConditionOperator, threshold float64, thresholdHigh *float64) bool {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}

	switch op {
	case types.OpGreaterThan:
		return value > threshold
	case types.OpLessThan:
		return value < threshold
	case types.OpEqualTo:
		return math.Abs(value-threshold) <= EqualityTolerance
	case types.OpBetween:
		if thresholdHigh == nil {
			return false
		}
		return value >= threshold && value <= *thresholdHigh
	default:
		return false
	}
}

// EvaluateDefinition applies a definition's stored comparison to a value.
func EvaluateDefinition(def *types.AlertDefinition, value float64) bool {
	return EvaluateCondition(value, def.Operator, def.Threshold, def.ThresholdHigh)
}
