package types

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Validation constraint constants.
const (
	MinLat        = -90.0
	MaxLat        = 90.0
	MinLon        = -180.0
	MaxLon        = 180.0
	MaxNameLength = 200

	// MaxPersistenceHours bounds a definition's persistence window. A week
	// of hourly checks is far beyond any sensible agronomic rule.
	MaxPersistenceHours = 168
)

// fieldValidate is the shared validator instance for field-level checks
// (email format, E.164 phone numbers). validator.Validate is safe for
// concurrent use; it caches struct metadata internally.
var (
	fieldValidate     *validator.Validate
	fieldValidateOnce sync.Once
)

func fieldValidator() *validator.Validate {
	fieldValidateOnce.Do(func() {
		fieldValidate = validator.New()
	})
	return fieldValidate
}

// ValidateCoordinates checks a latitude/longitude pair.
func ValidateCoordinates(lat, lon float64) error {
	if lat < MinLat || lat > MaxLat {
		return fmt.Errorf("latitude %.4f out of range [%.1f, %.1f]", lat, MinLat, MaxLat)
	}
	if lon < MinLon || lon > MaxLon {
		return fmt.Errorf("longitude %.4f out of range [%.1f, %.1f]", lon, MinLon, MaxLon)
	}
	return nil
}

// Validate checks the recipients lists: at least one entry across both
// channels, emails RFC-shaped, phones in E.164 form.
func (r Recipients) Validate() error {
	if r.IsEmpty() {
		return fmt.Errorf("%s: at least one email or phone recipient is required", ErrCodeConfigNoRecipients)
	}
	v := fieldValidator()
	for _, email := range r.Emails {
		if err := v.Var(email, "required,email"); err != nil {
			return fmt.Errorf("%s: invalid email %q", ErrCodeConfigInvalidRecipient, email)
		}
	}
	for _, phone := range r.Phones {
		if err := v.Var(phone, "required,e164"); err != nil {
			return fmt.Errorf("%s: invalid phone %q", ErrCodeConfigInvalidRecipient, phone)
		}
	}
	return nil
}

// Validate checks an alert definition's structural invariants. Definitions
// that fail are skipped by the scheduler with a config error, never
// evaluated. The CRUD layer runs the same checks at write time; this guards
// against rows that predate it or were edited out-of-band.
func (a *AlertDefinition) Validate() error {
	if !a.Metric.IsValid() {
		return fmt.Errorf("%s: %q", ErrCodeConfigUnknownMetric, a.Metric)
	}
	if !a.Operator.IsValid() {
		return fmt.Errorf("%s: %q", ErrCodeConfigInvalidOperator, a.Operator)
	}
	if !a.Frequency.IsValid() {
		return fmt.Errorf("%s: %q", ErrCodeConfigInvalidFrequency, a.Frequency)
	}
	if err := ValidateThreshold(a.Metric, a.Threshold); err != nil {
		return err
	}
	if a.Operator == OpBetween {
		if a.ThresholdHigh == nil {
			return fmt.Errorf("%s: operator %q requires a second threshold", ErrCodeConfigMissingThreshold, OpBetween)
		}
		if err := ValidateThreshold(a.Metric, *a.ThresholdHigh); err != nil {
			return err
		}
		if a.Threshold > *a.ThresholdHigh {
			return fmt.Errorf("%s: lower bound %.2f exceeds upper bound %.2f", ErrCodeConfigThresholdRange, a.Threshold, *a.ThresholdHigh)
		}
	}
	if a.PersistenceHours < 0 || a.PersistenceHours > MaxPersistenceHours {
		return fmt.Errorf("persistence hours %d out of range [0, %d]", a.PersistenceHours, MaxPersistenceHours)
	}
	return a.Recipients.Validate()
}
