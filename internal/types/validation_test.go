package types

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func floatPtr(f float64) *float64 { return &f }

// validDefinition returns a definition that passes all structural checks.
// Tests mutate single fields to probe individual invariants.
func validDefinition() *AlertDefinition {
	return &AlertDefinition{
		ID:               uuid.New(),
		LocationID:       uuid.New(),
		Name:             "north paddock heat",
		Metric:           MetricTemperature,
		Operator:         OpGreaterThan,
		Threshold:        35,
		PersistenceHours: 1,
		Active:           true,
		Frequency:        FrequencyOnce,
		Recipients:       Recipients{Emails: []string{"grower@example.com"}},
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
}

func TestAlertDefinitionValidateOK(t *testing.T) {
	if err := validDefinition().Validate(); err != nil {
		t.Fatalf("Validate() on a well-formed definition returned %v", err)
	}
}

func TestAlertDefinitionValidateBetween(t *testing.T) {
	def := validDefinition()
	def.Operator = OpBetween

	// Missing upper bound.
	if err := def.Validate(); err == nil {
		t.Error("Validate() accepted between with no upper threshold")
	} else if !strings.Contains(err.Error(), string(ErrCodeConfigMissingThreshold)) {
		t.Errorf("Validate() error = %v, want %s", err, ErrCodeConfigMissingThreshold)
	}

	// Inverted bounds.
	def.Threshold = 30
	def.ThresholdHigh = floatPtr(20)
	if err := def.Validate(); err == nil {
		t.Error("Validate() accepted between with lower > upper")
	}

	// Well-formed.
	def.ThresholdHigh = floatPtr(40)
	if err := def.Validate(); err != nil {
		t.Errorf("Validate() rejected valid between bounds: %v", err)
	}

	// Equal bounds are allowed; between is inclusive.
	def.ThresholdHigh = floatPtr(30)
	if err := def.Validate(); err != nil {
		t.Errorf("Validate() rejected equal between bounds: %v", err)
	}
}

func TestAlertDefinitionValidateEnums(t *testing.T) {
	def := validDefinition()
	def.Metric = MetricKind("humidity")
	if err := def.Validate(); err == nil {
		t.Error("Validate() accepted unknown metric kind")
	}

	def = validDefinition()
	def.Operator = ConditionOperator(">=")
	if err := def.Validate(); err == nil {
		t.Error("Validate() accepted unknown operator")
	}

	def = validDefinition()
	def.Frequency = AlertFrequency("weekly")
	if err := def.Validate(); err == nil {
		t.Error("Validate() accepted unknown frequency")
	}
}

func TestAlertDefinitionValidateThresholdRange(t *testing.T) {
	def := validDefinition()
	def.Threshold = 120 // outside the temperature range
	if err := def.Validate(); err == nil {
		t.Error("Validate() accepted an implausible temperature threshold")
	} else if !strings.Contains(err.Error(), string(ErrCodeConfigThresholdRange)) {
		t.Errorf("Validate() error = %v, want %s", err, ErrCodeConfigThresholdRange)
	}
}

func TestRecipientsValidate(t *testing.T) {
	cases := []struct {
		name    string
		r       Recipients
		wantErr bool
	}{
		{"email only", Recipients{Emails: []string{"a@example.com"}}, false},
		{"phone only", Recipients{Phones: []string{"+14155552671"}}, false},
		{"both", Recipients{Emails: []string{"a@example.com"}, Phones: []string{"+14155552671"}}, false},
		{"empty", Recipients{}, true},
		{"bad email", Recipients{Emails: []string{"not-an-email"}}, true},
		{"bad phone", Recipients{Phones: []string{"555-CALL-NOW"}}, true},
		{"phone missing plus", Recipients{Phones: []string{"14155552671"}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.r.Validate()
			if tc.wantErr && err == nil {
				t.Errorf("Validate(%+v) = nil, want error", tc.r)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Validate(%+v) = %v, want nil", tc.r, err)
			}
		})
	}
}

func TestRecipientsChannels(t *testing.T) {
	r := Recipients{Emails: []string{"a@example.com"}, Phones: []string{"+14155552671"}}
	got := r.Channels()
	if len(got) != 2 || got[0] != ChannelEmail || got[1] != ChannelSMS {
		t.Errorf("Channels() = %v, want [email sms]", got)
	}

	if got := (Recipients{}).Channels(); len(got) != 0 {
		t.Errorf("Channels() on empty recipients = %v, want none", got)
	}
}

func TestValidateCoordinates(t *testing.T) {
	if err := ValidateCoordinates(45.5, -122.6); err != nil {
		t.Errorf("ValidateCoordinates(45.5, -122.6) = %v", err)
	}
	if err := ValidateCoordinates(91, 0); err == nil {
		t.Error("ValidateCoordinates accepted latitude 91")
	}
	if err := ValidateCoordinates(0, -181); err == nil {
		t.Error("ValidateCoordinates accepted longitude -181")
	}
}
