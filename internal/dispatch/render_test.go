package dispatch

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"fieldwatch/internal/types"
)

func testLocation(name string) *types.LocationMetadata {
	lat, lon := 45.523, -122.677
	return &types.LocationMetadata{
		ID:          uuid.New(),
		DisplayName: name,
		Latitude:    &lat,
		Longitude:   &lon,
	}
}

func TestRender_GreaterThan(t *testing.T) {
	def := &types.AlertDefinition{
		Name:      "heat stress",
		Metric:    types.MetricTemperature,
		Operator:  types.OpGreaterThan,
		Threshold: 35,
	}

	msg := Render(def, 36.2, testLocation("North Orchard"))

	if msg.Subject != "Fieldwatch alert: heat stress at North Orchard" {
		t.Errorf("unexpected subject: %q", msg.Subject)
	}
	wantBody := "Temperature at North Orchard measured 36.2 celsius.\nAlert condition: above 35.0 celsius."
	if msg.Body != wantBody {
		t.Errorf("unexpected body:\n got: %q\nwant: %q", msg.Body, wantBody)
	}
}

func TestRender_Between(t *testing.T) {
	high := 20.0
	def := &types.AlertDefinition{
		Name:          "ideal spraying window",
		Metric:        types.MetricWindSpeed,
		Operator:      types.OpBetween,
		Threshold:     5,
		ThresholdHigh: &high,
	}

	msg := Render(def, 12.5, testLocation("South Field"))

	if !strings.Contains(msg.Body, "between 5.0 kmh and 20.0 kmh") {
		t.Errorf("expected between phrase in body, got %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "measured 12.5 kmh") {
		t.Errorf("expected observed value in body, got %q", msg.Body)
	}
}

func TestRender_OperatorPhrases(t *testing.T) {
	tests := []struct {
		op   types.ConditionOperator
		want string
	}{
		{types.OpGreaterThan, "above 10.0 mm"},
		{types.OpLessThan, "below 10.0 mm"},
		{types.OpEqualTo, "at 10.0 mm"},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			def := &types.AlertDefinition{
				Name:      "rain check",
				Metric:    types.MetricRainfall,
				Operator:  tt.op,
				Threshold: 10,
			}
			msg := Render(def, 11, testLocation("East Plot"))
			if !strings.Contains(msg.Body, tt.want) {
				t.Errorf("expected %q in body, got %q", tt.want, msg.Body)
			}
		})
	}
}

func TestRender_VegetationIndexLabel(t *testing.T) {
	def := &types.AlertDefinition{
		Name:      "canopy decline",
		Metric:    types.MetricVegetationIndex,
		Operator:  types.OpLessThan,
		Threshold: 0.3,
	}

	msg := Render(def, 0.2, testLocation("Vineyard Block 7"))

	if !strings.HasPrefix(msg.Body, "Vegetation index at Vineyard Block 7") {
		t.Errorf("expected humanized metric label, got %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "0.2 index") {
		t.Errorf("expected unit-qualified value, got %q", msg.Body)
	}
}

func TestRender_NilLocationFallsBack(t *testing.T) {
	def := &types.AlertDefinition{
		Name:      "frost watch",
		Metric:    types.MetricTemperature,
		Operator:  types.OpLessThan,
		Threshold: 0,
	}

	msg := Render(def, -2, nil)

	if !strings.Contains(msg.Subject, "unknown location") {
		t.Errorf("expected fallback location in subject, got %q", msg.Subject)
	}
}
