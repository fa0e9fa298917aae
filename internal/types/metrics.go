package types

import "fmt"

// MetricInfo defines the canonical rules for one metric kind: the key the
// observation provider uses for it, its unit, and the plausible value range
// used to validate alert thresholds.
type MetricInfo struct {
	ProviderKey string     `json:"provider_key"`
	Unit        string     `json:"unit"`
	Range       [2]float64 `json:"valid_range"`
	Description string     `json:"description"`
}

// MetricCatalog is the authoritative mapping between the MetricKind enum and
// the observation provider's vocabulary. All components validate against it:
// the upstream client translates provider keys through it, and definition
// validation checks thresholds against its ranges.
var MetricCatalog = map[MetricKind]MetricInfo{
	MetricTemperature:     {ProviderKey: "temp", Unit: "celsius", Range: [2]float64{-60, 60}, Description: "Air temperature at 2m above ground level"},
	MetricRainfall:        {ProviderKey: "rain", Unit: "mm", Range: [2]float64{0, 500}, Description: "Accumulated precipitation over the observation period"},
	MetricVegetationIndex: {ProviderKey: "ndvi", Unit: "index", Range: [2]float64{-1, 1}, Description: "Normalized difference vegetation index"},
	MetricWindSpeed:       {ProviderKey: "windspeed", Unit: "kmh", Range: [2]float64{0, 300}, Description: "Wind speed at 10m above ground level"},
}

// providerKeyIndex is the reverse lookup, built once at init from MetricCatalog.
var providerKeyIndex = func() map[string]MetricKind {
	idx := make(map[string]MetricKind, len(MetricCatalog))
	for kind, info := range MetricCatalog {
		idx[info.ProviderKey] = kind
	}
	return idx
}()

// ProviderKeyFor returns the observation provider's key for a metric kind.
func ProviderKeyFor(kind MetricKind) (string, bool) {
	info, ok := MetricCatalog[kind]
	return info.ProviderKey, ok
}

// KindForProviderKey returns the metric kind for an observation provider key.
func KindForProviderKey(key string) (MetricKind, bool) {
	kind, ok := providerKeyIndex[key]
	return kind, ok
}

// ValidateMetricCatalog checks that every metric kind has a provider key and
// that the mapping is bijective. Called at process startup so an unmapped or
// ambiguously mapped kind fails fast instead of silently skipping alerts at
// evaluation time.
func ValidateMetricCatalog() error {
	for _, kind := range AllMetricKinds() {
		info, ok := MetricCatalog[kind]
		if !ok {
			return fmt.Errorf("metric catalog: kind %q has no entry", kind)
		}
		if info.ProviderKey == "" {
			return fmt.Errorf("metric catalog: kind %q has an empty provider key", kind)
		}
		if mapped, ok := providerKeyIndex[info.ProviderKey]; !ok || mapped != kind {
			return fmt.Errorf("metric catalog: provider key %q does not round-trip for kind %q", info.ProviderKey, kind)
		}
	}
	if len(providerKeyIndex) != len(MetricCatalog) {
		return fmt.Errorf("metric catalog: %d kinds share %d provider keys", len(MetricCatalog), len(providerKeyIndex))
	}
	return nil
}

// ValidateThreshold checks that a threshold value is plausible for its metric.
func ValidateThreshold(kind MetricKind, threshold float64) error {
	info, ok := MetricCatalog[kind]
	if !ok {
		return fmt.Errorf("%s: unknown metric %q", ErrCodeConfigUnknownMetric, kind)
	}
	if threshold < info.Range[0] || threshold > info.Range[1] {
		return fmt.Errorf("%s: threshold %.2f outside valid range [%.2f, %.2f] for %s",
			ErrCodeConfigThresholdRange, threshold, info.Range[0], info.Range[1], kind)
	}
	return nil
}
