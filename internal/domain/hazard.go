package domain

import "fmt"

// HazardKind identifies one of the maritime hazards users can subscribe to.
type HazardKind string

const (
	HazardStorm    HazardKind = "storm"
	HazardHighWind HazardKind = "high_wind"
	HazardFog      HazardKind = "fog"
	HazardRoughSea HazardKind = "rough_sea"
	HazardTsunami  HazardKind = "tsunami"
)

// AllHazardKinds lists every hazard kind in a stable order.
var AllHazardKinds = []HazardKind{
	HazardStorm,
	HazardHighWind,
	HazardFog,
	HazardRoughSea,
	HazardTsunami,
}

// ParseHazardKind validates a raw hazard kind string.
func ParseHazardKind(s string) (HazardKind, error) {
	switch k := HazardKind(s); k {
	case HazardStorm, HazardHighWind, HazardFog, HazardRoughSea, HazardTsunami:
		return k, nil
	default:
		return "", fmt.Errorf("unknown hazard kind %q", s)
	}
}

// Severity is the tier attached to a dispatched alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// HazardProbabilityBar is the minimum dominant probability that makes the
// hourly scan consider a dispatch.
const HazardProbabilityBar = 0.7
