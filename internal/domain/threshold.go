package domain

// Measurement returns the observed value a threshold for kind is compared to.
func Measurement(kind HazardKind, obs Observation) float64 {
	switch kind {
	case HazardStorm, HazardTsunami:
		return obs.Hazards.Get(kind)
	case HazardHighWind:
		return obs.WindSpeed
	case HazardRoughSea:
		return obs.WaveHeight
	case HazardFog:
		return obs.Visibility
	default:
		return 0
	}
}

// Triggered reports whether obs crosses threshold for kind. Fog fires when
// visibility drops below the threshold; every other kind fires above it.
// Comparisons are strict.
func Triggered(kind HazardKind, threshold float64, obs Observation) bool {
	v := Measurement(kind, obs)
	switch kind {
	case HazardFog:
		return v < threshold
	case HazardStorm, HazardTsunami, HazardHighWind, HazardRoughSea:
		return v > threshold
	default:
		return false
	}
}

// TriggeredKinds evaluates every enabled kind of a preference against obs.
// Kinds enabled without a threshold are returned in missing.
func TriggeredKinds(pref AlertPreference, obs Observation) (triggered, missing []HazardKind) {
	for _, kind := range pref.Kinds {
		threshold, ok := pref.Threshold(kind)
		if !ok {
			missing = append(missing, kind)
			continue
		}
		if Triggered(kind, threshold, obs) {
			triggered = append(triggered, kind)
		}
	}
	return triggered, missing
}
