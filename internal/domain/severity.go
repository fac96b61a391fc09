package domain

import (
	"fmt"
	"strings"
)

// ClassifySeverity maps a triggered hazard and its reading to a severity tier.
// Thresholds:
//   - tsunami: always critical
//   - storm: probability >0.8 high, >0.5 medium, else low
//   - high_wind: >50 km/h high, >30 km/h medium, else low
//   - fog, rough_sea: medium
func ClassifySeverity(kind HazardKind, obs Observation) Severity {
	switch kind {
	case HazardTsunami:
		return SeverityCritical
	case HazardStorm:
		p := obs.Hazards.Storm
		switch {
		case p > 0.8:
			return SeverityHigh
		case p > 0.5:
			return SeverityMedium
		default:
			return SeverityLow
		}
	case HazardHighWind:
		switch {
		case obs.WindSpeed > 50:
			return SeverityHigh
		case obs.WindSpeed > 30:
			return SeverityMedium
		default:
			return SeverityLow
		}
	default:
		return SeverityMedium
	}
}

// AlertMessage builds the short human-readable line attached to an alert.
func AlertMessage(kind HazardKind, obs Observation, locationName string) string {
	switch kind {
	case HazardStorm:
		return fmt.Sprintf("Storm conditions detected near %s. Avoid travel and seek shelter.", locationName)
	case HazardHighWind:
		return fmt.Sprintf("High wind warning: %s km/h winds detected near %s. Small vessels should avoid travel.",
			formatReading(obs.WindSpeed), locationName)
	case HazardFog:
		return fmt.Sprintf("Fog warning: Visibility reduced to %sm near %s. Navigate with extreme caution.",
			formatReading(obs.Visibility), locationName)
	case HazardRoughSea:
		return fmt.Sprintf("Rough sea conditions: %sm waves detected near %s. Exercise caution.",
			formatReading(obs.WaveHeight), locationName)
	case HazardTsunami:
		return fmt.Sprintf("Tsunami alert for %s. Move to higher ground immediately.", locationName)
	default:
		return fmt.Sprintf("Weather alert for %s. Check current conditions before travel.", locationName)
	}
}

// HazardLabel renders a kind for display, e.g. "high_wind" -> "High Wind".
func HazardLabel(kind HazardKind) string {
	words := strings.Split(string(kind), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func formatReading(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.1f", v), "0"), ".")
}
