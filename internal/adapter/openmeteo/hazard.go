package openmeteo

import "github.com/couchcryptid/marine-alerts/internal/domain"

// Heuristic cut-offs for deriving hazard probabilities from raw readings.
// Open-Meteo publishes no tsunami signal, so that probability stays 0.
const (
	highWindOnset  = 30.0 // km/h
	highWindSpan   = 30.0
	stormWindOnset = 25.0 // km/h
	stormWindSpan  = 25.0
	fogVisibility  = 1000.0 // metres
	roughSeaOnset  = 2.0    // metres
	roughSeaSpan   = 3.0
	stormPrecipPct = 50.0
)

func currentHazards(windSpeed, visibility, waveHeight float64) domain.HazardProbabilities {
	var p domain.HazardProbabilities
	if windSpeed > highWindOnset {
		p.HighWind = clamp01((windSpeed - highWindOnset) / highWindSpan)
	}
	if windSpeed > stormWindOnset {
		p.Storm = clamp01((windSpeed - stormWindOnset) / stormWindSpan)
	}
	if visibility < fogVisibility {
		p.Fog = clamp01((fogVisibility - visibility) / fogVisibility)
	}
	if waveHeight > roughSeaOnset {
		p.RoughSea = clamp01((waveHeight - roughSeaOnset) / roughSeaSpan)
	}
	return p
}

// dailyHazards scales storm likelihood by precipitation probability; a windy
// dry day is not a storm.
func dailyHazards(windMax, precipProbability, waveMax float64) domain.HazardProbabilities {
	var p domain.HazardProbabilities
	if windMax > stormWindOnset && precipProbability > stormPrecipPct {
		p.Storm = clamp01((windMax - stormWindOnset) / stormWindSpan * precipProbability / 100)
	}
	if windMax > highWindOnset {
		p.HighWind = clamp01((windMax - highWindOnset) / highWindSpan)
	}
	if waveMax > roughSeaOnset {
		p.RoughSea = clamp01((waveMax - roughSeaOnset) / roughSeaSpan)
	}
	return p
}

func conditionLabel(windSpeed, visibility float64) string {
	switch {
	case windSpeed > 50:
		return "Gale"
	case windSpeed > 30:
		return "Strong Wind"
	case visibility < 1000:
		return "Fog"
	case visibility < 5000:
		return "Poor Visibility"
	default:
		return "Clear"
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
