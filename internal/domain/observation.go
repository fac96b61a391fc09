package domain

import "time"

// HazardProbabilities holds the per-kind hazard probability at a point, each in [0, 1].
type HazardProbabilities struct {
	Storm    float64 `json:"storm"`
	HighWind float64 `json:"high_wind"`
	Fog      float64 `json:"fog"`
	RoughSea float64 `json:"rough_sea"`
	Tsunami  float64 `json:"tsunami"`
}

// Get returns the probability for kind, or 0 for an unknown kind.
func (p HazardProbabilities) Get(kind HazardKind) float64 {
	switch kind {
	case HazardStorm:
		return p.Storm
	case HazardHighWind:
		return p.HighWind
	case HazardFog:
		return p.Fog
	case HazardRoughSea:
		return p.RoughSea
	case HazardTsunami:
		return p.Tsunami
	default:
		return 0
	}
}

// Max returns the dominant hazard kind and its probability. Ties resolve to
// the kind listed first in AllHazardKinds. An all-zero reading returns ("", 0).
func (p HazardProbabilities) Max() (HazardKind, float64) {
	var (
		best     HazardKind
		bestProb float64
	)
	for _, k := range AllHazardKinds {
		if v := p.Get(k); v > bestProb {
			best, bestProb = k, v
		}
	}
	return best, bestProb
}

// Observation is a point-in-time weather reading for one location.
type Observation struct {
	Latitude      float64             `json:"latitude"`
	Longitude     float64             `json:"longitude"`
	ObservedAt    time.Time           `json:"observed_at"`
	Temperature   float64             `json:"temperature"`    // °C
	Humidity      float64             `json:"humidity"`       // %
	WindSpeed     float64             `json:"wind_speed"`     // km/h
	WindDirection float64             `json:"wind_direction"` // degrees
	Pressure      float64             `json:"pressure"`       // hPa
	Visibility    float64             `json:"visibility"`     // metres
	WaveHeight    float64             `json:"wave_height"`    // metres
	WavePeriod    float64             `json:"wave_period"`    // seconds
	Condition     string              `json:"condition"`
	Hazards       HazardProbabilities `json:"hazard_probabilities"`
}

// ForecastDay is one day of a multi-day forecast.
type ForecastDay struct {
	Date                     time.Time           `json:"date"`
	Temperature              float64             `json:"temperature"`
	WindSpeed                float64             `json:"wind_speed"`
	WindDirection            float64             `json:"wind_direction"`
	Precipitation            float64             `json:"precipitation"`
	PrecipitationProbability float64             `json:"precipitation_probability"`
	WaveHeight               float64             `json:"wave_height"`
	WavePeriod               float64             `json:"wave_period"`
	Visibility               float64             `json:"visibility"`
	Hazards                  HazardProbabilities `json:"hazard_probabilities"`
}

// Forecast is a multi-day outlook for one point.
type Forecast struct {
	Days []ForecastDay `json:"days"`
}

// Bulletin is a textual hazard bulletin from an auxiliary source (e.g. an NWS warning).
type Bulletin struct {
	Source     string    `json:"source"`
	Kind       string    `json:"kind"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Severity   string    `json:"severity,omitempty"`
	ValidFrom  time.Time `json:"valid_from,omitzero"`
	ValidUntil time.Time `json:"valid_until,omitzero"`
}

// AnalysisRequest is the input handed to a HazardClassifier.
type AnalysisRequest struct {
	Location  Location    `json:"location"`
	Current   Observation `json:"current"`
	Forecast  Forecast    `json:"forecast"`
	Bulletins []Bulletin  `json:"bulletins,omitempty"`
}

// Analysis is the structured output of a HazardClassifier.
type Analysis struct {
	Summary         string            `json:"summary"`
	RiskLevel       string            `json:"risk_level,omitempty"`
	Hazards         []string          `json:"hazards,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
	SeverityHints   map[string]string `json:"severity_hints,omitempty"`
}
