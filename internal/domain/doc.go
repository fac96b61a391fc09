// Package domain models maritime hazard observations and the alerts derived from them.
//
// # Hazard Kinds
//
// The closed set of hazards a user can subscribe to:
//
//	storm      probability of a storm at the point, 0–1
//	tsunami    probability of a tsunami at the point, 0–1
//	high_wind  10 m wind speed, km/h
//	rough_sea  significant wave height, metres
//	fog        horizontal visibility, metres
//
// Probabilities are produced by the weather adapter from raw conditions; see
// [HazardProbabilities]. Every reading carries all five so that a missing
// value is an explicit zero rather than an absent map key.
//
// # Thresholds
//
// A user threshold fires on a strict comparison. For fog the comparison is
// inverted (visibility below the threshold), for every other kind it is the
// measurement above the threshold. Equality never fires. See [Triggered].
//
// # Severity
//
// Severity is a pure function of the hazard kind and the reading:
//
//	tsunami:   always critical
//	storm:     p > 0.8 high | p > 0.5 medium | else low
//	high_wind: > 50 km/h high | > 30 km/h medium | else low
//	fog, rough_sea: medium
//
// See [ClassifySeverity].
//
// # Monitoring Bar
//
// The hourly scan dispatches only when the strongest hazard probability at a
// point reaches [HazardProbabilityBar]. The dominant kind (highest
// probability, ties broken by [AllHazardKinds] order) names the alert.
package domain
