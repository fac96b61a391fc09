package domain

import "context"

// WeatherSource provides current conditions and forecasts for a point.
type WeatherSource interface {
	// CurrentWeather returns the latest reading. It fails with ErrDataUnavailable
	// when upstream has nothing for the point.
	CurrentWeather(ctx context.Context, lat, lon float64) (Observation, error)

	// Forecast returns a daily outlook covering the given number of days.
	Forecast(ctx context.Context, lat, lon float64, days int) (Forecast, error)
}

// HazardClassifier turns weather and bulletins into a structured hazard analysis.
type HazardClassifier interface {
	Analyze(ctx context.Context, req AnalysisRequest) (Analysis, error)
}

// AuxiliaryContentSource provides textual hazard bulletins near a point.
type AuxiliaryContentSource interface {
	Bulletins(ctx context.Context, lat, lon float64) ([]Bulletin, error)
}

// Notifier delivers a batch of notifications and reports per-recipient outcomes.
type Notifier interface {
	SendBatch(ctx context.Context, batch []Notification) (Results, error)
}
