package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/marine-alerts/internal/domain"
)

// ErrOwnerInactive means a saved location's owner cannot receive notifications.
var ErrOwnerInactive = errors.New("location owner is not active")

// NotifyNow sends the owner of a saved location a weather update right away.
// It bypasses the schedule and the ledger.
func (o *Orchestrator) NotifyNow(ctx context.Context, locationID string) error {
	saved, err := o.Registry.SavedLocation(ctx, locationID)
	if err != nil {
		return fmt.Errorf("notify now: %w", err)
	}
	if !saved.Owner.Active || saved.Owner.Email == "" {
		return fmt.Errorf("notify now %s: %w", locationID, ErrOwnerInactive)
	}
	loc := saved.Location

	obs, err := o.Weather.CurrentWeather(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		return fmt.Errorf("notify now %s: %w", locationID, err)
	}
	forecast, err := o.Weather.Forecast(ctx, loc.Latitude, loc.Longitude, o.settings.ScanForecastDays)
	if err != nil {
		o.Logger.Warn("forecast unavailable", "location", loc.ID, "error", err)
	}
	bulletins, err := o.Bulletins.Bulletins(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		o.Logger.Warn("bulletins unavailable", "location", loc.ID, "error", err)
	}
	analysis, unavailable := o.analyze(ctx, domain.AnalysisRequest{
		Location:  loc,
		Current:   obs,
		Forecast:  forecast,
		Bulletins: bulletins,
	})

	n := domain.Notification{
		Recipient:           saved.Owner.Email,
		Kind:                domain.NotificationUpdate,
		LocationName:        loc.Name,
		Observation:         &obs,
		Forecast:            &forecast,
		Bulletins:           bulletins,
		Analysis:            analysis,
		AnalysisUnavailable: unavailable,
		CreatedAt:           o.Clock.Now(),
	}
	if kind, p := obs.Hazards.Max(); p >= o.settings.ProbabilityBar {
		n.Hazard = kind
		n.Severity = domain.ClassifySeverity(kind, obs)
		n.Message = domain.AlertMessage(kind, obs, loc.Name)
	}
	return o.deliver(ctx, n)
}

// SampleObservation is the fixed reading used by test notifications.
func SampleObservation() domain.Observation {
	return domain.Observation{
		Temperature:   22.5,
		Humidity:      65,
		WindSpeed:     15.3,
		WindDirection: 180,
		Pressure:      1013.2,
		Visibility:    8500,
		WaveHeight:    1.2,
		WavePeriod:    6,
		Condition:     "Clear",
		Hazards: domain.HazardProbabilities{
			Storm:    0.1,
			HighWind: 0.2,
			RoughSea: 0.1,
		},
	}
}

// SendTest sends recipient a weather update built from sample data so the
// delivery path can be checked end to end.
func (o *Orchestrator) SendTest(ctx context.Context, recipient string) error {
	if recipient == "" {
		return errors.New("send test: recipient is required")
	}
	obs := SampleObservation()
	obs.ObservedAt = o.Clock.Now()
	return o.deliver(ctx, domain.Notification{
		Recipient:    recipient,
		Kind:         domain.NotificationUpdate,
		LocationName: "Test Location",
		Message:      "This is a test notification. Marine alerts are configured correctly.",
		Observation:  &obs,
		CreatedAt:    obs.ObservedAt,
	})
}

func (o *Orchestrator) deliver(ctx context.Context, n domain.Notification) error {
	results := o.Dispatcher.Dispatch(ctx, []domain.Notification{n})
	if !results[n.Recipient] {
		return fmt.Errorf("%w: %s", domain.ErrDispatchFailure, n.Recipient)
	}
	return nil
}
