package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/couchcryptid/marine-alerts/internal/domain"
	"github.com/couchcryptid/marine-alerts/internal/ledger"
)

// scanTarget is one location of the hourly scan with the addresses to notify.
type scanTarget struct {
	location   domain.Location
	recipients []string
}

// hazardScan collects one scan's alerts and the ledger entries they claimed.
type hazardScan struct {
	batch *batch

	mu     sync.Mutex
	claims map[ledger.Key]time.Time
}

func newHazardScan() *hazardScan {
	return &hazardScan{batch: &batch{}, claims: make(map[ledger.Key]time.Time)}
}

func (s *hazardScan) claimed(key ledger.Key, at time.Time) {
	s.mu.Lock()
	s.claims[key] = at
	s.mu.Unlock()
}

func (s *hazardScan) releaseAll(l *ledger.Ledger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, at := range s.claims {
		l.Release(key, at)
	}
	clear(s.claims)
}

// HourlyScan evaluates every saved and monitoring location and dispatches one
// batch of hazard alerts. Saved locations alert their owner; monitoring
// locations alert every active user. A location alerts at most once per
// scan window. Only a registry failure is returned.
func (o *Orchestrator) HourlyScan(ctx context.Context) error {
	saved, err := o.Registry.SavedLocations(ctx)
	if err != nil {
		return fmt.Errorf("hourly scan: %w", err)
	}
	users, err := o.Registry.ActiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("hourly scan: %w", err)
	}

	targets := scanTargets(saved, o.Registry.Monitoring(), users)
	o.Logger.Info("hourly scan started", "locations", len(targets))

	s := newHazardScan()
	o.forEach(ctx, len(targets), func(ctx context.Context, i int) {
		o.scanLocation(ctx, targets[i], s)
	})

	if err := ctx.Err(); err != nil {
		// Nothing was sent, so the claimed locations may alert again.
		s.releaseAll(o.Ledger)
		return err
	}

	notifications := s.batch.list()
	results := o.Dispatcher.Dispatch(ctx, notifications)

	o.Ledger.Prune(o.Clock.Now(), max(o.settings.ScanWindow, o.settings.ThresholdWindow))
	o.Metrics.LedgerEntries.Set(float64(o.Ledger.Len()))

	o.Logger.Info("hourly scan complete",
		"locations", len(targets),
		"alerts", len(notifications),
		"delivered", results.Succeeded(),
	)
	return nil
}

// scanLocation evaluates one location and queues its alerts. Every failure
// stays local to the location.
func (o *Orchestrator) scanLocation(ctx context.Context, t scanTarget, s *hazardScan) {
	loc := t.location
	key := ledger.Key{Pathway: ledger.PathwayScan, Location: loc.ID}
	window := o.settings.ScanWindow

	if o.Ledger.ShouldSuppress(key, o.Clock.Now(), window) {
		o.Metrics.Locations.WithLabelValues(string(cycleScan), "suppressed").Inc()
		o.Logger.Debug("location suppressed", "location", loc.ID)
		return
	}

	obs, err := o.Weather.CurrentWeather(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		o.Metrics.Locations.WithLabelValues(string(cycleScan), "unavailable").Inc()
		o.Logger.Warn("weather unavailable", "location", loc.ID, "error", err)
		return
	}

	kind, probability := obs.Hazards.Max()
	if probability < o.settings.ProbabilityBar {
		o.Metrics.Locations.WithLabelValues(string(cycleScan), "below_bar").Inc()
		return
	}

	// Another worker or a concurrent trigger may have alerted meanwhile.
	now := o.Clock.Now()
	if !o.Ledger.TryAcquire(key, now, window) {
		o.Metrics.Locations.WithLabelValues(string(cycleScan), "suppressed").Inc()
		return
	}
	s.claimed(key, now)
	o.Metrics.Locations.WithLabelValues(string(cycleScan), "evaluated").Inc()

	bulletins, err := o.Bulletins.Bulletins(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		o.Logger.Warn("bulletins unavailable", "location", loc.ID, "error", err)
	}
	forecast, err := o.Weather.Forecast(ctx, loc.Latitude, loc.Longitude, o.settings.ScanForecastDays)
	if err != nil {
		o.Logger.Warn("forecast unavailable", "location", loc.ID, "error", err)
	}
	analysis, unavailable := o.analyze(ctx, domain.AnalysisRequest{
		Location:  loc,
		Current:   obs,
		Forecast:  forecast,
		Bulletins: bulletins,
	})

	severity := domain.ClassifySeverity(kind, obs)
	message := domain.AlertMessage(kind, obs, loc.Name)
	for _, recipient := range t.recipients {
		s.batch.add(domain.Notification{
			Recipient:           recipient,
			Kind:                domain.NotificationHazard,
			LocationName:        loc.Name,
			Hazard:              kind,
			Severity:            severity,
			Message:             message,
			Observation:         &obs,
			Forecast:            &forecast,
			Bulletins:           bulletins,
			Analysis:            analysis,
			AnalysisUnavailable: unavailable,
			CreatedAt:           now,
		})
	}
	o.Metrics.AlertsTriggered.WithLabelValues(string(ledger.PathwayScan), string(kind)).Inc()
	o.Logger.Info("hazard detected",
		"location", loc.ID,
		"hazard", kind,
		"probability", probability,
		"severity", severity,
		"recipients", len(t.recipients),
	)
}

func scanTargets(saved []domain.SavedLocation, monitoring []domain.Location, users []domain.User) []scanTarget {
	targets := make([]scanTarget, 0, len(saved)+len(monitoring))
	for _, s := range saved {
		if !s.Owner.Active || s.Owner.Email == "" {
			continue
		}
		targets = append(targets, scanTarget{location: s.Location, recipients: []string{s.Owner.Email}})
	}

	everyone := make([]string, 0, len(users))
	for _, u := range users {
		if u.Active && u.Email != "" {
			everyone = append(everyone, u.Email)
		}
	}
	if len(everyone) == 0 {
		return targets
	}
	for _, m := range monitoring {
		targets = append(targets, scanTarget{location: m, recipients: everyone})
	}
	return targets
}
