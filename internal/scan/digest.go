package scan

import (
	"context"
	"fmt"

	"github.com/couchcryptid/marine-alerts/internal/domain"
)

type digestJob struct {
	user     int // index into the registry groups
	slot     int // index into that user's locations
	location domain.Location
}

// DailyDigest sends each active user one digest covering all of their saved
// locations. Locations whose weather cannot be fetched are left out; a user
// with nothing left gets no digest. Only a registry failure is returned.
func (o *Orchestrator) DailyDigest(ctx context.Context) error {
	groups, err := o.Registry.LocationsByUser(ctx)
	if err != nil {
		return fmt.Errorf("daily digest: %w", err)
	}

	entries := make([][]*domain.DigestEntry, len(groups))
	var jobs []digestJob
	for u, g := range groups {
		entries[u] = make([]*domain.DigestEntry, len(g.Locations))
		for l, loc := range g.Locations {
			jobs = append(jobs, digestJob{user: u, slot: l, location: loc})
		}
	}
	o.Logger.Info("daily digest started", "users", len(groups), "locations", len(jobs))

	// Each job writes only its own slot.
	o.forEach(ctx, len(jobs), func(ctx context.Context, i int) {
		j := jobs[i]
		entries[j.user][j.slot] = o.digestEntry(ctx, j.location)
	})
	if err := ctx.Err(); err != nil {
		return err
	}

	now := o.Clock.Now()
	var notifications []domain.Notification
	for u, g := range groups {
		if !g.User.Active || g.User.Email == "" {
			continue
		}
		var digest []domain.DigestEntry
		for _, e := range entries[u] {
			if e != nil {
				digest = append(digest, *e)
			}
		}
		if len(digest) == 0 {
			o.Logger.Info("digest skipped, no location data", "user_id", g.User.ID)
			continue
		}
		notifications = append(notifications, domain.Notification{
			Recipient: g.User.Email,
			Kind:      domain.NotificationDigest,
			Digest:    digest,
			CreatedAt: now,
		})
	}

	results := o.Dispatcher.Dispatch(ctx, notifications)
	o.Logger.Info("daily digest complete", "digests", len(notifications), "delivered", results.Succeeded())
	return nil
}

func (o *Orchestrator) digestEntry(ctx context.Context, loc domain.Location) *domain.DigestEntry {
	obs, err := o.Weather.CurrentWeather(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		o.Metrics.Locations.WithLabelValues(string(cycleDigest), "unavailable").Inc()
		o.Logger.Warn("weather unavailable", "location", loc.ID, "error", err)
		return nil
	}
	forecast, err := o.Weather.Forecast(ctx, loc.Latitude, loc.Longitude, o.settings.DigestForecastDays)
	if err != nil {
		o.Metrics.Locations.WithLabelValues(string(cycleDigest), "unavailable").Inc()
		o.Logger.Warn("forecast unavailable", "location", loc.ID, "error", err)
		return nil
	}
	o.Metrics.Locations.WithLabelValues(string(cycleDigest), "evaluated").Inc()

	analysis, unavailable := o.analyze(ctx, domain.AnalysisRequest{Location: loc, Current: obs, Forecast: forecast})
	return &domain.DigestEntry{
		LocationName:        loc.Name,
		Current:             obs,
		Forecast:            forecast,
		Analysis:            analysis,
		AnalysisUnavailable: unavailable,
	}
}
