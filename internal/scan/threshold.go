package scan

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/marine-alerts/internal/domain"
	"github.com/couchcryptid/marine-alerts/internal/ledger"
)

// pendingAlert is a threshold alert waiting for its delivery outcome.
type pendingAlert struct {
	alert domain.DispatchedAlert
	key   ledger.Key
	email string
}

type thresholdCheck struct {
	batch *batch

	mu      sync.Mutex
	pending []pendingAlert
}

func (c *thresholdCheck) add(p pendingAlert, n domain.Notification) {
	c.mu.Lock()
	c.pending = append(c.pending, p)
	c.mu.Unlock()
	c.batch.add(n)
}

// ThresholdCheck evaluates every active alert preference against current
// weather and dispatches one batch of threshold alerts. An alert for the
// same user, location and kind fires at most once per threshold window; the
// audit trail is written only after delivery succeeds. Only a registry
// failure is returned.
func (o *Orchestrator) ThresholdCheck(ctx context.Context) error {
	prefs, err := o.Registry.ActivePreferences(ctx)
	if err != nil {
		return fmt.Errorf("threshold check: %w", err)
	}
	o.Logger.Debug("threshold check started", "preferences", len(prefs))

	c := &thresholdCheck{batch: &batch{}}
	o.forEach(ctx, len(prefs), func(ctx context.Context, i int) {
		o.checkPreference(ctx, prefs[i], c)
	})

	if err := ctx.Err(); err != nil {
		for _, p := range c.pending {
			o.Ledger.Release(p.key, p.alert.SentAt)
		}
		return err
	}
	if len(c.pending) == 0 {
		return nil
	}

	results := o.Dispatcher.Dispatch(ctx, c.batch.list())
	for _, p := range c.pending {
		o.settle(ctx, p, results[p.email])
	}

	o.Logger.Info("threshold check complete",
		"preferences", len(prefs),
		"alerts", len(c.pending),
		"delivered", results.Succeeded(),
	)
	return nil
}

// checkPreference evaluates one preference and queues the alerts that are
// not already covered by the audit trail.
func (o *Orchestrator) checkPreference(ctx context.Context, pref domain.AlertPreference, c *thresholdCheck) {
	if !pref.Active || !pref.User.Active || pref.User.Email == "" {
		return
	}
	loc := pref.Location

	obs, err := o.Weather.CurrentWeather(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		o.Metrics.Locations.WithLabelValues(string(cycleThreshold), "unavailable").Inc()
		o.Logger.Warn("weather unavailable", "location", loc.ID, "preference", pref.ID, "error", err)
		return
	}
	o.Metrics.Locations.WithLabelValues(string(cycleThreshold), "evaluated").Inc()

	triggered, missing := domain.TriggeredKinds(pref, obs)
	for _, kind := range missing {
		o.Logger.Warn("alert kind enabled without threshold", "preference", pref.ID, "kind", kind)
	}

	for _, kind := range triggered {
		key := ledger.Key{
			Pathway:  ledger.PathwayThreshold,
			Location: loc.ID,
			Kind:     string(kind),
			Subject:  strconv.FormatInt(pref.User.ID, 10),
		}
		now := o.Clock.Now()
		if !o.claimThreshold(ctx, key, pref.User.ID, loc.ID, kind, now) {
			continue
		}

		severity := domain.ClassifySeverity(kind, obs)
		message := domain.AlertMessage(kind, obs, loc.Name)
		alert := domain.DispatchedAlert{
			ID:         uuid.NewString(),
			UserID:     pref.User.ID,
			LocationID: loc.ID,
			Kind:       kind,
			Severity:   severity,
			Message:    message,
			Snapshot:   obs,
			SentAt:     now,
		}
		c.add(pendingAlert{alert: alert, key: key, email: pref.User.Email}, domain.Notification{
			Recipient:    pref.User.Email,
			Kind:         domain.NotificationThreshold,
			LocationName: loc.Name,
			Hazard:       kind,
			Severity:     severity,
			Message:      message,
			Observation:  &obs,
			CreatedAt:    now,
		})
		o.Metrics.AlertsTriggered.WithLabelValues(string(ledger.PathwayThreshold), string(kind)).Inc()
	}
}

// claimThreshold checks the audit trail and takes the in-memory claim as one
// step, so two workers cannot both decide to send the same alert.
func (o *Orchestrator) claimThreshold(ctx context.Context, key ledger.Key, userID int64, locationID string, kind domain.HazardKind, now time.Time) bool {
	unlock := o.Ledger.Lock(key)
	defer unlock()

	recent, err := o.Audit.HasRecentAlert(ctx, userID, locationID, kind, now.Add(-o.settings.ThresholdWindow))
	if err != nil {
		o.Logger.Warn("alert history unavailable", "key", key.String(), "error", err)
		return false
	}
	if recent {
		o.Logger.Debug("threshold alert suppressed", "key", key.String())
		return false
	}
	return o.Ledger.TryAcquire(key, now, o.settings.ThresholdWindow)
}

// settle persists a delivered alert. Undelivered or unpersisted alerts give
// up their claim so the next check retries them.
//
// Delivery is reported per recipient, so a recipient with any failed
// notification counts as undelivered for all of their alerts in the batch.
// Alerts that did reach them are released too and sent again on the next
// check, inside the suppression window.
func (o *Orchestrator) settle(ctx context.Context, p pendingAlert, delivered bool) {
	if !delivered {
		o.Ledger.Release(p.key, p.alert.SentAt)
		return
	}
	if err := o.Audit.RecordAlert(ctx, p.alert); err != nil {
		if !errors.Is(err, domain.ErrPersistence) {
			err = fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
		o.Metrics.AlertsPersisted.WithLabelValues("error").Inc()
		o.Logger.Error("alert delivered but not recorded", "alert_id", p.alert.ID, "key", p.key.String(), "error", err)
		o.Ledger.Release(p.key, p.alert.SentAt)
		return
	}
	o.Metrics.AlertsPersisted.WithLabelValues("success").Inc()
}
