// Package scan runs the alert engine's scheduling loop: the daily digest,
// the hourly hazard scan over saved and monitoring locations, and the
// per-user threshold check.
package scan

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/marine-alerts/internal/domain"
	"github.com/couchcryptid/marine-alerts/internal/ledger"
	"github.com/couchcryptid/marine-alerts/internal/observability"
	"github.com/couchcryptid/marine-alerts/internal/registry"
)

// Registry lists the locations, users and preferences a cycle works on.
type Registry interface {
	Monitoring() []domain.Location
	ActiveUsers(ctx context.Context) ([]domain.User, error)
	SavedLocations(ctx context.Context) ([]domain.SavedLocation, error)
	SavedLocation(ctx context.Context, id string) (domain.SavedLocation, error)
	ActivePreferences(ctx context.Context) ([]domain.AlertPreference, error)
	LocationsByUser(ctx context.Context) ([]registry.UserLocations, error)
}

// AuditTrail is the durable log of threshold alerts.
type AuditTrail interface {
	HasRecentAlert(ctx context.Context, userID int64, locationID string, kind domain.HazardKind, since time.Time) (bool, error)
	RecordAlert(ctx context.Context, alert domain.DispatchedAlert) error
}

// Dispatcher delivers one cycle's notifications.
type Dispatcher interface {
	Dispatch(ctx context.Context, batch []domain.Notification) domain.Results
}

// Settings tunes the schedule and the alerting rules.
type Settings struct {
	DigestHour        int
	DigestWindow      time.Duration
	ScanGrace         time.Duration // a loop started later than this into the hour skips that hour's scan
	ScanCooldown      time.Duration
	PollInterval      time.Duration
	ThresholdInterval time.Duration

	ScanWindow      time.Duration // in-memory suppression per location
	ThresholdWindow time.Duration // durable suppression per user, location and kind
	ProbabilityBar  float64

	Workers            int
	ScanForecastDays   int
	DigestForecastDays int

	// Zone is the wall clock the digest hour and hourly scan follow.
	Zone *time.Location
}

// DefaultSettings returns the production schedule.
func DefaultSettings() Settings {
	return Settings{
		DigestHour:         6,
		DigestWindow:       5 * time.Minute,
		ScanGrace:          time.Minute,
		ScanCooldown:       2 * time.Minute,
		PollInterval:       5 * time.Minute,
		ThresholdInterval:  10 * time.Minute,
		ScanWindow:         2 * time.Hour,
		ThresholdWindow:    time.Hour,
		ProbabilityBar:     domain.HazardProbabilityBar,
		Workers:            4,
		ScanForecastDays:   3,
		DigestForecastDays: 7,
		Zone:               time.UTC,
	}
}

// Deps are the collaborators an Orchestrator is built from.
type Deps struct {
	Registry   Registry
	Weather    domain.WeatherSource
	Classifier domain.HazardClassifier
	Bulletins  domain.AuxiliaryContentSource
	Dispatcher Dispatcher
	Audit      AuditTrail
	Ledger     *ledger.Ledger
	Clock      clockwork.Clock
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

type cycle string

const (
	cycleNone      cycle = ""
	cycleDigest    cycle = "digest"
	cycleScan      cycle = "scan"
	cycleThreshold cycle = "threshold"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Minute
)

// Orchestrator owns the schedule and runs one cycle at a time.
type Orchestrator struct {
	Deps
	settings Settings
	ready    atomic.Bool

	mu            sync.Mutex
	lastDigestDay string    // yyyy-mm-dd in settings.Zone
	lastScanHour  time.Time // top of the hour of the last scan
	startHour     time.Time // hour the loop started in, past the scan grace
	lastThreshold time.Time
}

// New creates an Orchestrator. Zero-valued settings fall back to defaults.
func New(deps Deps, settings Settings) *Orchestrator {
	def := DefaultSettings()
	if settings.Zone == nil {
		settings.Zone = def.Zone
	}
	if settings.Workers <= 0 {
		settings.Workers = def.Workers
	}
	if settings.DigestWindow <= 0 {
		settings.DigestWindow = def.DigestWindow
	}
	if settings.ScanGrace <= 0 {
		settings.ScanGrace = def.ScanGrace
	}
	if settings.ScanForecastDays <= 0 {
		settings.ScanForecastDays = def.ScanForecastDays
	}
	if settings.DigestForecastDays <= 0 {
		settings.DigestForecastDays = def.DigestForecastDays
	}
	if settings.ProbabilityBar <= 0 {
		settings.ProbabilityBar = def.ProbabilityBar
	}
	return &Orchestrator{Deps: deps, settings: settings}
}

// CheckReadiness returns nil once a cycle has read the registry successfully
// and the most recent cycle did not fail.
func (o *Orchestrator) CheckReadiness(_ context.Context) error {
	if !o.ready.Load() {
		return errors.New("no cycle has read the location registry yet")
	}
	return nil
}

// Status is a point-in-time view of the schedule.
type Status struct {
	Ready         bool      `json:"ready"`
	LastDigestDay string    `json:"last_digest_day,omitempty"`
	LastScan      time.Time `json:"last_scan,omitzero"`
	LastThreshold time.Time `json:"last_threshold,omitzero"`
	LedgerEntries int       `json:"ledger_entries"`
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{
		Ready:         o.ready.Load(),
		LastDigestDay: o.lastDigestDay,
		LastScan:      o.lastScanHour,
		LastThreshold: o.lastThreshold,
		LedgerEntries: o.Ledger.Len(),
	}
}

// Run executes the scheduling loop until the context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.Logger.Info("orchestrator started",
		"digest_hour", o.settings.DigestHour,
		"poll_interval", o.settings.PollInterval,
		"threshold_interval", o.settings.ThresholdInterval,
		"workers", o.settings.Workers,
	)
	o.Metrics.OrchestratorRunning.Set(1)
	defer o.Metrics.OrchestratorRunning.Set(0)

	o.primeSchedule(o.Clock.Now())

	// Registry outages back off exponentially: 200ms doubling to 5 minutes.
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			o.Logger.Info("orchestrator stopping", "reason", ctx.Err())
			return nil
		}

		next, wait := o.decide(o.Clock.Now())
		if next != cycleNone {
			if err := o.runCycle(ctx, next); err != nil {
				if ctx.Err() != nil {
					continue
				}
				o.ready.Store(false)
				o.Logger.Error("cycle failed", "cycle", next, "error", err, "retry_in", backoff)
				if !o.sleep(ctx, backoff) {
					continue
				}
				backoff = retry.NextBackoff(backoff, maxBackoff)
				continue
			}
			backoff = initialBackoff
			o.ready.Store(true)
		}

		o.sleep(ctx, wait)
	}
}

// primeSchedule skips the current hour's scan when the loop starts mid-hour.
// The ledger does not survive a restart, so scanning again could repeat
// alerts the previous process already sent.
func (o *Orchestrator) primeSchedule(now time.Time) {
	local := now.In(o.settings.Zone)
	hourStart := local.Truncate(time.Hour)

	o.mu.Lock()
	defer o.mu.Unlock()
	if local.Sub(hourStart) >= o.settings.ScanGrace {
		o.startHour = hourStart
	}
}

// decide picks the cycle due at now and how long to sleep after it.
func (o *Orchestrator) decide(now time.Time) (cycle, time.Duration) {
	local := now.In(o.settings.Zone)
	hourStart := local.Truncate(time.Hour)
	intoHour := local.Sub(hourStart)

	o.mu.Lock()
	defer o.mu.Unlock()

	if local.Hour() == o.settings.DigestHour &&
		intoHour < o.settings.DigestWindow &&
		o.lastDigestDay != local.Format(time.DateOnly) {
		// The per-day mark is the digest cooldown; re-decide right away so
		// the same top-of-hour scan is not lost.
		return cycleDigest, 0
	}

	// A scan pushed past the top of the hour by a long cycle or a backoff
	// still runs later in the same hour.
	if !o.lastScanHour.Equal(hourStart) && !o.startHour.Equal(hourStart) {
		return cycleScan, o.settings.ScanCooldown
	}

	thresholdDue := o.lastThreshold.Add(o.settings.ThresholdInterval)
	if o.lastThreshold.IsZero() || !now.Before(thresholdDue) {
		return cycleThreshold, 0
	}

	wait := min(o.settings.PollInterval, hourStart.Add(time.Hour).Sub(local), thresholdDue.Sub(now))
	return cycleNone, wait
}

// runCycle runs one cycle and records its schedule mark on success.
func (o *Orchestrator) runCycle(ctx context.Context, c cycle) error {
	start := o.Clock.Now()
	local := start.In(o.settings.Zone)

	var err error
	switch c {
	case cycleDigest:
		err = o.DailyDigest(ctx)
	case cycleScan:
		err = o.HourlyScan(ctx)
	case cycleThreshold:
		err = o.ThresholdCheck(ctx)
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	o.Metrics.Cycles.WithLabelValues(string(c), outcome).Inc()
	o.Metrics.CycleDuration.WithLabelValues(string(c)).Observe(o.Clock.Since(start).Seconds())
	if err != nil {
		return err
	}

	o.mu.Lock()
	switch c {
	case cycleDigest:
		o.lastDigestDay = local.Format(time.DateOnly)
	case cycleScan:
		o.lastScanHour = local.Truncate(time.Hour)
	case cycleThreshold:
		o.lastThreshold = start
	}
	o.mu.Unlock()
	return nil
}

// forEach runs fn for indices [0, n) on the bounded worker pool. Workers
// report their own failures, so the group never carries an error.
func (o *Orchestrator) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.settings.Workers)
	for i := range n {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fn(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

// sleep waits for d on the injected clock. It returns false if ctx ended first.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-o.Clock.After(d):
		return true
	}
}

// batch accumulates one cycle's notifications across workers.
type batch struct {
	mu    sync.Mutex
	items []domain.Notification
}

func (b *batch) add(n ...domain.Notification) {
	b.mu.Lock()
	b.items = append(b.items, n...)
	b.mu.Unlock()
}

func (b *batch) list() []domain.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Notification, len(b.items))
	copy(out, b.items)
	return out
}

// analyze asks the classifier for a narrative. A failure degrades to nil
// with unavailable set.
func (o *Orchestrator) analyze(ctx context.Context, req domain.AnalysisRequest) (analysis *domain.Analysis, unavailable bool) {
	a, err := o.Classifier.Analyze(ctx, req)
	if err != nil {
		o.Logger.Warn("hazard analysis unavailable", "location", req.Location.Name, "error", err)
		return nil, true
	}
	return &a, false
}
