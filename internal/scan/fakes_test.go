package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/marine-alerts/internal/domain"
	"github.com/couchcryptid/marine-alerts/internal/ledger"
	"github.com/couchcryptid/marine-alerts/internal/observability"
	"github.com/couchcryptid/marine-alerts/internal/registry"
)

var t0 = time.Date(2026, 3, 10, 5, 58, 0, 0, time.UTC)

type fakeRegistry struct {
	mu         sync.Mutex
	users      []domain.User
	saved      []domain.SavedLocation
	prefs      []domain.AlertPreference
	groups     []registry.UserLocations
	monitoring []domain.Location
	err        error
	calls      map[string]int
}

func (r *fakeRegistry) hit(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[name]++
	return r.err
}

func (r *fakeRegistry) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func (r *fakeRegistry) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *fakeRegistry) Monitoring() []domain.Location { return r.monitoring }

func (r *fakeRegistry) ActiveUsers(context.Context) ([]domain.User, error) {
	if err := r.hit("ActiveUsers"); err != nil {
		return nil, err
	}
	return r.users, nil
}

func (r *fakeRegistry) SavedLocations(context.Context) ([]domain.SavedLocation, error) {
	if err := r.hit("SavedLocations"); err != nil {
		return nil, err
	}
	return r.saved, nil
}

func (r *fakeRegistry) SavedLocation(_ context.Context, id string) (domain.SavedLocation, error) {
	if err := r.hit("SavedLocation"); err != nil {
		return domain.SavedLocation{}, err
	}
	for _, s := range r.saved {
		if s.Location.ID == id {
			return s, nil
		}
	}
	return domain.SavedLocation{}, fmt.Errorf("saved location %s: not found", id)
}

func (r *fakeRegistry) ActivePreferences(context.Context) ([]domain.AlertPreference, error) {
	if err := r.hit("ActivePreferences"); err != nil {
		return nil, err
	}
	return r.prefs, nil
}

func (r *fakeRegistry) LocationsByUser(context.Context) ([]registry.UserLocations, error) {
	if err := r.hit("LocationsByUser"); err != nil {
		return nil, err
	}
	return r.groups, nil
}

// fakeWeather serves readings keyed by coordinates.
type fakeWeather struct {
	mu          sync.Mutex
	readings    map[string]domain.Observation
	forecastErr error
	calls       int
}

func coordKey(lat, lon float64) string { return fmt.Sprintf("%.4f,%.4f", lat, lon) }

func (w *fakeWeather) set(loc domain.Location, obs domain.Observation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.readings == nil {
		w.readings = make(map[string]domain.Observation)
	}
	w.readings[coordKey(loc.Latitude, loc.Longitude)] = obs
}

func (w *fakeWeather) currentCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func (w *fakeWeather) CurrentWeather(_ context.Context, lat, lon float64) (domain.Observation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	obs, ok := w.readings[coordKey(lat, lon)]
	if !ok {
		return domain.Observation{}, fmt.Errorf("current %s: %w", coordKey(lat, lon), domain.ErrDataUnavailable)
	}
	return obs, nil
}

func (w *fakeWeather) Forecast(_ context.Context, _, _ float64, days int) (domain.Forecast, error) {
	if w.forecastErr != nil {
		return domain.Forecast{}, w.forecastErr
	}
	return domain.Forecast{Days: make([]domain.ForecastDay, days)}, nil
}

type fakeClassifier struct {
	err error
}

func (c *fakeClassifier) Analyze(_ context.Context, req domain.AnalysisRequest) (domain.Analysis, error) {
	if c.err != nil {
		return domain.Analysis{}, c.err
	}
	return domain.Analysis{Summary: "conditions at " + req.Location.Name}, nil
}

type fakeBulletins struct{}

func (fakeBulletins) Bulletins(context.Context, float64, float64) ([]domain.Bulletin, error) {
	return nil, nil
}

// recordingDispatcher keeps every non-empty batch and fails the listed recipients.
type recordingDispatcher struct {
	mu      sync.Mutex
	batches [][]domain.Notification
	fail    map[string]bool
}

func (d *recordingDispatcher) Dispatch(_ context.Context, batch []domain.Notification) domain.Results {
	d.mu.Lock()
	defer d.mu.Unlock()
	results := make(domain.Results)
	if len(batch) == 0 {
		return results
	}
	d.batches = append(d.batches, batch)
	for _, n := range batch {
		results.Record(n.Recipient, !d.fail[n.Recipient])
	}
	return results
}

func (d *recordingDispatcher) sent() [][]domain.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.batches
}

type fakeAudit struct {
	mu        sync.Mutex
	alerts    []domain.DispatchedAlert
	recordErr error
}

func (a *fakeAudit) HasRecentAlert(_ context.Context, userID int64, locationID string, kind domain.HazardKind, since time.Time) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, al := range a.alerts {
		if al.UserID == userID && al.LocationID == locationID && al.Kind == kind && !al.SentAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (a *fakeAudit) RecordAlert(_ context.Context, alert domain.DispatchedAlert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.recordErr != nil {
		return a.recordErr
	}
	a.alerts = append(a.alerts, alert)
	return nil
}

func (a *fakeAudit) recorded() []domain.DispatchedAlert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.alerts
}

type harness struct {
	clock      *clockwork.FakeClock
	registry   *fakeRegistry
	weather    *fakeWeather
	classifier *fakeClassifier
	dispatcher *recordingDispatcher
	audit      *fakeAudit
	ledger     *ledger.Ledger
	orch       *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:      clockwork.NewFakeClockAt(t0),
		registry:   &fakeRegistry{},
		weather:    &fakeWeather{},
		classifier: &fakeClassifier{},
		dispatcher: &recordingDispatcher{},
		audit:      &fakeAudit{},
		ledger:     ledger.New(),
	}
	h.orch = New(Deps{
		Registry:   h.registry,
		Weather:    h.weather,
		Classifier: h.classifier,
		Bulletins:  fakeBulletins{},
		Dispatcher: h.dispatcher,
		Audit:      h.audit,
		Ledger:     h.ledger,
		Clock:      h.clock,
		Metrics:    observability.NewMetricsForTesting(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, DefaultSettings())
	return h
}

var errRegistryDown = errors.New("database is locked")

var (
	alice = domain.User{ID: 1, Email: "alice@example.com", Name: "Alice", Active: true}
	bob   = domain.User{ID: 2, Email: "bob@example.com", Name: "Bob", Active: true}

	harbor = domain.Location{ID: "saved:1", Name: "Harbor", Latitude: 50.1, Longitude: -1.4, OwnerID: 1}
	point  = domain.Location{ID: "saved:2", Name: "Point", Latitude: 50.2, Longitude: -1.5, OwnerID: 1}
	cove   = domain.Location{ID: "saved:3", Name: "Cove", Latitude: 50.3, Longitude: -1.6, OwnerID: 2}
	biscay = domain.Location{ID: "monitor:bay-of-biscay", Name: "Bay of Biscay", Latitude: 45, Longitude: -5}
)

func stormReading(p float64) domain.Observation {
	return domain.Observation{
		Temperature: 14,
		WindSpeed:   40,
		Visibility:  6000,
		WaveHeight:  3,
		Hazards:     domain.HazardProbabilities{Storm: p},
	}
}
