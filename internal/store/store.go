// Package store persists users, saved locations, alert preferences and the
// audit trail of dispatched threshold alerts. Two backends share one
// contract: an embedded SQLite file and a PostgreSQL pool.
package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/couchcryptid/marine-alerts/internal/domain"
)

//go:embed sql/sqlite/*.sql sql/postgres/*.sql
var migrationFS embed.FS

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

const defaultListLimit = 50

// Store is the persistence contract shared by both backends.
type Store interface {
	// Registry reads.
	ActiveUsers(ctx context.Context) ([]domain.User, error)
	SavedLocations(ctx context.Context) ([]domain.SavedLocation, error)
	SavedLocation(ctx context.Context, id string) (domain.SavedLocation, error)
	ActivePreferences(ctx context.Context) ([]domain.AlertPreference, error)

	// Audit trail.
	RecordAlert(ctx context.Context, alert domain.DispatchedAlert) error
	HasRecentAlert(ctx context.Context, userID int64, locationID string, kind domain.HazardKind, since time.Time) (bool, error)
	ListAlerts(ctx context.Context, userID int64, limit int) ([]domain.DispatchedAlert, error)
	MarkRead(ctx context.Context, alertID string) error

	// Writes used by seeding and tests. The engine never mutates these.
	CreateUser(ctx context.Context, email, name string) (domain.User, error)
	SetUserActive(ctx context.Context, userID int64, active bool) error
	SaveLocation(ctx context.Context, userID int64, name string, lat, lon float64) (domain.Location, error)
	SavePreference(ctx context.Context, pref domain.AlertPreference) (domain.AlertPreference, error)
	SetPreferenceActive(ctx context.Context, prefID int64, active bool) error

	Ping(ctx context.Context) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the configured backend and applies its migrations.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case DriverSQLite:
		return OpenSQLite(ctx, dsn)
	case DriverPostgres:
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

type migration struct {
	name string
	body string
}

// migrations returns the embedded scripts for one backend in name order.
func migrations(dir string) ([]migration, error) {
	entries, err := migrationFS.ReadDir("sql/" + dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]migration, 0, len(names))
	for _, name := range names {
		body, err := migrationFS.ReadFile("sql/" + dir + "/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		out = append(out, migration{name: name, body: string(body)})
	}
	return out, nil
}

// scanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func encodePreference(pref domain.AlertPreference) (kinds, thresholds []byte, err error) {
	k := pref.Kinds
	if k == nil {
		k = []domain.HazardKind{}
	}
	kinds, err = json.Marshal(k)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal alert types: %w", err)
	}
	t := pref.Thresholds
	if t == nil {
		t = map[domain.HazardKind]float64{}
	}
	thresholds, err = json.Marshal(t)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal thresholds: %w", err)
	}
	return kinds, thresholds, nil
}

func decodePreference(pref *domain.AlertPreference, kinds, thresholds []byte) error {
	if err := json.Unmarshal(kinds, &pref.Kinds); err != nil {
		return fmt.Errorf("preference %d: decode alert types: %w", pref.ID, err)
	}
	if err := json.Unmarshal(thresholds, &pref.Thresholds); err != nil {
		return fmt.Errorf("preference %d: decode thresholds: %w", pref.ID, err)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultListLimit
	}
	return limit
}
