package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/couchcryptid/marine-alerts/internal/domain"
)

// sqliteTime is fixed-width so stored timestamps compare correctly as text.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite is the embedded single-file backend.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (s *SQLite) migrate(ctx context.Context) error {
	scripts, err := migrations(DriverSQLite)
	if err != nil {
		return err
	}
	for _, m := range scripts {
		if _, err := s.db.ExecContext(ctx, m.body); err != nil {
			return fmt.Errorf("exec migration %s: %w", m.name, err)
		}
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) ActiveUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, name, is_active
		FROM users
		WHERE is_active = 1
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query active users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Active); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

const sqliteSavedLocationSelect = `
	SELECT l.id, l.name, l.latitude, l.longitude, u.id, u.email, u.name, u.is_active
	FROM saved_locations l
	JOIN users u ON u.id = l.user_id`

func (s *SQLite) SavedLocations(ctx context.Context) ([]domain.SavedLocation, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSavedLocationSelect+`
		WHERE u.is_active = 1
		ORDER BY l.id`)
	if err != nil {
		return nil, fmt.Errorf("query saved locations: %w", err)
	}
	defer rows.Close()

	var out []domain.SavedLocation
	for rows.Next() {
		sl, err := scanSavedLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sl)
	}
	return out, rows.Err()
}

func (s *SQLite) SavedLocation(ctx context.Context, id string) (domain.SavedLocation, error) {
	rowID, err := domain.ParseSavedLocationID(id)
	if err != nil {
		return domain.SavedLocation{}, err
	}
	row := s.db.QueryRowContext(ctx, sqliteSavedLocationSelect+` WHERE l.id = ?`, rowID)
	sl, err := scanSavedLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SavedLocation{}, fmt.Errorf("saved location %s: %w", id, ErrNotFound)
	}
	return sl, err
}

func scanSavedLocation(row scanner) (domain.SavedLocation, error) {
	var (
		sl    domain.SavedLocation
		rowID int64
	)
	if err := row.Scan(&rowID, &sl.Location.Name, &sl.Location.Latitude, &sl.Location.Longitude,
		&sl.Owner.ID, &sl.Owner.Email, &sl.Owner.Name, &sl.Owner.Active); err != nil {
		return domain.SavedLocation{}, fmt.Errorf("scan saved location: %w", err)
	}
	sl.Location.ID = domain.SavedLocationID(rowID)
	sl.Location.OwnerID = sl.Owner.ID
	return sl, nil
}

func (s *SQLite) ActivePreferences(ctx context.Context) ([]domain.AlertPreference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.alert_types, p.thresholds, p.is_active, p.created_at,
		       l.id, l.name, l.latitude, l.longitude,
		       u.id, u.email, u.name, u.is_active
		FROM alert_preferences p
		JOIN saved_locations l ON l.id = p.location_id
		JOIN users u ON u.id = p.user_id
		WHERE p.is_active = 1 AND u.is_active = 1
		ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("query active preferences: %w", err)
	}
	defer rows.Close()

	var prefs []domain.AlertPreference
	for rows.Next() {
		var (
			p                 domain.AlertPreference
			kinds, thresholds []byte
			createdAt         string
			locRowID          int64
		)
		if err := rows.Scan(&p.ID, &kinds, &thresholds, &p.Active, &createdAt,
			&locRowID, &p.Location.Name, &p.Location.Latitude, &p.Location.Longitude,
			&p.User.ID, &p.User.Email, &p.User.Name, &p.User.Active); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		if err := decodePreference(&p, kinds, thresholds); err != nil {
			return nil, err
		}
		p.Location.ID = domain.SavedLocationID(locRowID)
		p.Location.OwnerID = p.User.ID
		if p.CreatedAt, err = time.Parse(sqliteTime, createdAt); err != nil {
			return nil, fmt.Errorf("preference %d: parse created_at: %w", p.ID, err)
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

func (s *SQLite) RecordAlert(ctx context.Context, alert domain.DispatchedAlert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	snapshot, err := json.Marshal(alert.Snapshot)
	if err != nil {
		return fmt.Errorf("%w: marshal snapshot: %w", domain.ErrPersistence, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alert_history
			(id, user_id, location_id, alert_type, severity, message, weather_data, sent_at, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.UserID, alert.LocationID, string(alert.Kind), string(alert.Severity),
		alert.Message, string(snapshot), alert.SentAt.UTC().Format(sqliteTime), alert.Read)
	if err != nil {
		return fmt.Errorf("%w: insert alert: %w", domain.ErrPersistence, err)
	}
	return nil
}

func (s *SQLite) HasRecentAlert(ctx context.Context, userID int64, locationID string, kind domain.HazardKind, since time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM alert_history
			WHERE user_id = ?
			  AND location_id = ?
			  AND alert_type = ?
			  AND sent_at >= ?
		)`, userID, locationID, string(kind), since.UTC().Format(sqliteTime)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check recent alert: %w", err)
	}
	return exists, nil
}

func (s *SQLite) ListAlerts(ctx context.Context, userID int64, limit int) ([]domain.DispatchedAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, location_id, alert_type, severity, message, weather_data, sent_at, is_read
		FROM alert_history
		WHERE user_id = ?
		ORDER BY sent_at DESC
		LIMIT ?`, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.DispatchedAlert
	for rows.Next() {
		var (
			a                domain.DispatchedAlert
			kind, severity   string
			snapshot, sentAt string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.LocationID, &kind, &severity, &a.Message,
			&snapshot, &sentAt, &a.Read); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Kind = domain.HazardKind(kind)
		a.Severity = domain.Severity(severity)
		if err := json.Unmarshal([]byte(snapshot), &a.Snapshot); err != nil {
			return nil, fmt.Errorf("alert %s: decode weather_data: %w", a.ID, err)
		}
		if a.SentAt, err = time.Parse(sqliteTime, sentAt); err != nil {
			return nil, fmt.Errorf("alert %s: parse sent_at: %w", a.ID, err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *SQLite) MarkRead(ctx context.Context, alertID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alert_history SET is_read = 1 WHERE id = ?`, alertID)
	if err != nil {
		return fmt.Errorf("%w: mark read: %w", domain.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
	}
	return nil
}

func (s *SQLite) CreateUser(ctx context.Context, email, name string) (domain.User, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, name, is_active, created_at) VALUES (?, ?, 1, ?)`,
		email, name, time.Now().UTC().Format(sqliteTime))
	if err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return domain.User{ID: id, Email: email, Name: name, Active: true}, nil
}

func (s *SQLite) SetUserActive(ctx context.Context, userID int64, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_active = ? WHERE id = ?`, active, userID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return nil
}

func (s *SQLite) SaveLocation(ctx context.Context, userID int64, name string, lat, lon float64) (domain.Location, error) {
	loc := domain.Location{ID: "pending", Name: name, Latitude: lat, Longitude: lon, OwnerID: userID}
	if err := loc.Validate(); err != nil {
		return domain.Location{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO saved_locations (user_id, name, latitude, longitude, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, name, lat, lon, time.Now().UTC().Format(sqliteTime))
	if err != nil {
		return domain.Location{}, fmt.Errorf("insert saved location: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Location{}, fmt.Errorf("insert saved location: %w", err)
	}
	loc.ID = domain.SavedLocationID(id)
	return loc, nil
}

func (s *SQLite) SavePreference(ctx context.Context, pref domain.AlertPreference) (domain.AlertPreference, error) {
	locRowID, err := domain.ParseSavedLocationID(pref.Location.ID)
	if err != nil {
		return domain.AlertPreference{}, err
	}
	kinds, thresholds, err := encodePreference(pref)
	if err != nil {
		return domain.AlertPreference{}, err
	}
	if pref.CreatedAt.IsZero() {
		pref.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_preferences (user_id, location_id, alert_types, thresholds, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		pref.User.ID, locRowID, string(kinds), string(thresholds), pref.Active, pref.CreatedAt.UTC().Format(sqliteTime))
	if err != nil {
		return domain.AlertPreference{}, fmt.Errorf("insert preference: %w", err)
	}
	if pref.ID, err = res.LastInsertId(); err != nil {
		return domain.AlertPreference{}, fmt.Errorf("insert preference: %w", err)
	}
	return pref, nil
}

func (s *SQLite) SetPreferenceActive(ctx context.Context, prefID int64, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alert_preferences SET is_active = ? WHERE id = ?`, active, prefID)
	if err != nil {
		return fmt.Errorf("update preference: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("preference %d: %w", prefID, ErrNotFound)
	}
	return nil
}
