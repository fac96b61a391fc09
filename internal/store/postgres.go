package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/marine-alerts/internal/domain"
)

// Postgres is the server backend built on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL, verifies the connection and applies migrations.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	scripts, err := migrations(DriverPostgres)
	if err != nil {
		return err
	}
	for _, m := range scripts {
		if _, err := p.pool.Exec(ctx, m.body); err != nil {
			return fmt.Errorf("exec migration %s: %w", m.name, err)
		}
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) ActiveUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, email, name, is_active
		FROM users
		WHERE is_active
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

const pgSavedLocationSelect = `
	SELECT l.id, l.name, l.latitude, l.longitude, u.id, u.email, u.name, u.is_active
	FROM saved_locations l
	JOIN users u ON u.id = l.user_id`

func (p *Postgres) SavedLocations(ctx context.Context) ([]domain.SavedLocation, error) {
	rows, err := p.pool.Query(ctx, pgSavedLocationSelect+`
		WHERE u.is_active
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

func (p *Postgres) SavedLocation(ctx context.Context, id string) (domain.SavedLocation, error) {
	rowID, err := domain.ParseSavedLocationID(id)
	if err != nil {
		return domain.SavedLocation{}, err
	}
	sl, err := scanSavedLocation(p.pool.QueryRow(ctx, pgSavedLocationSelect+` WHERE l.id = $1`, rowID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SavedLocation{}, fmt.Errorf("saved location %s: %w", id, ErrNotFound)
	}
	return sl, err
}

func (p *Postgres) ActivePreferences(ctx context.Context) ([]domain.AlertPreference, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT pr.id, pr.alert_types, pr.thresholds, pr.is_active, pr.created_at,
		       l.id, l.name, l.latitude, l.longitude,
		       u.id, u.email, u.name, u.is_active
		FROM alert_preferences pr
		JOIN saved_locations l ON l.id = pr.location_id
		JOIN users u ON u.id = pr.user_id
		WHERE pr.is_active AND u.is_active
		ORDER BY pr.id`)
	if err != nil {
		return nil, fmt.Errorf("query active preferences: %w", err)
	}
	defer rows.Close()

	var prefs []domain.AlertPreference
	for rows.Next() {
		var (
			pref              domain.AlertPreference
			kinds, thresholds []byte
			locRowID          int64
		)
		if err := rows.Scan(&pref.ID, &kinds, &thresholds, &pref.Active, &pref.CreatedAt,
			&locRowID, &pref.Location.Name, &pref.Location.Latitude, &pref.Location.Longitude,
			&pref.User.ID, &pref.User.Email, &pref.User.Name, &pref.User.Active); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		if err := decodePreference(&pref, kinds, thresholds); err != nil {
			return nil, err
		}
		pref.Location.ID = domain.SavedLocationID(locRowID)
		pref.Location.OwnerID = pref.User.ID
		prefs = append(prefs, pref)
	}
	return prefs, rows.Err()
}

func (p *Postgres) RecordAlert(ctx context.Context, alert domain.DispatchedAlert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	snapshot, err := json.Marshal(alert.Snapshot)
	if err != nil {
		return fmt.Errorf("%w: marshal snapshot: %w", domain.ErrPersistence, err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO alert_history
			(id, user_id, location_id, alert_type, severity, message, weather_data, sent_at, is_read)
		VALUES
			($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		alert.ID, alert.UserID, alert.LocationID, string(alert.Kind), string(alert.Severity),
		alert.Message, string(snapshot), alert.SentAt, alert.Read)
	if err != nil {
		return fmt.Errorf("%w: insert alert: %w", domain.ErrPersistence, err)
	}
	return nil
}

func (p *Postgres) HasRecentAlert(ctx context.Context, userID int64, locationID string, kind domain.HazardKind, since time.Time) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM alert_history
			WHERE user_id = $1
			  AND location_id = $2
			  AND alert_type = $3
			  AND sent_at >= $4
		)`, userID, locationID, string(kind), since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check recent alert: %w", err)
	}
	return exists, nil
}

func (p *Postgres) ListAlerts(ctx context.Context, userID int64, limit int) ([]domain.DispatchedAlert, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, user_id, location_id, alert_type, severity, message, weather_data, sent_at, is_read
		FROM alert_history
		WHERE user_id = $1
		ORDER BY sent_at DESC
		LIMIT $2`, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.DispatchedAlert
	for rows.Next() {
		var (
			a              domain.DispatchedAlert
			kind, severity string
			snapshot       []byte
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.LocationID, &kind, &severity, &a.Message,
			&snapshot, &a.SentAt, &a.Read); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Kind = domain.HazardKind(kind)
		a.Severity = domain.Severity(severity)
		if err := json.Unmarshal(snapshot, &a.Snapshot); err != nil {
			return nil, fmt.Errorf("alert %s: decode weather_data: %w", a.ID, err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (p *Postgres) MarkRead(ctx context.Context, alertID string) error {
	if _, err := uuid.Parse(alertID); err != nil {
		return fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
	}
	cmd, err := p.pool.Exec(ctx, `UPDATE alert_history SET is_read = TRUE WHERE id = $1`, alertID)
	if err != nil {
		return fmt.Errorf("%w: mark read: %w", domain.ErrPersistence, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
	}
	return nil
}

func (p *Postgres) CreateUser(ctx context.Context, email, name string) (domain.User, error) {
	u := domain.User{Email: email, Name: name, Active: true}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO users (email, name) VALUES ($1, $2) RETURNING id`, email, name).Scan(&u.ID)
	if err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (p *Postgres) SetUserActive(ctx context.Context, userID int64, active bool) error {
	cmd, err := p.pool.Exec(ctx, `UPDATE users SET is_active = $2 WHERE id = $1`, userID, active)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return nil
}

func (p *Postgres) SaveLocation(ctx context.Context, userID int64, name string, lat, lon float64) (domain.Location, error) {
	loc := domain.Location{ID: "pending", Name: name, Latitude: lat, Longitude: lon, OwnerID: userID}
	if err := loc.Validate(); err != nil {
		return domain.Location{}, err
	}
	var id int64
	err := p.pool.QueryRow(ctx, `
		INSERT INTO saved_locations (user_id, name, latitude, longitude)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, userID, name, lat, lon).Scan(&id)
	if err != nil {
		return domain.Location{}, fmt.Errorf("insert saved location: %w", err)
	}
	loc.ID = domain.SavedLocationID(id)
	return loc, nil
}

func (p *Postgres) SavePreference(ctx context.Context, pref domain.AlertPreference) (domain.AlertPreference, error) {
	locRowID, err := domain.ParseSavedLocationID(pref.Location.ID)
	if err != nil {
		return domain.AlertPreference{}, err
	}
	kinds, thresholds, err := encodePreference(pref)
	if err != nil {
		return domain.AlertPreference{}, err
	}
	err = p.pool.QueryRow(ctx, `
		INSERT INTO alert_preferences (user_id, location_id, alert_types, thresholds, is_active)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, $5)
		RETURNING id, created_at`,
		pref.User.ID, locRowID, string(kinds), string(thresholds), pref.Active).Scan(&pref.ID, &pref.CreatedAt)
	if err != nil {
		return domain.AlertPreference{}, fmt.Errorf("insert preference: %w", err)
	}
	return pref, nil
}

func (p *Postgres) SetPreferenceActive(ctx context.Context, prefID int64, active bool) error {
	cmd, err := p.pool.Exec(ctx, `UPDATE alert_preferences SET is_active = $2 WHERE id = $1`, prefID, active)
	if err != nil {
		return fmt.Errorf("update preference: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("preference %d: %w", prefID, ErrNotFound)
	}
	return nil
}
