// Package registry lists the locations the engine watches: user-saved
// locations read from the store and a fixed set of global monitoring points.
package registry

import (
	"context"
	"fmt"

	"github.com/couchcryptid/marine-alerts/internal/domain"
)

// Source is the subset of the store the registry reads from.
type Source interface {
	ActiveUsers(ctx context.Context) ([]domain.User, error)
	SavedLocations(ctx context.Context) ([]domain.SavedLocation, error)
	SavedLocation(ctx context.Context, id string) (domain.SavedLocation, error)
	ActivePreferences(ctx context.Context) ([]domain.AlertPreference, error)
}

var monitoringLocations = []domain.Location{
	{ID: "monitor:north-atlantic", Name: "North Atlantic (Azores)", Latitude: 38.7223, Longitude: -28.2449},
	{ID: "monitor:bay-of-biscay", Name: "Bay of Biscay", Latitude: 45.0, Longitude: -5.0},
	{ID: "monitor:english-channel", Name: "English Channel", Latitude: 50.0, Longitude: -2.0},
	{ID: "monitor:arabian-sea", Name: "Arabian Sea", Latitude: 18.0, Longitude: 66.0},
	{ID: "monitor:bay-of-bengal", Name: "Bay of Bengal", Latitude: 15.0, Longitude: 88.0},
	{ID: "monitor:south-china-sea", Name: "South China Sea", Latitude: 14.0, Longitude: 114.0},
	{ID: "monitor:gulf-of-mexico", Name: "Gulf of Mexico", Latitude: 25.0, Longitude: -90.0},
	{ID: "monitor:coral-sea", Name: "Coral Sea", Latitude: -18.0, Longitude: 152.0},
}

// MonitoringLocations returns a copy of the global monitoring points.
func MonitoringLocations() []domain.Location {
	out := make([]domain.Location, len(monitoringLocations))
	copy(out, monitoringLocations)
	return out
}

// UserLocations groups a user's saved locations for the daily digest.
type UserLocations struct {
	User      domain.User
	Locations []domain.Location
}

// Registry answers location queries for the scan orchestrator.
type Registry struct {
	src     Source
	monitor []domain.Location
}

// New creates a registry over src with the default monitoring points.
func New(src Source) *Registry {
	return &Registry{src: src, monitor: MonitoringLocations()}
}

// WithMonitoringLocations replaces the monitoring set. Used by tests and
// deployments that watch a different set of waters.
func (r *Registry) WithMonitoringLocations(locs []domain.Location) (*Registry, error) {
	for _, l := range locs {
		if err := l.Validate(); err != nil {
			return nil, err
		}
	}
	out := make([]domain.Location, len(locs))
	copy(out, locs)
	return &Registry{src: r.src, monitor: out}, nil
}

// Monitoring returns the monitoring points this registry watches.
func (r *Registry) Monitoring() []domain.Location {
	out := make([]domain.Location, len(r.monitor))
	copy(out, r.monitor)
	return out
}

func (r *Registry) ActiveUsers(ctx context.Context) ([]domain.User, error) {
	users, err := r.src.ActiveUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: active users: %w", err)
	}
	return users, nil
}

// SavedLocations returns every saved location whose owner is active.
func (r *Registry) SavedLocations(ctx context.Context) ([]domain.SavedLocation, error) {
	locs, err := r.src.SavedLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: saved locations: %w", err)
	}
	return locs, nil
}

func (r *Registry) SavedLocation(ctx context.Context, id string) (domain.SavedLocation, error) {
	sl, err := r.src.SavedLocation(ctx, id)
	if err != nil {
		return domain.SavedLocation{}, fmt.Errorf("registry: saved location: %w", err)
	}
	return sl, nil
}

func (r *Registry) ActivePreferences(ctx context.Context) ([]domain.AlertPreference, error) {
	prefs, err := r.src.ActivePreferences(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: active preferences: %w", err)
	}
	return prefs, nil
}

// LocationsByUser groups saved locations by active owner, in owner order of
// first appearance. Users without saved locations are not returned.
func (r *Registry) LocationsByUser(ctx context.Context) ([]UserLocations, error) {
	locs, err := r.SavedLocations(ctx)
	if err != nil {
		return nil, err
	}

	index := make(map[int64]int)
	var out []UserLocations
	for _, sl := range locs {
		if !sl.Owner.Active {
			continue
		}
		i, ok := index[sl.Owner.ID]
		if !ok {
			i = len(out)
			index[sl.Owner.ID] = i
			out = append(out, UserLocations{User: sl.Owner})
		}
		out[i].Locations = append(out[i].Locations, sl.Location)
	}
	return out, nil
}
