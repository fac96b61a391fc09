package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/marine-alerts/internal/domain"
)

type stubSource struct {
	users []domain.User
	saved []domain.SavedLocation
	prefs []domain.AlertPreference
	err   error
}

func (s *stubSource) ActiveUsers(context.Context) ([]domain.User, error) { return s.users, s.err }

func (s *stubSource) SavedLocations(context.Context) ([]domain.SavedLocation, error) {
	return s.saved, s.err
}

func (s *stubSource) SavedLocation(_ context.Context, id string) (domain.SavedLocation, error) {
	for _, sl := range s.saved {
		if sl.Location.ID == id {
			return sl, nil
		}
	}
	return domain.SavedLocation{}, errors.New("missing")
}

func (s *stubSource) ActivePreferences(context.Context) ([]domain.AlertPreference, error) {
	return s.prefs, s.err
}

func TestMonitoringLocations(t *testing.T) {
	locs := MonitoringLocations()
	require.Len(t, locs, 8)

	seen := make(map[string]bool)
	for _, l := range locs {
		require.NoError(t, l.Validate(), l.Name)
		assert.False(t, l.Owned())
		assert.False(t, seen[l.ID], "duplicate id %s", l.ID)
		seen[l.ID] = true
	}
	assert.Equal(t, "North Atlantic (Azores)", locs[0].Name)
	assert.Equal(t, -18.0, locs[7].Latitude)
}

func TestMonitoringLocations_ReturnsCopy(t *testing.T) {
	locs := MonitoringLocations()
	locs[0].Name = "changed"
	assert.Equal(t, "North Atlantic (Azores)", MonitoringLocations()[0].Name)
}

func TestRegistry_LocationsByUser(t *testing.T) {
	alice := domain.User{ID: 1, Email: "alice@example.com", Active: true}
	bob := domain.User{ID: 2, Email: "bob@example.com", Active: true}
	src := &stubSource{saved: []domain.SavedLocation{
		{Location: domain.Location{ID: "saved:1", Name: "Harbor", OwnerID: 1}, Owner: alice},
		{Location: domain.Location{ID: "saved:2", Name: "Point", OwnerID: 2}, Owner: bob},
		{Location: domain.Location{ID: "saved:3", Name: "Reef", OwnerID: 1}, Owner: alice},
	}}

	groups, err := New(src).LocationsByUser(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, alice, groups[0].User)
	assert.Len(t, groups[0].Locations, 2)
	assert.Equal(t, "Reef", groups[0].Locations[1].Name)
	assert.Equal(t, bob, groups[1].User)
}

func TestRegistry_WrapsSourceErrors(t *testing.T) {
	boom := errors.New("db down")
	r := New(&stubSource{err: boom})

	_, err := r.ActiveUsers(context.Background())
	assert.ErrorIs(t, err, boom)
	_, err = r.LocationsByUser(context.Background())
	assert.ErrorIs(t, err, boom)
	_, err = r.ActivePreferences(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestRegistry_WithMonitoringLocations(t *testing.T) {
	r := New(&stubSource{})

	custom, err := r.WithMonitoringLocations([]domain.Location{{ID: "monitor:test", Name: "Test", Latitude: 1, Longitude: 2}})
	require.NoError(t, err)
	assert.Len(t, custom.Monitoring(), 1)
	assert.Len(t, r.Monitoring(), 8)

	_, err = r.WithMonitoringLocations([]domain.Location{{ID: "monitor:bad", Latitude: 100}})
	assert.Error(t, err)
}
