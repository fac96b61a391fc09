package scan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/marine-alerts/internal/domain"
	"github.com/couchcryptid/marine-alerts/internal/registry"
)

func TestDailyDigest_OneNotificationPerUser(t *testing.T) {
	h := newHarness(t)
	h.registry.groups = []registry.UserLocations{
		{User: alice, Locations: []domain.Location{harbor, point}},
		{User: bob, Locations: []domain.Location{cove}},
	}
	h.weather.set(harbor, domain.Observation{Temperature: 12})
	h.weather.set(point, domain.Observation{Temperature: 13})
	h.weather.set(cove, domain.Observation{Temperature: 14})

	require.NoError(t, h.orch.DailyDigest(context.Background()))

	batches := h.dispatcher.sent()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)

	byRecipient := map[string]domain.Notification{}
	for _, n := range batches[0] {
		assert.Equal(t, domain.NotificationDigest, n.Kind)
		byRecipient[n.Recipient] = n
	}
	aliceDigest := byRecipient["alice@example.com"].Digest
	require.Len(t, aliceDigest, 2)
	assert.Equal(t, "Harbor", aliceDigest[0].LocationName)
	assert.Equal(t, "Point", aliceDigest[1].LocationName)
	assert.Len(t, aliceDigest[0].Forecast.Days, 7)
	require.NotNil(t, aliceDigest[0].Analysis)
	assert.Len(t, byRecipient["bob@example.com"].Digest, 1)
}

func TestDailyDigest_FailingLocationOmitted(t *testing.T) {
	h := newHarness(t)
	h.registry.groups = []registry.UserLocations{
		{User: alice, Locations: []domain.Location{harbor, point}},
		{User: bob, Locations: []domain.Location{cove}},
	}
	h.weather.set(point, domain.Observation{Temperature: 13})

	require.NoError(t, h.orch.DailyDigest(context.Background()))

	batches := h.dispatcher.sent()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1, "bob has no surviving location")
	n := batches[0][0]
	assert.Equal(t, "alice@example.com", n.Recipient)
	require.Len(t, n.Digest, 1)
	assert.Equal(t, "Point", n.Digest[0].LocationName)
}

func TestDailyDigest_ForecastFailureOmitsLocation(t *testing.T) {
	h := newHarness(t)
	h.weather.forecastErr = errors.New("open-meteo forecast: status 503")
	h.registry.groups = []registry.UserLocations{{User: alice, Locations: []domain.Location{harbor}}}
	h.weather.set(harbor, domain.Observation{Temperature: 12})

	require.NoError(t, h.orch.DailyDigest(context.Background()))

	assert.Empty(t, h.dispatcher.sent())
}

func TestDailyDigest_ClassifierUnavailableKeepsLocation(t *testing.T) {
	h := newHarness(t)
	h.classifier.err = domain.ErrClassifierUnavailable
	h.registry.groups = []registry.UserLocations{{User: alice, Locations: []domain.Location{harbor}}}
	h.weather.set(harbor, domain.Observation{Temperature: 12})

	require.NoError(t, h.orch.DailyDigest(context.Background()))

	batches := h.dispatcher.sent()
	require.Len(t, batches, 1)
	entry := batches[0][0].Digest[0]
	assert.True(t, entry.AnalysisUnavailable)
	assert.Nil(t, entry.Analysis)
}

func TestDailyDigest_RegistryFailure(t *testing.T) {
	h := newHarness(t)
	h.registry.setErr(errRegistryDown)

	require.ErrorIs(t, h.orch.DailyDigest(context.Background()), errRegistryDown)
	assert.Empty(t, h.dispatcher.sent())
}
