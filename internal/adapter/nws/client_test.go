package nws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	return NewClient(baseURL, 5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_Bulletins_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/alerts/active", r.URL.Path)
		assert.Equal(t, "29.0000,-90.0000", r.URL.Query().Get("point"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = io.WriteString(w, `{"features":[{"properties":{
			"event":"Gale Warning",
			"headline":"Gale Warning issued March 3 at 4:00AM CST",
			"description":"North winds 35 to 45 kt.",
			"instruction":"Mariners should alter plans.",
			"severity":"Severe",
			"onset":"2026-03-03T10:00:00-06:00",
			"expires":"2026-03-04T04:00:00-06:00"}}]}`)
	}))
	defer srv.Close()

	bulletins, err := testClient(srv.URL).Bulletins(context.Background(), 29, -90)
	require.NoError(t, err)
	require.Len(t, bulletins, 1)

	b := bulletins[0]
	assert.Equal(t, "nws", b.Source)
	assert.Equal(t, "Gale Warning", b.Kind)
	assert.Equal(t, "Gale Warning issued March 3 at 4:00AM CST", b.Title)
	assert.Equal(t, "North winds 35 to 45 kt.\n\nMariners should alter plans.", b.Content)
	assert.Equal(t, "high", b.Severity)
	assert.Equal(t, 16, b.ValidFrom.UTC().Hour())
	assert.False(t, b.ValidUntil.IsZero())
}

func TestClient_Bulletins_OutsideCoverage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	bulletins, err := testClient(srv.URL).Bulletins(context.Background(), 45, -5)
	require.NoError(t, err)
	assert.Empty(t, bulletins)
}

func TestClient_Bulletins_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Bulletins(context.Background(), 29, -90)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestMapSeverity(t *testing.T) {
	assert.Equal(t, "critical", mapSeverity("Extreme"))
	assert.Equal(t, "medium", mapSeverity("Moderate"))
	assert.Equal(t, "low", mapSeverity("Minor"))
	assert.Empty(t, mapSeverity("Unknown"))
}
