// Package nws fetches active weather alerts from the US National Weather
// Service and exposes them as hazard bulletins.
package nws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/marine-alerts/internal/domain"
)

const (
	DefaultBaseURL = "https://api.weather.gov"
	userAgent      = "marine-alerts/1.0 (github.com/couchcryptid/marine-alerts)"
)

// Client implements domain.AuxiliaryContentSource using the NWS alerts API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an NWS client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Bulletins returns the active alerts covering a point. Points outside NWS
// coverage yield no bulletins and no error.
func (c *Client) Bulletins(ctx context.Context, lat, lon float64) ([]domain.Bulletin, error) {
	u := fmt.Sprintf("%s/alerts/active?point=%.4f,%.4f", c.baseURL, lat, lon)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nws alerts request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusNotFound:
		c.logger.Debug("point outside nws coverage", "lat", lat, "lon", lon, "status", resp.StatusCode)
		return nil, nil
	default:
		return nil, fmt.Errorf("nws API error: status %d", resp.StatusCode)
	}

	var ar alertResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	bulletins := make([]domain.Bulletin, 0, len(ar.Features))
	for _, f := range ar.Features {
		p := f.Properties
		title := p.Headline
		if title == "" {
			title = p.Event
		}
		content := p.Description
		if p.Instruction != "" {
			content = strings.TrimSpace(content + "\n\n" + p.Instruction)
		}
		onset, _ := time.Parse(time.RFC3339, p.Onset)
		expires, _ := time.Parse(time.RFC3339, p.Expires)

		bulletins = append(bulletins, domain.Bulletin{
			Source:     "nws",
			Kind:       p.Event,
			Title:      title,
			Content:    content,
			Severity:   mapSeverity(p.Severity),
			ValidFrom:  onset,
			ValidUntil: expires,
		})
	}
	return bulletins, nil
}

func mapSeverity(s string) string {
	switch s {
	case "Extreme":
		return string(domain.SeverityCritical)
	case "Severe":
		return string(domain.SeverityHigh)
	case "Moderate":
		return string(domain.SeverityMedium)
	case "Minor":
		return string(domain.SeverityLow)
	default:
		return ""
	}
}

// NWS alert API response types.

type alertResponse struct {
	Features []struct {
		Properties struct {
			Event       string `json:"event"`
			Headline    string `json:"headline"`
			Description string `json:"description"`
			Instruction string `json:"instruction"`
			Severity    string `json:"severity"`
			Onset       string `json:"onset"`
			Expires     string `json:"expires"`
		} `json:"properties"`
	} `json:"features"`
}

// None is the bulletin source used when NWS lookups are disabled.
type None struct{}

func (None) Bulletins(context.Context, float64, float64) ([]domain.Bulletin, error) {
	return nil, nil
}
