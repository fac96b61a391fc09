// Package classifier calls an external hazard analysis service over HTTP.
// The service receives current weather, the forecast and any bulletins and
// answers with a narrative summary and severity hints.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/marine-alerts/internal/domain"
	"github.com/couchcryptid/marine-alerts/internal/observability"
)

// Client implements domain.HazardClassifier against a JSON HTTP endpoint.
type Client struct {
	httpClient *http.Client
	url        string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a classifier client that POSTs analysis requests to url.
func NewClient(url string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		url:     url,
		metrics: metrics,
		logger:  logger,
	}
}

// Analyze returns the structured analysis. Every failure wraps
// domain.ErrClassifierUnavailable so callers can degrade to numeric alerts.
func (c *Client) Analyze(ctx context.Context, req domain.AnalysisRequest) (domain.Analysis, error) {
	analysis, err := c.analyze(ctx, req)
	if err != nil {
		c.metrics.ClassifierRequests.WithLabelValues("error").Inc()
		return domain.Analysis{}, fmt.Errorf("%w: %w", domain.ErrClassifierUnavailable, err)
	}
	c.metrics.ClassifierRequests.WithLabelValues("success").Inc()
	return analysis, nil
}

func (c *Client) analyze(ctx context.Context, req domain.AnalysisRequest) (domain.Analysis, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Analysis{}, fmt.Errorf("classifier API error: status %d: %s", resp.StatusCode, msg)
	}

	var analysis domain.Analysis
	if err := json.NewDecoder(resp.Body).Decode(&analysis); err != nil {
		return domain.Analysis{}, fmt.Errorf("decode response: %w", err)
	}
	if analysis.Summary == "" {
		return domain.Analysis{}, errors.New("classifier returned an empty summary")
	}
	return analysis, nil
}

// Disabled is the classifier used when no endpoint is configured.
type Disabled struct{}

func (Disabled) Analyze(context.Context, domain.AnalysisRequest) (domain.Analysis, error) {
	return domain.Analysis{}, fmt.Errorf("%w: no classifier configured", domain.ErrClassifierUnavailable)
}
