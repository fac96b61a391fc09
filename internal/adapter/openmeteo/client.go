// Package openmeteo implements domain.WeatherSource on the Open-Meteo
// forecast and marine APIs.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/marine-alerts/internal/domain"
	"github.com/couchcryptid/marine-alerts/internal/observability"
)

const (
	DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	DefaultMarineURL   = "https://marine-api.open-meteo.com/v1/marine"

	hourLayout = "2006-01-02T15:04"
	dayLayout  = "2006-01-02"
)

// Client implements domain.WeatherSource using the Open-Meteo APIs.
type Client struct {
	httpClient  *http.Client
	forecastURL string
	marineURL   string
	clock       clockwork.Clock
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewClient creates an Open-Meteo client. Every request is bounded by timeout.
func NewClient(forecastURL, marineURL string, timeout time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		forecastURL: forecastURL,
		marineURL:   marineURL,
		clock:       clock,
		metrics:     metrics,
		logger:      logger,
	}
}

// CurrentWeather returns current conditions with hazard probabilities. Wave
// data comes from the marine API and is best-effort.
func (c *Client) CurrentWeather(ctx context.Context, lat, lon float64) (domain.Observation, error) {
	params := coordParams(lat, lon)
	params.Set("current", "temperature_2m,relative_humidity_2m,wind_speed_10m,wind_direction_10m,pressure_msl,visibility")
	params.Set("wind_speed_unit", "kmh")
	params.Set("timezone", "UTC")

	var resp currentResponse
	if err := c.get(ctx, "current", c.forecastURL, params, &resp); err != nil {
		return domain.Observation{}, fmt.Errorf("open-meteo current: %w", err)
	}

	cur := resp.Current
	if cur == nil || cur.Temperature == nil || cur.WindSpeed == nil || cur.Visibility == nil {
		return domain.Observation{}, fmt.Errorf("open-meteo current at %.4f,%.4f: %w", lat, lon, domain.ErrDataUnavailable)
	}

	obs := domain.Observation{
		Latitude:      lat,
		Longitude:     lon,
		ObservedAt:    parseTime(hourLayout, cur.Time, c.clock.Now().UTC()),
		Temperature:   *cur.Temperature,
		Humidity:      deref(cur.Humidity),
		WindSpeed:     *cur.WindSpeed,
		WindDirection: deref(cur.WindDirection),
		Pressure:      deref(cur.Pressure),
		Visibility:    *cur.Visibility,
	}

	height, period, err := c.currentWaves(ctx, lat, lon, obs.ObservedAt)
	if err != nil {
		c.logger.Debug("marine data unavailable", "lat", lat, "lon", lon, "error", err)
	}
	obs.WaveHeight, obs.WavePeriod = height, period

	obs.Condition = conditionLabel(obs.WindSpeed, obs.Visibility)
	obs.Hazards = currentHazards(obs.WindSpeed, obs.Visibility, obs.WaveHeight)
	return obs, nil
}

func (c *Client) currentWaves(ctx context.Context, lat, lon float64, at time.Time) (height, period float64, err error) {
	params := coordParams(lat, lon)
	params.Set("hourly", "wave_height,wave_period")
	params.Set("forecast_days", "1")
	params.Set("timezone", "UTC")

	var resp marineHourlyResponse
	if err := c.get(ctx, "marine", c.marineURL, params, &resp); err != nil {
		return 0, 0, err
	}

	h := resp.Hourly
	idx := 0
	hour := at.Truncate(time.Hour)
	for i, ts := range h.Time {
		if t, err := time.Parse(hourLayout, ts); err == nil && !t.Before(hour) {
			idx = i
			break
		}
	}
	return valueAt(h.WaveHeight, idx), valueAt(h.WavePeriod, idx), nil
}

// Forecast returns a daily outlook for the given number of days, merged with
// daily marine maxima when available.
func (c *Client) Forecast(ctx context.Context, lat, lon float64, days int) (domain.Forecast, error) {
	if days <= 0 {
		days = 1
	}
	params := coordParams(lat, lon)
	params.Set("daily", "temperature_2m_max,temperature_2m_min,wind_speed_10m_max,wind_direction_10m_dominant,precipitation_sum,precipitation_probability_max")
	params.Set("forecast_days", strconv.Itoa(days))
	params.Set("wind_speed_unit", "kmh")
	params.Set("timezone", "UTC")

	var resp dailyResponse
	if err := c.get(ctx, "forecast", c.forecastURL, params, &resp); err != nil {
		return domain.Forecast{}, fmt.Errorf("open-meteo forecast: %w", err)
	}
	if resp.Daily == nil || len(resp.Daily.Time) == 0 {
		return domain.Forecast{}, fmt.Errorf("open-meteo forecast at %.4f,%.4f: %w", lat, lon, domain.ErrDataUnavailable)
	}

	marine, err := c.dailyWaves(ctx, lat, lon, days)
	if err != nil {
		c.logger.Debug("marine forecast unavailable", "lat", lat, "lon", lon, "error", err)
	}

	d := resp.Daily
	out := domain.Forecast{Days: make([]domain.ForecastDay, 0, len(d.Time))}
	for i, ts := range d.Time {
		day := domain.ForecastDay{
			Date:                     parseTime(dayLayout, ts, time.Time{}),
			Temperature:              (valueAt(d.TempMax, i) + valueAt(d.TempMin, i)) / 2,
			WindSpeed:                valueAt(d.WindMax, i),
			WindDirection:            valueAt(d.WindDirection, i),
			Precipitation:            valueAt(d.PrecipSum, i),
			PrecipitationProbability: valueAt(d.PrecipProb, i),
		}
		if marine != nil {
			day.WaveHeight = valueAt(marine.WaveHeightMax, i)
			day.WavePeriod = valueAt(marine.WavePeriodMax, i)
		}
		day.Hazards = dailyHazards(day.WindSpeed, day.PrecipitationProbability, day.WaveHeight)
		out.Days = append(out.Days, day)
	}
	return out, nil
}

func (c *Client) dailyWaves(ctx context.Context, lat, lon float64, days int) (*marineDaily, error) {
	params := coordParams(lat, lon)
	params.Set("daily", "wave_height_max,wave_period_max")
	params.Set("forecast_days", strconv.Itoa(days))
	params.Set("timezone", "UTC")

	var resp marineDailyResponse
	if err := c.get(ctx, "marine", c.marineURL, params, &resp); err != nil {
		return nil, err
	}
	return resp.Daily, nil
}

func (c *Client) get(ctx context.Context, endpoint, base string, params url.Values, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	start := c.clock.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.WeatherAPIDuration.WithLabelValues(endpoint).Observe(c.clock.Since(start).Seconds())
	if err != nil {
		c.metrics.WeatherRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.WeatherRequests.WithLabelValues(endpoint, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("open-meteo API error: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		c.metrics.WeatherRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("decode response: %w", err)
	}
	c.metrics.WeatherRequests.WithLabelValues(endpoint, "success").Inc()
	return nil
}

func coordParams(lat, lon float64) url.Values {
	return url.Values{
		"latitude":  {strconv.FormatFloat(lat, 'f', 4, 64)},
		"longitude": {strconv.FormatFloat(lon, 'f', 4, 64)},
	}
}

func parseTime(layout, s string, fallback time.Time) time.Time {
	t, err := time.Parse(layout, s)
	if err != nil {
		return fallback
	}
	return t
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// valueAt returns values[i], treating missing and null entries as 0.
func valueAt(values []*float64, i int) float64 {
	if i < 0 || i >= len(values) {
		return 0
	}
	return deref(values[i])
}

// Open-Meteo API response types. Pointers distinguish null from zero.

type currentResponse struct {
	Current *currentBlock `json:"current"`
}

type currentBlock struct {
	Time          string   `json:"time"`
	Temperature   *float64 `json:"temperature_2m"`
	Humidity      *float64 `json:"relative_humidity_2m"`
	WindSpeed     *float64 `json:"wind_speed_10m"`
	WindDirection *float64 `json:"wind_direction_10m"`
	Pressure      *float64 `json:"pressure_msl"`
	Visibility    *float64 `json:"visibility"`
}

type marineHourlyResponse struct {
	Hourly struct {
		Time       []string   `json:"time"`
		WaveHeight []*float64 `json:"wave_height"`
		WavePeriod []*float64 `json:"wave_period"`
	} `json:"hourly"`
}

type marineDailyResponse struct {
	Daily *marineDaily `json:"daily"`
}

type marineDaily struct {
	Time          []string   `json:"time"`
	WaveHeightMax []*float64 `json:"wave_height_max"`
	WavePeriodMax []*float64 `json:"wave_period_max"`
}

type dailyResponse struct {
	Daily *dailyBlock `json:"daily"`
}

type dailyBlock struct {
	Time          []string   `json:"time"`
	TempMax       []*float64 `json:"temperature_2m_max"`
	TempMin       []*float64 `json:"temperature_2m_min"`
	WindMax       []*float64 `json:"wind_speed_10m_max"`
	WindDirection []*float64 `json:"wind_direction_10m_dominant"`
	PrecipSum     []*float64 `json:"precipitation_sum"`
	PrecipProb    []*float64 `json:"precipitation_probability_max"`
}
