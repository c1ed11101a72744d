package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"breathewatch/internal/types"
)

const openWeatherAPIBase = "https://api.openweathermap.org"

// OpenWeatherConfig holds the configuration for creating an OpenWeatherClient.
type OpenWeatherConfig struct {
	APIKey     string
	BaseURL    string // defaults to openWeatherAPIBase
	MaxRetries int
	Logger     *slog.Logger
}

// OpenWeatherClient implements WeatherProvider against the OpenWeatherMap
// 2.5 data API and the 1.0 geocoding API. All readings are requested in
// metric units.
type OpenWeatherClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewOpenWeatherClient creates an OpenWeatherClient. The httpClient timeout
// bounds each individual call.
func NewOpenWeatherClient(httpClient *http.Client, cfg OpenWeatherConfig, opts ...BaseClientOption) *OpenWeatherClient {
	policy := NoRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries

	base := NewBaseClient(httpClient, BaseClientConfig{
		Name:          "openweathermap",
		UserAgent:     "BreatheWatch/1.0",
		Retry:         policy,
		TransportCode: types.ErrCodeUpstreamWeather,
	}, opts...)

	return newOpenWeatherClientWithBase(base, cfg)
}

func newOpenWeatherClientWithBase(base *BaseClient, cfg OpenWeatherConfig) *OpenWeatherClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openWeatherAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenWeatherClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

func (c *OpenWeatherClient) Name() string       { return "openweathermap" }
func (c *OpenWeatherClient) IsConfigured() bool { return c.apiKey != "" }

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type owmCurrentResponse struct {
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      *float64 `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
		Humidity  *float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	Dt   int64  `json:"dt"`
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
}

type owmForecastResponse struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp     *float64 `json:"temp"`
			Humidity *float64 `json:"humidity"`
		} `json:"main"`
	} `json:"list"`
}

type owmAirPollutionResponse struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			AQI *int `json:"aqi"`
		} `json:"main"`
		Components map[string]float64 `json:"components"`
	} `json:"list"`
}

type owmGeocodeResult struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	State   string  `json:"state"`
}

// ---------------------------------------------------------------------------
// WeatherProvider implementation
// ---------------------------------------------------------------------------

// Current fetches current conditions.
func (c *OpenWeatherClient) Current(ctx context.Context, lat, lon float64) (*types.CurrentConditions, error) {
	var body owmCurrentResponse
	if err := c.get(ctx, "/data/2.5/weather", coordParams(lat, lon, true), &body); err != nil {
		return nil, err
	}

	out := &types.CurrentConditions{
		TemperatureC: deref(body.Main.Temp),
		FeelsLikeC:   deref(body.Main.FeelsLike),
		HumidityPct:  deref(body.Main.Humidity),
		WindSpeedMps: deref(body.Wind.Speed),
		LocationName: body.Name,
		Country:      body.Sys.Country,
	}
	if body.Dt > 0 {
		out.ObservedAt = time.Unix(body.Dt, 0).UTC()
	}
	if len(body.Weather) > 0 {
		out.ConditionCode = body.Weather[0].ID
		out.Condition = body.Weather[0].Main
		out.Description = body.Weather[0].Description
	}
	return out, nil
}

// Forecast fetches the 3-hourly forecast series.
func (c *OpenWeatherClient) Forecast(ctx context.Context, lat, lon float64) ([]types.ForecastPoint, error) {
	var body owmForecastResponse
	if err := c.get(ctx, "/data/2.5/forecast", coordParams(lat, lon, true), &body); err != nil {
		return nil, err
	}

	points := make([]types.ForecastPoint, 0, len(body.List))
	for _, entry := range body.List {
		points = append(points, types.ForecastPoint{
			Timestamp:    time.Unix(entry.Dt, 0).UTC(),
			TemperatureC: deref(entry.Main.Temp),
			HumidityPct:  deref(entry.Main.Humidity),
		})
	}
	return points, nil
}

// AirQuality fetches the latest air pollution reading. AQI is 0 when the
// provider omitted it.
func (c *OpenWeatherClient) AirQuality(ctx context.Context, lat, lon float64) (*types.AirQuality, error) {
	var body owmAirPollutionResponse
	if err := c.get(ctx, "/data/2.5/air_pollution", coordParams(lat, lon, false), &body); err != nil {
		return nil, err
	}

	out := &types.AirQuality{}
	if len(body.List) == 0 {
		return out, nil
	}
	first := body.List[0]
	if first.Main.AQI != nil {
		out.AQI = *first.Main.AQI
	}
	out.Components = first.Components
	if first.Dt > 0 {
		out.MeasuredAt = time.Unix(first.Dt, 0).UTC()
	}
	return out, nil
}

// Geocode resolves a place name using the direct geocoding endpoint and
// returns the first match.
func (c *OpenWeatherClient) Geocode(ctx context.Context, query string) (*types.Location, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", "1")

	var results []owmGeocodeResult
	if err := c.get(ctx, "/geo/1.0/direct", params, &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeNotFoundLocation,
			fmt.Sprintf("no location found for %q", query), nil,
			map[string]any{"city": query})
	}

	r := results[0]
	return &types.Location{Name: r.Name, Country: r.Country, Lat: r.Lat, Lon: r.Lon}, nil
}

// ---------------------------------------------------------------------------
// HTTP helpers
// ---------------------------------------------------------------------------

func coordParams(lat, lon float64, metric bool) url.Values {
	v := url.Values{}
	v.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	v.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	if metric {
		v.Set("units", "metric")
	}
	return v
}

func (c *OpenWeatherClient) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("appid", c.apiKey)
	reqURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build weather request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "weather request failed", "path", path, "error", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := readUpstreamMessage(resp)
		if msg == "" {
			msg = fmt.Sprintf("weather provider returned HTTP %d", resp.StatusCode)
		}
		c.logger.WarnContext(ctx, "weather provider rejected request",
			"path", path, "status", resp.StatusCode, "message", msg)
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamWeather, msg, nil,
			map[string]any{"upstream_status": resp.StatusCode})
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamWeather, "weather provider returned malformed JSON", err)
	}
	return nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

var _ WeatherProvider = (*OpenWeatherClient)(nil)
