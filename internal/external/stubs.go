package external

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"breathewatch/internal/types"
)

// Stub implementations let the service run without vendor credentials. They
// log every call and return predictable values, and report IsConfigured()
// false so callers can flag their results as simulated.

// StubEmailProvider logs sends and returns a fabricated message ID.
type StubEmailProvider struct {
	logger *slog.Logger
}

// NewStubEmailProvider creates a new StubEmailProvider.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEmailProvider{logger: logger}
}

func (s *StubEmailProvider) Name() string       { return "stub" }
func (s *StubEmailProvider) IsConfigured() bool { return false }

func (s *StubEmailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	s.logger.InfoContext(ctx, "stub: Send email called",
		"subject", input.Subject,
		"from", input.From.Address,
		"reference_id", input.ReferenceID,
	)
	ref := input.ReferenceID
	if ref == "" {
		ref = uuid.NewString()
	}
	return "simulated-" + ref, nil
}

// Fixed readings returned by StubWeatherProvider: a mild, partly cloudy day
// with fair air quality.
const (
	stubTempC        = 18.5
	stubFeelsLikeC   = 17.9
	stubHumidityPct  = 62
	stubWindSpeedMps = 3.6
	stubAQI          = 2
	stubForecastLen  = 40
	stubForecastStep = 3 * time.Hour
)

var stubCities = map[string]types.Location{
	"london":   {Name: "London", Country: "GB", Lat: 51.5073, Lon: -0.1276},
	"new york": {Name: "New York", Country: "US", Lat: 40.7128, Lon: -74.006},
	"delhi":    {Name: "Delhi", Country: "IN", Lat: 28.6517, Lon: 77.2219},
	"tokyo":    {Name: "Tokyo", Country: "JP", Lat: 35.6828, Lon: 139.759},
	"sydney":   {Name: "Sydney", Country: "AU", Lat: -33.8688, Lon: 151.2093},
}

// StubWeatherProvider returns canned conditions for any coordinate.
type StubWeatherProvider struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewStubWeatherProvider creates a new StubWeatherProvider.
func NewStubWeatherProvider(logger *slog.Logger) *StubWeatherProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubWeatherProvider{logger: logger, now: time.Now}
}

func (s *StubWeatherProvider) Name() string       { return "stub" }
func (s *StubWeatherProvider) IsConfigured() bool { return false }

func (s *StubWeatherProvider) Current(ctx context.Context, lat, lon float64) (*types.CurrentConditions, error) {
	s.logger.DebugContext(ctx, "stub: Current called", "lat", lat, "lon", lon)
	return &types.CurrentConditions{
		TemperatureC:  stubTempC,
		FeelsLikeC:    stubFeelsLikeC,
		HumidityPct:   stubHumidityPct,
		WindSpeedMps:  stubWindSpeedMps,
		ConditionCode: 802,
		Condition:     "Clouds",
		Description:   "scattered clouds",
		ObservedAt:    s.now().UTC().Truncate(time.Minute),
		LocationName:  "Simulated Location",
	}, nil
}

func (s *StubWeatherProvider) Forecast(ctx context.Context, lat, lon float64) ([]types.ForecastPoint, error) {
	s.logger.DebugContext(ctx, "stub: Forecast called", "lat", lat, "lon", lon)
	start := s.now().UTC().Truncate(time.Hour)
	points := make([]types.ForecastPoint, stubForecastLen)
	for i := range points {
		// Gentle diurnal swing around the current reading.
		swing := float64((i%8)-4) * 0.75
		points[i] = types.ForecastPoint{
			Timestamp:    start.Add(time.Duration(i+1) * stubForecastStep),
			TemperatureC: stubTempC + swing,
			HumidityPct:  stubHumidityPct - swing*2,
		}
	}
	return points, nil
}

func (s *StubWeatherProvider) AirQuality(ctx context.Context, lat, lon float64) (*types.AirQuality, error) {
	s.logger.DebugContext(ctx, "stub: AirQuality called", "lat", lat, "lon", lon)
	return &types.AirQuality{
		AQI: stubAQI,
		Components: map[string]float64{
			"co": 230.31, "no": 0.12, "no2": 11.48, "o3": 61.51,
			"so2": 1.85, "pm2_5": 6.72, "pm10": 9.3, "nh3": 0.63,
		},
		MeasuredAt: s.now().UTC().Truncate(time.Hour),
	}, nil
}

// Geocode resolves a handful of well-known cities; any other query is echoed
// back at the null island coordinate.
func (s *StubWeatherProvider) Geocode(ctx context.Context, query string) (*types.Location, error) {
	s.logger.DebugContext(ctx, "stub: Geocode called", "query", query)
	if loc, ok := stubCities[strings.ToLower(strings.TrimSpace(query))]; ok {
		return &loc, nil
	}
	return &types.Location{Name: strings.TrimSpace(query)}, nil
}

var (
	_ EmailProvider   = (*StubEmailProvider)(nil)
	_ WeatherProvider = (*StubWeatherProvider)(nil)
)
