// Package conditions fetches live readings for a location, normalizes them
// into an EnvironmentalSnapshot and runs the risk engine over the result.
package conditions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"breathewatch/internal/external"
	"breathewatch/internal/risk"
	"breathewatch/internal/types"
)

// DefaultForecastPoints is the number of 3-hourly entries kept when the
// caller does not configure one (24 hours).
const DefaultForecastPoints = 8

// Query selects a location by coordinates or by place name. Coordinates win
// when both are supplied.
type Query struct {
	Lat  *float64
	Lon  *float64
	City string
}

// Report is everything the UI needs to render one location.
type Report struct {
	Location        types.Location              `json:"location"`
	Current         types.CurrentConditions     `json:"current"`
	Forecast        []types.ForecastPoint       `json:"forecast"`
	AirQuality      types.AirQuality            `json:"air_quality"`
	AirQualityLabel string                      `json:"air_quality_label"`
	Snapshot        types.EnvironmentalSnapshot `json:"snapshot"`
	Assessment      types.RiskAssessment        `json:"assessment"`
	Severity        types.SeverityCategory      `json:"severity"`
	Simulated       bool                        `json:"simulated"`
	GeneratedAt     time.Time                   `json:"generated_at"`
}

// Service builds Reports from a WeatherProvider.
type Service struct {
	weather        external.WeatherProvider
	forecastPoints int
	logger         *slog.Logger
	now            func() time.Time
}

// NewService creates a Service. forecastPoints <= 0 selects
// DefaultForecastPoints.
func NewService(weather external.WeatherProvider, forecastPoints int, logger *slog.Logger) *Service {
	if forecastPoints <= 0 {
		forecastPoints = DefaultForecastPoints
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		weather:        weather,
		forecastPoints: forecastPoints,
		logger:         logger,
		now:            time.Now,
	}
}

// GetReport resolves the location, fetches current conditions, forecast and
// air quality concurrently, and assesses the normalized snapshot.
func (s *Service) GetReport(ctx context.Context, q Query) (*Report, error) {
	loc, err := s.resolveLocation(ctx, q)
	if err != nil {
		return nil, err
	}

	var (
		current  *types.CurrentConditions
		forecast []types.ForecastPoint
		air      *types.AirQuality
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = s.weather.Current(gCtx, loc.Lat, loc.Lon)
		if err == nil && current == nil {
			return emptyPayload("current conditions")
		}
		return err
	})
	g.Go(func() error {
		var err error
		forecast, err = s.weather.Forecast(gCtx, loc.Lat, loc.Lon)
		return err
	})
	g.Go(func() error {
		var err error
		air, err = s.weather.AirQuality(gCtx, loc.Lat, loc.Lon)
		if err == nil && air == nil {
			return emptyPayload("air quality")
		}
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.WarnContext(ctx, "weather fetch failed",
			"lat", loc.Lat, "lon", loc.Lon, "provider", s.weather.Name(), "error", err)
		return nil, asWeatherError(err)
	}

	cur := normalizeCurrent(*current)
	if loc.Name == "" {
		loc.Name = cur.LocationName
	}
	if loc.Name == "" {
		loc.Name = fmt.Sprintf("%.2f, %.2f", loc.Lat, loc.Lon)
	}
	if loc.Country == "" {
		loc.Country = cur.Country
	}

	aq := *air
	aq.AQI = NormalizeAQI(aq.AQI)

	snapshot := Snapshot(cur, aq)
	assessment := risk.Assess(snapshot)

	return &Report{
		Location:        *loc,
		Current:         cur,
		Forecast:        trimForecast(forecast, s.forecastPoints),
		AirQuality:      aq,
		AirQualityLabel: risk.AQILabel(aq.AQI),
		Snapshot:        snapshot,
		Assessment:      assessment,
		Severity:        risk.Category(assessment.Level),
		Simulated:       !s.weather.IsConfigured(),
		GeneratedAt:     s.now().UTC(),
	}, nil
}

func (s *Service) resolveLocation(ctx context.Context, q Query) (*types.Location, error) {
	city := strings.TrimSpace(q.City)

	switch {
	case q.Lat != nil && q.Lon != nil:
		if !types.ValidLat(*q.Lat) {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidLat,
				"latitude must be between -90 and 90", nil, map[string]any{"lat": *q.Lat})
		}
		if !types.ValidLon(*q.Lon) {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidLon,
				"longitude must be between -180 and 180", nil, map[string]any{"lon": *q.Lon})
		}
		return &types.Location{Lat: *q.Lat, Lon: *q.Lon}, nil

	case city != "":
		loc, err := s.weather.Geocode(ctx, city)
		if err != nil {
			if types.ErrorCodeOf(err) == types.ErrCodeNotFoundLocation {
				return nil, err
			}
			return nil, asWeatherError(err)
		}
		if loc == nil {
			return nil, emptyPayload("geocoding")
		}
		return loc, nil

	default:
		return nil, types.NewAppError(types.ErrCodeValidationMissingField,
			"either lat and lon or city is required", nil)
	}
}

// emptyPayload reports a provider that returned neither data nor an error.
func emptyPayload(what string) error {
	return types.NewAppError(types.ErrCodeUpstreamWeather,
		fmt.Sprintf("weather provider returned no %s data", what), nil)
}

// asWeatherError folds every upstream failure into
// ErrCodeUpstreamWeather, keeping the provider's message when there is one.
func asWeatherError(err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		if appErr.Code == types.ErrCodeUpstreamWeather {
			return appErr
		}
		if strings.HasPrefix(string(appErr.Code), "upstream_") {
			return types.NewAppErrorWithDetails(types.ErrCodeUpstreamWeather, appErr.Message, appErr, appErr.Details)
		}
		return appErr
	}
	return types.NewAppError(types.ErrCodeUpstreamWeather, "weather service unavailable", err)
}

// Snapshot extracts the risk engine input from normalized readings.
func Snapshot(cur types.CurrentConditions, aq types.AirQuality) types.EnvironmentalSnapshot {
	return types.EnvironmentalSnapshot{
		TemperatureC:    finite(cur.TemperatureC),
		HumidityPct:     finite(cur.HumidityPct),
		WindSpeedMps:    finite(cur.WindSpeedMps),
		AirQualityIndex: NormalizeAQI(aq.AQI),
	}
}

// NormalizeAQI maps a missing or out-of-range index to 1 (Good).
func NormalizeAQI(aqi int) int {
	if aqi < types.MinAQI || aqi > types.MaxAQI {
		return types.MinAQI
	}
	return aqi
}

func normalizeCurrent(c types.CurrentConditions) types.CurrentConditions {
	c.TemperatureC = finite(c.TemperatureC)
	c.FeelsLikeC = finite(c.FeelsLikeC)
	c.HumidityPct = finite(c.HumidityPct)
	c.WindSpeedMps = finite(c.WindSpeedMps)
	return c
}

func trimForecast(points []types.ForecastPoint, n int) []types.ForecastPoint {
	if len(points) > n {
		points = points[:n]
	}
	out := make([]types.ForecastPoint, len(points))
	for i, p := range points {
		out[i] = types.ForecastPoint{
			Timestamp:    p.Timestamp,
			TemperatureC: finite(p.TemperatureC),
			HumidityPct:  finite(p.HumidityPct),
		}
	}
	return out
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
