package conditions

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breathewatch/internal/external"
	"breathewatch/internal/risk"
	"breathewatch/internal/types"
)

type fakeWeather struct {
	configured  bool
	current     types.CurrentConditions
	forecast    []types.ForecastPoint
	air         types.AirQuality
	geocode     *types.Location
	currentErr  error
	forecastErr error
	airErr      error
	geocodeErr  error
	// empty makes the named payloads come back as (nil, nil).
	empty    map[string]bool
	geocodes atomic.Int32
	lastLat  float64
}

func (f *fakeWeather) Current(_ context.Context, lat, _ float64) (*types.CurrentConditions, error) {
	f.lastLat = lat
	if f.currentErr != nil || f.empty["current"] {
		return nil, f.currentErr
	}
	c := f.current
	return &c, nil
}

func (f *fakeWeather) Forecast(context.Context, float64, float64) ([]types.ForecastPoint, error) {
	return f.forecast, f.forecastErr
}

func (f *fakeWeather) AirQuality(context.Context, float64, float64) (*types.AirQuality, error) {
	if f.airErr != nil || f.empty["air"] {
		return nil, f.airErr
	}
	a := f.air
	return &a, nil
}

func (f *fakeWeather) Geocode(context.Context, string) (*types.Location, error) {
	f.geocodes.Add(1)
	if f.geocodeErr != nil || f.empty["geocode"] {
		return nil, f.geocodeErr
	}
	l := *f.geocode
	return &l, nil
}

func (f *fakeWeather) IsConfigured() bool { return f.configured }
func (f *fakeWeather) Name() string       { return "fake" }

var _ external.WeatherProvider = (*fakeWeather)(nil)

func ptr(v float64) *float64 { return &v }

func forecastSeries(n int) []types.ForecastPoint {
	start := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	out := make([]types.ForecastPoint, n)
	for i := range out {
		out[i] = types.ForecastPoint{Timestamp: start.Add(time.Duration(i) * 3 * time.Hour), TemperatureC: float64(i), HumidityPct: 50}
	}
	return out
}

func TestGetReport_ByCoordinates(t *testing.T) {
	w := &fakeWeather{
		configured: true,
		current:    types.CurrentConditions{TemperatureC: 5, HumidityPct: 80, WindSpeedMps: 4, LocationName: "Oslo", Country: "NO"},
		forecast:   forecastSeries(40),
		air:        types.AirQuality{AQI: 2},
	}
	svc := NewService(w, 8, nil)

	rep, err := svc.GetReport(context.Background(), Query{Lat: ptr(59.91), Lon: ptr(10.75)})
	require.NoError(t, err)

	assert.Equal(t, types.Location{Name: "Oslo", Country: "NO", Lat: 59.91, Lon: 10.75}, rep.Location)
	assert.Equal(t, types.EnvironmentalSnapshot{TemperatureC: 5, HumidityPct: 80, WindSpeedMps: 4, AirQualityIndex: 2}, rep.Snapshot)
	// Cold Air (+2) and High Humidity (+2).
	assert.Equal(t, types.RiskHigh, rep.Assessment.Level)
	assert.Equal(t, risk.Category(types.RiskHigh), rep.Severity)
	assert.Equal(t, "Fair", rep.AirQualityLabel)
	assert.Len(t, rep.Forecast, 8)
	assert.False(t, rep.Simulated)
	assert.Zero(t, w.geocodes.Load())
}

func TestGetReport_ByCity(t *testing.T) {
	w := &fakeWeather{
		configured: true,
		geocode:    &types.Location{Name: "Delhi", Country: "IN", Lat: 28.65, Lon: 77.22},
		current:    types.CurrentConditions{TemperatureC: 35, HumidityPct: 30, LocationName: "Civil Lines"},
		air:        types.AirQuality{AQI: 5},
	}
	svc := NewService(w, 0, nil)

	rep, err := svc.GetReport(context.Background(), Query{City: "  delhi "})
	require.NoError(t, err)

	assert.Equal(t, "Delhi", rep.Location.Name, "geocoded name wins over the station name")
	assert.Equal(t, 28.65, w.lastLat)
	assert.Equal(t, types.RiskHigh, rep.Assessment.Level)
	assert.Equal(t, []string{risk.TriggerPoorAir, risk.TriggerExtremeHeat}, rep.Assessment.Triggers)
}

func TestGetReport_CoordinatesWinOverCity(t *testing.T) {
	w := &fakeWeather{current: types.CurrentConditions{TemperatureC: 20}, air: types.AirQuality{AQI: 1}}
	svc := NewService(w, 8, nil)

	rep, err := svc.GetReport(context.Background(), Query{Lat: ptr(1), Lon: ptr(2), City: "Paris"})
	require.NoError(t, err)
	assert.Zero(t, w.geocodes.Load())
	assert.Equal(t, "1.00, 2.00", rep.Location.Name)
	assert.True(t, rep.Simulated)
}

func TestGetReport_Validation(t *testing.T) {
	svc := NewService(&fakeWeather{}, 8, nil)

	tests := []struct {
		name string
		q    Query
		code types.ErrorCode
	}{
		{"nothing", Query{}, types.ErrCodeValidationMissingField},
		{"blank city", Query{City: "   "}, types.ErrCodeValidationMissingField},
		{"lat only", Query{Lat: ptr(10)}, types.ErrCodeValidationMissingField},
		{"lat too high", Query{Lat: ptr(90.01), Lon: ptr(0)}, types.ErrCodeValidationInvalidLat},
		{"lon too low", Query{Lat: ptr(0), Lon: ptr(-180.5)}, types.ErrCodeValidationInvalidLon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetReport(context.Background(), tt.q)
			assert.Equal(t, tt.code, types.ErrorCodeOf(err))
		})
	}
}

func TestGetReport_BoundaryCoordinatesAccepted(t *testing.T) {
	w := &fakeWeather{air: types.AirQuality{AQI: 1}}
	svc := NewService(w, 8, nil)

	_, err := svc.GetReport(context.Background(), Query{Lat: ptr(-90), Lon: ptr(180)})
	assert.NoError(t, err)
}

func TestGetReport_CityNotFound(t *testing.T) {
	w := &fakeWeather{geocodeErr: types.NewAppError(types.ErrCodeNotFoundLocation, `no location found for "Atlantis"`, nil)}
	svc := NewService(w, 8, nil)

	_, err := svc.GetReport(context.Background(), Query{City: "Atlantis"})
	assert.Equal(t, types.ErrCodeNotFoundLocation, types.ErrorCodeOf(err))
}

func TestGetReport_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name    string
		w       *fakeWeather
		message string
	}{
		{
			name:    "current fails with provider message",
			w:       &fakeWeather{currentErr: types.NewAppError(types.ErrCodeUpstreamWeather, "Invalid API key.", nil)},
			message: "Invalid API key.",
		},
		{
			name:    "air quality rate limited",
			w:       &fakeWeather{airErr: types.NewAppError(types.ErrCodeUpstreamRateLimited, "openweathermap rate limit exceeded", nil)},
			message: "openweathermap rate limit exceeded",
		},
		{
			name:    "forecast plain error",
			w:       &fakeWeather{forecastErr: errors.New("connection reset")},
			message: "weather service unavailable",
		},
		{
			name:    "geocode transport failure",
			w:       &fakeWeather{geocodeErr: types.NewAppError(types.ErrCodeUpstreamUnavailable, "openweathermap is temporarily unavailable (circuit open)", nil)},
			message: "openweathermap is temporarily unavailable (circuit open)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.w.geocode = &types.Location{Name: "X"}
			svc := NewService(tt.w, 8, nil)

			_, err := svc.GetReport(context.Background(), Query{City: "X"})

			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, types.ErrCodeUpstreamWeather, appErr.Code)
			assert.Equal(t, tt.message, appErr.Message)
		})
	}
}

func TestGetReport_EmptyProviderPayloads(t *testing.T) {
	for _, payload := range []string{"current", "air", "geocode"} {
		t.Run(payload, func(t *testing.T) {
			w := &fakeWeather{
				geocode: &types.Location{Name: "Oslo", Lat: 59.91, Lon: 10.75},
				empty:   map[string]bool{payload: true},
			}
			svc := NewService(w, 8, nil)

			var (
				report *Report
				err    error
			)
			require.NotPanics(t, func() {
				report, err = svc.GetReport(context.Background(), Query{City: "Oslo"})
			})

			assert.Nil(t, report)
			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, types.ErrCodeUpstreamWeather, appErr.Code)
			assert.Contains(t, appErr.Message, "returned no")
		})
	}
}

func TestGetReport_NormalizesBadReadings(t *testing.T) {
	w := &fakeWeather{
		current: types.CurrentConditions{
			TemperatureC: math.NaN(),
			HumidityPct:  math.Inf(1),
			WindSpeedMps: 12,
		},
		forecast: []types.ForecastPoint{{TemperatureC: math.NaN(), HumidityPct: 40}},
		air:      types.AirQuality{AQI: 0},
	}
	svc := NewService(w, 8, nil)

	rep, err := svc.GetReport(context.Background(), Query{Lat: ptr(0), Lon: ptr(0)})
	require.NoError(t, err)

	assert.Equal(t, types.EnvironmentalSnapshot{TemperatureC: 0, HumidityPct: 0, WindSpeedMps: 12, AirQualityIndex: 1}, rep.Snapshot)
	assert.Equal(t, 1, rep.AirQuality.AQI)
	assert.Zero(t, rep.Forecast[0].TemperatureC)
	// NaN temperature coerces to 0, which is below the cold threshold.
	assert.Contains(t, rep.Assessment.Triggers, risk.TriggerColdAir)
}

func TestNormalizeAQI(t *testing.T) {
	for in, want := range map[int]int{-1: 1, 0: 1, 1: 1, 3: 3, 5: 5, 6: 1} {
		assert.Equal(t, want, NormalizeAQI(in), "aqi %d", in)
	}
}

func TestTrimForecast(t *testing.T) {
	assert.Len(t, trimForecast(forecastSeries(3), 8), 3)
	assert.Len(t, trimForecast(forecastSeries(40), 8), 8)
	assert.Empty(t, trimForecast(nil, 8))
}

func TestGetReport_WithStubProvider(t *testing.T) {
	svc := NewService(external.NewStubWeatherProvider(nil), 8, nil)

	rep, err := svc.GetReport(context.Background(), Query{City: "London"})
	require.NoError(t, err)

	assert.True(t, rep.Simulated)
	assert.Equal(t, "London", rep.Location.Name)
	assert.Equal(t, types.RiskLow, rep.Assessment.Level)
	assert.Len(t, rep.Forecast, 8)
}
