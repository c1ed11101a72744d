package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breathewatch/internal/types"
)

func newTestOpenWeather(t *testing.T, handler http.HandlerFunc) *OpenWeatherClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOpenWeatherClient(server.Client(), OpenWeatherConfig{
		APIKey:  "owm-test-key",
		BaseURL: server.URL,
	}, WithSleepFunc(noopSleep))
}

func TestOpenWeather_Current(t *testing.T) {
	c := newTestOpenWeather(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/2.5/weather", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "51.5", q.Get("lat"))
		assert.Equal(t, "-0.12", q.Get("lon"))
		assert.Equal(t, "metric", q.Get("units"))
		assert.Equal(t, "owm-test-key", q.Get("appid"))
		w.Write([]byte(`{
			"weather":[{"id":500,"main":"Rain","description":"light rain"}],
			"main":{"temp":8.2,"feels_like":5.1,"humidity":81},
			"wind":{"speed":6.7},
			"dt":1700000000,
			"name":"London",
			"sys":{"country":"GB"}
		}`))
	})

	got, err := c.Current(context.Background(), 51.5, -0.12)
	require.NoError(t, err)

	assert.Equal(t, 8.2, got.TemperatureC)
	assert.Equal(t, 5.1, got.FeelsLikeC)
	assert.Equal(t, 81.0, got.HumidityPct)
	assert.Equal(t, 6.7, got.WindSpeedMps)
	assert.Equal(t, 500, got.ConditionCode)
	assert.Equal(t, "Rain", got.Condition)
	assert.Equal(t, "light rain", got.Description)
	assert.Equal(t, "London", got.LocationName)
	assert.Equal(t, "GB", got.Country)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), got.ObservedAt)
}

func TestOpenWeather_CurrentMissingFieldsDefaultToZero(t *testing.T) {
	c := newTestOpenWeather(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"main":{},"wind":{}}`))
	})

	got, err := c.Current(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Zero(t, got.TemperatureC)
	assert.Zero(t, got.HumidityPct)
	assert.Zero(t, got.WindSpeedMps)
	assert.Empty(t, got.Condition)
	assert.True(t, got.ObservedAt.IsZero())
}

func TestOpenWeather_Forecast(t *testing.T) {
	c := newTestOpenWeather(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/2.5/forecast", r.URL.Path)
		w.Write([]byte(`{"list":[
			{"dt":1700000000,"main":{"temp":10.5,"humidity":70}},
			{"dt":1700010800,"main":{"temp":9.0,"humidity":74}}
		]}`))
	})

	got, err := c.Forecast(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 10.5, got[0].TemperatureC)
	assert.Equal(t, 74.0, got[1].HumidityPct)
	assert.Equal(t, 3*time.Hour, got[1].Timestamp.Sub(got[0].Timestamp))
}

func TestOpenWeather_AirQuality(t *testing.T) {
	c := newTestOpenWeather(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/2.5/air_pollution", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("units"))
		w.Write([]byte(`{"list":[{"dt":1700000000,"main":{"aqi":4},"components":{"pm2_5":41.2,"o3":88}}]}`))
	})

	got, err := c.AirQuality(context.Background(), 28.6, 77.2)
	require.NoError(t, err)
	assert.Equal(t, 4, got.AQI)
	assert.Equal(t, 41.2, got.Components["pm2_5"])
}

func TestOpenWeather_AirQualityEmptyList(t *testing.T) {
	c := newTestOpenWeather(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"list":[]}`))
	})

	got, err := c.AirQuality(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Zero(t, got.AQI)
}

func TestOpenWeather_Geocode(t *testing.T) {
	c := newTestOpenWeather(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/geo/1.0/direct", r.URL.Path)
		assert.Equal(t, "Paris", r.URL.Query().Get("q"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		w.Write([]byte(`[{"name":"Paris","lat":48.8589,"lon":2.32,"country":"FR","state":"Ile-de-France"}]`))
	})

	got, err := c.Geocode(context.Background(), "Paris")
	require.NoError(t, err)
	assert.Equal(t, types.Location{Name: "Paris", Country: "FR", Lat: 48.8589, Lon: 2.32}, *got)
}

func TestOpenWeather_GeocodeNoMatch(t *testing.T) {
	c := newTestOpenWeather(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	_, err := c.Geocode(context.Background(), "Atlantis")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundLocation, appErr.Code)
	assert.Equal(t, "Atlantis", appErr.Details["city"])
}

func TestOpenWeather_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		code    types.ErrorCode
		message string
	}{
		{"invalid key", http.StatusUnauthorized, `{"cod":401,"message":"Invalid API key."}`, types.ErrCodeUpstreamWeather, "Invalid API key."},
		{"bad request no body", http.StatusBadRequest, ``, types.ErrCodeUpstreamWeather, "weather provider returned HTTP 400"},
		{"server error", http.StatusInternalServerError, `{"message":"internal"}`, types.ErrCodeUpstreamWeather, "internal"},
		{"rate limited", http.StatusTooManyRequests, ``, types.ErrCodeUpstreamRateLimited, "openweathermap rate limit exceeded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestOpenWeather(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.Current(context.Background(), 0, 0)

			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.message, appErr.Message)
		})
	}
}

func TestOpenWeather_MalformedJSON(t *testing.T) {
	c := newTestOpenWeather(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	})

	_, err := c.Forecast(context.Background(), 0, 0)
	assert.Equal(t, types.ErrCodeUpstreamWeather, types.ErrorCodeOf(err))
}

func TestOpenWeather_IsConfigured(t *testing.T) {
	assert.True(t, NewOpenWeatherClient(nil, OpenWeatherConfig{APIKey: "k"}).IsConfigured())
	assert.False(t, NewOpenWeatherClient(nil, OpenWeatherConfig{}).IsConfigured())
}
