package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breathewatch/internal/conditions"
	"breathewatch/internal/core"
	"breathewatch/internal/types"
)

type fakeConditions struct {
	report *conditions.Report
	err    error
	got    []conditions.Query
}

func (f *fakeConditions) GetReport(_ context.Context, q conditions.Query) (*conditions.Report, error) {
	f.got = append(f.got, q)
	return f.report, f.err
}

type autoNotifyCall struct {
	addr         string
	level        types.RiskLevel
	locationName string
}

type fakeAutoNotifier struct {
	result types.AutoNotifyResult
	calls  []autoNotifyCall
}

func (f *fakeAutoNotifier) CheckAutoNotify(_ context.Context, addr string, a types.RiskAssessment, locationName string) types.AutoNotifyResult {
	f.calls = append(f.calls, autoNotifyCall{addr, a.Level, locationName})
	return f.result
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleReport() *conditions.Report {
	return &conditions.Report{
		Location: types.Location{Name: "Oslo", Country: "NO", Lat: 59.91, Lon: 10.75},
		Current:  types.CurrentConditions{TemperatureC: -12, HumidityPct: 80, WindSpeedMps: 3},
		Snapshot: types.EnvironmentalSnapshot{TemperatureC: -12, HumidityPct: 80, WindSpeedMps: 3, AirQualityIndex: 2},
		Assessment: types.RiskAssessment{
			Level:    types.RiskHigh,
			Score:    5,
			Triggers: []string{"Cold Air"},
			Advice:   []string{"Cover your nose and mouth outdoors."},
		},
		Severity:        types.SeverityCategory{Category: "high", Color: "#e67e22", Label: "High Risk"},
		AirQualityLabel: "Fair",
		GeneratedAt:     time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}
}

func conditionsRouter(h *ConditionsHandler) http.Handler {
	r := chi.NewRouter()
	r.Route("/v1", h.RegisterRoutes)
	return r
}

func doGet(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp core.APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), "body: %s", rec.Body.String())
	return resp.Error.Code
}

func TestHandleGetConditions_Coordinates(t *testing.T) {
	svc := &fakeConditions{report: sampleReport()}
	notifier := &fakeAutoNotifier{}
	router := conditionsRouter(NewConditionsHandler(svc, notifier, quietLogger()))

	rec := doGet(t, router, "/v1/conditions?lat=59.91&lon=10.75")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.got, 1)
	require.NotNil(t, svc.got[0].Lat)
	require.NotNil(t, svc.got[0].Lon)
	assert.Equal(t, 59.91, *svc.got[0].Lat)
	assert.Equal(t, 10.75, *svc.got[0].Lon)
	assert.Empty(t, notifier.calls, "no email, no auto-notify")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "location")
	assert.Contains(t, body, "assessment")
	assert.NotContains(t, body, "auto_notify")
}

func TestHandleGetConditions_City(t *testing.T) {
	svc := &fakeConditions{report: sampleReport()}
	router := conditionsRouter(NewConditionsHandler(svc, nil, nil))

	rec := doGet(t, router, "/v1/conditions?city=Oslo")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.got, 1)
	assert.Equal(t, "Oslo", svc.got[0].City)
	assert.Nil(t, svc.got[0].Lat)
}

func TestHandleGetConditions_WithEmailRunsAutoNotify(t *testing.T) {
	svc := &fakeConditions{report: sampleReport()}
	notifier := &fakeAutoNotifier{result: types.AutoNotifyResult{Status: types.AutoNotifySimulated, ProviderMessageID: "sim-1"}}
	router := conditionsRouter(NewConditionsHandler(svc, notifier, quietLogger()))

	rec := doGet(t, router, "/v1/conditions?city=Oslo&email=jane%40example.com")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, autoNotifyCall{"jane@example.com", types.RiskHigh, "Oslo"}, notifier.calls[0])

	var resp struct {
		AutoNotify *types.AutoNotifyResult `json:"auto_notify"`
		Assessment types.RiskAssessment    `json:"assessment"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.AutoNotify)
	assert.Equal(t, types.AutoNotifySimulated, resp.AutoNotify.Status)
	assert.Equal(t, "sim-1", resp.AutoNotify.ProviderMessageID)
	assert.Equal(t, types.RiskHigh, resp.Assessment.Level)
}

func TestHandleGetConditions_AutoNotifySkipStillOK(t *testing.T) {
	svc := &fakeConditions{report: sampleReport()}
	notifier := &fakeAutoNotifier{result: types.AutoNotifyResult{Status: types.AutoNotifyFailed, Reason: "provider down"}}
	router := conditionsRouter(NewConditionsHandler(svc, notifier, quietLogger()))

	rec := doGet(t, router, "/v1/conditions?lat=1&lon=2&email=jane@example.com")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"failed"`)
}

func TestHandleGetConditions_BadNumbers(t *testing.T) {
	svc := &fakeConditions{report: sampleReport()}
	router := conditionsRouter(NewConditionsHandler(svc, nil, quietLogger()))

	tests := []struct {
		name   string
		target string
		code   types.ErrorCode
	}{
		{"lat not a number", "/v1/conditions?lat=north&lon=10", types.ErrCodeValidationInvalidLat},
		{"lon not a number", "/v1/conditions?lat=10&lon=east", types.ErrCodeValidationInvalidLon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doGet(t, router, tt.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(tt.code), errorCode(t, rec))
		})
	}
	assert.Empty(t, svc.got, "service not called for unparsable input")
}

func TestHandleGetConditions_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"missing location", types.NewAppError(types.ErrCodeValidationMissingField, "either lat and lon or city is required", nil), http.StatusBadRequest},
		{"lat out of range", types.NewAppError(types.ErrCodeValidationInvalidLat, "latitude must be between -90 and 90", nil), http.StatusBadRequest},
		{"unknown city", types.NewAppError(types.ErrCodeNotFoundLocation, "city not found", nil), http.StatusNotFound},
		{"weather down", types.NewAppError(types.ErrCodeUpstreamWeather, "Invalid API key", nil), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &fakeAutoNotifier{}
			router := conditionsRouter(NewConditionsHandler(&fakeConditions{err: tt.err}, notifier, quietLogger()))

			rec := doGet(t, router, "/v1/conditions?city=x&email=jane@example.com")

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, string(types.ErrorCodeOf(tt.err)), errorCode(t, rec))
			assert.Empty(t, notifier.calls)
		})
	}
}
