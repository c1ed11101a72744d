// Package handlers contains the HTTP handlers for the BreatheWatch API:
//   - GET    /v1/conditions               conditions report, optional auto-notify
//   - GET    /v1/subscriptions/status     subscription lookup
//   - POST   /v1/notifications            user-initiated alert
//   - POST   /v1/subscriptions/unsubscribe
//   - DELETE /v1/subscriptions
//
// Handlers depend on small locally defined interfaces so tests can substitute
// the services.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"breathewatch/internal/conditions"
	"breathewatch/internal/core"
	"breathewatch/internal/types"
)

// ConditionsService builds a conditions report for a location.
type ConditionsService interface {
	GetReport(ctx context.Context, q conditions.Query) (*conditions.Report, error)
}

// AutoNotifier sends an alert to an opted-in subscriber when the assessment
// warrants one.
type AutoNotifier interface {
	CheckAutoNotify(ctx context.Context, addr string, assessment types.RiskAssessment, locationName string) types.AutoNotifyResult
}

// ConditionsResponse is the report plus the outcome of the auto-notify check
// when an email was supplied.
type ConditionsResponse struct {
	*conditions.Report
	AutoNotify *types.AutoNotifyResult `json:"auto_notify,omitempty"`
}

// ConditionsHandler serves GET /v1/conditions.
type ConditionsHandler struct {
	service  ConditionsService
	notifier AutoNotifier
	logger   *slog.Logger
}

// NewConditionsHandler creates a ConditionsHandler. notifier may be nil, in
// which case the email parameter is ignored.
func NewConditionsHandler(svc ConditionsService, notifier AutoNotifier, logger *slog.Logger) *ConditionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConditionsHandler{service: svc, notifier: notifier, logger: logger}
}

// RegisterRoutes mounts the handler on the /v1 router.
func (h *ConditionsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/conditions", h.HandleGetConditions)
}

// HandleGetConditions handles GET /v1/conditions?lat=&lon= or ?city=.
// An optional email triggers the same-request auto-notify check; its outcome
// never changes the response status.
func (h *ConditionsHandler) HandleGetConditions(w http.ResponseWriter, r *http.Request) {
	q, err := parseConditionsQuery(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	report, err := h.service.GetReport(r.Context(), q)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := ConditionsResponse{Report: report}
	if addr := strings.TrimSpace(r.URL.Query().Get("email")); addr != "" && h.notifier != nil {
		result := h.notifier.CheckAutoNotify(r.Context(), addr, report.Assessment, report.Location.Name)
		resp.AutoNotify = &result
	}

	core.JSON(w, r, http.StatusOK, resp)
}

// parseConditionsQuery reads lat, lon and city. Range checks are left to the
// service; only unparsable numbers are rejected here.
func parseConditionsQuery(r *http.Request) (conditions.Query, error) {
	params := r.URL.Query()
	q := conditions.Query{City: params.Get("city")}

	if s := strings.TrimSpace(params.Get("lat")); s != "" {
		lat, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return q, types.NewAppError(types.ErrCodeValidationInvalidLat, "lat must be a valid number", nil)
		}
		q.Lat = &lat
	}
	if s := strings.TrimSpace(params.Get("lon")); s != "" {
		lon, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return q, types.NewAppError(types.ErrCodeValidationInvalidLon, "lon must be a valid number", nil)
		}
		q.Lon = &lon
	}
	return q, nil
}
