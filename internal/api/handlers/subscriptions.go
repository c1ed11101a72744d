package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"breathewatch/internal/core"
	"breathewatch/internal/subscriptions"
	"breathewatch/internal/types"
)

// Coordinator is the subscription and notification surface used by the
// handlers. *subscriptions.Coordinator satisfies it.
type Coordinator interface {
	GetStatus(ctx context.Context, addr string) types.SubscriptionStatus
	RequestNotification(ctx context.Context, req subscriptions.NotifyRequest) types.NotifyResult
	Unsubscribe(ctx context.Context, addr string) types.UnsubscribeResult
}

// NotifyRequest is the body of POST /v1/notifications. The assessment fields
// echo what the client was shown in the conditions report.
type NotifyRequest struct {
	Email            string   `json:"email" validate:"notifyemail"`
	LocationName     string   `json:"location_name" validate:"required,max=200"`
	Level            string   `json:"level" validate:"required,risklevel"`
	Score            int      `json:"score" validate:"gte=0,lte=1000"`
	Triggers         []string `json:"triggers" validate:"max=16,dive,max=200"`
	Advice           []string `json:"advice" validate:"max=16,dive,max=500"`
	SaveSubscription bool     `json:"save_subscription"`
	AutoNotify       bool     `json:"auto_notify"`
}

// UnsubscribeRequest is the body of POST /v1/subscriptions/unsubscribe.
type UnsubscribeRequest struct {
	Email string `json:"email"`
}

// SubscriptionHandler serves the subscription and notification endpoints.
type SubscriptionHandler struct {
	coordinator Coordinator
	validator   *core.Validator
	logger      *slog.Logger
}

// NewSubscriptionHandler creates a SubscriptionHandler.
func NewSubscriptionHandler(c Coordinator, val *core.Validator, logger *slog.Logger) *SubscriptionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if val == nil {
		val = core.NewValidator(logger)
	}
	return &SubscriptionHandler{coordinator: c, validator: val, logger: logger}
}

// RegisterRoutes mounts the handler on the /v1 router.
func (h *SubscriptionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/notifications", h.HandleNotify)
	r.Get("/subscriptions/status", h.HandleStatus)
	r.Post("/subscriptions/unsubscribe", h.HandleUnsubscribe)
	r.Delete("/subscriptions", h.HandleUnsubscribe)
}

// HandleStatus handles GET /v1/subscriptions/status?email=. Lookup problems
// never surface as errors; a store outage is reported via "degraded".
func (h *SubscriptionHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := h.coordinator.GetStatus(r.Context(), r.URL.Query().Get("email"))
	core.JSON(w, r, http.StatusOK, status)
}

// HandleNotify handles POST /v1/notifications.
//
//	sent, simulated   200 with the NotifyResult
//	invalid_email     400 validation_invalid_email
//	policy restricted 403 email_policy_restricted
//	other failures    502 upstream_email_provider_unavailable
func (h *SubscriptionHandler) HandleNotify(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result := h.coordinator.RequestNotification(r.Context(), subscriptions.NotifyRequest{
		Email:        req.Email,
		LocationName: req.LocationName,
		Assessment: types.RiskAssessment{
			Level:    types.RiskLevel(req.Level),
			Score:    req.Score,
			Triggers: req.Triggers,
			Advice:   req.Advice,
		},
		SaveSubscription: req.SaveSubscription,
		AutoNotify:       req.AutoNotify,
	})

	switch result.Status {
	case types.NotifySent, types.NotifySimulated:
		core.JSON(w, r, http.StatusOK, result)
	case types.NotifyInvalidEmail:
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidEmail, result.Reason, nil))
	default:
		code := types.ErrCodeUpstreamEmailProvider
		if result.FailureKind == types.FailurePolicyRestriction {
			code = types.ErrCodeEmailPolicyRestricted
		}
		core.Error(w, r, types.NewAppErrorWithDetails(code, result.Reason, nil, map[string]any{
			"status":             string(result.Status),
			"failure_kind":       string(result.FailureKind),
			"subscription_saved": result.SubscriptionSaved,
		}))
	}
}

// HandleUnsubscribe handles POST /v1/subscriptions/unsubscribe with a JSON
// body and DELETE /v1/subscriptions?email=. Invalid addresses are a 200
// "ignored"; only a store failure is an error.
func (h *SubscriptionHandler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Query().Get("email")
	if r.Method == http.MethodPost {
		var req UnsubscribeRequest
		if err := core.DecodeJSON(w, r, &req); err != nil {
			core.Error(w, r, err)
			return
		}
		addr = req.Email
	}

	result := h.coordinator.Unsubscribe(r.Context(), addr)
	if result.Status == types.UnsubscribeFailed {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeInternalDB, result.Reason, nil,
			map[string]any{"status": string(result.Status)}))
		return
	}
	core.JSON(w, r, http.StatusOK, result)
}
