// Package subscriptions owns per-email subscription state and decides when an
// alert is dispatched. Every operation returns a discriminated result instead
// of an error: store failures degrade reads and are logged on writes, and
// dispatch failures are reported as a Failed result.
package subscriptions

import (
	"context"
	"log/slog"
	"time"

	"breathewatch/internal/notifications/email"
	"breathewatch/internal/types"
)

// Dispatcher renders and sends one alert. *email.Channel implements it.
type Dispatcher interface {
	Deliver(ctx context.Context, to string, alert email.Alert) (*email.DeliveryResult, error)
}

// Config holds the Coordinator's collaborators.
type Config struct {
	Store      types.SubscriptionStore
	Dispatcher Dispatcher
	Metrics    DispatchMetrics
	Logger     *slog.Logger
	// AutoNotifyCooldown is the minimum gap between automatic alerts to the
	// same address.
	AutoNotifyCooldown time.Duration
	Now                func() time.Time
}

// Coordinator is the sole writer of subscription records.
type Coordinator struct {
	store      types.SubscriptionStore
	dispatcher Dispatcher
	metrics    DispatchMetrics
	logger     *slog.Logger
	cooldown   time.Duration
	now        func() time.Time
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		cooldown:   cfg.AutoNotifyCooldown,
		now:        cfg.Now,
	}
	if c.metrics == nil {
		c.metrics = NoopDispatchMetrics{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// NotifyRequest describes a user-initiated alert.
type NotifyRequest struct {
	Email            string
	LocationName     string
	Assessment       types.RiskAssessment
	SaveSubscription bool
	AutoNotify       bool
}

// GetStatus reports whether email is subscribed. An absent record or an
// invalid address is "not subscribed". A store failure also reads as not
// subscribed but sets Degraded.
func (c *Coordinator) GetStatus(ctx context.Context, addr string) types.SubscriptionStatus {
	normalized := types.NormalizeEmail(addr)
	if !types.IsValidEmail(normalized) {
		return types.SubscriptionStatus{}
	}

	rec, err := c.store.Get(ctx, normalized)
	if err != nil {
		if types.ErrorCodeOf(err) == types.ErrCodeNotFoundSubscription {
			return types.SubscriptionStatus{}
		}
		c.logger.WarnContext(ctx, "subscription lookup failed, reporting not subscribed",
			"dest", email.RedactEmail(normalized), "error", err)
		return types.SubscriptionStatus{Degraded: true}
	}
	return types.SubscriptionStatus{Subscribed: true, AutoNotify: rec.AutoNotify}
}

// RequestNotification validates the address, optionally saves the
// subscription, and attempts exactly one dispatch. The level is not gated
// here: callers decide whether a Low assessment is worth sending.
//
// Saving is best effort. A failed upsert is logged, SubscriptionSaved is
// false, and the send still happens.
func (c *Coordinator) RequestNotification(ctx context.Context, req NotifyRequest) types.NotifyResult {
	normalized := types.NormalizeEmail(req.Email)
	if !types.IsValidEmail(normalized) {
		c.metrics.RecordDispatch(ctx, SourceManual, OutcomeInvalidEmail)
		return types.NotifyResult{
			Status: types.NotifyInvalidEmail,
			Reason: "Please enter a valid email address.",
		}
	}
	log := c.logger.With("dest", email.RedactEmail(normalized))

	saved := false
	if req.SaveSubscription {
		if err := c.store.Upsert(ctx, normalized, req.AutoNotify, c.now()); err != nil {
			log.WarnContext(ctx, "failed to save subscription, sending anyway", "error", err)
		} else {
			saved = true
		}
	}

	res, err := c.dispatcher.Deliver(ctx, normalized, email.Alert{
		LocationName: req.LocationName,
		Assessment:   req.Assessment,
	})
	if err != nil {
		kind, reason := email.Classify(err)
		outcome := OutcomeFailed
		if kind == types.FailurePolicyRestriction {
			outcome = OutcomePolicyRestricted
		}
		c.metrics.RecordDispatch(ctx, SourceManual, outcome)
		return types.NotifyResult{
			Status:            types.NotifyFailed,
			FailureKind:       kind,
			Reason:            reason,
			SubscriptionSaved: saved,
		}
	}

	if saved {
		c.markNotified(ctx, log, normalized)
	}

	status, outcome := types.NotifySent, OutcomeSent
	if res.Simulated {
		status, outcome = types.NotifySimulated, OutcomeSimulated
	}
	c.metrics.RecordDispatch(ctx, SourceManual, outcome)

	return types.NotifyResult{
		Status:            status,
		ProviderMessageID: res.ProviderMessageID,
		SubscriptionSaved: saved,
	}
}

// Unsubscribe deletes the record for email. Invalid addresses are ignored
// without touching the store; deleting a missing record succeeds.
func (c *Coordinator) Unsubscribe(ctx context.Context, addr string) types.UnsubscribeResult {
	normalized := types.NormalizeEmail(addr)
	if !types.IsValidEmail(normalized) {
		return types.UnsubscribeResult{Status: types.UnsubscribeIgnored, Reason: "invalid email address"}
	}

	if err := c.store.Delete(ctx, normalized); err != nil {
		c.logger.ErrorContext(ctx, "failed to delete subscription",
			"dest", email.RedactEmail(normalized), "error", err)
		return types.UnsubscribeResult{Status: types.UnsubscribeFailed, Reason: "subscription store unavailable"}
	}

	c.logger.InfoContext(ctx, "subscription removed", "dest", email.RedactEmail(normalized))
	return types.UnsubscribeResult{Status: types.UnsubscribeRemoved}
}

func (c *Coordinator) markNotified(ctx context.Context, log *slog.Logger, addr string) {
	if err := c.store.MarkNotified(ctx, addr, c.now()); err != nil {
		log.WarnContext(ctx, "failed to record notification time", "error", err)
	}
}
