package subscriptions

import (
	"context"
	"time"

	"breathewatch/internal/notifications/email"
	"breathewatch/internal/types"
)

// Skip reasons reported by CheckAutoNotify.
const (
	SkipInvalidEmail     = "invalid email address"
	SkipBelowThreshold   = "risk level below reportable threshold"
	SkipNotSubscribed    = "not subscribed"
	SkipAutoNotifyOff    = "auto-notify disabled"
	SkipCooldown         = "cooldown active"
	SkipStoreUnavailable = "subscription store unavailable"
)

// CheckAutoNotify sends an alert on behalf of a subscriber who opted into
// automatic alerts. It runs within the caller's request; there is no
// background scan. A send happens only when the address is subscribed with
// auto-notify on, the level is High or Extreme, and the cooldown since the
// last alert has elapsed.
func (c *Coordinator) CheckAutoNotify(ctx context.Context, addr string, assessment types.RiskAssessment, locationName string) types.AutoNotifyResult {
	normalized := types.NormalizeEmail(addr)
	if !types.IsValidEmail(normalized) {
		return c.skip(ctx, SkipInvalidEmail)
	}
	if !assessment.Level.IsReportable() {
		return c.skip(ctx, SkipBelowThreshold)
	}
	log := c.logger.With("dest", email.RedactEmail(normalized), "source", string(SourceAuto))

	rec, err := c.store.Get(ctx, normalized)
	if err != nil {
		if types.ErrorCodeOf(err) == types.ErrCodeNotFoundSubscription {
			return c.skip(ctx, SkipNotSubscribed)
		}
		log.WarnContext(ctx, "subscription lookup failed, skipping auto-notify", "error", err)
		return c.skip(ctx, SkipStoreUnavailable)
	}
	if !rec.AutoNotify {
		return c.skip(ctx, SkipAutoNotifyOff)
	}

	now := c.now()
	if !cooldownElapsed(rec.LastNotifiedAt, now, c.cooldown) {
		return c.skip(ctx, SkipCooldown)
	}

	res, err := c.dispatcher.Deliver(ctx, normalized, email.Alert{
		LocationName: locationName,
		Assessment:   assessment,
	})
	if err != nil {
		kind, reason := email.Classify(err)
		outcome := OutcomeFailed
		if kind == types.FailurePolicyRestriction {
			outcome = OutcomePolicyRestricted
		}
		c.metrics.RecordDispatch(ctx, SourceAuto, outcome)
		return types.AutoNotifyResult{Status: types.AutoNotifyFailed, Reason: reason}
	}

	c.markNotified(ctx, log, normalized)

	status, outcome := types.AutoNotifySent, OutcomeSent
	if res.Simulated {
		status, outcome = types.AutoNotifySimulated, OutcomeSimulated
	}
	c.metrics.RecordDispatch(ctx, SourceAuto, outcome)
	log.InfoContext(ctx, "auto-notify dispatched", "level", string(assessment.Level), "status", string(status))

	return types.AutoNotifyResult{Status: status, ProviderMessageID: res.ProviderMessageID}
}

func (c *Coordinator) skip(ctx context.Context, reason string) types.AutoNotifyResult {
	c.metrics.RecordDispatch(ctx, SourceAuto, OutcomeAutoNotifySkipped)
	return types.AutoNotifyResult{Status: types.AutoNotifySkipped, Reason: reason}
}

func cooldownElapsed(last *time.Time, now time.Time, cooldown time.Duration) bool {
	if last == nil {
		return true
	}
	return now.Sub(*last) >= cooldown
}
