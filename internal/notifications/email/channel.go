package email

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"breathewatch/internal/external"
	"breathewatch/internal/types"
)

// DeliveryResult is the outcome of a successful (or simulated) dispatch.
type DeliveryResult struct {
	ProviderMessageID string
	Simulated         bool
}

// Channel renders alerts and delivers them through an EmailProvider. When the
// provider reports itself unconfigured the send is still routed through it
// (stub providers only log) and the result is flagged Simulated.
type Channel struct {
	provider external.EmailProvider
	renderer *Renderer
	logger   *slog.Logger
}

// ChannelConfig holds the dependencies needed to create a Channel.
type ChannelConfig struct {
	Provider external.EmailProvider
	Renderer *Renderer
	Logger   *slog.Logger
}

// NewChannel creates a Channel with the given dependencies.
func NewChannel(cfg ChannelConfig) *Channel {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		provider: cfg.Provider,
		renderer: cfg.Renderer,
		logger:   logger,
	}
}

// IsConfigured reports whether messages will actually leave the process.
func (c *Channel) IsConfigured() bool {
	return c.provider != nil && c.provider.IsConfigured()
}

// Deliver renders the alert and sends it to the recipient. Provider errors
// are returned unchanged so callers can classify them with Classify.
func (c *Channel) Deliver(ctx context.Context, to string, alert Alert) (*DeliveryResult, error) {
	referenceID := uuid.NewString()
	log := c.logger.With("dest", RedactEmail(to), "reference_id", referenceID)

	rendered, sender, err := c.renderer.Render(alert)
	if err != nil {
		log.Error("template rendering failed", "error", err)
		return nil, err
	}

	if !c.IsConfigured() {
		msgID := "simulated-" + referenceID
		if c.provider != nil {
			if id, sendErr := c.provider.Send(ctx, c.sendInput(to, sender, rendered, referenceID)); sendErr == nil && id != "" {
				msgID = id
			}
		}
		log.Info("email provider not configured, simulating delivery",
			"level", string(alert.Assessment.Level),
			"provider_message_id", msgID,
		)
		return &DeliveryResult{ProviderMessageID: msgID, Simulated: true}, nil
	}

	log.Info("attempting email delivery", "level", string(alert.Assessment.Level))

	msgID, err := c.provider.Send(ctx, c.sendInput(to, sender, rendered, referenceID))
	if err != nil {
		if IsPolicyRestriction(err) {
			log.Warn("email rejected by provider policy", "error", err)
		} else {
			log.Error("email delivery failed", "error", err)
		}
		return nil, err
	}

	log.Info("email delivered", "provider_message_id", msgID)
	return &DeliveryResult{ProviderMessageID: msgID}, nil
}

func (c *Channel) sendInput(to string, sender types.SenderIdentity, rendered *RenderedEmail, referenceID string) types.SendInput {
	return types.SendInput{
		To:          to,
		From:        sender,
		Subject:     rendered.Subject,
		BodyHTML:    rendered.BodyHTML,
		BodyText:    rendered.BodyText,
		ReferenceID: referenceID,
	}
}
