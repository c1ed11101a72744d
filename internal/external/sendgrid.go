package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"breathewatch/internal/types"
)

const sendGridAPIBase = "https://api.sendgrid.com"

// SendGridClientConfig holds the configuration for creating a SendGridClient.
type SendGridClientConfig struct {
	APIKey  string
	BaseURL string // defaults to sendGridAPIBase
	// MaxRetries applies to 429 and 5xx answers. Mail send is not
	// idempotent, so anything above zero risks duplicate alerts.
	MaxRetries int
	Logger     *slog.Logger
}

// SendGridClient implements EmailProvider with direct calls to the v3 Mail
// Send API through BaseClient.
type SendGridClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewSendGridClient creates a SendGridClient.
func NewSendGridClient(httpClient *http.Client, cfg SendGridClientConfig, opts ...BaseClientOption) *SendGridClient {
	policy := NoRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries

	base := NewBaseClient(httpClient, BaseClientConfig{
		Name:          "sendgrid",
		UserAgent:     "BreatheWatch/1.0",
		Retry:         policy,
		TransportCode: types.ErrCodeUpstreamEmailProvider,
	}, opts...)
	return NewSendGridClientWithBase(base, cfg)
}

// NewSendGridClientWithBase creates a SendGridClient around an existing
// BaseClient.
func NewSendGridClientWithBase(base *BaseClient, cfg SendGridClientConfig) *SendGridClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SendGridClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

func (s *SendGridClient) Name() string       { return "sendgrid" }
func (s *SendGridClient) IsConfigured() bool { return s.apiKey != "" }

// Send posts the message to /v3/mail/send and returns the X-Message-Id
// header on 202 Accepted.
//
// Error mapping:
//   - 403 -> ErrCodeEmailPolicyRestricted (unverified sender identity or
//     restricted account)
//   - 429 -> ErrCodeUpstreamRateLimited (via BaseClient)
//   - 5xx -> ErrCodeUpstreamEmailProvider (via BaseClient)
//   - other 4xx -> ErrCodeUpstreamEmailProvider with SendGrid's message
func (s *SendGridClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	body, err := json.Marshal(buildSendGridPayload(input))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal SendGrid payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create SendGrid request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return resp.Header.Get("X-Message-Id"), nil
	}

	msg := readUpstreamMessage(resp)
	return "", mapSendGridStatus(resp.StatusCode, msg)
}

// ---------------------------------------------------------------------------
// Payload
// ---------------------------------------------------------------------------

type sendGridPayload struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	CustomArgs       map[string]string         `json:"custom_args,omitempty"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// buildSendGridPayload maps SendInput onto the v3 payload. SendGrid requires
// text/plain to precede text/html when both are present.
func buildSendGridPayload(input types.SendInput) sendGridPayload {
	p := sendGridPayload{
		Personalizations: []sendGridPersonalization{{To: []sendGridAddress{{Email: input.To}}}},
		From:             sendGridAddress{Email: input.From.Address, Name: input.From.Name},
		Subject:          input.Subject,
	}
	if input.BodyText != "" {
		p.Content = append(p.Content, sendGridContent{Type: "text/plain", Value: input.BodyText})
	}
	if input.BodyHTML != "" {
		p.Content = append(p.Content, sendGridContent{Type: "text/html", Value: input.BodyHTML})
	}
	if input.ReferenceID != "" {
		p.CustomArgs = map[string]string{"reference_id": input.ReferenceID}
	}
	return p
}

func mapSendGridStatus(status int, message string) error {
	if message == "" {
		message = fmt.Sprintf("SendGrid returned HTTP %d", status)
	}
	details := map[string]any{"upstream_status": status}

	switch status {
	case http.StatusForbidden:
		return types.NewAppErrorWithDetails(types.ErrCodeEmailPolicyRestricted, message, nil, details)
	case http.StatusUnauthorized:
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamEmailProvider,
			"SendGrid rejected the API key: "+message, nil, details)
	default:
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamEmailProvider, message, nil, details)
	}
}

var _ EmailProvider = (*SendGridClient)(nil)
