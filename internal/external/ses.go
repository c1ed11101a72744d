package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"breathewatch/internal/types"
)

// SESAPI is the subset of the SES v2 client used by SESClient.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESClientConfig holds the configuration for creating an SESClient.
type SESClientConfig struct {
	// ConfigSetName is the optional SES configuration set for event tracking.
	ConfigSetName string
	Logger        *slog.Logger
}

// SESClient implements EmailProvider using AWS SES v2. Credentials come from
// the default AWS chain, so the client is always considered configured; the
// SDK applies its own retries.
type SESClient struct {
	api           SESAPI
	configSetName string
	logger        *slog.Logger
}

// NewSESClient creates an SESClient from an AWS config.
func NewSESClient(awsCfg aws.Config, cfg SESClientConfig) *SESClient {
	return NewSESClientWithAPI(sesv2.NewFromConfig(awsCfg), cfg)
}

// NewSESClientWithAPI creates an SESClient around an existing SESAPI.
func NewSESClientWithAPI(api SESAPI, cfg SESClientConfig) *SESClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SESClient{api: api, configSetName: cfg.ConfigSetName, logger: logger}
}

func (s *SESClient) Name() string       { return "ses" }
func (s *SESClient) IsConfigured() bool { return s.api != nil }

// Send transmits simple (non-templated) content.
//
// Error mapping:
//   - MessageRejected for an unverified address (sandbox) and
//     MailFromDomainNotVerified -> ErrCodeEmailPolicyRestricted
//   - AccountSuspended, SendingPaused -> ErrCodeUpstreamUnavailable
//   - TooManyRequests, LimitExceeded -> ErrCodeUpstreamRateLimited
//   - everything else -> ErrCodeUpstreamEmailProvider
func (s *SESClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	from := input.From.Address
	if input.From.Name != "" {
		from = fmt.Sprintf("%s <%s>", input.From.Name, input.From.Address)
	}

	body := &sestypes.Body{}
	if input.BodyHTML != "" {
		body.Html = utf8Content(input.BodyHTML)
	}
	if input.BodyText != "" {
		body.Text = utf8Content(input.BodyText)
	}

	params := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &sestypes.Destination{ToAddresses: []string{input.To}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: utf8Content(input.Subject),
				Body:    body,
			},
		},
	}
	if s.configSetName != "" {
		params.ConfigurationSetName = aws.String(s.configSetName)
	}
	if input.ReferenceID != "" {
		params.EmailTags = []sestypes.MessageTag{{
			Name:  aws.String("ReferenceID"),
			Value: aws.String(input.ReferenceID),
		}}
	}

	out, err := s.api.SendEmail(ctx, params)
	if err != nil {
		return "", mapSESError(err)
	}
	return aws.ToString(out.MessageId), nil
}

func utf8Content(data string) *sestypes.Content {
	return &sestypes.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}

func mapSESError(err error) error {
	var (
		rejected      *sestypes.MessageRejected
		fromDomain    *sestypes.MailFromDomainNotVerifiedException
		suspended     *sestypes.AccountSuspendedException
		paused        *sestypes.SendingPausedException
		tooMany       *sestypes.TooManyRequestsException
		limitExceeded *sestypes.LimitExceededException
	)

	switch {
	case errors.As(err, &rejected):
		msg := aws.ToString(rejected.Message)
		if isSandboxRejection(msg) {
			return types.NewAppError(types.ErrCodeEmailPolicyRestricted, msg, err)
		}
		return types.NewAppError(types.ErrCodeUpstreamEmailProvider, "SES rejected message: "+msg, err)
	case errors.As(err, &fromDomain):
		return types.NewAppError(types.ErrCodeEmailPolicyRestricted, aws.ToString(fromDomain.Message), err)
	case errors.As(err, &suspended), errors.As(err, &paused):
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, fmt.Sprintf("SES sending disabled: %v", err), err)
	case errors.As(err, &tooMany), errors.As(err, &limitExceeded):
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, fmt.Sprintf("SES rate limit exceeded: %v", err), err)
	default:
		return types.NewAppError(types.ErrCodeUpstreamEmailProvider, fmt.Sprintf("SES error: %v", err), err)
	}
}

// isSandboxRejection recognizes SES sandbox refusals, which read
// "Email address is not verified. The following identities failed the check...".
func isSandboxRejection(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "not verified") || strings.Contains(m, "sandbox")
}

var _ EmailProvider = (*SESClient)(nil)
