// Package email formats respiratory-risk alerts and hands them to an
// EmailProvider. It also classifies provider failures into the outcomes the
// subscription coordinator reports to callers.
package email

import (
	"errors"

	"breathewatch/internal/types"
)

// ErrPolicyRestricted indicates the provider refused the message because of an
// account-level restriction, such as a sandbox that only delivers to verified
// recipients or an unverified sender identity.
var ErrPolicyRestricted = errors.New("message rejected by provider policy")

// PolicyRestrictionMessage is the user-actionable explanation returned for
// policy restrictions.
const PolicyRestrictionMessage = "The email service can currently only deliver to verified addresses. " +
	"Verify this recipient with the provider or contact the site administrator."

const genericFailureMessage = "Failed to send email notification"

// IsPolicyRestriction reports whether err indicates a provider policy
// restriction. Both the sentinel and the AppError code are recognized.
func IsPolicyRestriction(err error) bool {
	if errors.Is(err, ErrPolicyRestricted) {
		return true
	}
	return types.ErrorCodeOf(err) == types.ErrCodeEmailPolicyRestricted
}

// Classify maps a dispatch error to a failure kind and a caller-facing reason.
// The provider's own message is used when one is available.
func Classify(err error) (types.FailureKind, string) {
	if err == nil {
		return "", ""
	}
	if IsPolicyRestriction(err) {
		return types.FailurePolicyRestriction, PolicyRestrictionMessage
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return types.FailureUpstream, appErr.Message
	}
	if msg := err.Error(); msg != "" {
		return types.FailureUpstream, msg
	}
	return types.FailureUpstream, genericFailureMessage
}
