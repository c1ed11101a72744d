package types

import (
	"regexp"
	"strings"
)

// Coordinate bounds.
const (
	MinLat = -90.0
	MaxLat = 90.0
	MinLon = -180.0
	MaxLon = 180.0
)

// AQI bounds on the provider's 1 (Good) .. 5 (Very Poor) scale.
const (
	MinAQI = 1
	MaxAQI = 5
)

// emailPattern is the syntactic validity check for notification recipients:
// a local part, "@", and a domain containing at least one dot. Whitespace and
// additional "@" characters are rejected.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
// Subscription records are always keyed by the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail reports whether email passes the syntactic validity check.
// The input is not normalized first; callers normalize before validating.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidLat reports whether lat is within [-90, 90].
func ValidLat(lat float64) bool {
	return lat >= MinLat && lat <= MaxLat
}

// ValidLon reports whether lon is within [-180, 180].
func ValidLon(lon float64) bool {
	return lon >= MinLon && lon <= MaxLon
}
