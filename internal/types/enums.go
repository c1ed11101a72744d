package types

// RiskLevel is the respiratory-health risk category derived from a snapshot.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskModerate RiskLevel = "Moderate"
	RiskHigh     RiskLevel = "High"
	RiskExtreme  RiskLevel = "Extreme"
)

// AllRiskLevels lists every level in ascending severity.
var AllRiskLevels = []RiskLevel{RiskLow, RiskModerate, RiskHigh, RiskExtreme}

// IsValid reports whether l is one of the known levels.
func (l RiskLevel) IsValid() bool {
	switch l {
	case RiskLow, RiskModerate, RiskHigh, RiskExtreme:
		return true
	}
	return false
}

// Rank returns the ordinal severity of the level (Low=0 ... Extreme=3).
// Unknown levels rank below Low.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 0
	case RiskModerate:
		return 1
	case RiskHigh:
		return 2
	case RiskExtreme:
		return 3
	}
	return -1
}

// IsReportable reports whether the level is harsh enough to alert a subscriber
// without a manual request.
func (l RiskLevel) IsReportable() bool {
	return l.Rank() >= RiskHigh.Rank()
}

// NotifyStatus is the discriminant of a notification request outcome.
type NotifyStatus string

const (
	NotifySent         NotifyStatus = "sent"
	NotifySimulated    NotifyStatus = "simulated"
	NotifyFailed       NotifyStatus = "failed"
	NotifyInvalidEmail NotifyStatus = "invalid_email"
)

// FailureKind distinguishes why a dispatch failed.
type FailureKind string

const (
	FailureUpstream          FailureKind = "upstream"
	FailurePolicyRestriction FailureKind = "policy_restricted"
)

// UnsubscribeStatus is the discriminant of an unsubscribe outcome.
type UnsubscribeStatus string

const (
	// UnsubscribeRemoved covers both deleting an existing record and the
	// idempotent no-record case.
	UnsubscribeRemoved UnsubscribeStatus = "removed"
	// UnsubscribeIgnored is returned for syntactically invalid emails.
	UnsubscribeIgnored UnsubscribeStatus = "ignored"
	UnsubscribeFailed  UnsubscribeStatus = "failed"
)

// AutoNotifyStatus is the discriminant of a same-request auto-notify check.
type AutoNotifyStatus string

const (
	AutoNotifySent      AutoNotifyStatus = "sent"
	AutoNotifySimulated AutoNotifyStatus = "simulated"
	AutoNotifySkipped   AutoNotifyStatus = "skipped"
	AutoNotifyFailed    AutoNotifyStatus = "failed"
)

// StorageBackend selects the subscription store implementation.
type StorageBackend string

const (
	StorageMemory   StorageBackend = "memory"
	StorageSQLite   StorageBackend = "sqlite"
	StoragePostgres StorageBackend = "postgres"
)
