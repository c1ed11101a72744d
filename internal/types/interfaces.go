package types

import (
	"context"
	"time"
)

// SubscriptionStore is the persistence contract for SubscriptionRecords.
// Implementations must treat email as an already-normalized primary key and
// must make each operation a single atomic statement; concurrent writers to
// the same key resolve as last-writer-wins.
type SubscriptionStore interface {
	// Get returns the record for email. Returns an AppError with
	// ErrCodeNotFoundSubscription when no record exists.
	Get(ctx context.Context, email string) (*SubscriptionRecord, error)

	// Upsert inserts the record or updates its AutoNotify flag. CreatedAt
	// and LastNotifiedAt are preserved on update.
	Upsert(ctx context.Context, email string, autoNotify bool, now time.Time) error

	// MarkNotified sets LastNotifiedAt. A missing record is not an error.
	MarkNotified(ctx context.Context, email string, at time.Time) error

	// Delete removes the record. Deleting a missing record succeeds.
	Delete(ctx context.Context, email string) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
}
