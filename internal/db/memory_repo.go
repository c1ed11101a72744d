package db

import (
	"context"
	"sync"
	"time"

	"breathewatch/internal/types"
)

// MemorySubscriptionRepo keeps records in a map. State is lost on restart.
type MemorySubscriptionRepo struct {
	mu      sync.RWMutex
	records map[string]types.SubscriptionRecord
}

// NewMemorySubscriptionRepo creates an empty in-memory store.
func NewMemorySubscriptionRepo() *MemorySubscriptionRepo {
	return &MemorySubscriptionRepo{records: make(map[string]types.SubscriptionRecord)}
}

func (r *MemorySubscriptionRepo) Get(_ context.Context, email string) (*types.SubscriptionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[email]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
	}
	if rec.LastNotifiedAt != nil {
		t := *rec.LastNotifiedAt
		rec.LastNotifiedAt = &t
	}
	return &rec, nil
}

func (r *MemorySubscriptionRepo) Upsert(_ context.Context, email string, autoNotify bool, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[email]
	if !ok {
		rec = types.SubscriptionRecord{Email: email, CreatedAt: now}
	}
	rec.AutoNotify = autoNotify
	rec.UpdatedAt = now
	r.records[email] = rec
	return nil
}

func (r *MemorySubscriptionRepo) MarkNotified(_ context.Context, email string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[email]
	if !ok {
		return nil
	}
	rec.LastNotifiedAt = &at
	rec.UpdatedAt = at
	r.records[email] = rec
	return nil
}

func (r *MemorySubscriptionRepo) Delete(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, email)
	return nil
}

func (r *MemorySubscriptionRepo) Ping(context.Context) error { return nil }

// Len returns the number of stored records.
func (r *MemorySubscriptionRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

var _ types.SubscriptionStore = (*MemorySubscriptionRepo)(nil)
