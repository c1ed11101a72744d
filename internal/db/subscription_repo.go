package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"breathewatch/internal/types"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS subscriptions (
	email            TEXT PRIMARY KEY,
	auto_notify      BOOLEAN NOT NULL DEFAULT FALSE,
	last_notified_at TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresSubscriptionRepo stores subscription records in PostgreSQL.
//
// Every write is a single statement against the email primary key, so
// concurrent writers to the same address resolve as last-writer-wins.
type PostgresSubscriptionRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewPostgresSubscriptionRepo creates a repository backed by the given pool
// or transaction.
func NewPostgresSubscriptionRepo(db DBTX, logger *slog.Logger) *PostgresSubscriptionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSubscriptionRepo{db: db, logger: logger}
}

// EnsureSchema creates the subscriptions table when missing.
func (r *PostgresSubscriptionRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, postgresSchema); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create subscriptions table", err)
	}
	return nil
}

func (r *PostgresSubscriptionRepo) Get(ctx context.Context, email string) (*types.SubscriptionRecord, error) {
	var rec types.SubscriptionRecord
	err := r.db.QueryRow(ctx,
		`SELECT email, auto_notify, last_notified_at, created_at, updated_at
		 FROM subscriptions
		 WHERE email = $1`,
		email,
	).Scan(&rec.Email, &rec.AutoNotify, &rec.LastNotifiedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get subscription", err)
	}
	return &rec, nil
}

// Upsert inserts the record or updates only auto_notify and updated_at,
// leaving created_at and last_notified_at untouched.
func (r *PostgresSubscriptionRepo) Upsert(ctx context.Context, email string, autoNotify bool, now time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions (email, auto_notify, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)
		 ON CONFLICT (email) DO UPDATE
		 SET auto_notify = EXCLUDED.auto_notify,
		     updated_at = EXCLUDED.updated_at`,
		email, autoNotify, now,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert subscription", err)
	}
	return nil
}

func (r *PostgresSubscriptionRepo) MarkNotified(ctx context.Context, email string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET last_notified_at = $2,
		     updated_at = $2
		 WHERE email = $1`,
		email, at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record notification time", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug("mark notified skipped, no subscription record")
	}
	return nil
}

func (r *PostgresSubscriptionRepo) Delete(ctx context.Context, email string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM subscriptions WHERE email = $1`, email); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete subscription", err)
	}
	return nil
}

func (r *PostgresSubscriptionRepo) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "database unreachable", err)
	}
	return nil
}

var _ types.SubscriptionStore = (*PostgresSubscriptionRepo)(nil)
