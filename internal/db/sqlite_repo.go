package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"breathewatch/internal/types"
)

// Timestamps are stored as RFC 3339 text so the file stays readable with the
// sqlite3 shell.
const sqliteTimeLayout = time.RFC3339Nano

const sqliteSchema = `CREATE TABLE IF NOT EXISTS subscriptions (
	email            TEXT PRIMARY KEY,
	auto_notify      INTEGER NOT NULL DEFAULT 0,
	last_notified_at TEXT,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
)`

// SQLiteSubscriptionRepo stores subscription records in an embedded SQLite
// database file.
type SQLiteSubscriptionRepo struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and verifies
// the connection.
func OpenSQLite(ctx context.Context, path string) (*SQLiteSubscriptionRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	return &SQLiteSubscriptionRepo{db: db}, nil
}

// NewSQLiteSubscriptionRepo wraps an already-open database handle.
func NewSQLiteSubscriptionRepo(db *sql.DB) *SQLiteSubscriptionRepo {
	return &SQLiteSubscriptionRepo{db: db}
}

// Close releases the database handle.
func (r *SQLiteSubscriptionRepo) Close() error {
	return r.db.Close()
}

// EnsureSchema creates the subscriptions table when missing.
func (r *SQLiteSubscriptionRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create subscriptions table", err)
	}
	return nil
}

func (r *SQLiteSubscriptionRepo) Get(ctx context.Context, email string) (*types.SubscriptionRecord, error) {
	var (
		rec          types.SubscriptionRecord
		lastNotified sql.NullString
		createdAt    string
		updatedAt    string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT email, auto_notify, last_notified_at, created_at, updated_at
		 FROM subscriptions
		 WHERE email = ?`,
		email,
	).Scan(&rec.Email, &rec.AutoNotify, &lastNotified, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get subscription", err)
	}

	if rec.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "corrupt created_at value", err)
	}
	if rec.UpdatedAt, err = time.Parse(sqliteTimeLayout, updatedAt); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "corrupt updated_at value", err)
	}
	if lastNotified.Valid {
		t, err := time.Parse(sqliteTimeLayout, lastNotified.String)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "corrupt last_notified_at value", err)
		}
		rec.LastNotifiedAt = &t
	}
	return &rec, nil
}

func (r *SQLiteSubscriptionRepo) Upsert(ctx context.Context, email string, autoNotify bool, now time.Time) error {
	ts := now.UTC().Format(sqliteTimeLayout)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscriptions (email, auto_notify, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (email) DO UPDATE
		 SET auto_notify = excluded.auto_notify,
		     updated_at = excluded.updated_at`,
		email, autoNotify, ts, ts,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert subscription", err)
	}
	return nil
}

func (r *SQLiteSubscriptionRepo) MarkNotified(ctx context.Context, email string, at time.Time) error {
	ts := at.UTC().Format(sqliteTimeLayout)
	_, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions SET last_notified_at = ?, updated_at = ? WHERE email = ?`,
		ts, ts, email,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record notification time", err)
	}
	return nil
}

func (r *SQLiteSubscriptionRepo) Delete(ctx context.Context, email string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE email = ?`, email); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete subscription", err)
	}
	return nil
}

func (r *SQLiteSubscriptionRepo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "database unreachable", err)
	}
	return nil
}

var _ types.SubscriptionStore = (*SQLiteSubscriptionRepo)(nil)
