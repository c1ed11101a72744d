// Package db provides the subscription store backends. The PostgreSQL
// repository accepts a DBTX interface satisfied by both *pgxpool.Pool and
// pgx.Tx; the SQLite repository uses database/sql with the pure-Go modernc
// driver; the in-memory repository backs local development and tests.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SchemaEnsurer is implemented by stores that can create their own tables.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}
