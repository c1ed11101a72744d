package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"breathewatch/internal/config"
	"breathewatch/internal/types"
)

// OpenStore builds the subscription store selected by cfg.Backend, creates
// its schema, and returns a close function that releases its resources.
func OpenStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (types.SubscriptionStore, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		store   types.SubscriptionStore
		closeFn = func() {}
	)

	switch types.StorageBackend(cfg.Backend) {
	case types.StoragePostgres:
		pool, err := newPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		store = NewPostgresSubscriptionRepo(pool, logger.With("store", "postgres"))
		closeFn = pool.Close

	case types.StorageSQLite:
		repo, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store = repo
		closeFn = func() {
			if err := repo.Close(); err != nil {
				logger.Warn("failed to close SQLite database", "error", err)
			}
		}

	case types.StorageMemory, "":
		store = NewMemorySubscriptionRepo()

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if se, ok := store.(SchemaEnsurer); ok {
		if err := se.EnsureSchema(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
	}

	logger.Info("subscription store ready", "backend", cfg.Backend)
	return store, closeFn, nil
}

func newPool(ctx context.Context, cfg config.StorageConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx := ctx
	if cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.AcquireTimeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}
