package db

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breathewatch/internal/config"
	"breathewatch/internal/types"
)

// storeCases runs the same behavioural checks against every backend that can
// run without external services.
func storeCases(t *testing.T) map[string]func(t *testing.T) types.SubscriptionStore {
	t.Helper()
	return map[string]func(t *testing.T) types.SubscriptionStore{
		"memory": func(t *testing.T) types.SubscriptionStore {
			return NewMemorySubscriptionRepo()
		},
		"sqlite": func(t *testing.T) types.SubscriptionStore {
			repo, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "subs.db"))
			require.NoError(t, err)
			t.Cleanup(func() { repo.Close() })
			require.NoError(t, repo.EnsureSchema(context.Background()))
			return repo
		},
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, open := range storeCases(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)

			_, err := store.Get(context.Background(), "nobody@example.com")
			assert.Equal(t, types.ErrCodeNotFoundSubscription, types.ErrorCodeOf(err))
		})
	}
}

func TestStore_UpsertPreservesCreatedAndNotified(t *testing.T) {
	for name, open := range storeCases(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()
			t0 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

			require.NoError(t, store.Upsert(ctx, "user@example.com", true, t0))

			rec, err := store.Get(ctx, "user@example.com")
			require.NoError(t, err)
			assert.True(t, rec.AutoNotify)
			assert.Nil(t, rec.LastNotifiedAt)
			assert.True(t, t0.Equal(rec.CreatedAt))

			notified := t0.Add(30 * time.Minute)
			require.NoError(t, store.MarkNotified(ctx, "user@example.com", notified))

			t1 := t0.Add(time.Hour)
			require.NoError(t, store.Upsert(ctx, "user@example.com", false, t1))

			rec, err = store.Get(ctx, "user@example.com")
			require.NoError(t, err)
			assert.False(t, rec.AutoNotify)
			assert.True(t, t0.Equal(rec.CreatedAt), "created_at must survive upsert")
			assert.True(t, t1.Equal(rec.UpdatedAt))
			require.NotNil(t, rec.LastNotifiedAt, "last_notified_at must survive upsert")
			assert.True(t, notified.Equal(*rec.LastNotifiedAt))
		})
	}
}

func TestStore_MarkNotifiedMissingRecord(t *testing.T) {
	for name, open := range storeCases(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()

			require.NoError(t, store.MarkNotified(ctx, "ghost@example.com", time.Now()))

			_, err := store.Get(ctx, "ghost@example.com")
			assert.Equal(t, types.ErrCodeNotFoundSubscription, types.ErrorCodeOf(err))
		})
	}
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	for name, open := range storeCases(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()

			require.NoError(t, store.Upsert(ctx, "user@example.com", true, time.Now()))
			require.NoError(t, store.Delete(ctx, "user@example.com"))
			require.NoError(t, store.Delete(ctx, "user@example.com"))

			_, err := store.Get(ctx, "user@example.com")
			assert.Equal(t, types.ErrCodeNotFoundSubscription, types.ErrorCodeOf(err))
		})
	}
}

func TestStore_ConcurrentWritersDifferentKeys(t *testing.T) {
	for name, open := range storeCases(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()
			emails := []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"}

			var wg sync.WaitGroup
			for _, email := range emails {
				wg.Add(1)
				go func() {
					defer wg.Done()
					assert.NoError(t, store.Upsert(ctx, email, true, time.Now()))
				}()
			}
			wg.Wait()

			for _, email := range emails {
				rec, err := store.Get(ctx, email)
				require.NoError(t, err)
				assert.True(t, rec.AutoNotify)
			}
		})
	}
}

func TestStore_Ping(t *testing.T) {
	for name, open := range storeCases(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, open(t).Ping(context.Background()))
		})
	}
}

func TestMemoryRepo_GetReturnsCopy(t *testing.T) {
	repo := NewMemorySubscriptionRepo()
	ctx := context.Background()
	at := time.Now()

	require.NoError(t, repo.Upsert(ctx, "user@example.com", true, at))
	require.NoError(t, repo.MarkNotified(ctx, "user@example.com", at))

	rec, err := repo.Get(ctx, "user@example.com")
	require.NoError(t, err)
	*rec.LastNotifiedAt = at.Add(time.Hour)
	rec.AutoNotify = false

	again, err := repo.Get(ctx, "user@example.com")
	require.NoError(t, err)
	assert.True(t, again.AutoNotify)
	assert.True(t, at.Equal(*again.LastNotifiedAt))
	assert.Equal(t, 1, repo.Len())
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		store, closeFn, err := OpenStore(ctx, config.StorageConfig{Backend: "memory"}, nil)
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &MemorySubscriptionRepo{}, store)
	})

	t.Run("sqlite creates schema", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "breathewatch.db")
		store, closeFn, err := OpenStore(ctx, config.StorageConfig{Backend: "sqlite", SQLitePath: path}, nil)
		require.NoError(t, err)
		defer closeFn()

		require.NoError(t, store.Upsert(ctx, "user@example.com", false, time.Now()))
		rec, err := store.Get(ctx, "user@example.com")
		require.NoError(t, err)
		assert.False(t, rec.AutoNotify)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, _, err := OpenStore(ctx, config.StorageConfig{Backend: "cassandra"}, nil)
		assert.Error(t, err)
	})

	t.Run("invalid postgres url", func(t *testing.T) {
		_, _, err := OpenStore(ctx, config.StorageConfig{Backend: "postgres", URL: "postgres://localhost:notaport/db"}, nil)
		assert.Error(t, err)
	})
}
