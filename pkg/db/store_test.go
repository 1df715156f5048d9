package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"poker-hand-editor/pkg/config"
)

const testKey = "pokerHandHistory"

// storeFactories returns every driver available in this environment.
func storeFactories(t *testing.T) map[string]func(t *testing.T) ISlotStore {
	factories := map[string]func(t *testing.T) ISlotStore{
		"memory": func(t *testing.T) ISlotStore {
			return NewMemorySlotStore()
		},
		"sqlite": func(t *testing.T) ISlotStore {
			store, err := NewSQLiteSlotStore(context.Background(), filepath.Join(t.TempDir(), "slots.db"))
			require.NoError(t, err)
			return store
		},
	}

	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		factories["postgres"] = func(t *testing.T) ISlotStore {
			store, err := NewPostgresSlotStore(context.Background(), dsn)
			require.NoError(t, err)
			_, err = store.db.Exec(`DELETE FROM slots`)
			require.NoError(t, err)
			return store
		}
	}
	return factories
}

func TestSlotStore_Contract(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)
			defer store.Close()

			slot := Slot{Namespace: "table-1", Key: testKey}

			_, err := store.Load(ctx, slot)
			require.ErrorIs(t, err, ErrSlotNotFound)

			rec, err := store.Save(ctx, slot, "PokerStars Hand #1")
			require.NoError(t, err)
			require.Equal(t, 1, rec.Version)
			require.Equal(t, "PokerStars Hand #1", rec.Content)

			rec, err = store.Save(ctx, slot, "PokerStars Hand #2")
			require.NoError(t, err)
			require.Equal(t, 2, rec.Version)

			got, err := store.Load(ctx, slot)
			require.NoError(t, err)
			require.Equal(t, "PokerStars Hand #2", got.Content)
			require.Equal(t, slot.Namespace, got.Namespace)
			require.Equal(t, slot.Key, got.Key)

			// Empty content is a value, not an absence.
			_, err = store.Save(ctx, slot, "")
			require.NoError(t, err)
			got, err = store.Load(ctx, slot)
			require.NoError(t, err)
			require.Equal(t, "", got.Content)

			require.NoError(t, store.Delete(ctx, slot))
			require.ErrorIs(t, store.Delete(ctx, slot), ErrSlotNotFound)
			_, err = store.Load(ctx, slot)
			require.ErrorIs(t, err, ErrSlotNotFound)
		})
	}
}

func TestSlotStore_ListByKey(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)
			defer store.Close()

			_, err := store.Save(ctx, Slot{Namespace: "a", Key: testKey}, "first")
			require.NoError(t, err)
			time.Sleep(5 * time.Millisecond)
			_, err = store.Save(ctx, Slot{Namespace: "b", Key: testKey}, "second")
			require.NoError(t, err)
			_, err = store.Save(ctx, Slot{Namespace: "a", Key: "other"}, "ignored")
			require.NoError(t, err)

			records, err := store.List(ctx, testKey)
			require.NoError(t, err)
			require.Len(t, records, 2)
			require.Equal(t, "b", records[0].Namespace)
			require.Equal(t, "a", records[1].Namespace)
		})
	}
}

func TestSQLiteSlotStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "slots.db")
	slot := Slot{Namespace: "default", Key: testKey}

	store, err := NewSQLiteSlotStore(ctx, path)
	require.NoError(t, err)
	_, err = store.Save(ctx, slot, "Seat 1: Hero")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewSQLiteSlotStore(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	rec, err := store.Load(ctx, slot)
	require.NoError(t, err)
	require.Equal(t, "Seat 1: Hero", rec.Content)
}

func TestOpen_SelectsDriver(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, &config.Config{StorageDriver: config.DriverMemory})
	require.NoError(t, err)
	require.IsType(t, &MemorySlotStore{}, store)

	store, err = Open(ctx, &config.Config{
		StorageDriver: config.DriverSQLite,
		SQLitePath:    filepath.Join(t.TempDir(), "x.db"),
	})
	require.NoError(t, err)
	require.IsType(t, &SQLiteSlotStore{}, store)
	require.NoError(t, store.Close())

	_, err = Open(ctx, &config.Config{StorageDriver: "redis"})
	require.Error(t, err)
}
