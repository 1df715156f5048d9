package db

import (
	"context"
	"fmt"

	"poker-hand-editor/pkg/config"
)

// Open returns the slot store selected by cfg.StorageDriver.
func Open(ctx context.Context, cfg *config.Config) (ISlotStore, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		return NewMemorySlotStore(), nil
	case config.DriverSQLite:
		store, err := NewSQLiteSlotStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		store, err := NewPostgresSlotStore(ctx, cfg.GetDatabaseConnectionString())
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
