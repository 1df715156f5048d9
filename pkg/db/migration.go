package db

import (
	"context"
	"database/sql"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS slots (
		namespace VARCHAR(64) NOT NULL,
		slot_key VARCHAR(255) NOT NULL,
		content TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
		PRIMARY KEY (namespace, slot_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_slots_updated_at ON slots(updated_at)`,
}

// SQLite keeps times as Unix milliseconds.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS slots (
		namespace TEXT NOT NULL,
		slot_key TEXT NOT NULL,
		content TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (namespace, slot_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_slots_updated_at ON slots(updated_at)`,
}

// createTable creates the slots table if it doesn't exist
func createTable(ctx context.Context, db *sql.DB, schema []string) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
