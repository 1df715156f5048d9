package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLiteSlotStore implements ISlotStore on a local SQLite file.
type SQLiteSlotStore struct {
	db *sql.DB
}

// NewSQLiteSlotStore opens (creating if needed) the database at path.
func NewSQLiteSlotStore(ctx context.Context, path string) (*SQLiteSlotStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createTable(ctx, db, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &SQLiteSlotStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteSlotStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteSlotStore) Load(ctx context.Context, slot Slot) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT namespace, slot_key, content, version, created_at, updated_at
		FROM slots WHERE namespace = ? AND slot_key = ?`,
		slot.Namespace, slot.Key,
	)

	rec, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load slot: %w", err)
	}
	return rec, nil
}

func (s *SQLiteSlotStore) Save(ctx context.Context, slot Slot, content string) (*Record, error) {
	now := time.Now().UnixMilli()

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO slots (namespace, slot_key, content, version, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT (namespace, slot_key) DO UPDATE
		SET content = excluded.content,
			updated_at = excluded.updated_at,
			version = slots.version + 1
		RETURNING namespace, slot_key, content, version, created_at, updated_at`,
		slot.Namespace, slot.Key, content, now, now,
	)

	rec, err := scanSQLiteRecord(row)
	if err != nil {
		return nil, fmt.Errorf("failed to save slot: %w", err)
	}
	return rec, nil
}

func (s *SQLiteSlotStore) Delete(ctx context.Context, slot Slot) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM slots WHERE namespace = ? AND slot_key = ?`,
		slot.Namespace, slot.Key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (s *SQLiteSlotStore) List(ctx context.Context, key string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT namespace, slot_key, content, version, created_at, updated_at
		FROM slots WHERE slot_key = ? ORDER BY updated_at DESC`,
		key,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return records, nil
}

func scanSQLiteRecord(scanner interface{ Scan(...any) error }) (*Record, error) {
	var (
		rec                  Record
		createdAt, updatedAt int64
	)
	err := scanner.Scan(&rec.Namespace, &rec.Key, &rec.Content, &rec.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = time.UnixMilli(createdAt)
	rec.UpdatedAt = time.UnixMilli(updatedAt)
	return &rec, nil
}

var _ ISlotStore = (*SQLiteSlotStore)(nil)
