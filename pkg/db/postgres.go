package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresSlotStore implements ISlotStore using PostgreSQL
type PostgresSlotStore struct {
	db *sql.DB
}

// NewPostgresSlotStore creates a new PostgreSQL slot store
func NewPostgresSlotStore(ctx context.Context, connStr string) (*PostgresSlotStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createTable(ctx, db, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &PostgresSlotStore{db: db}, nil
}

// Close closes the database connection
func (s *PostgresSlotStore) Close() error {
	return s.db.Close()
}

func (s *PostgresSlotStore) Load(ctx context.Context, slot Slot) (*Record, error) {
	query := `
		SELECT namespace, slot_key, content, version, created_at, updated_at
		FROM slots
		WHERE namespace = $1 AND slot_key = $2
	`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, slot.Namespace, slot.Key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("failed to load slot: %w", err)
	}

	return rec, nil
}

func (s *PostgresSlotStore) Save(ctx context.Context, slot Slot, content string) (*Record, error) {
	now := time.Now()

	query := `
		INSERT INTO slots (namespace, slot_key, content, version, created_at, updated_at)
		VALUES ($1, $2, $3, 1, $4, $4)
		ON CONFLICT (namespace, slot_key) DO UPDATE
		SET content = EXCLUDED.content,
			updated_at = EXCLUDED.updated_at,
			version = slots.version + 1
		RETURNING namespace, slot_key, content, version, created_at, updated_at
	`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, slot.Namespace, slot.Key, content, now))
	if err != nil {
		return nil, fmt.Errorf("failed to save slot: %w", err)
	}

	return rec, nil
}

func (s *PostgresSlotStore) Delete(ctx context.Context, slot Slot) error {
	query := `DELETE FROM slots WHERE namespace = $1 AND slot_key = $2`

	result, err := s.db.ExecContext(ctx, query, slot.Namespace, slot.Key)
	if err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrSlotNotFound
	}

	return nil
}

func (s *PostgresSlotStore) List(ctx context.Context, key string) ([]*Record, error) {
	query := `
		SELECT namespace, slot_key, content, version, created_at, updated_at
		FROM slots
		WHERE slot_key = $1
		ORDER BY updated_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
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

func scanRecord(scanner interface{ Scan(...any) error }) (*Record, error) {
	rec := &Record{}
	err := scanner.Scan(
		&rec.Namespace,
		&rec.Key,
		&rec.Content,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	return rec, err
}

// Compile-time check to ensure PostgresSlotStore implements ISlotStore
var _ ISlotStore = (*PostgresSlotStore)(nil)
