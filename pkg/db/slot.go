package db

import (
	"context"
	"errors"
	"time"
)

// ErrSlotNotFound is returned when nothing has been stored under a slot.
var ErrSlotNotFound = errors.New("slot not found")

// Slot identifies one persisted value. Key is the fixed application key;
// Namespace separates editor sessions the way a browser separates origins.
type Slot struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
}

// Record is the stored state of a slot
type Record struct {
	Namespace string    `json:"namespace"`
	Key       string    `json:"key"`
	Content   string    `json:"content"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ISlotStore persists editor buffers in named slots.
type ISlotStore interface {
	// Load returns ErrSlotNotFound when the slot was never written.
	Load(ctx context.Context, slot Slot) (*Record, error)
	// Save overwrites the slot, creating it if needed, and bumps its version.
	Save(ctx context.Context, slot Slot, content string) (*Record, error)
	Delete(ctx context.Context, slot Slot) error
	// List returns every slot stored under key, most recently updated first.
	List(ctx context.Context, key string) ([]*Record, error)
	Close() error
}
