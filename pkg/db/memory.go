package db

import (
	"context"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemorySlotStore keeps slots in process memory. Nothing expires; contents
// are lost when the process exits.
type MemorySlotStore struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

// NewMemorySlotStore creates an empty in-memory store.
func NewMemorySlotStore() *MemorySlotStore {
	return &MemorySlotStore{
		cache: gocache.New(gocache.NoExpiration, 0),
	}
}

func cacheKey(slot Slot) string {
	return slot.Namespace + "\x00" + slot.Key
}

func (s *MemorySlotStore) Load(_ context.Context, slot Slot) (*Record, error) {
	v, ok := s.cache.Get(cacheKey(slot))
	if !ok {
		return nil, ErrSlotNotFound
	}
	rec := *v.(*Record)
	return &rec, nil
}

func (s *MemorySlotStore) Save(_ context.Context, slot Slot, content string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	rec := &Record{
		Namespace: slot.Namespace,
		Key:       slot.Key,
		Content:   content,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if v, ok := s.cache.Get(cacheKey(slot)); ok {
		prev := v.(*Record)
		rec.Version = prev.Version + 1
		rec.CreatedAt = prev.CreatedAt
	}
	s.cache.Set(cacheKey(slot), rec, gocache.NoExpiration)

	out := *rec
	return &out, nil
}

func (s *MemorySlotStore) Delete(_ context.Context, slot Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache.Get(cacheKey(slot)); !ok {
		return ErrSlotNotFound
	}
	s.cache.Delete(cacheKey(slot))
	return nil
}

func (s *MemorySlotStore) List(_ context.Context, key string) ([]*Record, error) {
	var records []*Record
	for _, item := range s.cache.Items() {
		rec := *item.Object.(*Record)
		if rec.Key == key {
			records = append(records, &rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return records, nil
}

func (s *MemorySlotStore) Close() error {
	s.cache.Flush()
	return nil
}

var _ ISlotStore = (*MemorySlotStore)(nil)
