package store

import (
	"context"
	"sync"
	"time"

	"github.com/jonaylor89/pixelgate/internal/domain"
)

// memoryRetention bounds the in-memory log so a long-lived process does not
// grow without limit.
const memoryRetention = 4096

// MemoryUsageStore keeps recent records in memory for deployments without
// Postgres and for tests.
type MemoryUsageStore struct {
	mu      sync.RWMutex
	records []domain.UsageRecord
}

func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{}
}

func (s *MemoryUsageStore) CreateUsageRecord(_ context.Context, rec domain.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	if len(s.records) > memoryRetention {
		s.records = s.records[len(s.records)-memoryRetention:]
	}
	return nil
}

// Records returns a copy of the retained rows, oldest first.
func (s *MemoryUsageStore) Records() []domain.UsageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UsageRecord, len(s.records))
	copy(out, s.records)
	return out
}
