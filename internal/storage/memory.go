package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/speedwagon-io/ambilight/internal/model"
)

// MemoryStore keeps readings in a map keyed by timestamp. Used for dry runs.
type MemoryStore struct {
	mu       sync.RWMutex
	readings map[int64]model.LuxReading
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		readings: make(map[int64]model.LuxReading),
	}
}

func (m *MemoryStore) Append(ctx context.Context, reading model.LuxReading) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Failed, &StoreError{Op: "append", Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.readings[reading.Timestamp]; exists {
		return Duplicate, nil
	}
	m.readings[reading.Timestamp] = reading
	return Inserted, nil
}

func (m *MemoryStore) Latest(ctx context.Context) (model.LuxReading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest model.LuxReading
	found := false
	for ts, r := range m.readings {
		if !found || ts > latest.Timestamp {
			latest = r
			found = true
		}
	}
	if !found {
		return latest, ErrNotFound
	}
	return latest, nil
}

func (m *MemoryStore) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.readings)), nil
}

// Readings returns all readings ordered by timestamp.
func (m *MemoryStore) Readings() []model.LuxReading {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.LuxReading, 0, len(m.readings))
	for _, r := range m.readings {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

func (m *MemoryStore) Close() error {
	return nil
}
