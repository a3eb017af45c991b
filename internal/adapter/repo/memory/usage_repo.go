// Package memory keeps usage counters in process memory. Meant for tests
// and single-instance development runs; counters do not survive restarts.
package memory

import (
	"sync"
	"time"

	"github.com/fairyhunter13/rehearsal-coach/internal/domain"
)

type key struct{ day, client string }

// UsageRepo is a mutex-guarded map satisfying domain.UsageRepository.
type UsageRepo struct {
	mu      sync.Mutex
	records map[key]*domain.UsageRecord
}

// NewUsageRepo constructs an empty in-memory store.
func NewUsageRepo() *UsageRepo {
	return &UsageRepo{records: make(map[key]*domain.UsageRecord)}
}

var _ domain.UsageRepository = (*UsageRepo)(nil)

// Read returns the committed snapshot; a missing record means zero used.
func (r *UsageRepo) Read(_ domain.Context, dayKey, clientID string, limit int) (domain.UsageSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	used := 0
	if rec, ok := r.records[key{dayKey, clientID}]; ok {
		used = rec.Count
	}
	return domain.NewUsageSnapshot(limit, used, dayKey), nil
}

// Increment performs the create-or-bump under one lock acquisition.
func (r *UsageRepo) Increment(_ domain.Context, dayKey, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{dayKey, clientID}
	rec, ok := r.records[k]
	if !ok {
		rec = &domain.UsageRecord{DayKey: dayKey, ClientID: clientID}
		r.records[k] = rec
	}
	rec.Count++
	rec.UpdatedAt = time.Now().UTC()
	return nil
}
