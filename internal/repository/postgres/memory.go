package postgres

import (
	"context"
	"sync"

	"github.com/weatherapp/backend/internal/domain"
)

// DefaultMemoryCapacity bounds the in-memory lookup log
const DefaultMemoryCapacity = 500

// MemoryRepository implements domain.LookupRepository without a database.
// It keeps the newest lookups in a fixed-size ring.
type MemoryRepository struct {
	mu    sync.Mutex
	ring  []domain.Lookup
	next  int
	count int
}

// NewMemoryRepository creates a repository holding at most capacity lookups
func NewMemoryRepository(capacity int) *MemoryRepository {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryRepository{ring: make([]domain.Lookup, capacity)}
}

func (r *MemoryRepository) SaveLookup(_ context.Context, l domain.Lookup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring[r.next] = l
	r.next = (r.next + 1) % len(r.ring)
	if r.count < len(r.ring) {
		r.count++
	}
	return nil
}

// RecentLookups returns up to limit lookups, newest first
func (r *MemoryRepository) RecentLookups(_ context.Context, limit int) ([]domain.Lookup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > r.count {
		limit = r.count
	}
	out := make([]domain.Lookup, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + len(r.ring)) % len(r.ring)
		out = append(out, r.ring[idx])
	}
	return out, nil
}

// Health always returns nil in memory mode
func (r *MemoryRepository) Health(ctx context.Context) error {
	return nil
}
