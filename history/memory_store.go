package history

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore is an in-memory implementation of the Store interface. It
// keeps one bounded slice of lines per group in a go-cache instance, so a
// group's history expires as a whole once the group has been silent for the
// configured TTL.
type MemoryStore struct {
	mu    sync.Mutex
	cache *cache.Cache
	depth int
}

// NewMemoryStore creates an in-memory history store.
//
// Parameters:
//   - depth: Maximum number of lines kept per group
//   - ttl: How long a silent group's history is retained
//
// Returns:
//   - A new MemoryStore instance
func NewMemoryStore(depth int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: cache.New(ttl, ttl),
		depth: depth,
	}
}

// Append records one line for a group. The read-modify-write on the cached
// slice is serialized by the store's mutex; go-cache only guards single
// operations.
func (s *MemoryStore) Append(ctx context.Context, group string, line string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var lines []string
	if val, found := s.cache.Get(group); found {
		lines = val.([]string)
	}

	lines = append(lines, line)
	if len(lines) > s.depth {
		lines = lines[len(lines)-s.depth:]
	}

	s.cache.Set(group, lines, cache.DefaultExpiration)
	return nil
}

// Recent returns a group's stored lines, oldest first.
func (s *MemoryStore) Recent(ctx context.Context, group string) ([]string, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	val, found := s.cache.Get(group)
	if !found {
		return nil, nil
	}

	lines := val.([]string)
	out := make([]string, len(lines))
	copy(out, lines)
	return out, nil
}
