package session

import (
	"context"
	"time"

	"cuadre/internal/cache"
	"cuadre/internal/core"
)

// MemoryStore keeps forms in a bounded LRU cache. Forms of idle sessions are
// dropped after ttl.
type MemoryStore struct {
	forms *cache.LRUCache[*core.Form]
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(maxSessions int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{forms: cache.NewLRUCache[*core.Form](maxSessions, ttl)}
}

// Cleaner exposes the underlying cache for periodic expiry sweeps.
func (s *MemoryStore) Cleaner() cache.Cleaner {
	return s.forms
}

func (s *MemoryStore) Load(_ context.Context, id string) (*core.Form, error) {
	if f, ok := s.forms.Get(id); ok {
		return f.Clone(), nil
	}
	return core.NewForm(), nil
}

func (s *MemoryStore) Save(_ context.Context, id string, f *core.Form) error {
	s.forms.Set(id, f.Clone())
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.forms.Delete(id)
	return nil
}

// Size is the number of live sessions.
func (s *MemoryStore) Size() int {
	return s.forms.Size()
}
