// Package history keeps the last observed sample of every accounting stream.
package history

import (
	"sort"
	"sync"

	"github.com/Dicklesworthstone/procmon/internal/model"
)

// Store maps a scope key to the most recent sample polled under it.
// It holds at most one sample per key; storing is a full replacement.
// The zero value is not usable; call New.
type Store struct {
	mu   sync.RWMutex
	last map[model.ScopeKey]model.Sample
}

// New returns an empty store.
func New() *Store {
	return &Store{last: make(map[model.ScopeKey]model.Sample)}
}

// GetLast returns a copy of the sample stored for key.
func (s *Store) GetLast(key model.ScopeKey) (model.Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sample, ok := s.last[key]
	return sample, ok
}

// SetLast stores sample under key and returns whatever it replaced.
func (s *Store) SetLast(key model.ScopeKey, sample model.Sample) (model.Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.last[key]
	s.last[key] = sample
	return prev, ok
}

// ClearLast removes and returns the sample stored for key.
func (s *Store) ClearLast(key model.ScopeKey) (model.Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.last[key]
	if ok {
		delete(s.last, key)
	}
	return prev, ok
}

// Len returns the number of stored streams.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.last)
}

// Snapshot copies every stored sample, ordered by scope kind then thread id.
func (s *Store) Snapshot() []model.Sample {
	s.mu.RLock()
	out := make([]model.Sample, 0, len(s.last))
	for _, sample := range s.last {
		out = append(out, sample)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope != out[j].Scope {
			return out[i].Scope < out[j].Scope
		}
		return out[i].Thread < out[j].Thread
	})
	return out
}
