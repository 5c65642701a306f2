package store

import (
	"context"
	"fmt"
	"sync"

	"roster/internal/onboarding/models"
	"roster/pkg/platform/sentinel"
)

// InMemory keeps profiles in a mutex-guarded map. It is the default backend
// and intentionally favors clarity over performance. Profiles do not survive
// a restart.
type InMemory struct {
	mu       sync.RWMutex
	profiles map[string]models.EnrichedProfile
	inflight map[string]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{
		profiles: make(map[string]models.EnrichedProfile),
		inflight: make(map[string]struct{}),
	}
}

func (s *InMemory) Get(_ context.Context, id string) (models.EnrichedProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[id]
	if !ok {
		return models.EnrichedProfile{}, sentinel.ErrNotFound
	}
	// Copy slices so callers can never alias stored state.
	profile.Groups = append([]string(nil), profile.Groups...)
	profile.Applications = append([]string(nil), profile.Applications...)
	return profile, nil
}

func (s *InMemory) Reserve(_ context.Context, id string) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.inflight[id]; held {
		return nil, fmt.Errorf("reserve %q: %w", id, sentinel.ErrConflict)
	}
	s.inflight[id] = struct{}{}
	return &memoryReservation{store: s, id: id}, nil
}

type memoryReservation struct {
	store *InMemory
	id    string
	done  bool
}

func (r *memoryReservation) Commit(_ context.Context, profile models.EnrichedProfile) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.done {
		return fmt.Errorf("commit %q: %w", r.id, sentinel.ErrInvalidState)
	}
	r.store.profiles[r.id] = profile
	delete(r.store.inflight, r.id)
	r.done = true
	return nil
}

func (r *memoryReservation) Release() {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.done {
		return
	}
	delete(r.store.inflight, r.id)
	r.done = true
}
