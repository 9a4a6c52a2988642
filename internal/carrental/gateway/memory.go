package gateway

import (
	"context"
	"sync"
	"time"
)

// MemoryIntentStore is an IntentStore for single-process deployments.
// Expired intents are dropped when read.
type MemoryIntentStore struct {
	mu      sync.Mutex
	intents map[string]Intent
	now     func() time.Time
}

// NewMemoryIntentStore creates an empty in-process intent store
func NewMemoryIntentStore() *MemoryIntentStore {
	return &MemoryIntentStore{
		intents: make(map[string]Intent),
		now:     time.Now,
	}
}

// Save stores intent under its id, replacing any previous one
func (s *MemoryIntentStore) Save(_ context.Context, intent *Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[intent.ID] = *intent
	return nil
}

// Get returns the intent with id, or ErrIntentNotFound once it has expired
func (s *MemoryIntentStore) Get(_ context.Context, id string) (*Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	if !s.now().Before(intent.ExpiresAt) {
		delete(s.intents, id)
		return nil, ErrIntentNotFound
	}
	return &intent, nil
}

// Delete removes the intent and reports whether it was present
func (s *MemoryIntentStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.intents[id]
	delete(s.intents, id)
	return ok, nil
}

// Prune drops every intent that has expired and returns how many went.
func (s *MemoryIntentStore) Prune(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for id, intent := range s.intents {
		if !now.Before(intent.ExpiresAt) {
			delete(s.intents, id)
			n++
		}
	}
	return n, nil
}

// Len reports the number of intents held, expired or not.
func (s *MemoryIntentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.intents)
}
