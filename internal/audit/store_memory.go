package audit

import (
	"context"
	"sync"

	"attestor/pkg/domain"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[domain.Address][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[domain.Address][]Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[domain.Address][]Event)
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.Identity] = append(s.events[event.Identity], event)
	return nil
}

func (s *InMemoryStore) ListByIdentity(_ context.Context, identity domain.Address) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events[identity]...), nil
}
