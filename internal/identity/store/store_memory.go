package store

import (
	"context"
	"sync"

	"attestor/internal/identity/models"
	"attestor/pkg/domain"
)

// InMemoryStore keeps identity records in memory for the process lifetime.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[domain.Address]*models.Record
}

// New constructs an empty in-memory identity store.
func New() *InMemoryStore {
	return &InMemoryStore{records: make(map[domain.Address]*models.Record)}
}

// Save creates or overwrites the record for its address wholesale.
func (s *InMemoryStore) Save(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyRecord := *record
	s.records[record.Address] = &copyRecord
	return nil
}

// Find returns a copy of the record for the address.
func (s *InMemoryStore) Find(_ context.Context, addr domain.Address) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[addr]
	if !ok {
		return nil, ErrNotFound
	}
	copyRecord := *record
	return &copyRecord, nil
}

// Addresses lists every stored address. The sweep worker walks this list
// to find expired records.
func (s *InMemoryStore) Addresses(_ context.Context) ([]domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addrs := make([]domain.Address, 0, len(s.records))
	for addr := range s.records {
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// Update replaces an existing record in place.
func (s *InMemoryStore) Update(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.Address]; !ok {
		return ErrNotFound
	}
	copyRecord := *record
	s.records[record.Address] = &copyRecord
	return nil
}
