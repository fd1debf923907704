package store

import (
	"context"
	"sync"
	"time"

	"attestor/internal/crypto"
	"attestor/internal/verification/models"
	"attestor/pkg/domain"
)

// InMemoryLedger keeps requests and their counters in memory. Request ids
// start at 1 and grow monotonically; the id counter doubles as the
// all-time verification total.
type InMemoryLedger struct {
	mu       sync.RWMutex
	requests map[domain.RequestID]*models.Request
	counts   map[domain.Address]int
	total    uint64
	active   uint64
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		requests: make(map[domain.RequestID]*models.Request),
		counts:   make(map[domain.Address]int),
	}
}

// Append assigns the next id to req, stores it, and bumps the requester's
// lifetime count and the active total. The assigned id is written back into
// req and returned.
func (l *InMemoryLedger) Append(_ context.Context, req *models.Request) (domain.RequestID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total++
	req.ID = domain.RequestID(l.total)

	cp := *req
	l.requests[cp.ID] = &cp
	l.counts[req.Requester]++
	l.active++
	return req.ID, nil
}

// Find returns a copy of the request with the given id.
func (l *InMemoryLedger) Find(_ context.Context, id domain.RequestID) (*models.Request, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	req, ok := l.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *req
	return &cp, nil
}

// RecordSubmission attaches a sealed proof to an open request and moves it
// to the submitted state. The state guard is atomic: a second submission
// loses regardless of interleaving.
func (l *InMemoryLedger) RecordSubmission(_ context.Context, id domain.RequestID, proof crypto.Handle, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	req, ok := l.requests[id]
	if !ok {
		return ErrNotFound
	}
	switch req.State {
	case models.StateCompleted:
		return ErrAlreadyCompleted
	case models.StateSubmitted:
		return ErrAlreadySubmitted
	}

	req.SubmittedProof = proof
	req.State = models.StateSubmitted
	req.SubmittedAt = at
	return nil
}

// ReopenSubmission reverts a submitted request to the open state and
// restores the placeholder proof handle. Used when queueing the decryption
// fails after the submission was recorded, so the requester can retry.
// Reopening an already-open request is a no-op.
func (l *InMemoryLedger) ReopenSubmission(_ context.Context, id domain.RequestID, proof crypto.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	req, ok := l.requests[id]
	if !ok {
		return ErrNotFound
	}
	if req.State == models.StateCompleted {
		return ErrAlreadyCompleted
	}

	req.SubmittedProof = proof
	req.State = models.StateOpen
	req.SubmittedAt = time.Time{}
	return nil
}

// Complete moves a submitted request to its terminal state, records the
// outcome, and releases its active slot. Completing twice fails with
// ErrAlreadyCompleted.
func (l *InMemoryLedger) Complete(_ context.Context, id domain.RequestID, approved bool) (*models.Request, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	req, ok := l.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	if req.State == models.StateCompleted {
		return nil, ErrAlreadyCompleted
	}

	req.State = models.StateCompleted
	req.IsApproved = approved
	if l.active > 0 {
		l.active--
	}
	cp := *req
	return &cp, nil
}

// RequestCount returns the identity's lifetime request count.
func (l *InMemoryLedger) RequestCount(_ context.Context, addr domain.Address) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counts[addr], nil
}

// ResetRequestCount zeroes the identity's lifetime count. Called by the
// credential service on renewal.
func (l *InMemoryLedger) ResetRequestCount(_ context.Context, addr domain.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counts, addr)
	return nil
}

// Stats returns the all-time and in-flight totals.
func (l *InMemoryLedger) Stats(_ context.Context) (total, active uint64, err error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total, l.active, nil
}
