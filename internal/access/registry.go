// Package access holds the owner and the set of authorized verifiers.
// Authorization is a capability check: the owner is always authorized even
// when not in the set.
package access

import (
	"context"
	"log/slog"
	"sync"

	"attestor/internal/audit"
	"attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

// Registry gates administrative and verification-reading operations.
// Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	owner     domain.Address
	verifiers map[domain.Address]struct{}
	auditor   *audit.Publisher
	logger    *slog.Logger
}

// Option configures the Registry.
type Option func(*Registry)

// WithAuditor sets the audit publisher for verifier changes.
func WithAuditor(auditor *audit.Publisher) Option {
	return func(r *Registry) {
		r.auditor = auditor
	}
}

// WithLogger sets the logger instance for the registry.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry fixes the owner at construction. There is no transfer
// operation.
func NewRegistry(owner domain.Address, opts ...Option) (*Registry, error) {
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "owner address cannot be zero")
	}
	r := &Registry{
		owner:     owner,
		verifiers: make(map[domain.Address]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Owner returns the fixed owner address.
func (r *Registry) Owner() domain.Address {
	return r.owner
}

// Authorize adds a verifier. Owner-only; re-authorizing is a no-op.
func (r *Registry) Authorize(ctx context.Context, caller, verifier domain.Address) error {
	if caller != r.owner {
		return dErrors.New(dErrors.CodeUnauthorized, "only the owner can authorize verifiers")
	}
	if verifier.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "verifier address cannot be zero")
	}

	r.mu.Lock()
	_, existed := r.verifiers[verifier]
	r.verifiers[verifier] = struct{}{}
	r.mu.Unlock()

	if !existed {
		r.log(ctx, "verifier authorized", "verifier", verifier)
		r.emit(ctx, audit.Event{
			Identity: verifier,
			Action:   string(audit.EventVerifierAuthorized),
		})
	}
	return nil
}

// RevokeVerifier removes a verifier. Owner-only; the owner itself can never
// be revoked. Revoking an absent verifier is a no-op.
func (r *Registry) RevokeVerifier(ctx context.Context, caller, verifier domain.Address) error {
	if caller != r.owner {
		return dErrors.New(dErrors.CodeUnauthorized, "only the owner can revoke verifiers")
	}
	if verifier == r.owner {
		return dErrors.New(dErrors.CodeInvalidInput, "owner cannot be revoked")
	}

	r.mu.Lock()
	_, existed := r.verifiers[verifier]
	delete(r.verifiers, verifier)
	r.mu.Unlock()

	if existed {
		r.log(ctx, "verifier revoked", "verifier", verifier)
		r.emit(ctx, audit.Event{
			Identity: verifier,
			Action:   string(audit.EventVerifierRevoked),
		})
	}
	return nil
}

// IsAuthorized reports whether addr is the owner or an authorized verifier.
func (r *Registry) IsAuthorized(addr domain.Address) bool {
	if addr == r.owner {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.verifiers[addr]
	return ok
}

func (r *Registry) emit(ctx context.Context, event audit.Event) {
	if r.auditor == nil {
		return
	}
	_ = r.auditor.Emit(ctx, event)
}

func (r *Registry) log(ctx context.Context, msg string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.InfoContext(ctx, msg, args...)
}
