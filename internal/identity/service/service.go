package service

import (
	"context"
	"errors"
	"log/slog"

	"attestor/internal/audit"
	"attestor/internal/crypto"
	"attestor/internal/identity/models"
	"attestor/internal/identity/store"
	"attestor/internal/platform/metrics"
	"attestor/internal/platform/middleware"
	"attestor/internal/platform/requesttime"
	"attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

// Store defines the persistence interface for identity records.
// Error Contract:
// - Find returns store.ErrNotFound when no record exists
// - Other methods return nil on success or wrapped errors on failure
type Store interface {
	Save(ctx context.Context, record *models.Record) error
	Find(ctx context.Context, addr domain.Address) (*models.Record, error)
	Update(ctx context.Context, record *models.Record) error
}

// Vault is the encryption capability the service seals credentials with.
type Vault interface {
	Seal(value uint64) (crypto.Handle, error)
	Grant(handle crypto.Handle, principal crypto.Principal) error
}

// Authorizer gates verifier-only operations.
type Authorizer interface {
	IsAuthorized(addr domain.Address) bool
}

// RequestCounter exposes the per-identity request count reset performed on
// renewal. Implemented by the verification ledger.
type RequestCounter interface {
	ResetRequestCount(ctx context.Context, addr domain.Address) error
}

type Option func(*Service)

// Service owns the credential records: registration, status reads, renewal,
// revocation, and expiry cleanup.
type Service struct {
	store    Store
	vault    Vault
	access   Authorizer
	counters RequestCounter
	auditor  *audit.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewService(store Store, vault Vault, access Authorizer, counters RequestCounter, auditor *audit.Publisher, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:    store,
		vault:    vault,
		access:   access,
		counters: counters,
		auditor:  auditor,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// WithMetrics sets the metrics instance for the service
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Register encrypts the credential and score and creates or replaces the
// identity's record. Re-registration resets verification status even when
// the identity was previously verified.
func (s *Service) Register(ctx context.Context, addr domain.Address, credential uint32, score uint8) (*models.Status, error) {
	if addr.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identity address cannot be zero")
	}
	if credential == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "credential cannot be zero")
	}
	if score < models.MinimumScore {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "score below minimum")
	}

	credHandle, err := s.vault.Seal(uint64(credential))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to seal credential")
	}
	scoreHandle, err := s.vault.Seal(uint64(score))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to seal score")
	}
	// The service and the identity itself may open both values; nobody else.
	for _, grant := range []struct {
		handle    crypto.Handle
		principal crypto.Principal
	}{
		{credHandle, crypto.PrincipalService},
		{credHandle, crypto.Principal(addr)},
		{scoreHandle, crypto.PrincipalService},
		{scoreHandle, crypto.Principal(addr)},
	} {
		if err := s.vault.Grant(grant.handle, grant.principal); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to grant access")
		}
	}

	now := requesttime.Now(ctx)
	record := &models.Record{
		Address:             addr,
		EncryptedCredential: credHandle,
		EncryptedScore:      scoreHandle,
		IsActive:            true,
		IsVerified:          false,
		RegisteredAt:        now,
		ExpiresAt:           now.Add(models.ProofValidityPeriod),
	}
	if err := s.store.Save(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save identity record")
	}

	s.emitAudit(ctx, audit.Event{
		Identity: addr,
		Action:   string(audit.EventProofRegistered),
		Client:   middleware.GetClientFingerprint(ctx),
	})
	if s.metrics != nil {
		s.metrics.IncrementIdentitiesRegistered()
	}
	s.logger.InfoContext(ctx, "identity proof registered",
		"identity", addr,
		"expires_at", record.ExpiresAt,
		"request_id", middleware.GetRequestID(ctx),
	)

	status := statusOf(record)
	return &status, nil
}

// Status is a pure read. Missing records present as the zero status.
func (s *Service) Status(ctx context.Context, addr domain.Address) (*models.Status, error) {
	record, err := s.store.Find(ctx, addr)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &models.Status{}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read identity record")
	}
	status := statusOf(record)
	return &status, nil
}

// Renew extends a verified identity's validity window and resets its
// verification request counter.
func (s *Service) Renew(ctx context.Context, addr domain.Address) (*models.Status, error) {
	record, err := s.store.Find(ctx, addr)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotEligible, "no identity record to renew")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read identity record")
	}

	now := requesttime.Now(ctx)
	if !record.IsActive || record.IsExpired(now) || !record.IsVerified {
		return nil, dErrors.New(dErrors.CodeNotEligible, "renewal requires an active, unexpired, verified record")
	}

	record.ExpiresAt = now.Add(models.ProofValidityPeriod)
	if err := s.store.Update(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to renew identity record")
	}
	if err := s.counters.ResetRequestCount(ctx, addr); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset request counter")
	}

	s.emitAudit(ctx, audit.Event{
		Identity: addr,
		Action:   string(audit.EventProofRenewed),
	})
	if s.metrics != nil {
		s.metrics.IncrementIdentitiesRenewed()
	}

	status := statusOf(record)
	return &status, nil
}

// Revoke deactivates an identity. Verifier-only. Revoking an unregistered
// identity is a no-op-safe flag flip: nothing is stored, the event still
// fires.
func (s *Service) Revoke(ctx context.Context, caller, addr domain.Address) error {
	if !s.access.IsAuthorized(caller) {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not an authorized verifier")
	}

	record, err := s.store.Find(ctx, addr)
	switch {
	case err == nil:
		record.IsVerified = false
		record.IsActive = false
		if err := s.store.Update(ctx, record); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke identity record")
		}
	case errors.Is(err, store.ErrNotFound):
		// Nothing stored; the flags are already logically false.
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read identity record")
	}

	s.emitAudit(ctx, audit.Event{
		Identity: addr,
		Action:   string(audit.EventProofRevoked),
	})
	if s.metrics != nil {
		s.metrics.IncrementIdentitiesRevoked()
	}
	s.logger.InfoContext(ctx, "identity proof revoked",
		"identity", addr,
		"verifier", caller,
		"request_id", middleware.GetRequestID(ctx),
	)
	return nil
}

// CleanupExpired deactivates every listed identity whose validity window has
// closed. Identities that are missing, already inactive, or not yet expired
// are silently skipped. Returns the number of records deactivated.
func (s *Service) CleanupExpired(ctx context.Context, addrs []domain.Address) (int, error) {
	now := requesttime.Now(ctx)
	swept := 0
	for _, addr := range addrs {
		record, err := s.store.Find(ctx, addr)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return swept, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read identity record")
		}
		if !record.IsActive || !record.IsExpired(now) {
			continue
		}
		record.IsActive = false
		if err := s.store.Update(ctx, record); err != nil {
			return swept, dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate identity record")
		}
		swept++
		s.emitAudit(ctx, audit.Event{
			Identity: addr,
			Action:   string(audit.EventProofExpired),
		})
	}
	if swept > 0 && s.metrics != nil {
		s.metrics.AddIdentitiesSwept(swept)
	}
	return swept, nil
}

// Record returns the raw identity record, ciphertext handles included.
// Used by the verification engine; transport code must go through Status.
func (s *Service) Record(ctx context.Context, addr domain.Address) (*models.Record, error) {
	record, err := s.store.Find(ctx, addr)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read identity record")
	}
	return record, nil
}

// MarkVerified flips the verified flag after an approved verification
// completion. Called by the verification engine only.
func (s *Service) MarkVerified(ctx context.Context, addr domain.Address) error {
	record, err := s.store.Find(ctx, addr)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read identity record")
	}
	record.IsVerified = true
	if err := s.store.Update(ctx, record); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark identity verified")
	}
	return nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	_ = s.auditor.Emit(ctx, event)
}

func statusOf(record *models.Record) models.Status {
	return models.Status{
		IsActive:     record.IsActive,
		IsVerified:   record.IsVerified,
		ExpiresAt:    record.ExpiresAt,
		RegisteredAt: record.RegisteredAt,
	}
}
