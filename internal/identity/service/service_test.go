package service

// Unit tests for the identity service.
//
// Lifecycle behavior runs against the real in-memory store and vault;
// mock-backed cases cover error propagation across the store boundary.

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"attestor/internal/access"
	"attestor/internal/audit"
	"attestor/internal/crypto"
	"attestor/internal/identity/models"
	"attestor/internal/identity/service/mocks"
	"attestor/internal/identity/store"
	"attestor/internal/platform/requesttime"
	"attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

const (
	ownerAddr    = domain.Address("0x00000000000000000000000000000000000000a1")
	identityAddr = domain.Address("0xabcd00000000000000000000000000000000ef12")
	verifierAddr = domain.Address("0x00000000000000000000000000000000000000b2")
)

type ServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	counters   *mocks.MockRequestCounter
	store      *store.InMemoryStore
	vault      *crypto.Vault
	registry   *access.Registry
	auditStore *audit.InMemoryStore
	service    *Service
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.counters = mocks.NewMockRequestCounter(s.ctrl)
	s.store = store.New()

	vault, err := crypto.NewVault()
	s.Require().NoError(err)
	s.vault = vault

	registry, err := access.NewRegistry(ownerAddr)
	s.Require().NoError(err)
	s.Require().NoError(registry.Authorize(context.Background(), ownerAddr, verifierAddr))
	s.registry = registry

	s.auditStore = audit.NewInMemoryStore()
	s.service = NewService(
		s.store,
		s.vault,
		s.registry,
		s.counters,
		audit.NewPublisher(s.auditStore),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) ctxAt(t time.Time) context.Context {
	return requesttime.WithTime(context.Background(), t)
}

func (s *ServiceSuite) register(ctx context.Context) *models.Status {
	status, err := s.service.Register(ctx, identityAddr, 50, 80)
	s.Require().NoError(err)
	return status
}

func (s *ServiceSuite) TestRegister() {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	status := s.register(s.ctxAt(now))

	s.True(status.IsActive)
	s.False(status.IsVerified)
	s.Equal(now, status.RegisteredAt)
	s.Equal(now.Add(models.ProofValidityPeriod), status.ExpiresAt)

	events, err := s.auditStore.ListByIdentity(context.Background(), identityAddr)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventProofRegistered), events[0].Action)
}

func (s *ServiceSuite) TestRegisterValidation() {
	s.Run("score below minimum", func() {
		_, err := s.service.Register(context.Background(), identityAddr, 50, 74)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("zero credential", func() {
		_, err := s.service.Register(context.Background(), identityAddr, 0, 80)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("zero address", func() {
		_, err := s.service.Register(context.Background(), domain.ZeroAddress, 50, 80)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestReRegistrationResetsVerification() {
	ctx := context.Background()
	s.register(ctx)
	s.Require().NoError(s.service.MarkVerified(ctx, identityAddr))

	status, err := s.service.Status(ctx, identityAddr)
	s.Require().NoError(err)
	s.True(status.IsVerified)

	status = s.register(ctx)
	s.False(status.IsVerified, "re-registration must reset verification status")
}

func (s *ServiceSuite) TestStatusMissingRecord() {
	status, err := s.service.Status(context.Background(), identityAddr)
	s.Require().NoError(err)
	s.Equal(&models.Status{}, status, "missing records present as the zero status")
}

func (s *ServiceSuite) TestRenew() {
	registeredAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.register(s.ctxAt(registeredAt))
	s.Require().NoError(s.service.MarkVerified(context.Background(), identityAddr))

	s.counters.EXPECT().ResetRequestCount(gomock.Any(), identityAddr).Return(nil)

	renewedAt := registeredAt.Add(10 * 24 * time.Hour)
	status, err := s.service.Renew(s.ctxAt(renewedAt), identityAddr)
	s.Require().NoError(err)
	s.Equal(renewedAt.Add(models.ProofValidityPeriod), status.ExpiresAt,
		"expiry extends by exactly the validity period from the renewal instant")
	s.True(status.IsVerified, "renewal must not alter verification status")
}

func (s *ServiceSuite) TestRenewNotEligible() {
	s.Run("missing record", func() {
		_, err := s.service.Renew(context.Background(), identityAddr)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotEligible))
	})

	s.Run("unverified record", func() {
		s.register(context.Background())
		_, err := s.service.Renew(context.Background(), identityAddr)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotEligible))
	})

	s.Run("expired record", func() {
		registeredAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		s.register(s.ctxAt(registeredAt))
		s.Require().NoError(s.service.MarkVerified(context.Background(), identityAddr))

		late := registeredAt.Add(models.ProofValidityPeriod + time.Second)
		_, err := s.service.Renew(s.ctxAt(late), identityAddr)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotEligible))
	})
}

func (s *ServiceSuite) TestRevoke() {
	s.Run("unauthorized caller", func() {
		err := s.service.Revoke(context.Background(), identityAddr, identityAddr)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("verifier revokes a registered identity", func() {
		s.register(context.Background())
		s.Require().NoError(s.service.MarkVerified(context.Background(), identityAddr))

		s.Require().NoError(s.service.Revoke(context.Background(), verifierAddr, identityAddr))

		status, err := s.service.Status(context.Background(), identityAddr)
		s.Require().NoError(err)
		s.False(status.IsActive)
		s.False(status.IsVerified)
	})

	s.Run("revoking an unregistered identity is a safe no-op", func() {
		other := domain.Address("0x1111000000000000000000000000000000002222")
		s.Require().NoError(s.service.Revoke(context.Background(), verifierAddr, other))

		events, err := s.auditStore.ListByIdentity(context.Background(), other)
		s.Require().NoError(err)
		s.Require().Len(events, 1, "the revocation event still fires")
		s.Equal(string(audit.EventProofRevoked), events[0].Action)
	})
}

func (s *ServiceSuite) TestCleanupExpiredMixedList() {
	registeredAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fresh := domain.Address("0x1111000000000000000000000000000000002222")
	missing := domain.Address("0x3333000000000000000000000000000000004444")

	s.register(s.ctxAt(registeredAt))
	_, err := s.service.Register(s.ctxAt(registeredAt.Add(20*24*time.Hour)), fresh, 51, 90)
	s.Require().NoError(err)

	// identityAddr is past its window, fresh is not, missing never existed.
	sweepAt := registeredAt.Add(models.ProofValidityPeriod + time.Minute)
	swept, err := s.service.CleanupExpired(s.ctxAt(sweepAt), []domain.Address{identityAddr, fresh, missing})
	s.Require().NoError(err)
	s.Equal(1, swept)

	status, err := s.service.Status(context.Background(), identityAddr)
	s.Require().NoError(err)
	s.False(status.IsActive)

	status, err = s.service.Status(context.Background(), fresh)
	s.Require().NoError(err)
	s.True(status.IsActive, "unexpired identities are left untouched")
}

// =============================================================================
// Error propagation across the store boundary
// =============================================================================

func TestRegisterStoreErrorPropagation(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockStore(ctrl)
	vault, err := crypto.NewVault()
	if err != nil {
		t.Fatal(err)
	}
	registry, err := access.NewRegistry(ownerAddr)
	if err != nil {
		t.Fatal(err)
	}
	svc := NewService(mockStore, vault, registry, mocks.NewMockRequestCounter(ctrl), nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	mockStore.EXPECT().Save(gomock.Any(), gomock.Any()).Return(context.DeadlineExceeded)

	_, err = svc.Register(context.Background(), identityAddr, 50, 80)
	if !dErrors.HasCode(err, dErrors.CodeInternal) {
		t.Fatalf("expected CodeInternal, got %v", err)
	}
}
