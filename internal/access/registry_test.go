package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"attestor/internal/audit"
	"attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

const (
	owner    = domain.Address("0x00000000000000000000000000000000000000a1")
	verifier = domain.Address("0x00000000000000000000000000000000000000b2")
	stranger = domain.Address("0x00000000000000000000000000000000000000c3")
)

type RegistrySuite struct {
	suite.Suite
	registry   *Registry
	auditStore *audit.InMemoryStore
}

func (s *RegistrySuite) SetupTest() {
	s.auditStore = audit.NewInMemoryStore()
	registry, err := NewRegistry(owner, WithAuditor(audit.NewPublisher(s.auditStore)))
	s.Require().NoError(err)
	s.registry = registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) TestOwnerIsImplicitlyAuthorized() {
	s.True(s.registry.IsAuthorized(owner))
	s.False(s.registry.IsAuthorized(verifier))
}

func (s *RegistrySuite) TestAuthorize() {
	s.Run("owner can authorize", func() {
		s.Require().NoError(s.registry.Authorize(context.Background(), owner, verifier))
		s.True(s.registry.IsAuthorized(verifier))
	})

	s.Run("re-authorizing is a no-op", func() {
		s.Require().NoError(s.registry.Authorize(context.Background(), owner, verifier))
		events, err := s.auditStore.ListByIdentity(context.Background(), verifier)
		s.Require().NoError(err)
		s.Len(events, 1, "idempotent authorize must not emit twice")
	})

	s.Run("non-owner cannot authorize", func() {
		err := s.registry.Authorize(context.Background(), stranger, verifier)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("zero address rejected", func() {
		err := s.registry.Authorize(context.Background(), owner, domain.ZeroAddress)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *RegistrySuite) TestRevokeVerifier() {
	s.Require().NoError(s.registry.Authorize(context.Background(), owner, verifier))

	s.Run("owner cannot be revoked", func() {
		err := s.registry.RevokeVerifier(context.Background(), owner, owner)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		s.True(s.registry.IsAuthorized(owner))
	})

	s.Run("non-owner cannot revoke", func() {
		err := s.registry.RevokeVerifier(context.Background(), verifier, verifier)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("owner revokes a verifier", func() {
		s.Require().NoError(s.registry.RevokeVerifier(context.Background(), owner, verifier))
		s.False(s.registry.IsAuthorized(verifier))
	})

	s.Run("revoking an absent verifier is a no-op", func() {
		s.Require().NoError(s.registry.RevokeVerifier(context.Background(), owner, stranger))
	})
}

func (s *RegistrySuite) TestNewRegistryRejectsZeroOwner() {
	_, err := NewRegistry(domain.ZeroAddress)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
