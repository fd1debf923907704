package engine

// Unit tests for the verification workflow.
//
// The happy paths run against the real ledger, vault and identity service,
// with a capturing decrypter standing in for the async oracle so callbacks
// fire exactly when a test says so. Mock-backed cases cover error
// propagation across the ledger boundary.

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"attestor/internal/access"
	"attestor/internal/audit"
	"attestor/internal/crypto"
	idservice "attestor/internal/identity/service"
	idstore "attestor/internal/identity/store"
	"attestor/internal/platform/requesttime"
	"attestor/internal/verification/engine/mocks"
	"attestor/internal/verification/models"
	"attestor/internal/verification/store"
	"attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

const (
	ownerAddr    = domain.Address("0x00000000000000000000000000000000000000a1")
	identityAddr = domain.Address("0xabcd00000000000000000000000000000000ef12")
	strangerAddr = domain.Address("0x00000000000000000000000000000000000000c3")

	// register() stores credential 50; with testChallenge 100 the expected
	// proof is 5000 and the tolerance band is [4950, 5050].
	testChallenge = uint32(100)
)

// captureDecrypter records decryption jobs instead of running them, so
// tests control when and how often the callback fires.
type captureDecrypter struct {
	vault   *crypto.Vault
	handles []crypto.Handle
	cb      crypto.Callback
}

func (d *captureDecrypter) RequestDecryption(handles []crypto.Handle, cb crypto.Callback) error {
	d.handles = handles
	d.cb = cb
	return nil
}

// fire decrypts the captured handles with the oracle's own principal and
// invokes the callback, mirroring what the real oracle worker does.
func (d *captureDecrypter) fire(ctx context.Context) error {
	values := make([]uint64, 0, len(d.handles))
	for _, handle := range d.handles {
		value, err := d.vault.Open(handle, crypto.PrincipalOracle)
		if err != nil {
			return err
		}
		values = append(values, value)
	}
	d.cb(ctx, values)
	return nil
}

type EngineSuite struct {
	suite.Suite
	now        time.Time
	vault      *crypto.Vault
	ledger     *store.InMemoryLedger
	identities *idservice.Service
	registry   *access.Registry
	decrypter  *captureDecrypter
	engine     *Engine
}

func (s *EngineSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	vault, err := crypto.NewVault()
	s.Require().NoError(err)
	s.vault = vault

	registry, err := access.NewRegistry(ownerAddr)
	s.Require().NoError(err)
	s.registry = registry

	s.ledger = store.NewInMemoryLedger()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.identities = idservice.NewService(
		idstore.New(),
		s.vault,
		s.registry,
		s.ledger,
		audit.NewPublisher(audit.NewInMemoryStore()),
		logger,
	)
	s.decrypter = &captureDecrypter{vault: s.vault}
	s.engine = NewEngine(
		s.ledger,
		s.identities,
		s.vault,
		s.decrypter,
		s.registry,
		audit.NewPublisher(audit.NewInMemoryStore()),
		logger,
		WithChallengeSource(func() (uint32, error) { return testChallenge, nil }),
	)
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) ctxAt(t time.Time) context.Context {
	return requesttime.WithTime(context.Background(), t)
}

func (s *EngineSuite) register() {
	_, err := s.identities.Register(s.ctxAt(s.now), identityAddr, 50, 80)
	s.Require().NoError(err)
}

func (s *EngineSuite) request() domain.RequestID {
	info, err := s.engine.RequestVerification(s.ctxAt(s.now), identityAddr)
	s.Require().NoError(err)
	return info.ID
}

func (s *EngineSuite) assertCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, code), "expected code %s, got %v", code, err)
}

func (s *EngineSuite) TestRequestVerification() {
	s.register()

	info, err := s.engine.RequestVerification(s.ctxAt(s.now), identityAddr)
	s.Require().NoError(err)

	s.Equal(domain.RequestID(1), info.ID)
	s.Equal(identityAddr, info.Requester)
	s.False(info.IsCompleted)
	s.False(info.IsApproved)
	s.Equal(s.now, info.RequestedAt)
	s.Equal(s.now.Add(models.ChallengeValidityPeriod), info.ChallengeExpiresAt)
}

func (s *EngineSuite) TestRequestVerificationWithoutProof() {
	_, err := s.engine.RequestVerification(s.ctxAt(s.now), identityAddr)
	s.assertCode(err, dErrors.CodeNoActiveProof)
}

func (s *EngineSuite) TestRequestVerificationRevokedProof() {
	s.register()
	s.Require().NoError(s.registry.Authorize(context.Background(), ownerAddr, strangerAddr))
	s.Require().NoError(s.identities.Revoke(s.ctxAt(s.now), strangerAddr, identityAddr))

	_, err := s.engine.RequestVerification(s.ctxAt(s.now), identityAddr)
	s.assertCode(err, dErrors.CodeNoActiveProof)
}

func (s *EngineSuite) TestRequestVerificationExpiredProof() {
	s.register()

	later := s.now.AddDate(0, 0, 31)
	_, err := s.engine.RequestVerification(s.ctxAt(later), identityAddr)
	s.assertCode(err, dErrors.CodeProofExpired)
}

func (s *EngineSuite) TestRequestVerificationLimit() {
	s.register()

	for i := 0; i < models.MaxRequestsPerIdentity; i++ {
		_, err := s.engine.RequestVerification(s.ctxAt(s.now), identityAddr)
		s.Require().NoError(err)
	}

	_, err := s.engine.RequestVerification(s.ctxAt(s.now), identityAddr)
	s.assertCode(err, dErrors.CodeRequestLimitExceeded)
}

func (s *EngineSuite) TestRequestVerificationAlreadyVerified() {
	s.register()
	id := s.request()
	s.Require().NoError(s.engine.SubmitProof(s.ctxAt(s.now), identityAddr, id, 5000))
	s.Require().NoError(s.decrypter.fire(s.ctxAt(s.now)))

	_, err := s.engine.RequestVerification(s.ctxAt(s.now), identityAddr)
	s.assertCode(err, dErrors.CodeAlreadyVerified)
}

func (s *EngineSuite) TestSubmitProofApproved() {
	s.register()
	id := s.request()

	s.Require().NoError(s.engine.SubmitProof(s.ctxAt(s.now), identityAddr, id, 5030))
	s.Require().NoError(s.decrypter.fire(s.ctxAt(s.now)))

	info, err := s.engine.Request(s.ctxAt(s.now), id)
	s.Require().NoError(err)
	s.True(info.IsCompleted)
	s.True(info.IsApproved)

	status, err := s.identities.Status(s.ctxAt(s.now), identityAddr)
	s.Require().NoError(err)
	s.True(status.IsVerified)
}

func (s *EngineSuite) TestSubmitProofRejected() {
	s.register()
	id := s.request()

	s.Require().NoError(s.engine.SubmitProof(s.ctxAt(s.now), identityAddr, id, 5060))
	s.Require().NoError(s.decrypter.fire(s.ctxAt(s.now)))

	info, err := s.engine.Request(s.ctxAt(s.now), id)
	s.Require().NoError(err)
	s.True(info.IsCompleted)
	s.False(info.IsApproved)

	status, err := s.identities.Status(s.ctxAt(s.now), identityAddr)
	s.Require().NoError(err)
	s.False(status.IsVerified)
}

func (s *EngineSuite) TestSubmitProofToleranceBounds() {
	cases := []struct {
		name     string
		proof    uint32
		approved bool
	}{
		{"lower bound", 4950, true},
		{"upper bound", 5050, true},
		{"below band", 4949, false},
		{"above band", 5051, false},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.SetupTest()
			s.register()
			id := s.request()

			s.Require().NoError(s.engine.SubmitProof(s.ctxAt(s.now), identityAddr, id, tc.proof))
			s.Require().NoError(s.decrypter.fire(s.ctxAt(s.now)))

			info, err := s.engine.Request(s.ctxAt(s.now), id)
			s.Require().NoError(err)
			s.Equal(tc.approved, info.IsApproved)
		})
	}
}

func (s *EngineSuite) TestSubmitProofNotYourRequest() {
	s.register()
	id := s.request()

	err := s.engine.SubmitProof(s.ctxAt(s.now), strangerAddr, id, 5000)
	s.assertCode(err, dErrors.CodeNotYourRequest)

	err = s.engine.SubmitProof(s.ctxAt(s.now), identityAddr, domain.RequestID(99), 5000)
	s.assertCode(err, dErrors.CodeNotYourRequest)
}

func (s *EngineSuite) TestSubmitProofChallengeExpired() {
	s.register()
	id := s.request()

	// Submission exactly at the deadline is still accepted.
	atDeadline := s.now.Add(models.ChallengeValidityPeriod)
	s.Require().NoError(s.engine.SubmitProof(s.ctxAt(atDeadline), identityAddr, id, 5000))

	s.SetupTest()
	s.register()
	id = s.request()

	late := s.now.Add(models.ChallengeValidityPeriod + time.Second)
	err := s.engine.SubmitProof(s.ctxAt(late), identityAddr, id, 5000)
	s.assertCode(err, dErrors.CodeChallengeExpired)
}

func (s *EngineSuite) TestSubmitProofTwiceBeforeCallback() {
	s.register()
	id := s.request()

	s.Require().NoError(s.engine.SubmitProof(s.ctxAt(s.now), identityAddr, id, 5000))

	err := s.engine.SubmitProof(s.ctxAt(s.now), identityAddr, id, 5000)
	s.assertCode(err, dErrors.CodeAlreadySubmitted)
}

// flakyDecrypter fails a set number of enqueue attempts before handing
// off to the capturing decrypter.
type flakyDecrypter struct {
	failures int
	inner    *captureDecrypter
}

func (d *flakyDecrypter) RequestDecryption(handles []crypto.Handle, cb crypto.Callback) error {
	if d.failures > 0 {
		d.failures--
		return errors.New("decryption queue full")
	}
	return d.inner.RequestDecryption(handles, cb)
}

func (s *EngineSuite) TestSubmitProofRetryAfterQueueFailure() {
	s.register()

	flaky := &flakyDecrypter{failures: 1, inner: s.decrypter}
	eng := NewEngine(
		s.ledger,
		s.identities,
		s.vault,
		flaky,
		s.registry,
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithChallengeSource(func() (uint32, error) { return testChallenge, nil }),
	)

	info, err := eng.RequestVerification(s.ctxAt(s.now), identityAddr)
	s.Require().NoError(err)

	err = eng.SubmitProof(s.ctxAt(s.now), identityAddr, info.ID, 5030)
	s.assertCode(err, dErrors.CodeInternal)

	// The failed enqueue must leave the request open, not submitted.
	req, err := s.ledger.Find(s.ctxAt(s.now), info.ID)
	s.Require().NoError(err)
	s.Equal(models.StateOpen, req.State)

	s.Require().NoError(eng.SubmitProof(s.ctxAt(s.now), identityAddr, info.ID, 5030))
	s.Require().NoError(s.decrypter.fire(s.ctxAt(s.now)))

	result, err := eng.Request(s.ctxAt(s.now), info.ID)
	s.Require().NoError(err)
	s.True(result.IsCompleted)
	s.True(result.IsApproved)
}

func (s *EngineSuite) TestCallbackRetryAfterCompleteFailure() {
	ctrl := gomock.NewController(s.T())
	ledger := mocks.NewMockLedger(ctrl)
	s.register()

	eng := NewEngine(
		ledger,
		s.identities,
		s.vault,
		s.decrypter,
		s.registry,
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	open := &models.Request{
		ID:                 domain.RequestID(1),
		Requester:          identityAddr,
		State:              models.StateOpen,
		RequestedAt:        s.now,
		ChallengeExpiresAt: s.now.Add(models.ChallengeValidityPeriod),
	}
	ledger.EXPECT().Find(gomock.Any(), domain.RequestID(1)).Return(open, nil)
	ledger.EXPECT().RecordSubmission(gomock.Any(), domain.RequestID(1), gomock.Any(), s.now).Return(nil)
	s.Require().NoError(eng.SubmitProof(s.ctxAt(s.now), identityAddr, domain.RequestID(1), 5000))

	completed := &models.Request{ID: domain.RequestID(1), Requester: identityAddr, State: models.StateCompleted, IsApproved: true}
	gomock.InOrder(
		ledger.EXPECT().Complete(gomock.Any(), domain.RequestID(1), true).Return(nil, context.DeadlineExceeded),
		ledger.EXPECT().Complete(gomock.Any(), domain.RequestID(1), true).Return(completed, nil),
	)

	err := eng.HandleDecryption(s.ctxAt(s.now), domain.RequestID(1), testChallenge, 5000, 50)
	s.assertCode(err, dErrors.CodeInternal)

	// A transient completion failure keeps the callback retryable; only a
	// recorded completion consumes the pending entry.
	s.Require().NoError(eng.HandleDecryption(s.ctxAt(s.now), domain.RequestID(1), testChallenge, 5000, 50))

	err = eng.HandleDecryption(s.ctxAt(s.now), domain.RequestID(1), testChallenge, 5000, 50)
	s.assertCode(err, dErrors.CodeAlreadyProcessed)
}

func (s *EngineSuite) TestSubmitProofAfterCompletion() {
	s.register()
	id := s.request()

	s.Require().NoError(s.engine.SubmitProof(s.ctxAt(s.now), identityAddr, id, 5000))
	s.Require().NoError(s.decrypter.fire(s.ctxAt(s.now)))

	err := s.engine.SubmitProof(s.ctxAt(s.now), identityAddr, id, 5000)
	s.assertCode(err, dErrors.CodeAlreadyCompleted)
}

func (s *EngineSuite) TestDuplicateCallbackRejected() {
	s.register()
	id := s.request()

	s.Require().NoError(s.engine.SubmitProof(s.ctxAt(s.now), identityAddr, id, 5000))
	s.Require().NoError(s.engine.HandleDecryption(s.ctxAt(s.now), id, testChallenge, 5000, 50))

	err := s.engine.HandleDecryption(s.ctxAt(s.now), id, testChallenge, 5000, 50)
	s.assertCode(err, dErrors.CodeAlreadyProcessed)
}

func (s *EngineSuite) TestCallbackWithoutSubmission() {
	s.register()
	id := s.request()

	err := s.engine.HandleDecryption(s.ctxAt(s.now), id, testChallenge, 5000, 50)
	s.assertCode(err, dErrors.CodeAlreadyProcessed)
}

func (s *EngineSuite) TestVerifyAnonymously() {
	s.register()

	_, err := s.engine.VerifyAnonymously(s.ctxAt(s.now), strangerAddr, identityAddr)
	s.assertCode(err, dErrors.CodeUnauthorized)

	verified, err := s.engine.VerifyAnonymously(s.ctxAt(s.now), ownerAddr, identityAddr)
	s.Require().NoError(err)
	s.False(verified)

	id := s.request()
	s.Require().NoError(s.engine.SubmitProof(s.ctxAt(s.now), identityAddr, id, 5000))
	s.Require().NoError(s.decrypter.fire(s.ctxAt(s.now)))

	verified, err = s.engine.VerifyAnonymously(s.ctxAt(s.now), ownerAddr, identityAddr)
	s.Require().NoError(err)
	s.True(verified)

	// Expired proofs no longer verify, even after approval.
	later := s.now.AddDate(0, 0, 31)
	verified, err = s.engine.VerifyAnonymously(s.ctxAt(later), ownerAddr, identityAddr)
	s.Require().NoError(err)
	s.False(verified)

	// Unknown identities answer false rather than erroring.
	verified, err = s.engine.VerifyAnonymously(s.ctxAt(s.now), ownerAddr, strangerAddr)
	s.Require().NoError(err)
	s.False(verified)
}

func (s *EngineSuite) TestRenewalRestoresRequestBudget() {
	s.register()
	for i := 0; i < models.MaxRequestsPerIdentity; i++ {
		id := s.request()
		// Complete rejected so the identity stays unverified and eligible
		// for another request.
		s.Require().NoError(s.engine.SubmitProof(s.ctxAt(s.now), identityAddr, id, 9999))
		s.Require().NoError(s.decrypter.fire(s.ctxAt(s.now)))
	}
	_, err := s.engine.RequestVerification(s.ctxAt(s.now), identityAddr)
	s.assertCode(err, dErrors.CodeRequestLimitExceeded)

	// Renewal requires a verified identity, so flip the flag directly,
	// then renew and confirm the budget resets.
	s.Require().NoError(s.identities.MarkVerified(s.ctxAt(s.now), identityAddr))
	_, err = s.identities.Renew(s.ctxAt(s.now), identityAddr)
	s.Require().NoError(err)

	count, err := s.ledger.RequestCount(s.ctxAt(s.now), identityAddr)
	s.Require().NoError(err)
	s.Equal(0, count)
}

func (s *EngineSuite) TestStats() {
	s.register()
	stats, err := s.engine.Stats(s.ctxAt(s.now))
	s.Require().NoError(err)
	s.Equal(uint64(0), stats.TotalVerifications)
	s.Equal(uint64(0), stats.ActiveRequests)
	s.Equal(s.now, stats.CurrentTime)

	id := s.request()
	stats, err = s.engine.Stats(s.ctxAt(s.now))
	s.Require().NoError(err)
	s.Equal(uint64(1), stats.TotalVerifications)
	s.Equal(uint64(1), stats.ActiveRequests)

	s.Require().NoError(s.engine.SubmitProof(s.ctxAt(s.now), identityAddr, id, 5000))
	s.Require().NoError(s.decrypter.fire(s.ctxAt(s.now)))

	stats, err = s.engine.Stats(s.ctxAt(s.now))
	s.Require().NoError(err)
	s.Equal(uint64(1), stats.TotalVerifications)
	s.Equal(uint64(0), stats.ActiveRequests)
}

func (s *EngineSuite) TestRequestMissing() {
	_, err := s.engine.Request(context.Background(), domain.RequestID(404))
	s.assertCode(err, dErrors.CodeNotFound)
}

func (s *EngineSuite) TestLedgerErrorPropagation() {
	ctrl := gomock.NewController(s.T())
	ledger := mocks.NewMockLedger(ctrl)
	ledger.EXPECT().RequestCount(gomock.Any(), identityAddr).Return(0, context.DeadlineExceeded)

	s.register()
	eng := NewEngine(
		ledger,
		s.identities,
		s.vault,
		s.decrypter,
		s.registry,
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	_, err := eng.RequestVerification(s.ctxAt(s.now), identityAddr)
	s.assertCode(err, dErrors.CodeInternal)
}

func TestEvaluateProofWrapsAtModulus(t *testing.T) {
	// 100_000 * 50_000 overflows 32 bits: the product wraps to
	// 705_032_704 before the modulus applies, so the expectation is
	// 32_704 with a band of [32_377, 33_031].
	if !evaluateProof(100_000, 50_000, 32_704) {
		t.Fatal("expected wrapped expectation to pass")
	}
	if !evaluateProof(100_000, 50_000, 32_377) {
		t.Fatal("expected lower band edge to pass")
	}
	if evaluateProof(100_000, 50_000, 33_032) {
		t.Fatal("expected proof above the band to fail")
	}
}

func TestEvaluateProofClampsLowerBound(t *testing.T) {
	// A tiny expectation has zero tolerance; the lower bound clamps at
	// zero instead of underflowing.
	if !evaluateProof(1, 5, 5) {
		t.Fatal("expected exact proof to pass")
	}
	if evaluateProof(1, 5, 4) {
		t.Fatal("expected off-by-one proof to fail a zero-tolerance band")
	}
}
