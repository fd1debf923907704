// Package engine runs the challenge/proof verification workflow.
//
// A requester with an active credential proof asks for verification and
// receives a random challenge, sealed so only the requester, the service
// and the decryption oracle can read it. The requester computes a proof
// from the challenge and their credential and submits it. The encrypted
// triple (challenge, proof, credential) is handed to the decryption
// oracle; its callback evaluates the proof rule and completes the request.
package engine

//go:generate mockgen -source=engine.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"attestor/internal/audit"
	"attestor/internal/crypto"
	idmodels "attestor/internal/identity/models"
	idstore "attestor/internal/identity/store"
	"attestor/internal/platform/metrics"
	"attestor/internal/platform/middleware"
	"attestor/internal/platform/requesttime"
	"attestor/internal/platform/tracer"
	"attestor/internal/verification/models"
	"attestor/internal/verification/store"
	"attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

// Ledger is the request table the engine records against.
type Ledger interface {
	Append(ctx context.Context, req *models.Request) (domain.RequestID, error)
	Find(ctx context.Context, id domain.RequestID) (*models.Request, error)
	RecordSubmission(ctx context.Context, id domain.RequestID, proof crypto.Handle, at time.Time) error
	ReopenSubmission(ctx context.Context, id domain.RequestID, proof crypto.Handle) error
	Complete(ctx context.Context, id domain.RequestID, approved bool) (*models.Request, error)
	RequestCount(ctx context.Context, addr domain.Address) (int, error)
	Stats(ctx context.Context) (total, active uint64, err error)
}

// Credentials is the slice of the identity service the engine needs.
type Credentials interface {
	Record(ctx context.Context, addr domain.Address) (*idmodels.Record, error)
	MarkVerified(ctx context.Context, addr domain.Address) error
}

// Vault seals values and manages per-handle access.
type Vault interface {
	Seal(value uint64) (crypto.Handle, error)
	Grant(handle crypto.Handle, principal crypto.Principal) error
}

// Decrypter queues ciphertext handles for asynchronous decryption.
type Decrypter interface {
	RequestDecryption(handles []crypto.Handle, callback crypto.Callback) error
}

// Authorizer gates the anonymous check endpoint.
type Authorizer interface {
	IsAuthorized(addr domain.Address) bool
}

// pendingRequest tracks an in-flight decryption so the callback can be
// validated and correlated back to its requester.
type pendingRequest struct {
	requester   domain.Address
	submittedAt time.Time
}

// Engine coordinates the ledger, the vault and the decryption oracle.
type Engine struct {
	ledger      Ledger
	credentials Credentials
	vault       Vault
	decrypter   Decrypter
	access      Authorizer
	auditor     *audit.Publisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      tracer.Tracer
	challenge   func() (uint32, error)

	mu      sync.Mutex
	pending map[domain.RequestID]pendingRequest
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithTracer(t tracer.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithChallengeSource overrides the random challenge generator. Tests use
// this for deterministic challenge values.
func WithChallengeSource(source func() (uint32, error)) Option {
	return func(e *Engine) { e.challenge = source }
}

func NewEngine(
	ledger Ledger,
	credentials Credentials,
	vault Vault,
	decrypter Decrypter,
	access Authorizer,
	auditor *audit.Publisher,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		ledger:      ledger,
		credentials: credentials,
		vault:       vault,
		decrypter:   decrypter,
		access:      access,
		auditor:     auditor,
		logger:      logger,
		tracer:      tracer.NewNoop(),
		challenge:   crypto.RandomChallenge,
		pending:     make(map[domain.RequestID]pendingRequest),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// RequestVerification opens a verification request for the caller and
// issues a fresh random challenge. The challenge is readable by the
// caller, the service and the oracle; nobody else.
func (e *Engine) RequestVerification(ctx context.Context, requester domain.Address) (_ *models.Info, err error) {
	ctx, span := e.tracer.Start(ctx, tracer.SpanRequestVerification,
		tracer.String(tracer.AttrRequester, string(requester)),
	)
	defer func() { span.End(err) }()

	now := requesttime.Now(ctx)

	record, err := e.credentials.Record(ctx, requester)
	if err != nil {
		if errors.Is(err, idstore.ErrNotFound) {
			return nil, e.reject(span, dErrors.CodeNoActiveProof, "no credential proof registered")
		}
		return nil, err
	}
	if !record.IsActive {
		return nil, e.reject(span, dErrors.CodeNoActiveProof, "credential proof is revoked")
	}
	if record.IsExpired(now) {
		return nil, e.reject(span, dErrors.CodeProofExpired, "credential proof has expired")
	}

	count, err := e.ledger.RequestCount(ctx, requester)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read request count")
	}
	if count >= models.MaxRequestsPerIdentity {
		return nil, e.reject(span, dErrors.CodeRequestLimitExceeded, "verification request limit reached")
	}
	if record.IsVerified {
		return nil, e.reject(span, dErrors.CodeAlreadyVerified, "identity is already verified")
	}

	challenge, err := e.challenge()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate challenge")
	}
	challengeHandle, err := e.vault.Seal(uint64(challenge))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to seal challenge")
	}
	for _, principal := range []crypto.Principal{
		crypto.PrincipalService,
		crypto.Principal(requester),
		crypto.PrincipalOracle,
	} {
		if err := e.vault.Grant(challengeHandle, principal); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to grant challenge access")
		}
	}
	span.AddEvent(tracer.EventChallengeIssued)

	// Placeholder ciphertext so the request never carries an empty proof
	// slot. Replaced on submission, never decrypted.
	zeroHandle, err := e.vault.Seal(0)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to seal placeholder proof")
	}
	if err := e.vault.Grant(zeroHandle, crypto.PrincipalService); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to grant placeholder access")
	}

	req := &models.Request{
		Requester:          requester,
		EncryptedChallenge: challengeHandle,
		SubmittedProof:     zeroHandle,
		State:              models.StateOpen,
		RequestedAt:        now,
		ChallengeExpiresAt: now.Add(models.ChallengeValidityPeriod),
	}
	id, err := e.ledger.Append(ctx, req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record verification request")
	}
	span.SetAttributes(tracer.Int64(tracer.AttrRequestID, int64(id)))

	e.emitAudit(ctx, audit.Event{
		Identity:  requester,
		RequestID: id,
		Action:    string(audit.EventRequestCreated),
		Client:    middleware.GetClientFingerprint(ctx),
	})
	if e.metrics != nil {
		e.metrics.IncrementRequestsCreated()
		e.metrics.IncrementActiveRequests()
	}
	e.logger.InfoContext(ctx, "verification request opened",
		"requester", requester,
		"verification_id", id,
		"challenge_expires_at", req.ChallengeExpiresAt,
		"request_id", middleware.GetRequestID(ctx),
	)

	info := models.InfoOf(req)
	return &info, nil
}

// SubmitProof seals the caller's proof value, attaches it to the request
// and queues the encrypted triple for oracle decryption. The request
// completes later, when the callback arrives.
func (e *Engine) SubmitProof(ctx context.Context, caller domain.Address, id domain.RequestID, proof uint32) (err error) {
	ctx, span := e.tracer.Start(ctx, tracer.SpanSubmitProof,
		tracer.String(tracer.AttrRequester, string(caller)),
		tracer.Int64(tracer.AttrRequestID, int64(id)),
	)
	defer func() { span.End(err) }()

	req, err := e.ledger.Find(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return e.reject(span, dErrors.CodeNotYourRequest, "no such request for this caller")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read verification request")
	}
	if req.Requester != caller {
		return e.reject(span, dErrors.CodeNotYourRequest, "request belongs to another identity")
	}
	if req.Completed() {
		return e.reject(span, dErrors.CodeAlreadyCompleted, "request has already been completed")
	}
	if req.State == models.StateSubmitted {
		return e.reject(span, dErrors.CodeAlreadySubmitted, "proof already submitted, awaiting decryption")
	}

	now := requesttime.Now(ctx)
	if req.ChallengeExpired(now) {
		return e.reject(span, dErrors.CodeChallengeExpired, "challenge submission window has closed")
	}

	record, err := e.credentials.Record(ctx, caller)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read credential record")
	}

	proofHandle, err := e.vault.Seal(uint64(proof))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seal proof")
	}
	for _, principal := range []crypto.Principal{
		crypto.PrincipalService,
		crypto.Principal(caller),
		crypto.PrincipalOracle,
	} {
		if err := e.vault.Grant(proofHandle, principal); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to grant proof access")
		}
	}
	// The oracle reads the credential only for this decryption round.
	if err := e.vault.Grant(record.EncryptedCredential, crypto.PrincipalOracle); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to grant credential access")
	}

	if err := e.ledger.RecordSubmission(ctx, id, proofHandle, now); err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyCompleted):
			return e.reject(span, dErrors.CodeAlreadyCompleted, "request has already been completed")
		case errors.Is(err, store.ErrAlreadySubmitted):
			return e.reject(span, dErrors.CodeAlreadySubmitted, "proof already submitted, awaiting decryption")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record proof submission")
	}

	e.mu.Lock()
	e.pending[id] = pendingRequest{requester: caller, submittedAt: now}
	e.mu.Unlock()

	handles := []crypto.Handle{req.EncryptedChallenge, proofHandle, record.EncryptedCredential}
	if err := e.decrypter.RequestDecryption(handles, func(cbCtx context.Context, values []uint64) {
		if cbErr := e.HandleDecryption(cbCtx, id, uint32(values[0]), uint32(values[1]), uint32(values[2])); cbErr != nil {
			e.logger.ErrorContext(cbCtx, "decryption callback failed",
				"verification_id", id,
				"error", cbErr,
			)
		}
	}); err != nil {
		e.mu.Lock()
		delete(e.pending, id)
		e.mu.Unlock()
		// Revert to the pre-submission state so the caller can retry; a
		// request left in Submitted with no queued job would never
		// complete. req still holds the placeholder proof handle.
		if revertErr := e.ledger.ReopenSubmission(ctx, id, req.SubmittedProof); revertErr != nil {
			e.logger.ErrorContext(ctx, "failed to reopen request after queue failure",
				"verification_id", id,
				"error", revertErr,
			)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to queue decryption")
	}
	span.AddEvent(tracer.EventDecryptionQueued)

	e.emitAudit(ctx, audit.Event{
		Identity:  caller,
		RequestID: id,
		Action:    string(audit.EventProofSubmitted),
		Client:    middleware.GetClientFingerprint(ctx),
	})
	if e.metrics != nil {
		e.metrics.IncrementProofsSubmitted()
		e.metrics.IncrementOracleJobs()
	}
	e.logger.InfoContext(ctx, "proof submitted",
		"requester", caller,
		"verification_id", id,
		"request_id", middleware.GetRequestID(ctx),
	)
	return nil
}

// HandleDecryption is the oracle callback. It evaluates the proof rule
// over the decrypted triple and completes the request. A callback for a
// request that is not awaiting one is rejected.
func (e *Engine) HandleDecryption(ctx context.Context, id domain.RequestID, challenge, proof, credential uint32) (err error) {
	ctx, span := e.tracer.Start(ctx, tracer.SpanDecryptionCallback,
		tracer.Int64(tracer.AttrRequestID, int64(id)),
	)
	defer func() { span.End(err) }()

	e.mu.Lock()
	entry, ok := e.pending[id]
	e.mu.Unlock()
	if !ok {
		return e.reject(span, dErrors.CodeAlreadyProcessed, "no decryption pending for this request")
	}

	approved := evaluateProof(challenge, credential, proof)
	if _, err := e.ledger.Complete(ctx, id, approved); err != nil {
		if errors.Is(err, store.ErrAlreadyCompleted) {
			e.mu.Lock()
			delete(e.pending, id)
			e.mu.Unlock()
			return e.reject(span, dErrors.CodeAlreadyProcessed, "request was already completed")
		}
		// Keep the pending entry so a retried callback still correlates
		// back to its requester.
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to complete verification request")
	}
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
	span.SetAttributes(tracer.Bool(tracer.AttrApproved, approved))

	outcome := audit.OutcomeRejected
	if approved {
		outcome = audit.OutcomeApproved
		if err := e.credentials.MarkVerified(ctx, entry.requester); err != nil {
			return err
		}
	}

	e.emitAudit(ctx, audit.Event{
		Identity:  entry.requester,
		RequestID: id,
		Action:    string(audit.EventRequestCompleted),
		Outcome:   outcome,
	})
	if e.metrics != nil {
		e.metrics.IncrementRequestsCompleted(outcome)
		e.metrics.DecrementActiveRequests()
		e.metrics.DecrementOracleJobs()
		e.metrics.ObserveDecryptionLatency(requesttime.Now(ctx).Sub(entry.submittedAt).Seconds())
	}
	e.logger.InfoContext(ctx, "verification request completed",
		"requester", entry.requester,
		"verification_id", id,
		"approved", approved,
	)
	return nil
}

// Request returns the public view of a ledger entry.
func (e *Engine) Request(ctx context.Context, id domain.RequestID) (*models.Info, error) {
	req, err := e.ledger.Find(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no such verification request")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read verification request")
	}
	info := models.InfoOf(req)
	return &info, nil
}

// VerifyAnonymously answers a yes/no verification question about an
// identity without exposing anything else. Authorized verifiers only.
func (e *Engine) VerifyAnonymously(ctx context.Context, caller, addr domain.Address) (_ bool, err error) {
	ctx, span := e.tracer.Start(ctx, tracer.SpanAnonymousCheck,
		tracer.String(tracer.AttrRequester, string(caller)),
	)
	defer func() { span.End(err) }()

	if !e.access.IsAuthorized(caller) {
		return false, e.reject(span, dErrors.CodeUnauthorized, "caller is not an authorized verifier")
	}

	record, err := e.credentials.Record(ctx, addr)
	if err != nil {
		if errors.Is(err, idstore.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	now := requesttime.Now(ctx)
	return record.IsVerified && record.IsActive && !record.IsExpired(now), nil
}

// Stats reports the all-time and in-flight request totals.
func (e *Engine) Stats(ctx context.Context) (*models.Stats, error) {
	total, active, err := e.ledger.Stats(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read ledger totals")
	}
	return &models.Stats{
		TotalVerifications: total,
		ActiveRequests:     active,
		CurrentTime:        requesttime.Now(ctx),
	}, nil
}

func (e *Engine) reject(span tracer.Span, code dErrors.Code, msg string) error {
	span.SetAttributes(tracer.String(tracer.AttrErrorCode, string(code)))
	if e.metrics != nil {
		e.metrics.IncrementRequestsRejected(string(code))
	}
	return dErrors.New(code, msg)
}

func (e *Engine) emitAudit(ctx context.Context, event audit.Event) {
	if e.auditor == nil {
		return
	}
	_ = e.auditor.Emit(ctx, event)
}

// evaluateProof checks proof against (challenge * credential) mod the
// proof modulus, with a one-percent tolerance band. The product wraps at
// 32 bits before reduction; the lower bound clamps at zero.
func evaluateProof(challenge, credential, proof uint32) bool {
	expected := (challenge * credential) % models.ProofModulus
	tolerance := expected / 100
	lower := uint32(0)
	if expected > tolerance {
		lower = expected - tolerance
	}
	return proof >= lower && proof <= expected+tolerance
}
