// Package models defines the verification request ledger entries.
package models

import (
	"time"

	"attestor/internal/crypto"
	"attestor/pkg/domain"
)

// Contract surface constants.
const (
	// ChallengeValidityPeriod is how long a proof may be submitted against
	// an issued challenge.
	ChallengeValidityPeriod = time.Hour
	// MaxRequestsPerIdentity caps lifetime verification requests. The
	// counter is reset only by renewal.
	MaxRequestsPerIdentity = 5
	// ProofModulus reduces the challenge-credential product before the
	// tolerance check.
	ProofModulus = 1_000_000
)

// State tracks a request through its life. Completed is terminal.
type State string

const (
	StateOpen      State = "open"
	StateSubmitted State = "submitted"
	StateCompleted State = "completed"
)

// Request is a verification request ledger entry. Entries are never deleted;
// a request whose callback never arrives stays submitted forever and keeps
// counting against the active total.
type Request struct {
	ID                 domain.RequestID
	Requester          domain.Address
	EncryptedChallenge crypto.Handle
	SubmittedProof     crypto.Handle
	State              State
	IsApproved         bool
	RequestedAt        time.Time
	ChallengeExpiresAt time.Time
	SubmittedAt        time.Time
}

// Completed reports whether the request reached its terminal state.
func (r *Request) Completed() bool {
	return r.State == StateCompleted
}

// ChallengeExpired reports whether the submission window has closed.
// Submission exactly at the deadline is still accepted.
func (r *Request) ChallengeExpired(now time.Time) bool {
	return now.After(r.ChallengeExpiresAt)
}

// Info is the public view of a request. Ciphertext handles are never exposed.
type Info struct {
	ID                 domain.RequestID `json:"id"`
	Requester          domain.Address   `json:"requester"`
	IsCompleted        bool             `json:"is_completed"`
	IsApproved         bool             `json:"is_approved"`
	RequestedAt        time.Time        `json:"requested_at"`
	ChallengeExpiresAt time.Time        `json:"challenge_expires_at"`
}

// InfoOf projects a ledger entry onto its public view.
func InfoOf(r *Request) Info {
	return Info{
		ID:                 r.ID,
		Requester:          r.Requester,
		IsCompleted:        r.Completed(),
		IsApproved:         r.IsApproved,
		RequestedAt:        r.RequestedAt,
		ChallengeExpiresAt: r.ChallengeExpiresAt,
	}
}

// Stats is the aggregate read surface.
type Stats struct {
	TotalVerifications uint64    `json:"total_verifications"`
	ActiveRequests     uint64    `json:"active_requests"`
	CurrentTime        time.Time `json:"current_time"`
}
