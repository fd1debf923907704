package audit

import (
	"time"

	"attestor/pkg/domain"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	Identity  domain.Address
	RequestID domain.RequestID
	Action    string
	Outcome   string
	Client    string
}

type AuditEvent string

const (
	EventProofRegistered    AuditEvent = "proof_registered"
	EventProofRenewed       AuditEvent = "proof_renewed"
	EventProofRevoked       AuditEvent = "proof_revoked"
	EventProofExpired       AuditEvent = "proof_expired"
	EventRequestCreated     AuditEvent = "verification_requested"
	EventProofSubmitted     AuditEvent = "proof_submitted"
	EventRequestCompleted   AuditEvent = "verification_completed"
	EventVerifierAuthorized AuditEvent = "verifier_authorized"
	EventVerifierRevoked    AuditEvent = "verifier_revoked"
)

// Outcomes recorded on completion events.
const (
	OutcomeApproved = "approved"
	OutcomeRejected = "rejected"
)
