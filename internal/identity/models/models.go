// Package models defines the credential records held per identity.
package models

import (
	"time"

	"attestor/internal/crypto"
	"attestor/pkg/domain"
)

// Contract surface constants.
const (
	// MinimumScore is the lowest acceptable identity score at registration.
	MinimumScore = 75
	// ProofValidityPeriod is how long a registered proof stays valid.
	ProofValidityPeriod = 30 * 24 * time.Hour
)

// Record is the per-identity credential record. It is created or overwritten
// wholesale on registration and mutated in place afterwards; "deletion" is
// IsActive = false, the record itself is never removed.
type Record struct {
	Address             domain.Address
	EncryptedCredential crypto.Handle
	EncryptedScore      crypto.Handle
	IsVerified          bool
	IsActive            bool
	RegisteredAt        time.Time
	ExpiresAt           time.Time
}

// IsExpired reports whether the record's validity window has closed.
// A record expiring exactly at now counts as expired.
func (r *Record) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// Usable reports whether the record can anchor a new verification request.
func (r *Record) Usable(now time.Time) bool {
	return r.IsActive && !r.IsExpired(now)
}

// Status is the public view of a record. Missing records present as the
// zero value.
type Status struct {
	IsActive     bool      `json:"is_active"`
	IsVerified   bool      `json:"is_verified"`
	ExpiresAt    time.Time `json:"expires_at"`
	RegisteredAt time.Time `json:"registered_at"`
}
