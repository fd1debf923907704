// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"strings"

	dErrors "attestor/pkg/domain-errors"
)

// Address identifies a participant on the ledger. Addresses are 0x-prefixed
// 40-digit hex strings, compared case-insensitively (stored lowercased).
type Address string

// ZeroAddress is the all-zero address. It is never a valid participant.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// RequestID identifies a verification request. IDs are 1-based and never reused.
type RequestID uint64

// ParseAddress validates and normalizes an address at trust boundaries
// (handlers, token claims). Note: the zero address parses successfully;
// operations that must reject it check IsZero() at the service layer so
// lookups can still return proper "not found" errors.
func ParseAddress(s string) (Address, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address cannot be empty")
	}
	if !strings.HasPrefix(s, "0x") || len(s) != 42 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address must be a 0x-prefixed 40-digit hex string")
	}
	for _, c := range s[2:] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", dErrors.New(dErrors.CodeInvalidInput, "address contains non-hex characters")
		}
	}
	return Address(s), nil
}

func (a Address) String() string { return string(a) }

// IsZero reports whether the address is empty or the all-zero address.
func (a Address) IsZero() bool { return a == "" || a == ZeroAddress }

func (id RequestID) IsNil() bool { return id == 0 }
