// Package token issues and validates the bearer tokens that stand in for
// wallet signatures on the HTTP surface. Single-tenant: the only claim that
// matters is the caller address.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

// Claims carries the caller address alongside the registered JWT claims.
type Claims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// Service handles JWT creation and validation.
type Service struct {
	signingKey []byte
	tokenTTL   time.Duration
}

func NewService(signingKey string, tokenTTL time.Duration) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		tokenTTL:   tokenTTL,
	}
}

// Issue signs a token for the given address.
func (s *Service) Issue(addr domain.Address) (string, error) {
	now := time.Now()
	claims := Claims{
		Address: addr.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "attestor",
			Subject:   addr.String(),
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not sign token")
	}
	return signed, nil
}

// Validate parses a bearer token and returns the caller address.
func (s *Service) Validate(tokenString string) (domain.Address, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "unexpected signing method")
		}
		return s.signingKey, nil
	})
	if err != nil || !parsed.Valid {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token")
	}
	addr, err := domain.ParseAddress(claims.Address)
	if err != nil {
		return "", dErrors.New(dErrors.CodeUnauthorized, "token carries a malformed address")
	}
	return addr, nil
}
