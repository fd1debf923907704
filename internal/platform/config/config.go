package config

import (
	"os"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr            string
	OwnerAddress    string
	JWTSigningKey   string
	TokenTTL        time.Duration
	CleanupInterval time.Duration
	OracleBuffer    int
}

// Defaults. TokenTTL covers interactive browser sessions; CleanupInterval
// paces the expired-identity sweep.
var TokenTTL = 15 * time.Minute
var CleanupInterval = 5 * time.Minute

// DefaultOwnerAddress is used when ATTESTOR_OWNER is unset. Development only.
const DefaultOwnerAddress = "0x00000000000000000000000000000000000000a1"

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("ATTESTOR_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	owner := os.Getenv("ATTESTOR_OWNER")
	if owner == "" {
		owner = DefaultOwnerAddress
	}

	tokenTTLStr := os.Getenv("TOKEN_TTL")
	if tokenTTLStr != "" {
		if duration, err := time.ParseDuration(tokenTTLStr); err == nil {
			TokenTTL = duration
		}
	}

	cleanupStr := os.Getenv("CLEANUP_INTERVAL")
	if cleanupStr != "" {
		if duration, err := time.ParseDuration(cleanupStr); err == nil {
			CleanupInterval = duration
		}
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:            addr,
		OwnerAddress:    owner,
		JWTSigningKey:   jwtSigningKey,
		TokenTTL:        TokenTTL,
		CleanupInterval: CleanupInterval,
		OracleBuffer:    64,
	}
}
