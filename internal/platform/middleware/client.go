package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

type clientFingerprintKey struct{}

// ClientFingerprint derives a coarse fingerprint from the User-Agent header
// and stores it in the context so audit events can record which kind of
// client registered or submitted a proof.
// Note: does NOT include IP address (too volatile; it would fragment the
// fingerprint across sessions).
func ClientFingerprint(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fp := ComputeFingerprint(r.Header.Get("User-Agent"))
		ctx := context.WithValue(r.Context(), clientFingerprintKey{}, fp)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClientFingerprint retrieves the client fingerprint from the context.
func GetClientFingerprint(ctx context.Context) string {
	if fp, ok := ctx.Value(clientFingerprintKey{}).(string); ok {
		return fp
	}
	return ""
}

// ComputeFingerprint hashes browser family, major version, OS, and platform
// into a stable hex digest. Empty input yields an empty fingerprint.
func ComputeFingerprint(userAgentString string) string {
	if userAgentString == "" {
		return ""
	}

	ua := useragent.New(userAgentString)
	browser, version := ua.Browser()

	majorVersion := "unknown"
	if version != "" {
		parts := strings.Split(version, ".")
		if len(parts) > 0 && parts[0] != "" {
			majorVersion = parts[0]
		}
	}

	os := ua.OS()
	platform := "desktop"
	if ua.Mobile() {
		platform = "mobile"
	}

	browser = strings.ToLower(strings.TrimSpace(browser))
	if browser == "" {
		browser = "unknown"
	}
	os = strings.ToLower(strings.TrimSpace(os))
	if os == "" {
		os = "unknown"
	}

	data := fmt.Sprintf("%s|%s|%s|%s", browser, majorVersion, os, platform)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
