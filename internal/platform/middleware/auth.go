package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"attestor/pkg/domain"
)

// TokenValidator defines the interface for validating bearer tokens.
type TokenValidator interface {
	Validate(tokenString string) (domain.Address, error)
}

type callerKey struct{}

// Auth resolves the caller address from the Authorization header and stores
// it in the request context. Requests without a valid bearer token are
// rejected with 401 before reaching the handler.
func Auth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				logger.WarnContext(ctx, "unauthorized access - missing bearer token",
					"request_id", GetRequestID(ctx),
					"path", r.URL.Path,
				)
				writeAuthError(w, "missing bearer token")
				return
			}

			caller, err := validator.Validate(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - token validation failed",
					"request_id", GetRequestID(ctx),
					"path", r.URL.Path,
					"error", err,
				)
				writeAuthError(w, "invalid or expired token")
				return
			}

			ctx = context.WithValue(ctx, callerKey{}, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCaller retrieves the authenticated caller address from the context.
// Returns the empty address when no auth middleware ran.
func GetCaller(ctx context.Context) domain.Address {
	if addr, ok := ctx.Value(callerKey{}).(domain.Address); ok {
		return addr
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + desc + `"}`))
}
