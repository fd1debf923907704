// Package requesttime provides request-scoped time. Every operation inside
// a single HTTP request observes the same "now", so a proof registered and
// checked in the same request cannot straddle its own expiry instant, and
// audit timestamps line up with the domain timestamps they describe.
package requesttime

import (
	"context"
	"net/http"
	"time"
)

type contextKeyRequestTime struct{}

// Middleware captures the wall clock once, at the start of the request.
// Validity windows (30-day proofs, 1-hour challenges) are all evaluated
// against this single instant.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		ctx := context.WithValue(r.Context(), contextKeyRequestTime{}, now)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, oracle callbacks, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(contextKeyRequestTime{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Used by service tests
// that skip the middleware chain and by the sweep worker to pin a batch to
// one instant.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, contextKeyRequestTime{}, t)
}
