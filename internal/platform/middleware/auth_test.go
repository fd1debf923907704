package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

type stubValidator struct {
	addr domain.Address
	err  error
}

func (v stubValidator) Validate(string) (domain.Address, error) {
	return v.addr, v.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAuthResolvesCaller(t *testing.T) {
	want := domain.Address("0xabcd00000000000000000000000000000000ef12")
	var got domain.Address
	handler := Auth(stubValidator{addr: want}, testLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = GetCaller(r.Context())
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/verification/request", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, want, got)
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	handler := Auth(stubValidator{}, testLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not run without a token")
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/verification/request", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unauthorized")
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(stubValidator{err: dErrors.New(dErrors.CodeUnauthorized, "expired")}, testLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not run with an invalid token")
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/verification/request", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetCallerWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, GetCaller(req.Context()).IsZero())
}
