package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const chromeLinuxUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func TestComputeFingerprint(t *testing.T) {
	t.Run("empty user agent yields empty fingerprint", func(t *testing.T) {
		assert.Empty(t, ComputeFingerprint(""))
	})

	t.Run("stable across calls", func(t *testing.T) {
		assert.Equal(t, ComputeFingerprint(chromeLinuxUA), ComputeFingerprint(chromeLinuxUA))
	})

	t.Run("patch version changes do not change the fingerprint", func(t *testing.T) {
		other := "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.9.9 Safari/537.36"
		assert.Equal(t, ComputeFingerprint(chromeLinuxUA), ComputeFingerprint(other))
	})

	t.Run("different browsers differ", func(t *testing.T) {
		firefox := "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
		assert.NotEqual(t, ComputeFingerprint(chromeLinuxUA), ComputeFingerprint(firefox))
	})
}

func TestClientFingerprintMiddleware(t *testing.T) {
	var got string
	handler := ClientFingerprint(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetClientFingerprint(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/identity/register", nil)
	req.Header.Set("User-Agent", chromeLinuxUA)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, ComputeFingerprint(chromeLinuxUA), got)
}
