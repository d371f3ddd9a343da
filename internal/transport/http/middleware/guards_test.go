package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, limit func(http.Handler) http.Handler, path string, size int) error {
	t.Helper()
	var readErr error
	handler := limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(strings.Repeat("x", size)))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return readErr
}

func TestBodyLimitAllowsLargerImports(t *testing.T) {
	limit := BodyLimit(16, 64)

	require.Error(t, readAll(t, limit, "/api/v1/employees", 32))
	require.NoError(t, readAll(t, limit, "/api/v1/daily-logs/import", 32))
	require.NoError(t, readAll(t, limit, "/api/v1/daily-logs/import/", 32))
	require.Error(t, readAll(t, limit, "/api/v1/daily-logs/import", 128))
}

func TestBodyLimitIgnoresReads(t *testing.T) {
	var n int
	handler := BodyLimit(4, 0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		n = len(raw)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", strings.NewReader("0123456789")))
	assert.Equal(t, 10, n)
}

func TestSecureHeaders(t *testing.T) {
	noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	rec := httptest.NewRecorder()
	SecureHeaders(false)(noop).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/payroll/periods", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	rec = httptest.NewRecorder()
	SecureHeaders(true)(noop).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index.html", nil))
	assert.Empty(t, rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}
