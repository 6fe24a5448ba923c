// Package testutil holds helpers shared by package tests.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

// LoopbackAddr is the client address used by NewDebugRequest. tsweb only
// serves /debug/ routes to loopback and tailnet clients.
const LoopbackAddr = "127.0.0.1:41234"

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewDebugRequest creates a request that appears to come from localhost.
func NewDebugRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = LoopbackAddr
	return req
}

// ServeDebug runs a localhost GET for path against mux.
func ServeDebug(mux http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, NewDebugRequest(http.MethodGet, path, nil))
	return w
}

// TempDBPath returns a database path inside a per-test directory.
func TempDBPath(t testing.TB) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "lpi.db")
}
