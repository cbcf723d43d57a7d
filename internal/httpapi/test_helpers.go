package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/emsana/authbridge/internal/bridge"
	"github.com/emsana/authbridge/internal/gateway"
	"github.com/emsana/authbridge/internal/identity"
	"github.com/emsana/authbridge/internal/identity/identitytest"
)

// newTestRouter builds the full router over an in-memory provider.
func newTestRouter(t *testing.T, rl RateLimitInfo) (http.Handler, *gateway.Gateway, *identitytest.Provider) {
	t.Helper()

	p := identitytest.New()
	g, err := gateway.New(gateway.Config{
		Passwords:   p,
		OAuth:       p,
		Verifiers:   []identity.Verifier{p},
		SignOut:     p,
		Slot:        bridge.NewMemorySlot(0),
		CallbackURL: "http://127.0.0.1:8000/callback",
	})
	if err != nil {
		t.Fatalf("gateway.New failed: %v", err)
	}

	srv := &Server{Gateway: g, RateLimitConfig: rl, Provider: "fake", OAuthFlow: "pkce"}
	return srv.Routes(), g, p
}

// doJSON makes a request with an optional JSON body
func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}
