package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCorrelationMiddleware(t *testing.T) {
	var seen string
	h := CorrelationMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
	}))

	t.Run("echoes client id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Correlation-ID", "abc-123")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if seen != "abc-123" || w.Header().Get("X-Correlation-ID") != "abc-123" {
			t.Errorf("expected abc-123 in context and header, got %q / %q", seen, w.Header().Get("X-Correlation-ID"))
		}
	})

	t.Run("generates id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if seen == "" || w.Header().Get("X-Correlation-ID") != seen {
			t.Errorf("expected generated id echoed, got %q / %q", seen, w.Header().Get("X-Correlation-ID"))
		}
	})
}

func TestRoutes_HealthAndInfo(t *testing.T) {
	router, _, _ := newTestRouter(t, RateLimitInfo{})

	w := doJSON(t, router, "GET", "/healthz", nil)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("healthz: got %d %q", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/info", nil)
	var info ServerInfo
	decodeBody(t, w, &info)
	if info.Provider != "fake" || info.Hints == nil || info.Hints.PollAttempts != 60 {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.RateLimit == nil || *info.RateLimit != DefaultRateLimitConfig {
		t.Errorf("expected default rate limit reported, got %+v", info.RateLimit)
	}
}
