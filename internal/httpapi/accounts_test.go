package httpapi

import (
	"net/http"
	"testing"

	"github.com/emsana/authbridge/internal/identity"
)

func TestRegisterAndLogin(t *testing.T) {
	router, _, _ := newTestRouter(t, DefaultRateLimitConfig)

	w := doJSON(t, router, "POST", "/register", map[string]string{"email": "a@x.com", "password": "pw123456"})
	if w.Code != http.StatusOK {
		t.Fatalf("register: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var msg messageResp
	decodeBody(t, w, &msg)
	if msg.Message == "" {
		t.Error("register: expected message")
	}

	w = doJSON(t, router, "POST", "/login", map[string]string{"email": "a@x.com", "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("login wrong password: expected 401, got %d", w.Code)
	}
	var e errorResp
	decodeBody(t, w, &e)
	if e.Detail != identity.InvalidCredentialsMessage {
		t.Errorf("expected generic detail, got %q", e.Detail)
	}

	w = doJSON(t, router, "POST", "/login", map[string]string{"email": "a@x.com", "password": "pw123456"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", w.Code)
	}
	var lr loginResp
	decodeBody(t, w, &lr)
	if lr.AccessToken == "" {
		t.Error("expected access token")
	}

	w = doJSON(t, router, "POST", "/verify-session", map[string]string{"accessToken": lr.AccessToken})
	var vr verifyResp
	decodeBody(t, w, &vr)
	if !vr.Valid {
		t.Error("expected fresh token to verify")
	}
}

func TestRegister_ErrorDetails(t *testing.T) {
	router, _, _ := newTestRouter(t, DefaultRateLimitConfig)
	doJSON(t, router, "POST", "/register", map[string]string{"email": "dup@x.com", "password": "pw123456"})

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantDetail string
	}{
		{
			name:       "duplicate",
			body:       map[string]string{"email": "dup@x.com", "password": "pw123456"},
			wantStatus: http.StatusBadRequest,
			wantDetail: "Аккаунт уже есть. Нажмите 'Войти'",
		},
		{
			name:       "weak password",
			body:       map[string]string{"email": "b@x.com", "password": "123"},
			wantStatus: http.StatusBadRequest,
			wantDetail: "Пароль слишком короткий",
		},
		{
			name:       "not json",
			body:       "just a string",
			wantStatus: http.StatusBadRequest,
			wantDetail: "Некорректный запрос",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, "POST", "/register", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, w.Code)
			}
			var e errorResp
			decodeBody(t, w, &e)
			if e.Detail != tt.wantDetail {
				t.Errorf("expected %q, got %q", tt.wantDetail, e.Detail)
			}
		})
	}
}

func TestVerifySession_FailsClosed(t *testing.T) {
	router, _, _ := newTestRouter(t, DefaultRateLimitConfig)

	tests := []struct {
		name string
		body any
	}{
		{"unknown token", map[string]string{"accessToken": "forged"}},
		{"empty token", map[string]string{}},
		{"garbage body", "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, "POST", "/verify-session", tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			var vr verifyResp
			decodeBody(t, w, &vr)
			if vr.Valid {
				t.Error("expected valid=false")
			}
		})
	}
}

func TestLogout_RevokesToken(t *testing.T) {
	router, _, _ := newTestRouter(t, DefaultRateLimitConfig)
	doJSON(t, router, "POST", "/register", map[string]string{"email": "a@x.com", "password": "pw123456"})
	w := doJSON(t, router, "POST", "/login", map[string]string{"email": "a@x.com", "password": "pw123456"})
	var lr loginResp
	decodeBody(t, w, &lr)

	w = doJSON(t, router, "POST", "/logout", map[string]string{"accessToken": lr.AccessToken})
	if w.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/verify-session", map[string]string{"accessToken": lr.AccessToken})
	var vr verifyResp
	decodeBody(t, w, &vr)
	if vr.Valid {
		t.Error("expected token to be invalid after logout")
	}

	// Without a token logout still acknowledges.
	if w := doJSON(t, router, "POST", "/logout", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200 for empty logout, got %d", w.Code)
	}
}
