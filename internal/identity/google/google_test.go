package google

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/emsana/authbridge/internal/auth"
	"github.com/emsana/authbridge/internal/identity"
)

const (
	testIssuer   = "https://accounts.example.test"
	testClientID = "emsana-client"
)

type recordedUser struct{ provider, sub, email string }

type fakeUsers struct {
	calls []recordedUser
	err   error
}

func (f *fakeUsers) Upsert(_ context.Context, provider, sub, email string) (string, error) {
	f.calls = append(f.calls, recordedUser{provider, sub, email})
	if f.err != nil {
		return "", f.err
	}
	return "user-uuid-1", nil
}

type harness struct {
	provider *Provider
	signer   *auth.Signer
	users    *fakeUsers
	key      *rsa.PrivateKey
	// idTokenClaims are signed into the id_token the fake token endpoint returns
	idTokenClaims jwt.MapClaims
	gotVerifier   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	signer, err := auth.NewSigner(auth.JWTCfg{HS256Secret: "google-test-secret-123"})
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}

	h := &harness{
		signer: signer,
		users:  &fakeUsers{},
		key:    key,
		idTokenClaims: jwt.MapClaims{
			"iss":            testIssuer,
			"aud":            testClientID,
			"sub":            "1098",
			"email":          "parent@example.com",
			"email_verified": true,
			"iat":            time.Now().Unix(),
			"exp":            time.Now().Add(time.Hour).Unix(),
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" {
			http.NotFound(w, r)
			return
		}
		r.ParseForm()
		h.gotVerifier = r.PostForm.Get("code_verifier")
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant","error_description":"Bad Request"}`))
			return
		}
		idTok := jwt.NewWithClaims(jwt.SigningMethodRS256, h.idTokenClaims)
		signed, err := idTok.SignedString(key)
		if err != nil {
			t.Errorf("sign id_token: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "google-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     signed,
		})
	}))
	t.Cleanup(srv.Close)

	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	verifier := oidc.NewVerifier(testIssuer, keySet, &oidc.Config{ClientID: testClientID})
	endpoint := oauth2.Endpoint{
		AuthURL:   srv.URL + "/auth",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}

	h.provider = newProvider(Config{ClientID: testClientID, ClientSecret: "secret"}, endpoint, verifier, signer, h.users)
	return h
}

const testCallback = "http://127.0.0.1:8000/callback"

func flowRequest(id string) identity.FlowRequest {
	return identity.FlowRequest{FlowID: id, Verifier: identity.NewCodeVerifier(), CallbackURL: testCallback}
}

func TestAuthorizeURL(t *testing.T) {
	h := newHarness(t)

	req := flowRequest("flow-7")
	raw, err := h.provider.AuthorizeURL(context.Background(), req)
	if err != nil {
		t.Fatalf("AuthorizeURL failed: %v", err)
	}
	u, _ := url.Parse(raw)
	q := u.Query()

	checks := map[string]string{
		"state":                 "flow-7",
		"redirect_uri":          "http://127.0.0.1:8000/callback",
		"client_id":             testClientID,
		"code_challenge_method": "S256",
	}
	for k, want := range checks {
		if got := q.Get(k); got != want {
			t.Errorf("%s: expected %q, got %q", k, want, got)
		}
	}
	if q.Get("code_challenge") != oauth2.S256ChallengeFromVerifier(req.Verifier) {
		t.Error("expected code_challenge derived from the flow verifier")
	}

	req.Verifier = ""
	if _, err := h.provider.AuthorizeURL(context.Background(), req); err == nil {
		t.Error("expected error without a verifier")
	}
}

func TestExchangeCode_MintsSessionToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req := flowRequest("flow-1")
	tok, err := h.provider.ExchangeCode(ctx, req, "good-code")
	if err != nil {
		t.Fatalf("ExchangeCode failed: %v", err)
	}
	if h.gotVerifier != req.Verifier {
		t.Errorf("expected flow verifier to be sent, got %q", h.gotVerifier)
	}

	claims, err := h.signer.Validate(tok.AccessToken)
	if err != nil {
		t.Fatalf("minted token does not validate: %v", err)
	}
	if claims.Subject != "user-uuid-1" || claims.Email != "parent@example.com" {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if len(h.users.calls) != 1 || h.users.calls[0] != (recordedUser{"google", "1098", "parent@example.com"}) {
		t.Errorf("unexpected upserts: %+v", h.users.calls)
	}
	if err := h.provider.Verify(ctx, tok.AccessToken); err != nil {
		t.Errorf("Verify rejected minted token: %v", err)
	}
}

func TestExchangeCode_WithoutUserStore(t *testing.T) {
	h := newHarness(t)
	h.provider.users = nil
	ctx := context.Background()

	tok, err := h.provider.ExchangeCode(ctx, flowRequest("flow-1"), "good-code")
	if err != nil {
		t.Fatalf("ExchangeCode failed: %v", err)
	}
	claims, _ := h.signer.Validate(tok.AccessToken)
	if claims.Subject != "google:1098" {
		t.Errorf("expected provider-scoped subject, got %q", claims.Subject)
	}
}

func TestExchangeCode_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(h *harness)
		req    identity.FlowRequest
		code   string
	}{
		{name: "missing verifier", req: identity.FlowRequest{FlowID: "flow-1", CallbackURL: testCallback}, code: "good-code"},
		{name: "rejected code", req: flowRequest("flow-1"), code: "bad-code"},
		{
			name:   "wrong audience",
			mutate: func(h *harness) { h.idTokenClaims["aud"] = "someone-else" },
			req:    flowRequest("flow-1"), code: "good-code",
		},
		{
			name:   "expired id_token",
			mutate: func(h *harness) { h.idTokenClaims["exp"] = time.Now().Add(-time.Hour).Unix() },
			req:    flowRequest("flow-1"), code: "good-code",
		},
		{
			name:   "user store down",
			mutate: func(h *harness) { h.users.err = errors.New("connection refused") },
			req:    flowRequest("flow-1"), code: "good-code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.mutate != nil {
				tt.mutate(h)
			}
			if _, err := h.provider.ExchangeCode(context.Background(), tt.req, tt.code); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestExchangeError(t *testing.T) {
	err := exchangeError(&oauth2.RetrieveError{
		Response:         &http.Response{StatusCode: http.StatusBadRequest},
		ErrorCode:        "invalid_grant",
		ErrorDescription: "Malformed auth code.",
	})
	var pe *identity.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %T", err)
	}
	if pe.Code != "invalid_grant" || pe.Message != "Malformed auth code." || pe.Status != http.StatusBadRequest {
		t.Errorf("unexpected error: %+v", pe)
	}
}

func TestPasswordOperationsUnsupported(t *testing.T) {
	h := newHarness(t)
	err := h.provider.SignUp(context.Background(), "a@x.com", "pw123456")
	var pe *identity.ProviderError
	if !errors.As(err, &pe) || pe.Code != identity.CodeUnsupported {
		t.Errorf("expected unsupported provider error, got %v", err)
	}
}
