// Package supabase adapts a hosted Supabase project (GoTrue auth API) to the
// identity provider contracts.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/emsana/authbridge/internal/identity"
)

// Flow selects how the OAuth redirect carries the credential back.
type Flow string

const (
	// FlowPKCE: the callback receives ?code=..., exchanged server-side.
	FlowPKCE Flow = "pkce"
	// FlowImplicit: the callback receives #access_token=..., forwarded by the page.
	FlowImplicit Flow = "implicit"
)

type Config struct {
	URL           string // https://<project>.supabase.co
	AnonKey       string
	OAuthProvider string // e.g. "google"
	Flow          Flow
}

// Client talks to the GoTrue REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

var (
	_ identity.PasswordProvider = (*Client)(nil)
	_ identity.OAuthProvider    = (*Client)(nil)
	_ identity.Verifier         = (*Client)(nil)
	_ identity.SignOuter        = (*Client)(nil)
)

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" || cfg.AnonKey == "" {
		return nil, fmt.Errorf("supabase: URL and anon key are required")
	}
	if cfg.OAuthProvider == "" {
		cfg.OAuthProvider = "google"
	}
	if cfg.Flow == "" {
		cfg.Flow = FlowPKCE
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (c *Client) Name() string { return "supabase" }

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
}

func (t tokenResponse) token() *identity.Token {
	tok := &identity.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
	}
	switch {
	case t.ExpiresAt > 0:
		tok.ExpiresAt = time.Unix(t.ExpiresAt, 0)
	case t.ExpiresIn > 0:
		tok.ExpiresAt = time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return tok
}

// SignUp registers a new email/password user.
func (c *Client) SignUp(ctx context.Context, email, password string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/signup", "", credentials{email, password}, nil)
}

// SignIn uses the password grant.
func (c *Client) SignIn(ctx context.Context, email, password string) (*identity.Token, error) {
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", credentials{email, password}, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &identity.ProviderError{Code: identity.CodeUnavailable, Message: "empty access token", Status: http.StatusBadGateway}
	}
	return resp.token(), nil
}

// Verify asks GoTrue who owns the token. Any non-2xx is an error.
func (c *Client) Verify(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, nil)
}

// SignOut revokes the session behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
}

// AuthorizeURL builds the hosted authorize URL. The callback carries the flow
// ID as a query parameter so the gateway can match the arrival to its flow.
func (c *Client) AuthorizeURL(_ context.Context, req identity.FlowRequest) (string, error) {
	redirect, err := url.Parse(req.CallbackURL)
	if err != nil {
		return "", fmt.Errorf("supabase: parse callback url: %w", err)
	}
	rq := redirect.Query()
	rq.Set("flow", req.FlowID)
	redirect.RawQuery = rq.Encode()

	q := url.Values{}
	q.Set("provider", c.cfg.OAuthProvider)
	q.Set("redirect_to", redirect.String())
	if c.cfg.Flow == FlowPKCE {
		if req.Verifier == "" {
			return "", identity.ErrMissingVerifier
		}
		q.Set("code_challenge", oauth2.S256ChallengeFromVerifier(req.Verifier))
		q.Set("code_challenge_method", "s256")
	}
	return c.cfg.URL + "/auth/v1/authorize?" + q.Encode(), nil
}

// ExchangeCode completes the PKCE flow.
func (c *Client) ExchangeCode(ctx context.Context, req identity.FlowRequest, code string) (*identity.Token, error) {
	if c.cfg.Flow != FlowPKCE {
		return nil, fmt.Errorf("supabase: code exchange in %s mode: %w", c.cfg.Flow, identity.ErrUnsupported)
	}
	if req.Verifier == "" {
		return nil, identity.ErrMissingVerifier
	}

	body := map[string]string{"auth_code": code, "code_verifier": req.Verifier}
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=pkce", "", body, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &identity.ProviderError{Code: identity.CodeUnavailable, Message: "empty access token", Status: http.StatusBadGateway}
	}
	return resp.token(), nil
}

// errorBody covers the shapes GoTrue has used over time.
type errorBody struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func parseError(status int, raw []byte) *identity.ProviderError {
	pe := &identity.ProviderError{Status: status}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		pe.Message = strings.TrimSpace(string(raw))
		if pe.Message == "" {
			pe.Message = http.StatusText(status)
		}
		return pe
	}

	pe.Code = body.ErrorCode
	if s, ok := body.Code.(string); ok && pe.Code == "" {
		pe.Code = s
	}
	for _, m := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
		if m != "" {
			pe.Message = m
			break
		}
	}
	if pe.Message == "" {
		pe.Message = http.StatusText(status)
	}
	if pe.Code == "" && status == http.StatusTooManyRequests {
		pe.Code = identity.CodeRateLimited
	}
	return pe
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("supabase: marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.URL+path, body)
	if err != nil {
		return fmt.Errorf("supabase: build request: %w", err)
	}
	req.Header.Set("apikey", c.cfg.AnonKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &identity.ProviderError{Code: identity.CodeUnavailable, Message: err.Error(), Status: http.StatusBadGateway}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("supabase: read response: %w", err)
	}

	log.Ctx(ctx).Debug().
		Str("method", method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("supabase request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp.StatusCode, raw)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("supabase: decode response: %w", err)
		}
	}
	return nil
}
