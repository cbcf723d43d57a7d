// Package client talks to the auth gateway over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/emsana/authbridge/internal/identity"
)

const (
	// MaxRetries is the maximum number of retry attempts for retryable errors
	MaxRetries = 3

	// DefaultBackoff is the initial backoff duration for exponential backoff
	DefaultBackoff = 1 * time.Second
)

// Client wraps http.Client with retry logic. Every call carries an
// X-Correlation-ID that stays the same across its retries.
//
// Handles retries for:
// - 429 Too Many Requests: respect Retry-After, exponential backoff
// - 5xx: exponential backoff
//
// Network errors are not retried here; they surface as ErrTransient.
type Client struct {
	baseURL    string
	httpClient *http.Client
	backoff    time.Duration
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		backoff:    DefaultBackoff,
	}
}

// BaseURL is the gateway root the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenBody struct {
	AccessToken string `json:"accessToken"`
}

// Register creates an account and returns the gateway's confirmation message.
func (c *Client) Register(ctx context.Context, email, password string) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, "register", http.MethodPost, "/register", credentials{email, password}, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// Login returns the access token for a password sign-in.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out tokenBody
	if err := c.do(ctx, "login", http.MethodPost, "/login", credentials{email, password}, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", errors.New("login: gateway returned no access token")
	}
	return out.AccessToken, nil
}

// VerifySession asks the gateway whether the stored token is still accepted.
func (c *Client) VerifySession(ctx context.Context, accessToken string) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}
	if err := c.do(ctx, "verify-session", http.MethodPost, "/verify-session", tokenBody{accessToken}, &out); err != nil {
		return false, err
	}
	return out.Valid, nil
}

// Logout asks the gateway to revoke the token at the provider.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, "logout", http.MethodPost, "/logout", tokenBody{accessToken}, nil)
}

// StartGoogle begins a browser sign-in and returns the URL to open.
func (c *Client) StartGoogle(ctx context.Context) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, "auth-google", http.MethodGet, "/auth/google", nil, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", errors.New("auth-google: gateway returned no url")
	}
	return out.URL, nil
}

// PollStatus is one answer from /check-google.
type PollStatus struct {
	Status      string `json:"status"`
	AccessToken string `json:"accessToken,omitempty"`
}

func (p PollStatus) Done() bool {
	return p.Status == "success" && p.AccessToken != ""
}

// CheckGoogle polls the pending browser sign-in. Success is reported once.
// It makes a single request: the poller is the retry loop.
func (c *Client) CheckGoogle(ctx context.Context) (PollStatus, error) {
	var out PollStatus
	err := c.send(ctx, "check-google", http.MethodGet, "/check-google", nil, &out, 0)
	return out, err
}

// IngestToken forwards a token the same way the callback page does.
func (c *Client) IngestToken(ctx context.Context, flow, accessToken string) error {
	body := struct {
		AccessToken string `json:"accessToken"`
		Flow        string `json:"flow,omitempty"`
	}{accessToken, flow}
	return c.do(ctx, "ingest-token", http.MethodPost, "/ingest-token", body, nil)
}

// Info describes the gateway, as served by /info.
type Info struct {
	APIVersion string `json:"apiVersion"`
	Provider   string `json:"provider"`
	OAuthFlow  string `json:"oauthFlow"`
	Hints      *struct {
		PollAttempts        int `json:"pollAttempts"`
		PollIntervalSeconds int `json:"pollIntervalSeconds"`
	} `json:"hints"`
}

func (c *Client) Info(ctx context.Context) (*Info, error) {
	var out Info
	if err := c.do(ctx, "info", http.MethodGet, "/info", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	return c.send(ctx, op, method, path, in, out, MaxRetries)
}

// send retries 429/5xx responses up to maxRetries times.
func (c *Client) send(ctx context.Context, op, method, path string, in, out any, maxRetries int) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
	}

	// Generate correlation ID for request tracing
	correlationID := uuid.New().String()
	logger := log.With().
		Str("op", op).
		Str("correlationId", correlationID).
		Logger()

	for retryCount := 0; ; retryCount++ {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("%s: build request: %w", op, err)
		}
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Correlation-ID", correlationID)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		duration := time.Since(start)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Debug().Err(err).Dur("duration", duration).Msg("HTTP request failed")
			return ErrTransient{Op: op, Err: err}
		}

		logger.Debug().
			Int("status", resp.StatusCode).
			Dur("duration", duration).
			Int("retryCount", retryCount).
			Msg("HTTP request completed")

		if !retryable(resp.StatusCode) {
			return decode(resp, out)
		}

		// Parse Retry-After header (seconds or HTTP-date)
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		status := resp.StatusCode
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if retryCount >= maxRetries {
			logger.Warn().Int("status", status).Msg("max retries exceeded")
			if status == http.StatusTooManyRequests {
				return ErrTransient{Op: op, Err: ErrRateLimited{RetryAfter: int(retryAfter.Seconds())}}
			}
			return ErrTransient{Op: op, Err: fmt.Errorf("gateway returned %d", status)}
		}

		// Apply exponential backoff if no Retry-After header
		if retryAfter == 0 {
			retryAfter = c.backoff * time.Duration(1<<retryCount)
		}

		logger.Warn().
			Int("status", status).
			Dur("retryAfter", retryAfter).
			Int("retryCount", retryCount).
			Msg("retryable response - backing off")

		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// decode reads a final response. Error bodies carry {detail}.
func decode(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e struct {
			Detail string `json:"detail"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err := json.Unmarshal(raw, &e); err != nil || e.Detail == "" {
			e.Detail = http.StatusText(resp.StatusCode)
		}
		return APIError{Status: resp.StatusCode, Detail: identity.Translate(e.Detail)}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseRetryAfter parses the Retry-After header
// Supports both integer seconds and HTTP-date format
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	// Try parsing as integer (seconds)
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	// Try parsing as HTTP-date
	if t, err := http.ParseTime(value); err == nil {
		duration := time.Until(t)
		if duration > 0 {
			return duration
		}
	}

	// Fallback
	return 0
}
