// Package gateway is the identity façade the HTTP layer talks to. It forwards
// account operations to the configured provider, owns the OAuth bridge and
// turns every provider failure into an Error carrying a user-facing detail.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/emsana/authbridge/internal/bridge"
	"github.com/emsana/authbridge/internal/identity"
)

// Error is a failed gateway operation. Detail is safe to show to the user.
type Error struct {
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// ValidationError is malformed client input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

const (
	msgMissingCredentials = "Введите Email и пароль"
	msgBadEmail           = "Некорректный Email"
	msgFlowExpired        = "Вход устарел. Нажмите 'Войти через Google' ещё раз"
)

// Config wires providers into a Gateway.
type Config struct {
	Passwords identity.PasswordProvider
	OAuth     identity.OAuthProvider
	// Verifiers are tried in order; a token is valid if any accepts it.
	Verifiers   []identity.Verifier
	SignOut     identity.SignOuter // optional
	Slot        bridge.Slot
	CallbackURL string
}

type Gateway struct {
	passwords   identity.PasswordProvider
	oauth       identity.OAuthProvider
	verifiers   []identity.Verifier
	signOut     identity.SignOuter
	bridge      *bridge.Bridge
	callbackURL string
}

func New(cfg Config) (*Gateway, error) {
	if cfg.Passwords == nil || cfg.OAuth == nil {
		return nil, errors.New("gateway: password and oauth providers are required")
	}
	if len(cfg.Verifiers) == 0 {
		return nil, errors.New("gateway: at least one session verifier is required")
	}
	if cfg.Slot == nil {
		return nil, errors.New("gateway: pending auth slot is required")
	}
	if cfg.CallbackURL == "" {
		return nil, errors.New("gateway: callback url is required")
	}

	g := &Gateway{
		passwords:   cfg.Passwords,
		oauth:       cfg.OAuth,
		verifiers:   cfg.Verifiers,
		signOut:     cfg.SignOut,
		callbackURL: cfg.CallbackURL,
	}
	g.bridge = bridge.New(cfg.Slot, g.exchange)
	return g, nil
}

func (g *Gateway) flowRequest(flow bridge.FlowID, verifier string) identity.FlowRequest {
	return identity.FlowRequest{FlowID: string(flow), Verifier: verifier, CallbackURL: g.callbackURL}
}

func (g *Gateway) exchange(ctx context.Context, flow bridge.FlowID, verifier, code string) (string, error) {
	tok, err := g.oauth.ExchangeCode(ctx, g.flowRequest(flow, verifier), code)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func validateCredentials(email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return &Error{Status: http.StatusBadRequest, Detail: msgMissingCredentials,
			Err: ValidationError{Field: "email/password", Reason: "empty"}}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return &Error{Status: http.StatusBadRequest, Detail: msgBadEmail,
			Err: ValidationError{Field: "email", Reason: err.Error()}}
	}
	return nil
}

// Register creates an account. Provider failures map through the message table.
func (g *Gateway) Register(ctx context.Context, email, password string) error {
	if err := validateCredentials(email, password); err != nil {
		return err
	}
	if err := g.passwords.SignUp(ctx, strings.TrimSpace(email), password); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("register failed")
		return &Error{Status: http.StatusBadRequest, Detail: identity.UserMessage(err), Err: err}
	}
	log.Ctx(ctx).Info().Msg("user registered")
	return nil
}

// Login returns a bearer token. Every failure yields the same generic detail.
func (g *Gateway) Login(ctx context.Context, email, password string) (*identity.Token, error) {
	if err := validateCredentials(email, password); err != nil {
		return nil, &Error{Status: http.StatusUnauthorized, Detail: identity.InvalidCredentialsMessage, Err: err}
	}
	tok, err := g.passwords.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("login failed")
		return nil, &Error{Status: http.StatusUnauthorized, Detail: identity.InvalidCredentialsMessage, Err: err}
	}
	return tok, nil
}

// VerifySession fails closed: errors and empty tokens are invalid.
func (g *Gateway) VerifySession(ctx context.Context, accessToken string) bool {
	if accessToken == "" {
		return false
	}
	for _, v := range g.verifiers {
		err := v.Verify(ctx, accessToken)
		if err == nil {
			return true
		}
		log.Ctx(ctx).Debug().Err(err).Msg("session verifier rejected token")
	}
	return false
}

// Logout revokes the token at the provider when it supports that.
func (g *Gateway) Logout(ctx context.Context, accessToken string) {
	if g.signOut == nil || accessToken == "" {
		return
	}
	if err := g.signOut.SignOut(ctx, accessToken); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("provider sign-out failed")
	}
}

// StartOAuth resets the pending slot and returns the provider URL untouched.
// The PKCE verifier is stored with the flow so any replica sharing the slot
// can finish the exchange.
func (g *Gateway) StartOAuth(ctx context.Context) (string, error) {
	verifier := identity.NewCodeVerifier()
	flow, err := g.bridge.Start(ctx, verifier)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("pending auth reset failed")
		return "", &Error{Status: http.StatusBadRequest, Detail: identity.UserMessage(&identity.ProviderError{Code: identity.CodeUnavailable}), Err: err}
	}
	u, err := g.oauth.AuthorizeURL(ctx, g.flowRequest(flow, verifier))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("provider", g.oauth.Name()).Msg("authorize url failed")
		return "", &Error{Status: http.StatusBadRequest, Detail: identity.UserMessage(err), Err: err}
	}
	return u, nil
}

// Page selects the terminal page rendered by the callback.
type Page int

const (
	PageSuccess Page = iota
	// PageForward runs a script that posts the URL fragment token back.
	PageForward
	PageError
)

type CallbackResult struct {
	Page    Page
	Flow    bridge.FlowID
	Message string
}

// HandleCallback interprets the provider redirect. A code is exchanged before
// this returns, so the pending slot already holds the credential when the
// success page is rendered.
func (g *Gateway) HandleCallback(ctx context.Context, q url.Values) CallbackResult {
	flow := bridge.FlowID(q.Get("flow"))
	if flow == "" {
		flow = bridge.FlowID(q.Get("state"))
	}

	if e := q.Get("error"); e != "" {
		desc := q.Get("error_description")
		log.Ctx(ctx).Warn().Str("error", e).Str("description", desc).Str("flow", string(flow)).Msg("provider returned error on callback")
		msg := desc
		if msg == "" {
			msg = e
		}
		return CallbackResult{Page: PageError, Flow: flow, Message: msg}
	}

	code := q.Get("code")
	if code == "" {
		return CallbackResult{Page: PageForward, Flow: flow}
	}

	out, err := g.bridge.Accept(ctx, bridge.CodeArrival{FlowID: flow, Code: code})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("flow", string(flow)).Msg("code exchange failed")
		return CallbackResult{Page: PageError, Flow: flow, Message: identity.UserMessage(err)}
	}
	if out == bridge.Dropped {
		return CallbackResult{Page: PageError, Flow: flow, Message: msgFlowExpired}
	}
	return CallbackResult{Page: PageSuccess, Flow: flow}
}

// IngestToken stores a fragment-forwarded token. Empty tokens and late
// arrivals are acknowledged without effect.
func (g *Gateway) IngestToken(ctx context.Context, flow, accessToken string) error {
	_, err := g.bridge.Accept(ctx, bridge.FragmentArrival{FlowID: bridge.FlowID(flow), Token: accessToken})
	if err != nil {
		return &Error{Status: http.StatusInternalServerError, Detail: "internal error", Err: err}
	}
	return nil
}

// PollResult is the wire shape of a poll.
type PollResult struct {
	Status      string
	AccessToken string
}

// PollOAuth is read-once: Success is reported to exactly one caller.
func (g *Gateway) PollOAuth(ctx context.Context) (PollResult, error) {
	snap, err := g.bridge.Poll(ctx)
	if err != nil {
		return PollResult{}, &Error{Status: http.StatusInternalServerError, Detail: "internal error", Err: err}
	}
	if snap.Status == bridge.StatusSuccess {
		return PollResult{Status: "success", AccessToken: snap.Credential}, nil
	}
	return PollResult{Status: "waiting"}, nil
}

// Pending exposes the slot for tests and diagnostics.
func (g *Gateway) Pending(ctx context.Context) (bridge.Snapshot, error) {
	return g.bridge.Peek(ctx)
}
