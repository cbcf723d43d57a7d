// Package identitytest provides an in-memory identity provider for tests.
package identitytest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/emsana/authbridge/internal/identity"
)

// Provider implements every identity contract in memory. Passwords shorter
// than six characters are rejected like the hosted provider does.
type Provider struct {
	mu        sync.Mutex
	users     map[string]string
	tokens    map[string]string // access token -> email
	codes     map[string]string // authorization code -> access token
	revoked   map[string]bool
	Exchanges int
	// LastExchange is the flow request of the most recent ExchangeCode call.
	LastExchange identity.FlowRequest
	// AuthorizeErr, when set, fails AuthorizeURL.
	AuthorizeErr error
}

func New() *Provider {
	return &Provider{
		users:   map[string]string{},
		tokens:  map[string]string{},
		codes:   map[string]string{},
		revoked: map[string]bool{},
	}
}

func (p *Provider) Name() string { return "fake" }

func (p *Provider) SignUp(_ context.Context, email, password string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(password) < 6 {
		return &identity.ProviderError{Code: identity.CodeWeakPassword, Message: "Password should be at least 6 characters.", Status: http.StatusUnprocessableEntity}
	}
	if _, ok := p.users[email]; ok {
		return &identity.ProviderError{Message: "User already registered", Status: http.StatusUnprocessableEntity}
	}
	p.users[email] = password
	return nil
}

func (p *Provider) SignIn(_ context.Context, email, password string) (*identity.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pw, ok := p.users[email]
	if !ok {
		return nil, &identity.ProviderError{Code: identity.CodeInvalidCredentials, Message: "Invalid login credentials", Status: http.StatusBadRequest}
	}
	if pw != password {
		// Different cause, same outward result expected from the gateway.
		return nil, &identity.ProviderError{Message: "password mismatch for " + email, Status: http.StatusBadRequest}
	}
	tok := fmt.Sprintf("pw-%s-%d", email, len(p.tokens))
	p.tokens[tok] = email
	return &identity.Token{AccessToken: tok, TokenType: "Bearer"}, nil
}

func (p *Provider) AuthorizeURL(_ context.Context, req identity.FlowRequest) (string, error) {
	if p.AuthorizeErr != nil {
		return "", p.AuthorizeErr
	}
	return "https://idp.example.test/authorize?state=" + url.QueryEscape(req.FlowID) +
		"&redirect_uri=" + url.QueryEscape(req.CallbackURL), nil
}

// AddCode registers an authorization code that exchanges to accessToken.
func (p *Provider) AddCode(code, accessToken string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes[code] = accessToken
	p.tokens[accessToken] = "oauth"
}

func (p *Provider) ExchangeCode(_ context.Context, req identity.FlowRequest, code string) (*identity.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Exchanges++
	p.LastExchange = req
	tok, ok := p.codes[code]
	if !ok {
		return nil, &identity.ProviderError{Code: "invalid_grant", Message: "invalid authorization code", Status: http.StatusBadRequest}
	}
	delete(p.codes, code)
	return &identity.Token{AccessToken: tok, TokenType: "Bearer"}, nil
}

func (p *Provider) Verify(_ context.Context, accessToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.tokens[accessToken]; !ok || p.revoked[accessToken] {
		return &identity.ProviderError{Code: "bad_jwt", Message: "invalid JWT", Status: http.StatusUnauthorized}
	}
	return nil
}

func (p *Provider) SignOut(_ context.Context, accessToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked[accessToken] = true
	return nil
}
