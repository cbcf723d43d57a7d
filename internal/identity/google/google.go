// Package google signs users in with Google directly (OIDC code flow with
// PKCE). Google only returns identity facts, so the adapter records the
// identity and mints a gateway session token for it.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/emsana/authbridge/internal/auth"
	"github.com/emsana/authbridge/internal/identity"
)

const providerName = "google"

const DefaultIssuer = "https://accounts.google.com"

type Config struct {
	ClientID     string
	ClientSecret string
	Issuer       string // defaults to DefaultIssuer
}

// UserRecorder persists provider identities. *db.Users satisfies it.
type UserRecorder interface {
	Upsert(ctx context.Context, provider, sub, email string) (string, error)
}

type Provider struct {
	oauthConfig oauth2.Config
	verifier    *oidc.IDTokenVerifier
	signer      *auth.Signer
	users       UserRecorder // optional
}

var (
	_ identity.PasswordProvider = (*Provider)(nil)
	_ identity.OAuthProvider    = (*Provider)(nil)
	_ identity.Verifier         = (*Provider)(nil)
)

// New discovers the issuer's endpoints and keys.
func New(ctx context.Context, cfg Config, signer *auth.Signer, users UserRecorder) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("google oauth config missing required fields")
	}
	if signer == nil {
		return nil, errors.New("google provider requires a session token signer")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}

	oidcProvider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init google oidc provider: %w", err)
	}

	verifier := oidcProvider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return newProvider(cfg, oidcProvider.Endpoint(), verifier, signer, users), nil
}

func newProvider(cfg Config, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier, signer *auth.Signer, users UserRecorder) *Provider {
	return &Provider{
		oauthConfig: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: verifier,
		signer:   signer,
		users:    users,
	}
}

func (p *Provider) Name() string { return providerName }

// AuthorizeURL uses the flow ID as OAuth state; Google echoes it back on the
// callback.
func (p *Provider) AuthorizeURL(_ context.Context, req identity.FlowRequest) (string, error) {
	if req.Verifier == "" {
		return "", identity.ErrMissingVerifier
	}
	cfg := p.oauthConfig
	cfg.RedirectURL = req.CallbackURL
	return cfg.AuthCodeURL(req.FlowID,
		oauth2.AccessTypeOnline,
		oauth2.S256ChallengeOption(req.Verifier),
	), nil
}

// ExchangeCode redeems the code, verifies the id_token and mints a session token.
func (p *Provider) ExchangeCode(ctx context.Context, req identity.FlowRequest, code string) (*identity.Token, error) {
	if req.Verifier == "" {
		return nil, identity.ErrMissingVerifier
	}

	cfg := p.oauthConfig
	cfg.RedirectURL = req.CallbackURL
	token, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(req.Verifier))
	if err != nil {
		return nil, exchangeError(err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, &identity.ProviderError{Message: "google did not return id_token", Status: http.StatusBadGateway}
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, &identity.ProviderError{Message: fmt.Sprintf("google id_token verification failed: %v", err), Status: http.StatusUnauthorized}
	}

	var claims struct {
		Subject       string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("google id_token claims parse failed: %w", err)
	}
	if claims.Subject == "" {
		return nil, &identity.ProviderError{Message: "google id_token missing subject", Status: http.StatusBadGateway}
	}

	log.Ctx(ctx).Info().
		Str("issuer", idToken.Issuer).
		Bool("email_present", claims.Email != "").
		Bool("email_verified", claims.EmailVerified).
		Msg("google oidc verified")

	subject := providerName + ":" + claims.Subject
	if p.users != nil {
		id, err := p.users.Upsert(ctx, providerName, claims.Subject, claims.Email)
		if err != nil {
			return nil, fmt.Errorf("record google identity: %w", err)
		}
		subject = id
	}

	signed, expiresAt, err := p.signer.Issue(subject, claims.Email, providerName)
	if err != nil {
		return nil, err
	}
	return &identity.Token{AccessToken: signed, ExpiresAt: expiresAt, TokenType: "Bearer"}, nil
}

// Verify accepts only session tokens this gateway minted.
func (p *Provider) Verify(ctx context.Context, accessToken string) error {
	return p.signer.Verify(ctx, accessToken)
}

var errPasswordUnsupported = &identity.ProviderError{
	Code:    identity.CodeUnsupported,
	Message: "email/password accounts are not available with Google sign-in",
	Status:  http.StatusBadRequest,
}

func (p *Provider) SignUp(context.Context, string, string) error {
	return errPasswordUnsupported
}

func (p *Provider) SignIn(context.Context, string, string) (*identity.Token, error) {
	return nil, errPasswordUnsupported
}

func exchangeError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := http.StatusBadRequest
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		msg := re.ErrorDescription
		if msg == "" {
			msg = re.ErrorCode
		}
		return &identity.ProviderError{Code: re.ErrorCode, Message: msg, Status: status}
	}
	return &identity.ProviderError{Code: identity.CodeUnavailable, Message: err.Error(), Status: http.StatusBadGateway}
}
