// Package identity defines the contracts every external identity provider
// adapter implements. Adapters return provider facts only; flow coordination
// and session decisions live in the gateway.
package identity

import (
	"context"
	"time"
)

// Token is an opaque bearer credential issued by a provider (or by the
// gateway on behalf of a provider that only yields identity facts).
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	TokenType    string // Usually "Bearer"
}

// PasswordProvider handles email/password accounts.
type PasswordProvider interface {
	// SignUp creates an account. Password policy is enforced by the provider.
	SignUp(ctx context.Context, email, password string) error

	// SignIn exchanges email/password for a bearer token.
	SignIn(ctx context.Context, email, password string) (*Token, error)
}

// FlowRequest carries everything an adapter needs for one redirect flow. The
// gateway stores it with the pending flow, so the replica that receives the
// callback can exchange a code it did not start.
type FlowRequest struct {
	FlowID      string
	Verifier    string // PKCE code verifier; empty when the flow does not use PKCE
	CallbackURL string
}

// OAuthProvider handles the browser redirect flow.
type OAuthProvider interface {
	// Name returns the provider identifier used in logs (e.g. "supabase", "google").
	Name() string

	// AuthorizeURL returns a provider-hosted authorization URL that redirects
	// back to req.CallbackURL. req.FlowID is echoed back on the redirect so
	// late arrivals can be matched against the current flow.
	AuthorizeURL(ctx context.Context, req FlowRequest) (string, error)

	// ExchangeCode turns an authorization code into a bearer token.
	ExchangeCode(ctx context.Context, req FlowRequest, code string) (*Token, error)
}

// Verifier checks whether a bearer token is still accepted by its issuer.
type Verifier interface {
	Verify(ctx context.Context, accessToken string) error
}

// SignOuter revokes a token at the provider (best effort).
type SignOuter interface {
	SignOut(ctx context.Context, accessToken string) error
}
