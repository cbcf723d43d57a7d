package identity

import (
	"net/http"

	"golang.org/x/oauth2"
)

// NewCodeVerifier returns a fresh PKCE code verifier (RFC 7636, 43 chars).
func NewCodeVerifier() string {
	return oauth2.GenerateVerifier()
}

// ErrMissingVerifier is returned by ExchangeCode when the flow carries no verifier.
var ErrMissingVerifier = &ProviderError{
	Code:    "flow_state_not_found",
	Message: "no code verifier for flow",
	Status:  http.StatusBadRequest,
}
