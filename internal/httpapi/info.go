package httpapi

import (
	"net/http"
	"time"
)

// ServerInfo represents the gateway's capabilities and configuration
type ServerInfo struct {
	APIVersion string         `json:"apiVersion"`
	ServerTime string         `json:"serverTime"`
	Provider   string         `json:"provider"`
	OAuthFlow  string         `json:"oauthFlow,omitempty"` // "pkce" or "implicit"
	RateLimit  *RateLimitInfo `json:"rateLimit,omitempty"`
	Hints      *PollHints     `json:"hints,omitempty"`
}

// PollHints provides recommendations for client polling behavior
type PollHints struct {
	PollAttempts        int `json:"pollAttempts"`
	PollIntervalSeconds int `json:"pollIntervalSeconds"`
	BackoffMsOn429      int `json:"backoffMsOn429"` // default backoff if Retry-After missing
}

// Info handles GET /info
// Unauthenticated so clients can discover the login methods before signing in
func (s *Server) Info(w http.ResponseWriter, r *http.Request) {
	rl := s.rateLimit()
	info := ServerInfo{
		APIVersion: "1.0",
		ServerTime: time.Now().UTC().Format(time.RFC3339Nano),
		Provider:   s.Provider,
		OAuthFlow:  s.OAuthFlow,
		RateLimit:  &rl,
		Hints: &PollHints{
			PollAttempts:        60,
			PollIntervalSeconds: 1,
			BackoffMsOn429:      1500,
		},
	}

	writeJSON(w, http.StatusOK, info)
}
