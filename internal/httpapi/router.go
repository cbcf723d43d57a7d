package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/emsana/authbridge/internal/gateway"
)

// IngestPath is where the callback page posts fragment tokens.
const IngestPath = "/ingest-token"

// Server holds dependencies for HTTP handlers
type Server struct {
	Gateway         *gateway.Gateway
	RateLimitConfig RateLimitInfo
	// Reported by /info
	Provider  string
	OAuthFlow string
}

type errorResp struct {
	Detail string `json:"detail"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

// writeError writes the {detail} error body every endpoint uses.
func writeError(w http.ResponseWriter, r *http.Request, code int, detail string) {
	if code >= 500 {
		log.Ctx(r.Context()).Error().Int("status", code).Str("detail", detail).Msg("request failed")
	}
	writeJSON(w, code, errorResp{Detail: detail})
}

// writeGatewayError maps a gateway failure to its status and user-facing detail.
func writeGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	var ge *gateway.Error
	if errors.As(err, &ge) {
		writeError(w, r, ge.Status, ge.Detail)
		return
	}
	log.Ctx(r.Context()).Error().Err(err).Msg("unexpected gateway error")
	writeError(w, r, http.StatusInternalServerError, "internal error")
}

// decodeJSON reads a small JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(v)
}

func (s *Server) rateLimit() RateLimitInfo {
	rl := s.RateLimitConfig
	if rl.WindowSeconds <= 0 || rl.MaxRequests <= 0 || rl.Burst <= 0 {
		return DefaultRateLimitConfig
	}
	return rl
}

// Routes creates the HTTP router with all gateway endpoints
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(AccessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	})
	r.Get("/info", s.Info)

	// Password endpoints are rate limited per client IP
	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(s.rateLimit()))
		r.Post("/register", s.Register)
		r.Post("/login", s.Login)
	})

	r.Post("/verify-session", s.VerifySession)
	r.Post("/logout", s.Logout)

	// OAuth bridge
	r.Get("/auth/google", s.StartOAuth)
	r.Get("/callback", s.Callback)
	r.Post("/google-success", s.IngestToken)
	r.Post(IngestPath, s.IngestToken)
	r.Get("/check-google", s.CheckOAuth)

	log.Info().Msg("HTTP routes registered")
	return r
}
