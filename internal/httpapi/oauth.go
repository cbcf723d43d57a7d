package httpapi

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/emsana/authbridge/internal/gateway"
)

type urlResp struct {
	URL string `json:"url"`
}

type ingestReq struct {
	AccessToken string `json:"accessToken"`
	Flow        string `json:"flow"`
}

type pollResp struct {
	Status      string `json:"status"`
	AccessToken string `json:"accessToken,omitempty"`
}

// StartOAuth handles GET /auth/google
func (s *Server) StartOAuth(w http.ResponseWriter, r *http.Request) {
	u, err := s.Gateway.StartOAuth(r.Context())
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, urlResp{URL: u})
}

// Callback handles GET /callback, the provider redirect target.
func (s *Server) Callback(w http.ResponseWriter, r *http.Request) {
	res := s.Gateway.HandleCallback(r.Context(), r.URL.Query())
	data := pageData{Flow: string(res.Flow), IngestPath: IngestPath, Message: res.Message}

	switch res.Page {
	case gateway.PageSuccess:
		renderPage(w, r, "success.html", data)
	case gateway.PageForward:
		renderPage(w, r, "forward.html", data)
	default:
		renderPage(w, r, "error.html", data)
	}
}

// IngestToken handles POST /google-success and /ingest-token. Idempotent: an
// empty or unreadable body is acknowledged like any other.
func (s *Server) IngestToken(w http.ResponseWriter, r *http.Request) {
	var req ingestReq
	if err := decodeJSON(r, &req); err != nil {
		log.Ctx(r.Context()).Debug().Err(err).Msg("ingest body unreadable, acknowledging")
	}

	if err := s.Gateway.IngestToken(r.Context(), req.Flow, req.AccessToken); err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResp{Status: "ok"})
}

// CheckOAuth handles GET /check-google, the read-once poll.
func (s *Server) CheckOAuth(w http.ResponseWriter, r *http.Request) {
	res, err := s.Gateway.PollOAuth(r.Context())
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, pollResp{Status: res.Status, AccessToken: res.AccessToken})
}
