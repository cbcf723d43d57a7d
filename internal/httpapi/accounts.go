package httpapi

import (
	"net/http"

	"github.com/emsana/authbridge/internal/auth"
)

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type messageResp struct {
	Message string `json:"message"`
}

type loginResp struct {
	Message     string `json:"message"`
	AccessToken string `json:"accessToken"`
}

type tokenReq struct {
	AccessToken string `json:"accessToken"`
}

type verifyResp struct {
	Valid bool `json:"valid"`
}

type statusResp struct {
	Status string `json:"status"`
}

// Register handles POST /register
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Некорректный запрос")
		return
	}

	if err := s.Gateway.Register(r.Context(), req.Email, req.Password); err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResp{Message: "Регистрация прошла успешно"})
}

// Login handles POST /login
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Некорректный запрос")
		return
	}

	tok, err := s.Gateway.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, loginResp{Message: "Вход выполнен", AccessToken: tok.AccessToken})
}

// VerifySession handles POST /verify-session. Unreadable input is simply invalid.
func (s *Server) VerifySession(w http.ResponseWriter, r *http.Request) {
	var req tokenReq
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, verifyResp{Valid: false})
		return
	}
	writeJSON(w, http.StatusOK, verifyResp{Valid: s.Gateway.VerifySession(r.Context(), req.AccessToken)})
}

// Logout handles POST /logout. Best effort: always acknowledges.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	var req tokenReq
	_ = decodeJSON(r, &req)
	if req.AccessToken == "" {
		req.AccessToken, _ = auth.BearerToken(r)
	}
	s.Gateway.Logout(r.Context(), req.AccessToken)
	writeJSON(w, http.StatusOK, statusResp{Status: "ok"})
}
