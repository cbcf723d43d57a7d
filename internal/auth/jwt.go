package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer name embedded in every gateway token.
const Issuer = "emsana-authbridge"

var ErrInvalidToken = errors.New("invalid session token")

// JWTCfg holds gateway token configuration
type JWTCfg struct {
	HS256Secret string        // HMAC secret for HS256 tokens
	TTL         time.Duration // Lifetime of issued tokens
}

// Claims carried by a gateway-issued session token.
type Claims struct {
	Email    string `json:"email,omitempty"`
	Provider string `json:"provider,omitempty"`
	jwt.RegisteredClaims
}

// Signer mints and validates HS256 session tokens for identity providers that
// only hand back identity facts (e.g. a Google id_token) rather than a session.
type Signer struct {
	cfg JWTCfg
	now func() time.Time
}

func NewSigner(cfg JWTCfg) (*Signer, error) {
	if len(cfg.HS256Secret) < 16 {
		return nil, fmt.Errorf("JWT HS256 secret must be at least 16 bytes")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Signer{cfg: cfg, now: time.Now}, nil
}

// Issue signs a token for subject sub.
func (s *Signer) Issue(sub, email, provider string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.TTL)
	claims := Claims{
		Email:    email,
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.HS256Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses tok and returns its claims. Any failure wraps ErrInvalidToken.
func (s *Signer) Validate(tok string) (*Claims, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(s.cfg.HS256Secret), nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !t.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// Verify satisfies identity.Verifier.
func (s *Signer) Verify(_ context.Context, tok string) error {
	_, err := s.Validate(tok)
	return err
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) <= 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return "", false
	}
	return h[7:], true
}
