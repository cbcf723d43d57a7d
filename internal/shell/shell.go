// Package shell routes the client between its scenes. It owns no UI: the
// terminal UI and the CLI both drive it.
package shell

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/emsana/authbridge/internal/poller"
	"github.com/emsana/authbridge/internal/session"
)

type Scene int

const (
	SceneAuth Scene = iota
	SceneOnboarding
	SceneMain
	SceneParentDashboard
	SceneChildSpace
)

func (s Scene) String() string {
	switch s {
	case SceneAuth:
		return "auth"
	case SceneOnboarding:
		return "onboarding"
	case SceneMain:
		return "main"
	case SceneParentDashboard:
		return "parent_dashboard"
	case SceneChildSpace:
		return "child_space"
	default:
		return fmt.Sprintf("scene(%d)", int(s))
	}
}

var (
	// ErrSessionInvalid means the stored token was rejected and wiped.
	ErrSessionInvalid = errors.New("stored session is no longer valid")
	ErrWrongPIN       = errors.New("wrong parent PIN")
	ErrNotOnboarded   = errors.New("parent profile is not set up")
)

// Gateway is the part of the gateway client the shell uses.
type Gateway interface {
	poller.Source
	Register(ctx context.Context, email, password string) (string, error)
	Login(ctx context.Context, email, password string) (string, error)
	VerifySession(ctx context.Context, accessToken string) (bool, error)
	Logout(ctx context.Context, accessToken string) error
	StartGoogle(ctx context.Context) (string, error)
}

// Sessions is the device-local record store. *session.Store satisfies it.
type Sessions interface {
	Load() (session.Record, error)
	SetToken(token string) error
	SaveOnboarding(parentName, childName, pin string) error
	CheckPIN(pin string) (bool, error)
	Clear() error
}

type Shell struct {
	gw    Gateway
	store Sessions

	mu    sync.Mutex
	scene Scene
}

func New(gw Gateway, store Sessions) *Shell {
	return &Shell{gw: gw, store: store, scene: SceneAuth}
}

func (s *Shell) Scene() Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene
}

func (s *Shell) setScene(sc Scene) Scene {
	s.mu.Lock()
	prev := s.scene
	s.scene = sc
	s.mu.Unlock()
	if prev != sc {
		log.Debug().Str("from", prev.String()).Str("to", sc.String()).Msg("scene change")
	}
	return sc
}

// Record returns the stored profile for display. Errors yield an empty record.
func (s *Shell) Record() session.Record {
	rec, err := s.store.Load()
	if err != nil {
		log.Warn().Err(err).Msg("failed to load session")
	}
	return rec
}

// Start picks the first scene. A stored token is verified with the gateway;
// any doubt wipes the session and lands on Auth.
func (s *Shell) Start(ctx context.Context) (Scene, error) {
	rec, err := s.store.Load()
	if err != nil {
		return s.setScene(SceneAuth), fmt.Errorf("load session: %w", err)
	}
	if !rec.HasToken() {
		return s.setScene(SceneAuth), nil
	}

	valid, err := s.gw.VerifySession(ctx, rec.AccessToken)
	if err != nil || !valid {
		log.Info().Err(err).Bool("valid", valid).Msg("stored session rejected, wiping")
		if clearErr := s.store.Clear(); clearErr != nil {
			log.Error().Err(clearErr).Msg("failed to wipe session")
		}
		if err != nil {
			return s.setScene(SceneAuth), fmt.Errorf("%w: %w", ErrSessionInvalid, err)
		}
		return s.setScene(SceneAuth), ErrSessionInvalid
	}
	return s.setScene(afterSignIn(rec)), nil
}

func afterSignIn(rec session.Record) Scene {
	if rec.Onboarded() {
		return SceneMain
	}
	return SceneOnboarding
}

// signedIn persists a fresh token and routes on.
func (s *Shell) signedIn(token string) (Scene, error) {
	if err := s.store.SetToken(token); err != nil {
		return s.Scene(), fmt.Errorf("save session: %w", err)
	}
	rec, err := s.store.Load()
	if err != nil {
		return s.Scene(), fmt.Errorf("load session: %w", err)
	}
	return s.setScene(afterSignIn(rec)), nil
}

func (s *Shell) Login(ctx context.Context, email, password string) (Scene, error) {
	tok, err := s.gw.Login(ctx, email, password)
	if err != nil {
		return s.Scene(), err
	}
	return s.signedIn(tok)
}

// Register creates the account and signs straight in with the same credentials.
func (s *Shell) Register(ctx context.Context, email, password string) (Scene, error) {
	if _, err := s.gw.Register(ctx, email, password); err != nil {
		return s.Scene(), err
	}
	return s.Login(ctx, email, password)
}

// BeginGoogle asks the gateway for a fresh sign-in URL to open in the browser.
func (s *Shell) BeginGoogle(ctx context.Context) (string, error) {
	return s.gw.StartGoogle(ctx)
}

// CompleteGoogle stores the credential a poll returned.
func (s *Shell) CompleteGoogle(token string) (Scene, error) {
	return s.signedIn(token)
}

// GoogleSignIn runs the whole browser flow: start, open, poll, store.
func (s *Shell) GoogleSignIn(ctx context.Context, p *poller.Poller, open func(string) error) (Scene, error) {
	u, err := s.BeginGoogle(ctx)
	if err != nil {
		return s.Scene(), err
	}
	if err := open(u); err != nil {
		log.Warn().Err(err).Msg("could not open browser")
	}
	res, err := p.Run(ctx)
	if err != nil {
		return s.Scene(), err
	}
	return s.CompleteGoogle(res.Token)
}

func (s *Shell) SaveOnboarding(parentName, childName, pin string) (Scene, error) {
	if err := s.store.SaveOnboarding(parentName, childName, pin); err != nil {
		return s.Scene(), err
	}
	return s.setScene(SceneMain), nil
}

// OpenParent is the PIN gate in front of the parent dashboard.
func (s *Shell) OpenParent(pin string) (Scene, error) {
	rec, err := s.store.Load()
	if err != nil {
		return s.Scene(), err
	}
	if !rec.Onboarded() {
		return s.setScene(SceneOnboarding), ErrNotOnboarded
	}
	ok, err := s.store.CheckPIN(pin)
	if err != nil {
		return s.Scene(), err
	}
	if !ok {
		return s.Scene(), ErrWrongPIN
	}
	return s.setScene(SceneParentDashboard), nil
}

func (s *Shell) OpenChild() Scene {
	return s.setScene(SceneChildSpace)
}

// Back returns to the profile picker.
func (s *Shell) Back() Scene {
	return s.setScene(SceneMain)
}

// Logout revokes the token at the gateway when possible and always wipes the
// device.
func (s *Shell) Logout(ctx context.Context) (Scene, error) {
	rec, err := s.store.Load()
	if err == nil && rec.HasToken() {
		if err := s.gw.Logout(ctx, rec.AccessToken); err != nil {
			log.Warn().Err(err).Msg("gateway logout failed, wiping locally anyway")
		}
	}
	clearErr := s.store.Clear()
	return s.setScene(SceneAuth), clearErr
}
