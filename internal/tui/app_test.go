package tui_test

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/zalando/go-keyring"

	"github.com/emsana/authbridge/internal/client"
	"github.com/emsana/authbridge/internal/session"
	"github.com/emsana/authbridge/internal/shell"
	"github.com/emsana/authbridge/internal/tui"
)

// fakeGateway satisfies shell.Gateway for TUI tests.
type fakeGateway struct {
	mu        sync.Mutex
	valid     map[string]bool
	pollToken string
	block     chan struct{}
	loggedOut int
}

func (g *fakeGateway) Register(context.Context, string, string) (string, error) { return "ok", nil }

func (g *fakeGateway) Login(_ context.Context, email, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.valid["tok-"+email] = true
	return "tok-" + email, nil
}

func (g *fakeGateway) VerifySession(_ context.Context, tok string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.valid[tok], nil
}

func (g *fakeGateway) Logout(context.Context, string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loggedOut++
	return nil
}

func (g *fakeGateway) StartGoogle(context.Context) (string, error) {
	return "https://idp.example.test/authorize", nil
}

func (g *fakeGateway) CheckGoogle(ctx context.Context) (client.PollStatus, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return client.PollStatus{}, ctx.Err()
		}
	}
	if g.pollToken == "" {
		return client.PollStatus{Status: "waiting"}, nil
	}
	return client.PollStatus{Status: "success", AccessToken: g.pollToken}, nil
}

type harness struct {
	gw     *fakeGateway
	store  *session.Store
	opened []string
}

func newApp(t *testing.T, setup func(h *harness)) (tui.AppModel, *harness) {
	t.Helper()
	keyring.MockInit()
	h := &harness{
		gw:    &fakeGateway{valid: map[string]bool{}},
		store: session.NewStore(filepath.Join(t.TempDir(), "session.toml"), true),
	}
	if setup != nil {
		setup(h)
	}
	sh := shell.New(h.gw, h.store)
	m := tui.NewAppModel(context.Background(), sh, h.gw, tui.PollConfig{Attempts: 3}, func(u string) error {
		h.opened = append(h.opened, u)
		return nil
	})

	// Run the startup check.
	updated, _ := m.Update(m.Init()())
	return updated.(tui.AppModel), h
}

func key(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "ctrl+g":
		return tea.KeyMsg{Type: tea.KeyCtrlG}
	case "ctrl+t":
		return tea.KeyMsg{Type: tea.KeyCtrlT}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func press(m tui.AppModel, keys ...string) (tui.AppModel, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		var updated tea.Model
		updated, cmd = m.Update(key(k))
		m = updated.(tui.AppModel)
	}
	return m, cmd
}

func typeText(m tui.AppModel, s string) tui.AppModel {
	for _, r := range s {
		m, _ = press(m, string(r))
	}
	return m
}

func deliver(t *testing.T, m tui.AppModel, cmd tea.Cmd) (tui.AppModel, tea.Cmd) {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	updated, next := m.Update(cmd())
	return updated.(tui.AppModel), next
}

func onboarded(h *harness) {
	h.gw.valid["t"] = true
	h.store.SaveOnboarding("Анна", "Мила", "1234")
	h.store.SetToken("t")
}

func TestApp_StartsOnAuthWithoutSession(t *testing.T) {
	m, _ := newApp(t, nil)
	if m.Scene() != shell.SceneAuth {
		t.Fatalf("expected auth, got %v", m.Scene())
	}
	if !strings.Contains(m.View(), "Регистрация в EmSana") {
		t.Errorf("expected register title, got:\n%s", m.View())
	}
}

func TestApp_LoginForm(t *testing.T) {
	m, h := newApp(t, nil)

	m, _ = press(m, "ctrl+t")
	if !strings.Contains(m.View(), "Вход в EmSana") {
		t.Fatalf("expected login title after toggle, got:\n%s", m.View())
	}
	m = typeText(m, "a@x.com")
	m, _ = press(m, "tab")
	m = typeText(m, "pw123456")
	if strings.Contains(m.View(), "pw123456") {
		t.Error("password must be masked")
	}

	m, cmd := press(m, "enter")
	m, _ = deliver(t, m, cmd)

	if m.Scene() != shell.SceneOnboarding {
		t.Errorf("expected onboarding, got %v", m.Scene())
	}
	if rec, _ := h.store.Load(); rec.AccessToken != "tok-a@x.com" {
		t.Errorf("expected token stored, got %+v", rec)
	}
}

func TestApp_GoogleButtonDisabledWhilePolling(t *testing.T) {
	m, h := newApp(t, nil)
	h.gw.pollToken = "google-tok"

	m, cmd := press(m, "ctrl+g")
	if !m.Polling() {
		t.Error("expected button disabled as soon as sign-in starts")
	}
	m, pollCmd := deliver(t, m, cmd)

	if len(h.opened) != 1 {
		t.Errorf("expected browser opened once, got %v", h.opened)
	}
	if !m.Polling() || !strings.Contains(m.View(), "недоступно") {
		t.Errorf("expected google button disabled while polling, got:\n%s", m.View())
	}
	if _, again := press(m, "ctrl+g"); again != nil {
		t.Error("second sign-in must not start while polling")
	}

	m, _ = press(m, "o")
	if len(h.opened) != 2 {
		t.Errorf("expected o to reopen the browser, got %v", h.opened)
	}

	m, _ = deliver(t, m, pollCmd)
	if m.Polling() {
		t.Error("expected button enabled after poll")
	}
	if m.Scene() != shell.SceneOnboarding {
		t.Errorf("expected onboarding after google sign-in, got %v", m.Scene())
	}
}

func TestApp_GooglePollTimesOut(t *testing.T) {
	m, _ := newApp(t, nil)

	m, cmd := press(m, "ctrl+g")
	m, pollCmd := deliver(t, m, cmd)
	m, _ = deliver(t, m, pollCmd)

	if m.Scene() != shell.SceneAuth || m.Polling() {
		t.Errorf("expected auth and unlocked, got %v polling=%v", m.Scene(), m.Polling())
	}
	if !strings.Contains(m.View(), shell.MsgSignInTimedOut) {
		t.Errorf("expected timeout message, got:\n%s", m.View())
	}
}

func TestApp_GoogleButtonStaysDisabledUntilPollResultApplied(t *testing.T) {
	m, _ := newApp(t, nil)

	m, cmd := press(m, "ctrl+g")
	m, pollCmd := deliver(t, m, cmd)

	// The poll goroutine has finished but its result is still queued.
	msg := pollCmd()
	if !m.Polling() {
		t.Error("expected polling until the result is applied")
	}
	if _, again := press(m, "ctrl+g"); again != nil {
		t.Error("sign-in must not restart before the poll result is applied")
	}

	next, _ := m.Update(msg)
	m = next.(tui.AppModel)
	if m.Polling() {
		t.Error("expected button enabled after poll result")
	}
}

func TestApp_QuitCancelsPoll(t *testing.T) {
	m, h := newApp(t, nil)
	h.gw.block = make(chan struct{})

	m, cmd := press(m, "ctrl+g")
	m, pollCmd := deliver(t, m, cmd)

	done := make(chan tea.Msg, 1)
	go func() { done <- pollCmd() }()

	_, quitCmd := press(m, "ctrl+c")
	if _, ok := quitCmd().(tea.QuitMsg); !ok {
		t.Error("expected quit command")
	}

	select {
	case msg := <-done:
		if pd, ok := msg.(tui.PollDoneMsg); !ok || pd.Err == nil {
			t.Errorf("expected cancelled poll, got %#v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not stop after quit")
	}
}

func TestApp_WrongPINClearsInput(t *testing.T) {
	m, _ := newApp(t, onboarded)
	if m.Scene() != shell.SceneMain {
		t.Fatalf("expected main, got %v", m.Scene())
	}

	m, _ = press(m, "p")
	m = typeText(m, "0000")
	m, _ = press(m, "enter")

	view := m.View()
	if !strings.Contains(view, "Неверный ПИН-код!") {
		t.Errorf("expected wrong pin message, got:\n%s", view)
	}
	if strings.Contains(view, "****") {
		t.Errorf("expected pin input cleared, got:\n%s", view)
	}
	if m.Scene() != shell.SceneMain {
		t.Errorf("expected to stay on main, got %v", m.Scene())
	}

	m = typeText(m, "1234")
	m, _ = press(m, "enter")
	if m.Scene() != shell.SceneParentDashboard {
		t.Errorf("expected dashboard, got %v", m.Scene())
	}
}

func TestApp_LogoutReturnsToAuth(t *testing.T) {
	m, h := newApp(t, onboarded)

	m, _ = press(m, "p")
	m = typeText(m, "1234")
	m, _ = press(m, "enter")
	m, cmd := press(m, "l")
	m, _ = deliver(t, m, cmd)

	if m.Scene() != shell.SceneAuth {
		t.Errorf("expected auth after logout, got %v", m.Scene())
	}
	if h.gw.loggedOut != 1 {
		t.Errorf("expected gateway logout, got %d", h.gw.loggedOut)
	}
	if rec, _ := h.store.Load(); rec != (session.Record{}) {
		t.Errorf("expected wiped session, got %+v", rec)
	}
}

func TestApp_ChildSpaceAndBack(t *testing.T) {
	m, _ := newApp(t, onboarded)

	m, _ = press(m, "c")
	if m.Scene() != shell.SceneChildSpace || !strings.Contains(m.View(), "Мила") {
		t.Errorf("expected child space for Мила, got %v:\n%s", m.Scene(), m.View())
	}
	m, _ = press(m, "b")
	if m.Scene() != shell.SceneMain {
		t.Errorf("expected main, got %v", m.Scene())
	}
}

func TestApp_OnboardingValidation(t *testing.T) {
	m, h := newApp(t, func(h *harness) {
		h.gw.valid["t"] = true
		h.store.SetToken("t")
	})
	if m.Scene() != shell.SceneOnboarding {
		t.Fatalf("expected onboarding, got %v", m.Scene())
	}

	m = typeText(m, "Анна")
	m, _ = press(m, "tab")
	m = typeText(m, "Мила")
	m, _ = press(m, "tab")
	m = typeText(m, "12")
	m, _ = press(m, "enter")
	if !strings.Contains(m.View(), shell.MsgPINFormat) {
		t.Errorf("expected pin format message, got:\n%s", m.View())
	}
	if rec, _ := h.store.Load(); rec.Onboarded() {
		t.Error("nothing should be saved on invalid input")
	}

	m = typeText(m, "34")
	m, _ = press(m, "enter")
	if m.Scene() != shell.SceneMain {
		t.Errorf("expected main, got %v", m.Scene())
	}
}
