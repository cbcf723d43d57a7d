// Package tui is the terminal front end of the client.
package tui

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/emsana/authbridge/internal/poller"
	"github.com/emsana/authbridge/internal/session"
	"github.com/emsana/authbridge/internal/shell"
)

// SceneMsg is sent when a shell operation has picked the next scene.
// It is exported so that tests can inject it directly into AppModel.Update.
type SceneMsg struct {
	Scene shell.Scene
	Err   error
}

// GoogleStartedMsg carries the sign-in URL the gateway handed out.
type GoogleStartedMsg struct {
	URL string
	Err error
}

// PollDoneMsg is sent when the sign-in poll finishes.
type PollDoneMsg struct {
	Result poller.Result
	Err    error
}

// PollConfig sets how long a browser sign-in is waited for.
type PollConfig struct {
	Attempts int
	Interval time.Duration
}

// AppModel is the root Bubbletea model.
type AppModel struct {
	ctx        context.Context
	cancel     context.CancelFunc
	pollCancel context.CancelFunc

	sh   *shell.Shell
	poll *poller.Poller
	open func(string) error

	scene     shell.Scene
	record    session.Record
	loading   bool
	starting  bool
	polling   bool // set on GoogleStartedMsg, cleared only when PollDoneMsg is handled
	loginMode bool
	pinPrompt bool
	authURL   string
	status    string

	auth    form
	onboard form
	pin     form
}

// NewAppModel wires the UI to a shell. src answers the sign-in polls and open
// launches the browser.
func NewAppModel(ctx context.Context, sh *shell.Shell, src poller.Source, pc PollConfig, open func(string) error) AppModel {
	ctx, cancel := context.WithCancel(ctx)
	return AppModel{
		ctx:     ctx,
		cancel:  cancel,
		sh:      sh,
		poll:    poller.New(src, nil, pc.Attempts, pc.Interval),
		open:    open,
		loading: true,
		auth:    newAuthForm(),
	}
}

func newAuthForm() form {
	return newForm(field{label: "Email"}, field{label: "Пароль", masked: true})
}

func newOnboardForm() form {
	return newForm(
		field{label: "Ваше имя (Родитель)"},
		field{label: "Имя ребенка"},
		field{label: "Придумайте 4-значный ПИН-код", masked: true, limit: 4},
	)
}

func newPINForm() form {
	return newForm(field{label: "ПИН-код", masked: true, limit: 4})
}

// Scene is the scene currently shown.
func (m AppModel) Scene() shell.Scene { return m.scene }

// Polling reports whether a browser sign-in is in progress. The Google
// button is disabled meanwhile. Only Update changes it, so the button stays
// disabled until the poll result has been applied.
func (m AppModel) Polling() bool { return m.starting || m.polling }

func (m AppModel) Init() tea.Cmd {
	return func() tea.Msg {
		scene, err := m.sh.Start(m.ctx)
		return SceneMsg{Scene: scene, Err: err}
	}
}

func (m AppModel) signIn(email, password string, login bool) tea.Cmd {
	return func() tea.Msg {
		var scene shell.Scene
		var err error
		if login {
			scene, err = m.sh.Login(m.ctx, email, password)
		} else {
			scene, err = m.sh.Register(m.ctx, email, password)
		}
		return SceneMsg{Scene: scene, Err: err}
	}
}

func (m AppModel) startGoogle() tea.Cmd {
	return func() tea.Msg {
		u, err := m.sh.BeginGoogle(m.ctx)
		if err == nil {
			if openErr := m.open(u); openErr != nil {
				log.Warn().Err(openErr).Msg("could not open browser")
			}
		}
		return GoogleStartedMsg{URL: u, Err: err}
	}
}

func runPoll(ctx context.Context, p *poller.Poller) tea.Cmd {
	return func() tea.Msg {
		res, err := p.Run(ctx)
		return PollDoneMsg{Result: res, Err: err}
	}
}

func (m AppModel) logout() tea.Cmd {
	return func() tea.Msg {
		scene, err := m.sh.Logout(m.ctx)
		return SceneMsg{Scene: scene, Err: err}
	}
}

func (m AppModel) enter(scene shell.Scene) AppModel {
	m.scene = scene
	m.record = m.sh.Record()
	m.pinPrompt = false
	switch scene {
	case shell.SceneAuth:
		m.auth = newAuthForm()
	case shell.SceneOnboarding:
		m.onboard = newOnboardForm()
	}
	return m
}

func (m AppModel) quit() (tea.Model, tea.Cmd) {
	m.cancel()
	return m, tea.Quit
}

// Update handles all incoming messages and key events.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case SceneMsg:
		m.loading = false
		m = m.enter(msg.Scene)
		m.status = shell.Message(msg.Err)
		return m, nil

	case GoogleStartedMsg:
		m.starting = false
		if msg.Err != nil {
			m.status = shell.Message(msg.Err)
			return m, nil
		}
		m.authURL = msg.URL
		m.status = "Ожидание входа в браузере..."
		m.polling = true
		ctx, cancel := context.WithCancel(m.ctx)
		m.pollCancel = cancel
		return m, runPoll(ctx, m.poll)

	case PollDoneMsg:
		m.polling = false
		if m.pollCancel != nil {
			m.pollCancel()
			m.pollCancel = nil
		}
		m.authURL = ""
		if msg.Err != nil {
			m.status = shell.Message(msg.Err)
			return m, nil
		}
		scene, err := m.sh.CompleteGoogle(msg.Result.Token)
		m = m.enter(scene)
		m.status = shell.Message(err)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		if m.loading {
			return m, nil
		}
		switch m.scene {
		case shell.SceneAuth:
			return m.updateAuth(msg)
		case shell.SceneOnboarding:
			return m.updateOnboarding(msg)
		case shell.SceneMain:
			return m.updateMain(msg)
		case shell.SceneParentDashboard:
			return m.updateParent(msg)
		case shell.SceneChildSpace:
			return m.updateChild(msg)
		}
	}
	return m, nil
}

func (m AppModel) updateAuth(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.Polling() {
		switch msg.String() {
		case "o":
			if m.authURL != "" {
				if err := m.open(m.authURL); err != nil {
					m.status = "Откройте ссылку вручную: " + m.authURL
				}
			}
		case "esc":
			if m.pollCancel != nil {
				m.pollCancel()
			}
		}
		return m, nil
	}

	switch msg.String() {
	case "enter":
		email, password := strings.TrimSpace(m.auth.value(0)), m.auth.value(1)
		m.loading = true
		m.status = "Загрузка..."
		return m, m.signIn(email, password, m.loginMode)
	case "ctrl+t":
		m.loginMode = !m.loginMode
		m.status = ""
		return m, nil
	case "ctrl+g":
		m.starting = true
		m.status = "Запуск авторизации..."
		return m, m.startGoogle()
	}
	m.auth, _ = m.auth.update(msg)
	return m, nil
}

func (m AppModel) updateOnboarding(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "enter" {
		scene, err := m.sh.SaveOnboarding(m.onboard.value(0), m.onboard.value(1), m.onboard.value(2))
		if err != nil {
			m.status = shell.Message(err)
			return m, nil
		}
		m = m.enter(scene)
		m.status = ""
		return m, nil
	}
	m.onboard, _ = m.onboard.update(msg)
	return m, nil
}

func (m AppModel) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.pinPrompt {
		switch msg.String() {
		case "enter":
			scene, err := m.sh.OpenParent(m.pin.value(0))
			if err != nil {
				m.status = shell.Message(err)
				m.pin = m.pin.clear(0)
				if scene != shell.SceneMain {
					m = m.enter(scene)
				}
				return m, nil
			}
			m = m.enter(scene)
			m.status = ""
		case "esc":
			m.pinPrompt = false
			m.status = ""
		default:
			m.pin, _ = m.pin.update(msg)
		}
		return m, nil
	}

	switch msg.String() {
	case "p":
		m.pinPrompt = true
		m.pin = newPINForm()
	case "c":
		m = m.enter(m.sh.OpenChild())
	case "q":
		return m.quit()
	}
	return m, nil
}

func (m AppModel) updateParent(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "b", "esc":
		m = m.enter(m.sh.Back())
	case "l":
		m.loading = true
		return m, m.logout()
	case "q":
		return m.quit()
	}
	return m, nil
}

func (m AppModel) updateChild(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "b", "esc":
		m = m.enter(m.sh.Back())
	case "q":
		return m.quit()
	}
	return m, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// View renders the current scene.
func (m AppModel) View() string {
	var b strings.Builder
	parent := orDefault(m.record.ParentName, "Родитель")
	child := orDefault(m.record.ChildName, "Ребенок")

	switch {
	case m.loading && m.status == "":
		b.WriteString("Загрузка...\n")

	case m.scene == shell.SceneAuth:
		title, action, toggle := "Регистрация в EmSana", "Создать аккаунт", "Уже есть аккаунт? Войти"
		if m.loginMode {
			title, action, toggle = "Вход в EmSana", "Войти", "Нет аккаунта? Регистрация"
		}
		b.WriteString(title + "\nПлатформа для особенных детей\n\n")
		b.WriteString(m.auth.View() + "\n")
		b.WriteString("[enter] " + action + "\n")
		if m.Polling() {
			b.WriteString("[ctrl+g] Войти через Google (недоступно: идёт вход)\n")
			b.WriteString("[o] открыть ссылку снова  [esc] отмена\n")
		} else {
			b.WriteString("[ctrl+g] Войти через Google\n")
		}
		b.WriteString("[ctrl+t] " + toggle + "\n")

	case m.scene == shell.SceneOnboarding:
		b.WriteString("Добро пожаловать в EmSana!\nДавайте настроим профили для вас и ребенка.\n\n")
		b.WriteString(m.onboard.View() + "\n[enter] Сохранить и начать\n")

	case m.scene == shell.SceneMain && m.pinPrompt:
		b.WriteString("Доступ для " + parent + "\n\n")
		b.WriteString(m.pin.View() + "\n[enter] Войти  [esc] Отмена\n")

	case m.scene == shell.SceneMain:
		b.WriteString("Кто сейчас пользуется EmSana?\n\n")
		b.WriteString("[p] " + parent + "\n[c] " + child + "\n\n[q] выход\n")

	case m.scene == shell.SceneParentDashboard:
		b.WriteString("Панель управления (" + parent + ")\n\n")
		b.WriteString("[b] Назад к профилям\n[l] Выйти из аккаунта\n")

	case m.scene == shell.SceneChildSpace:
		b.WriteString("Космос (" + child + ")\n\n[b] Выйти в меню\n")
	}

	if m.status != "" {
		b.WriteString("\n" + m.status + "\n")
	}
	return b.String()
}
