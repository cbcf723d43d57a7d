package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/emsana/authbridge/internal/client"
	"github.com/emsana/authbridge/internal/clientcfg"
	"github.com/emsana/authbridge/internal/poller"
	"github.com/emsana/authbridge/internal/session"
	"github.com/emsana/authbridge/internal/shell"
	"github.com/emsana/authbridge/internal/tui"
)

const version = "0.1.0"

var (
	configPath  = flag.String("config", clientcfg.DefaultPath(), "Path to configuration file (TOML)")
	serverURL   = flag.String("server", "", "Gateway URL (overrides config and EMSANA_SERVER_URL)")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	showVersion = flag.Bool("version", false, "Show version information")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: emsana [flags] [command]

Commands:
  register -email E [-password P]   create an account and sign in
  login -email E [-password P]      sign in with email and password
  google                            sign in through the browser
  onboard -parent N -child N -pin P set up the parent profile
  status                            show the stored session
  logout                            sign out and wipe this device

Without a command the terminal UI starts. The password may also come
from EMSANA_PASSWORD.

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("emsana version %s\n", version)
		os.Exit(0)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling so a running poll stops cleanly
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	gw := client.New(cfg.ServerURL)
	sh := shell.New(gw, session.NewStore(cfg.SessionFile, cfg.UseKeyring))

	args := flag.Args()
	if len(args) == 0 {
		if err := runTUI(ctx, cfg, gw, sh); err != nil {
			fmt.Fprintf(os.Stderr, "emsana: %v\n", err)
			os.Exit(1)
		}
		return
	}

	setupLogging(os.Stderr, *logLevel, true)
	if err := runCommand(ctx, cfg, gw, sh, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %s\n", shell.Message(err))
		log.Debug().Err(err).Str("command", args[0]).Msg("command failed")
		os.Exit(1)
	}
}

// loadConfig loads the configuration from file and environment, then applies flags
func loadConfig() (clientcfg.Config, error) {
	cfg, err := clientcfg.LoadFrom(*configPath)
	if err != nil {
		return cfg, err
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	// Validate configuration AFTER applying CLI overrides
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// setupLogging configures the global logger
func setupLogging(w io.Writer, level string, console bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
		return
	}
	log.Logger = zerolog.New(w).With().Timestamp().Str("service", "emsana").Logger()
}

func runTUI(ctx context.Context, cfg clientcfg.Config, gw *client.Client, sh *shell.Shell) error {
	// The screen belongs to the UI; logs go to a file next to the config.
	logPath := filepath.Join(filepath.Dir(*configPath), "emsana.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	setupLogging(f, *logLevel, false)

	log.Info().Str("version", version).Str("server", cfg.ServerURL).Msg("starting emsana")

	m := tui.NewAppModel(ctx, sh, gw, tui.PollConfig{
		Attempts: cfg.PollAttempts,
		Interval: cfg.PollInterval(),
	}, tui.OpenBrowser)

	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func runCommand(ctx context.Context, cfg clientcfg.Config, gw *client.Client, sh *shell.Shell, name string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("EMSANA_PASSWORD"), "account password")
	parent := fs.String("parent", "", "parent name")
	child := fs.String("child", "", "child name")
	pin := fs.String("pin", "", "4-digit parent PIN")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch name {
	case "register":
		scene, err := sh.Register(ctx, *email, *password)
		return report(scene, err)

	case "login":
		scene, err := sh.Login(ctx, *email, *password)
		return report(scene, err)

	case "google":
		p := poller.New(gw, &waitLine{}, cfg.PollAttempts, cfg.PollInterval())
		scene, err := sh.GoogleSignIn(ctx, p, func(u string) error {
			fmt.Printf("Откройте ссылку для входа:\n  %s\n", u)
			return tui.OpenBrowser(u)
		})
		return report(scene, err)

	case "onboard":
		scene, err := sh.Start(ctx)
		if err != nil {
			return err
		}
		if scene == shell.SceneAuth {
			return errors.New("сначала войдите: emsana login или emsana google")
		}
		scene, err = sh.SaveOnboarding(*parent, *child, *pin)
		return report(scene, err)

	case "status":
		scene, err := sh.Start(ctx)
		rec := sh.Record()
		fmt.Printf("server:  %s\nscene:   %s\n", cfg.ServerURL, scene)
		if rec.Onboarded() {
			fmt.Printf("parent:  %s\nchild:   %s\n", rec.ParentName, rec.ChildName)
		}
		if errors.Is(err, shell.ErrSessionInvalid) {
			fmt.Println(shell.MsgSessionExpired)
			return nil
		}
		return err

	case "logout":
		_, err := sh.Logout(ctx)
		if err == nil {
			fmt.Println("Вы успешно вышли!")
		}
		return err

	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", name)
	}
}

// waitLine is the command-line poller UI: it announces the wait and
// reports how long it took.
type waitLine struct{ start time.Time }

func (w *waitLine) Lock() {
	w.start = time.Now()
	fmt.Println("Ожидание входа в браузере...")
}

func (w *waitLine) Unlock() {
	log.Debug().Dur("waited", time.Since(w.start)).Msg("browser sign-in wait finished")
}

func report(scene shell.Scene, err error) error {
	if err != nil {
		return err
	}
	switch scene {
	case shell.SceneOnboarding:
		fmt.Println("Вход выполнен. Настройте профиль: emsana onboard -parent ... -child ... -pin ...")
	default:
		fmt.Println("Готово.")
	}
	return nil
}
