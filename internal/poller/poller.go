// Package poller waits for a browser sign-in to land at the gateway.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/emsana/authbridge/internal/client"
)

// ErrAlreadyRunning is returned when Run is called while a poll is in progress.
var ErrAlreadyRunning = errors.New("poller: a sign-in poll is already running")

// ErrTimedOut is returned when every attempt came back without a credential.
type ErrTimedOut struct {
	Attempts int
}

func (e ErrTimedOut) Error() string {
	return fmt.Sprintf("sign-in not completed after %d attempts", e.Attempts)
}

// Source answers one poll.
type Source interface {
	CheckGoogle(ctx context.Context) (client.PollStatus, error)
}

// UI is locked for the whole run so the sign-in button cannot start a second
// flow. Callers that keep their own lock state pass a nil UI.
type UI interface {
	Lock()
	Unlock()
}

// MinAttemptTimeout bounds a single poll when the interval is shorter.
const MinAttemptTimeout = 2 * time.Second

type Outcome int

const (
	Success Outcome = iota
	TimedOut
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case TimedOut:
		return "timed_out"
	default:
		return "cancelled"
	}
}

type Result struct {
	Outcome  Outcome
	Token    string
	Attempts int
}

type Poller struct {
	src            Source
	ui             UI
	maxAttempts    int
	interval       time.Duration
	attemptTimeout time.Duration
	running        atomic.Bool
}

// New builds a poller making exactly maxAttempts polls, sleeping interval
// before each one. Each poll gets max(interval, MinAttemptTimeout) to answer,
// so a run lasts about maxAttempts*interval plus that allowance. ui may be nil.
func New(src Source, ui UI, maxAttempts int, interval time.Duration) *Poller {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Poller{
		src:            src,
		ui:             ui,
		maxAttempts:    maxAttempts,
		interval:       interval,
		attemptTimeout: max(interval, MinAttemptTimeout),
	}
}

// Running reports whether a poll is in progress.
func (p *Poller) Running() bool { return p.running.Load() }

// Run blocks until a credential arrives, the attempts run out, or ctx is done.
// Poll failures are swallowed; the next attempt simply tries again.
func (p *Poller) Run(ctx context.Context) (Result, error) {
	if !p.running.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyRunning
	}
	defer p.running.Store(false)

	if p.ui != nil {
		p.ui.Lock()
		defer p.ui.Unlock()
	}

	logger := log.With().Str("component", "poller").Logger()

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := p.wait(ctx); err != nil {
			logger.Debug().Int("attempt", attempt).Msg("poll cancelled")
			return Result{Outcome: Cancelled, Attempts: attempt - 1}, err
		}

		st, err := p.check(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Result{Outcome: Cancelled, Attempts: attempt}, ctx.Err()
			}
			var transient client.ErrTransient
			if errors.As(err, &transient) || errors.Is(err, context.DeadlineExceeded) {
				logger.Debug().Err(err).Int("attempt", attempt).Msg("poll failed, will retry")
			} else {
				logger.Warn().Err(err).Int("attempt", attempt).Msg("poll rejected, will retry")
			}
			continue
		}

		if st.Done() {
			logger.Info().Int("attempt", attempt).Msg("sign-in completed")
			return Result{Outcome: Success, Token: st.AccessToken, Attempts: attempt}, nil
		}
	}

	logger.Info().Int("attempts", p.maxAttempts).Msg("sign-in poll timed out")
	return Result{Outcome: TimedOut, Attempts: p.maxAttempts}, ErrTimedOut{Attempts: p.maxAttempts}
}

func (p *Poller) check(ctx context.Context) (client.PollStatus, error) {
	actx, cancel := context.WithTimeout(ctx, p.attemptTimeout)
	defer cancel()
	return p.src.CheckGoogle(actx)
}

func (p *Poller) wait(ctx context.Context) error {
	if p.interval <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
