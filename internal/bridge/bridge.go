package bridge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ExchangeFunc turns an authorization code into a bearer token. verifier is
// the PKCE code verifier stored with the flow when it started.
type ExchangeFunc func(ctx context.Context, flow FlowID, verifier, code string) (string, error)

// Outcome of handing an Arrival to the bridge.
type Outcome int

const (
	// Accepted: the credential is now pending for the current flow.
	Accepted Outcome = iota
	// Dropped: the arrival was late, out of epoch, or lost a race.
	Dropped
	// Ignored: the arrival carried nothing.
	Ignored
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Dropped:
		return "dropped"
	default:
		return "ignored"
	}
}

// Bridge owns the PendingAuth slot and is the only way to mutate it.
type Bridge struct {
	slot     Slot
	exchange ExchangeFunc
}

func New(slot Slot, exchange ExchangeFunc) *Bridge {
	return &Bridge{slot: slot, exchange: exchange}
}

// Start resets PendingAuth to Waiting under a new flow ID. Any credential of a
// previous flow is discarded.
func (b *Bridge) Start(ctx context.Context, verifier string) (FlowID, error) {
	flow, err := b.slot.Reset(ctx, verifier)
	if err != nil {
		return "", fmt.Errorf("reset pending auth: %w", err)
	}
	log.Ctx(ctx).Info().Str("flow", string(flow)).Msg("oauth flow started")
	return flow, nil
}

// Accept applies an arrival. The first arrival to complete a flow wins; codes
// for a flow the slot no longer accepts are not exchanged at all.
func (b *Bridge) Accept(ctx context.Context, a Arrival) (Outcome, error) {
	logger := log.Ctx(ctx).With().
		Str("flow", string(a.Flow())).
		Str("arrival", a.kind()).
		Logger()

	var (
		flow = a.Flow()
		cred string
	)

	switch a := a.(type) {
	case CodeArrival:
		if a.Code == "" {
			return Ignored, nil
		}
		snap, err := b.slot.Peek(ctx)
		if err != nil {
			return Dropped, fmt.Errorf("peek pending auth: %w", err)
		}
		if !snap.Accepts(a.FlowID) {
			logger.Warn().Str("status", snap.Status.String()).Bool("delivered", snap.Delivered).
				Msg("dropping authorization code for inactive flow")
			return Dropped, nil
		}
		// Pin the epoch so a restart during the exchange invalidates this code.
		flow = snap.Flow
		tok, err := b.exchange(ctx, flow, snap.Verifier, a.Code)
		if err != nil {
			return Dropped, fmt.Errorf("exchange code: %w", err)
		}
		cred = tok

	case FragmentArrival:
		if a.Token == "" {
			return Ignored, nil
		}
		cred = a.Token

	default:
		return Ignored, fmt.Errorf("unknown arrival type %T", a)
	}

	ok, err := b.slot.Complete(ctx, flow, cred)
	if err != nil {
		return Dropped, fmt.Errorf("complete pending auth: %w", err)
	}
	if !ok {
		logger.Warn().Msg("dropping late credential")
		return Dropped, nil
	}
	logger.Info().Msg("oauth credential pending")
	return Accepted, nil
}

// Poll is the read-once drain: a Success is returned to exactly one caller.
func (b *Bridge) Poll(ctx context.Context) (Snapshot, error) {
	snap, err := b.slot.Drain(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("drain pending auth: %w", err)
	}
	if snap.Status == StatusSuccess {
		log.Ctx(ctx).Info().Str("flow", string(snap.Flow)).Msg("oauth credential delivered")
	}
	return snap, nil
}

// Peek exposes the slot state for diagnostics and tests.
func (b *Bridge) Peek(ctx context.Context) (Snapshot, error) {
	return b.slot.Peek(ctx)
}
