// Package bridge coordinates a browser-based OAuth login with a polling
// client through a single PendingAuth slot.
//
// Every flow started on the gateway gets a fresh flow ID. A credential is
// accepted only while the slot is Waiting for that same flow and before the
// flow has been delivered to a poller; anything else (late fragment tokens,
// arrivals for an abandoned flow, a second arrival after the first) is
// dropped. Poll is read-once: a Success is handed to exactly one caller and
// the slot goes back to Waiting.
package bridge

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Status of the PendingAuth slot as seen by the gateway.
type Status int

const (
	StatusIdle Status = iota
	StatusWaiting
	StatusSuccess
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusSuccess:
		return "success"
	default:
		return "idle"
	}
}

// FlowID identifies one OAuth flow. The empty FlowID means "unknown" and is
// only accepted for the current Waiting flow.
type FlowID string

func NewFlowID() FlowID {
	return FlowID(uuid.NewString())
}

// Snapshot is a copy of the slot contents.
type Snapshot struct {
	Status     Status
	Flow       FlowID
	Credential string
	Delivered  bool   // a credential for Flow was already handed to a poller
	Verifier   string // PKCE code verifier bound to Flow, empty for implicit flows
}

// Accepts reports whether a credential for flow would be stored right now.
func (s Snapshot) Accepts(flow FlowID) bool {
	if s.Status != StatusWaiting || s.Delivered {
		return false
	}
	return flow == "" || flow == s.Flow
}

var ErrEmptyCredential = errors.New("empty credential")

// Slot is the single shared PendingAuth value. Implementations must make each
// method atomic with respect to the others.
type Slot interface {
	// Reset starts a new flow: status Waiting, no credential, new flow ID.
	// verifier is kept with the flow so any replica can finish the exchange.
	Reset(ctx context.Context, verifier string) (FlowID, error)

	// Complete stores cred when the slot accepts flow (see Snapshot.Accepts).
	// Returns false when the arrival was dropped.
	Complete(ctx context.Context, flow FlowID, cred string) (bool, error)

	// Drain returns the current value and, if it was Success, demotes the
	// slot to Waiting with no credential and marks the flow delivered.
	Drain(ctx context.Context) (Snapshot, error)

	// Peek returns the current value without changing it.
	Peek(ctx context.Context) (Snapshot, error)
}
