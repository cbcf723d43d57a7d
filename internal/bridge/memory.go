package bridge

import (
	"context"
	"sync"
	"time"
)

// MemorySlot is a mutex guarded in-process Slot. The zero TTL disables expiry.
type MemorySlot struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	state     Snapshot
	startedAt time.Time
}

func NewMemorySlot(ttl time.Duration) *MemorySlot {
	return &MemorySlot{ttl: ttl, now: time.Now}
}

func (m *MemorySlot) Reset(_ context.Context, verifier string) (FlowID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	flow := NewFlowID()
	m.state = Snapshot{Status: StatusWaiting, Flow: flow, Verifier: verifier}
	m.startedAt = m.now()
	return flow, nil
}

func (m *MemorySlot) Complete(_ context.Context, flow FlowID, cred string) (bool, error) {
	if cred == "" {
		return false, ErrEmptyCredential
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked()
	if !m.state.Accepts(flow) {
		return false, nil
	}
	m.state.Status = StatusSuccess
	m.state.Credential = cred
	return true, nil
}

func (m *MemorySlot) Drain(_ context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked()
	out := m.state
	if m.state.Status == StatusSuccess {
		m.state.Status = StatusWaiting
		m.state.Credential = ""
		m.state.Delivered = true
	}
	return out, nil
}

func (m *MemorySlot) Peek(_ context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked()
	return m.state, nil
}

// expireLocked forgets a flow older than ttl. Caller holds mu.
func (m *MemorySlot) expireLocked() {
	if m.ttl <= 0 || m.state.Status == StatusIdle {
		return
	}
	if m.now().Sub(m.startedAt) >= m.ttl {
		m.state = Snapshot{}
	}
}
