package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemorySlot_ResetIsWaitingAndEmpty(t *testing.T) {
	ctx := context.Background()
	m := NewMemorySlot(0)

	// Reset over every prior state, including a pending success.
	for i := 0; i < 3; i++ {
		flow, err := m.Reset(ctx, "")
		if err != nil {
			t.Fatalf("Reset failed: %v", err)
		}
		snap, _ := m.Peek(ctx)
		if snap.Status != StatusWaiting || snap.Credential != "" || snap.Flow != flow || snap.Delivered {
			t.Fatalf("after reset expected fresh waiting slot, got %+v", snap)
		}
		if ok, _ := m.Complete(ctx, flow, "tok"); !ok {
			t.Fatal("expected completion to be accepted")
		}
	}
}

func TestMemorySlot_DrainIsReadOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemorySlot(0)
	flow, _ := m.Reset(ctx, "")

	if ok, err := m.Complete(ctx, flow, "access-token"); err != nil || !ok {
		t.Fatalf("Complete = %v, %v", ok, err)
	}

	first, _ := m.Drain(ctx)
	if first.Status != StatusSuccess || first.Credential != "access-token" {
		t.Fatalf("first drain expected success, got %+v", first)
	}

	second, _ := m.Drain(ctx)
	if second.Status != StatusWaiting || second.Credential != "" {
		t.Fatalf("second drain expected waiting, got %+v", second)
	}
}

func TestMemorySlot_Complete(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		setup  func(m *MemorySlot) FlowID // returns flow id to complete with
		wantOK bool
	}{
		{
			name:   "idle slot drops",
			setup:  func(m *MemorySlot) FlowID { return "" },
			wantOK: false,
		},
		{
			name: "matching flow accepted",
			setup: func(m *MemorySlot) FlowID {
				f, _ := m.Reset(ctx, "")
				return f
			},
			wantOK: true,
		},
		{
			name: "missing flow accepted while waiting",
			setup: func(m *MemorySlot) FlowID {
				m.Reset(ctx, "")
				return ""
			},
			wantOK: true,
		},
		{
			name: "stale flow dropped after restart",
			setup: func(m *MemorySlot) FlowID {
				old, _ := m.Reset(ctx, "")
				m.Reset(ctx, "")
				return old
			},
			wantOK: false,
		},
		{
			name: "second arrival loses",
			setup: func(m *MemorySlot) FlowID {
				f, _ := m.Reset(ctx, "")
				m.Complete(ctx, f, "first")
				return f
			},
			wantOK: false,
		},
		{
			name: "late arrival after drain dropped",
			setup: func(m *MemorySlot) FlowID {
				f, _ := m.Reset(ctx, "")
				m.Complete(ctx, f, "first")
				m.Drain(ctx)
				return f
			},
			wantOK: false,
		},
		{
			name: "late arrival without flow after drain dropped",
			setup: func(m *MemorySlot) FlowID {
				f, _ := m.Reset(ctx, "")
				m.Complete(ctx, f, "first")
				m.Drain(ctx)
				return ""
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMemorySlot(0)
			flow := tt.setup(m)
			ok, err := m.Complete(ctx, flow, "late")
			if err != nil {
				t.Fatalf("Complete error: %v", err)
			}
			if ok != tt.wantOK {
				t.Errorf("expected ok=%v, got %v", tt.wantOK, ok)
			}
		})
	}
}

func TestMemorySlot_CompleteEmptyCredential(t *testing.T) {
	ctx := context.Background()
	m := NewMemorySlot(0)
	flow, _ := m.Reset(ctx, "")

	if _, err := m.Complete(ctx, flow, ""); !errors.Is(err, ErrEmptyCredential) {
		t.Errorf("expected ErrEmptyCredential, got %v", err)
	}
	if snap, _ := m.Peek(ctx); snap.Status != StatusWaiting {
		t.Errorf("expected slot still waiting, got %v", snap.Status)
	}
}

func TestMemorySlot_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemorySlot(10 * time.Minute)
	m.now = func() time.Time { return now }

	flow, _ := m.Reset(ctx, "")
	now = now.Add(11 * time.Minute)

	if ok, _ := m.Complete(ctx, flow, "tok"); ok {
		t.Error("expected completion after expiry to be dropped")
	}
	snap, _ := m.Drain(ctx)
	if snap.Status == StatusSuccess {
		t.Errorf("expected no success after expiry, got %+v", snap)
	}
}

func TestMemorySlot_ConcurrentCompleteAndDrain(t *testing.T) {
	ctx := context.Background()
	m := NewMemorySlot(0)
	flow, _ := m.Reset(ctx, "")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		accepted  int
	)

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if ok, _ := m.Complete(ctx, flow, "tok"); ok {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
		go func() {
			defer wg.Done()
			if snap, _ := m.Drain(ctx); snap.Status == StatusSuccess {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Whatever was not drained during the race is still pending.
	if snap, _ := m.Drain(ctx); snap.Status == StatusSuccess {
		successes++
	}

	if accepted != 1 {
		t.Errorf("expected exactly one accepted completion, got %d", accepted)
	}
	if successes != 1 {
		t.Errorf("expected exactly one delivered success, got %d", successes)
	}
}
