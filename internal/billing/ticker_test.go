package billing

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegistry_SingleTickerPerCall(t *testing.T) {
	r := NewRegistry()
	defer r.StopAll()

	noop := func(ctx context.Context) bool { return false }
	if !r.Start("call-1", time.Hour, noop) {
		t.Fatal("first Start should succeed")
	}
	if r.Start("call-1", time.Hour, noop) {
		t.Fatal("second Start for the same call must be refused")
	}
	if got := r.Active(); got != 1 {
		t.Fatalf("active = %d, want 1", got)
	}
}

func TestRegistry_FnReturningTrueStopsTicker(t *testing.T) {
	r := NewRegistry()
	defer r.StopAll()

	var ticks atomic.Int32
	r.Start("call-1", 2*time.Millisecond, func(ctx context.Context) bool {
		return ticks.Add(1) >= 3
	})

	deadline := time.After(2 * time.Second)
	for r.Active() != 0 {
		select {
		case <-deadline:
			t.Fatal("ticker did not stop")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if got := ticks.Load(); got != 3 {
		t.Fatalf("ticks = %d, want 3", got)
	}
}

func TestRegistry_StopCancelsContext(t *testing.T) {
	r := NewRegistry()

	cancelled := make(chan struct{})
	r.Start("call-1", time.Millisecond, func(ctx context.Context) bool {
		select {
		case <-ctx.Done():
			close(cancelled)
			return true
		default:
			return false
		}
	})
	r.Stop("call-1")

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("ticker fn never observed cancellation")
	}
}

func TestRegistry_StopAll(t *testing.T) {
	r := NewRegistry()
	noop := func(ctx context.Context) bool { return false }
	r.Start("a", time.Hour, noop)
	r.Start("b", time.Hour, noop)
	r.StopAll()

	if r.Active() != 0 {
		t.Fatalf("active = %d after StopAll, want 0", r.Active())
	}
	if !r.Start("a", time.Hour, noop) {
		t.Fatal("call id should be reusable after StopAll")
	}
	r.StopAll()
}
