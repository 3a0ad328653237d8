package billing

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/calls"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/ledger"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/notify"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/rtc"
)

func seedAccount(id string, coins, pricePerMinute int64) ledger.Account {
	role := "user"
	if pricePerMinute > 0 {
		role = "creator"
	}
	return ledger.Account{ID: id, DisplayName: id, Role: role, CoinBalance: coins, PricePerMinute: pricePerMinute}
}

func newReaperFixture(t *testing.T) (*Reaper, *managerFixture, *notify.MemoryPresence) {
	t.Helper()
	f := newManagerFixture(t)
	presence := notify.NewMemoryPresence()

	lifecycle := calls.NewService(f.repo, f.ledger, f.mgr, f.notifier,
		rtc.StaticTokenProvider{}, 0.5, 10)

	r := NewReaper(f.repo, lifecycle, f.mgr, presence,
		10*time.Second, 35*time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return r, f, presence
}

// An accepted call outlived its affordability ceiling with no live ticker
// (crashed worker). The sweep must settle it exactly once.
func TestReaper_ForceSettlesOverBudgetCall(t *testing.T) {
	r, f, _ := newReaperFixture(t)
	ctx := context.Background()

	// 12 coins at 1 coin/sec, accepted 30s ago: 18s past the ceiling.
	f.seedAcceptedCall(t, "call-1", 12, 60, 30*time.Second)
	sess := Session{
		CallID:            "call-1",
		PayerID:           "payer",
		PayeeID:           "payee",
		PricePerSecond:    1,
		EarnRatePerSecond: 0.5,
		ElapsedSeconds:    12,
		PayerRemaining:    0,
		PayeeEarned:       6,
	}
	if _, err := f.store.Open(ctx, sess, time.Hour); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	r.sweep(ctx)

	final, err := f.repo.Get(ctx, "call-1")
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if final.Status != calls.StatusEnded || !final.IsSettled {
		t.Fatalf("call = %s settled=%v, want ended settled", final.Status, final.IsSettled)
	}
	if final.DurationSeconds != 12 {
		t.Fatalf("duration = %d, want 12", final.DurationSeconds)
	}
	if got := f.balance(t, "payer"); got != 0 {
		t.Fatalf("payer balance = %d, want 0", got)
	}

	// A second sweep finds nothing left to do.
	r.sweep(ctx)
	entries, _ := f.ledger.EntriesForCall(ctx, "call-1")
	if len(entries) != 2 {
		t.Fatalf("ledger entries = %d after two sweeps, want 2", len(entries))
	}

	forced := f.notifier.ByType(notify.EventCallForceEnd)
	if len(forced) == 0 || forced[0].Event.Reason != notify.ReasonBudgetExceeded {
		t.Fatalf("expected force-end with BudgetExceeded, got %+v", forced)
	}
}

// Over budget but the session is gone (TTL expiry, or never opened). Nothing
// to bill, but the record must still reach a terminal state.
func TestReaper_FinalizesOverBudgetCallWithoutSession(t *testing.T) {
	r, f, _ := newReaperFixture(t)
	ctx := context.Background()

	f.seedAcceptedCall(t, "call-1", 12, 60, 30*time.Second)

	r.sweep(ctx)

	final, _ := f.repo.Get(ctx, "call-1")
	if final.Status != calls.StatusEnded || !final.IsSettled {
		t.Fatalf("call = %s settled=%v, want ended settled", final.Status, final.IsSettled)
	}
	if final.DurationSeconds != 12 {
		t.Fatalf("duration = %d, want the 12s ceiling", final.DurationSeconds)
	}
	entries, _ := f.ledger.EntriesForCall(ctx, "call-1")
	if len(entries) != 0 {
		t.Fatalf("ledger entries = %d, want 0 without a session", len(entries))
	}
}

func TestReaper_TimesOutStaleRinging(t *testing.T) {
	r, f, presence := newReaperFixture(t)
	ctx := context.Background()

	f.ledger.PutAccount(seedAccount("p1", 100, 0))
	f.ledger.PutAccount(seedAccount("c1", 0, 60))
	f.ledger.PutAccount(seedAccount("p2", 100, 0))
	f.ledger.PutAccount(seedAccount("c2", 0, 60))

	old := time.Now().UTC().Add(-time.Minute)
	for _, rec := range []calls.CallRecord{
		{CallID: "ring-reachable", PayerID: "p1", PayeeID: "c1", Status: calls.StatusRinging, CreatedAt: old},
		{CallID: "ring-gone", PayerID: "p2", PayeeID: "c2", Status: calls.StatusRinging, CreatedAt: old},
	} {
		if err := f.repo.Create(ctx, rec); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	presence.SetReachable("c1", true)

	r.sweep(ctx)

	got, _ := f.repo.Get(ctx, "ring-reachable")
	if got.Status != calls.StatusRejected {
		t.Fatalf("reachable payee: status = %s, want rejected", got.Status)
	}
	got, _ = f.repo.Get(ctx, "ring-gone")
	if got.Status != calls.StatusMissed {
		t.Fatalf("unreachable payee: status = %s, want missed", got.Status)
	}

	missed := f.notifier.ByType(notify.EventCallMissed)
	if len(missed) != 2 {
		t.Fatalf("call.missed events = %d, want 2", len(missed))
	}
}

func TestReaper_FreshRingingLeftAlone(t *testing.T) {
	r, f, _ := newReaperFixture(t)
	ctx := context.Background()

	f.ledger.PutAccount(seedAccount("p1", 100, 0))
	f.ledger.PutAccount(seedAccount("c1", 0, 60))
	rec := calls.CallRecord{
		CallID: "ring-fresh", PayerID: "p1", PayeeID: "c1",
		Status: calls.StatusRinging, CreatedAt: time.Now().UTC(),
	}
	if err := f.repo.Create(ctx, rec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r.sweep(ctx)

	got, _ := f.repo.Get(ctx, "ring-fresh")
	if got.Status != calls.StatusRinging {
		t.Fatalf("status = %s, want still ringing", got.Status)
	}
}
