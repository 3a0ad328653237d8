package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/audit"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/calls"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/config"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/ledger"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/notify"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/rtc"
)

type managerFixture struct {
	mgr      *Manager
	store    *MemorySessionStore
	ledger   *ledger.Memory
	repo     *calls.MemoryRepo
	notifier *notify.MemoryNotifier
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	lm := ledger.NewMemory()
	repo := calls.NewMemoryRepo()
	store := NewMemorySessionStore()
	notifier := notify.NewMemoryNotifier()

	cfg := config.BillingConfig{
		// A real ticker is started by OpenSession; tests drive ticks by hand,
		// so keep the interval out of the way.
		TickInterval:      time.Hour,
		SessionTTL:        2 * time.Hour,
		RingingTimeout:    35 * time.Second,
		PendingEndGrace:   10 * time.Second,
		ReaperInterval:    10 * time.Second,
		EarnRatePerSecond: 0.5,
		MinBalanceToStart: 10,
	}

	mgr := NewManager(store, lm, repo, notifier,
		audit.NewService(audit.NewMemoryRepo()), cfg,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	f := &managerFixture{mgr: mgr, store: store, ledger: lm, repo: repo, notifier: notifier}
	t.Cleanup(mgr.Shutdown)
	return f
}

// seedAcceptedCall creates payer/payee accounts and an accepted, unsettled
// call record with the price snapshot taken at accept time.
func (f *managerFixture) seedAcceptedCall(t *testing.T, callID string, payerCoins, pricePerMinute int64, acceptedAgo time.Duration) calls.CallRecord {
	t.Helper()

	f.ledger.PutAccount(ledger.Account{ID: "payer", DisplayName: "Payer", Role: "user", CoinBalance: payerCoins})
	f.ledger.PutAccount(ledger.Account{ID: "payee", DisplayName: "Payee", Role: "creator", PricePerMinute: pricePerMinute})

	acceptedAt := time.Now().UTC().Add(-acceptedAgo)
	perSecond := float64(pricePerMinute) / 60.0
	rec := calls.CallRecord{
		CallID:                 callID,
		PayerID:                "payer",
		PayeeID:                "payee",
		Status:                 calls.StatusAccepted,
		CreatedAt:              acceptedAt.Add(-5 * time.Second),
		AcceptedAt:             &acceptedAt,
		PricePerMinuteSnapshot: pricePerMinute,
		MaxAffordableSeconds:   int64(float64(payerCoins) / perSecond),
	}
	if err := f.repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("seed call: %v", err)
	}
	return rec
}

func (f *managerFixture) balance(t *testing.T, accountID string) int64 {
	t.Helper()
	a, err := f.ledger.GetAccount(context.Background(), accountID)
	if err != nil {
		t.Fatalf("get account %s: %v", accountID, err)
	}
	return a.CoinBalance
}

// Payer holds 12 coins at 60 coins/min (1 coin/sec). Twelve ticks meter
// normally; the thirteenth finds the remaining balance below one second's
// price and settles: 12-coin debit, duration 12, payer at zero.
func TestTick_ExhaustsFundsAndSettles(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	rec := f.seedAcceptedCall(t, "call-1", 12, 60, 0)

	if err := f.mgr.OpenSession(ctx, rec); err != nil {
		t.Fatalf("open session: %v", err)
	}

	for i := 0; i < 12; i++ {
		stop, err := f.mgr.tick(ctx, "call-1")
		if err != nil {
			t.Fatalf("tick %d: %v", i+1, err)
		}
		if stop {
			t.Fatalf("tick %d stopped early", i+1)
		}
	}

	stop, err := f.mgr.tick(ctx, "call-1")
	if err != nil {
		t.Fatalf("final tick: %v", err)
	}
	if !stop {
		t.Fatal("final tick should stop the ticker")
	}

	if got := f.balance(t, "payer"); got != 0 {
		t.Fatalf("payer balance = %d, want 0", got)
	}
	if got := f.balance(t, "payee"); got != 6 {
		t.Fatalf("payee balance = %d, want 6 (floor of 12 * 0.5)", got)
	}

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

	forced := f.notifier.ByType(notify.EventCallForceEnd)
	if len(forced) != 2 {
		t.Fatalf("force-end events = %d, want 2 (both parties)", len(forced))
	}
	if forced[0].Event.Reason != notify.ReasonInsufficientFunds {
		t.Fatalf("force-end reason = %q, want %q", forced[0].Event.Reason, notify.ReasonInsufficientFunds)
	}

	if _, ok, _ := f.store.Get(ctx, "call-1"); ok {
		t.Fatal("session should be consumed after settlement")
	}
}

func TestOpenSession_DuplicateIsNoOp(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	rec := f.seedAcceptedCall(t, "call-1", 100, 60, 0)

	if err := f.mgr.OpenSession(ctx, rec); err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := f.mgr.OpenSession(ctx, rec); err != nil {
		t.Fatalf("second open: %v", err)
	}

	if got := len(f.notifier.ByType(notify.EventBillingStarted)); got != 2 {
		t.Fatalf("billing.started events = %d, want 2 (one per party, once)", got)
	}
	if got := f.mgr.reg.Active(); got != 1 {
		t.Fatalf("active tickers = %d, want 1", got)
	}
}

func TestOpenSession_InsufficientForOneSecond(t *testing.T) {
	f := newManagerFixture(t)
	rec := f.seedAcceptedCall(t, "call-1", 0, 60, 0)

	err := f.mgr.OpenSession(context.Background(), rec)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if _, ok, _ := f.store.Get(context.Background(), "call-1"); ok {
		t.Fatal("no session should exist")
	}
}

func TestOpenSession_TerminalCallIsNoOp(t *testing.T) {
	f := newManagerFixture(t)
	rec := f.seedAcceptedCall(t, "call-1", 100, 60, 0)
	rec.Status = calls.StatusEnded

	if err := f.mgr.OpenSession(context.Background(), rec); err != nil {
		t.Fatalf("open on ended call: %v", err)
	}
	if _, ok, _ := f.store.Get(context.Background(), "call-1"); ok {
		t.Fatal("no session should exist for a terminal call")
	}
}

func TestSettle_IsIdempotent(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	rec := f.seedAcceptedCall(t, "call-1", 100, 60, 0)

	if err := f.mgr.OpenSession(ctx, rec); err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 7; i++ {
		if _, err := f.mgr.tick(ctx, "call-1"); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}

	settled, err := f.mgr.Settle(ctx, "call-1", calls.CauseEnded)
	if err != nil {
		t.Fatalf("first settle: %v", err)
	}
	if !settled {
		t.Fatal("first settle should consume the session")
	}

	settled, err = f.mgr.Settle(ctx, "call-1", calls.CauseEnded)
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if settled {
		t.Fatal("second settle must be a no-op")
	}

	entries, _ := f.ledger.EntriesForCall(ctx, "call-1")
	if len(entries) != 2 {
		t.Fatalf("ledger entries = %d, want exactly one debit and one credit", len(entries))
	}
	// 7s at 1 coin/sec: debit 7; 7s at 0.5/sec: floor = 3.
	if got := f.balance(t, "payer"); got != 93 {
		t.Fatalf("payer balance = %d, want 93", got)
	}
	if got := f.balance(t, "payee"); got != 3 {
		t.Fatalf("payee balance = %d, want 3", got)
	}
}

func TestSettle_NoSession(t *testing.T) {
	f := newManagerFixture(t)
	settled, err := f.mgr.Settle(context.Background(), "missing", calls.CauseEnded)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled {
		t.Fatal("settle without a session must report false")
	}
}

// End arrived before the session opened: the pending marker makes session-open
// settle immediately with zero billable time.
func TestOpenSession_PendingEndSettlesImmediately(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	rec := f.seedAcceptedCall(t, "call-1", 100, 60, 0)

	if err := f.mgr.NoteEndPending(ctx, "call-1"); err != nil {
		t.Fatalf("note end pending: %v", err)
	}
	if err := f.mgr.OpenSession(ctx, rec); err != nil {
		t.Fatalf("open: %v", err)
	}

	final, err := f.repo.Get(ctx, "call-1")
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if final.Status != calls.StatusEnded || !final.IsSettled || final.DurationSeconds != 0 {
		t.Fatalf("call = %s settled=%v duration=%d, want ended settled duration 0",
			final.Status, final.IsSettled, final.DurationSeconds)
	}

	entries, _ := f.ledger.EntriesForCall(ctx, "call-1")
	if len(entries) != 0 {
		t.Fatalf("ledger entries = %d, want 0 for a zero-duration call", len(entries))
	}
	if got := f.mgr.reg.Active(); got != 0 {
		t.Fatalf("active tickers = %d, want 0", got)
	}
}

// End racing a session open, with open winning: by the time End runs, the
// session and ticker exist. End's settle must consume the session, stop the
// ticker, and leave nothing metering the ended call.
func TestEnd_AfterOpenWinsRaceStopsMetering(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	rec := f.seedAcceptedCall(t, "call-1", 100, 60, 0)

	svc := calls.NewService(f.repo, f.ledger, f.mgr, f.notifier,
		rtc.StaticTokenProvider{}, 0.5, 10)

	if err := f.mgr.OpenSession(ctx, rec); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.End(ctx, "call-1", "payer"); err != nil {
		t.Fatalf("end: %v", err)
	}

	if _, ok, _ := f.store.Get(ctx, "call-1"); ok {
		t.Fatal("session must be consumed by the end")
	}
	if got := f.mgr.reg.Active(); got != 0 {
		t.Fatalf("active tickers = %d after end, want 0", got)
	}
	// A straggling tick finds no session and stops without charging.
	stop, err := f.mgr.tick(ctx, "call-1")
	if err != nil {
		t.Fatalf("straggling tick: %v", err)
	}
	if !stop {
		t.Fatal("straggling tick must stop")
	}

	final, _ := f.repo.Get(ctx, "call-1")
	if final.Status != calls.StatusEnded || !final.IsSettled {
		t.Fatalf("call = %s settled=%v, want ended settled", final.Status, final.IsSettled)
	}
	if got := f.balance(t, "payer"); got != 100 {
		t.Fatalf("payer balance = %d, want 100 (zero metered seconds)", got)
	}
}

// Ledger write failure during settlement must not block the call from
// reaching a terminal state, and must not resurrect the session.
func TestSettle_LedgerFailureStillFinalizes(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	f.seedAcceptedCall(t, "call-1", 100, 60, 0)

	sess := Session{
		CallID:            "call-1",
		PayerID:           "ghost", // not in the ledger; Post fails with not found
		PayeeID:           "payee",
		PricePerSecond:    1,
		EarnRatePerSecond: 0.5,
		ElapsedSeconds:    5,
	}
	if _, err := f.store.Open(ctx, sess, time.Hour); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	settled, err := f.mgr.Settle(ctx, "call-1", calls.CauseEnded)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !settled {
		t.Fatal("settle should consume the session despite the ledger failure")
	}

	final, _ := f.repo.Get(ctx, "call-1")
	if final.Status != calls.StatusEnded || !final.IsSettled {
		t.Fatalf("call = %s settled=%v, want ended settled", final.Status, final.IsSettled)
	}
	// Payee credit is independent of the payer debit failure.
	if got := f.balance(t, "payee"); got != 2 {
		t.Fatalf("payee balance = %d, want 2", got)
	}
}
