package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/audit"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/calls"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/config"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/ledger"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/notify"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/pricing"
)

// After this many consecutive failed ticks the ticker gives up and leaves the
// call to the session TTL and the reaper.
const maxConsecutiveTickFailures = 30

// Ledger is the slice of the coin ledger the metering engine needs.
type Ledger interface {
	Post(ctx context.Context, req ledger.PostRequest) (ledger.Entry, ledger.Account, error)
	GetAccount(ctx context.Context, accountID string) (ledger.Account, error)
}

// CallStore is the slice of call persistence the metering engine needs.
type CallStore interface {
	Get(ctx context.Context, callID string) (calls.CallRecord, error)
	CompleteSettlement(ctx context.Context, callID string, durationSeconds int64, endedAt time.Time) (bool, error)
}

// Manager is the metering engine: opens sessions, runs the per-second ticks,
// and converts sessions into ledger entries exactly once at settlement.
// It implements calls.Biller.
type Manager struct {
	store     SessionStore
	ledger    Ledger
	callStore CallStore
	notifier  notify.Notifier
	audit     *audit.Service
	reg       *Registry

	cfg config.BillingConfig
	log *slog.Logger

	clock func() time.Time
}

func NewManager(store SessionStore, l Ledger, cs CallStore, n notify.Notifier, a *audit.Service, cfg config.BillingConfig, log *slog.Logger) *Manager {
	return &Manager{
		store:     store,
		ledger:    l,
		callStore: cs,
		notifier:  n,
		audit:     a,
		reg:       NewRegistry(),
		cfg:       cfg,
		log:       log,
		clock:     time.Now,
	}
}

// OpenSession creates the metering session for an accepted call and starts its
// ticker. Duplicate calls are silent no-ops: the create-if-absent store op is
// the arbiter, so the accept path and the "call started" signal can both fire.
//
// Returns ledger.ErrInsufficientFunds when the payer cannot cover one second.
func (m *Manager) OpenSession(ctx context.Context, rec calls.CallRecord) error {
	if rec.Status != calls.StatusAccepted || rec.IsSettled {
		return nil
	}

	perSecond := pricing.PerSecondRate(rec.PricePerMinuteSnapshot)
	if perSecond <= 0 {
		return errors.New("billing: call has no usable price snapshot")
	}

	payer, err := m.ledger.GetAccount(ctx, rec.PayerID)
	if err != nil {
		return err
	}
	if float64(payer.CoinBalance) < perSecond {
		return ledger.ErrInsufficientFunds
	}

	sess := Session{
		CallID:            rec.CallID,
		PayerID:           rec.PayerID,
		PayeeID:           rec.PayeeID,
		PricePerSecond:    perSecond,
		EarnRatePerSecond: m.cfg.EarnRatePerSecond,
		StartEpoch:        m.clock().Unix(),
		PayerRemaining:    float64(payer.CoinBalance),
	}
	created, err := m.store.Open(ctx, sess, m.cfg.SessionTTL)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	m.log.Info("billing session opened",
		"call_id", rec.CallID,
		"payer_id", rec.PayerID,
		"rate_per_second", perSecond,
	)

	started := notify.Event{
		Type:          notify.EventBillingStarted,
		CallID:        rec.CallID,
		RatePerSecond: perSecond,
		MaxSeconds:    pricing.MaxAffordableSeconds(payer.CoinBalance, perSecond),
	}
	_ = m.notifier.Publish(ctx, notify.ChannelFor(rec.PayerID), started)
	_ = m.notifier.Publish(ctx, notify.ChannelFor(rec.PayeeID), started)

	// End signal may have raced ahead of us; if so, settle immediately with
	// zero elapsed time instead of metering a call that is already over.
	if pending, perr := m.store.TakeEndPending(ctx, rec.CallID); perr != nil {
		m.log.Error("end-pending check failed", "call_id", rec.CallID, "error", perr)
	} else if pending {
		_, err := m.Settle(ctx, rec.CallID, calls.CauseEnded)
		return err
	}

	failStreak := 0
	m.reg.Start(rec.CallID, m.cfg.TickInterval, func(tctx context.Context) bool {
		stop, err := m.tick(tctx, rec.CallID)
		if err != nil {
			failStreak++
			m.log.Error("billing tick failed", "call_id", rec.CallID, "error", err, "streak", failStreak)
			if failStreak >= maxConsecutiveTickFailures {
				m.log.Error("billing ticker giving up; reaper will settle", "call_id", rec.CallID)
				return true
			}
			return stop
		}
		failStreak = 0
		return stop
	})
	return nil
}

// tick meters one second. The session is the only state it touches; the
// durable ledger is not involved until settlement.
func (m *Manager) tick(ctx context.Context, callID string) (stop bool, err error) {
	sess, ok, err := m.store.Get(ctx, callID)
	if err != nil {
		return false, err
	}
	if !ok {
		// Settled (or expired) from elsewhere; this ticker is done.
		return true, nil
	}

	if sess.PayerRemaining < sess.PricePerSecond {
		if _, err := m.Settle(ctx, callID, calls.CauseInsufficientFunds); err != nil {
			return false, err
		}
		return true, nil
	}

	sess.ElapsedSeconds++
	sess.PayerRemaining -= sess.PricePerSecond
	sess.PayeeEarned += sess.EarnRatePerSecond
	if err := m.store.Save(ctx, sess); err != nil {
		return false, err
	}

	_ = m.notifier.Publish(ctx, notify.ChannelFor(sess.PayerID), notify.Event{
		Type:           notify.EventBillingUpdate,
		CallID:         callID,
		ElapsedSeconds: sess.ElapsedSeconds,
		Remaining:      sess.PayerRemaining,
	})
	_ = m.notifier.Publish(ctx, notify.ChannelFor(sess.PayeeID), notify.Event{
		Type:           notify.EventBillingUpdate,
		CallID:         callID,
		ElapsedSeconds: sess.ElapsedSeconds,
		Earned:         sess.PayeeEarned,
	})
	return false, nil
}

// Settle converts the call's session into ledger entries and finalizes the
// call record. Consume-the-session is the idempotency guard: whichever trigger
// (hang-up, funds exhaustion, disconnect, reaper) consumes it runs the money
// writes; every other trigger sees no session and reports settled=false.
func (m *Manager) Settle(ctx context.Context, callID string, cause calls.EndCause) (bool, error) {
	m.reg.Stop(callID)

	sess, ok, err := m.store.Consume(ctx, callID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	now := m.clock().UTC()
	elapsed := sess.ElapsedSeconds

	var totalCharged, totalEarned int64

	if debit := pricing.DebitAmount(elapsed, sess.PricePerSecond); debit > 0 {
		entry, _, err := m.ledger.Post(ctx, ledger.PostRequest{
			TransactionID:  "call-debit:" + callID,
			AccountID:      sess.PayerID,
			Direction:      ledger.DirectionDebit,
			Amount:         debit,
			Source:         ledger.SourceCallBilling,
			RelatedCallID:  callID,
			ClampToBalance: true,
		})
		if err != nil {
			// The session is already consumed, so this write will not be
			// retried. Record the incident for reconciliation and keep going:
			// the call must still reach a terminal state.
			m.log.Error("settlement debit failed", "call_id", callID, "payer_id", sess.PayerID, "error", err)
			_ = m.audit.LogSettlementIncident(ctx, callID, sess.PayerID, err)
		} else {
			totalCharged = entry.Amount
		}
	}

	if credit := pricing.CreditAmount(elapsed, sess.EarnRatePerSecond); credit > 0 {
		entry, _, err := m.ledger.Post(ctx, ledger.PostRequest{
			TransactionID: "call-credit:" + callID,
			AccountID:     sess.PayeeID,
			Direction:     ledger.DirectionCredit,
			Amount:        credit,
			Source:        ledger.SourceCallBilling,
			RelatedCallID: callID,
		})
		if err != nil {
			m.log.Error("settlement credit failed", "call_id", callID, "payee_id", sess.PayeeID, "error", err)
			_ = m.audit.LogSettlementIncident(ctx, callID, sess.PayeeID, err)
		} else {
			totalEarned = entry.Amount
		}
	}

	if _, err := m.callStore.CompleteSettlement(ctx, callID, elapsed, now); err != nil {
		m.log.Error("settlement record update failed", "call_id", callID, "error", err)
	}

	m.log.Info("call settled",
		"call_id", callID,
		"cause", string(cause),
		"duration_seconds", elapsed,
		"charged", totalCharged,
		"earned", totalEarned,
	)

	settled := notify.Event{
		Type:            notify.EventBillingSettled,
		CallID:          callID,
		DurationSeconds: elapsed,
		TotalCharged:    totalCharged,
		TotalEarned:     totalEarned,
	}
	_ = m.notifier.Publish(ctx, notify.ChannelFor(sess.PayerID), settled)
	_ = m.notifier.Publish(ctx, notify.ChannelFor(sess.PayeeID), settled)

	if cause != calls.CauseEnded {
		forceEnd := notify.Event{
			Type:   notify.EventCallForceEnd,
			CallID: callID,
			Reason: string(cause),
		}
		_ = m.notifier.Publish(ctx, notify.ChannelFor(sess.PayerID), forceEnd)
		_ = m.notifier.Publish(ctx, notify.ChannelFor(sess.PayeeID), forceEnd)
	}

	return true, nil
}

// NoteEndPending records an end signal that arrived before the session opened.
func (m *Manager) NoteEndPending(ctx context.Context, callID string) error {
	return m.store.SetEndPending(ctx, callID, m.cfg.PendingEndGrace)
}

// Shutdown stops all tickers. Unsettled sessions stay in the store; the next
// process's reaper settles them from the affordability ceiling.
func (m *Manager) Shutdown() {
	m.reg.StopAll()
}
