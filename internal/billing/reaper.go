package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/calls"
)

// ReaperStore is the slice of call persistence the sweeps need.
type ReaperStore interface {
	ListRingingBefore(ctx context.Context, cutoff time.Time) ([]calls.CallRecord, error)
	ListAcceptedOverBudget(ctx context.Context, now time.Time) ([]calls.CallRecord, error)
	CompleteSettlement(ctx context.Context, callID string, durationSeconds int64, endedAt time.Time) (bool, error)
}

// Lifecycle is the piece of the call state machine the reaper drives.
// Implemented by calls.Service.
type Lifecycle interface {
	TimeoutRinging(ctx context.Context, callID string, payeeReachable bool) (calls.CallRecord, error)
}

// Presence answers whether a user currently has a live transport connection.
type Presence interface {
	IsReachable(ctx context.Context, userID string) (bool, error)
}

// Reaper is the crash-recovery sweep. It times out calls stuck in ringing and
// force-settles accepted calls that outlived their affordability ceiling,
// which is how calls whose ticker died (process crash, redis outage) still
// reach a terminal state with money accounted.
type Reaper struct {
	repo      ReaperStore
	lifecycle Lifecycle
	mgr       *Manager
	presence  Presence

	interval       time.Duration
	ringingTimeout time.Duration

	log   *slog.Logger
	clock func() time.Time
}

func NewReaper(repo ReaperStore, lifecycle Lifecycle, mgr *Manager, presence Presence, interval, ringingTimeout time.Duration, log *slog.Logger) *Reaper {
	return &Reaper{
		repo:           repo,
		lifecycle:      lifecycle,
		mgr:            mgr,
		presence:       presence,
		interval:       interval,
		ringingTimeout: ringingTimeout,
		log:            log,
		clock:          time.Now,
	}
}

// Run sweeps until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	now := r.clock().UTC()

	stale, err := r.repo.ListRingingBefore(ctx, now.Add(-r.ringingTimeout))
	if err != nil {
		r.log.Error("reaper ringing sweep failed", "error", err)
	}
	for _, rec := range stale {
		reachable, perr := r.presence.IsReachable(ctx, rec.PayeeID)
		if perr != nil {
			// Unknown presence counts as unreachable; the caller sees missed.
			reachable = false
		}
		if _, err := r.lifecycle.TimeoutRinging(ctx, rec.CallID, reachable); err != nil {
			r.log.Error("reaper ringing timeout failed", "call_id", rec.CallID, "error", err)
			continue
		}
		r.log.Info("ringing call timed out", "call_id", rec.CallID, "payee_reachable", reachable)
	}

	over, err := r.repo.ListAcceptedOverBudget(ctx, now)
	if err != nil {
		r.log.Error("reaper budget sweep failed", "error", err)
		return
	}
	for _, rec := range over {
		settled, err := r.mgr.Settle(ctx, rec.CallID, calls.CauseBudgetExceeded)
		if err != nil {
			r.log.Error("reaper settlement failed", "call_id", rec.CallID, "error", err)
			continue
		}
		if settled {
			r.log.Warn("over-budget call force-settled", "call_id", rec.CallID)
			continue
		}
		// Accepted, over budget, but no session: it expired or was never
		// opened. There is nothing left to bill, but the record must not stay
		// active forever. Finalize at the ceiling.
		if _, err := r.repo.CompleteSettlement(ctx, rec.CallID, rec.MaxAffordableSeconds, now); err != nil {
			r.log.Error("reaper finalize failed", "call_id", rec.CallID, "error", err)
			continue
		}
		r.log.Warn("over-budget call finalized without session", "call_id", rec.CallID)
	}
}
