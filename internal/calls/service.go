package calls

import (
	"context"
	"errors"
	"time"

	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/ledger"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/notify"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/pricing"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/rtc"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("call not found")
	ErrInvalidState    = errors.New("invalid call state")
	ErrNotAuthorized   = errors.New("not authorized for this call")
	ErrAlreadyBusy     = errors.New("party already has an active call")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Repository is the persistence contract for call records.
//
// "Active call per party" is a durable query here, never an in-process map,
// so multiple API instances agree on who is busy.
type Repository interface {
	Create(ctx context.Context, rec CallRecord) error
	Get(ctx context.Context, callID string) (CallRecord, error)
	Update(ctx context.Context, rec CallRecord) error

	// FindActiveByParty returns a non-terminal call the party participates in,
	// excluding excludeCallID when non-empty.
	FindActiveByParty(ctx context.Context, partyID, excludeCallID string) (CallRecord, bool, error)

	// ListRingingBefore returns non-terminal pre-accept calls created before cutoff.
	ListRingingBefore(ctx context.Context, cutoff time.Time) ([]CallRecord, error)

	// ListAcceptedOverBudget returns unsettled accepted calls whose wall-clock
	// time since acceptance exceeds their affordability ceiling.
	ListAcceptedOverBudget(ctx context.Context, now time.Time) ([]CallRecord, error)

	// CompleteSettlement marks the record ended and settled in one update,
	// guarded by is_settled = false. Reports whether a row was updated.
	CompleteSettlement(ctx context.Context, callID string, durationSeconds int64, endedAt time.Time) (bool, error)
}

// AccountDirectory is the slice of the ledger the state machine needs.
type AccountDirectory interface {
	GetAccount(ctx context.Context, accountID string) (ledger.Account, error)
}

// Biller is the billing engine as seen from the state machine. Implemented by
// billing.Manager; an interface here keeps the dependency one-directional.
type Biller interface {
	// OpenSession opens the metering session for an accepted call. Duplicate
	// opens are silent no-ops; ledger.ErrInsufficientFunds means the payer
	// cannot cover even one second.
	OpenSession(ctx context.Context, rec CallRecord) error

	// Settle converts the session into ledger entries exactly once. Reports
	// whether a session was actually consumed.
	Settle(ctx context.Context, callID string, cause EndCause) (bool, error)

	// NoteEndPending records an end signal that arrived before the session
	// opened, bounded by a grace window.
	NoteEndPending(ctx context.Context, callID string) error
}

// Service is the call lifecycle state machine.
type Service struct {
	repo     Repository
	accounts AccountDirectory
	biller   Biller
	notifier notify.Notifier
	tokens   rtc.TokenProvider

	earnRatePerSecond float64
	minBalanceToStart int64

	clock func() time.Time
}

func NewService(repo Repository, accounts AccountDirectory, biller Biller, notifier notify.Notifier, tokens rtc.TokenProvider, earnRatePerSecond float64, minBalanceToStart int64) *Service {
	return &Service{
		repo:              repo,
		accounts:          accounts,
		biller:            biller,
		notifier:          notifier,
		tokens:            tokens,
		earnRatePerSecond: earnRatePerSecond,
		minBalanceToStart: minBalanceToStart,
		clock:             time.Now,
	}
}

// Initiate creates a call in ringing and notifies the payee.
func (s *Service) Initiate(ctx context.Context, payerID, payeeID string) (CallRecord, error) {
	if payerID == "" || payeeID == "" || payerID == payeeID {
		return CallRecord{}, ErrInvalidArgument
	}

	payee, err := s.accounts.GetAccount(ctx, payeeID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, err
	}
	if payee.PricePerMinute <= 0 {
		return CallRecord{}, ErrInvalidArgument
	}

	payer, err := s.accounts.GetAccount(ctx, payerID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, err
	}
	if payer.CoinBalance < s.minBalanceToStart {
		return CallRecord{}, ledger.ErrInsufficientFunds
	}

	if _, busy, err := s.repo.FindActiveByParty(ctx, payerID, ""); err != nil {
		return CallRecord{}, err
	} else if busy {
		return CallRecord{}, ErrAlreadyBusy
	}
	if _, busy, err := s.repo.FindActiveByParty(ctx, payeeID, ""); err != nil {
		return CallRecord{}, err
	} else if busy {
		return CallRecord{}, ErrAlreadyBusy
	}

	rec := CallRecord{
		CallID:        uuid.NewString(),
		PayerID:       payerID,
		PayeeID:       payeeID,
		Status:        StatusRinging,
		CreatedAt:     s.clock().UTC(),
		NotifyChannel: notify.ChannelFor(payeeID),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return CallRecord{}, err
	}

	// Ring notification is best-effort; the record is the source of truth.
	_ = s.notifier.Publish(ctx, rec.NotifyChannel, notify.Event{
		Type:       notify.EventCallIncoming,
		CallID:     rec.CallID,
		FromUserID: payerID,
	})

	return rec, nil
}

// AcceptResult carries the rates the payee sees plus the media room token.
type AcceptResult struct {
	Call              CallRecord
	PricePerSecond    float64
	EarnRatePerSecond float64
	RoomToken         string
}

// Accept moves a ringing call to accepted, snapshots price and affordability,
// and opens the billing session.
func (s *Service) Accept(ctx context.Context, callID, payeeID string) (AcceptResult, error) {
	if callID == "" || payeeID == "" {
		return AcceptResult{}, ErrInvalidArgument
	}

	rec, err := s.repo.Get(ctx, callID)
	if err != nil {
		return AcceptResult{}, err
	}
	if rec.PayeeID != payeeID {
		return AcceptResult{}, ErrNotAuthorized
	}
	if rec.Status != StatusRinging {
		return AcceptResult{}, ErrInvalidState
	}
	if _, busy, err := s.repo.FindActiveByParty(ctx, payeeID, callID); err != nil {
		return AcceptResult{}, err
	} else if busy {
		return AcceptResult{}, ErrAlreadyBusy
	}

	payee, err := s.accounts.GetAccount(ctx, rec.PayeeID)
	if err != nil {
		return AcceptResult{}, err
	}
	payer, err := s.accounts.GetAccount(ctx, rec.PayerID)
	if err != nil {
		return AcceptResult{}, err
	}

	perSecond := pricing.PerSecondRate(payee.PricePerMinute)
	now := s.clock().UTC()

	rec.Status = StatusAccepted
	rec.AcceptedAt = &now
	rec.PricePerMinuteSnapshot = payee.PricePerMinute
	rec.MaxAffordableSeconds = pricing.MaxAffordableSeconds(payer.CoinBalance, perSecond)
	if err := s.repo.Update(ctx, rec); err != nil {
		return AcceptResult{}, err
	}

	if err := s.biller.OpenSession(ctx, rec); err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			// Accepted but unbillable: drive straight to ended, duration 0.
			end := s.clock().UTC()
			rec.Status = StatusEnded
			rec.EndedAt = &end
			rec.DurationSeconds = 0
			_ = s.repo.Update(ctx, rec)
			return AcceptResult{}, err
		}
		return AcceptResult{}, err
	}

	token, err := s.tokens.MintRoomToken(ctx, rec.CallID, payeeID)
	if err != nil {
		// A missing media token is not a billing problem; the client can retry.
		token = ""
	}

	return AcceptResult{
		Call:              rec,
		PricePerSecond:    perSecond,
		EarnRatePerSecond: s.earnRatePerSecond,
		RoomToken:         token,
	}, nil
}

// Started opens the billing session for an accepted call (duplicate-safe).
// Invoked by the transport-layer "call started" signal or the REST fallback.
func (s *Service) Started(ctx context.Context, callID string) error {
	if callID == "" {
		return ErrInvalidArgument
	}
	rec, err := s.repo.Get(ctx, callID)
	if err != nil {
		return err
	}
	if rec.Status != StatusAccepted || rec.IsSettled {
		// Nothing to open; terminal and pre-accept calls never have sessions.
		return nil
	}
	return s.biller.OpenSession(ctx, rec)
}

// End terminates a call from either party or the system (callerID "").
// Idempotent: ending a terminal call returns the recorded result unchanged.
func (s *Service) End(ctx context.Context, callID, callerID string) (CallRecord, error) {
	if callID == "" {
		return CallRecord{}, ErrInvalidArgument
	}

	rec, err := s.repo.Get(ctx, callID)
	if err != nil {
		return CallRecord{}, err
	}
	if callerID != "" && callerID != rec.PayerID && callerID != rec.PayeeID {
		return CallRecord{}, ErrNotAuthorized
	}
	if rec.Status.IsTerminal() {
		return rec, nil
	}

	if rec.Status == StatusAccepted {
		// The marker must land before we probe for a session. If session-open
		// is racing us, either it sees the marker and settles immediately, or
		// it created the session first and our Settle below consumes it;
		// marker-after-probe would let an open slip through the gap and leave
		// a live ticker metering an ended call. A stale marker is harmless:
		// it expires, or a later open consumes it.
		if err := s.biller.NoteEndPending(ctx, callID); err != nil {
			return CallRecord{}, err
		}
		settled, err := s.biller.Settle(ctx, callID, CauseEnded)
		if err != nil {
			return CallRecord{}, err
		}
		if settled {
			return s.repo.Get(ctx, callID)
		}
		// No session to consume. Re-read before writing: a concurrent open may
		// have taken the marker and finalized the record already.
		rec, err = s.repo.Get(ctx, callID)
		if err != nil {
			return CallRecord{}, err
		}
		if rec.Status.IsTerminal() {
			return rec, nil
		}
		now := s.clock().UTC()
		rec.Status = StatusEnded
		rec.EndedAt = &now
		if rec.AcceptedAt != nil {
			rec.DurationSeconds = int64(now.Sub(*rec.AcceptedAt) / time.Second)
		}
		if err := s.repo.Update(ctx, rec); err != nil {
			return CallRecord{}, err
		}
		return rec, nil
	}

	// Pre-accept hang-up. A payee hanging up on a ringing call is a reject.
	now := s.clock().UTC()
	to := StatusEnded
	if rec.Status == StatusRinging && callerID == rec.PayeeID {
		to = StatusRejected
	}
	if !canTransition(rec.Status, to) {
		return CallRecord{}, ErrInvalidState
	}
	rec.Status = to
	rec.EndedAt = &now
	rec.DurationSeconds = 0
	if err := s.repo.Update(ctx, rec); err != nil {
		return CallRecord{}, err
	}
	return rec, nil
}

// Disconnect handles a party's transport connection dropping: their active
// call, if any, is terminated through the same settlement path.
func (s *Service) Disconnect(ctx context.Context, partyID string) error {
	if partyID == "" {
		return ErrInvalidArgument
	}
	rec, ok, err := s.repo.FindActiveByParty(ctx, partyID, "")
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if rec.Status == StatusAccepted {
		settled, err := s.biller.Settle(ctx, rec.CallID, CausePeerDisconnected)
		if err != nil {
			return err
		}
		if settled {
			return nil
		}
	}
	// No session to settle (ringing, or end-before-start): fall back to the
	// idempotent system end.
	_, err = s.End(ctx, rec.CallID, "")
	return err
}

// TimeoutRinging drives a call stuck in ringing to missed or rejected,
// depending on whether the payee is reachable. Reaper-only.
func (s *Service) TimeoutRinging(ctx context.Context, callID string, payeeReachable bool) (CallRecord, error) {
	rec, err := s.repo.Get(ctx, callID)
	if err != nil {
		return CallRecord{}, err
	}
	if rec.Status.IsTerminal() {
		return rec, nil
	}

	to := StatusMissed
	if payeeReachable {
		to = StatusRejected
	}
	if !canTransition(rec.Status, to) {
		return CallRecord{}, ErrInvalidState
	}

	now := s.clock().UTC()
	rec.Status = to
	rec.EndedAt = &now
	rec.DurationSeconds = 0
	if err := s.repo.Update(ctx, rec); err != nil {
		return CallRecord{}, err
	}

	_ = s.notifier.Publish(ctx, notify.ChannelFor(rec.PayerID), notify.Event{
		Type:   notify.EventCallMissed,
		CallID: rec.CallID,
		Reason: notify.ReasonRingTimeout,
	})
	return rec, nil
}

// Get returns one call record.
func (s *Service) Get(ctx context.Context, callID string) (CallRecord, error) {
	if callID == "" {
		return CallRecord{}, ErrInvalidArgument
	}
	return s.repo.Get(ctx, callID)
}
