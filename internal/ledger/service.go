package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shubhamsingh32112/vibemeet-backend-sub000/pkg/utils"

	"github.com/google/uuid"
)

// Service provides ledger operations against Postgres.
//
// Money invariants:
// - No balance updates without a ledger entry
// - The ledger is append-only (immutable)
// - All money operations execute in a DB transaction
//
// Idempotency:
//   - Posting the same TransactionID twice returns the original entry and the
//     current balance; no second entry is written.
type Service struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, clock: time.Now}
}

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// PostRequest describes one balance-affecting event.
type PostRequest struct {
	// TransactionID must be globally unique; callers derive deterministic ids
	// (e.g. "call-debit:<call_id>") when a retry must be a no-op.
	TransactionID string
	AccountID     string
	Direction     Direction
	Amount        int64
	Source        Source
	RelatedCallID string

	// ClampToBalance caps a debit at the account's current balance instead of
	// failing, so a settlement debit can never drive a balance negative.
	ClampToBalance bool
}

func (r PostRequest) validate() error {
	if r.TransactionID == "" || r.AccountID == "" {
		return ErrInvalidArgument
	}
	if r.Direction != DirectionCredit && r.Direction != DirectionDebit {
		return ErrInvalidArgument
	}
	if r.Amount < 0 {
		return ErrInvalidArgument
	}
	if r.Source == "" {
		return ErrInvalidArgument
	}
	return nil
}

// Post appends one ledger entry and applies the balance delta atomically.
func (s *Service) Post(ctx context.Context, req PostRequest) (Entry, Account, error) {
	if err := req.validate(); err != nil {
		return Entry{}, Account{}, err
	}

	now := s.clock().UTC()

	var outEntry Entry
	var outAcct Account

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the account row to serialize concurrent money operations.
		acct, err := lockAccount(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}

		// Idempotency: an entry with this transaction id already exists.
		if existing, ok, err := findEntryByTransactionID(ctx, tx, req.TransactionID); err != nil {
			return err
		} else if ok {
			outEntry = existing
			outAcct = acct
			return nil
		}

		amount := req.Amount
		delta := amount
		if req.Direction == DirectionDebit {
			if amount > acct.CoinBalance {
				if !req.ClampToBalance {
					return ErrInsufficientFunds
				}
				amount = acct.CoinBalance
			}
			delta = -amount
		}

		entry := Entry{
			TransactionID: req.TransactionID,
			AccountID:     req.AccountID,
			Direction:     req.Direction,
			Amount:        amount,
			Source:        req.Source,
			RelatedCallID: req.RelatedCallID,
			Status:        EntryStatusCompleted,
			CreatedAt:     now,
		}
		if err := insertEntry(ctx, tx, entry); err != nil {
			return err
		}

		updated, err := applyBalanceDelta(ctx, tx, req.AccountID, delta, now)
		if err != nil {
			return err
		}

		outEntry = entry
		outAcct = updated
		return nil
	})

	return outEntry, outAcct, err
}

func (s *Service) GetAccount(ctx context.Context, accountID string) (Account, error) {
	if accountID == "" {
		return Account{}, ErrInvalidArgument
	}
	return getAccount(ctx, s.db, accountID)
}

// TopUp credits an externally settled coin purchase. Payment gateway
// integration happens upstream; by the time this runs the money is real.
func (s *Service) TopUp(ctx context.Context, accountID string, amount int64, idempotencyKey string) (Entry, Account, error) {
	if amount <= 0 {
		return Entry{}, Account{}, ErrInvalidArgument
	}
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	return s.Post(ctx, PostRequest{
		TransactionID: "topup:" + idempotencyKey,
		AccountID:     accountID,
		Direction:     DirectionCredit,
		Amount:        amount,
		Source:        SourceTopUp,
	})
}

// ManualCredit posts an admin-originated credit. Reason is mandatory; the
// caller is responsible for the matching audit event.
func (s *Service) ManualCredit(ctx context.Context, accountID string, amount int64, reason, idempotencyKey string) (Entry, Account, error) {
	if amount <= 0 || reason == "" || idempotencyKey == "" {
		return Entry{}, Account{}, ErrInvalidArgument
	}
	return s.Post(ctx, PostRequest{
		TransactionID: "manual:" + idempotencyKey,
		AccountID:     accountID,
		Direction:     DirectionCredit,
		Amount:        amount,
		Source:        SourceManual,
	})
}

// EntriesForCall lists the entries posted for one call, oldest first.
func (s *Service) EntriesForCall(ctx context.Context, callID string) ([]Entry, error) {
	if callID == "" {
		return nil, ErrInvalidArgument
	}
	return entriesForCall(ctx, s.db, callID)
}

// EntriesForAccount lists an account's entries in [from, to), oldest first.
func (s *Service) EntriesForAccount(ctx context.Context, accountID string, from, to time.Time) ([]Entry, error) {
	if accountID == "" {
		return nil, ErrInvalidArgument
	}
	return entriesForAccount(ctx, s.db, accountID, from, to)
}
