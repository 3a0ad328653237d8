package ledger

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-memory ledger with the same posting semantics as Service.
// It backs unit tests for the billing engine and the call state machine,
// where Postgres-specific SQL (SELECT ... FOR UPDATE) is out of reach.

type Memory struct {
	mu       sync.Mutex
	accounts map[string]Account
	entries  []Entry
	byTxn    map[string]Entry

	clock func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		accounts: map[string]Account{},
		byTxn:    map[string]Entry{},
		clock:    time.Now,
	}
}

// PutAccount seeds or replaces an account.
func (m *Memory) PutAccount(a Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
}

func (m *Memory) GetAccount(ctx context.Context, accountID string) (Account, error) {
	if accountID == "" {
		return Account{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) Post(ctx context.Context, req PostRequest) (Entry, Account, error) {
	if err := req.validate(); err != nil {
		return Entry{}, Account{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[req.AccountID]
	if !ok {
		return Entry{}, Account{}, ErrNotFound
	}

	if existing, ok := m.byTxn[req.TransactionID]; ok {
		return existing, acct, nil
	}

	amount := req.Amount
	delta := amount
	if req.Direction == DirectionDebit {
		if amount > acct.CoinBalance {
			if !req.ClampToBalance {
				return Entry{}, Account{}, ErrInsufficientFunds
			}
			amount = acct.CoinBalance
		}
		delta = -amount
	}

	now := m.clock().UTC()
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

	acct.CoinBalance += delta
	acct.UpdatedAt = now
	m.accounts[req.AccountID] = acct
	m.entries = append(m.entries, entry)
	m.byTxn[entry.TransactionID] = entry

	return entry, acct, nil
}

func (m *Memory) EntriesForCall(ctx context.Context, callID string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0)
	for _, e := range m.entries {
		if e.RelatedCallID == callID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) EntriesForAccount(ctx context.Context, accountID string, from, to time.Time) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0)
	for _, e := range m.entries {
		if e.AccountID != accountID {
			continue
		}
		if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
