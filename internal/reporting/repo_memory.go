package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/calls"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/ledger"
)

// MemoryRepo is a simple in-memory reporting repository for tests.

type MemoryRepo struct {
	mu sync.Mutex

	Calls   []calls.CallRecord
	Entries []ledger.Entry
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListCallsByParty(ctx context.Context, accountID string, from, to time.Time) ([]calls.CallRecord, error) {
	if accountID == "" {
		return nil, errors.New("account_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.CallRecord, 0)
	for _, c := range r.Calls {
		if c.PayerID != accountID && c.PayeeID != accountID {
			continue
		}
		if c.CreatedAt.Before(from) || !c.CreatedAt.Before(to) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *MemoryRepo) ListLedgerEntries(ctx context.Context, accountID string, from, to time.Time) ([]ledger.Entry, error) {
	if accountID == "" {
		return nil, errors.New("account_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ledger.Entry, 0)
	for _, e := range r.Entries {
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
