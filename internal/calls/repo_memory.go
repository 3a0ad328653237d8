package calls

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory call record store for tests.

type MemoryRepo struct {
	mu      sync.Mutex
	records map[string]CallRecord
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: map[string]CallRecord{}}
}

func (r *MemoryRepo) Create(ctx context.Context, rec CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.CallID] = rec
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, callID string) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[callID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepo) Update(ctx context.Context, rec CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.CallID]; !ok {
		return ErrNotFound
	}
	r.records[rec.CallID] = rec
	return nil
}

func (r *MemoryRepo) FindActiveByParty(ctx context.Context, partyID, excludeCallID string) (CallRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.CallID == excludeCallID {
			continue
		}
		if rec.Status.IsTerminal() {
			continue
		}
		if rec.PayerID == partyID || rec.PayeeID == partyID {
			return rec, true, nil
		}
	}
	return CallRecord{}, false, nil
}

func (r *MemoryRepo) ListRingingBefore(ctx context.Context, cutoff time.Time) ([]CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRecord, 0)
	for _, rec := range r.records {
		if (rec.Status == StatusInitiated || rec.Status == StatusRinging) && rec.CreatedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListAcceptedOverBudget(ctx context.Context, now time.Time) ([]CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRecord, 0)
	for _, rec := range r.records {
		if rec.Status != StatusAccepted || rec.IsSettled || rec.AcceptedAt == nil {
			continue
		}
		if rec.AcceptedAt.Add(time.Duration(rec.MaxAffordableSeconds) * time.Second).Before(now) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *MemoryRepo) CompleteSettlement(ctx context.Context, callID string, durationSeconds int64, endedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[callID]
	if !ok || rec.IsSettled {
		return false, nil
	}
	rec.Status = StatusEnded
	rec.IsSettled = true
	rec.DurationSeconds = durationSeconds
	rec.EndedAt = &endedAt
	r.records[callID] = rec
	return true, nil
}
