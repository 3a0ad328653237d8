package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo persists call records.
//
// NOTE: This repository assumes a call_records table with the columns mirrored
// in CallRecord, plus the access-pattern indexes:
// INDEX call_records (payer_id, status), INDEX call_records (payee_id, status),
// INDEX call_records (status, created_at)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const callColumns = `
call_id, payer_id, payee_id, status, created_at, accepted_at, ended_at,
duration_seconds, price_per_minute_snapshot, max_affordable_seconds, is_settled, notify_channel
`

func scanCall(row interface{ Scan(...any) error }) (CallRecord, error) {
	var rec CallRecord
	err := row.Scan(
		&rec.CallID,
		&rec.PayerID,
		&rec.PayeeID,
		&rec.Status,
		&rec.CreatedAt,
		&rec.AcceptedAt,
		&rec.EndedAt,
		&rec.DurationSeconds,
		&rec.PricePerMinuteSnapshot,
		&rec.MaxAffordableSeconds,
		&rec.IsSettled,
		&rec.NotifyChannel,
	)
	return rec, err
}

func (r *PostgresRepo) Create(ctx context.Context, rec CallRecord) error {
	const q = `
INSERT INTO call_records (` + callColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`
	_, err := r.db.ExecContext(ctx, q,
		rec.CallID,
		rec.PayerID,
		rec.PayeeID,
		rec.Status,
		rec.CreatedAt,
		rec.AcceptedAt,
		rec.EndedAt,
		rec.DurationSeconds,
		rec.PricePerMinuteSnapshot,
		rec.MaxAffordableSeconds,
		rec.IsSettled,
		rec.NotifyChannel,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, callID string) (CallRecord, error) {
	const q = `SELECT ` + callColumns + ` FROM call_records WHERE call_id = $1`
	rec, err := scanCall(r.db.QueryRowContext(ctx, q, callID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, err
	}
	return rec, nil
}

func (r *PostgresRepo) Update(ctx context.Context, rec CallRecord) error {
	const q = `
UPDATE call_records
SET status = $2, accepted_at = $3, ended_at = $4, duration_seconds = $5,
    price_per_minute_snapshot = $6, max_affordable_seconds = $7, is_settled = $8
WHERE call_id = $1
`
	res, err := r.db.ExecContext(ctx, q,
		rec.CallID,
		rec.Status,
		rec.AcceptedAt,
		rec.EndedAt,
		rec.DurationSeconds,
		rec.PricePerMinuteSnapshot,
		rec.MaxAffordableSeconds,
		rec.IsSettled,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) FindActiveByParty(ctx context.Context, partyID, excludeCallID string) (CallRecord, bool, error) {
	const q = `
SELECT ` + callColumns + `
FROM call_records
WHERE (payer_id = $1 OR payee_id = $1)
  AND status IN ('initiated','ringing','accepted')
  AND call_id <> $2
LIMIT 1
`
	rec, err := scanCall(r.db.QueryRowContext(ctx, q, partyID, excludeCallID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, false, nil
		}
		return CallRecord{}, false, err
	}
	return rec, true, nil
}

func (r *PostgresRepo) ListRingingBefore(ctx context.Context, cutoff time.Time) ([]CallRecord, error) {
	const q = `
SELECT ` + callColumns + `
FROM call_records
WHERE status IN ('initiated','ringing') AND created_at < $1
ORDER BY created_at ASC
`
	return r.list(ctx, q, cutoff)
}

func (r *PostgresRepo) ListAcceptedOverBudget(ctx context.Context, now time.Time) ([]CallRecord, error) {
	const q = `
SELECT ` + callColumns + `
FROM call_records
WHERE status = 'accepted'
  AND is_settled = FALSE
  AND accepted_at + make_interval(secs => max_affordable_seconds) < $1
ORDER BY accepted_at ASC
`
	return r.list(ctx, q, now)
}

func (r *PostgresRepo) CompleteSettlement(ctx context.Context, callID string, durationSeconds int64, endedAt time.Time) (bool, error) {
	// is_settled = FALSE in the predicate makes settlement completion a
	// set-exactly-once operation at the store level.
	const q = `
UPDATE call_records
SET status = 'ended', is_settled = TRUE, duration_seconds = $2, ended_at = $3
WHERE call_id = $1 AND is_settled = FALSE
`
	res, err := r.db.ExecContext(ctx, q, callID, durationSeconds, endedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresRepo) list(ctx context.Context, q string, args ...any) ([]CallRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallRecord, 0)
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
