package reporting

import (
	"context"
	"database/sql"
	"time"

	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/calls"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/ledger"
)

// PostgresRepo reads the same call_records and ledger_entries tables the
// lifecycle and ledger services write.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) ListCallsByParty(ctx context.Context, accountID string, from, to time.Time) ([]calls.CallRecord, error) {
	const q = `
SELECT call_id, payer_id, payee_id, status, created_at, accepted_at, ended_at,
       duration_seconds, price_per_minute_snapshot, max_affordable_seconds, is_settled, notify_channel
FROM call_records
WHERE (payer_id = $1 OR payee_id = $1)
  AND created_at >= $2 AND created_at < $3
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, accountID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]calls.CallRecord, 0)
	for rows.Next() {
		var rec calls.CallRecord
		if err := rows.Scan(
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
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListLedgerEntries(ctx context.Context, accountID string, from, to time.Time) ([]ledger.Entry, error) {
	const q = `
SELECT transaction_id, account_id, direction, amount, source, related_call_id, status, created_at
FROM ledger_entries
WHERE account_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, accountID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ledger.Entry, 0)
	for rows.Next() {
		var e ledger.Entry
		if err := rows.Scan(
			&e.TransactionID,
			&e.AccountID,
			&e.Direction,
			&e.Amount,
			&e.Source,
			&e.RelatedCallID,
			&e.Status,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
