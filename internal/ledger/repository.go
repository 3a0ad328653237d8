package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes the following tables exist:
// - accounts
// - ledger_entries (immutable append-only)
//
// It also assumes the idempotency constraint:
// UNIQUE (transaction_id)
// and the access-pattern indexes:
// INDEX ledger_entries (related_call_id), INDEX ledger_entries (account_id, created_at)

func lockAccount(ctx context.Context, tx *sql.Tx, accountID string) (Account, error) {
	const q = `
SELECT id, display_name, role, coin_balance, price_per_minute, created_at, updated_at
FROM accounts
WHERE id = $1
FOR UPDATE
`
	var a Account
	if err := tx.QueryRowContext(ctx, q, accountID).Scan(
		&a.ID,
		&a.DisplayName,
		&a.Role,
		&a.CoinBalance,
		&a.PricePerMinute,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func getAccount(ctx context.Context, db *sql.DB, accountID string) (Account, error) {
	const q = `
SELECT id, display_name, role, coin_balance, price_per_minute, created_at, updated_at
FROM accounts
WHERE id = $1
`
	var a Account
	if err := db.QueryRowContext(ctx, q, accountID).Scan(
		&a.ID,
		&a.DisplayName,
		&a.Role,
		&a.CoinBalance,
		&a.PricePerMinute,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func findEntryByTransactionID(ctx context.Context, tx *sql.Tx, transactionID string) (Entry, bool, error) {
	const q = `
SELECT transaction_id, account_id, direction, amount, source, related_call_id, status, created_at
FROM ledger_entries
WHERE transaction_id = $1
LIMIT 1
`
	var e Entry
	err := tx.QueryRowContext(ctx, q, transactionID).Scan(
		&e.TransactionID,
		&e.AccountID,
		&e.Direction,
		&e.Amount,
		&e.Source,
		&e.RelatedCallID,
		&e.Status,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	return e, true, nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, e Entry) error {
	const q = `
INSERT INTO ledger_entries (
  transaction_id, account_id, direction, amount, source, related_call_id, status, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
)
`
	_, err := tx.ExecContext(ctx, q,
		e.TransactionID,
		e.AccountID,
		e.Direction,
		e.Amount,
		e.Source,
		e.RelatedCallID,
		e.Status,
		e.CreatedAt,
	)
	return err
}

func applyBalanceDelta(ctx context.Context, tx *sql.Tx, accountID string, delta int64, now time.Time) (Account, error) {
	const q = `
UPDATE accounts
SET coin_balance = coin_balance + $2,
    updated_at = $3
WHERE id = $1
RETURNING id, display_name, role, coin_balance, price_per_minute, created_at, updated_at
`
	var a Account
	if err := tx.QueryRowContext(ctx, q, accountID, delta, now).Scan(
		&a.ID,
		&a.DisplayName,
		&a.Role,
		&a.CoinBalance,
		&a.PricePerMinute,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func entriesForCall(ctx context.Context, db *sql.DB, callID string) ([]Entry, error) {
	const q = `
SELECT transaction_id, account_id, direction, amount, source, related_call_id, status, created_at
FROM ledger_entries
WHERE related_call_id = $1
ORDER BY created_at ASC
`
	rows, err := db.QueryContext(ctx, q, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func entriesForAccount(ctx context.Context, db *sql.DB, accountID string, from, to time.Time) ([]Entry, error) {
	const q = `
SELECT transaction_id, account_id, direction, amount, source, related_call_id, status, created_at
FROM ledger_entries
WHERE account_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at ASC
`
	rows, err := db.QueryContext(ctx, q, accountID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	out := make([]Entry, 0)
	for rows.Next() {
		var e Entry
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
