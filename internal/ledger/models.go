package ledger

import "time"

// Account is the owning identity of a coin balance.
//
// Money invariant: CoinBalance is mutated only in the same durable write as a
// paired Entry, so the balance is always reconstructible as
// sum(credits) - sum(debits).
type Account struct {
	ID          string `json:"id" db:"id"`
	DisplayName string `json:"display_name" db:"display_name"`

	// Role mirrors the auth role: "user" (payer) or "creator" (payee).
	Role string `json:"role" db:"role"`

	// CoinBalance is a non-negative integer number of coins.
	CoinBalance int64 `json:"coin_balance" db:"coin_balance"`

	// PricePerMinute is the creator's listed rate in coins. Zero for payers.
	// Calls snapshot this at acceptance time; later edits never affect an
	// in-flight or historical call.
	PricePerMinute int64 `json:"price_per_minute" db:"price_per_minute"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Entry is an immutable append-only ledger record.
//
// Money invariant: any balance change MUST have a corresponding entry.
// Entries are never updated or deleted apart from the Status transition
// pending -> completed/failed.
type Entry struct {
	// TransactionID is globally unique and is the idempotency guard for
	// money-posting operations.
	TransactionID string `json:"transaction_id" db:"transaction_id"`

	AccountID string    `json:"account_id" db:"account_id"`
	Direction Direction `json:"direction" db:"direction"`

	// Amount is a non-negative integer number of coins.
	Amount int64 `json:"amount" db:"amount"`

	Source Source `json:"source" db:"source"`

	// RelatedCallID links call-billing entries to their call record.
	RelatedCallID string `json:"related_call_id,omitempty" db:"related_call_id"`

	Status EntryStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

type Source string

const (
	SourceCallBilling Source = "call_billing"
	SourceTopUp       Source = "topup"
	SourceRefund      Source = "refund"
	SourceManual      Source = "manual"
)

type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusCompleted EntryStatus = "completed"
	EntryStatusFailed    EntryStatus = "failed"
)
