package calls

import "time"

// CallRecord is the durable record of one call: its parties, lifecycle status
// and the billing snapshots taken at acceptance time. Records are never
// deleted; a terminal record with IsSettled=true is the audit trail.
type CallRecord struct {
	CallID  string `json:"call_id" db:"call_id"`
	PayerID string `json:"payer_id" db:"payer_id"`
	PayeeID string `json:"payee_id" db:"payee_id"`

	Status Status `json:"status" db:"status"`

	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty" db:"accepted_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	DurationSeconds int64 `json:"duration_seconds" db:"duration_seconds"`

	// PricePerMinuteSnapshot is the payee's rate captured at acceptance.
	// Never re-read after acceptance, so later price changes cannot
	// retroactively affect an in-flight or historical call.
	PricePerMinuteSnapshot int64 `json:"price_per_minute_snapshot" db:"price_per_minute_snapshot"`

	// MaxAffordableSeconds is derived from the payer's balance at acceptance.
	// The reaper uses it as a hard ceiling independent of the tick loop.
	// Snapshot semantics: a mid-call top-up does not recompute it.
	MaxAffordableSeconds int64 `json:"max_affordable_seconds" db:"max_affordable_seconds"`

	// IsSettled is set exactly once by the settlement engine and guards
	// against double-settlement.
	IsSettled bool `json:"is_settled" db:"is_settled"`

	// NotifyChannel is the payee's shared notification target, computed once
	// at initiation.
	NotifyChannel string `json:"notify_channel" db:"notify_channel"`
}

type Status string

const (
	StatusInitiated Status = "initiated"
	StatusRinging   Status = "ringing"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusEnded     Status = "ended"
	StatusMissed    Status = "missed"
)

// IsTerminal reports whether no further transition is legal.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusEnded, StatusMissed:
		return true
	default:
		return false
	}
}

// canTransition encodes the legal lifecycle edges:
// initiated -> ringing -> accepted -> ended
// ringing -> rejected | missed | ended
// Terminal states have no outgoing edges.
func canTransition(from, to Status) bool {
	switch from {
	case StatusInitiated:
		return to == StatusRinging || to == StatusEnded
	case StatusRinging:
		return to == StatusAccepted || to == StatusRejected || to == StatusMissed || to == StatusEnded
	case StatusAccepted:
		return to == StatusEnded
	default:
		return false
	}
}

// EndCause classifies why a call terminated. Normal ends and forced ends go
// through the same settlement path; the cause only changes the notification.
type EndCause string

const (
	CauseEnded             EndCause = "Ended"
	CauseInsufficientFunds EndCause = "InsufficientFunds"
	CauseBudgetExceeded    EndCause = "BudgetExceeded"
	CausePeerDisconnected  EndCause = "PeerDisconnected"
)
