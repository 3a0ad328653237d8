package billing

import (
	"context"
	"time"
)

// Session is the ephemeral metering state for one in-progress call. It exists
// iff the call is accepted and not yet settled; the TTL on the backing store
// guarantees eventual disappearance even if the owning process dies.
//
// PayerRemaining and PayeeEarned are running values held off the durable
// ledger so ticks never touch Postgres. They are work-in-progress, never the
// source of truth.
type Session struct {
	CallID  string
	PayerID string
	PayeeID string

	PricePerSecond    float64
	EarnRatePerSecond float64

	StartEpoch     int64
	ElapsedSeconds int64

	PayerRemaining float64
	PayeeEarned    float64
}

// SessionStore is the ephemeral session contract.
//
// Open and Consume are the concurrency guards for the multi-trigger paths
// (start vs duplicate start, end vs disconnect vs reaper): create-if-absent
// and delete-and-report are atomic at the store level, so no application lock
// is needed. Everything between open and settle has a single writer: the
// call's own ticker.
type SessionStore interface {
	// Open creates the session only if none exists for the call.
	// Reports whether this call created it.
	Open(ctx context.Context, s Session, ttl time.Duration) (bool, error)

	Get(ctx context.Context, callID string) (Session, bool, error)

	// Save persists the tick's read-modify-write. Only the owning ticker may
	// call it.
	Save(ctx context.Context, s Session) error

	// Consume atomically deletes the session and returns its final state.
	// The false return is settlement's idempotency guard.
	Consume(ctx context.Context, callID string) (Session, bool, error)

	// SetEndPending records an end signal that raced ahead of session-open.
	// The marker expires after grace; an expired marker means the call is
	// simply never billed.
	SetEndPending(ctx context.Context, callID string, grace time.Duration) error

	// TakeEndPending atomically reads and clears the marker.
	TakeEndPending(ctx context.Context, callID string) (bool, error)
}
