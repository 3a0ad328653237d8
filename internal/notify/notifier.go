package notify

import "context"

// Notifier delivers real-time events to a party's transport channel.
// The transport itself (socket server, push relay) is an external collaborator;
// this package only owns the event shapes and the fan-out.
type Notifier interface {
	Publish(ctx context.Context, channel string, ev Event) error
}

type EventType string

const (
	EventCallIncoming   EventType = "call.incoming"
	EventCallMissed     EventType = "call.missed"
	EventCallForceEnd   EventType = "call.forceEnd"
	EventBillingStarted EventType = "billing.started"
	EventBillingUpdate  EventType = "billing.update"
	EventBillingSettled EventType = "billing.settled"
)

// Force-end reasons. Wire-visible; keep stable.
const (
	ReasonInsufficientFunds = "InsufficientFunds"
	ReasonBudgetExceeded    = "BudgetExceeded"
	ReasonPeerDisconnected  = "PeerDisconnected"
	ReasonRingTimeout       = "RingTimeout"
)

// Event is the single wire shape for all outbound notifications.
// Only the fields relevant to the Type are populated.
type Event struct {
	Type   EventType `json:"type"`
	CallID string    `json:"call_id,omitempty"`

	// call.incoming
	FromUserID string `json:"from_user_id,omitempty"`

	// billing.started
	RatePerSecond float64 `json:"rate_per_second,omitempty"`
	MaxSeconds    int64   `json:"max_seconds,omitempty"`

	// billing.update
	ElapsedSeconds int64   `json:"elapsed_seconds,omitempty"`
	Remaining      float64 `json:"remaining,omitempty"`
	Earned         float64 `json:"earned,omitempty"`

	// billing.settled
	TotalCharged    int64 `json:"total_charged,omitempty"`
	TotalEarned     int64 `json:"total_earned,omitempty"`
	DurationSeconds int64 `json:"duration_seconds,omitempty"`

	// call.forceEnd
	Reason string `json:"reason,omitempty"`
}

// ChannelFor is the single shared notification target for one user. Every
// component addressing a user's transport channel must go through this.
func ChannelFor(userID string) string {
	return "vibemeet:user:" + userID
}
