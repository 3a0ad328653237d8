package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// UsageSummaryRequest requests one account's aggregated call and coin
// activity. AccountID is required; the range is half-open [From, To).

type UsageSummaryRequest struct {
	AccountID string    `json:"account_id"`
	Range     TimeRange `json:"range"`
}

type UsageSummary struct {
	AccountID string    `json:"account_id"`
	Range     TimeRange `json:"range"`

	// Call counts, split by which side of the call the account was on.
	OutgoingCalls int `json:"outgoing_calls"`
	IncomingCalls int `json:"incoming_calls"`

	CompletedCalls int `json:"completed_calls"`
	MissedCalls    int `json:"missed_calls"`
	RejectedCalls  int `json:"rejected_calls"`

	TotalDurationSeconds   int64 `json:"total_duration_seconds"`
	AverageDurationSeconds int64 `json:"average_duration_seconds"`

	// Coin movement, derived from the immutable ledger.
	CoinsSpent    int64 `json:"coins_spent"`
	CoinsEarned   int64 `json:"coins_earned"`
	CoinsToppedUp int64 `json:"coins_topped_up"`
	NetCoins      int64 `json:"net_coins"`
}

// CallHistoryRequest requests the raw call list for one account.

type CallHistoryRequest struct {
	AccountID string    `json:"account_id"`
	Range     TimeRange `json:"range"`
}
