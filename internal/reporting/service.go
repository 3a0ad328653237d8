package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/calls"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/ledger"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// Implementations must read from immutable sources (the ledger, finished call
// records); reporting never observes in-flight billing sessions.

type Repository interface {
	ListCallsByParty(ctx context.Context, accountID string, from, to time.Time) ([]calls.CallRecord, error)
	ListLedgerEntries(ctx context.Context, accountID string, from, to time.Time) ([]ledger.Entry, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// UsageSummary aggregates one account's calls and coin movement over a range.
func (s *Service) UsageSummary(ctx context.Context, req UsageSummaryRequest) (UsageSummary, error) {
	if err := validateRange(req.AccountID, req.Range); err != nil {
		return UsageSummary{}, err
	}
	if s.repo == nil {
		return UsageSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCallsByParty(ctx, req.AccountID, req.Range.From, req.Range.To)
	if err != nil {
		return UsageSummary{}, err
	}

	out := UsageSummary{AccountID: req.AccountID, Range: req.Range}
	for _, c := range rows {
		if c.PayerID == req.AccountID {
			out.OutgoingCalls++
		} else {
			out.IncomingCalls++
		}
		out.TotalDurationSeconds += c.DurationSeconds
		switch c.Status {
		case calls.StatusEnded:
			out.CompletedCalls++
		case calls.StatusMissed:
			out.MissedCalls++
		case calls.StatusRejected:
			out.RejectedCalls++
		case calls.StatusInitiated, calls.StatusRinging, calls.StatusAccepted:
			// in-flight; not counted separately
		}
	}
	if n := out.OutgoingCalls + out.IncomingCalls; n > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / int64(n)
	}

	entries, err := s.repo.ListLedgerEntries(ctx, req.AccountID, req.Range.From, req.Range.To)
	if err != nil {
		return UsageSummary{}, err
	}
	for _, e := range entries {
		switch {
		case e.Direction == ledger.DirectionDebit:
			out.CoinsSpent += e.Amount
		case e.Source == ledger.SourceTopUp:
			out.CoinsToppedUp += e.Amount
		default:
			out.CoinsEarned += e.Amount
		}
	}
	out.NetCoins = out.CoinsEarned + out.CoinsToppedUp - out.CoinsSpent

	return out, nil
}

// CallHistory returns the raw call records for one account, oldest first.
func (s *Service) CallHistory(ctx context.Context, req CallHistoryRequest) ([]calls.CallRecord, error) {
	if err := validateRange(req.AccountID, req.Range); err != nil {
		return nil, err
	}
	if s.repo == nil {
		return nil, errors.New("reporting: repository not configured")
	}
	return s.repo.ListCallsByParty(ctx, req.AccountID, req.Range.From, req.Range.To)
}

func validateRange(accountID string, r TimeRange) error {
	if accountID == "" {
		return ErrInvalidRequest
	}
	if r.From.IsZero() || r.To.IsZero() || !r.To.After(r.From) {
		return ErrInvalidRequest
	}
	return nil
}
