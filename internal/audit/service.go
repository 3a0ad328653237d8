package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to end users.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogSettlementIncident records a failed ledger write during settlement.
// The session is gone by the time this fires, so the write is never retried;
// the incident is the input to out-of-band reconciliation.
func (s *Service) LogSettlementIncident(ctx context.Context, callID, accountID string, cause error) error {
	return s.Append(ctx, Event{
		Type:      EventTypeSettlementIncident,
		AccountID: accountID,
		CallID:    callID,
		Message:   fmt.Sprintf("settlement ledger write failed: %v", cause),
	})
}

// LogAdminAction records a privileged manual action (e.g., a manual credit).
func (s *Service) LogAdminAction(ctx context.Context, actorUserID, actorRole, accountID, message, metadata string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeAdminAction,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		AccountID:   accountID,
		Message:     message,
		Metadata:    metadata,
	})
}
