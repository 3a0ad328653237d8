package ledger

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

// The money operations are implemented with Postgres-specific SQL (notably
// SELECT ... FOR UPDATE), so end-to-end behavior is covered by the Memory
// implementation tests in memory_test.go, which shares posting semantics with
// Service. What we unit-test here is request validation, which never touches
// the database.

func TestService_Post_RejectsInvalidArgs(t *testing.T) {
	svc := NewService((*sql.DB)(nil))

	tests := []struct {
		name string
		req  PostRequest
	}{
		{"missing transaction id", PostRequest{AccountID: "a", Direction: DirectionCredit, Amount: 1, Source: SourceTopUp}},
		{"missing account id", PostRequest{TransactionID: "t", Direction: DirectionCredit, Amount: 1, Source: SourceTopUp}},
		{"bad direction", PostRequest{TransactionID: "t", AccountID: "a", Direction: "sideways", Amount: 1, Source: SourceTopUp}},
		{"negative amount", PostRequest{TransactionID: "t", AccountID: "a", Direction: DirectionCredit, Amount: -5, Source: SourceTopUp}},
		{"missing source", PostRequest{TransactionID: "t", AccountID: "a", Direction: DirectionCredit, Amount: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Post(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestService_TopUp_RejectsNonPositiveAmount(t *testing.T) {
	svc := NewService((*sql.DB)(nil))
	if _, _, err := svc.TopUp(context.Background(), "a", 0, "k"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestService_ManualCredit_RequiresReasonAndKey(t *testing.T) {
	svc := NewService((*sql.DB)(nil))
	if _, _, err := svc.ManualCredit(context.Background(), "a", 10, "", "k"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for missing reason, got %v", err)
	}
	if _, _, err := svc.ManualCredit(context.Background(), "a", 10, "promo", ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for missing key, got %v", err)
	}
}
