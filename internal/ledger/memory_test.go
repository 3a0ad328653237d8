package ledger

import (
	"context"
	"errors"
	"testing"
)

func seededMemory(balance int64) *Memory {
	m := NewMemory()
	m.PutAccount(Account{ID: "payer", Role: "user", CoinBalance: balance})
	m.PutAccount(Account{ID: "payee", Role: "creator", CoinBalance: 0, PricePerMinute: 60})
	return m
}

func TestMemory_Post_DebitAndCredit(t *testing.T) {
	m := seededMemory(100)
	ctx := context.Background()

	entry, acct, err := m.Post(ctx, PostRequest{
		TransactionID: "call-debit:c1",
		AccountID:     "payer",
		Direction:     DirectionDebit,
		Amount:        40,
		Source:        SourceCallBilling,
		RelatedCallID: "c1",
	})
	if err != nil {
		t.Fatalf("Post debit: %v", err)
	}
	if entry.Amount != 40 || acct.CoinBalance != 60 {
		t.Fatalf("debit result = %d / balance %d", entry.Amount, acct.CoinBalance)
	}

	_, acct, err = m.Post(ctx, PostRequest{
		TransactionID: "call-credit:c1",
		AccountID:     "payee",
		Direction:     DirectionCredit,
		Amount:        20,
		Source:        SourceCallBilling,
		RelatedCallID: "c1",
	})
	if err != nil {
		t.Fatalf("Post credit: %v", err)
	}
	if acct.CoinBalance != 20 {
		t.Fatalf("payee balance = %d", acct.CoinBalance)
	}

	entries, _ := m.EntriesForCall(ctx, "c1")
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for call, got %d", len(entries))
	}
}

func TestMemory_Post_IdempotentByTransactionID(t *testing.T) {
	m := seededMemory(100)
	ctx := context.Background()

	req := PostRequest{
		TransactionID: "call-debit:c1",
		AccountID:     "payer",
		Direction:     DirectionDebit,
		Amount:        40,
		Source:        SourceCallBilling,
	}
	if _, _, err := m.Post(ctx, req); err != nil {
		t.Fatalf("first post: %v", err)
	}
	if _, _, err := m.Post(ctx, req); err != nil {
		t.Fatalf("second post: %v", err)
	}

	acct, _ := m.GetAccount(ctx, "payer")
	if acct.CoinBalance != 60 {
		t.Fatalf("balance after duplicate post = %d, want 60", acct.CoinBalance)
	}
}

func TestMemory_Post_DebitClampsAtBalance(t *testing.T) {
	m := seededMemory(30)
	ctx := context.Background()

	entry, acct, err := m.Post(ctx, PostRequest{
		TransactionID:  "call-debit:c1",
		AccountID:      "payer",
		Direction:      DirectionDebit,
		Amount:         45,
		Source:         SourceCallBilling,
		ClampToBalance: true,
	})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if entry.Amount != 30 {
		t.Fatalf("clamped amount = %d, want 30", entry.Amount)
	}
	if acct.CoinBalance != 0 {
		t.Fatalf("balance = %d, want 0", acct.CoinBalance)
	}
}

func TestMemory_Post_DebitWithoutClampFails(t *testing.T) {
	m := seededMemory(30)
	_, _, err := m.Post(context.Background(), PostRequest{
		TransactionID: "t",
		AccountID:     "payer",
		Direction:     DirectionDebit,
		Amount:        45,
		Source:        SourceCallBilling,
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}
