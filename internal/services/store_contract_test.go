package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/markjakearzadon/stkpush-gobackend/internal/models"
)

// runStoreContract exercises a TransactionStore against a real backend. The
// store must be empty when it is called.
func runStoreContract(t *testing.T, store TransactionStore) {
	ctx := context.Background()

	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}
	// Idempotent.
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes twice: %v", err)
	}

	txn, err := store.Create(ctx, "254712345678", decimal.RequireFromString("50.25"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if txn.ID == "" || txn.Status != models.StatusPending || txn.CheckoutRequestID != nil {
		t.Fatalf("Unexpected new transaction %+v", txn)
	}

	if err := store.AttachCheckoutRequestID(ctx, txn.ID, "ws_contract_1"); err != nil {
		t.Fatalf("AttachCheckoutRequestID: %v", err)
	}
	got, err := store.GetByCheckoutRequestID(ctx, "ws_contract_1")
	if err != nil {
		t.Fatalf("GetByCheckoutRequestID: %v", err)
	}
	if got.ID != txn.ID || !got.Amount.Equal(decimal.RequireFromString("50.25")) {
		t.Errorf("Unexpected row %+v", got)
	}

	// A second row cannot reuse the correlation id.
	time.Sleep(10 * time.Millisecond)
	other, err := store.Create(ctx, "254700000000", decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.AttachCheckoutRequestID(ctx, other.ID, "ws_contract_1"); err == nil {
		t.Error("Expected duplicate checkout id to be rejected")
	}

	receipt := "R1"
	when := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	amount := decimal.NewFromInt(50)
	matched, err := store.CompleteByCheckoutRequestID(ctx, "ws_contract_1", models.CompletionDetails{
		MpesaReceiptNumber: &receipt,
		TransactionDate:    &when,
		Amount:             &amount,
	})
	if err != nil || !matched {
		t.Fatalf("CompleteByCheckoutRequestID: matched=%v err=%v", matched, err)
	}

	// Terminal rows never change again.
	matched, err = store.FailByCheckoutRequestID(ctx, "ws_contract_1", "late failure", time.Now())
	if err != nil || matched {
		t.Errorf("Expected no match on a completed row, got matched=%v err=%v", matched, err)
	}
	matched, err = store.CompleteByCheckoutRequestID(ctx, "ws_contract_1", models.CompletionDetails{})
	if err != nil || matched {
		t.Errorf("Expected replay to match nothing, got matched=%v err=%v", matched, err)
	}
	if err := store.MarkFailed(ctx, txn.ID, "late", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound marking a completed row, got %v", err)
	}

	done, err := store.GetByID(ctx, txn.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if done.Status != models.StatusCompleted || done.MpesaReceiptNumber == nil || *done.MpesaReceiptNumber != "R1" {
		t.Errorf("Unexpected completed row %+v", done)
	}
	if done.TransactionDate == nil || !done.TransactionDate.Equal(when) {
		t.Errorf("Expected transaction date %s, got %v", when, done.TransactionDate)
	}
	if !done.Amount.Equal(amount) || done.PhoneNumber != "254712345678" {
		t.Errorf("Expected amount overwritten and phone kept, got %s %s", done.Amount, done.PhoneNumber)
	}

	checkout := "ws_contract_2"
	if err := store.MarkFailed(ctx, other.ID, "Insufficient balance", &checkout); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	failed, err := store.GetByID(ctx, other.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if failed.Status != models.StatusFailed || failed.FailureReason != "Insufficient balance" || failed.CheckoutRequestID == nil || *failed.CheckoutRequestID != checkout {
		t.Errorf("Unexpected failed row %+v", failed)
	}

	matched, err = store.FailByCheckoutRequestID(ctx, "ws_unknown", "nope", time.Now())
	if err != nil || matched {
		t.Errorf("Expected unknown checkout id to match nothing, got matched=%v err=%v", matched, err)
	}
	if _, err := store.GetByID(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	list, err := store.List(ctx, models.TransactionFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != other.ID {
		t.Errorf("Expected two rows newest first, got %+v", list)
	}
	list, err = store.List(ctx, models.TransactionFilter{Status: models.StatusCompleted})
	if err != nil || len(list) != 1 || list[0].ID != txn.ID {
		t.Errorf("Expected only the completed row, got %+v (%v)", list, err)
	}
	list, err = store.List(ctx, models.TransactionFilter{CheckoutRequestID: "ws_contract_2", Limit: 1})
	if err != nil || len(list) != 1 || list[0].ID != other.ID {
		t.Errorf("Expected only the ws_contract_2 row, got %+v (%v)", list, err)
	}
}
