package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "Pending"
	StatusCompleted TransactionStatus = "Completed"
	StatusFailed    TransactionStatus = "Failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s TransactionStatus) Valid() bool {
	return s == StatusPending || s == StatusCompleted || s == StatusFailed
}

// Transaction is one STK push attempt. CheckoutRequestID stays nil until the
// gateway has answered with a correlation id.
type Transaction struct {
	ID                 string            `json:"id"`
	PhoneNumber        string            `json:"phone_number"`
	Amount             decimal.Decimal   `json:"amount"`
	Status             TransactionStatus `json:"status"`
	FailureReason      string            `json:"failure_reason,omitempty"`
	CheckoutRequestID  *string           `json:"checkout_request_id"`
	MpesaReceiptNumber *string           `json:"mpesa_receipt_number"`
	TransactionDate    *time.Time        `json:"transaction_date"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// CompletionDetails carries the callback metadata applied on success. Nil
// fields were absent from the callback.
type CompletionDetails struct {
	MpesaReceiptNumber *string
	TransactionDate    *time.Time
	Amount             *decimal.Decimal
	PhoneNumber        *string
}

// TransactionFilter narrows List results. Zero values match everything.
type TransactionFilter struct {
	Status            TransactionStatus
	CheckoutRequestID string
	Limit             int
}
