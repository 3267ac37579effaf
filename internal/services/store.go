package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/markjakearzadon/stkpush-gobackend/internal/models"
)

var (
	ErrInvalidPhone    = errors.New("invalid phone number")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrCredentials     = errors.New("access token unavailable")
	ErrTransport       = errors.New("gateway unreachable")
	ErrGatewayRejected = errors.New("gateway rejected request")
	ErrInvalidResponse = errors.New("invalid gateway response")
	ErrPersistence     = errors.New("persistence failure")
	ErrNotFound        = errors.New("transaction not found")
)

const defaultListLimit = 100

// TransactionStore persists transactions. Every mutation after Create only
// applies while the row is still Pending, so a terminal row never changes.
type TransactionStore interface {
	Create(ctx context.Context, phoneNumber string, amount decimal.Decimal) (*models.Transaction, error)
	AttachCheckoutRequestID(ctx context.Context, id, checkoutRequestID string) error
	MarkFailed(ctx context.Context, id, reason string, checkoutRequestID *string) error
	CompleteByCheckoutRequestID(ctx context.Context, checkoutRequestID string, details models.CompletionDetails) (bool, error)
	FailByCheckoutRequestID(ctx context.Context, checkoutRequestID, reason string, at time.Time) (bool, error)
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.Transaction, error)
	List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
	EnsureIndexes(ctx context.Context) error
}

func listLimit(n int) int {
	if n <= 0 || n > defaultListLimit {
		return defaultListLimit
	}
	return n
}
