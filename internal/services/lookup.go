package services

import (
	"context"
	"fmt"
	"time"

	"github.com/markjakearzadon/stkpush-gobackend/internal/models"
)

// Transaction returns a stored transaction by id.
func (s *MpesaService) Transaction(ctx context.Context, id string) (*models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return s.store.GetByID(ctx, id)
}

// Transactions lists stored transactions, newest first.
func (s *MpesaService) Transactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("invalid status filter %q, must be Pending, Completed or Failed", filter.Status)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.store.List(ctx, filter)
}
