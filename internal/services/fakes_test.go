package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/markjakearzadon/stkpush-gobackend/internal/models"
)

// memStore mirrors the Pending-only update rule of the real stores.
type memStore struct {
	mu   sync.Mutex
	seq  int
	rows map[string]*models.Transaction

	CreateErr   error
	AttachErr   error
	MarkErr     error
	CompleteErr error
	FailErr     error
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]*models.Transaction)}
}

func (m *memStore) Create(ctx context.Context, phoneNumber string, amount decimal.Decimal) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	m.seq++
	now := time.Now().UTC()
	t := &models.Transaction{
		ID:          fmt.Sprintf("txn-%d", m.seq),
		PhoneNumber: phoneNumber,
		Amount:      amount,
		Status:      models.StatusPending,
		CreatedAt:   now.Add(time.Duration(m.seq) * time.Millisecond),
		UpdatedAt:   now,
	}
	m.rows[t.ID] = t
	cp := *t
	return &cp, nil
}

func (m *memStore) checkoutInUse(checkoutID, exceptID string) bool {
	for id, r := range m.rows {
		if id != exceptID && r.CheckoutRequestID != nil && *r.CheckoutRequestID == checkoutID {
			return true
		}
	}
	return false
}

func (m *memStore) pendingByCheckout(checkoutID string) *models.Transaction {
	for _, r := range m.rows {
		if r.Status == models.StatusPending && r.CheckoutRequestID != nil && *r.CheckoutRequestID == checkoutID {
			return r
		}
	}
	return nil
}

func (m *memStore) AttachCheckoutRequestID(ctx context.Context, id, checkoutRequestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AttachErr != nil {
		return m.AttachErr
	}
	r, ok := m.rows[id]
	if !ok || r.Status != models.StatusPending {
		return ErrNotFound
	}
	if m.checkoutInUse(checkoutRequestID, id) {
		return fmt.Errorf("checkout_request_id already in use")
	}
	r.CheckoutRequestID = &checkoutRequestID
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memStore) MarkFailed(ctx context.Context, id, reason string, checkoutRequestID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return m.MarkErr
	}
	r, ok := m.rows[id]
	if !ok || r.Status != models.StatusPending {
		return ErrNotFound
	}
	r.Status = models.StatusFailed
	r.FailureReason = reason
	if checkoutRequestID != nil {
		v := *checkoutRequestID
		r.CheckoutRequestID = &v
	}
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memStore) CompleteByCheckoutRequestID(ctx context.Context, checkoutRequestID string, d models.CompletionDetails) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CompleteErr != nil {
		return false, m.CompleteErr
	}
	r := m.pendingByCheckout(checkoutRequestID)
	if r == nil {
		return false, nil
	}
	r.Status = models.StatusCompleted
	r.MpesaReceiptNumber = d.MpesaReceiptNumber
	r.TransactionDate = d.TransactionDate
	if d.Amount != nil {
		r.Amount = *d.Amount
	}
	if d.PhoneNumber != nil {
		r.PhoneNumber = *d.PhoneNumber
	}
	r.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *memStore) FailByCheckoutRequestID(ctx context.Context, checkoutRequestID, reason string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailErr != nil {
		return false, m.FailErr
	}
	r := m.pendingByCheckout(checkoutRequestID)
	if r == nil {
		return false, nil
	}
	r.Status = models.StatusFailed
	r.FailureReason = reason
	r.TransactionDate = &at
	r.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *memStore) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.CheckoutRequestID != nil && *r.CheckoutRequestID == checkoutRequestID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Transaction{}
	for _, r := range m.rows {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.CheckoutRequestID != "" && (r.CheckoutRequestID == nil || *r.CheckoutRequestID != filter.CheckoutRequestID) {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit := listLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) EnsureIndexes(ctx context.Context) error { return nil }

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memStore) get(id string) models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

type fakeCredentials struct {
	mu    sync.Mutex
	token string
	err   error
	calls int
}

func (f *fakeCredentials) AccessToken(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}
