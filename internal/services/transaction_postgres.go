package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/markjakearzadon/stkpush-gobackend/internal/models"
)

const transactionsSchema = `
CREATE TABLE IF NOT EXISTS transactions (
	id                   UUID PRIMARY KEY,
	phone_number         TEXT NOT NULL,
	amount               NUMERIC NOT NULL,
	status               TEXT NOT NULL DEFAULT 'Pending',
	failure_reason       TEXT,
	checkout_request_id  TEXT UNIQUE,
	mpesa_receipt_number TEXT,
	transaction_date     TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS transactions_status_created_at_idx ON transactions (status, created_at DESC);
`

const transactionColumns = `id::text, phone_number, amount::text, status, COALESCE(failure_reason, ''),
	checkout_request_id, mpesa_receipt_number, transaction_date, created_at, updated_at`

const uniqueViolation = "23505"

type PostgresTransactionStore struct {
	Pool *pgxpool.Pool
}

func NewPostgresTransactionStore(pool *pgxpool.Pool) *PostgresTransactionStore {
	return &PostgresTransactionStore{Pool: pool}
}

// EnsureIndexes creates the transactions table and its indexes.
func (s *PostgresTransactionStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, transactionsSchema); err != nil {
		return fmt.Errorf("failed to create transactions schema: %w", err)
	}
	return nil
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var (
		t      models.Transaction
		amount string
		status string
	)
	if err := row.Scan(&t.ID, &t.PhoneNumber, &amount, &status, &t.FailureReason,
		&t.CheckoutRequestID, &t.MpesaReceiptNumber, &t.TransactionDate, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to decode amount %s: %w", amount, err)
	}
	t.Amount = d
	t.Status = models.TransactionStatus(status)
	return &t, nil
}

func (s *PostgresTransactionStore) Create(ctx context.Context, phoneNumber string, amount decimal.Decimal) (*models.Transaction, error) {
	row := s.Pool.QueryRow(ctx,
		`INSERT INTO transactions (id, phone_number, amount, status)
		 VALUES ($1::uuid, $2, $3::numeric, $4)
		 RETURNING `+transactionColumns,
		uuid.NewString(), phoneNumber, amount.String(), string(models.StatusPending),
	)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("failed to save transaction: %w", err)
	}
	return t, nil
}

func wrapUpdateErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("checkout_request_id already in use: %w", err)
	}
	return fmt.Errorf("failed to update transaction: %w", err)
}

func (s *PostgresTransactionStore) AttachCheckoutRequestID(ctx context.Context, id, checkoutRequestID string) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE transactions SET checkout_request_id = $2, updated_at = NOW()
		 WHERE id = $1::uuid AND status = 'Pending'`,
		id, checkoutRequestID,
	)
	if err != nil {
		return wrapUpdateErr(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no Pending transaction %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresTransactionStore) MarkFailed(ctx context.Context, id, reason string, checkoutRequestID *string) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE transactions
		 SET status = 'Failed', failure_reason = $2,
		     checkout_request_id = COALESCE($3, checkout_request_id), updated_at = NOW()
		 WHERE id = $1::uuid AND status = 'Pending'`,
		id, reason, checkoutRequestID,
	)
	if err != nil {
		return wrapUpdateErr(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no Pending transaction %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresTransactionStore) CompleteByCheckoutRequestID(ctx context.Context, checkoutRequestID string, details models.CompletionDetails) (bool, error) {
	var amount *string
	if details.Amount != nil {
		v := details.Amount.String()
		amount = &v
	}
	tag, err := s.Pool.Exec(ctx,
		`UPDATE transactions
		 SET status = 'Completed', mpesa_receipt_number = $2, transaction_date = $3,
		     amount = COALESCE($4::numeric, amount), phone_number = COALESCE($5, phone_number),
		     updated_at = NOW()
		 WHERE checkout_request_id = $1 AND status = 'Pending'`,
		checkoutRequestID, details.MpesaReceiptNumber, details.TransactionDate, amount, details.PhoneNumber,
	)
	if err != nil {
		return false, wrapUpdateErr(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresTransactionStore) FailByCheckoutRequestID(ctx context.Context, checkoutRequestID, reason string, at time.Time) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE transactions
		 SET status = 'Failed', failure_reason = $2, transaction_date = $3, updated_at = NOW()
		 WHERE checkout_request_id = $1 AND status = 'Pending'`,
		checkoutRequestID, reason, at,
	)
	if err != nil {
		return false, wrapUpdateErr(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresTransactionStore) getOne(ctx context.Context, where string, arg any) (*models.Transaction, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE `+where, arg)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch transaction: %w", err)
	}
	return t, nil
}

func (s *PostgresTransactionStore) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return s.getOne(ctx, `id = $1::uuid`, id)
}

func (s *PostgresTransactionStore) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.Transaction, error) {
	return s.getOne(ctx, `checkout_request_id = $1`, checkoutRequestID)
}

func (s *PostgresTransactionStore) List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CheckoutRequestID != "" {
		args = append(args, filter.CheckoutRequestID)
		conds = append(conds, fmt.Sprintf("checkout_request_id = $%d", len(args)))
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, listLimit(filter.Limit))
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	defer rows.Close()

	out := make([]models.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to decode transactions: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
