package pgsql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/primebank/agent_banking_core/internal/apperrors"
	"github.com/primebank/agent_banking_core/internal/core/domain"
	portsrepo "github.com/primebank/agent_banking_core/internal/core/ports/repositories"
)

const receiptColumns = `receipt_id, receipt_number, kind, transaction_id, transaction_number,
	customer_id, account_id, agent_id, amount, fee_amount, total_amount, currency_code,
	balance_after, issued_at`

type PgxReceiptRepository struct {
	pool *pgxpool.Pool
}

// newPgxReceiptRepository creates a new repository for receipt data.
func newPgxReceiptRepository(pool *pgxpool.Pool) portsrepo.ReceiptRepositoryFacade {
	return &PgxReceiptRepository{pool: pool}
}

var _ portsrepo.ReceiptRepositoryFacade = (*PgxReceiptRepository)(nil)

// SaveReceiptInTx inserts a receipt within tx. One receipt per transaction;
// a second insert surfaces as ErrDuplicate.
func (r *PgxReceiptRepository) SaveReceiptInTx(ctx context.Context, tx pgx.Tx, receipt domain.Receipt) error {
	query := `
		INSERT INTO receipts (` + receiptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14);
	`
	_, err := tx.Exec(ctx, query,
		receipt.ReceiptID,
		receipt.ReceiptNumber,
		receipt.Kind,
		receipt.TransactionID,
		receipt.TransactionNumber,
		receipt.CustomerID,
		receipt.AccountID,
		receipt.AgentID,
		receipt.Amount,
		receipt.FeeAmount,
		receipt.TotalAmount,
		receipt.CurrencyCode,
		receipt.BalanceAfter,
		receipt.IssuedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: receipt for transaction %s already exists", apperrors.ErrDuplicate, receipt.TransactionID)
		}
		return fmt.Errorf("failed to save receipt %s: %w", receipt.ReceiptID, err)
	}
	return nil
}

// FindReceiptByTransactionID retrieves the receipt for a transaction.
func (r *PgxReceiptRepository) FindReceiptByTransactionID(ctx context.Context, transactionID string) (*domain.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE transaction_id = $1;`
	var rc domain.Receipt
	err := r.pool.QueryRow(ctx, query, transactionID).Scan(
		&rc.ReceiptID,
		&rc.ReceiptNumber,
		&rc.Kind,
		&rc.TransactionID,
		&rc.TransactionNumber,
		&rc.CustomerID,
		&rc.AccountID,
		&rc.AgentID,
		&rc.Amount,
		&rc.FeeAmount,
		&rc.TotalAmount,
		&rc.CurrencyCode,
		&rc.BalanceAfter,
		&rc.IssuedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find receipt for transaction %s: %w", transactionID, err)
	}
	return &rc, nil
}
