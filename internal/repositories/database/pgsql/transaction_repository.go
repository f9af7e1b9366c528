package pgsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/primebank/agent_banking_core/internal/apperrors"
	"github.com/primebank/agent_banking_core/internal/core/domain"
	portsrepo "github.com/primebank/agent_banking_core/internal/core/ports/repositories"
)

const transactionColumns = `transaction_id, transaction_number, customer_id, account_id, agent_id,
	type, status, channel, priority, description, reference,
	amount, fee_amount, total_amount, currency_code,
	balance_before, balance_after, available_before, available_after,
	verification_methods, pin_verified, otp_verified, biometric_verified, customer_verified,
	approval_required, approval_level, approved_by, approved_at, rejected_by, rejected_at, rejection_reason,
	hold_placed, hold_amount, hold_reference, hold_expires_at,
	risk_score, risk_factors, compliance_flags,
	scheduled_at, processed_at, completed_at, processing_time_ms, retry_count, max_retries, last_error,
	is_reversal, original_transaction_id, reversing_transaction_id, reversed,
	audit_trail, created_at, created_by, last_updated_at, last_updated_by`

type PgxTransactionRepository struct {
	pool *pgxpool.Pool
}

// newPgxTransactionRepository creates a new repository for transaction data.
func newPgxTransactionRepository(pool *pgxpool.Pool) portsrepo.TransactionRepositoryFacade {
	return &PgxTransactionRepository{pool: pool}
}

// Ensure PgxTransactionRepository implements portsrepo.TransactionRepositoryFacade
var _ portsrepo.TransactionRepositoryFacade = (*PgxTransactionRepository)(nil)

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(
		&t.TransactionID,
		&t.TransactionNumber,
		&t.CustomerID,
		&t.AccountID,
		&t.AgentID,
		&t.Type,
		&t.Status,
		&t.Channel,
		&t.Priority,
		&t.Description,
		&t.Reference,
		&t.Amount,
		&t.FeeAmount,
		&t.TotalAmount,
		&t.CurrencyCode,
		&t.BalanceBefore,
		&t.BalanceAfter,
		&t.AvailableBefore,
		&t.AvailableAfter,
		&t.VerificationMethods,
		&t.PINVerified,
		&t.OTPVerified,
		&t.BiometricVerified,
		&t.CustomerVerified,
		&t.ApprovalRequired,
		&t.ApprovalLevel,
		&t.ApprovedBy,
		&t.ApprovedAt,
		&t.RejectedBy,
		&t.RejectedAt,
		&t.RejectionReason,
		&t.HoldPlaced,
		&t.HoldAmount,
		&t.HoldReference,
		&t.HoldExpiresAt,
		&t.RiskScore,
		&t.RiskFactors,
		&t.ComplianceFlags,
		&t.ScheduledAt,
		&t.ProcessedAt,
		&t.CompletedAt,
		&t.ProcessingTimeMs,
		&t.RetryCount,
		&t.MaxRetries,
		&t.LastError,
		&t.IsReversal,
		&t.OriginalTransactionID,
		&t.ReversingTransactionID,
		&t.Reversed,
		&t.AuditTrail,
		&t.CreatedAt,
		&t.CreatedBy,
		&t.LastUpdatedAt,
		&t.LastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func transactionArgs(t domain.Transaction) []any {
	return []any{
		t.TransactionID,
		t.TransactionNumber,
		t.CustomerID,
		t.AccountID,
		t.AgentID,
		t.Type,
		t.Status,
		t.Channel,
		t.Priority,
		t.Description,
		t.Reference,
		t.Amount,
		t.FeeAmount,
		t.TotalAmount,
		t.CurrencyCode,
		t.BalanceBefore,
		t.BalanceAfter,
		t.AvailableBefore,
		t.AvailableAfter,
		t.VerificationMethods,
		t.PINVerified,
		t.OTPVerified,
		t.BiometricVerified,
		t.CustomerVerified,
		t.ApprovalRequired,
		t.ApprovalLevel,
		t.ApprovedBy,
		t.ApprovedAt,
		t.RejectedBy,
		t.RejectedAt,
		t.RejectionReason,
		t.HoldPlaced,
		t.HoldAmount,
		t.HoldReference,
		t.HoldExpiresAt,
		t.RiskScore,
		t.RiskFactors,
		t.ComplianceFlags,
		t.ScheduledAt,
		t.ProcessedAt,
		t.CompletedAt,
		t.ProcessingTimeMs,
		t.RetryCount,
		t.MaxRetries,
		t.LastError,
		t.IsReversal,
		t.OriginalTransactionID,
		t.ReversingTransactionID,
		t.Reversed,
		t.AuditTrail,
		t.CreatedAt,
		t.CreatedBy,
		t.LastUpdatedAt,
		t.LastUpdatedBy,
	}
}

func placeholders(n int) string {
	out := ""
	for i := 1; i <= n; i++ {
		if i > 1 {
			out += ", "
		}
		out += fmt.Sprintf("$%d", i)
	}
	return out
}

// FindTransactionByID retrieves a transaction by its unique identifier.
func (r *PgxTransactionRepository) FindTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_id = $1;`
	txn, err := scanTransaction(r.pool.QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find transaction by ID %s: %w", transactionID, err)
	}
	return txn, nil
}

// CountRecentByAccount counts transactions created on the account since the
// given instant.
func (r *PgxTransactionRepository) CountRecentByAccount(ctx context.Context, accountID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE account_id = $1 AND created_at >= $2;`
	var count int
	if err := r.pool.QueryRow(ctx, query, accountID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count recent transactions for account %s: %w", accountID, err)
	}
	return count, nil
}

// ListTransactionsByAccount retrieves a page of an account's transactions,
// newest first.
func (r *PgxTransactionRepository) ListTransactionsByAccount(ctx context.Context, accountID string, limit, offset int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := r.pool.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions for account %s: %w", accountID, err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// ListExpiredHolds retrieves transactions whose hold is still active but past
// its expiry at the given instant.
func (r *PgxTransactionRepository) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE hold_placed = TRUE AND hold_expires_at IS NOT NULL AND hold_expires_at < $1
		ORDER BY hold_expires_at
		LIMIT $2;
	`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired holds: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	txns := []domain.Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		txns = append(txns, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return txns, nil
}

// SaveTransactionInTx inserts a new transaction within tx.
func (r *PgxTransactionRepository) SaveTransactionInTx(ctx context.Context, tx pgx.Tx, txn domain.Transaction) error {
	args := transactionArgs(txn)
	query := `INSERT INTO transactions (` + transactionColumns + `) VALUES (` + placeholders(len(args)) + `);`
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: transaction %s already exists", apperrors.ErrDuplicate, txn.TransactionID)
		}
		return fmt.Errorf("failed to save transaction %s: %w", txn.TransactionID, err)
	}
	return nil
}

// UpdateTransactionInTx rewrites a transaction's mutable fields within tx.
func (r *PgxTransactionRepository) UpdateTransactionInTx(ctx context.Context, tx pgx.Tx, txn domain.Transaction) error {
	query := `
		UPDATE transactions
		SET status = $2, fee_amount = $3, total_amount = $4,
			balance_before = $5, balance_after = $6, available_before = $7, available_after = $8,
			verification_methods = $9, pin_verified = $10, otp_verified = $11, biometric_verified = $12, customer_verified = $13,
			approved_by = $14, approved_at = $15, rejected_by = $16, rejected_at = $17, rejection_reason = $18,
			hold_placed = $19, hold_amount = $20, hold_reference = $21, hold_expires_at = $22,
			processed_at = $23, completed_at = $24, processing_time_ms = $25, retry_count = $26, last_error = $27,
			reversing_transaction_id = $28, reversed = $29,
			audit_trail = $30, last_updated_at = $31, last_updated_by = $32
		WHERE transaction_id = $1;
	`
	cmdTag, err := tx.Exec(ctx, query,
		txn.TransactionID,
		txn.Status,
		txn.FeeAmount,
		txn.TotalAmount,
		txn.BalanceBefore,
		txn.BalanceAfter,
		txn.AvailableBefore,
		txn.AvailableAfter,
		txn.VerificationMethods,
		txn.PINVerified,
		txn.OTPVerified,
		txn.BiometricVerified,
		txn.CustomerVerified,
		txn.ApprovedBy,
		txn.ApprovedAt,
		txn.RejectedBy,
		txn.RejectedAt,
		txn.RejectionReason,
		txn.HoldPlaced,
		txn.HoldAmount,
		txn.HoldReference,
		txn.HoldExpiresAt,
		txn.ProcessedAt,
		txn.CompletedAt,
		txn.ProcessingTimeMs,
		txn.RetryCount,
		txn.LastError,
		txn.ReversingTransactionID,
		txn.Reversed,
		txn.AuditTrail,
		txn.LastUpdatedAt,
		txn.LastUpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", txn.TransactionID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: transaction %s not found during update", apperrors.ErrNotFound, txn.TransactionID)
	}
	return nil
}

// FindTransactionForUpdate selects the transaction row and locks it within tx.
func (r *PgxTransactionRepository) FindTransactionForUpdate(ctx context.Context, tx pgx.Tx, transactionID string, wait bool) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_id = $1 ` + lockClause(wait) + `;`
	txn, err := scanTransaction(tx.QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		if busy := translateLockErr(err); errors.Is(busy, apperrors.ErrBusy) {
			return nil, fmt.Errorf("%w: transaction %s is locked by another operation", apperrors.ErrBusy, transactionID)
		}
		return nil, fmt.Errorf("failed to lock transaction %s: %w", transactionID, err)
	}
	return txn, nil
}
