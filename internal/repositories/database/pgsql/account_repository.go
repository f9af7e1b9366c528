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

const accountColumns = `account_id, account_number, customer_id, account_type, currency_code, status,
	current_balance, available_balance, ledger_balance, pending_credits, pending_debits, hold_amount,
	daily_withdrawal_limit, daily_deposit_limit, monthly_limit, overdraft_limit, minimum_balance,
	last_transaction_at, created_at, created_by, last_updated_at, last_updated_by`

type PgxAccountRepository struct {
	pool *pgxpool.Pool
}

// newPgxAccountRepository creates a new repository for account data.
func newPgxAccountRepository(pool *pgxpool.Pool) portsrepo.AccountRepositoryFacade {
	return &PgxAccountRepository{pool: pool}
}

// Ensure PgxAccountRepository implements portsrepo.AccountRepositoryFacade
var _ portsrepo.AccountRepositoryFacade = (*PgxAccountRepository)(nil)

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.AccountID,
		&a.AccountNumber,
		&a.CustomerID,
		&a.AccountType,
		&a.CurrencyCode,
		&a.Status,
		&a.CurrentBalance,
		&a.AvailableBalance,
		&a.LedgerBalance,
		&a.PendingCredits,
		&a.PendingDebits,
		&a.HoldAmount,
		&a.DailyWithdrawalLimit,
		&a.DailyDepositLimit,
		&a.MonthlyLimit,
		&a.OverdraftLimit,
		&a.MinimumBalance,
		&a.LastTransactionAt,
		&a.CreatedAt,
		&a.CreatedBy,
		&a.LastUpdatedAt,
		&a.LastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindAccountByID retrieves an account by its ID.
func (r *PgxAccountRepository) FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_id = $1;`
	account, err := scanAccount(r.pool.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find account by ID %s: %w", accountID, err)
	}
	return account, nil
}

// FindAccountByNumber retrieves an account by its customer-facing number.
func (r *PgxAccountRepository) FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1;`
	account, err := scanAccount(r.pool.QueryRow(ctx, query, accountNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find account by number %s: %w", accountNumber, err)
	}
	return account, nil
}

// SaveAccount inserts a new account.
func (r *PgxAccountRepository) SaveAccount(ctx context.Context, account domain.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22);
	`
	_, err := r.pool.Exec(ctx, query,
		account.AccountID,
		account.AccountNumber,
		account.CustomerID,
		account.AccountType,
		account.CurrencyCode,
		account.Status,
		account.CurrentBalance,
		account.AvailableBalance,
		account.LedgerBalance,
		account.PendingCredits,
		account.PendingDebits,
		account.HoldAmount,
		account.DailyWithdrawalLimit,
		account.DailyDepositLimit,
		account.MonthlyLimit,
		account.OverdraftLimit,
		account.MinimumBalance,
		account.LastTransactionAt,
		account.CreatedAt,
		account.CreatedBy,
		account.LastUpdatedAt,
		account.LastUpdatedBy,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: account %s already exists", apperrors.ErrDuplicate, account.AccountID)
		}
		return fmt.Errorf("failed to save account %s: %w", account.AccountID, err)
	}
	return nil
}

// UpdateAccount updates an existing account's details.
func (r *PgxAccountRepository) UpdateAccount(ctx context.Context, account domain.Account) error {
	query := `
		UPDATE accounts
		SET status = $2, daily_withdrawal_limit = $3, daily_deposit_limit = $4, monthly_limit = $5,
			overdraft_limit = $6, minimum_balance = $7, last_updated_at = $8, last_updated_by = $9
		WHERE account_id = $1;
	`
	cmdTag, err := r.pool.Exec(ctx, query,
		account.AccountID,
		account.Status,
		account.DailyWithdrawalLimit,
		account.DailyDepositLimit,
		account.MonthlyLimit,
		account.OverdraftLimit,
		account.MinimumBalance,
		account.LastUpdatedAt,
		account.LastUpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to update account %s: %w", account.AccountID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// FindAccountForUpdate selects the account row and locks it within tx. With
// wait=false the lock is taken NOWAIT and contention surfaces as ErrBusy.
func (r *PgxAccountRepository) FindAccountForUpdate(ctx context.Context, tx pgx.Tx, accountID string, wait bool) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_id = $1 ` + lockClause(wait) + `;`
	account, err := scanAccount(tx.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		if busy := translateLockErr(err); errors.Is(busy, apperrors.ErrBusy) {
			return nil, fmt.Errorf("%w: account %s is locked by another operation", apperrors.ErrBusy, accountID)
		}
		return nil, fmt.Errorf("failed to lock account %s: %w", accountID, err)
	}
	return account, nil
}

// UpdateAccountBalancesInTx writes the account's balance, hold and
// last-transaction fields within the given transaction. The caller must hold
// the row lock.
func (r *PgxAccountRepository) UpdateAccountBalancesInTx(ctx context.Context, tx pgx.Tx, account domain.Account) error {
	query := `
		UPDATE accounts
		SET current_balance = $2, available_balance = $3, ledger_balance = $4,
			pending_credits = $5, pending_debits = $6, hold_amount = $7,
			last_transaction_at = $8, last_updated_at = $9, last_updated_by = $10
		WHERE account_id = $1;
	`
	cmdTag, err := tx.Exec(ctx, query,
		account.AccountID,
		account.CurrentBalance,
		account.AvailableBalance,
		account.LedgerBalance,
		account.PendingCredits,
		account.PendingDebits,
		account.HoldAmount,
		account.LastTransactionAt,
		account.LastUpdatedAt,
		account.LastUpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to update balances for account %s: %w", account.AccountID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s not found during balance update", apperrors.ErrNotFound, account.AccountID)
	}
	return nil
}
