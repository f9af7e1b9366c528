package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/primebank/agent_banking_core/internal/core/domain"
)

// AccountReader defines read operations for account data.
type AccountReader interface {
	// FindAccountByID retrieves a specific account by its unique identifier.
	FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error)

	// FindAccountByNumber retrieves an account by its customer-facing number.
	FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
}

// AccountWriter defines write operations for account data.
type AccountWriter interface {
	// SaveAccount persists a new account.
	SaveAccount(ctx context.Context, account domain.Account) error

	// UpdateAccount updates an existing account's details.
	UpdateAccount(ctx context.Context, account domain.Account) error
}

// AccountTransactionSupport defines operations used inside money-moving units
// of work. All balance mutation goes through these under a row lock.
type AccountTransactionSupport interface {
	// FindAccountForUpdate selects the account row and locks it within tx.
	// With wait=false the lock is taken NOWAIT and lock contention surfaces
	// as apperrors.ErrBusy.
	FindAccountForUpdate(ctx context.Context, tx pgx.Tx, accountID string, wait bool) (*domain.Account, error)

	// UpdateAccountBalancesInTx writes the account's balance, hold and
	// last-transaction fields within the given transaction.
	UpdateAccountBalancesInTx(ctx context.Context, tx pgx.Tx, account domain.Account) error
}

// AccountRepositoryFacade combines all account-related repository interfaces.
type AccountRepositoryFacade interface {
	AccountReader
	AccountWriter
	AccountTransactionSupport
}
