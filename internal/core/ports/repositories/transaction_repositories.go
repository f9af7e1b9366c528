package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/primebank/agent_banking_core/internal/core/domain"
)

// TransactionReader defines read operations for transaction data.
type TransactionReader interface {
	// FindTransactionByID retrieves a transaction by its unique identifier.
	FindTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error)

	// CountRecentByAccount counts transactions created on the account since
	// the given instant. Used for velocity-based risk scoring.
	CountRecentByAccount(ctx context.Context, accountID string, since time.Time) (int, error)

	// ListTransactionsByAccount retrieves a page of transactions for an account,
	// newest first.
	ListTransactionsByAccount(ctx context.Context, accountID string, limit, offset int) ([]domain.Transaction, error)

	// ListExpiredHolds retrieves transactions whose hold is still active but
	// past its expiry at the given instant.
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Transaction, error)
}

// TransactionWriter defines write operations for transaction data.
type TransactionWriter interface {
	// SaveTransactionInTx inserts a new transaction within tx.
	SaveTransactionInTx(ctx context.Context, tx pgx.Tx, txn domain.Transaction) error

	// UpdateTransactionInTx updates a transaction's mutable fields within tx.
	UpdateTransactionInTx(ctx context.Context, tx pgx.Tx, txn domain.Transaction) error
}

// TransactionTransactionSupport defines locking reads for the orchestrator.
type TransactionTransactionSupport interface {
	// FindTransactionForUpdate selects the transaction row and locks it within
	// tx. With wait=false lock contention surfaces as apperrors.ErrBusy.
	FindTransactionForUpdate(ctx context.Context, tx pgx.Tx, transactionID string, wait bool) (*domain.Transaction, error)
}

// TransactionRepositoryFacade combines all transaction repository interfaces.
type TransactionRepositoryFacade interface {
	TransactionReader
	TransactionWriter
	TransactionTransactionSupport
}
