package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/primebank/agent_banking_core/internal/core/domain"
)

// CustomerReader defines the read slice of customer data the core consumes.
// Onboarding owns the rest of the record.
type CustomerReader interface {
	// FindCustomerByID retrieves a customer by its unique identifier.
	FindCustomerByID(ctx context.Context, customerID string) (*domain.Customer, error)
}

// ReceiptRepositoryFacade persists receipts issued by the processing unit.
type ReceiptRepositoryFacade interface {
	// SaveReceiptInTx inserts a receipt within tx, in the same unit of work
	// that committed the balance change.
	SaveReceiptInTx(ctx context.Context, tx pgx.Tx, receipt domain.Receipt) error

	// FindReceiptByTransactionID retrieves the receipt for a transaction.
	FindReceiptByTransactionID(ctx context.Context, transactionID string) (*domain.Receipt, error)
}

// OutboxRepositoryFacade stages and drains domain events.
type OutboxRepositoryFacade interface {
	// StageEventInTx inserts a pending outbox event within tx so it commits
	// or rolls back together with the state change it describes.
	StageEventInTx(ctx context.Context, tx pgx.Tx, event domain.OutboxEvent) error

	// ListPending retrieves pending events oldest first.
	ListPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)

	// MarkPublished records a successful publish.
	MarkPublished(ctx context.Context, eventID string, at time.Time) error

	// MarkFailed records a failed publish attempt.
	MarkFailed(ctx context.Context, eventID string, attempts int, lastError string) error
}

// RepositoryProvider holds all repository interfaces needed by services.
// This makes passing dependencies to the service container constructor cleaner.
type RepositoryProvider struct {
	TxManager       TransactionManager
	AccountRepo     AccountRepositoryFacade
	TransactionRepo TransactionRepositoryFacade
	ApprovalRepo    ApprovalRepositoryFacade
	CustomerRepo    CustomerReader
	ReceiptRepo     ReceiptRepositoryFacade
	OutboxRepo      OutboxRepositoryFacade
}
