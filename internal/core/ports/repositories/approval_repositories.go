package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/primebank/agent_banking_core/internal/core/domain"
)

// ApprovalReader defines read operations for approval workflow data.
type ApprovalReader interface {
	// FindWorkflowByID retrieves a workflow by its unique identifier.
	FindWorkflowByID(ctx context.Context, workflowID string) (*domain.ApprovalWorkflow, error)

	// FindWorkflowByTransactionID retrieves the workflow linked to a transaction.
	FindWorkflowByTransactionID(ctx context.Context, transactionID string) (*domain.ApprovalWorkflow, error)

	// ListQueue retrieves open workflows for a queue ordered by priority and
	// SLA expiry, most urgent first.
	ListQueue(ctx context.Context, queue string, limit int) ([]domain.ApprovalWorkflow, error)

	// ListOverdue retrieves non-terminal workflows whose SLA expired before now.
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.ApprovalWorkflow, error)
}

// ApprovalWriter defines write operations for approval workflow data.
type ApprovalWriter interface {
	// SaveWorkflowInTx inserts a new workflow within tx.
	SaveWorkflowInTx(ctx context.Context, tx pgx.Tx, wf domain.ApprovalWorkflow) error

	// UpdateWorkflowInTx updates a workflow's mutable fields within tx.
	UpdateWorkflowInTx(ctx context.Context, tx pgx.Tx, wf domain.ApprovalWorkflow) error
}

// ApprovalTransactionSupport defines locking reads for decision units of work.
type ApprovalTransactionSupport interface {
	// FindWorkflowForUpdate selects the workflow row and locks it within tx.
	FindWorkflowForUpdate(ctx context.Context, tx pgx.Tx, workflowID string) (*domain.ApprovalWorkflow, error)

	// FindWorkflowByTransactionForUpdate selects the workflow linked to a
	// transaction and locks it within tx.
	FindWorkflowByTransactionForUpdate(ctx context.Context, tx pgx.Tx, transactionID string) (*domain.ApprovalWorkflow, error)
}

// ApprovalRepositoryFacade combines all approval repository interfaces.
type ApprovalRepositoryFacade interface {
	ApprovalReader
	ApprovalWriter
	ApprovalTransactionSupport
}
