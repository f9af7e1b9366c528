package services

import (
	"context"

	"github.com/primebank/agent_banking_core/internal/core/domain"
	"github.com/primebank/agent_banking_core/internal/dto"
)

// ApprovalReaderSvc defines read operations on approval workflows.
type ApprovalReaderSvc interface {
	// GetWorkflow retrieves a workflow by ID.
	GetWorkflow(ctx context.Context, workflowID string) (*domain.ApprovalWorkflow, error)

	// GetWorkflowForTransaction retrieves the workflow linked to a transaction.
	GetWorkflowForTransaction(ctx context.Context, transactionID string) (*domain.ApprovalWorkflow, error)

	// ListQueue retrieves open workflows for a review queue, most urgent first.
	ListQueue(ctx context.Context, queue string, limit int) ([]domain.ApprovalWorkflow, error)
}

// ApprovalWriterSvc drives the approval workflow state machine.
type ApprovalWriterSvc interface {
	// Assign assigns an unassigned workflow to a reviewer.
	Assign(ctx context.Context, workflowID string, req dto.AssignWorkflowRequest, assigner string) (*domain.ApprovalWorkflow, error)

	// Reassign always succeeds on a non-terminal workflow and resets AssignedAt.
	Reassign(ctx context.Context, workflowID string, req dto.AssignWorkflowRequest, assigner string) (*domain.ApprovalWorkflow, error)

	// StartReview moves an assigned pending workflow into review.
	StartReview(ctx context.Context, workflowID string, reviewer string) (*domain.ApprovalWorkflow, error)

	// Approve approves an in-review workflow with a complete required
	// checklist and propagates the result to the linked transaction in the
	// same unit of work.
	Approve(ctx context.Context, workflowID string, req dto.ApproveWorkflowRequest, actor string) (*domain.ApprovalWorkflow, error)

	// Reject rejects an in-review workflow and propagates to the transaction.
	Reject(ctx context.Context, workflowID string, req dto.RejectWorkflowRequest, actor string) (*domain.ApprovalWorkflow, error)

	// Escalate moves the workflow one level up the hierarchy, clearing the
	// assignment and advancing stage and queue.
	Escalate(ctx context.Context, workflowID string, req dto.EscalateWorkflowRequest, actor string) (*domain.ApprovalWorkflow, error)

	// CompleteChecklistItem marks one checklist item done.
	CompleteChecklistItem(ctx context.Context, workflowID string, req dto.CompleteChecklistItemRequest, actor string) (*domain.ApprovalWorkflow, error)

	// AutoEscalateOverdue escalates workflows whose SLA expired. This is the
	// only path by which SLA breach changes state; reads never do.
	AutoEscalateOverdue(ctx context.Context, limit int) (int, error)

	// BulkApprove applies Approve per workflow independently.
	BulkApprove(ctx context.Context, req dto.BulkDecisionRequest, actor string) (*dto.BulkDecisionResult, error)

	// BulkReject applies Reject per workflow independently.
	BulkReject(ctx context.Context, req dto.BulkDecisionRequest, actor string) (*dto.BulkDecisionResult, error)
}

// ApprovalSvcFacade combines all approval service interfaces.
type ApprovalSvcFacade interface {
	ApprovalReaderSvc
	ApprovalWriterSvc
}
