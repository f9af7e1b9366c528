package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"github.com/primebank/agent_banking_core/internal/apperrors"
	"github.com/primebank/agent_banking_core/internal/core/domain"
	portsrepo "github.com/primebank/agent_banking_core/internal/core/ports/repositories"
	portssvc "github.com/primebank/agent_banking_core/internal/core/ports/services"
	"github.com/primebank/agent_banking_core/internal/dto"
	"github.com/primebank/agent_banking_core/internal/middleware"
)

// Workflow priority thresholds on amount and risk score.
var (
	wfHighAmount   = decimal.NewFromInt(5000)
	wfNormalAmount = decimal.NewFromInt(2000)
	wfTightAmount  = decimal.NewFromInt(10000)
)

const (
	wfHighRiskScore    = 80
	wfNormalRiskScore  = 60
	checklistRiskScore = 50
)

// approvalService drives the human-review workflow state machine.
type approvalService struct {
	txManager    portsrepo.TransactionManager
	approvalRepo portsrepo.ApprovalRepositoryFacade
	txnRepo      portsrepo.TransactionRepositoryFacade
	accountRepo  portsrepo.AccountRepositoryFacade
	outboxRepo   portsrepo.OutboxRepositoryFacade
	authority    portssvc.AuthorityResolver
	cache        portssvc.SnapshotCache
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	txManager portsrepo.TransactionManager,
	approvalRepo portsrepo.ApprovalRepositoryFacade,
	txnRepo portsrepo.TransactionRepositoryFacade,
	accountRepo portsrepo.AccountRepositoryFacade,
	outboxRepo portsrepo.OutboxRepositoryFacade,
	authority portssvc.AuthorityResolver,
	cache portssvc.SnapshotCache,
) portssvc.ApprovalSvcFacade {
	return &approvalService{
		txManager:    txManager,
		approvalRepo: approvalRepo,
		txnRepo:      txnRepo,
		accountRepo:  accountRepo,
		outboxRepo:   outboxRepo,
		authority:    authority,
		cache:        cache,
	}
}

var _ portssvc.ApprovalSvcFacade = (*approvalService)(nil)

// buildWorkflow derives a new workflow from a transaction and its risk
// assessment: priority from amount, risk and transaction priority; SLA from
// priority with amount and risk caps; stage and queue from the required
// approval level; checklist seeded by amount and risk tiers. A hard-block
// assessment lands directly in the admin queue, already escalated.
func buildWorkflow(txn *domain.Transaction, assessment dto.RiskAssessment, now time.Time) domain.ApprovalWorkflow {
	priority := domain.WfPriorityLow
	switch {
	case assessment.RequiresEscalation:
		priority = domain.WfPriorityCritical
	case txn.Priority == domain.PriorityUrgent:
		priority = domain.WfPriorityUrgent
	case txn.Amount.GreaterThanOrEqual(wfHighAmount) || assessment.RiskScore >= wfHighRiskScore:
		priority = domain.WfPriorityHigh
	case txn.Amount.GreaterThanOrEqual(wfNormalAmount) || assessment.RiskScore >= wfNormalRiskScore:
		priority = domain.WfPriorityNormal
	}

	sla := priority.SLAMinutes()
	if txn.Amount.GreaterThanOrEqual(wfTightAmount) {
		sla = minInt(sla, 30)
	} else if txn.Amount.GreaterThanOrEqual(wfHighAmount) {
		sla = minInt(sla, 45)
	}
	if assessment.RiskScore >= wfHighRiskScore {
		sla = minInt(sla, 30)
	}

	stage, queue := stageForLevel(assessment.ApprovalLevel)

	wf := domain.ApprovalWorkflow{
		WorkflowID:         uuid.NewString(),
		TransactionID:      txn.TransactionID,
		Status:             domain.WfPending,
		Stage:              stage,
		Priority:           priority,
		RequiredLevel:      assessment.ApprovalLevel,
		Amount:             txn.Amount,
		RiskScore:          assessment.RiskScore,
		Queue:              queue,
		SLADurationMinutes: sla,
		ExpiresAt:          now.Add(time.Duration(sla) * time.Minute),
		Checklist:          buildChecklist(txn.Amount, assessment.RiskScore),
		StageDurationsMs:   map[string]int64{},
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     SystemActor,
			LastUpdatedAt: now,
			LastUpdatedBy: SystemActor,
		},
	}

	if assessment.RequiresEscalation {
		wf.Stage = domain.StageAdminReview
		wf.Queue = domain.QueueAdmin
		wf.RequiredLevel = domain.ApprovalLevelAdmin
		wf.Escalated = true
		wf.EscalationLevel = 1
		wf.EscalationReason = "risk score mandates escalation"
		wf.EscalationHistory = append(wf.EscalationHistory, domain.EscalationRecord{
			Level:     1,
			Reason:    wf.EscalationReason,
			Actor:     SystemActor,
			FromStage: stage,
			ToStage:   domain.StageAdminReview,
			At:        now,
		})
	}
	return wf
}

func stageForLevel(level domain.ApprovalLevel) (domain.WorkflowStage, string) {
	switch level {
	case domain.ApprovalLevelAdmin:
		return domain.StageAdminReview, domain.QueueAdmin
	case domain.ApprovalLevelManager:
		return domain.StageManagerReview, domain.QueueManager
	default:
		return domain.StageInitialReview, domain.QueueClerk
	}
}

func buildChecklist(amount decimal.Decimal, riskScore int) []domain.ChecklistItem {
	items := []domain.ChecklistItem{
		{Item: "identity_verified", Required: true},
		{Item: "balance_sufficiency", Required: true},
		{Item: "purpose_documented", Required: true},
	}
	if riskScore >= checklistRiskScore {
		items = append(items, domain.ChecklistItem{Item: "enhanced_due_diligence", Required: true})
	}
	if amount.GreaterThanOrEqual(wfNormalAmount) {
		items = append(items, domain.ChecklistItem{Item: "limit_compliance", Required: true})
	}
	if amount.GreaterThanOrEqual(wfHighAmount) {
		items = append(items, domain.ChecklistItem{Item: "aml_screening", Required: true})
	}
	return items
}

// GetWorkflow retrieves a workflow by ID.
func (s *approvalService) GetWorkflow(ctx context.Context, workflowID string) (*domain.ApprovalWorkflow, error) {
	return s.approvalRepo.FindWorkflowByID(ctx, workflowID)
}

// GetWorkflowForTransaction retrieves the workflow linked to a transaction.
func (s *approvalService) GetWorkflowForTransaction(ctx context.Context, transactionID string) (*domain.ApprovalWorkflow, error) {
	return s.approvalRepo.FindWorkflowByTransactionID(ctx, transactionID)
}

// ListQueue retrieves open workflows for a queue, most urgent first.
func (s *approvalService) ListQueue(ctx context.Context, queue string, limit int) ([]domain.ApprovalWorkflow, error) {
	switch queue {
	case domain.QueueClerk, domain.QueueManager, domain.QueueAdmin:
	default:
		return nil, fmt.Errorf("%w: unknown queue %q", apperrors.ErrValidation, queue)
	}
	if limit <= 0 {
		limit = 50
	}
	return s.approvalRepo.ListQueue(ctx, queue, limit)
}

// Assign assigns an unassigned workflow to a reviewer. Fails on a workflow
// that already carries an assignment; use Reassign to move it.
func (s *approvalService) Assign(ctx context.Context, workflowID string, req dto.AssignWorkflowRequest, assigner string) (*domain.ApprovalWorkflow, error) {
	return s.assign(ctx, workflowID, req.Assignee, assigner, false)
}

// Reassign moves a non-terminal workflow to a new reviewer, resetting AssignedAt.
func (s *approvalService) Reassign(ctx context.Context, workflowID string, req dto.AssignWorkflowRequest, assigner string) (*domain.ApprovalWorkflow, error) {
	return s.assign(ctx, workflowID, req.Assignee, assigner, true)
}

func (s *approvalService) assign(ctx context.Context, workflowID, assignee, assigner string, reassign bool) (*domain.ApprovalWorkflow, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	if assignee == "" {
		return nil, fmt.Errorf("%w: assignee is required", apperrors.ErrValidation)
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.txManager.Rollback(ctx, tx)

	wf, err := s.approvalRepo.FindWorkflowForUpdate(ctx, tx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: workflow is %s", apperrors.ErrInvalidState, wf.Status)
	}
	if !reassign && wf.AssignedTo != "" {
		return nil, fmt.Errorf("%w: workflow already assigned to %s", apperrors.ErrConflict, wf.AssignedTo)
	}

	now := time.Now().UTC()
	wf.AssignedTo = assignee
	wf.AssignedBy = assigner
	assignedAt := now
	wf.AssignedAt = &assignedAt
	wf.Touches++
	wf.LastUpdatedAt = now
	wf.LastUpdatedBy = assigner

	if err := s.approvalRepo.UpdateWorkflowInTx(ctx, tx, *wf); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}
	if err := s.stageEvent(ctx, tx, domain.DomainEvent{
		EventType:  domain.EventWorkflowAssigned,
		EntityID:   wf.WorkflowID,
		Actor:      assigner,
		Amount:     wf.Amount,
		OccurredAt: now,
		Detail:     assignee,
		WorkflowID: wf.WorkflowID,
	}); err != nil {
		return nil, err
	}
	if err := s.txManager.Commit(ctx, tx); err != nil {
		return nil, err
	}

	logger.Info("Workflow assigned",
		slog.String("workflow_id", wf.WorkflowID),
		slog.String("assignee", assignee),
		slog.Bool("reassigned", reassign),
	)
	return wf, nil
}

// StartReview moves an assigned workflow into review. Escalated workflows
// re-enter review the same way after reassignment.
func (s *approvalService) StartReview(ctx context.Context, workflowID string, reviewer string) (*domain.ApprovalWorkflow, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.txManager.Rollback(ctx, tx)

	wf, err := s.approvalRepo.FindWorkflowForUpdate(ctx, tx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.Status != domain.WfPending && wf.Status != domain.WfEscalated {
		return nil, fmt.Errorf("%w: workflow is %s, expected PENDING or ESCALATED", apperrors.ErrInvalidState, wf.Status)
	}
	if wf.AssignedTo == "" {
		return nil, fmt.Errorf("%w: workflow is unassigned", apperrors.ErrInvalidState)
	}
	if wf.AssignedTo != reviewer {
		return nil, fmt.Errorf("%w: workflow is assigned to %s", apperrors.ErrConflict, wf.AssignedTo)
	}

	now := time.Now().UTC()
	wf.Status = domain.WfInReview
	startedAt := now
	wf.StartedAt = &startedAt
	wf.Touches++
	wf.LastUpdatedAt = now
	wf.LastUpdatedBy = reviewer

	if err := s.approvalRepo.UpdateWorkflowInTx(ctx, tx, *wf); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}
	if err := s.txManager.Commit(ctx, tx); err != nil {
		return nil, err
	}

	logger.Info("Workflow review started", slog.String("workflow_id", wf.WorkflowID), slog.String("reviewer", reviewer))
	return wf, nil
}

// Approve approves an in-review workflow and moves the linked transaction to
// APPROVED in the same unit of work. The required checklist must be complete.
// Override bypasses the authority check only, never the state or checklist checks.
func (s *approvalService) Approve(ctx context.Context, workflowID string, req dto.ApproveWorkflowRequest, actor string) (*domain.ApprovalWorkflow, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.txManager.Rollback(ctx, tx)

	wf, err := s.approvalRepo.FindWorkflowForUpdate(ctx, tx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.Status != domain.WfInReview {
		return nil, fmt.Errorf("%w: workflow is %s, expected IN_REVIEW", apperrors.ErrInvalidState, wf.Status)
	}
	if !wf.RequiredChecklistComplete() {
		return nil, fmt.Errorf("%w: required checklist items are incomplete", apperrors.ErrInvalidState)
	}
	if !req.Override {
		level, err := s.authority.LevelFor(ctx, actor)
		if err != nil {
			return nil, err
		}
		if level.Rank() < wf.RequiredLevel.Rank() {
			return nil, fmt.Errorf("%w: %s required, actor holds %s", apperrors.ErrAuthority, wf.RequiredLevel, level)
		}
	}

	now := time.Now().UTC()
	wf.Status = domain.WfApproved
	completedAt := now
	wf.CompletedAt = &completedAt
	wf.ApprovalNotes = req.Notes
	wf.ApprovalConditions = req.Conditions
	wf.Touches++
	s.recordStageDuration(wf, now)
	wf.ResponseTimeMinutes = int(now.Sub(wf.CreatedAt).Minutes())
	wf.EfficiencyScore = efficiencyScore(wf, now)
	wf.LastUpdatedAt = now
	wf.LastUpdatedBy = actor

	txn, err := s.txnRepo.FindTransactionForUpdate(ctx, tx, wf.TransactionID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to lock linked transaction: %w", err)
	}
	if txn.Status != domain.TxnPending {
		return nil, fmt.Errorf("%w: linked transaction is %s, expected PENDING", apperrors.ErrInvalidState, txn.Status)
	}
	applyTransactionApproval(txn, actor, req.Notes, now)

	if err := s.approvalRepo.UpdateWorkflowInTx(ctx, tx, *wf); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}
	if err := s.txnRepo.UpdateTransactionInTx(ctx, tx, *txn); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	if err := s.stageEvent(ctx, tx, domain.DomainEvent{
		EventType:  domain.EventWorkflowApproved,
		EntityID:   wf.WorkflowID,
		Actor:      actor,
		Amount:     wf.Amount,
		OccurredAt: now,
		WorkflowID: wf.WorkflowID,
		AccountID:  txn.AccountID,
	}); err != nil {
		return nil, err
	}
	if err := s.txManager.Commit(ctx, tx); err != nil {
		return nil, err
	}

	s.invalidateTxn(ctx, txn)

	logger.Info("Workflow approved",
		slog.String("workflow_id", wf.WorkflowID),
		slog.String("transaction_id", wf.TransactionID),
		slog.Int("efficiency_score", wf.EfficiencyScore),
	)
	return wf, nil
}

// Reject rejects an in-review workflow, propagates the rejection to the
// linked transaction and releases its hold in the same unit of work.
func (s *approvalService) Reject(ctx context.Context, workflowID string, req dto.RejectWorkflowRequest, actor string) (*domain.ApprovalWorkflow, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	if req.Reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", apperrors.ErrValidation)
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.txManager.Rollback(ctx, tx)

	wf, err := s.approvalRepo.FindWorkflowForUpdate(ctx, tx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.Status != domain.WfInReview {
		return nil, fmt.Errorf("%w: workflow is %s, expected IN_REVIEW", apperrors.ErrInvalidState, wf.Status)
	}
	if !req.Override {
		level, err := s.authority.LevelFor(ctx, actor)
		if err != nil {
			return nil, err
		}
		if level.Rank() < wf.RequiredLevel.Rank() {
			return nil, fmt.Errorf("%w: %s required, actor holds %s", apperrors.ErrAuthority, wf.RequiredLevel, level)
		}
	}

	now := time.Now().UTC()
	wf.Status = domain.WfRejected
	completedAt := now
	wf.CompletedAt = &completedAt
	wf.RejectionReason = req.Reason
	wf.RejectionCategory = req.Category
	wf.AllowResubmission = req.AllowResubmission
	wf.Touches++
	s.recordStageDuration(wf, now)
	wf.ResponseTimeMinutes = int(now.Sub(wf.CreatedAt).Minutes())
	wf.EfficiencyScore = efficiencyScore(wf, now)
	wf.LastUpdatedAt = now
	wf.LastUpdatedBy = actor

	txn, err := s.txnRepo.FindTransactionForUpdate(ctx, tx, wf.TransactionID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to lock linked transaction: %w", err)
	}
	if txn.Status != domain.TxnPending {
		return nil, fmt.Errorf("%w: linked transaction is %s, expected PENDING", apperrors.ErrInvalidState, txn.Status)
	}
	applyTransactionRejection(txn, actor, req.Reason, now)

	if txn.HasActiveHold() {
		account, err := s.accountRepo.FindAccountForUpdate(ctx, tx, txn.AccountID, true)
		if err != nil {
			return nil, fmt.Errorf("failed to lock account %s: %w", txn.AccountID, err)
		}
		applyHoldRelease(account, txn)
		txn.AppendAudit("hold_released", actor, now, nil)
		if err := s.accountRepo.UpdateAccountBalancesInTx(ctx, tx, *account); err != nil {
			return nil, fmt.Errorf("failed to update account balances: %w", err)
		}
	}

	if err := s.approvalRepo.UpdateWorkflowInTx(ctx, tx, *wf); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}
	if err := s.txnRepo.UpdateTransactionInTx(ctx, tx, *txn); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	if err := s.stageEvent(ctx, tx, domain.DomainEvent{
		EventType:  domain.EventWorkflowRejected,
		EntityID:   wf.WorkflowID,
		Actor:      actor,
		Amount:     wf.Amount,
		OccurredAt: now,
		Detail:     req.Reason,
		WorkflowID: wf.WorkflowID,
		AccountID:  txn.AccountID,
	}); err != nil {
		return nil, err
	}
	if err := s.txManager.Commit(ctx, tx); err != nil {
		return nil, err
	}

	s.invalidateTxn(ctx, txn)

	logger.Info("Workflow rejected",
		slog.String("workflow_id", wf.WorkflowID),
		slog.String("transaction_id", wf.TransactionID),
		slog.String("reason", req.Reason),
	)
	return wf, nil
}

// Escalate moves the workflow one queue up the hierarchy, clearing the
// assignment and opening a fresh SLA window. The admin queue is the top:
// escalating from it is refused.
func (s *approvalService) Escalate(ctx context.Context, workflowID string, req dto.EscalateWorkflowRequest, actor string) (*domain.ApprovalWorkflow, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	if req.Reason == "" {
		return nil, fmt.Errorf("%w: escalation reason is required", apperrors.ErrValidation)
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.txManager.Rollback(ctx, tx)

	wf, err := s.approvalRepo.FindWorkflowForUpdate(ctx, tx, workflowID)
	if err != nil {
		return nil, err
	}
	if err := s.escalateLocked(ctx, tx, wf, req.Reason, actor); err != nil {
		return nil, err
	}
	if err := s.txManager.Commit(ctx, tx); err != nil {
		return nil, err
	}

	logger.Info("Workflow escalated",
		slog.String("workflow_id", wf.WorkflowID),
		slog.String("queue", wf.Queue),
		slog.Int("escalation_level", wf.EscalationLevel),
	)
	return wf, nil
}

func (s *approvalService) escalateLocked(ctx context.Context, tx pgx.Tx, wf *domain.ApprovalWorkflow, reason, actor string) error {
	if wf.Status.IsTerminal() {
		return fmt.Errorf("%w: workflow is %s", apperrors.ErrInvalidState, wf.Status)
	}
	if wf.Queue == domain.QueueAdmin {
		return fmt.Errorf("%w: workflow is already at the highest authority", apperrors.ErrInvalidState)
	}
	if wf.EscalationLevel >= domain.MaxEscalationLevel {
		return fmt.Errorf("%w: escalation level %d reached", apperrors.ErrInvalidState, wf.EscalationLevel)
	}

	now := time.Now().UTC()
	fromStage := wf.Stage

	s.recordStageDuration(wf, now)

	if wf.Queue == domain.QueueClerk {
		wf.Queue = domain.QueueManager
		wf.Stage = domain.StageManagerReview
		wf.RequiredLevel = domain.ApprovalLevelManager
	} else {
		wf.Queue = domain.QueueAdmin
		wf.Stage = domain.StageAdminReview
		wf.RequiredLevel = domain.ApprovalLevelAdmin
	}

	wf.Status = domain.WfEscalated
	wf.Escalated = true
	wf.EscalationLevel++
	wf.EscalationReason = reason
	wf.EscalationHistory = append(wf.EscalationHistory, domain.EscalationRecord{
		Level:     wf.EscalationLevel,
		Reason:    reason,
		Actor:     actor,
		FromStage: fromStage,
		ToStage:   wf.Stage,
		At:        now,
	})
	wf.AssignedTo = ""
	wf.AssignedBy = ""
	wf.AssignedAt = nil
	wf.StartedAt = nil
	wf.ExpiresAt = now.Add(time.Duration(wf.SLADurationMinutes) * time.Minute)
	wf.Touches++
	wf.LastUpdatedAt = now
	wf.LastUpdatedBy = actor

	if err := s.approvalRepo.UpdateWorkflowInTx(ctx, tx, *wf); err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	return s.stageEvent(ctx, tx, domain.DomainEvent{
		EventType:  domain.EventWorkflowEscalated,
		EntityID:   wf.WorkflowID,
		Actor:      actor,
		Amount:     wf.Amount,
		OccurredAt: now,
		Detail:     reason,
		WorkflowID: wf.WorkflowID,
	})
}

// CompleteChecklistItem marks one checklist item done. Completing an already
// completed item is a no-op.
func (s *approvalService) CompleteChecklistItem(ctx context.Context, workflowID string, req dto.CompleteChecklistItemRequest, actor string) (*domain.ApprovalWorkflow, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.txManager.Rollback(ctx, tx)

	wf, err := s.approvalRepo.FindWorkflowForUpdate(ctx, tx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: workflow is %s", apperrors.ErrInvalidState, wf.Status)
	}

	now := time.Now().UTC()
	found := false
	for i := range wf.Checklist {
		if wf.Checklist[i].Item != req.Item {
			continue
		}
		found = true
		if wf.Checklist[i].Completed {
			return wf, nil
		}
		wf.Checklist[i].Completed = true
		wf.Checklist[i].CompletedBy = actor
		completedAt := now
		wf.Checklist[i].CompletedAt = &completedAt
	}
	if !found {
		return nil, fmt.Errorf("%w: checklist item %q", apperrors.ErrNotFound, req.Item)
	}

	wf.Touches++
	wf.LastUpdatedAt = now
	wf.LastUpdatedBy = actor

	if err := s.approvalRepo.UpdateWorkflowInTx(ctx, tx, *wf); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}
	if err := s.txManager.Commit(ctx, tx); err != nil {
		return nil, err
	}

	logger.Info("Checklist item completed",
		slog.String("workflow_id", wf.WorkflowID),
		slog.String("item", req.Item),
	)
	return wf, nil
}

// AutoEscalateOverdue escalates workflows whose SLA expired. Workflows already
// in the admin queue cannot go higher; on the first breach their priority is
// raised to CRITICAL and the SLA window reopened so they surface at the top of
// the queue. A CRITICAL admin-queue workflow that breaches the reopened window
// too is expired, and its transaction cancelled with the hold released.
func (s *approvalService) AutoEscalateOverdue(ctx context.Context, limit int) (int, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	if limit <= 0 {
		limit = 100
	}
	overdue, err := s.approvalRepo.ListOverdue(ctx, time.Now().UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list overdue workflows: %w", err)
	}

	escalated := 0
	for i := range overdue {
		if err := s.autoEscalateOne(ctx, overdue[i].WorkflowID); err != nil {
			logger.Error("Failed to auto-escalate workflow",
				slog.String("workflow_id", overdue[i].WorkflowID),
				slog.String("error", err.Error()),
			)
			continue
		}
		escalated++
	}
	if escalated > 0 {
		logger.Info("Overdue workflows escalated", slog.Int("count", escalated))
	}
	return escalated, nil
}

func (s *approvalService) autoEscalateOne(ctx context.Context, workflowID string) error {
	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	defer s.txManager.Rollback(ctx, tx)

	wf, err := s.approvalRepo.FindWorkflowForUpdate(ctx, tx, workflowID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if !wf.IsOverdue(now) {
		return nil
	}

	switch {
	case wf.Queue == domain.QueueAdmin && wf.Priority == domain.WfPriorityCritical:
		txn, err := s.expireLocked(ctx, tx, wf, now)
		if err != nil {
			return err
		}
		if err := s.txManager.Commit(ctx, tx); err != nil {
			return err
		}
		s.invalidateTxn(ctx, txn)
		return nil
	case wf.Queue == domain.QueueAdmin:
		wf.Priority = domain.WfPriorityCritical
		wf.ExpiresAt = now.Add(time.Duration(wf.SLADurationMinutes) * time.Minute)
		wf.LastUpdatedAt = now
		wf.LastUpdatedBy = SystemActor
		if err := s.approvalRepo.UpdateWorkflowInTx(ctx, tx, *wf); err != nil {
			return err
		}
	default:
		if err := s.escalateLocked(ctx, tx, wf, "sla breached", SystemActor); err != nil {
			return err
		}
	}

	return s.txManager.Commit(ctx, tx)
}

// expireLocked closes out a workflow nobody decided in time. The linked
// transaction is cancelled and its hold released in the same unit of work, so
// the two records reach their terminal states together.
func (s *approvalService) expireLocked(ctx context.Context, tx pgx.Tx, wf *domain.ApprovalWorkflow, now time.Time) (*domain.Transaction, error) {
	wf.Status = domain.WfExpired
	completedAt := now
	wf.CompletedAt = &completedAt
	wf.ResponseTimeMinutes = int(now.Sub(wf.CreatedAt).Minutes())
	wf.EfficiencyScore = efficiencyScore(wf, now)
	wf.LastUpdatedAt = now
	wf.LastUpdatedBy = SystemActor

	txn, err := s.txnRepo.FindTransactionForUpdate(ctx, tx, wf.TransactionID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to lock linked transaction: %w", err)
	}
	if txn.Status == domain.TxnPending {
		txn.Status = domain.TxnCancelled
		txn.LastUpdatedAt = now
		txn.LastUpdatedBy = SystemActor
		txn.AppendAudit("cancelled", SystemActor, now, map[string]string{"reason": "approval window expired"})

		if txn.HasActiveHold() {
			account, err := s.accountRepo.FindAccountForUpdate(ctx, tx, txn.AccountID, true)
			if err != nil {
				return nil, fmt.Errorf("failed to lock account %s: %w", txn.AccountID, err)
			}
			applyHoldRelease(account, txn)
			txn.AppendAudit("hold_released", SystemActor, now, nil)
			if err := s.accountRepo.UpdateAccountBalancesInTx(ctx, tx, *account); err != nil {
				return nil, fmt.Errorf("failed to update account balances: %w", err)
			}
		}
		if err := s.txnRepo.UpdateTransactionInTx(ctx, tx, *txn); err != nil {
			return nil, fmt.Errorf("failed to update transaction: %w", err)
		}
		if err := s.stageEvent(ctx, tx, domain.DomainEvent{
			EventType:  domain.EventTransactionCancelled,
			EntityID:   txn.TransactionID,
			Actor:      SystemActor,
			Amount:     txn.Amount,
			OccurredAt: now,
			Detail:     "approval window expired",
			AccountID:  txn.AccountID,
		}); err != nil {
			return nil, err
		}
	}

	if err := s.approvalRepo.UpdateWorkflowInTx(ctx, tx, *wf); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}
	return txn, nil
}

// BulkApprove applies Approve per workflow independently with bounded
// concurrency. One item's failure never blocks the others.
func (s *approvalService) BulkApprove(ctx context.Context, req dto.BulkDecisionRequest, actor string) (*dto.BulkDecisionResult, error) {
	return s.bulk(ctx, req.WorkflowIDs, func(ctx context.Context, workflowID string) error {
		_, err := s.Approve(ctx, workflowID, dto.ApproveWorkflowRequest{Notes: req.Notes}, actor)
		return err
	})
}

// BulkReject applies Reject per workflow independently.
func (s *approvalService) BulkReject(ctx context.Context, req dto.BulkDecisionRequest, actor string) (*dto.BulkDecisionResult, error) {
	if req.Reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", apperrors.ErrValidation)
	}
	return s.bulk(ctx, req.WorkflowIDs, func(ctx context.Context, workflowID string) error {
		_, err := s.Reject(ctx, workflowID, dto.RejectWorkflowRequest{Reason: req.Reason, AllowResubmission: true}, actor)
		return err
	})
}

func (s *approvalService) bulk(ctx context.Context, workflowIDs []string, apply func(context.Context, string) error) (*dto.BulkDecisionResult, error) {
	if len(workflowIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one workflow is required", apperrors.ErrValidation)
	}

	sem := semaphore.NewWeighted(BatchConcurrency)
	items := make([]dto.BulkItemResult, len(workflowIDs))
	var wg sync.WaitGroup
	for i, id := range workflowIDs {
		if err := sem.Acquire(ctx, 1); err != nil {
			items[i] = dto.BulkItemResult{WorkflowID: id, Error: err.Error()}
			continue
		}
		wg.Add(1)
		go func(i int, workflowID string) {
			defer wg.Done()
			defer sem.Release(1)
			if err := apply(ctx, workflowID); err != nil {
				items[i] = dto.BulkItemResult{WorkflowID: workflowID, Error: err.Error()}
				return
			}
			items[i] = dto.BulkItemResult{WorkflowID: workflowID, Success: true}
		}(i, id)
	}
	wg.Wait()

	result := &dto.BulkDecisionResult{Items: items}
	for _, item := range items {
		if item.Success {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	result.SuccessRate = float64(result.Succeeded) / float64(len(items))
	return result, nil
}

// recordStageDuration closes out the current stage's elapsed time, measured
// from review start, assignment or creation, whichever happened last.
func (s *approvalService) recordStageDuration(wf *domain.ApprovalWorkflow, now time.Time) {
	since := wf.CreatedAt
	if wf.AssignedAt != nil && wf.AssignedAt.After(since) {
		since = *wf.AssignedAt
	}
	if wf.StartedAt != nil && wf.StartedAt.After(since) {
		since = *wf.StartedAt
	}
	if wf.StageDurationsMs == nil {
		wf.StageDurationsMs = map[string]int64{}
	}
	wf.StageDurationsMs[string(wf.Stage)] += now.Sub(since).Milliseconds()
}

// efficiencyScore grades a resolved workflow: SLA breach costs 30, each
// escalation level 10, and every touch past the fifth 2. Clamped to 0..100.
func efficiencyScore(wf *domain.ApprovalWorkflow, resolvedAt time.Time) int {
	score := 100
	if !resolvedAt.Before(wf.ExpiresAt) {
		score -= 30
	}
	score -= 10 * wf.EscalationLevel
	if wf.Touches > 5 {
		score -= 2 * (wf.Touches - 5)
	}
	if score < 0 {
		score = 0
	}
	return score
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (s *approvalService) stageEvent(ctx context.Context, tx pgx.Tx, event domain.DomainEvent) error {
	outboxEvent, err := newOutboxEvent(event)
	if err != nil {
		return err
	}
	if err := s.outboxRepo.StageEventInTx(ctx, tx, outboxEvent); err != nil {
		return fmt.Errorf("failed to stage %s event: %w", event.EventType, err)
	}
	return nil
}

func (s *approvalService) invalidateTxn(ctx context.Context, txn *domain.Transaction) {
	if s.cache == nil {
		return
	}
	s.cache.InvalidateTransaction(ctx, txn.TransactionID)
	s.cache.InvalidateAccount(ctx, txn.AccountID)
}
