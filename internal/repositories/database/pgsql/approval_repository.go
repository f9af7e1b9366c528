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

const workflowColumns = `workflow_id, transaction_id, status, stage, priority,
	required_level, amount, risk_score,
	assigned_to, assigned_by, assigned_at, queue,
	sla_duration_minutes, expires_at, started_at, completed_at,
	escalated, escalation_level, escalation_reason, escalation_history,
	approval_notes, approval_conditions, rejection_reason, rejection_category, allow_resubmission,
	checklist, touches, stage_durations_ms, efficiency_score, response_time_minutes,
	created_at, created_by, last_updated_at, last_updated_by`

type PgxApprovalRepository struct {
	pool *pgxpool.Pool
}

// newPgxApprovalRepository creates a new repository for approval workflow data.
func newPgxApprovalRepository(pool *pgxpool.Pool) portsrepo.ApprovalRepositoryFacade {
	return &PgxApprovalRepository{pool: pool}
}

// Ensure PgxApprovalRepository implements portsrepo.ApprovalRepositoryFacade
var _ portsrepo.ApprovalRepositoryFacade = (*PgxApprovalRepository)(nil)

func scanWorkflow(row pgx.Row) (*domain.ApprovalWorkflow, error) {
	var w domain.ApprovalWorkflow
	err := row.Scan(
		&w.WorkflowID,
		&w.TransactionID,
		&w.Status,
		&w.Stage,
		&w.Priority,
		&w.RequiredLevel,
		&w.Amount,
		&w.RiskScore,
		&w.AssignedTo,
		&w.AssignedBy,
		&w.AssignedAt,
		&w.Queue,
		&w.SLADurationMinutes,
		&w.ExpiresAt,
		&w.StartedAt,
		&w.CompletedAt,
		&w.Escalated,
		&w.EscalationLevel,
		&w.EscalationReason,
		&w.EscalationHistory,
		&w.ApprovalNotes,
		&w.ApprovalConditions,
		&w.RejectionReason,
		&w.RejectionCategory,
		&w.AllowResubmission,
		&w.Checklist,
		&w.Touches,
		&w.StageDurationsMs,
		&w.EfficiencyScore,
		&w.ResponseTimeMinutes,
		&w.CreatedAt,
		&w.CreatedBy,
		&w.LastUpdatedAt,
		&w.LastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func workflowArgs(w domain.ApprovalWorkflow) []any {
	return []any{
		w.WorkflowID,
		w.TransactionID,
		w.Status,
		w.Stage,
		w.Priority,
		w.RequiredLevel,
		w.Amount,
		w.RiskScore,
		w.AssignedTo,
		w.AssignedBy,
		w.AssignedAt,
		w.Queue,
		w.SLADurationMinutes,
		w.ExpiresAt,
		w.StartedAt,
		w.CompletedAt,
		w.Escalated,
		w.EscalationLevel,
		w.EscalationReason,
		w.EscalationHistory,
		w.ApprovalNotes,
		w.ApprovalConditions,
		w.RejectionReason,
		w.RejectionCategory,
		w.AllowResubmission,
		w.Checklist,
		w.Touches,
		w.StageDurationsMs,
		w.EfficiencyScore,
		w.ResponseTimeMinutes,
		w.CreatedAt,
		w.CreatedBy,
		w.LastUpdatedAt,
		w.LastUpdatedBy,
	}
}

// FindWorkflowByID retrieves a workflow by its unique identifier.
func (r *PgxApprovalRepository) FindWorkflowByID(ctx context.Context, workflowID string) (*domain.ApprovalWorkflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM approval_workflows WHERE workflow_id = $1;`
	wf, err := scanWorkflow(r.pool.QueryRow(ctx, query, workflowID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find workflow by ID %s: %w", workflowID, err)
	}
	return wf, nil
}

// FindWorkflowByTransactionID retrieves the workflow linked to a transaction.
func (r *PgxApprovalRepository) FindWorkflowByTransactionID(ctx context.Context, transactionID string) (*domain.ApprovalWorkflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM approval_workflows WHERE transaction_id = $1;`
	wf, err := scanWorkflow(r.pool.QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find workflow for transaction %s: %w", transactionID, err)
	}
	return wf, nil
}

// ListQueue retrieves open workflows for a queue ordered by priority and SLA
// expiry, most urgent first.
func (r *PgxApprovalRepository) ListQueue(ctx context.Context, queue string, limit int) ([]domain.ApprovalWorkflow, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + workflowColumns + `
		FROM approval_workflows
		WHERE queue = $1 AND status IN ('PENDING', 'IN_REVIEW', 'ESCALATED')
		ORDER BY
			CASE priority
				WHEN 'CRITICAL' THEN 0
				WHEN 'URGENT' THEN 1
				WHEN 'HIGH' THEN 2
				WHEN 'NORMAL' THEN 3
				ELSE 4
			END,
			expires_at
		LIMIT $2;
	`
	rows, err := r.pool.Query(ctx, query, queue, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows for queue %s: %w", queue, err)
	}
	defer rows.Close()

	return collectWorkflows(rows)
}

// ListOverdue retrieves non-terminal workflows whose SLA expired before now.
func (r *PgxApprovalRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.ApprovalWorkflow, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + workflowColumns + `
		FROM approval_workflows
		WHERE status IN ('PENDING', 'IN_REVIEW', 'ESCALATED') AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2;
	`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue workflows: %w", err)
	}
	defer rows.Close()

	return collectWorkflows(rows)
}

func collectWorkflows(rows pgx.Rows) ([]domain.ApprovalWorkflow, error) {
	wfs := []domain.ApprovalWorkflow{}
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow row: %w", err)
		}
		wfs = append(wfs, *wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow rows: %w", err)
	}
	return wfs, nil
}

// SaveWorkflowInTx inserts a new workflow within tx. The one-workflow-per-
// transaction constraint surfaces as ErrDuplicate.
func (r *PgxApprovalRepository) SaveWorkflowInTx(ctx context.Context, tx pgx.Tx, wf domain.ApprovalWorkflow) error {
	args := workflowArgs(wf)
	query := `INSERT INTO approval_workflows (` + workflowColumns + `) VALUES (` + placeholders(len(args)) + `);`
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: workflow for transaction %s already exists", apperrors.ErrDuplicate, wf.TransactionID)
		}
		return fmt.Errorf("failed to save workflow %s: %w", wf.WorkflowID, err)
	}
	return nil
}

// UpdateWorkflowInTx rewrites a workflow's mutable fields within tx.
func (r *PgxApprovalRepository) UpdateWorkflowInTx(ctx context.Context, tx pgx.Tx, wf domain.ApprovalWorkflow) error {
	query := `
		UPDATE approval_workflows
		SET status = $2, stage = $3, priority = $4, required_level = $5,
			assigned_to = $6, assigned_by = $7, assigned_at = $8, queue = $9,
			sla_duration_minutes = $10, expires_at = $11, started_at = $12, completed_at = $13,
			escalated = $14, escalation_level = $15, escalation_reason = $16, escalation_history = $17,
			approval_notes = $18, approval_conditions = $19, rejection_reason = $20, rejection_category = $21, allow_resubmission = $22,
			checklist = $23, touches = $24, stage_durations_ms = $25, efficiency_score = $26, response_time_minutes = $27,
			last_updated_at = $28, last_updated_by = $29
		WHERE workflow_id = $1;
	`
	cmdTag, err := tx.Exec(ctx, query,
		wf.WorkflowID,
		wf.Status,
		wf.Stage,
		wf.Priority,
		wf.RequiredLevel,
		wf.AssignedTo,
		wf.AssignedBy,
		wf.AssignedAt,
		wf.Queue,
		wf.SLADurationMinutes,
		wf.ExpiresAt,
		wf.StartedAt,
		wf.CompletedAt,
		wf.Escalated,
		wf.EscalationLevel,
		wf.EscalationReason,
		wf.EscalationHistory,
		wf.ApprovalNotes,
		wf.ApprovalConditions,
		wf.RejectionReason,
		wf.RejectionCategory,
		wf.AllowResubmission,
		wf.Checklist,
		wf.Touches,
		wf.StageDurationsMs,
		wf.EfficiencyScore,
		wf.ResponseTimeMinutes,
		wf.LastUpdatedAt,
		wf.LastUpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow %s: %w", wf.WorkflowID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: workflow %s not found during update", apperrors.ErrNotFound, wf.WorkflowID)
	}
	return nil
}

// FindWorkflowForUpdate selects the workflow row and locks it within tx.
func (r *PgxApprovalRepository) FindWorkflowForUpdate(ctx context.Context, tx pgx.Tx, workflowID string) (*domain.ApprovalWorkflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM approval_workflows WHERE workflow_id = $1 FOR UPDATE;`
	wf, err := scanWorkflow(tx.QueryRow(ctx, query, workflowID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock workflow %s: %w", workflowID, err)
	}
	return wf, nil
}

// FindWorkflowByTransactionForUpdate selects the workflow linked to a
// transaction and locks it within tx.
func (r *PgxApprovalRepository) FindWorkflowByTransactionForUpdate(ctx context.Context, tx pgx.Tx, transactionID string) (*domain.ApprovalWorkflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM approval_workflows WHERE transaction_id = $1 FOR UPDATE;`
	wf, err := scanWorkflow(tx.QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock workflow for transaction %s: %w", transactionID, err)
	}
	return wf, nil
}
