package dto

import (
	"time"

	"github.com/primebank/agent_banking_core/internal/core/domain"
)

// AssignWorkflowRequest assigns a workflow to a reviewer.
type AssignWorkflowRequest struct {
	Assignee string `json:"assignee" binding:"required"`
}

// ApproveWorkflowRequest carries a workflow approval decision.
type ApproveWorkflowRequest struct {
	Notes      string   `json:"notes"`
	Conditions []string `json:"conditions"`
	Override   bool     `json:"override"` // Bypasses the authority check only, never the state check
}

// RejectWorkflowRequest carries a workflow rejection decision.
type RejectWorkflowRequest struct {
	Reason            string `json:"reason" binding:"required"`
	Category          string `json:"category"`
	AllowResubmission bool   `json:"allowResubmission"`
	Override          bool   `json:"override"`
}

// EscalateWorkflowRequest escalates a workflow one level up the hierarchy.
type EscalateWorkflowRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// CompleteChecklistItemRequest marks one checklist item done.
type CompleteChecklistItemRequest struct {
	Item string `json:"item" binding:"required"`
}

// BulkDecisionRequest applies one decision to many workflows independently.
type BulkDecisionRequest struct {
	WorkflowIDs []string `json:"workflowIDs" binding:"required,min=1"`
	Notes       string   `json:"notes"`
	Reason      string   `json:"reason"`
}

// BulkItemResult reports one workflow's outcome within a bulk operation.
type BulkItemResult struct {
	WorkflowID string `json:"workflowID"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// BulkDecisionResult aggregates a bulk operation. One item's failure never
// blocks the others.
type BulkDecisionResult struct {
	Items       []BulkItemResult `json:"items"`
	Succeeded   int              `json:"succeeded"`
	Failed      int              `json:"failed"`
	SuccessRate float64          `json:"successRate"`
}

// WorkflowResponse is the outbound representation of an approval workflow.
type WorkflowResponse struct {
	WorkflowID      string                  `json:"workflowID"`
	TransactionID   string                  `json:"transactionID"`
	Status          domain.WorkflowStatus   `json:"status"`
	Stage           domain.WorkflowStage    `json:"stage"`
	Priority        domain.WorkflowPriority `json:"priority"`
	Queue           string                  `json:"queue"`
	AssignedTo      string                  `json:"assignedTo,omitempty"`
	ExpiresAt       time.Time               `json:"expiresAt"`
	EscalationLevel int                     `json:"escalationLevel"`
	IsWithinSLA     bool                    `json:"isWithinSLA"`
	IsOverdue       bool                    `json:"isOverdue"`
	UrgencyLevel    int                     `json:"urgencyLevel"`
	Checklist       []domain.ChecklistItem  `json:"checklist"`
	EfficiencyScore int                     `json:"efficiencyScore"`
}

// ToWorkflowResponse maps a domain workflow to its response shape.
func ToWorkflowResponse(w *domain.ApprovalWorkflow, now time.Time) WorkflowResponse {
	return WorkflowResponse{
		WorkflowID:      w.WorkflowID,
		TransactionID:   w.TransactionID,
		Status:          w.Status,
		Stage:           w.Stage,
		Priority:        w.Priority,
		Queue:           w.Queue,
		AssignedTo:      w.AssignedTo,
		ExpiresAt:       w.ExpiresAt,
		EscalationLevel: w.EscalationLevel,
		IsWithinSLA:     w.IsWithinSLA(now),
		IsOverdue:       w.IsOverdue(now),
		UrgencyLevel:    w.UrgencyLevel(now),
		Checklist:       w.Checklist,
		EfficiencyScore: w.EfficiencyScore,
	}
}
