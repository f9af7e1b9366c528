package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WorkflowStatus is the lifecycle state of an approval workflow.
type WorkflowStatus string

const (
	WfPending   WorkflowStatus = "PENDING"
	WfInReview  WorkflowStatus = "IN_REVIEW"
	WfApproved  WorkflowStatus = "APPROVED"
	WfRejected  WorkflowStatus = "REJECTED"
	WfEscalated WorkflowStatus = "ESCALATED"
	WfExpired   WorkflowStatus = "EXPIRED"
	WfCancelled WorkflowStatus = "CANCELLED"
)

// IsTerminal reports whether the workflow has reached a final status.
// A terminal workflow must coincide with the linked transaction's terminal status.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WfApproved, WfRejected, WfExpired, WfCancelled:
		return true
	default:
		return false
	}
}

// WorkflowStage is the review stage the workflow currently sits in.
type WorkflowStage string

const (
	StageInitialReview   WorkflowStage = "INITIAL_REVIEW"
	StageRiskAssessment  WorkflowStage = "RISK_ASSESSMENT"
	StageComplianceCheck WorkflowStage = "COMPLIANCE_CHECK"
	StageManagerReview   WorkflowStage = "MANAGER_REVIEW"
	StageAdminReview     WorkflowStage = "ADMIN_REVIEW"
	StageFinalApproval   WorkflowStage = "FINAL_APPROVAL"
)

// WorkflowPriority orders workflows in the review queues.
type WorkflowPriority string

const (
	WfPriorityLow      WorkflowPriority = "LOW"
	WfPriorityNormal   WorkflowPriority = "NORMAL"
	WfPriorityHigh     WorkflowPriority = "HIGH"
	WfPriorityUrgent   WorkflowPriority = "URGENT"
	WfPriorityCritical WorkflowPriority = "CRITICAL"
)

// SLAMinutes is the allowed unresolved duration for the priority.
func (p WorkflowPriority) SLAMinutes() int {
	switch p {
	case WfPriorityCritical:
		return 15
	case WfPriorityUrgent:
		return 30
	case WfPriorityHigh:
		return 45
	case WfPriorityNormal:
		return 60
	default:
		return 120
	}
}

// Review queues, lowest authority first.
const (
	QueueClerk   = "approval-clerk"
	QueueManager = "approval-manager"
	QueueAdmin   = "approval-admin"
)

// MaxEscalationLevel caps how far a workflow can move up the hierarchy.
// Level 2 puts the workflow in the admin queue; there is no higher authority,
// so a third escalation is refused.
const MaxEscalationLevel = 3

// ChecklistItem is one ordered review task on a workflow.
type ChecklistItem struct {
	Item        string     `json:"item"`
	Required    bool       `json:"required"`
	Completed   bool       `json:"completed"`
	CompletedBy string     `json:"completedBy,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// EscalationRecord is one entry in the workflow's escalation history.
type EscalationRecord struct {
	Level     int           `json:"level"`
	Reason    string        `json:"reason"`
	Actor     string        `json:"actor"`
	FromStage WorkflowStage `json:"fromStage"`
	ToStage   WorkflowStage `json:"toStage"`
	At        time.Time     `json:"at"`
}

// ApprovalWorkflow is the one-to-one human-review record for a transaction
// requiring approval. Invariants: EscalationLevel only increases; ExpiresAt =
// CreatedAt + SLADurationMinutes (extendable); a terminal workflow status must
// coincide with the linked transaction's terminal status.
type ApprovalWorkflow struct {
	WorkflowID    string `json:"workflowID"` // Primary Key (UUID)
	TransactionID string `json:"transactionID"`

	Status   WorkflowStatus   `json:"status"`
	Stage    WorkflowStage    `json:"stage"`
	Priority WorkflowPriority `json:"priority"`

	RequiredLevel ApprovalLevel   `json:"requiredLevel"`
	Amount        decimal.Decimal `json:"amount"`
	RiskScore     int             `json:"riskScore"`

	AssignedTo string     `json:"assignedTo,omitempty"`
	AssignedBy string     `json:"assignedBy,omitempty"`
	AssignedAt *time.Time `json:"assignedAt,omitempty"`
	Queue      string     `json:"queue"`

	SLADurationMinutes int        `json:"slaDurationMinutes"`
	ExpiresAt          time.Time  `json:"expiresAt"`
	StartedAt          *time.Time `json:"startedAt,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`

	Escalated         bool               `json:"escalated"`
	EscalationLevel   int                `json:"escalationLevel"` // 0-3, only increases
	EscalationReason  string             `json:"escalationReason,omitempty"`
	EscalationHistory []EscalationRecord `json:"escalationHistory,omitempty"`

	ApprovalNotes      string   `json:"approvalNotes,omitempty"`
	ApprovalConditions []string `json:"approvalConditions,omitempty"`
	RejectionReason    string   `json:"rejectionReason,omitempty"`
	RejectionCategory  string   `json:"rejectionCategory,omitempty"`
	AllowResubmission  bool     `json:"allowResubmission"`

	Checklist []ChecklistItem `json:"checklist"`

	Touches             int             `json:"touches"`
	StageDurationsMs    map[string]int64 `json:"stageDurationsMs,omitempty"`
	EfficiencyScore     int             `json:"efficiencyScore"`
	ResponseTimeMinutes int             `json:"responseTimeMinutes"`

	AuditFields
}

// IsWithinSLA reports whether the workflow is still inside its SLA window.
// Monitoring only: state changes happen solely through explicit calls.
func (w *ApprovalWorkflow) IsWithinSLA(now time.Time) bool {
	return now.Before(w.ExpiresAt)
}

// IsOverdue reports whether an unresolved workflow has blown its SLA.
func (w *ApprovalWorkflow) IsOverdue(now time.Time) bool {
	return !w.Status.IsTerminal() && !now.Before(w.ExpiresAt)
}

// UrgencyLevel buckets remaining SLA time for queue ordering: 0 is relaxed,
// 3 means overdue.
func (w *ApprovalWorkflow) UrgencyLevel(now time.Time) int {
	remaining := w.ExpiresAt.Sub(now)
	switch {
	case remaining <= 0:
		return 3
	case remaining <= 10*time.Minute:
		return 2
	case remaining <= 30*time.Minute:
		return 1
	default:
		return 0
	}
}

// RequiredChecklistComplete reports whether every required checklist item is done.
func (w *ApprovalWorkflow) RequiredChecklistComplete() bool {
	for _, item := range w.Checklist {
		if item.Required && !item.Completed {
			return false
		}
	}
	return true
}
