package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Domain event types published to notification/audit collaborators.
const (
	EventTransactionCreated          = "transaction.created"
	EventTransactionCustomerVerified = "transaction.customer_verified"
	EventTransactionApproved         = "transaction.approved"
	EventTransactionRejected         = "transaction.rejected"
	EventTransactionCompleted        = "transaction.completed"
	EventTransactionFailed           = "transaction.failed"
	EventTransactionCancelled        = "transaction.cancelled"
	EventTransactionReversed         = "transaction.reversed"

	EventWorkflowCreated   = "approval.workflow_created"
	EventWorkflowAssigned  = "approval.assigned"
	EventWorkflowEscalated = "approval.escalated"
	EventWorkflowApproved  = "approval.approved"
	EventWorkflowRejected  = "approval.rejected"
)

// DomainEvent is the payload carried by every outbound event.
type DomainEvent struct {
	EventType   string          `json:"eventType"`
	EntityID    string          `json:"entityID"`
	Actor       string          `json:"actor"`
	Amount      decimal.Decimal `json:"amount"`
	FeeAmount   decimal.Decimal `json:"feeAmount"`
	Currency    string          `json:"currency,omitempty"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Detail      string          `json:"detail,omitempty"`
	AccountID   string          `json:"accountID,omitempty"`
	CustomerID  string          `json:"customerID,omitempty"`
	WorkflowID  string          `json:"workflowID,omitempty"`
}

// OutboxStatus is the delivery state of a staged event.
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "PENDING"
	OutboxPublished OutboxStatus = "PUBLISHED"
	OutboxFailed    OutboxStatus = "FAILED"
)

// OutboxEvent is a domain event staged in the same database transaction as the
// state change it describes. A dispatcher publishes it after commit, never before.
type OutboxEvent struct {
	EventID     string       `json:"eventID"`
	EventType   string       `json:"eventType"`
	AggregateID string       `json:"aggregateID"`
	Payload     []byte       `json:"payload"`
	Status      OutboxStatus `json:"status"`
	Attempts    int          `json:"attempts"`
	LastError   string       `json:"lastError,omitempty"`
	PublishedAt *time.Time   `json:"publishedAt,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}
