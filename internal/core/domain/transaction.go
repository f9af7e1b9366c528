package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies the money movement.
type TransactionType string

const (
	Withdrawal TransactionType = "WITHDRAWAL"
	Deposit    TransactionType = "DEPOSIT"
	Transfer   TransactionType = "TRANSFER"
	Fee        TransactionType = "FEE"
	Interest   TransactionType = "INTEREST"
	Reversal   TransactionType = "REVERSAL"
	Adjustment TransactionType = "ADJUSTMENT"
)

// IsDebit reports whether the type reduces the account balance.
func (t TransactionType) IsDebit() bool {
	switch t {
	case Withdrawal, Transfer, Fee:
		return true
	default:
		return false
	}
}

// TransactionStatus is the lifecycle state of a transaction.
type TransactionStatus string

const (
	TxnPending    TransactionStatus = "PENDING"
	TxnApproved   TransactionStatus = "APPROVED"
	TxnRejected   TransactionStatus = "REJECTED"
	TxnProcessing TransactionStatus = "PROCESSING"
	TxnCompleted  TransactionStatus = "COMPLETED"
	TxnFailed     TransactionStatus = "FAILED"
	TxnCancelled  TransactionStatus = "CANCELLED"
	TxnReversed   TransactionStatus = "REVERSED"
)

// Channel is the origination channel of the request.
type Channel string

const (
	ChannelAgent  Channel = "AGENT"
	ChannelBranch Channel = "BRANCH"
	ChannelMobile Channel = "MOBILE"
	ChannelATM    Channel = "ATM"
)

// Priority is the caller-requested handling priority.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// VerificationMethod is one way a customer proved their identity for a transaction.
type VerificationMethod string

const (
	VerifyPIN         VerificationMethod = "PIN"
	VerifyOTP         VerificationMethod = "OTP"
	VerifyBiometric   VerificationMethod = "BIOMETRIC"
	VerifyAgentVisual VerificationMethod = "AGENT_VISUAL"
)

// RiskFactor is one contribution to a transaction's risk score.
type RiskFactor struct {
	Factor      string `json:"factor"`
	Description string `json:"description"`
	Score       int    `json:"score"`
}

// Transaction is one money-movement request with its full lifecycle.
// Created PENDING by an agent; mutated only through the service operations.
// Terminal statuses are immutable except that a completed transaction may
// spawn a linked reversal transaction.
type Transaction struct {
	TransactionID     string `json:"transactionID"` // Primary Key (UUID)
	TransactionNumber string `json:"transactionNumber"`

	CustomerID string `json:"customerID"`
	AccountID  string `json:"accountID"`
	AgentID    string `json:"agentID"`

	Type        TransactionType   `json:"type"`
	Status      TransactionStatus `json:"status"`
	Channel     Channel           `json:"channel"`
	Priority    Priority          `json:"priority"`
	Description string            `json:"description"`
	Reference   string            `json:"reference"`

	Amount       decimal.Decimal `json:"amount"`
	FeeAmount    decimal.Decimal `json:"feeAmount"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	CurrencyCode string          `json:"currencyCode"`

	BalanceBefore   decimal.Decimal `json:"balanceBefore"`
	BalanceAfter    decimal.Decimal `json:"balanceAfter"`
	AvailableBefore decimal.Decimal `json:"availableBefore"`
	AvailableAfter  decimal.Decimal `json:"availableAfter"`

	VerificationMethods []VerificationMethod `json:"verificationMethods"`
	PINVerified         bool                 `json:"pinVerified"`
	OTPVerified         bool                 `json:"otpVerified"`
	BiometricVerified   bool                 `json:"biometricVerified"`
	CustomerVerified    bool                 `json:"customerVerified"`

	ApprovalRequired bool          `json:"approvalRequired"`
	ApprovalLevel    ApprovalLevel `json:"approvalLevel"`
	ApprovedBy       string        `json:"approvedBy,omitempty"`
	ApprovedAt       *time.Time    `json:"approvedAt,omitempty"`
	RejectedBy       string        `json:"rejectedBy,omitempty"`
	RejectedAt       *time.Time    `json:"rejectedAt,omitempty"`
	RejectionReason  string        `json:"rejectionReason,omitempty"`

	HoldPlaced    bool            `json:"holdPlaced"`
	HoldAmount    decimal.Decimal `json:"holdAmount"`
	HoldReference string          `json:"holdReference,omitempty"`
	HoldExpiresAt *time.Time      `json:"holdExpiresAt,omitempty"`

	RiskScore       int          `json:"riskScore"` // 0-100
	RiskFactors     []RiskFactor `json:"riskFactors,omitempty"`
	ComplianceFlags []string     `json:"complianceFlags,omitempty"`

	ScheduledAt      *time.Time `json:"scheduledAt,omitempty"`
	ProcessedAt      *time.Time `json:"processedAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	ProcessingTimeMs int64      `json:"processingTimeMs"`
	RetryCount       int        `json:"retryCount"`
	MaxRetries       int        `json:"maxRetries"`
	LastError        string     `json:"lastError,omitempty"`

	IsReversal             bool    `json:"isReversal"`
	OriginalTransactionID  *string `json:"originalTransactionID,omitempty"`
	ReversingTransactionID *string `json:"reversingTransactionID,omitempty"`
	Reversed               bool    `json:"reversed"`

	AuditTrail []AuditEntry `json:"auditTrail"` // Append-only
	AuditFields
}

// ReversalWindow is how long after completion a transaction may be reversed.
const ReversalWindow = 24 * time.Hour

// DefaultMaxRetries caps caller-driven retries of a failed transaction.
const DefaultMaxRetries = 3

// HighRiskScoreThreshold is the score at or above which verification requires
// biometric evidence in addition to PIN or OTP.
const HighRiskScoreThreshold = 70

var transitions = map[TransactionStatus][]TransactionStatus{
	TxnPending:    {TxnApproved, TxnRejected, TxnCancelled},
	TxnApproved:   {TxnProcessing, TxnCancelled},
	TxnProcessing: {TxnCompleted, TxnFailed},
	TxnCompleted:  {TxnReversed},
}

// CanTransitionTo reports whether the state machine permits moving to next.
func (t *Transaction) CanTransitionTo(next TransactionStatus) bool {
	for _, s := range transitions[t.Status] {
		if s == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the transaction has reached a final status.
// COMPLETED is terminal for mutation but may still spawn a linked reversal.
func (t *Transaction) IsTerminal() bool {
	switch t.Status {
	case TxnCompleted, TxnRejected, TxnFailed, TxnCancelled, TxnReversed:
		return true
	default:
		return false
	}
}

// HasActiveHold reports whether reserved funds are still held for this transaction.
func (t *Transaction) HasActiveHold() bool {
	return t.HoldPlaced && t.HoldAmount.IsPositive()
}

// RecordVerification registers one verification method on the transaction and
// recomputes CustomerVerified. High-risk transactions need at least two methods
// including biometric plus PIN or OTP; others need PIN, OTP or agent-visual
// confirmation.
func (t *Transaction) RecordVerification(method VerificationMethod) {
	for _, m := range t.VerificationMethods {
		if m == method {
			t.recomputeVerified()
			return
		}
	}
	t.VerificationMethods = append(t.VerificationMethods, method)
	switch method {
	case VerifyPIN:
		t.PINVerified = true
	case VerifyOTP:
		t.OTPVerified = true
	case VerifyBiometric:
		t.BiometricVerified = true
	}
	t.recomputeVerified()
}

func (t *Transaction) recomputeVerified() {
	if t.RiskScore >= HighRiskScoreThreshold {
		t.CustomerVerified = len(t.VerificationMethods) >= 2 &&
			t.BiometricVerified && (t.PINVerified || t.OTPVerified)
		return
	}
	if t.PINVerified || t.OTPVerified {
		t.CustomerVerified = true
		return
	}
	for _, m := range t.VerificationMethods {
		if m == VerifyAgentVisual {
			t.CustomerVerified = true
			return
		}
	}
	t.CustomerVerified = false
}

// AppendAudit appends one immutable audit entry to the trail.
func (t *Transaction) AppendAudit(action, actor string, at time.Time, details map[string]string) {
	t.AuditTrail = append(t.AuditTrail, AuditEntry{
		Action:    action,
		Actor:     actor,
		Timestamp: at,
		Details:   details,
	})
}

// EffectiveAmount is the signed amount applied to balances when the
// transaction completes: -(amount+fees) for debits, +(amount-fees) for credits.
// Reversal transactions carry the already-signed inverse of the original's
// effective amount and charge no fee of their own.
func (t *Transaction) EffectiveAmount() decimal.Decimal {
	if t.Type == Reversal {
		return t.Amount
	}
	if t.Type.IsDebit() {
		return t.Amount.Add(t.FeeAmount).Neg()
	}
	return t.Amount.Sub(t.FeeAmount)
}
