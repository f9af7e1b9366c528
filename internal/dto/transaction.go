package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/primebank/agent_banking_core/internal/core/domain"
)

// CreateTransactionRequest is the inbound payload for a new money movement.
type CreateTransactionRequest struct {
	CustomerID  string                 `json:"customerID" binding:"required"`
	AccountID   string                 `json:"accountID" binding:"required"`
	Amount      decimal.Decimal        `json:"amount" binding:"required"`
	Currency    string                 `json:"currency" binding:"required,len=3"`
	Description string                 `json:"description"`
	Channel     domain.Channel         `json:"channel" binding:"omitempty,oneof=AGENT BRANCH MOBILE ATM"`
	Priority    domain.Priority        `json:"priority" binding:"omitempty,oneof=LOW NORMAL HIGH URGENT"`
	Reference   string                 `json:"reference"`
	ScheduledAt *time.Time             `json:"scheduledAt,omitempty"`
}

// VerifyCustomerRequest records one identity verification on a transaction.
type VerifyCustomerRequest struct {
	Method   domain.VerificationMethod `json:"method" binding:"required,oneof=PIN OTP BIOMETRIC AGENT_VISUAL"`
	Evidence string                    `json:"evidence"`
}

// ApproveTransactionRequest carries an approval decision.
type ApproveTransactionRequest struct {
	Notes      string   `json:"notes"`
	Conditions []string `json:"conditions"`
}

// RejectTransactionRequest carries a rejection decision.
type RejectTransactionRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// CancelTransactionRequest cancels a pre-processing transaction.
type CancelTransactionRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ReverseTransactionRequest reverses a completed transaction.
type ReverseTransactionRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// PlaceHoldRequest reserves funds against an account's available balance.
type PlaceHoldRequest struct {
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	ExpiryMinutes int             `json:"expiryMinutes"`
}

// TransactionResponse is the outbound representation of a transaction.
type TransactionResponse struct {
	TransactionID     string                   `json:"transactionID"`
	TransactionNumber string                   `json:"transactionNumber"`
	CustomerID        string                   `json:"customerID"`
	AccountID         string                   `json:"accountID"`
	AgentID           string                   `json:"agentID"`
	Type              domain.TransactionType   `json:"type"`
	Status            domain.TransactionStatus `json:"status"`
	Amount            decimal.Decimal          `json:"amount"`
	FeeAmount         decimal.Decimal          `json:"feeAmount"`
	TotalAmount       decimal.Decimal          `json:"totalAmount"`
	Currency          string                   `json:"currency"`
	CustomerVerified  bool                     `json:"customerVerified"`
	ApprovalRequired  bool                     `json:"approvalRequired"`
	ApprovalLevel     domain.ApprovalLevel     `json:"approvalLevel,omitempty"`
	RiskScore         int                      `json:"riskScore"`
	HoldPlaced        bool                     `json:"holdPlaced"`
	HoldAmount        decimal.Decimal          `json:"holdAmount"`
	CreatedAt         time.Time                `json:"createdAt"`
	CompletedAt       *time.Time               `json:"completedAt,omitempty"`
}

// ToTransactionResponse maps a domain transaction to its response shape.
func ToTransactionResponse(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		TransactionID:     t.TransactionID,
		TransactionNumber: t.TransactionNumber,
		CustomerID:        t.CustomerID,
		AccountID:         t.AccountID,
		AgentID:           t.AgentID,
		Type:              t.Type,
		Status:            t.Status,
		Amount:            t.Amount,
		FeeAmount:         t.FeeAmount,
		TotalAmount:       t.TotalAmount,
		Currency:          t.CurrencyCode,
		CustomerVerified:  t.CustomerVerified,
		ApprovalRequired:  t.ApprovalRequired,
		ApprovalLevel:     t.ApprovalLevel,
		RiskScore:         t.RiskScore,
		HoldPlaced:        t.HoldPlaced,
		HoldAmount:        t.HoldAmount,
		CreatedAt:         t.CreatedAt,
		CompletedAt:       t.CompletedAt,
	}
}
