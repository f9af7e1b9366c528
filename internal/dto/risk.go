package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/primebank/agent_banking_core/internal/core/domain"
)

// RiskInput is everything the evaluator considers for one transaction.
type RiskInput struct {
	Customer        *domain.Customer
	Account         *domain.Account
	Amount          decimal.Decimal
	Type            domain.TransactionType
	At              time.Time
	RecentTxnCount  int // Transactions on the account in the last 24h
}

// RiskAssessment is the evaluator's verdict.
type RiskAssessment struct {
	RiskScore          int                  `json:"riskScore"` // 0-100
	Factors            []domain.RiskFactor  `json:"factors"`
	Flags              []string             `json:"flags"`
	RequiresApproval   bool                 `json:"requiresApproval"`
	ApprovalLevel      domain.ApprovalLevel `json:"approvalLevel"`
	RequiresEscalation bool                 `json:"requiresEscalation"` // Hard block, score >= 90
}
