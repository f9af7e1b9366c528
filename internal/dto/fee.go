package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/primebank/agent_banking_core/internal/core/domain"
)

// FeeContext carries the execution-time inputs that influence surcharges.
type FeeContext struct {
	RiskScore int
	At        time.Time
	Priority  domain.Priority
}

// FeeLine is one labelled component of a computed fee.
type FeeLine struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// FeeResult is the full output of a fee computation.
type FeeResult struct {
	BaseFee       decimal.Decimal `json:"baseFee"`
	PercentageFee decimal.Decimal `json:"percentageFee"`
	TotalFees     decimal.Decimal `json:"totalFees"`
	Breakdown     []FeeLine       `json:"breakdown"`
}
