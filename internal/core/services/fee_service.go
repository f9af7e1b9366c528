package services

import (
	"github.com/shopspring/decimal"

	"github.com/primebank/agent_banking_core/internal/core/domain"
	portssvc "github.com/primebank/agent_banking_core/internal/core/ports/services"
	"github.com/primebank/agent_banking_core/internal/dto"
)

// feeConfig is the base fee table entry for one (transaction type, account type) pair.
type feeConfig struct {
	baseFee        decimal.Decimal
	percentageRate decimal.Decimal
	minFee         decimal.Decimal
	maxFee         decimal.Decimal
}

type feeKey struct {
	txnType     domain.TransactionType
	accountType domain.AccountType
}

func fc(base, rate, min, max string) feeConfig {
	return feeConfig{
		baseFee:        decimal.RequireFromString(base),
		percentageRate: decimal.RequireFromString(rate),
		minFee:         decimal.RequireFromString(min),
		maxFee:         decimal.RequireFromString(max),
	}
}

// feeTable holds the base config per (txnType, accountType). Missing pairs
// fall back to the per-type default (accountType "").
var feeTable = map[feeKey]feeConfig{
	{domain.Withdrawal, domain.Savings}:  fc("2", "0.005", "1", "10"),
	{domain.Withdrawal, domain.Checking}: fc("1.5", "0.004", "1", "8"),
	{domain.Withdrawal, domain.Business}: fc("3", "0.006", "1.5", "25"),
	{domain.Withdrawal, domain.Wallet}:   fc("1", "0.01", "0.5", "5"),
	{domain.Withdrawal, ""}:              fc("2", "0.005", "1", "10"),

	{domain.Transfer, domain.Savings}:  fc("3", "0.0025", "1", "15"),
	{domain.Transfer, domain.Checking}: fc("2.5", "0.002", "1", "12"),
	{domain.Transfer, domain.Business}: fc("5", "0.003", "2", "40"),
	{domain.Transfer, domain.Wallet}:   fc("1.5", "0.005", "0.5", "8"),
	{domain.Transfer, ""}:              fc("3", "0.0025", "1", "15"),

	// Deposits are free of base fees across account types.
	{domain.Deposit, ""}: fc("0", "0", "0", "0"),
}

// Surcharge amounts. Applied after the cap, never capped themselves.
var (
	surchargeHighRisk    = decimal.RequireFromString("5")
	surchargeOffHours    = decimal.RequireFromString("2")
	surchargeLargeAmount = decimal.RequireFromString("10")
	surchargeUrgent      = decimal.RequireFromString("15")

	largeAmountThreshold = decimal.RequireFromString("10000")
)

// Off-hours window: surcharge applies before 08:00 and after 17:00 local time.
const (
	businessHourStart = 8
	businessHourEnd   = 17
)

// feeService is a pure, table-driven fee calculator. It holds no state and
// performs no I/O so identical inputs always yield identical output.
type feeService struct{}

// NewFeeService creates the fee calculator.
func NewFeeService() portssvc.FeeCalculator {
	return &feeService{}
}

var _ portssvc.FeeCalculator = (*feeService)(nil)

// Calculate computes the fee as clamp(baseFee + amount*rate, minFee, maxFee)
// plus additive, uncapped surcharges. The total never goes below zero.
func (s *feeService) Calculate(accountType domain.AccountType, txnType domain.TransactionType, amount decimal.Decimal, fctx dto.FeeContext) dto.FeeResult {
	cfg, ok := feeTable[feeKey{txnType, accountType}]
	if !ok {
		cfg, ok = feeTable[feeKey{txnType, ""}]
		if !ok {
			// Fee-exempt types: interest, adjustments, reversals.
			return dto.FeeResult{
				BaseFee:       decimal.Zero,
				PercentageFee: decimal.Zero,
				TotalFees:     decimal.Zero,
			}
		}
	}

	percentageFee := amount.Mul(cfg.percentageRate)
	base := cfg.baseFee.Add(percentageFee)
	if base.GreaterThan(cfg.maxFee) {
		base = cfg.maxFee
	}
	if base.LessThan(cfg.minFee) {
		base = cfg.minFee
	}

	breakdown := []dto.FeeLine{
		{Label: "base", Amount: cfg.baseFee},
		{Label: "percentage", Amount: percentageFee},
	}
	if capped := cfg.baseFee.Add(percentageFee); !capped.Equal(base) {
		breakdown = append(breakdown, dto.FeeLine{Label: "cap_adjustment", Amount: base.Sub(capped)})
	}

	total := base
	if fctx.RiskScore >= domain.HighRiskScoreThreshold {
		total = total.Add(surchargeHighRisk)
		breakdown = append(breakdown, dto.FeeLine{Label: "high_risk_surcharge", Amount: surchargeHighRisk})
	}
	if hour := fctx.At.Hour(); hour < businessHourStart || hour > businessHourEnd {
		total = total.Add(surchargeOffHours)
		breakdown = append(breakdown, dto.FeeLine{Label: "off_hours_surcharge", Amount: surchargeOffHours})
	}
	if amount.GreaterThan(largeAmountThreshold) {
		total = total.Add(surchargeLargeAmount)
		breakdown = append(breakdown, dto.FeeLine{Label: "large_amount_surcharge", Amount: surchargeLargeAmount})
	}
	if fctx.Priority == domain.PriorityUrgent {
		total = total.Add(surchargeUrgent)
		breakdown = append(breakdown, dto.FeeLine{Label: "urgent_surcharge", Amount: surchargeUrgent})
	}

	if total.IsNegative() {
		total = decimal.Zero
	}

	return dto.FeeResult{
		BaseFee:       cfg.baseFee,
		PercentageFee: percentageFee,
		TotalFees:     total,
		Breakdown:     breakdown,
	}
}
