package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/primebank/agent_banking_core/internal/apperrors"
	"github.com/primebank/agent_banking_core/internal/core/domain"
	portssvc "github.com/primebank/agent_banking_core/internal/core/ports/services"
	"github.com/primebank/agent_banking_core/internal/dto"
)

// Risk scoring thresholds.
var (
	riskAmountManager = decimal.RequireFromString("2000")
	riskAmountAdmin   = decimal.RequireFromString("5000")
	riskAmountMinimum = decimal.RequireFromString("500")
)

const (
	scoreHighRiskCustomer = 30
	scoreLargeAmount      = 20
	scoreVeryLargeAmount  = 30
	scoreHighVelocity     = 15
	scoreOddHours         = 10

	velocityThreshold = 5

	approvalScoreFloor  = 30
	managerScoreFloor   = 50
	adminScoreFloor     = 80
	hardBlockScoreFloor = 90
)

// riskService is the default additive risk/compliance evaluator. Callers may
// plug in another implementation of the RiskEvaluator port.
type riskService struct{}

// NewRiskService creates the default risk evaluator.
func NewRiskService() portssvc.RiskEvaluator {
	return &riskService{}
}

var _ portssvc.RiskEvaluator = (*riskService)(nil)

// Evaluate scores the prospective transaction and derives the approval
// requirement. A score of 90 or above is a hard block: the assessment demands
// escalation and is never a silent pass.
func (s *riskService) Evaluate(_ context.Context, input dto.RiskInput) (dto.RiskAssessment, error) {
	if input.Account == nil {
		return dto.RiskAssessment{}, fmt.Errorf("%w: account is required for risk evaluation", apperrors.ErrValidation)
	}

	var (
		score   int
		factors []domain.RiskFactor
		flags   []string
	)

	addFactor := func(name, desc string, points int) {
		score += points
		factors = append(factors, domain.RiskFactor{Factor: name, Description: desc, Score: points})
	}

	if input.Customer != nil && input.Customer.HighRisk {
		addFactor("high_risk_customer", "customer is flagged high-risk", scoreHighRiskCustomer)
		flags = append(flags, "HIGH_RISK_CUSTOMER")
	}
	if input.Amount.GreaterThanOrEqual(riskAmountManager) {
		addFactor("large_amount", "amount at or above 2000", scoreLargeAmount)
	}
	if input.Amount.GreaterThanOrEqual(riskAmountAdmin) {
		addFactor("very_large_amount", "amount at or above 5000", scoreVeryLargeAmount)
		flags = append(flags, "LARGE_TRANSACTION")
	}
	if input.RecentTxnCount > velocityThreshold {
		addFactor("high_velocity", fmt.Sprintf("%d transactions on the account in the last 24h", input.RecentTxnCount), scoreHighVelocity)
		flags = append(flags, "HIGH_VELOCITY")
	}
	if hour := input.At.Hour(); hour < 6 || hour > 22 {
		addFactor("odd_hours", "transaction outside normal hours", scoreOddHours)
	}

	if score > 100 {
		score = 100
	}

	level := domain.ApprovalLevelClerk
	if score >= managerScoreFloor || input.Amount.GreaterThanOrEqual(riskAmountManager) {
		level = domain.ApprovalLevelManager
	}
	if score >= adminScoreFloor || input.Amount.GreaterThanOrEqual(riskAmountAdmin) {
		level = domain.ApprovalLevelAdmin
	}

	assessment := dto.RiskAssessment{
		RiskScore:        score,
		Factors:          factors,
		Flags:            flags,
		RequiresApproval: score >= approvalScoreFloor || input.Amount.GreaterThanOrEqual(riskAmountMinimum),
		ApprovalLevel:    level,
	}

	if score >= hardBlockScoreFloor {
		assessment.RequiresEscalation = true
		assessment.RequiresApproval = true
		assessment.Flags = append(assessment.Flags, "CRITICAL")
	}

	return assessment, nil
}
