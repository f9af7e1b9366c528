package services

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/primebank/agent_banking_core/internal/core/domain"
	"github.com/primebank/agent_banking_core/internal/dto"
)

// FeeCalculator computes fees for a money movement. Implementations must be
// deterministic and side-effect free: identical inputs always yield identical
// output.
type FeeCalculator interface {
	Calculate(accountType domain.AccountType, txnType domain.TransactionType, amount decimal.Decimal, fctx dto.FeeContext) dto.FeeResult
}

// RiskEvaluator scores a prospective transaction and derives the approval
// requirement. Pluggable; the in-tree evaluator is the default.
type RiskEvaluator interface {
	Evaluate(ctx context.Context, input dto.RiskInput) (dto.RiskAssessment, error)
}

// TransactionReaderSvc defines read operations on transactions.
type TransactionReaderSvc interface {
	// GetTransaction retrieves a transaction, serving from the snapshot cache
	// when possible.
	GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error)

	// ListAccountTransactions retrieves a page of an account's transactions.
	ListAccountTransactions(ctx context.Context, accountID string, limit, offset int) ([]domain.Transaction, error)
}

// TransactionWriterSvc drives the transaction state machine up to processing.
type TransactionWriterSvc interface {
	// CreateWithdrawal creates a pending withdrawal, places the hold, runs risk
	// evaluation and opens an approval workflow when one is required.
	CreateWithdrawal(ctx context.Context, req dto.CreateTransactionRequest, agentID string) (*domain.Transaction, error)

	// CreateDeposit creates a pending deposit. Deposits reserve no funds.
	CreateDeposit(ctx context.Context, req dto.CreateTransactionRequest, agentID string) (*domain.Transaction, error)

	// VerifyCustomer records one verification method and recomputes the
	// customer-verified flag. No status change.
	VerifyCustomer(ctx context.Context, transactionID string, req dto.VerifyCustomerRequest, agentID string) (*domain.Transaction, error)

	// Approve moves a pending, approval-requiring transaction to approved.
	Approve(ctx context.Context, transactionID string, req dto.ApproveTransactionRequest, actor string) (*domain.Transaction, error)

	// Reject moves a pending transaction to rejected and releases any hold.
	Reject(ctx context.Context, transactionID string, req dto.RejectTransactionRequest, actor string) (*domain.Transaction, error)

	// Cancel cancels a pending or approved transaction and releases any hold.
	Cancel(ctx context.Context, transactionID string, req dto.CancelTransactionRequest, actor string) (*domain.Transaction, error)
}

// TransactionSvcFacade combines all transaction service interfaces.
type TransactionSvcFacade interface {
	TransactionReaderSvc
	TransactionWriterSvc
}
