package services_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/primebank/agent_banking_core/internal/core/domain"
	"github.com/primebank/agent_banking_core/internal/dto"
)

// MockTxManager is a mock type for the TransactionManager interface. Begin
// hands back a nil pgx.Tx; the repository mocks below never dereference it.
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) Begin(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	tx, _ := args.Get(0).(pgx.Tx)
	return tx, args.Error(1)
}

func (m *MockTxManager) Commit(ctx context.Context, tx pgx.Tx) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockTxManager) Rollback(ctx context.Context, tx pgx.Tx) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

// MockAccountRepository is a mock type for the AccountRepositoryFacade interface.
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	args := m.Called(ctx, accountNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) SaveAccount(ctx context.Context, account domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) UpdateAccount(ctx context.Context, account domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) FindAccountForUpdate(ctx context.Context, tx pgx.Tx, accountID string, wait bool) (*domain.Account, error) {
	args := m.Called(ctx, tx, accountID, wait)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) UpdateAccountBalancesInTx(ctx context.Context, tx pgx.Tx, account domain.Account) error {
	args := m.Called(ctx, tx, account)
	return args.Error(0)
}

// MockTransactionRepository is a mock type for the TransactionRepositoryFacade interface.
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) FindTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) CountRecentByAccount(ctx context.Context, accountID string, since time.Time) (int, error) {
	args := m.Called(ctx, accountID, since)
	return args.Int(0), args.Error(1)
}

func (m *MockTransactionRepository) ListTransactionsByAccount(ctx context.Context, accountID string, limit, offset int) ([]domain.Transaction, error) {
	args := m.Called(ctx, accountID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Transaction, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) SaveTransactionInTx(ctx context.Context, tx pgx.Tx, txn domain.Transaction) error {
	args := m.Called(ctx, tx, txn)
	return args.Error(0)
}

func (m *MockTransactionRepository) UpdateTransactionInTx(ctx context.Context, tx pgx.Tx, txn domain.Transaction) error {
	args := m.Called(ctx, tx, txn)
	return args.Error(0)
}

func (m *MockTransactionRepository) FindTransactionForUpdate(ctx context.Context, tx pgx.Tx, transactionID string, wait bool) (*domain.Transaction, error) {
	args := m.Called(ctx, tx, transactionID, wait)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

// MockApprovalRepository is a mock type for the ApprovalRepositoryFacade interface.
type MockApprovalRepository struct {
	mock.Mock
}

func (m *MockApprovalRepository) FindWorkflowByID(ctx context.Context, workflowID string) (*domain.ApprovalWorkflow, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ApprovalWorkflow), args.Error(1)
}

func (m *MockApprovalRepository) FindWorkflowByTransactionID(ctx context.Context, transactionID string) (*domain.ApprovalWorkflow, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ApprovalWorkflow), args.Error(1)
}

func (m *MockApprovalRepository) ListQueue(ctx context.Context, queue string, limit int) ([]domain.ApprovalWorkflow, error) {
	args := m.Called(ctx, queue, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ApprovalWorkflow), args.Error(1)
}

func (m *MockApprovalRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.ApprovalWorkflow, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ApprovalWorkflow), args.Error(1)
}

func (m *MockApprovalRepository) SaveWorkflowInTx(ctx context.Context, tx pgx.Tx, wf domain.ApprovalWorkflow) error {
	args := m.Called(ctx, tx, wf)
	return args.Error(0)
}

func (m *MockApprovalRepository) UpdateWorkflowInTx(ctx context.Context, tx pgx.Tx, wf domain.ApprovalWorkflow) error {
	args := m.Called(ctx, tx, wf)
	return args.Error(0)
}

func (m *MockApprovalRepository) FindWorkflowForUpdate(ctx context.Context, tx pgx.Tx, workflowID string) (*domain.ApprovalWorkflow, error) {
	args := m.Called(ctx, tx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ApprovalWorkflow), args.Error(1)
}

func (m *MockApprovalRepository) FindWorkflowByTransactionForUpdate(ctx context.Context, tx pgx.Tx, transactionID string) (*domain.ApprovalWorkflow, error) {
	args := m.Called(ctx, tx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ApprovalWorkflow), args.Error(1)
}

// MockCustomerReader is a mock type for the CustomerReader interface.
type MockCustomerReader struct {
	mock.Mock
}

func (m *MockCustomerReader) FindCustomerByID(ctx context.Context, customerID string) (*domain.Customer, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Customer), args.Error(1)
}

// MockReceiptRepository is a mock type for the ReceiptRepositoryFacade interface.
type MockReceiptRepository struct {
	mock.Mock
}

func (m *MockReceiptRepository) SaveReceiptInTx(ctx context.Context, tx pgx.Tx, receipt domain.Receipt) error {
	args := m.Called(ctx, tx, receipt)
	return args.Error(0)
}

func (m *MockReceiptRepository) FindReceiptByTransactionID(ctx context.Context, transactionID string) (*domain.Receipt, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Receipt), args.Error(1)
}

// MockOutboxRepository is a mock type for the OutboxRepositoryFacade interface.
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) StageEventInTx(ctx context.Context, tx pgx.Tx, event domain.OutboxEvent) error {
	args := m.Called(ctx, tx, event)
	return args.Error(0)
}

func (m *MockOutboxRepository) ListPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, eventID string, at time.Time) error {
	args := m.Called(ctx, eventID, at)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, eventID string, attempts int, lastError string) error {
	args := m.Called(ctx, eventID, attempts, lastError)
	return args.Error(0)
}

// MockAuthorityResolver is a mock type for the AuthorityResolver interface.
type MockAuthorityResolver struct {
	mock.Mock
}

func (m *MockAuthorityResolver) LevelFor(ctx context.Context, actor string) (domain.ApprovalLevel, error) {
	args := m.Called(ctx, actor)
	return args.Get(0).(domain.ApprovalLevel), args.Error(1)
}

// MockFeeCalculator is a mock type for the FeeCalculator interface.
type MockFeeCalculator struct {
	mock.Mock
}

func (m *MockFeeCalculator) Calculate(accountType domain.AccountType, txnType domain.TransactionType, amount decimal.Decimal, fctx dto.FeeContext) dto.FeeResult {
	args := m.Called(accountType, txnType, amount, fctx)
	return args.Get(0).(dto.FeeResult)
}

// MockRiskEvaluator is a mock type for the RiskEvaluator interface.
type MockRiskEvaluator struct {
	mock.Mock
}

func (m *MockRiskEvaluator) Evaluate(ctx context.Context, input dto.RiskInput) (dto.RiskAssessment, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(dto.RiskAssessment), args.Error(1)
}
