package services_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/primebank/agent_banking_core/internal/apperrors"
	"github.com/primebank/agent_banking_core/internal/core/domain"
	"github.com/primebank/agent_banking_core/internal/core/services"
	portssvc "github.com/primebank/agent_banking_core/internal/core/ports/services"
	"github.com/primebank/agent_banking_core/internal/dto"
)

type TransactionServiceTestSuite struct {
	suite.Suite
	txManager    *MockTxManager
	txnRepo      *MockTransactionRepository
	accountRepo  *MockAccountRepository
	customerRepo *MockCustomerReader
	approvalRepo *MockApprovalRepository
	outboxRepo   *MockOutboxRepository
	fees         *MockFeeCalculator
	risk         *MockRiskEvaluator
	authority    *MockAuthorityResolver
	service      portssvc.TransactionSvcFacade
}

func (suite *TransactionServiceTestSuite) SetupTest() {
	suite.txManager = new(MockTxManager)
	suite.txnRepo = new(MockTransactionRepository)
	suite.accountRepo = new(MockAccountRepository)
	suite.customerRepo = new(MockCustomerReader)
	suite.approvalRepo = new(MockApprovalRepository)
	suite.outboxRepo = new(MockOutboxRepository)
	suite.fees = new(MockFeeCalculator)
	suite.risk = new(MockRiskEvaluator)
	suite.authority = new(MockAuthorityResolver)
	suite.service = services.NewTransactionService(
		suite.txManager,
		suite.txnRepo,
		suite.accountRepo,
		suite.customerRepo,
		suite.approvalRepo,
		suite.outboxRepo,
		suite.fees,
		suite.risk,
		suite.authority,
		nil,
	)
}

func (suite *TransactionServiceTestSuite) expectUnitOfWork() {
	suite.txManager.On("Begin", mock.Anything).Return(nil, nil)
	suite.txManager.On("Rollback", mock.Anything, mock.Anything).Return(nil)
}

func activeAccount() *domain.Account {
	return &domain.Account{
		AccountID:            "acc-1",
		AccountNumber:        "ACC-0001",
		CustomerID:           "cust-1",
		AccountType:          domain.Savings,
		CurrencyCode:         "USD",
		Status:               domain.AccountActive,
		CurrentBalance:       d("5000"),
		AvailableBalance:     d("5000"),
		LedgerBalance:        d("5000"),
		DailyWithdrawalLimit: d("10000"),
	}
}

func pendingTransaction() *domain.Transaction {
	return &domain.Transaction{
		TransactionID:     "txn-1",
		TransactionNumber: "TXN-20260310-ABCDEF01",
		CustomerID:        "cust-1",
		AccountID:         "acc-1",
		AgentID:           "agent-1",
		Type:              domain.Withdrawal,
		Status:            domain.TxnPending,
		Amount:            d("1000"),
		FeeAmount:         d("10"),
		TotalAmount:       d("1010"),
		CurrencyCode:      "USD",
		ApprovalRequired:  true,
		ApprovalLevel:     domain.ApprovalLevelManager,
		MaxRetries:        domain.DefaultMaxRetries,
	}
}

func withdrawalRequest() dto.CreateTransactionRequest {
	return dto.CreateTransactionRequest{
		CustomerID: "cust-1",
		AccountID:  "acc-1",
		Amount:     d("2000"),
		Currency:   "USD",
	}
}

func (suite *TransactionServiceTestSuite) TestCreateWithdrawal_PlacesHoldAndOpensWorkflow() {
	ctx := context.Background()
	account := activeAccount()
	customer := &domain.Customer{CustomerID: "cust-1"}

	suite.accountRepo.On("FindAccountByID", ctx, "acc-1").Return(account, nil).Once()
	suite.customerRepo.On("FindCustomerByID", ctx, "cust-1").Return(customer, nil).Once()
	suite.txnRepo.On("CountRecentByAccount", ctx, "acc-1", mock.Anything).Return(1, nil).Once()
	suite.risk.On("Evaluate", ctx, mock.Anything).Return(dto.RiskAssessment{
		RiskScore:        40,
		RequiresApproval: true,
		ApprovalLevel:    domain.ApprovalLevelManager,
	}, nil).Once()
	suite.fees.On("Calculate", domain.Savings, domain.Withdrawal, mock.Anything, mock.Anything).
		Return(dto.FeeResult{TotalFees: d("10")}).Once()

	suite.expectUnitOfWork()
	suite.accountRepo.On("FindAccountForUpdate", ctx, mock.Anything, "acc-1", true).Return(account, nil).Once()

	var heldAccount domain.Account
	suite.accountRepo.On("UpdateAccountBalancesInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Account")).
		Run(func(args mock.Arguments) { heldAccount = args.Get(2).(domain.Account) }).
		Return(nil).Once()
	suite.txnRepo.On("SaveTransactionInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Transaction")).Return(nil).Once()

	var savedWorkflow domain.ApprovalWorkflow
	suite.approvalRepo.On("SaveWorkflowInTx", ctx, mock.Anything, mock.AnythingOfType("domain.ApprovalWorkflow")).
		Run(func(args mock.Arguments) { savedWorkflow = args.Get(2).(domain.ApprovalWorkflow) }).
		Return(nil).Once()
	suite.outboxRepo.On("StageEventInTx", ctx, mock.Anything, mock.AnythingOfType("domain.OutboxEvent")).Return(nil).Twice()
	suite.txManager.On("Commit", ctx, mock.Anything).Return(nil).Once()

	txn, err := suite.service.CreateWithdrawal(ctx, withdrawalRequest(), "agent-1")

	suite.Require().NoError(err)
	suite.Require().NotNil(txn)
	suite.Equal(domain.TxnPending, txn.Status)
	suite.True(txn.ApprovalRequired)
	suite.True(txn.HoldPlaced)
	suite.True(d("2010").Equal(txn.HoldAmount), "hold covers amount plus fee, got %s", txn.HoldAmount)
	suite.NotEmpty(txn.HoldReference)
	suite.Require().NotNil(txn.HoldExpiresAt)

	// Hold touches available balance only.
	suite.True(d("2990").Equal(heldAccount.AvailableBalance))
	suite.True(d("2010").Equal(heldAccount.HoldAmount))
	suite.True(d("5000").Equal(heldAccount.CurrentBalance))

	suite.Equal(txn.TransactionID, savedWorkflow.TransactionID)
	suite.Equal(domain.ApprovalLevelManager, savedWorkflow.RequiredLevel)
	suite.Equal(domain.QueueManager, savedWorkflow.Queue)

	suite.txManager.AssertExpectations(suite.T())
	suite.accountRepo.AssertExpectations(suite.T())
	suite.approvalRepo.AssertExpectations(suite.T())
	suite.outboxRepo.AssertExpectations(suite.T())
}

func (suite *TransactionServiceTestSuite) TestCreateDeposit_AutoApprovedWithoutHold() {
	ctx := context.Background()
	account := activeAccount()

	suite.accountRepo.On("FindAccountByID", ctx, "acc-1").Return(account, nil).Once()
	suite.customerRepo.On("FindCustomerByID", ctx, "cust-1").Return(&domain.Customer{CustomerID: "cust-1"}, nil).Once()
	suite.txnRepo.On("CountRecentByAccount", ctx, "acc-1", mock.Anything).Return(0, nil).Once()
	suite.risk.On("Evaluate", ctx, mock.Anything).Return(dto.RiskAssessment{
		RiskScore:     5,
		ApprovalLevel: domain.ApprovalLevelClerk,
	}, nil).Once()
	suite.fees.On("Calculate", domain.Savings, domain.Deposit, mock.Anything, mock.Anything).
		Return(dto.FeeResult{TotalFees: decimal.Zero}).Once()

	suite.expectUnitOfWork()
	suite.accountRepo.On("FindAccountForUpdate", ctx, mock.Anything, "acc-1", true).Return(account, nil).Once()
	suite.txnRepo.On("SaveTransactionInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Transaction")).Return(nil).Once()
	suite.outboxRepo.On("StageEventInTx", ctx, mock.Anything, mock.AnythingOfType("domain.OutboxEvent")).Return(nil).Once()
	suite.txManager.On("Commit", ctx, mock.Anything).Return(nil).Once()

	req := withdrawalRequest()
	txn, err := suite.service.CreateDeposit(ctx, req, "agent-1")

	suite.Require().NoError(err)
	suite.Equal(domain.TxnApproved, txn.Status)
	suite.Equal(services.SystemActor, txn.ApprovedBy)
	suite.Require().NotNil(txn.ApprovedAt)
	suite.False(txn.HoldPlaced)

	suite.accountRepo.AssertNotCalled(suite.T(), "UpdateAccountBalancesInTx", mock.Anything, mock.Anything, mock.Anything)
	suite.approvalRepo.AssertNotCalled(suite.T(), "SaveWorkflowInTx", mock.Anything, mock.Anything, mock.Anything)
	suite.txManager.AssertExpectations(suite.T())
}

func (suite *TransactionServiceTestSuite) TestCreateWithdrawal_InsufficientAvailableBalance() {
	ctx := context.Background()
	account := activeAccount()
	account.AvailableBalance = d("1500")

	suite.accountRepo.On("FindAccountByID", ctx, "acc-1").Return(account, nil).Once()
	suite.customerRepo.On("FindCustomerByID", ctx, "cust-1").Return(&domain.Customer{CustomerID: "cust-1"}, nil).Once()
	suite.txnRepo.On("CountRecentByAccount", ctx, "acc-1", mock.Anything).Return(0, nil).Once()
	suite.risk.On("Evaluate", ctx, mock.Anything).Return(dto.RiskAssessment{RequiresApproval: true, ApprovalLevel: domain.ApprovalLevelManager}, nil).Once()
	suite.fees.On("Calculate", domain.Savings, domain.Withdrawal, mock.Anything, mock.Anything).
		Return(dto.FeeResult{TotalFees: d("10")}).Once()

	suite.expectUnitOfWork()
	suite.accountRepo.On("FindAccountForUpdate", ctx, mock.Anything, "acc-1", true).Return(account, nil).Once()

	txn, err := suite.service.CreateWithdrawal(ctx, withdrawalRequest(), "agent-1")

	suite.Require().Error(err)
	suite.Nil(txn)
	suite.ErrorIs(err, apperrors.ErrInsufficientFunds)
	suite.txnRepo.AssertNotCalled(suite.T(), "SaveTransactionInTx", mock.Anything, mock.Anything, mock.Anything)
	suite.txManager.AssertNotCalled(suite.T(), "Commit", mock.Anything, mock.Anything)
}

func (suite *TransactionServiceTestSuite) TestCreateWithdrawal_CurrencyMismatch() {
	ctx := context.Background()
	account := activeAccount()
	account.CurrencyCode = "EUR"

	suite.accountRepo.On("FindAccountByID", ctx, "acc-1").Return(account, nil).Once()

	txn, err := suite.service.CreateWithdrawal(ctx, withdrawalRequest(), "agent-1")

	suite.Require().Error(err)
	suite.Nil(txn)
	suite.ErrorIs(err, apperrors.ErrValidation)
	suite.txManager.AssertNotCalled(suite.T(), "Begin", mock.Anything)
}

func (suite *TransactionServiceTestSuite) TestCreateWithdrawal_OverDailyLimit() {
	ctx := context.Background()
	account := activeAccount()
	account.DailyWithdrawalLimit = d("1000")

	suite.accountRepo.On("FindAccountByID", ctx, "acc-1").Return(account, nil).Once()

	_, err := suite.service.CreateWithdrawal(ctx, withdrawalRequest(), "agent-1")

	suite.Require().Error(err)
	suite.ErrorIs(err, apperrors.ErrValidation)
}

func (suite *TransactionServiceTestSuite) TestApprove_Success() {
	ctx := context.Background()
	txn := pendingTransaction()

	suite.authority.On("LevelFor", ctx, "manager-1").Return(domain.ApprovalLevelManager, nil).Once()
	suite.expectUnitOfWork()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", true).Return(txn, nil).Once()
	suite.txnRepo.On("UpdateTransactionInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Transaction")).Return(nil).Once()
	suite.approvalRepo.On("FindWorkflowByTransactionForUpdate", ctx, mock.Anything, "txn-1").Return(pendingWorkflow(), nil).Once()

	var updatedWf domain.ApprovalWorkflow
	suite.approvalRepo.On("UpdateWorkflowInTx", ctx, mock.Anything, mock.AnythingOfType("domain.ApprovalWorkflow")).
		Run(func(args mock.Arguments) { updatedWf = args.Get(2).(domain.ApprovalWorkflow) }).
		Return(nil).Once()
	suite.outboxRepo.On("StageEventInTx", ctx, mock.Anything, mock.AnythingOfType("domain.OutboxEvent")).Return(nil).Once()
	suite.txManager.On("Commit", ctx, mock.Anything).Return(nil).Once()

	approved, err := suite.service.Approve(ctx, "txn-1", dto.ApproveTransactionRequest{Notes: "checked"}, "manager-1")

	suite.Require().NoError(err)
	suite.Equal(domain.TxnApproved, approved.Status)
	suite.Equal("manager-1", approved.ApprovedBy)
	suite.Require().NotNil(approved.ApprovedAt)

	// The linked workflow closes in the same unit of work.
	suite.Equal(domain.WfApproved, updatedWf.Status)
	suite.Require().NotNil(updatedWf.CompletedAt)
	suite.txManager.AssertExpectations(suite.T())
	suite.approvalRepo.AssertExpectations(suite.T())
}

func (suite *TransactionServiceTestSuite) TestApprove_FailsClosedOnUnknownActor() {
	ctx := context.Background()

	suite.authority.On("LevelFor", ctx, "stranger").
		Return(domain.ApprovalLevel(""), apperrors.ErrAuthority).Once()

	txn, err := suite.service.Approve(ctx, "txn-1", dto.ApproveTransactionRequest{}, "stranger")

	suite.Require().Error(err)
	suite.Nil(txn)
	suite.ErrorIs(err, apperrors.ErrAuthority)
	suite.txManager.AssertNotCalled(suite.T(), "Begin", mock.Anything)
}

func (suite *TransactionServiceTestSuite) TestApprove_InsufficientAuthority() {
	ctx := context.Background()
	txn := pendingTransaction()

	suite.authority.On("LevelFor", ctx, "clerk-1").Return(domain.ApprovalLevelClerk, nil).Once()
	suite.expectUnitOfWork()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", true).Return(txn, nil).Once()

	_, err := suite.service.Approve(ctx, "txn-1", dto.ApproveTransactionRequest{}, "clerk-1")

	suite.Require().Error(err)
	suite.ErrorIs(err, apperrors.ErrAuthority)
	suite.txManager.AssertNotCalled(suite.T(), "Commit", mock.Anything, mock.Anything)
}

func (suite *TransactionServiceTestSuite) TestApprove_WrongState() {
	ctx := context.Background()
	txn := pendingTransaction()
	txn.Status = domain.TxnCompleted

	suite.authority.On("LevelFor", ctx, "manager-1").Return(domain.ApprovalLevelManager, nil).Once()
	suite.expectUnitOfWork()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", true).Return(txn, nil).Once()

	_, err := suite.service.Approve(ctx, "txn-1", dto.ApproveTransactionRequest{}, "manager-1")

	suite.Require().Error(err)
	suite.ErrorIs(err, apperrors.ErrInvalidState)
}

func (suite *TransactionServiceTestSuite) TestReject_ReleasesHold() {
	ctx := context.Background()
	txn := pendingTransaction()
	txn.HoldPlaced = true
	txn.HoldAmount = d("1010")
	txn.HoldReference = "HOLD-1"
	account := activeAccount()
	account.AvailableBalance = d("3990")
	account.HoldAmount = d("1010")

	suite.expectUnitOfWork()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", true).Return(txn, nil).Once()
	suite.accountRepo.On("FindAccountForUpdate", ctx, mock.Anything, "acc-1", true).Return(account, nil).Once()

	var updatedAccount domain.Account
	suite.accountRepo.On("UpdateAccountBalancesInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Account")).
		Run(func(args mock.Arguments) { updatedAccount = args.Get(2).(domain.Account) }).
		Return(nil).Once()
	suite.txnRepo.On("UpdateTransactionInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Transaction")).Return(nil).Once()
	suite.approvalRepo.On("FindWorkflowByTransactionForUpdate", ctx, mock.Anything, "txn-1").Return(pendingWorkflow(), nil).Once()

	var updatedWf domain.ApprovalWorkflow
	suite.approvalRepo.On("UpdateWorkflowInTx", ctx, mock.Anything, mock.AnythingOfType("domain.ApprovalWorkflow")).
		Run(func(args mock.Arguments) { updatedWf = args.Get(2).(domain.ApprovalWorkflow) }).
		Return(nil).Once()
	suite.outboxRepo.On("StageEventInTx", ctx, mock.Anything, mock.AnythingOfType("domain.OutboxEvent")).Return(nil).Once()
	suite.txManager.On("Commit", ctx, mock.Anything).Return(nil).Once()

	rejected, err := suite.service.Reject(ctx, "txn-1", dto.RejectTransactionRequest{Reason: "suspicious"}, "manager-1")

	suite.Require().NoError(err)
	suite.Equal(domain.TxnRejected, rejected.Status)
	suite.Equal("suspicious", rejected.RejectionReason)
	suite.False(rejected.HoldPlaced)
	suite.True(d("5000").Equal(updatedAccount.AvailableBalance))
	suite.True(updatedAccount.HoldAmount.IsZero())

	suite.Equal(domain.WfRejected, updatedWf.Status)
	suite.Equal("suspicious", updatedWf.RejectionReason)
	suite.Require().NotNil(updatedWf.CompletedAt)
}

func (suite *TransactionServiceTestSuite) TestCancel_AllowedFromApproved() {
	ctx := context.Background()
	txn := pendingTransaction()
	txn.Status = domain.TxnApproved

	suite.expectUnitOfWork()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", true).Return(txn, nil).Once()
	suite.txnRepo.On("UpdateTransactionInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Transaction")).Return(nil).Once()
	// The workflow already closed when the transaction was approved.
	closedWf := pendingWorkflow()
	closedWf.Status = domain.WfApproved
	suite.approvalRepo.On("FindWorkflowByTransactionForUpdate", ctx, mock.Anything, "txn-1").Return(closedWf, nil).Once()
	suite.outboxRepo.On("StageEventInTx", ctx, mock.Anything, mock.AnythingOfType("domain.OutboxEvent")).Return(nil).Once()
	suite.txManager.On("Commit", ctx, mock.Anything).Return(nil).Once()

	cancelled, err := suite.service.Cancel(ctx, "txn-1", dto.CancelTransactionRequest{Reason: "customer changed mind"}, "agent-1")

	suite.Require().NoError(err)
	suite.Equal(domain.TxnCancelled, cancelled.Status)
	// A terminal workflow is left alone.
	suite.approvalRepo.AssertNotCalled(suite.T(), "UpdateWorkflowInTx", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *TransactionServiceTestSuite) TestCancel_ClosesLinkedWorkflow() {
	ctx := context.Background()
	txn := pendingTransaction()

	suite.expectUnitOfWork()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", true).Return(txn, nil).Once()
	suite.txnRepo.On("UpdateTransactionInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Transaction")).Return(nil).Once()
	suite.approvalRepo.On("FindWorkflowByTransactionForUpdate", ctx, mock.Anything, "txn-1").Return(pendingWorkflow(), nil).Once()

	var updatedWf domain.ApprovalWorkflow
	suite.approvalRepo.On("UpdateWorkflowInTx", ctx, mock.Anything, mock.AnythingOfType("domain.ApprovalWorkflow")).
		Run(func(args mock.Arguments) { updatedWf = args.Get(2).(domain.ApprovalWorkflow) }).
		Return(nil).Once()
	suite.outboxRepo.On("StageEventInTx", ctx, mock.Anything, mock.AnythingOfType("domain.OutboxEvent")).Return(nil).Once()
	suite.txManager.On("Commit", ctx, mock.Anything).Return(nil).Once()

	cancelled, err := suite.service.Cancel(ctx, "txn-1", dto.CancelTransactionRequest{Reason: "customer changed mind"}, "agent-1")

	suite.Require().NoError(err)
	suite.Equal(domain.TxnCancelled, cancelled.Status)
	suite.Equal(domain.WfCancelled, updatedWf.Status)
	suite.Require().NotNil(updatedWf.CompletedAt)
	suite.approvalRepo.AssertExpectations(suite.T())
}

func (suite *TransactionServiceTestSuite) TestCancel_ToleratesMissingWorkflow() {
	ctx := context.Background()
	txn := pendingTransaction()

	suite.expectUnitOfWork()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", true).Return(txn, nil).Once()
	suite.txnRepo.On("UpdateTransactionInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Transaction")).Return(nil).Once()
	suite.approvalRepo.On("FindWorkflowByTransactionForUpdate", ctx, mock.Anything, "txn-1").
		Return(nil, apperrors.ErrNotFound).Once()
	suite.outboxRepo.On("StageEventInTx", ctx, mock.Anything, mock.AnythingOfType("domain.OutboxEvent")).Return(nil).Once()
	suite.txManager.On("Commit", ctx, mock.Anything).Return(nil).Once()

	cancelled, err := suite.service.Cancel(ctx, "txn-1", dto.CancelTransactionRequest{Reason: "duplicate entry"}, "agent-1")

	suite.Require().NoError(err)
	suite.Equal(domain.TxnCancelled, cancelled.Status)
	suite.approvalRepo.AssertNotCalled(suite.T(), "UpdateWorkflowInTx", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *TransactionServiceTestSuite) TestCancel_RefusedFromCompleted() {
	ctx := context.Background()
	txn := pendingTransaction()
	txn.Status = domain.TxnCompleted

	suite.expectUnitOfWork()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", true).Return(txn, nil).Once()

	_, err := suite.service.Cancel(ctx, "txn-1", dto.CancelTransactionRequest{Reason: "too late"}, "agent-1")

	suite.Require().Error(err)
	suite.ErrorIs(err, apperrors.ErrInvalidState)
	suite.txManager.AssertNotCalled(suite.T(), "Commit", mock.Anything, mock.Anything)
}

func (suite *TransactionServiceTestSuite) TestVerifyCustomer_PINMarksVerified() {
	ctx := context.Background()
	txn := pendingTransaction()
	txn.RiskScore = 20

	suite.expectUnitOfWork()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", true).Return(txn, nil).Once()
	suite.txnRepo.On("UpdateTransactionInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Transaction")).Return(nil).Once()
	suite.outboxRepo.On("StageEventInTx", ctx, mock.Anything, mock.AnythingOfType("domain.OutboxEvent")).Return(nil).Once()
	suite.txManager.On("Commit", ctx, mock.Anything).Return(nil).Once()

	verified, err := suite.service.VerifyCustomer(ctx, "txn-1", dto.VerifyCustomerRequest{Method: domain.VerifyPIN}, "agent-1")

	suite.Require().NoError(err)
	suite.True(verified.PINVerified)
	suite.True(verified.CustomerVerified)
	suite.Equal(domain.TxnPending, verified.Status)
}

func (suite *TransactionServiceTestSuite) TestVerifyCustomer_HighRiskNeedsBiometric() {
	ctx := context.Background()
	txn := pendingTransaction()
	txn.RiskScore = 85

	suite.expectUnitOfWork()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", true).Return(txn, nil)
	suite.txnRepo.On("UpdateTransactionInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Transaction")).Return(nil)
	suite.outboxRepo.On("StageEventInTx", ctx, mock.Anything, mock.AnythingOfType("domain.OutboxEvent")).Return(nil)
	suite.txManager.On("Commit", ctx, mock.Anything).Return(nil)

	afterPIN, err := suite.service.VerifyCustomer(ctx, "txn-1", dto.VerifyCustomerRequest{Method: domain.VerifyPIN}, "agent-1")
	suite.Require().NoError(err)
	suite.False(afterPIN.CustomerVerified)

	afterBiometric, err := suite.service.VerifyCustomer(ctx, "txn-1", dto.VerifyCustomerRequest{Method: domain.VerifyBiometric}, "agent-1")
	suite.Require().NoError(err)
	suite.True(afterBiometric.CustomerVerified)
}

func (suite *TransactionServiceTestSuite) TestGetTransaction_ReadsRepository() {
	ctx := context.Background()
	txn := pendingTransaction()

	suite.txnRepo.On("FindTransactionByID", ctx, "txn-1").Return(txn, nil).Once()

	got, err := suite.service.GetTransaction(ctx, "txn-1")

	suite.Require().NoError(err)
	suite.Equal(txn, got)
	suite.txnRepo.AssertExpectations(suite.T())
}

func TestTransactionServiceTestSuite(t *testing.T) {
	suite.Run(t, new(TransactionServiceTestSuite))
}
