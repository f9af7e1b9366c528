package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/primebank/agent_banking_core/internal/apperrors"
	"github.com/primebank/agent_banking_core/internal/core/domain"
	portssvc "github.com/primebank/agent_banking_core/internal/core/ports/services"
	"github.com/primebank/agent_banking_core/internal/core/services"
	"github.com/primebank/agent_banking_core/internal/dto"
)

type ProcessingServiceTestSuite struct {
	suite.Suite
	txManager   *MockTxManager
	txnRepo     *MockTransactionRepository
	accountRepo *MockAccountRepository
	receiptRepo *MockReceiptRepository
	outboxRepo  *MockOutboxRepository
	fees        *MockFeeCalculator
	service     portssvc.ProcessingSvcFacade
}

func (suite *ProcessingServiceTestSuite) SetupTest() {
	suite.txManager = new(MockTxManager)
	suite.txnRepo = new(MockTransactionRepository)
	suite.accountRepo = new(MockAccountRepository)
	suite.receiptRepo = new(MockReceiptRepository)
	suite.outboxRepo = new(MockOutboxRepository)
	suite.fees = new(MockFeeCalculator)
	suite.service = services.NewProcessingService(
		suite.txManager,
		suite.txnRepo,
		suite.accountRepo,
		suite.receiptRepo,
		suite.outboxRepo,
		suite.fees,
		nil,
	)
}

func (suite *ProcessingServiceTestSuite) expectUnitOfWork() {
	suite.txManager.On("Begin", mock.Anything).Return(nil, nil)
	suite.txManager.On("Rollback", mock.Anything, mock.Anything).Return(nil)
}

// approvedWithdrawal carries an active hold of 102 against a 100 withdrawal
// with 2 in fees, mirroring the state creation leaves behind.
func approvedWithdrawal() *domain.Transaction {
	future := time.Now().UTC().Add(20 * time.Minute)
	approvedAt := time.Now().UTC().Add(-5 * time.Minute)
	return &domain.Transaction{
		TransactionID:     "txn-1",
		TransactionNumber: "TXN-20260310-ABCDEF01",
		CustomerID:        "cust-1",
		AccountID:         "acc-1",
		AgentID:           "agent-1",
		Type:              domain.Withdrawal,
		Status:            domain.TxnApproved,
		Amount:            d("100"),
		FeeAmount:         d("2"),
		TotalAmount:       d("102"),
		CurrencyCode:      "USD",
		ApprovedBy:        "manager-1",
		ApprovedAt:        &approvedAt,
		HoldPlaced:        true,
		HoldAmount:        d("102"),
		HoldReference:     "HOLD-1",
		HoldExpiresAt:     &future,
		MaxRetries:        domain.DefaultMaxRetries,
	}
}

// heldAccount mirrors approvedWithdrawal: 1000 on the books with 102 reserved.
func heldAccount() *domain.Account {
	return &domain.Account{
		AccountID:        "acc-1",
		CustomerID:       "cust-1",
		AccountType:      domain.Savings,
		CurrencyCode:     "USD",
		Status:           domain.AccountActive,
		CurrentBalance:   d("1000"),
		AvailableBalance: d("898"),
		LedgerBalance:    d("1000"),
		HoldAmount:       d("102"),
	}
}

func (suite *ProcessingServiceTestSuite) TestProcessTransaction_CompletesWithdrawal() {
	ctx := context.Background()
	txn := approvedWithdrawal()
	account := heldAccount()

	suite.expectUnitOfWork()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", false).Return(txn, nil).Once()
	suite.accountRepo.On("FindAccountForUpdate", ctx, mock.Anything, "acc-1", false).Return(account, nil).Once()
	suite.fees.On("Calculate", domain.Savings, domain.Withdrawal, mock.Anything, mock.Anything).
		Return(dto.FeeResult{TotalFees: d("2")}).Once()

	var updatedAccount domain.Account
	suite.accountRepo.On("UpdateAccountBalancesInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Account")).
		Run(func(args mock.Arguments) { updatedAccount = args.Get(2).(domain.Account) }).
		Return(nil).Once()

	var updatedTxn domain.Transaction
	suite.txnRepo.On("UpdateTransactionInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Transaction")).
		Run(func(args mock.Arguments) { updatedTxn = args.Get(2).(domain.Transaction) }).
		Return(nil).Once()
	suite.receiptRepo.On("SaveReceiptInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Receipt")).Return(nil).Once()
	suite.outboxRepo.On("StageEventInTx", ctx, mock.Anything, mock.AnythingOfType("domain.OutboxEvent")).Return(nil).Once()
	suite.txManager.On("Commit", ctx, mock.Anything).Return(nil).Once()

	receipt, err := suite.service.ProcessTransaction(ctx, "txn-1", "operator-1")

	suite.Require().NoError(err)
	suite.Require().NotNil(receipt)
	suite.Equal(domain.ReceiptCompletion, receipt.Kind)
	suite.Equal("txn-1", receipt.TransactionID)
	suite.True(d("898").Equal(receipt.BalanceAfter))
	suite.NotEmpty(receipt.ReceiptNumber)

	// The hold is consumed, then the full debit lands on all three balances.
	suite.True(d("898").Equal(updatedAccount.CurrentBalance))
	suite.True(d("898").Equal(updatedAccount.AvailableBalance))
	suite.True(d("898").Equal(updatedAccount.LedgerBalance))
	suite.True(updatedAccount.HoldAmount.IsZero())
	suite.Require().NotNil(updatedAccount.LastTransactionAt)

	suite.Equal(domain.TxnCompleted, updatedTxn.Status)
	suite.True(d("1000").Equal(updatedTxn.BalanceBefore))
	suite.True(d("898").Equal(updatedTxn.BalanceAfter))
	suite.False(updatedTxn.HoldPlaced)
	suite.Require().NotNil(updatedTxn.CompletedAt)
	suite.txManager.AssertExpectations(suite.T())
}

func (suite *ProcessingServiceTestSuite) TestProcessTransaction_RefusesNonApproved() {
	ctx := context.Background()
	txn := approvedWithdrawal()
	txn.Status = domain.TxnPending

	suite.expectUnitOfWork()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", false).Return(txn, nil).Once()

	receipt, err := suite.service.ProcessTransaction(ctx, "txn-1", "operator-1")

	suite.Require().Error(err)
	suite.Nil(receipt)
	suite.ErrorIs(err, apperrors.ErrInvalidState)
	suite.txManager.AssertNotCalled(suite.T(), "Commit", mock.Anything, mock.Anything)
}

func (suite *ProcessingServiceTestSuite) TestProcessTransaction_InsufficientFundsCommitsFailure() {
	ctx := context.Background()
	txn := approvedWithdrawal()
	txn.HoldPlaced = false
	txn.HoldAmount = decimal.Zero
	txn.HoldReference = ""
	txn.HoldExpiresAt = nil
	account := heldAccount()
	account.AvailableBalance = d("50")
	account.HoldAmount = decimal.Zero

	suite.expectUnitOfWork()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", false).Return(txn, nil).Once()
	suite.accountRepo.On("FindAccountForUpdate", ctx, mock.Anything, "acc-1", false).Return(account, nil).Once()
	suite.fees.On("Calculate", domain.Savings, domain.Withdrawal, mock.Anything, mock.Anything).
		Return(dto.FeeResult{TotalFees: d("2")}).Once()

	var failedTxn domain.Transaction
	suite.txnRepo.On("UpdateTransactionInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Transaction")).
		Run(func(args mock.Arguments) { failedTxn = args.Get(2).(domain.Transaction) }).
		Return(nil).Once()
	suite.outboxRepo.On("StageEventInTx", ctx, mock.Anything, mock.AnythingOfType("domain.OutboxEvent")).Return(nil).Once()
	suite.txManager.On("Commit", ctx, mock.Anything).Return(nil).Once()

	receipt, err := suite.service.ProcessTransaction(ctx, "txn-1", "operator-1")

	suite.Require().Error(err)
	suite.Nil(receipt)
	suite.ErrorIs(err, apperrors.ErrInsufficientFunds)

	// The failed attempt is committed so the record survives.
	suite.Equal(domain.TxnFailed, failedTxn.Status)
	suite.NotEmpty(failedTxn.LastError)
	suite.Require().NotNil(failedTxn.ProcessedAt, "the failed attempt records when processing started")
	suite.txManager.AssertExpectations(suite.T())
	suite.accountRepo.AssertNotCalled(suite.T(), "UpdateAccountBalancesInTx", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *ProcessingServiceTestSuite) TestProcessTransaction_ExpiredHoldFailsAndReleases() {
	ctx := context.Background()
	txn := approvedWithdrawal()
	past := time.Now().UTC().Add(-time.Minute)
	txn.HoldExpiresAt = &past
	account := heldAccount()

	suite.expectUnitOfWork()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", false).Return(txn, nil).Once()
	suite.accountRepo.On("FindAccountForUpdate", ctx, mock.Anything, "acc-1", false).Return(account, nil).Once()

	var releasedAccount domain.Account
	suite.accountRepo.On("UpdateAccountBalancesInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Account")).
		Run(func(args mock.Arguments) { releasedAccount = args.Get(2).(domain.Account) }).
		Return(nil).Once()
	suite.txnRepo.On("UpdateTransactionInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Transaction")).Return(nil).Once()
	suite.outboxRepo.On("StageEventInTx", ctx, mock.Anything, mock.AnythingOfType("domain.OutboxEvent")).Return(nil).Once()
	suite.txManager.On("Commit", ctx, mock.Anything).Return(nil).Once()

	receipt, err := suite.service.ProcessTransaction(ctx, "txn-1", "operator-1")

	suite.Require().Error(err)
	suite.Nil(receipt)
	suite.ErrorIs(err, apperrors.ErrExpired)
	suite.True(d("1000").Equal(releasedAccount.AvailableBalance))
	suite.True(releasedAccount.HoldAmount.IsZero())
}

func (suite *ProcessingServiceTestSuite) TestReverseTransaction_Success() {
	ctx := context.Background()
	completedAt := time.Now().UTC().Add(-2 * time.Hour)
	original := approvedWithdrawal()
	original.Status = domain.TxnCompleted
	original.CompletedAt = &completedAt
	original.HoldPlaced = false
	original.HoldAmount = decimal.Zero
	account := heldAccount()
	account.CurrentBalance = d("898")
	account.AvailableBalance = d("898")
	account.LedgerBalance = d("898")
	account.HoldAmount = decimal.Zero

	suite.expectUnitOfWork()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", false).Return(original, nil).Once()
	suite.accountRepo.On("FindAccountForUpdate", ctx, mock.Anything, "acc-1", false).Return(account, nil).Once()

	var updatedAccount domain.Account
	suite.accountRepo.On("UpdateAccountBalancesInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Account")).
		Run(func(args mock.Arguments) { updatedAccount = args.Get(2).(domain.Account) }).
		Return(nil).Once()

	var savedReversal domain.Transaction
	suite.txnRepo.On("SaveTransactionInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Transaction")).
		Run(func(args mock.Arguments) { savedReversal = args.Get(2).(domain.Transaction) }).
		Return(nil).Once()

	var updatedOriginal domain.Transaction
	suite.txnRepo.On("UpdateTransactionInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Transaction")).
		Run(func(args mock.Arguments) { updatedOriginal = args.Get(2).(domain.Transaction) }).
		Return(nil).Once()
	suite.receiptRepo.On("SaveReceiptInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Receipt")).Return(nil).Once()
	suite.outboxRepo.On("StageEventInTx", ctx, mock.Anything, mock.AnythingOfType("domain.OutboxEvent")).Return(nil).Once()
	suite.txManager.On("Commit", ctx, mock.Anything).Return(nil).Once()

	reversal, err := suite.service.ReverseTransaction(ctx, "txn-1", "manager-1", "teller error")

	suite.Require().NoError(err)
	suite.Require().NotNil(reversal)
	suite.Equal(domain.Reversal, reversal.Type)
	suite.Equal(domain.TxnCompleted, reversal.Status)
	suite.True(reversal.IsReversal)
	// The reversal restores the exact effective amount of the original.
	suite.True(d("102").Equal(reversal.Amount))
	suite.True(reversal.FeeAmount.IsZero())
	suite.Require().NotNil(reversal.OriginalTransactionID)
	suite.Equal("txn-1", *reversal.OriginalTransactionID)

	suite.True(d("1000").Equal(updatedAccount.CurrentBalance))
	suite.True(d("1000").Equal(updatedAccount.AvailableBalance))
	suite.True(d("1000").Equal(updatedAccount.LedgerBalance))

	suite.Equal(domain.TxnReversed, updatedOriginal.Status)
	suite.True(updatedOriginal.Reversed)
	suite.Require().NotNil(updatedOriginal.ReversingTransactionID)
	suite.Equal(savedReversal.TransactionID, *updatedOriginal.ReversingTransactionID)
}

func (suite *ProcessingServiceTestSuite) TestReverseTransaction_WindowExpired() {
	ctx := context.Background()
	completedAt := time.Now().UTC().Add(-25 * time.Hour)
	original := approvedWithdrawal()
	original.Status = domain.TxnCompleted
	original.CompletedAt = &completedAt

	suite.expectUnitOfWork()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", false).Return(original, nil).Once()

	reversal, err := suite.service.ReverseTransaction(ctx, "txn-1", "manager-1", "late request")

	suite.Require().Error(err)
	suite.Nil(reversal)
	suite.ErrorIs(err, apperrors.ErrExpired)
	suite.txManager.AssertNotCalled(suite.T(), "Commit", mock.Anything, mock.Anything)
}

func (suite *ProcessingServiceTestSuite) TestReverseTransaction_AlreadyReversed() {
	ctx := context.Background()
	completedAt := time.Now().UTC().Add(-time.Hour)
	original := approvedWithdrawal()
	original.Status = domain.TxnCompleted
	original.CompletedAt = &completedAt
	original.Reversed = true

	suite.expectUnitOfWork()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", false).Return(original, nil).Once()

	_, err := suite.service.ReverseTransaction(ctx, "txn-1", "manager-1", "duplicate request")

	suite.Require().Error(err)
	suite.ErrorIs(err, apperrors.ErrInvalidState)
}

func (suite *ProcessingServiceTestSuite) TestRetry_ResetsToPending() {
	ctx := context.Background()
	txn := approvedWithdrawal()
	txn.Status = domain.TxnFailed
	txn.RetryCount = 1
	txn.LastError = "account busy"
	txn.HoldPlaced = false
	txn.HoldAmount = decimal.Zero

	suite.expectUnitOfWork()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", true).Return(txn, nil).Once()
	suite.txnRepo.On("UpdateTransactionInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Transaction")).Return(nil).Once()
	suite.txManager.On("Commit", ctx, mock.Anything).Return(nil).Once()

	retried, err := suite.service.Retry(ctx, "txn-1", "operator-1")

	suite.Require().NoError(err)
	// The retried transaction goes back through approval.
	suite.Equal(domain.TxnPending, retried.Status)
	suite.Empty(retried.ApprovedBy)
	suite.Nil(retried.ApprovedAt)
	suite.Equal(2, retried.RetryCount)
	suite.Empty(retried.LastError)
	suite.Nil(retried.ProcessedAt)
}

func (suite *ProcessingServiceTestSuite) TestRetry_MaxRetriesExceeded() {
	ctx := context.Background()
	txn := approvedWithdrawal()
	txn.Status = domain.TxnFailed
	txn.RetryCount = domain.DefaultMaxRetries

	suite.expectUnitOfWork()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", true).Return(txn, nil).Once()

	_, err := suite.service.Retry(ctx, "txn-1", "operator-1")

	suite.Require().Error(err)
	suite.ErrorIs(err, apperrors.ErrMaxRetriesExceeded)
	suite.txManager.AssertNotCalled(suite.T(), "Commit", mock.Anything, mock.Anything)
}

func (suite *ProcessingServiceTestSuite) TestProcessBatch_IsolatesFailures() {
	ctx := context.Background()
	txn := approvedWithdrawal()
	account := heldAccount()

	suite.expectUnitOfWork()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", false).Return(txn, nil).Once()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-missing", false).
		Return(nil, apperrors.ErrNotFound).Once()
	suite.accountRepo.On("FindAccountForUpdate", ctx, mock.Anything, "acc-1", false).Return(account, nil).Once()
	suite.fees.On("Calculate", domain.Savings, domain.Withdrawal, mock.Anything, mock.Anything).
		Return(dto.FeeResult{TotalFees: d("2")}).Once()
	suite.accountRepo.On("UpdateAccountBalancesInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Account")).Return(nil).Once()
	suite.txnRepo.On("UpdateTransactionInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Transaction")).Return(nil).Once()
	suite.receiptRepo.On("SaveReceiptInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Receipt")).Return(nil).Once()
	suite.outboxRepo.On("StageEventInTx", ctx, mock.Anything, mock.AnythingOfType("domain.OutboxEvent")).Return(nil).Once()
	suite.txManager.On("Commit", ctx, mock.Anything).Return(nil).Once()

	results := suite.service.ProcessBatch(ctx, []string{"txn-1", "txn-missing"}, "operator-1")

	suite.Len(results, 2)
	suite.NoError(results["txn-1"])
	suite.ErrorIs(results["txn-missing"], apperrors.ErrNotFound)
}

func (suite *ProcessingServiceTestSuite) TestProcessTransaction_ConcurrentAttemptsOneWins() {
	ctx := context.Background()
	txn := approvedWithdrawal()
	account := heldAccount()

	suite.expectUnitOfWork()
	// The transaction row is locked NOWAIT: the first caller gets the row, the
	// second bounces off with ErrBusy instead of queueing behind the lock.
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", false).Return(txn, nil).Once()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", false).Return(nil, apperrors.ErrBusy).Once()

	suite.accountRepo.On("FindAccountForUpdate", ctx, mock.Anything, "acc-1", false).Return(account, nil).Once()
	suite.fees.On("Calculate", domain.Savings, domain.Withdrawal, mock.Anything, mock.Anything).
		Return(dto.FeeResult{TotalFees: d("2")}).Once()
	suite.accountRepo.On("UpdateAccountBalancesInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Account")).Return(nil).Once()
	suite.txnRepo.On("UpdateTransactionInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Transaction")).Return(nil).Once()
	suite.receiptRepo.On("SaveReceiptInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Receipt")).Return(nil).Once()
	suite.outboxRepo.On("StageEventInTx", ctx, mock.Anything, mock.AnythingOfType("domain.OutboxEvent")).Return(nil).Once()
	suite.txManager.On("Commit", ctx, mock.Anything).Return(nil).Once()

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = suite.service.ProcessTransaction(ctx, "txn-1", "operator-1")
		}(i)
	}
	wg.Wait()

	var succeeded, busy int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, apperrors.ErrBusy):
			busy++
		}
	}
	suite.Equal(1, succeeded)
	suite.Equal(1, busy)
	suite.txManager.AssertExpectations(suite.T())
}

func (suite *ProcessingServiceTestSuite) TestProcessTransaction_SecondWithdrawalCannotOvercommit() {
	ctx := context.Background()
	first := approvedWithdrawal()
	account := heldAccount()

	// A second approved withdrawal against the same account, with no hold of
	// its own, sized so the account cannot fund both.
	second := approvedWithdrawal()
	second.TransactionID = "txn-2"
	second.TransactionNumber = "TXN-20260310-ABCDEF02"
	second.Amount = d("900")
	second.FeeAmount = d("2")
	second.TotalAmount = d("902")
	second.HoldPlaced = false
	second.HoldAmount = decimal.Zero
	second.HoldReference = ""
	second.HoldExpiresAt = nil

	suite.expectUnitOfWork()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-1", false).Return(first, nil).Once()
	suite.txnRepo.On("FindTransactionForUpdate", ctx, mock.Anything, "txn-2", false).Return(second, nil).Once()
	// Serialized account locks: the second caller reads the balances the first
	// one left behind, not the snapshot it started from.
	suite.accountRepo.On("FindAccountForUpdate", ctx, mock.Anything, "acc-1", false).Return(account, nil).Twice()
	suite.fees.On("Calculate", domain.Savings, domain.Withdrawal, mock.Anything, mock.Anything).
		Return(dto.FeeResult{TotalFees: d("2")}).Twice()
	suite.accountRepo.On("UpdateAccountBalancesInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Account")).Return(nil).Once()

	var updatedTxns []domain.Transaction
	suite.txnRepo.On("UpdateTransactionInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Transaction")).
		Run(func(args mock.Arguments) { updatedTxns = append(updatedTxns, args.Get(2).(domain.Transaction)) }).
		Return(nil).Twice()
	suite.receiptRepo.On("SaveReceiptInTx", ctx, mock.Anything, mock.AnythingOfType("domain.Receipt")).Return(nil).Once()
	suite.outboxRepo.On("StageEventInTx", ctx, mock.Anything, mock.AnythingOfType("domain.OutboxEvent")).Return(nil).Twice()
	suite.txManager.On("Commit", ctx, mock.Anything).Return(nil).Twice()

	_, err := suite.service.ProcessTransaction(ctx, "txn-1", "operator-1")
	suite.Require().NoError(err)
	suite.True(d("898").Equal(account.AvailableBalance))

	_, err = suite.service.ProcessTransaction(ctx, "txn-2", "operator-1")
	suite.Require().Error(err)
	suite.ErrorIs(err, apperrors.ErrInsufficientFunds)

	suite.Require().Len(updatedTxns, 2)
	suite.Equal(domain.TxnCompleted, updatedTxns[0].Status)
	suite.Equal(domain.TxnFailed, updatedTxns[1].Status)
	// The account never went below what it could fund.
	suite.True(d("898").Equal(account.CurrentBalance))
}

func TestProcessingServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ProcessingServiceTestSuite))
}
