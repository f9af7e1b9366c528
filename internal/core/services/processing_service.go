package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"github.com/primebank/agent_banking_core/internal/apperrors"
	"github.com/primebank/agent_banking_core/internal/core/domain"
	portsrepo "github.com/primebank/agent_banking_core/internal/core/ports/repositories"
	portssvc "github.com/primebank/agent_banking_core/internal/core/ports/services"
	"github.com/primebank/agent_banking_core/internal/dto"
	"github.com/primebank/agent_banking_core/internal/middleware"
)

// BatchConcurrency bounds how many transactions a batch processes in parallel.
const BatchConcurrency = 5

// processingService commits money movement. Every operation is a single unit
// of work over one pgx transaction; balance rows are taken NOWAIT so a
// contended account fails fast with ErrBusy instead of queueing.
type processingService struct {
	txManager   portsrepo.TransactionManager
	txnRepo     portsrepo.TransactionRepositoryFacade
	accountRepo portsrepo.AccountRepositoryFacade
	receiptRepo portsrepo.ReceiptRepositoryFacade
	outboxRepo  portsrepo.OutboxRepositoryFacade
	fees        portssvc.FeeCalculator
	cache       portssvc.SnapshotCache
}

// NewProcessingService creates a new ProcessingService.
func NewProcessingService(
	txManager portsrepo.TransactionManager,
	txnRepo portsrepo.TransactionRepositoryFacade,
	accountRepo portsrepo.AccountRepositoryFacade,
	receiptRepo portsrepo.ReceiptRepositoryFacade,
	outboxRepo portsrepo.OutboxRepositoryFacade,
	fees portssvc.FeeCalculator,
	cache portssvc.SnapshotCache,
) portssvc.ProcessingSvcFacade {
	return &processingService{
		txManager:   txManager,
		txnRepo:     txnRepo,
		accountRepo: accountRepo,
		receiptRepo: receiptRepo,
		outboxRepo:  outboxRepo,
		fees:        fees,
		cache:       cache,
	}
}

var _ portssvc.ProcessingSvcFacade = (*processingService)(nil)

// ProcessTransaction moves an approved transaction through PROCESSING to
// COMPLETED: fee recomputation, funds check, hold consumption, balance delta,
// receipt and completion event commit or roll back together. A business
// failure after the transaction row is locked commits the FAILED state so the
// attempt is recorded.
func (s *processingService) ProcessTransaction(ctx context.Context, transactionID string, actor string) (*domain.Receipt, error) {
	logger := middleware.GetLoggerFromCtx(ctx)
	started := time.Now()

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.txManager.Rollback(ctx, tx)

	txn, err := s.txnRepo.FindTransactionForUpdate(ctx, tx, transactionID, false)
	if err != nil {
		return nil, err
	}
	if txn.Status != domain.TxnApproved {
		return nil, fmt.Errorf("%w: transaction is %s, expected APPROVED", apperrors.ErrInvalidState, txn.Status)
	}

	now := time.Now().UTC()

	if txn.HoldPlaced && txn.HoldExpiresAt != nil && txn.HoldExpiresAt.Before(now) {
		return nil, s.failWithin(ctx, tx, txn, actor, now,
			fmt.Errorf("%w: hold %s expired at %s", apperrors.ErrExpired, txn.HoldReference, txn.HoldExpiresAt.Format(time.RFC3339)))
	}

	account, err := s.accountRepo.FindAccountForUpdate(ctx, tx, txn.AccountID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account %s: %w", txn.AccountID, err)
	}
	if !account.IsTransactable() {
		return nil, s.failWithin(ctx, tx, txn, actor, now,
			fmt.Errorf("%w: account %s is %s", apperrors.ErrProcessingFailure, account.AccountID, account.Status))
	}

	// Processing-time fees are authoritative; the creation-time figure was an
	// estimate and conditions may have changed since.
	if txn.Type != domain.Reversal {
		feeResult := s.fees.Calculate(account.AccountType, txn.Type, txn.Amount, dto.FeeContext{
			RiskScore: txn.RiskScore,
			At:        now,
			Priority:  txn.Priority,
		})
		txn.FeeAmount = feeResult.TotalFees
		txn.TotalAmount = txn.Amount.Add(feeResult.TotalFees)
	}

	delta := txn.EffectiveAmount()
	if delta.IsNegative() {
		held := decimal.Zero
		if txn.HasActiveHold() {
			held = txn.HoldAmount
		}
		usable := account.AvailableBalance.Add(held).Add(account.OverdraftLimit)
		if usable.LessThan(delta.Neg()) {
			return nil, s.failWithin(ctx, tx, txn, actor, now,
				fmt.Errorf("%w: usable %s, required %s", apperrors.ErrInsufficientFunds, usable, delta.Neg()))
		}
	}

	txn.Status = domain.TxnProcessing
	processedAt := now
	txn.ProcessedAt = &processedAt
	txn.AppendAudit("processing_started", actor, now, nil)

	txn.BalanceBefore = account.CurrentBalance
	txn.AvailableBefore = account.AvailableBalance

	if applyHoldRelease(account, txn) {
		txn.AppendAudit("hold_consumed", actor, now, nil)
	}

	account.CurrentBalance = account.CurrentBalance.Add(delta)
	account.AvailableBalance = account.AvailableBalance.Add(delta)
	account.LedgerBalance = account.LedgerBalance.Add(delta)
	lastTxn := now
	account.LastTransactionAt = &lastTxn

	txn.BalanceAfter = account.CurrentBalance
	txn.AvailableAfter = account.AvailableBalance

	completedAt := time.Now().UTC()
	txn.Status = domain.TxnCompleted
	txn.CompletedAt = &completedAt
	txn.ProcessingTimeMs = time.Since(started).Milliseconds()
	txn.LastError = ""
	txn.LastUpdatedAt = completedAt
	txn.LastUpdatedBy = actor
	txn.AppendAudit("completed", actor, completedAt, map[string]string{
		"balance_after": account.CurrentBalance.String(),
	})

	receipt := s.buildReceipt(txn, domain.ReceiptCompletion, account.CurrentBalance, completedAt)

	if err := s.accountRepo.UpdateAccountBalancesInTx(ctx, tx, *account); err != nil {
		return nil, fmt.Errorf("failed to update account balances: %w", err)
	}
	if err := s.txnRepo.UpdateTransactionInTx(ctx, tx, *txn); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	if err := s.receiptRepo.SaveReceiptInTx(ctx, tx, receipt); err != nil {
		return nil, fmt.Errorf("failed to save receipt: %w", err)
	}
	if err := s.stageEvent(ctx, tx, domain.DomainEvent{
		EventType:  domain.EventTransactionCompleted,
		EntityID:   txn.TransactionID,
		Actor:      actor,
		Amount:     txn.Amount,
		FeeAmount:  txn.FeeAmount,
		Currency:   txn.CurrencyCode,
		OccurredAt: completedAt,
		AccountID:  txn.AccountID,
		CustomerID: txn.CustomerID,
	}); err != nil {
		return nil, err
	}
	if err := s.txManager.Commit(ctx, tx); err != nil {
		return nil, err
	}

	s.invalidate(ctx, txn)

	logger.Info("Transaction completed",
		slog.String("transaction_id", txn.TransactionID),
		slog.String("receipt_number", receipt.ReceiptNumber),
		slog.Int64("processing_time_ms", txn.ProcessingTimeMs),
	)
	return &receipt, nil
}

// ReverseTransaction creates, processes and commits a linked reversal of a
// completed transaction in one unit of work. The reversal applies the exact
// inverse of the original's effective amount and charges no fee of its own.
func (s *processingService) ReverseTransaction(ctx context.Context, originalID string, actor string, reason string) (*domain.Transaction, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	if reason == "" {
		return nil, fmt.Errorf("%w: reversal reason is required", apperrors.ErrValidation)
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.txManager.Rollback(ctx, tx)

	original, err := s.txnRepo.FindTransactionForUpdate(ctx, tx, originalID, false)
	if err != nil {
		return nil, err
	}
	if original.Status != domain.TxnCompleted {
		return nil, fmt.Errorf("%w: transaction is %s, only COMPLETED may be reversed", apperrors.ErrInvalidState, original.Status)
	}
	if original.Reversed || original.ReversingTransactionID != nil {
		return nil, fmt.Errorf("%w: transaction already reversed", apperrors.ErrInvalidState)
	}
	now := time.Now().UTC()
	if original.CompletedAt == nil || now.Sub(*original.CompletedAt) > domain.ReversalWindow {
		return nil, fmt.Errorf("%w: reversal window of %s has passed", apperrors.ErrExpired, domain.ReversalWindow)
	}

	account, err := s.accountRepo.FindAccountForUpdate(ctx, tx, original.AccountID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account %s: %w", original.AccountID, err)
	}

	delta := original.EffectiveAmount().Neg()
	if delta.IsNegative() && account.UsableBalance().LessThan(delta.Neg()) {
		return nil, fmt.Errorf("%w: usable %s, reversal requires %s", apperrors.ErrInsufficientFunds, account.UsableBalance(), delta.Neg())
	}

	reversal := domain.Transaction{
		TransactionID:         uuid.NewString(),
		TransactionNumber:     newTransactionNumber(now),
		CustomerID:            original.CustomerID,
		AccountID:             original.AccountID,
		AgentID:               original.AgentID,
		Type:                  domain.Reversal,
		Status:                domain.TxnProcessing,
		Channel:               original.Channel,
		Priority:              original.Priority,
		Description:           "Reversal of " + original.TransactionNumber + ": " + reason,
		Amount:                delta,
		FeeAmount:             decimal.Zero,
		TotalAmount:           delta.Abs(),
		CurrencyCode:          original.CurrencyCode,
		IsReversal:            true,
		OriginalTransactionID: &original.TransactionID,
		MaxRetries:            domain.DefaultMaxRetries,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     actor,
			LastUpdatedAt: now,
			LastUpdatedBy: actor,
		},
	}
	reversal.AppendAudit("created", actor, now, map[string]string{
		"original_transaction_id": original.TransactionID,
		"reason":                  reason,
	})

	reversal.BalanceBefore = account.CurrentBalance
	reversal.AvailableBefore = account.AvailableBalance

	account.CurrentBalance = account.CurrentBalance.Add(delta)
	account.AvailableBalance = account.AvailableBalance.Add(delta)
	account.LedgerBalance = account.LedgerBalance.Add(delta)
	lastTxn := now
	account.LastTransactionAt = &lastTxn

	reversal.BalanceAfter = account.CurrentBalance
	reversal.AvailableAfter = account.AvailableBalance
	reversal.Status = domain.TxnCompleted
	completedAt := now
	reversal.CompletedAt = &completedAt
	reversal.ProcessedAt = &completedAt
	reversal.AppendAudit("completed", actor, now, nil)

	original.Status = domain.TxnReversed
	original.Reversed = true
	original.ReversingTransactionID = &reversal.TransactionID
	original.LastUpdatedAt = now
	original.LastUpdatedBy = actor
	original.AppendAudit("reversed", actor, now, map[string]string{
		"reversal_transaction_id": reversal.TransactionID,
		"reason":                  reason,
	})

	receipt := s.buildReceipt(&reversal, domain.ReceiptReversal, account.CurrentBalance, now)

	if err := s.accountRepo.UpdateAccountBalancesInTx(ctx, tx, *account); err != nil {
		return nil, fmt.Errorf("failed to update account balances: %w", err)
	}
	if err := s.txnRepo.SaveTransactionInTx(ctx, tx, reversal); err != nil {
		return nil, fmt.Errorf("failed to save reversal transaction: %w", err)
	}
	if err := s.txnRepo.UpdateTransactionInTx(ctx, tx, *original); err != nil {
		return nil, fmt.Errorf("failed to update original transaction: %w", err)
	}
	if err := s.receiptRepo.SaveReceiptInTx(ctx, tx, receipt); err != nil {
		return nil, fmt.Errorf("failed to save receipt: %w", err)
	}
	if err := s.stageEvent(ctx, tx, domain.DomainEvent{
		EventType:  domain.EventTransactionReversed,
		EntityID:   original.TransactionID,
		Actor:      actor,
		Amount:     delta,
		OccurredAt: now,
		Detail:     reason,
		AccountID:  original.AccountID,
		CustomerID: original.CustomerID,
	}); err != nil {
		return nil, err
	}
	if err := s.txManager.Commit(ctx, tx); err != nil {
		return nil, err
	}

	s.invalidate(ctx, original)
	if s.cache != nil {
		s.cache.InvalidateTransaction(ctx, reversal.TransactionID)
	}

	logger.Info("Transaction reversed",
		slog.String("original_transaction_id", original.TransactionID),
		slog.String("reversal_transaction_id", reversal.TransactionID),
	)
	return &reversal, nil
}

// Retry resets a failed transaction to pending for another attempt. Approval
// stamps from before the failure are cleared; the transaction goes back
// through approval. The orchestrator never retries on its own; retries are
// always caller-driven.
func (s *processingService) Retry(ctx context.Context, transactionID string, actor string) (*domain.Transaction, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.txManager.Rollback(ctx, tx)

	txn, err := s.txnRepo.FindTransactionForUpdate(ctx, tx, transactionID, true)
	if err != nil {
		return nil, err
	}
	if txn.Status != domain.TxnFailed {
		return nil, fmt.Errorf("%w: transaction is %s, only FAILED may be retried", apperrors.ErrInvalidState, txn.Status)
	}
	if txn.RetryCount >= txn.MaxRetries {
		return nil, fmt.Errorf("%w: %d of %d attempts used", apperrors.ErrMaxRetriesExceeded, txn.RetryCount, txn.MaxRetries)
	}

	now := time.Now().UTC()
	txn.RetryCount++
	txn.Status = domain.TxnPending
	txn.ApprovedBy = ""
	txn.ApprovedAt = nil
	txn.LastError = ""
	txn.ProcessedAt = nil
	txn.LastUpdatedAt = now
	txn.LastUpdatedBy = actor
	txn.AppendAudit("retry_requested", actor, now, map[string]string{
		"attempt": fmt.Sprintf("%d", txn.RetryCount),
	})

	if err := s.txnRepo.UpdateTransactionInTx(ctx, tx, *txn); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	if err := s.txManager.Commit(ctx, tx); err != nil {
		return nil, err
	}

	s.invalidate(ctx, txn)

	logger.Info("Transaction retry requested",
		slog.String("transaction_id", txn.TransactionID),
		slog.Int("retry_count", txn.RetryCount),
	)
	return txn, nil
}

// ProcessBatch processes transactions with bounded concurrency. Failures are
// isolated per item; the returned map carries one entry per requested ID, nil
// on success.
func (s *processingService) ProcessBatch(ctx context.Context, transactionIDs []string, actor string) map[string]error {
	results := make(map[string]error, len(transactionIDs))
	if len(transactionIDs) == 0 {
		return results
	}

	sem := semaphore.NewWeighted(BatchConcurrency)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, id := range transactionIDs {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			results[id] = err
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(transactionID string) {
			defer wg.Done()
			defer sem.Release(1)
			_, err := s.ProcessTransaction(ctx, transactionID, actor)
			mu.Lock()
			results[transactionID] = err
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return results
}

// failWithin commits the FAILED state on the already-locked transaction,
// releasing any hold, then returns cause. The failed attempt is durable even
// though the balance never moved. An approved transaction passes through
// PROCESSING on its way to FAILED; the attempt itself is what failed.
func (s *processingService) failWithin(ctx context.Context, tx pgx.Tx, txn *domain.Transaction, actor string, now time.Time, cause error) error {
	if txn.Status == domain.TxnApproved {
		txn.Status = domain.TxnProcessing
		processedAt := now
		txn.ProcessedAt = &processedAt
	}
	txn.Status = domain.TxnFailed
	txn.LastError = cause.Error()
	txn.LastUpdatedAt = now
	txn.LastUpdatedBy = actor
	txn.AppendAudit("failed", actor, now, map[string]string{"error": cause.Error()})

	if txn.HasActiveHold() {
		account, err := s.accountRepo.FindAccountForUpdate(ctx, tx, txn.AccountID, false)
		if err == nil {
			applyHoldRelease(account, txn)
			txn.AppendAudit("hold_released", actor, now, nil)
			if uerr := s.accountRepo.UpdateAccountBalancesInTx(ctx, tx, *account); uerr != nil {
				return cause
			}
		}
	}

	if err := s.txnRepo.UpdateTransactionInTx(ctx, tx, *txn); err != nil {
		return cause
	}
	if err := s.stageEvent(ctx, tx, domain.DomainEvent{
		EventType:  domain.EventTransactionFailed,
		EntityID:   txn.TransactionID,
		Actor:      actor,
		Amount:     txn.Amount,
		OccurredAt: now,
		Detail:     cause.Error(),
		AccountID:  txn.AccountID,
	}); err != nil {
		return cause
	}
	if err := s.txManager.Commit(ctx, tx); err != nil {
		return cause
	}
	s.invalidate(ctx, txn)
	return cause
}

func (s *processingService) buildReceipt(txn *domain.Transaction, kind domain.ReceiptKind, balanceAfter decimal.Decimal, at time.Time) domain.Receipt {
	return domain.Receipt{
		ReceiptID:         uuid.NewString(),
		ReceiptNumber:     newReceiptNumber(at),
		Kind:              kind,
		TransactionID:     txn.TransactionID,
		TransactionNumber: txn.TransactionNumber,
		CustomerID:        txn.CustomerID,
		AccountID:         txn.AccountID,
		AgentID:           txn.AgentID,
		Amount:            txn.Amount,
		FeeAmount:         txn.FeeAmount,
		TotalAmount:       txn.TotalAmount,
		CurrencyCode:      txn.CurrencyCode,
		BalanceAfter:      balanceAfter,
		IssuedAt:          at,
	}
}

func (s *processingService) stageEvent(ctx context.Context, tx pgx.Tx, event domain.DomainEvent) error {
	outboxEvent, err := newOutboxEvent(event)
	if err != nil {
		return err
	}
	if err := s.outboxRepo.StageEventInTx(ctx, tx, outboxEvent); err != nil {
		return fmt.Errorf("failed to stage %s event: %w", event.EventType, err)
	}
	return nil
}

func (s *processingService) invalidate(ctx context.Context, txn *domain.Transaction) {
	if s.cache == nil {
		return
	}
	s.cache.InvalidateTransaction(ctx, txn.TransactionID)
	s.cache.InvalidateAccount(ctx, txn.AccountID)
}
