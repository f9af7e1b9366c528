package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/primebank/agent_banking_core/internal/apperrors"
	"github.com/primebank/agent_banking_core/internal/core/domain"
	portsrepo "github.com/primebank/agent_banking_core/internal/core/ports/repositories"
	portssvc "github.com/primebank/agent_banking_core/internal/core/ports/services"
	"github.com/primebank/agent_banking_core/internal/middleware"
)

// holdService manages fund reservations against available balance.
type holdService struct {
	txManager   portsrepo.TransactionManager
	txnRepo     portsrepo.TransactionRepositoryFacade
	accountRepo portsrepo.AccountRepositoryFacade
	cache       portssvc.SnapshotCache
}

// NewHoldService creates a new HoldService.
func NewHoldService(
	txManager portsrepo.TransactionManager,
	txnRepo portsrepo.TransactionRepositoryFacade,
	accountRepo portsrepo.AccountRepositoryFacade,
	cache portssvc.SnapshotCache,
) portssvc.HoldSvcFacade {
	return &holdService{
		txManager:   txManager,
		txnRepo:     txnRepo,
		accountRepo: accountRepo,
		cache:       cache,
	}
}

var _ portssvc.HoldSvcFacade = (*holdService)(nil)

// PlaceHold reserves funds for a transaction that does not yet carry a hold.
// The account row lock makes the balance check and the reservation atomic.
func (s *holdService) PlaceHold(ctx context.Context, transactionID string, amount decimal.Decimal, expiryMinutes int, actor string) (*domain.Transaction, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: hold amount must be positive", apperrors.ErrValidation)
	}
	if expiryMinutes <= 0 {
		expiryMinutes = DefaultHoldExpiryMinutes
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.txManager.Rollback(ctx, tx)

	txn, err := s.txnRepo.FindTransactionForUpdate(ctx, tx, transactionID, true)
	if err != nil {
		return nil, err
	}
	if txn.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot hold funds for a %s transaction", apperrors.ErrInvalidState, txn.Status)
	}
	if txn.HasActiveHold() {
		return nil, fmt.Errorf("%w: transaction already carries hold %s", apperrors.ErrDuplicate, txn.HoldReference)
	}

	account, err := s.accountRepo.FindAccountForUpdate(ctx, tx, txn.AccountID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account %s: %w", txn.AccountID, err)
	}
	if account.AvailableBalance.LessThan(amount) {
		return nil, fmt.Errorf("%w: available %s, hold %s", apperrors.ErrInsufficientFunds, account.AvailableBalance, amount)
	}

	now := time.Now().UTC()
	applyHoldPlacement(account, txn, amount, now.Add(time.Duration(expiryMinutes)*time.Minute))
	txn.AppendAudit("hold_placed", actor, now, map[string]string{
		"hold_amount":    amount.String(),
		"hold_reference": txn.HoldReference,
	})
	txn.LastUpdatedAt = now
	txn.LastUpdatedBy = actor

	if err := s.accountRepo.UpdateAccountBalancesInTx(ctx, tx, *account); err != nil {
		return nil, fmt.Errorf("failed to update account balances: %w", err)
	}
	if err := s.txnRepo.UpdateTransactionInTx(ctx, tx, *txn); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	if err := s.txManager.Commit(ctx, tx); err != nil {
		return nil, err
	}

	s.invalidate(ctx, txn)

	logger.Info("Hold placed",
		slog.String("transaction_id", txn.TransactionID),
		slog.String("hold_reference", txn.HoldReference),
		slog.String("amount", amount.String()),
	)
	return txn, nil
}

// ReleaseHold releases a transaction's hold back to available balance.
// Idempotent: a transaction without an active hold is returned unchanged.
func (s *holdService) ReleaseHold(ctx context.Context, transactionID string, actor string) (*domain.Transaction, error) {
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
	if !txn.HasActiveHold() {
		return txn, nil
	}

	account, err := s.accountRepo.FindAccountForUpdate(ctx, tx, txn.AccountID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account %s: %w", txn.AccountID, err)
	}

	now := time.Now().UTC()
	released := txn.HoldAmount
	applyHoldRelease(account, txn)
	txn.AppendAudit("hold_released", actor, now, map[string]string{"released_amount": released.String()})
	txn.LastUpdatedAt = now
	txn.LastUpdatedBy = actor

	if err := s.accountRepo.UpdateAccountBalancesInTx(ctx, tx, *account); err != nil {
		return nil, fmt.Errorf("failed to update account balances: %w", err)
	}
	if err := s.txnRepo.UpdateTransactionInTx(ctx, tx, *txn); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	if err := s.txManager.Commit(ctx, tx); err != nil {
		return nil, err
	}

	s.invalidate(ctx, txn)

	logger.Info("Hold released",
		slog.String("transaction_id", txn.TransactionID),
		slog.String("amount", released.String()),
	)
	return txn, nil
}

// ReleaseExpiredHolds sweeps holds past their expiry. Each release is its own
// unit of work so one contended account does not stall the sweep; busy rows
// are skipped and picked up on the next run.
func (s *holdService) ReleaseExpiredHolds(ctx context.Context, limit int) (int, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	if limit <= 0 {
		limit = 100
	}
	expired, err := s.txnRepo.ListExpiredHolds(ctx, time.Now().UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired holds: %w", err)
	}

	released := 0
	for i := range expired {
		if err := s.releaseExpired(ctx, expired[i].TransactionID); err != nil {
			if errors.Is(err, apperrors.ErrBusy) {
				continue
			}
			logger.Error("Failed to release expired hold",
				slog.String("transaction_id", expired[i].TransactionID),
				slog.String("error", err.Error()),
			)
			continue
		}
		released++
	}
	if released > 0 {
		logger.Info("Expired holds released", slog.Int("count", released))
	}
	return released, nil
}

func (s *holdService) releaseExpired(ctx context.Context, transactionID string) error {
	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	defer s.txManager.Rollback(ctx, tx)

	txn, err := s.txnRepo.FindTransactionForUpdate(ctx, tx, transactionID, false)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if !txn.HasActiveHold() || txn.HoldExpiresAt == nil || txn.HoldExpiresAt.After(now) {
		return nil
	}

	account, err := s.accountRepo.FindAccountForUpdate(ctx, tx, txn.AccountID, false)
	if err != nil {
		return err
	}

	applyHoldRelease(account, txn)
	txn.AppendAudit("hold_expired", SystemActor, now, nil)
	txn.LastUpdatedAt = now
	txn.LastUpdatedBy = SystemActor

	if err := s.accountRepo.UpdateAccountBalancesInTx(ctx, tx, *account); err != nil {
		return err
	}
	if err := s.txnRepo.UpdateTransactionInTx(ctx, tx, *txn); err != nil {
		return err
	}
	if err := s.txManager.Commit(ctx, tx); err != nil {
		return err
	}

	s.invalidate(ctx, txn)
	return nil
}

func (s *holdService) invalidate(ctx context.Context, txn *domain.Transaction) {
	if s.cache == nil {
		return
	}
	s.cache.InvalidateTransaction(ctx, txn.TransactionID)
	s.cache.InvalidateAccount(ctx, txn.AccountID)
}
