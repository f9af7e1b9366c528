package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/primebank/agent_banking_core/internal/apperrors"
	"github.com/primebank/agent_banking_core/internal/core/domain"
	portsrepo "github.com/primebank/agent_banking_core/internal/core/ports/repositories"
	portssvc "github.com/primebank/agent_banking_core/internal/core/ports/services"
	"github.com/primebank/agent_banking_core/internal/dto"
	"github.com/primebank/agent_banking_core/internal/middleware"
)

// SystemActor stamps mutations performed by the system itself.
const SystemActor = "system"

// DefaultHoldExpiryMinutes is how long a reservation lives when the caller
// does not specify an expiry.
const DefaultHoldExpiryMinutes = 30

// transactionService drives the transaction state machine up to processing.
type transactionService struct {
	txManager    portsrepo.TransactionManager
	txnRepo      portsrepo.TransactionRepositoryFacade
	accountRepo  portsrepo.AccountRepositoryFacade
	customerRepo portsrepo.CustomerReader
	approvalRepo portsrepo.ApprovalRepositoryFacade
	outboxRepo   portsrepo.OutboxRepositoryFacade
	fees         portssvc.FeeCalculator
	risk         portssvc.RiskEvaluator
	authority    portssvc.AuthorityResolver
	cache        portssvc.SnapshotCache
}

// NewTransactionService creates a new TransactionService.
func NewTransactionService(
	txManager portsrepo.TransactionManager,
	txnRepo portsrepo.TransactionRepositoryFacade,
	accountRepo portsrepo.AccountRepositoryFacade,
	customerRepo portsrepo.CustomerReader,
	approvalRepo portsrepo.ApprovalRepositoryFacade,
	outboxRepo portsrepo.OutboxRepositoryFacade,
	fees portssvc.FeeCalculator,
	risk portssvc.RiskEvaluator,
	authority portssvc.AuthorityResolver,
	cache portssvc.SnapshotCache,
) portssvc.TransactionSvcFacade {
	return &transactionService{
		txManager:    txManager,
		txnRepo:      txnRepo,
		accountRepo:  accountRepo,
		customerRepo: customerRepo,
		approvalRepo: approvalRepo,
		outboxRepo:   outboxRepo,
		fees:         fees,
		risk:         risk,
		authority:    authority,
		cache:        cache,
	}
}

var _ portssvc.TransactionSvcFacade = (*transactionService)(nil)

// GetTransaction retrieves a transaction, serving from the snapshot cache when
// possible. The cache is non-authoritative; mutators always invalidate it.
func (s *transactionService) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	if s.cache != nil {
		if txn, ok := s.cache.GetTransaction(ctx, transactionID); ok {
			return txn, nil
		}
	}
	txn, err := s.txnRepo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetTransaction(ctx, txn)
	}
	return txn, nil
}

// ListAccountTransactions retrieves a page of an account's transactions.
func (s *transactionService) ListAccountTransactions(ctx context.Context, accountID string, limit, offset int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.txnRepo.ListTransactionsByAccount(ctx, accountID, limit, offset)
}

// CreateWithdrawal creates a pending withdrawal, places the hold for
// amount+fee, runs risk evaluation and opens an approval workflow when one is
// required. Transactions that need no approval are auto-approved on creation.
func (s *transactionService) CreateWithdrawal(ctx context.Context, req dto.CreateTransactionRequest, agentID string) (*domain.Transaction, error) {
	return s.create(ctx, req, agentID, domain.Withdrawal)
}

// CreateDeposit creates a pending deposit. Deposits reserve no funds.
func (s *transactionService) CreateDeposit(ctx context.Context, req dto.CreateTransactionRequest, agentID string) (*domain.Transaction, error) {
	return s.create(ctx, req, agentID, domain.Deposit)
}

func (s *transactionService) create(ctx context.Context, req dto.CreateTransactionRequest, agentID string, txnType domain.TransactionType) (*domain.Transaction, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", apperrors.ErrValidation)
	}
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent is required", apperrors.ErrValidation)
	}

	account, err := s.accountRepo.FindAccountByID(ctx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", req.AccountID, err)
	}
	if !account.IsTransactable() {
		return nil, fmt.Errorf("%w: account %s is %s", apperrors.ErrValidation, account.AccountID, account.Status)
	}
	if account.CustomerID != req.CustomerID {
		return nil, fmt.Errorf("%w: account %s does not belong to customer %s", apperrors.ErrValidation, req.AccountID, req.CustomerID)
	}
	if account.CurrencyCode != req.Currency {
		return nil, fmt.Errorf("%w: account currency %s does not match requested currency %s", apperrors.ErrValidation, account.CurrencyCode, req.Currency)
	}
	if txnType == domain.Withdrawal && account.DailyWithdrawalLimit.IsPositive() && req.Amount.GreaterThan(account.DailyWithdrawalLimit) {
		return nil, fmt.Errorf("%w: amount exceeds daily withdrawal limit", apperrors.ErrValidation)
	}

	customer, err := s.customerRepo.FindCustomerByID(ctx, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load customer %s: %w", req.CustomerID, err)
	}

	now := time.Now().UTC()

	recent, err := s.txnRepo.CountRecentByAccount(ctx, account.AccountID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to count recent transactions: %w", err)
	}

	assessment, err := s.risk.Evaluate(ctx, dto.RiskInput{
		Customer:       customer,
		Account:        account,
		Amount:         req.Amount,
		Type:           txnType,
		At:             now,
		RecentTxnCount: recent,
	})
	if err != nil {
		return nil, fmt.Errorf("risk evaluation failed: %w", err)
	}

	feeResult := s.fees.Calculate(account.AccountType, txnType, req.Amount, dto.FeeContext{
		RiskScore: assessment.RiskScore,
		At:        now,
		Priority:  req.Priority,
	})

	channel := req.Channel
	if channel == "" {
		channel = domain.ChannelAgent
	}
	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}

	txn := domain.Transaction{
		TransactionID:     uuid.NewString(),
		TransactionNumber: newTransactionNumber(now),
		CustomerID:        req.CustomerID,
		AccountID:         req.AccountID,
		AgentID:           agentID,
		Type:              txnType,
		Status:            domain.TxnPending,
		Channel:           channel,
		Priority:          priority,
		Description:       req.Description,
		Reference:         req.Reference,
		Amount:            req.Amount,
		FeeAmount:         feeResult.TotalFees,
		TotalAmount:       req.Amount.Add(feeResult.TotalFees),
		CurrencyCode:      req.Currency,
		ApprovalRequired:  assessment.RequiresApproval,
		ApprovalLevel:     assessment.ApprovalLevel,
		RiskScore:         assessment.RiskScore,
		RiskFactors:       assessment.Factors,
		ComplianceFlags:   assessment.Flags,
		ScheduledAt:       req.ScheduledAt,
		MaxRetries:        domain.DefaultMaxRetries,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     agentID,
			LastUpdatedAt: now,
			LastUpdatedBy: agentID,
		},
	}
	txn.AppendAudit("created", agentID, now, map[string]string{
		"type":   string(txnType),
		"amount": req.Amount.String(),
	})

	if !assessment.RequiresApproval {
		approvedAt := now
		txn.Status = domain.TxnApproved
		txn.ApprovedBy = SystemActor
		txn.ApprovedAt = &approvedAt
		txn.AppendAudit("auto_approved", SystemActor, now, map[string]string{"risk_score": fmt.Sprintf("%d", assessment.RiskScore)})
	}

	var workflow *domain.ApprovalWorkflow
	if assessment.RequiresApproval {
		wf := buildWorkflow(&txn, assessment, now)
		workflow = &wf
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.txManager.Rollback(ctx, tx)

	// Re-read the account under lock so concurrent holds cannot overcommit
	// the available balance.
	lockedAccount, err := s.accountRepo.FindAccountForUpdate(ctx, tx, account.AccountID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account %s: %w", account.AccountID, err)
	}

	if txnType.IsDebit() {
		holdAmount := txn.TotalAmount
		if lockedAccount.AvailableBalance.LessThan(holdAmount) {
			return nil, fmt.Errorf("%w: available %s, hold %s", apperrors.ErrInsufficientFunds, lockedAccount.AvailableBalance, holdAmount)
		}
		applyHoldPlacement(lockedAccount, &txn, holdAmount, now.Add(time.Duration(DefaultHoldExpiryMinutes)*time.Minute))
		txn.AppendAudit("hold_placed", SystemActor, now, map[string]string{"hold_amount": holdAmount.String()})
		if err := s.accountRepo.UpdateAccountBalancesInTx(ctx, tx, *lockedAccount); err != nil {
			return nil, fmt.Errorf("failed to update account balances: %w", err)
		}
	}

	if err := s.txnRepo.SaveTransactionInTx(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("failed to save transaction: %w", err)
	}

	if err := s.stageEvent(ctx, tx, domain.DomainEvent{
		EventType:  domain.EventTransactionCreated,
		EntityID:   txn.TransactionID,
		Actor:      agentID,
		Amount:     txn.Amount,
		FeeAmount:  txn.FeeAmount,
		Currency:   txn.CurrencyCode,
		OccurredAt: now,
		AccountID:  txn.AccountID,
		CustomerID: txn.CustomerID,
	}); err != nil {
		return nil, err
	}

	if workflow != nil {
		if err := s.approvalRepo.SaveWorkflowInTx(ctx, tx, *workflow); err != nil {
			return nil, fmt.Errorf("failed to save approval workflow: %w", err)
		}
		if err := s.stageEvent(ctx, tx, domain.DomainEvent{
			EventType:  domain.EventWorkflowCreated,
			EntityID:   workflow.WorkflowID,
			Actor:      SystemActor,
			Amount:     txn.Amount,
			OccurredAt: now,
			WorkflowID: workflow.WorkflowID,
			AccountID:  txn.AccountID,
		}); err != nil {
			return nil, err
		}
	}

	if err := s.txManager.Commit(ctx, tx); err != nil {
		return nil, err
	}

	s.invalidate(ctx, &txn)

	logger.Info("Transaction created",
		slog.String("transaction_id", txn.TransactionID),
		slog.String("type", string(txnType)),
		slog.String("status", string(txn.Status)),
		slog.Int("risk_score", txn.RiskScore),
		slog.Bool("approval_required", txn.ApprovalRequired),
	)
	return &txn, nil
}

// VerifyCustomer records one verification method and recomputes the
// customer-verified flag. No status change.
func (s *transactionService) VerifyCustomer(ctx context.Context, transactionID string, req dto.VerifyCustomerRequest, agentID string) (*domain.Transaction, error) {
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
	if txn.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot verify a %s transaction", apperrors.ErrInvalidState, txn.Status)
	}

	now := time.Now().UTC()
	txn.RecordVerification(req.Method)
	txn.AppendAudit("customer_verified", agentID, now, map[string]string{
		"method":   string(req.Method),
		"verified": fmt.Sprintf("%t", txn.CustomerVerified),
	})
	txn.LastUpdatedAt = now
	txn.LastUpdatedBy = agentID

	if err := s.txnRepo.UpdateTransactionInTx(ctx, tx, *txn); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	if err := s.stageEvent(ctx, tx, domain.DomainEvent{
		EventType:  domain.EventTransactionCustomerVerified,
		EntityID:   txn.TransactionID,
		Actor:      agentID,
		Amount:     txn.Amount,
		OccurredAt: now,
		Detail:     string(req.Method),
		CustomerID: txn.CustomerID,
	}); err != nil {
		return nil, err
	}
	if err := s.txManager.Commit(ctx, tx); err != nil {
		return nil, err
	}

	s.invalidate(ctx, txn)

	logger.Info("Customer verification recorded",
		slog.String("transaction_id", txn.TransactionID),
		slog.String("method", string(req.Method)),
		slog.Bool("customer_verified", txn.CustomerVerified),
	)
	return txn, nil
}

// Approve moves a pending, approval-requiring transaction to approved. Fails
// closed when the actor's authority cannot be verified or is below the
// transaction's required level.
func (s *transactionService) Approve(ctx context.Context, transactionID string, req dto.ApproveTransactionRequest, actor string) (*domain.Transaction, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	level, err := s.authority.LevelFor(ctx, actor)
	if err != nil {
		return nil, err
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
	if txn.Status != domain.TxnPending {
		return nil, fmt.Errorf("%w: transaction is %s, expected PENDING", apperrors.ErrInvalidState, txn.Status)
	}
	if !txn.ApprovalRequired {
		return nil, fmt.Errorf("%w: transaction does not require approval", apperrors.ErrInvalidState)
	}
	if txn.ApprovedAt != nil || txn.RejectedAt != nil {
		return nil, fmt.Errorf("%w: transaction already decided", apperrors.ErrInvalidState)
	}
	if level.Rank() < txn.ApprovalLevel.Rank() {
		return nil, fmt.Errorf("%w: %s required, actor holds %s", apperrors.ErrAuthority, txn.ApprovalLevel, level)
	}

	now := time.Now().UTC()
	applyTransactionApproval(txn, actor, req.Notes, now)

	if err := s.txnRepo.UpdateTransactionInTx(ctx, tx, *txn); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	if err := s.closeLinkedWorkflow(ctx, tx, txn, domain.WfApproved, actor, req.Notes, now); err != nil {
		return nil, err
	}
	if err := s.stageEvent(ctx, tx, domain.DomainEvent{
		EventType:  domain.EventTransactionApproved,
		EntityID:   txn.TransactionID,
		Actor:      actor,
		Amount:     txn.Amount,
		OccurredAt: now,
		AccountID:  txn.AccountID,
	}); err != nil {
		return nil, err
	}
	if err := s.txManager.Commit(ctx, tx); err != nil {
		return nil, err
	}

	s.invalidate(ctx, txn)

	logger.Info("Transaction approved", slog.String("transaction_id", txn.TransactionID), slog.String("actor", actor))
	return txn, nil
}

// Reject moves a pending transaction to rejected and releases any hold.
func (s *transactionService) Reject(ctx context.Context, transactionID string, req dto.RejectTransactionRequest, actor string) (*domain.Transaction, error) {
	return s.closeEarly(ctx, transactionID, actor, req.Reason, domain.TxnRejected)
}

// Cancel cancels a pending or approved transaction and releases any hold.
// In-flight processing cannot be cancelled.
func (s *transactionService) Cancel(ctx context.Context, transactionID string, req dto.CancelTransactionRequest, actor string) (*domain.Transaction, error) {
	return s.closeEarly(ctx, transactionID, actor, req.Reason, domain.TxnCancelled)
}

// closeEarly implements the shared reject/cancel path: state check, hold
// release under the account lock, audit entry and event in one unit of work.
func (s *transactionService) closeEarly(ctx context.Context, transactionID, actor, reason string, target domain.TransactionStatus) (*domain.Transaction, error) {
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

	switch target {
	case domain.TxnRejected:
		if txn.Status != domain.TxnPending {
			return nil, fmt.Errorf("%w: transaction is %s, expected PENDING", apperrors.ErrInvalidState, txn.Status)
		}
	case domain.TxnCancelled:
		if txn.Status != domain.TxnPending && txn.Status != domain.TxnApproved {
			return nil, fmt.Errorf("%w: cannot cancel a %s transaction", apperrors.ErrInvalidState, txn.Status)
		}
	}

	now := time.Now().UTC()
	eventType := domain.EventTransactionCancelled
	if target == domain.TxnRejected {
		eventType = domain.EventTransactionRejected
		txn.RejectedBy = actor
		txn.RejectedAt = &now
		txn.RejectionReason = reason
		txn.AppendAudit("rejected", actor, now, map[string]string{"reason": reason})
	} else {
		txn.AppendAudit("cancelled", actor, now, map[string]string{"reason": reason})
	}
	txn.Status = target
	txn.LastUpdatedAt = now
	txn.LastUpdatedBy = actor

	if txn.HasActiveHold() {
		account, err := s.accountRepo.FindAccountForUpdate(ctx, tx, txn.AccountID, true)
		if err != nil {
			return nil, fmt.Errorf("failed to lock account %s: %w", txn.AccountID, err)
		}
		applyHoldRelease(account, txn)
		txn.AppendAudit("hold_released", actor, now, nil)
		if err := s.accountRepo.UpdateAccountBalancesInTx(ctx, tx, *account); err != nil {
			return nil, fmt.Errorf("failed to update account balances: %w", err)
		}
	}

	if err := s.txnRepo.UpdateTransactionInTx(ctx, tx, *txn); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	wfStatus := domain.WfCancelled
	if target == domain.TxnRejected {
		wfStatus = domain.WfRejected
	}
	if err := s.closeLinkedWorkflow(ctx, tx, txn, wfStatus, actor, reason, now); err != nil {
		return nil, err
	}
	if err := s.stageEvent(ctx, tx, domain.DomainEvent{
		EventType:  eventType,
		EntityID:   txn.TransactionID,
		Actor:      actor,
		Amount:     txn.Amount,
		OccurredAt: now,
		Detail:     reason,
		AccountID:  txn.AccountID,
	}); err != nil {
		return nil, err
	}
	if err := s.txManager.Commit(ctx, tx); err != nil {
		return nil, err
	}

	s.invalidate(ctx, txn)

	logger.Info("Transaction closed",
		slog.String("transaction_id", txn.TransactionID),
		slog.String("status", string(target)),
		slog.String("actor", actor),
	)
	return txn, nil
}

// closeLinkedWorkflow finalizes the approval workflow tied to a transaction
// when the decision lands on the transaction directly, so a closed transaction
// never leaves an open workflow behind. A transaction without a workflow and a
// workflow already in a terminal state are both no-ops.
func (s *transactionService) closeLinkedWorkflow(ctx context.Context, tx pgx.Tx, txn *domain.Transaction, status domain.WorkflowStatus, actor, reason string, now time.Time) error {
	if !txn.ApprovalRequired {
		return nil
	}
	wf, err := s.approvalRepo.FindWorkflowByTransactionForUpdate(ctx, tx, txn.TransactionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to lock linked workflow: %w", err)
	}
	if wf.Status.IsTerminal() {
		return nil
	}

	wf.Status = status
	completedAt := now
	wf.CompletedAt = &completedAt
	if status == domain.WfRejected {
		wf.RejectionReason = reason
	}
	wf.ResponseTimeMinutes = int(now.Sub(wf.CreatedAt).Minutes())
	wf.LastUpdatedAt = now
	wf.LastUpdatedBy = actor

	if err := s.approvalRepo.UpdateWorkflowInTx(ctx, tx, *wf); err != nil {
		return fmt.Errorf("failed to update linked workflow: %w", err)
	}
	return nil
}

func (s *transactionService) stageEvent(ctx context.Context, tx pgx.Tx, event domain.DomainEvent) error {
	outboxEvent, err := newOutboxEvent(event)
	if err != nil {
		return err
	}
	if err := s.outboxRepo.StageEventInTx(ctx, tx, outboxEvent); err != nil {
		return fmt.Errorf("failed to stage %s event: %w", event.EventType, err)
	}
	return nil
}

func (s *transactionService) invalidate(ctx context.Context, txn *domain.Transaction) {
	if s.cache == nil {
		return
	}
	s.cache.InvalidateTransaction(ctx, txn.TransactionID)
	s.cache.InvalidateAccount(ctx, txn.AccountID)
}

// applyTransactionApproval mutates the transaction into the approved state.
// Shared with the approval workflow engine, which applies the same change
// inside its own decision unit of work.
func applyTransactionApproval(txn *domain.Transaction, actor, notes string, now time.Time) {
	txn.Status = domain.TxnApproved
	txn.ApprovedBy = actor
	approvedAt := now
	txn.ApprovedAt = &approvedAt
	txn.LastUpdatedAt = now
	txn.LastUpdatedBy = actor
	details := map[string]string{}
	if notes != "" {
		details["notes"] = notes
	}
	txn.AppendAudit("approved", actor, now, details)
}

// applyTransactionRejection mirrors applyTransactionApproval for rejections.
func applyTransactionRejection(txn *domain.Transaction, actor, reason string, now time.Time) {
	txn.Status = domain.TxnRejected
	txn.RejectedBy = actor
	rejectedAt := now
	txn.RejectedAt = &rejectedAt
	txn.RejectionReason = reason
	txn.LastUpdatedAt = now
	txn.LastUpdatedBy = actor
	txn.AppendAudit("rejected", actor, now, map[string]string{"reason": reason})
}

// applyHoldPlacement reserves funds on the locked account for the transaction.
// Holds touch available balance only, never current or ledger balance.
func applyHoldPlacement(account *domain.Account, txn *domain.Transaction, amount decimal.Decimal, expiresAt time.Time) {
	account.AvailableBalance = account.AvailableBalance.Sub(amount)
	account.HoldAmount = account.HoldAmount.Add(amount)
	txn.HoldPlaced = true
	txn.HoldAmount = amount
	txn.HoldReference = "HOLD-" + uuid.NewString()
	txn.HoldExpiresAt = &expiresAt
}

// applyHoldRelease reverses applyHoldPlacement. Idempotent: a transaction
// without an active hold is a no-op.
func applyHoldRelease(account *domain.Account, txn *domain.Transaction) bool {
	if !txn.HasActiveHold() {
		return false
	}
	account.AvailableBalance = account.AvailableBalance.Add(txn.HoldAmount)
	account.HoldAmount = account.HoldAmount.Sub(txn.HoldAmount)
	txn.HoldPlaced = false
	txn.HoldAmount = decimal.Zero
	txn.HoldReference = ""
	txn.HoldExpiresAt = nil
	return true
}
