package services

import (
	"context"

	"github.com/primebank/agent_banking_core/internal/core/domain"
)

// ServiceContainer holds instances of all the application services.
// This is the main entry point for accessing service functionality and
// is used throughout the application, particularly in the handlers.
type ServiceContainer struct {
	Transaction TransactionSvcFacade
	Approval    ApprovalSvcFacade
	Processing  ProcessingSvcFacade
	Hold        HoldSvcFacade
	Fee         FeeCalculator
	Risk        RiskEvaluator
	Authority   AuthorityResolver
}

// AuthorityResolver resolves an actor's approval level. Implementations must
// fail closed: an unverifiable actor yields an error, never a default level.
type AuthorityResolver interface {
	LevelFor(ctx context.Context, actor string) (domain.ApprovalLevel, error)
}

// SnapshotCache is a non-authoritative cache of entity snapshots. Staleness
// must never influence balance decisions: the processing unit always re-reads
// under lock and every mutator invalidates.
type SnapshotCache interface {
	GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, bool)
	SetTransaction(ctx context.Context, txn *domain.Transaction)
	GetAccount(ctx context.Context, accountID string) (*domain.Account, bool)
	SetAccount(ctx context.Context, account *domain.Account)
	InvalidateTransaction(ctx context.Context, transactionID string)
	InvalidateAccount(ctx context.Context, accountID string)
}
