package services

import (
	portsrepo "github.com/primebank/agent_banking_core/internal/core/ports/repositories"
	portssvc "github.com/primebank/agent_banking_core/internal/core/ports/services"
)

// NewServiceContainer wires all application services over the repository
// provider. The cache may be nil; services then read straight through.
func NewServiceContainer(provider portsrepo.RepositoryProvider, authority portssvc.AuthorityResolver, cache portssvc.SnapshotCache) *portssvc.ServiceContainer {
	fees := NewFeeService()
	risk := NewRiskService()

	return &portssvc.ServiceContainer{
		Transaction: NewTransactionService(
			provider.TxManager,
			provider.TransactionRepo,
			provider.AccountRepo,
			provider.CustomerRepo,
			provider.ApprovalRepo,
			provider.OutboxRepo,
			fees,
			risk,
			authority,
			cache,
		),
		Approval: NewApprovalService(
			provider.TxManager,
			provider.ApprovalRepo,
			provider.TransactionRepo,
			provider.AccountRepo,
			provider.OutboxRepo,
			authority,
			cache,
		),
		Processing: NewProcessingService(
			provider.TxManager,
			provider.TransactionRepo,
			provider.AccountRepo,
			provider.ReceiptRepo,
			provider.OutboxRepo,
			fees,
			cache,
		),
		Hold: NewHoldService(
			provider.TxManager,
			provider.TransactionRepo,
			provider.AccountRepo,
			cache,
		),
		Fee:       fees,
		Risk:      risk,
		Authority: authority,
	}
}
