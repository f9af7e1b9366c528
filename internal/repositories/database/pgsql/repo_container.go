package pgsql

import (
	"github.com/jackc/pgx/v5/pgxpool"

	portsrepo "github.com/primebank/agent_banking_core/internal/core/ports/repositories"
)

func NewRepositoryProvider(dbPool *pgxpool.Pool) portsrepo.RepositoryProvider {
	return portsrepo.RepositoryProvider{
		TxManager:       &BaseRepository{Pool: dbPool},
		AccountRepo:     newPgxAccountRepository(dbPool),
		TransactionRepo: newPgxTransactionRepository(dbPool),
		ApprovalRepo:    newPgxApprovalRepository(dbPool),
		CustomerRepo:    newPgxCustomerRepository(dbPool),
		ReceiptRepo:     newPgxReceiptRepository(dbPool),
		OutboxRepo:      newPgxOutboxRepository(dbPool),
	}
}
