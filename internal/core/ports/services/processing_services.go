package services

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/primebank/agent_banking_core/internal/core/domain"
)

// ProcessingSvcFacade commits money movement atomically. Each method is a
// single unit of work: any failure before the balance write leaves state
// untouched; any failure after rolls the whole unit back.
type ProcessingSvcFacade interface {
	// ProcessTransaction moves an approved transaction through processing to
	// completed, applying the balance delta, issuing the receipt and staging
	// events in one database transaction. Per-account serializability is
	// enforced with row locks; contention surfaces as apperrors.ErrBusy.
	ProcessTransaction(ctx context.Context, transactionID string, actor string) (*domain.Receipt, error)

	// ReverseTransaction creates and commits a linked reversal of a completed
	// transaction within the 24h window.
	ReverseTransaction(ctx context.Context, originalID string, actor string, reason string) (*domain.Transaction, error)

	// Retry resets a failed transaction to pending, incrementing its retry
	// count. Fails with apperrors.ErrMaxRetriesExceeded at the cap. The
	// orchestrator never retries on its own.
	Retry(ctx context.Context, transactionID string, actor string) (*domain.Transaction, error)

	// ProcessBatch processes many transactions with bounded concurrency,
	// isolating per-item failures.
	ProcessBatch(ctx context.Context, transactionIDs []string, actor string) map[string]error
}

// HoldSvcFacade manages reservations against available balance. Holds touch
// AvailableBalance only, never current or ledger balance.
type HoldSvcFacade interface {
	// PlaceHold reserves funds for a transaction. Fails for non-positive
	// amounts or when available balance cannot cover the hold.
	PlaceHold(ctx context.Context, transactionID string, amount decimal.Decimal, expiryMinutes int, actor string) (*domain.Transaction, error)

	// ReleaseHold releases a transaction's active hold. Idempotent: releasing
	// twice has the same effect as once.
	ReleaseHold(ctx context.Context, transactionID string, actor string) (*domain.Transaction, error)

	// ReleaseExpiredHolds sweeps holds past their expiry that were never
	// consumed by completion. Returns the number released.
	ReleaseExpiredHolds(ctx context.Context, limit int) (int, error)
}
