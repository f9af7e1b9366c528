package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies the product the account belongs to.
type AccountType string

const (
	Savings  AccountType = "SAVINGS"
	Checking AccountType = "CHECKING"
	Business AccountType = "BUSINESS"
	Wallet   AccountType = "WALLET"
)

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "ACTIVE"
	AccountInactive  AccountStatus = "INACTIVE"
	AccountSuspended AccountStatus = "SUSPENDED"
	AccountClosed    AccountStatus = "CLOSED"
	AccountFrozen    AccountStatus = "FROZEN"
)

// Account is the single-running-balance account record.
// Invariant: AvailableBalance = CurrentBalance - HoldAmount (adjusted for pending
// items); CurrentBalance may go negative only within OverdraftLimit.
type Account struct {
	AccountID     string        `json:"accountID"` // Primary Key (UUID)
	AccountNumber string        `json:"accountNumber"`
	CustomerID    string        `json:"customerID"`
	AccountType   AccountType   `json:"accountType"`
	CurrencyCode  string        `json:"currencyCode"`
	Status        AccountStatus `json:"status"`

	CurrentBalance   decimal.Decimal `json:"currentBalance"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	LedgerBalance    decimal.Decimal `json:"ledgerBalance"`
	PendingCredits   decimal.Decimal `json:"pendingCredits"`
	PendingDebits    decimal.Decimal `json:"pendingDebits"`
	HoldAmount       decimal.Decimal `json:"holdAmount"` // Sum of active holds

	DailyWithdrawalLimit decimal.Decimal `json:"dailyWithdrawalLimit"`
	DailyDepositLimit    decimal.Decimal `json:"dailyDepositLimit"`
	MonthlyLimit         decimal.Decimal `json:"monthlyLimit"`
	OverdraftLimit       decimal.Decimal `json:"overdraftLimit"`
	MinimumBalance       decimal.Decimal `json:"minimumBalance"`

	LastTransactionAt *time.Time `json:"lastTransactionAt,omitempty"`
	AuditFields
}

// IsTransactable reports whether money movement is allowed on the account.
func (a *Account) IsTransactable() bool {
	return a.Status == AccountActive
}

// UsableBalance is the amount a debit may draw on: available funds plus the
// overdraft facility.
func (a *Account) UsableBalance() decimal.Decimal {
	return a.AvailableBalance.Add(a.OverdraftLimit)
}
