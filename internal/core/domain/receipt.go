package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptKind distinguishes completion receipts from reversal receipts.
type ReceiptKind string

const (
	ReceiptCompletion ReceiptKind = "COMPLETION"
	ReceiptReversal   ReceiptKind = "REVERSAL"
)

// Receipt is issued exactly once per completed processing unit, inside the
// same unit of work that committed the balance change.
type Receipt struct {
	ReceiptID         string          `json:"receiptID"`
	ReceiptNumber     string          `json:"receiptNumber"`
	Kind              ReceiptKind     `json:"kind"`
	TransactionID     string          `json:"transactionID"`
	TransactionNumber string          `json:"transactionNumber"`
	CustomerID        string          `json:"customerID"`
	AccountID         string          `json:"accountID"`
	AgentID           string          `json:"agentID"`
	Amount            decimal.Decimal `json:"amount"`
	FeeAmount         decimal.Decimal `json:"feeAmount"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	CurrencyCode      string          `json:"currencyCode"`
	BalanceAfter      decimal.Decimal `json:"balanceAfter"`
	IssuedAt          time.Time       `json:"issuedAt"`
}
