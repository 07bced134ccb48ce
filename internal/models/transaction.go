package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment modes. The string values are part of the wire contract.
const (
	PaymentCash         = "cash"
	PaymentGCash        = "gcash"
	PaymentMaya         = "maya"
	PaymentCreditCard   = "credit_card"
	PaymentBankTransfer = "bank_transfer"
)

func ValidPaymentMode(mode string) bool {
	switch mode {
	case PaymentCash, PaymentGCash, PaymentMaya, PaymentCreditCard, PaymentBankTransfer:
		return true
	}
	return false
}

func PaymentModes() []string {
	return []string{PaymentCash, PaymentGCash, PaymentMaya, PaymentCreditCard, PaymentBankTransfer}
}

// Payment statuses, derived from paid vs owed amount.
const (
	PaymentUnpaid  = "unpaid"
	PaymentPartial = "partial"
	PaymentPaid    = "paid"
)

// PaymentStatusFor applies the three-tier rule: zero paid is unpaid,
// anything below the owed amount is partial, at or above is paid.
func PaymentStatusFor(paid, amount decimal.Decimal) string {
	switch {
	case paid.IsZero():
		return PaymentUnpaid
	case paid.GreaterThanOrEqual(amount):
		return PaymentPaid
	default:
		return PaymentPartial
	}
}

type Transaction struct {
	ID              int64           `json:"id"`
	CustomerID      int64           `json:"customer_id"`
	CustomerName    string          `json:"customer_name,omitempty"`
	ORNumber        string          `json:"or_number"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentMode     string          `json:"payment_mode"`
	SalesAgentID    *int64          `json:"sales_agent_id,omitempty"`
	SalesAgentName  string          `json:"sales_agent_name,omitempty"`
	CashierID       *int64          `json:"cashier_id,omitempty"`
	CashierName     string          `json:"cashier_name,omitempty"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	BalanceAmount   decimal.Decimal `json:"balance_amount"`
	PaymentStatus   string          `json:"payment_status"`
	TransactionDate time.Time       `json:"transaction_date"`
}

// Settlement is one payment event against a transaction. Append-only.
type Settlement struct {
	ID            int64           `json:"id"`
	TransactionID int64           `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMode   string          `json:"payment_mode"`
	CashierID     *int64          `json:"cashier_id,omitempty"`
	CashierName   string          `json:"cashier_name,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	PaidAt        time.Time       `json:"paid_at"`
}
