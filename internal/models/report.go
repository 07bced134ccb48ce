package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ModeTally is the per-payment-mode rollup used by the daily and
// monthly summaries.
type ModeTally struct {
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
}

// DailySummary aggregates the day's transactions per payment mode.
type DailySummary struct {
	Date            string               `json:"date"`
	TotalAmount     decimal.Decimal      `json:"total_amount"`
	TotalCount      int                  `json:"total_transactions"`
	PaidAmount      decimal.Decimal      `json:"paid_amount"`
	UnpaidAmount    decimal.Decimal      `json:"unpaid_amount"`
	RegisteredCount int                  `json:"registered_customers"`
	PriorityCount   int                  `json:"priority_customers"`
	AvgWaitMinutes  float64              `json:"average_wait_time"`
	ByMode          map[string]ModeTally `json:"payment_modes"`
}

// MonthlyDay is one day's line in the monthly report.
type MonthlyDay struct {
	Date        string          `json:"date"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	TotalCount  int             `json:"total_transactions"`
}

type MonthlyReport struct {
	Year        int                  `json:"year"`
	Month       int                  `json:"month"`
	TotalAmount decimal.Decimal      `json:"total_amount"`
	TotalCount  int                  `json:"total_transactions"`
	ByMode      map[string]ModeTally `json:"payment_modes"`
	Days        []MonthlyDay         `json:"days"`
}

// ExpenseItem and FundItem are the free-form line items a cashier keys
// into the end-of-day report.
type ExpenseItem struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

type FundItem struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// DailyReport is the persisted end-of-day cash reconciliation. CashTurnover
// is derived on save, never accepted from the client.
type DailyReport struct {
	Date            string          `json:"date"`
	TotalCash       decimal.Decimal `json:"total_cash"`
	TotalGCash      decimal.Decimal `json:"total_gcash"`
	TotalMaya       decimal.Decimal `json:"total_maya"`
	TotalCreditCard decimal.Decimal `json:"total_credit_card"`
	TotalBank       decimal.Decimal `json:"total_bank_transfer"`
	PettyCashStart  decimal.Decimal `json:"petty_cash_start"`
	PettyCashEnd    decimal.Decimal `json:"petty_cash_end"`
	Expenses        []ExpenseItem   `json:"expenses"`
	Funds           []FundItem      `json:"funds"`
	CashTurnover    decimal.Decimal `json:"cash_turnover"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CashTurnoverFor computes the reconciliation total: opening petty cash
// plus every mode's takings and extra funds, less expenses and the
// closing petty cash count.
func CashTurnoverFor(r DailyReport) decimal.Decimal {
	total := r.PettyCashStart.
		Add(r.TotalCash).
		Add(r.TotalGCash).
		Add(r.TotalMaya).
		Add(r.TotalCreditCard).
		Add(r.TotalBank)
	for _, f := range r.Funds {
		total = total.Add(f.Amount)
	}
	for _, e := range r.Expenses {
		total = total.Sub(e.Amount)
	}
	return total.Sub(r.PettyCashEnd)
}
