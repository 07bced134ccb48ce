package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCashTurnoverFor(t *testing.T) {
	r := DailyReport{
		TotalCash:       dec("5000"),
		TotalGCash:      dec("1500.50"),
		TotalMaya:       dec("200"),
		TotalCreditCard: dec("3000"),
		TotalBank:       dec("0"),
		PettyCashStart:  dec("1000"),
		PettyCashEnd:    dec("800"),
		Expenses: []ExpenseItem{
			{Description: "supplies", Amount: dec("250")},
			{Description: "meals", Amount: dec("150.25")},
		},
		Funds: []FundItem{
			{Description: "change fund", Amount: dec("500")},
		},
	}

	// 1000 + 5000 + 1500.50 + 200 + 3000 + 0 + 500 - 250 - 150.25 - 800
	assert.True(t, CashTurnoverFor(r).Equal(dec("10000.25")))
}

func TestCashTurnoverForEmptyReport(t *testing.T) {
	assert.True(t, CashTurnoverFor(DailyReport{}).IsZero())
}

func TestPaymentStatusFor(t *testing.T) {
	cases := []struct {
		name   string
		paid   string
		amount string
		want   string
	}{
		{"nothing paid", "0", "1500", PaymentUnpaid},
		{"partially paid", "500", "1500", PaymentPartial},
		{"exactly paid", "1500", "1500", PaymentPaid},
		{"overpaid", "2000", "1500", PaymentPaid},
		{"zero amount unpaid", "0", "0", PaymentUnpaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PaymentStatusFor(dec(tc.paid), dec(tc.amount)))
		})
	}
}
