package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/v10ss/escashop/internal/models"
	"github.com/v10ss/escashop/internal/store"
)

func (s *Store) DailySummary(ctx context.Context, date string) (models.DailySummary, error) {
	summary := models.DailySummary{
		Date:         date,
		TotalAmount:  decimal.Zero,
		PaidAmount:   decimal.Zero,
		UnpaidAmount: decimal.Zero,
		ByMode:       map[string]models.ModeTally{},
	}
	for _, mode := range models.PaymentModes() {
		summary.ByMode[mode] = models.ModeTally{Amount: decimal.Zero}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT payment_mode, COALESCE(SUM(amount), 0)::text, COALESCE(SUM(paid_amount), 0)::text, COUNT(*)
		FROM transactions
		WHERE transaction_date::date = $1::date
		GROUP BY payment_mode
	`, date)
	if err != nil {
		return models.DailySummary{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			mode       string
			amountText string
			paidText   string
			count      int
		)
		if err := rows.Scan(&mode, &amountText, &paidText, &count); err != nil {
			return models.DailySummary{}, err
		}
		amount, err := decimal.NewFromString(amountText)
		if err != nil {
			return models.DailySummary{}, err
		}
		paid, err := decimal.NewFromString(paidText)
		if err != nil {
			return models.DailySummary{}, err
		}
		summary.ByMode[mode] = models.ModeTally{Amount: amount, Count: count}
		summary.TotalAmount = summary.TotalAmount.Add(amount)
		summary.PaidAmount = summary.PaidAmount.Add(paid)
		summary.TotalCount += count
	}
	if err := rows.Err(); err != nil {
		return models.DailySummary{}, err
	}
	summary.UnpaidAmount = summary.TotalAmount.Sub(summary.PaidAmount)

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE priority_flags @> '{"senior_citizen": true}'
				OR priority_flags @> '{"pwd": true}'
				OR priority_flags @> '{"pregnant": true}')
		FROM customers
		WHERE created_at::date = $1::date
	`, date).Scan(&summary.RegisteredCount, &summary.PriorityCount)
	if err != nil {
		return models.DailySummary{}, err
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(wait_time_minutes), 0)
		FROM queue_events
		WHERE event_type = 'called' AND created_at::date = $1::date
	`, date).Scan(&summary.AvgWaitMinutes)
	if err != nil {
		return models.DailySummary{}, err
	}
	return summary, nil
}

func (s *Store) MonthlyReport(ctx context.Context, year, month int) (models.MonthlyReport, error) {
	report := models.MonthlyReport{
		Year:        year,
		Month:       month,
		TotalAmount: decimal.Zero,
		ByMode:      map[string]models.ModeTally{},
	}
	for _, mode := range models.PaymentModes() {
		report.ByMode[mode] = models.ModeTally{Amount: decimal.Zero}
	}

	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	rows, err := s.pool.Query(ctx, `
		SELECT payment_mode, COALESCE(SUM(amount), 0)::text, COUNT(*)
		FROM transactions
		WHERE transaction_date >= $1 AND transaction_date < $2
		GROUP BY payment_mode
	`, start, end)
	if err != nil {
		return models.MonthlyReport{}, err
	}
	for rows.Next() {
		var (
			mode       string
			amountText string
			count      int
		)
		if err := rows.Scan(&mode, &amountText, &count); err != nil {
			rows.Close()
			return models.MonthlyReport{}, err
		}
		amount, err := decimal.NewFromString(amountText)
		if err != nil {
			rows.Close()
			return models.MonthlyReport{}, err
		}
		report.ByMode[mode] = models.ModeTally{Amount: amount, Count: count}
		report.TotalAmount = report.TotalAmount.Add(amount)
		report.TotalCount += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return models.MonthlyReport{}, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT transaction_date::date::text, COALESCE(SUM(amount), 0)::text, COUNT(*)
		FROM transactions
		WHERE transaction_date >= $1 AND transaction_date < $2
		GROUP BY transaction_date::date
		ORDER BY transaction_date::date
	`, start, end)
	if err != nil {
		return models.MonthlyReport{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			day        models.MonthlyDay
			amountText string
		)
		if err := rows.Scan(&day.Date, &amountText, &day.TotalCount); err != nil {
			return models.MonthlyReport{}, err
		}
		day.TotalAmount, err = decimal.NewFromString(amountText)
		if err != nil {
			return models.MonthlyReport{}, err
		}
		report.Days = append(report.Days, day)
	}
	return report, rows.Err()
}

// SaveDailyReport snapshots the day's per-mode takings and reconciles
// them against the keyed-in petty cash and line items. Re-saving the
// same day replaces the earlier snapshot.
func (s *Store) SaveDailyReport(ctx context.Context, input store.SaveDailyReportInput) (models.DailyReport, error) {
	if input.PettyCashStart.IsNegative() || input.PettyCashEnd.IsNegative() {
		return models.DailyReport{}, store.ErrInvalidAmount
	}
	for _, e := range input.Expenses {
		if e.Amount.IsNegative() {
			return models.DailyReport{}, store.ErrInvalidAmount
		}
	}
	for _, f := range input.Funds {
		if f.Amount.IsNegative() {
			return models.DailyReport{}, store.ErrInvalidAmount
		}
	}

	totals := map[string]decimal.Decimal{}
	for _, mode := range models.PaymentModes() {
		totals[mode] = decimal.Zero
	}
	rows, err := s.pool.Query(ctx, `
		SELECT payment_mode, COALESCE(SUM(amount), 0)::text
		FROM transactions
		WHERE transaction_date::date = $1::date
		GROUP BY payment_mode
	`, input.Date)
	if err != nil {
		return models.DailyReport{}, err
	}
	for rows.Next() {
		var (
			mode string
			text string
		)
		if err := rows.Scan(&mode, &text); err != nil {
			rows.Close()
			return models.DailyReport{}, err
		}
		amount, err := decimal.NewFromString(text)
		if err != nil {
			rows.Close()
			return models.DailyReport{}, err
		}
		totals[mode] = amount
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return models.DailyReport{}, err
	}

	report := models.DailyReport{
		Date:            input.Date,
		TotalCash:       totals[models.PaymentCash],
		TotalGCash:      totals[models.PaymentGCash],
		TotalMaya:       totals[models.PaymentMaya],
		TotalCreditCard: totals[models.PaymentCreditCard],
		TotalBank:       totals[models.PaymentBankTransfer],
		PettyCashStart:  input.PettyCashStart,
		PettyCashEnd:    input.PettyCashEnd,
		Expenses:        input.Expenses,
		Funds:           input.Funds,
	}
	report.CashTurnover = models.CashTurnoverFor(report)

	expensesRaw, err := json.Marshal(report.Expenses)
	if err != nil {
		return models.DailyReport{}, err
	}
	fundsRaw, err := json.Marshal(report.Funds)
	if err != nil {
		return models.DailyReport{}, err
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO daily_reports (
			day, total_cash, total_gcash, total_maya, total_credit_card, total_bank_transfer,
			petty_cash_start, petty_cash_end, expenses, funds, cash_turnover, created_at, updated_at
		) VALUES ($1::date,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())
		ON CONFLICT (day) DO UPDATE SET
			total_cash = EXCLUDED.total_cash,
			total_gcash = EXCLUDED.total_gcash,
			total_maya = EXCLUDED.total_maya,
			total_credit_card = EXCLUDED.total_credit_card,
			total_bank_transfer = EXCLUDED.total_bank_transfer,
			petty_cash_start = EXCLUDED.petty_cash_start,
			petty_cash_end = EXCLUDED.petty_cash_end,
			expenses = EXCLUDED.expenses,
			funds = EXCLUDED.funds,
			cash_turnover = EXCLUDED.cash_turnover,
			updated_at = now()
		RETURNING created_at, updated_at
	`, input.Date,
		report.TotalCash.StringFixed(2), report.TotalGCash.StringFixed(2), report.TotalMaya.StringFixed(2),
		report.TotalCreditCard.StringFixed(2), report.TotalBank.StringFixed(2),
		report.PettyCashStart.StringFixed(2), report.PettyCashEnd.StringFixed(2),
		expensesRaw, fundsRaw, report.CashTurnover.StringFixed(2)).Scan(&report.CreatedAt, &report.UpdatedAt)
	if err != nil {
		return models.DailyReport{}, err
	}
	return report, nil
}

func (s *Store) GetDailyReport(ctx context.Context, date string) (models.DailyReport, error) {
	var (
		report      models.DailyReport
		texts       [8]string
		expensesRaw []byte
		fundsRaw    []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT day::text, total_cash::text, total_gcash::text, total_maya::text,
			total_credit_card::text, total_bank_transfer::text,
			petty_cash_start::text, petty_cash_end::text, cash_turnover::text,
			expenses, funds, created_at, updated_at
		FROM daily_reports
		WHERE day = $1::date
	`, date).Scan(&report.Date, &texts[0], &texts[1], &texts[2], &texts[3], &texts[4],
		&texts[5], &texts[6], &texts[7], &expensesRaw, &fundsRaw, &report.CreatedAt, &report.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DailyReport{}, store.ErrReportNotFound
	}
	if err != nil {
		return models.DailyReport{}, err
	}

	for i, dst := range []*decimal.Decimal{
		&report.TotalCash, &report.TotalGCash, &report.TotalMaya, &report.TotalCreditCard,
		&report.TotalBank, &report.PettyCashStart, &report.PettyCashEnd, &report.CashTurnover,
	} {
		*dst, err = decimal.NewFromString(texts[i])
		if err != nil {
			return models.DailyReport{}, fmt.Errorf("decode report amount: %w", err)
		}
	}
	if len(expensesRaw) > 0 {
		if err := json.Unmarshal(expensesRaw, &report.Expenses); err != nil {
			return models.DailyReport{}, err
		}
	}
	if len(fundsRaw) > 0 {
		if err := json.Unmarshal(fundsRaw, &report.Funds); err != nil {
			return models.DailyReport{}, err
		}
	}
	return report, nil
}
