package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/v10ss/escashop/internal/models"
	"github.com/v10ss/escashop/internal/store"
)

const transactionColumns = `t.id, t.customer_id, COALESCE(c.name, ''), t.or_number, t.amount::text,
	t.payment_mode, t.sales_agent_id, COALESCE(sa.full_name, ''), t.cashier_id, COALESCE(ca.full_name, ''),
	t.paid_amount::text, t.balance_amount::text, t.payment_status, t.transaction_date`

const transactionFrom = ` FROM transactions t
	LEFT JOIN customers c ON c.id = t.customer_id
	LEFT JOIN users sa ON sa.id = t.sales_agent_id
	LEFT JOIN users ca ON ca.id = t.cashier_id `

func scanTransaction(row pgx.Row) (models.Transaction, error) {
	var (
		t            models.Transaction
		salesAgentID sql.NullInt64
		cashierID    sql.NullInt64
		amountText   string
		paidText     string
		balanceText  string
	)
	err := row.Scan(&t.ID, &t.CustomerID, &t.CustomerName, &t.ORNumber, &amountText,
		&t.PaymentMode, &salesAgentID, &t.SalesAgentName, &cashierID, &t.CashierName,
		&paidText, &balanceText, &t.PaymentStatus, &t.TransactionDate)
	if err != nil {
		return models.Transaction{}, err
	}
	if salesAgentID.Valid {
		id := salesAgentID.Int64
		t.SalesAgentID = &id
	}
	if cashierID.Valid {
		id := cashierID.Int64
		t.CashierID = &id
	}
	for _, pair := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&t.Amount, amountText},
		{&t.PaidAmount, paidText},
		{&t.BalanceAmount, balanceText},
	} {
		*pair.dst, err = decimal.NewFromString(pair.src)
		if err != nil {
			return models.Transaction{}, fmt.Errorf("decode amount: %w", err)
		}
	}
	return t, nil
}

func (s *Store) CreateTransaction(ctx context.Context, input store.CreateTransactionInput) (models.Transaction, error) {
	if !input.Amount.IsPositive() {
		return models.Transaction{}, store.ErrInvalidAmount
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, input.CustomerID).Scan(&exists); err != nil {
		return models.Transaction{}, err
	}
	if !exists {
		return models.Transaction{}, store.ErrCustomerNotFound
	}

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO transactions (
			customer_id, or_number, amount, payment_mode, sales_agent_id, cashier_id,
			paid_amount, balance_amount, payment_status, transaction_date
		) VALUES ($1,$2,$3,$4,$5,$6,0,$3,$7,now())
		ON CONFLICT (or_number) DO NOTHING
		RETURNING id
	`, input.CustomerID, input.ORNumber, input.Amount.StringFixed(2), input.PaymentMode,
		input.SalesAgentID, input.CashierID, models.PaymentUnpaid).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Transaction{}, store.ErrDuplicateOR
	}
	if err != nil {
		return models.Transaction{}, err
	}
	return s.GetTransaction(ctx, id)
}

func (s *Store) GetTransaction(ctx context.Context, transactionID int64) (models.Transaction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+transactionColumns+transactionFrom+` WHERE t.id = $1`, transactionID)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Transaction{}, store.ErrTransactionNotFound
	}
	return t, err
}

func (s *Store) ListTransactions(ctx context.Context, input store.ListTransactionsInput) ([]models.Transaction, error) {
	var (
		conds []string
		args  []any
	)
	if input.Date != "" {
		args = append(args, input.Date)
		conds = append(conds, fmt.Sprintf("t.transaction_date::date = $%d::date", len(args)))
	}
	if input.PaymentMode != "" {
		args = append(args, input.PaymentMode)
		conds = append(conds, fmt.Sprintf("t.payment_mode = $%d", len(args)))
	}
	if input.PaymentStatus != "" {
		args = append(args, input.PaymentStatus)
		conds = append(conds, fmt.Sprintf("t.payment_status = $%d", len(args)))
	}
	if input.SalesAgentID != nil {
		args = append(args, *input.SalesAgentID)
		conds = append(conds, fmt.Sprintf("t.sales_agent_id = $%d", len(args)))
	}
	if input.CashierID != nil {
		args = append(args, *input.CashierID)
		conds = append(conds, fmt.Sprintf("t.cashier_id = $%d", len(args)))
	}
	query := `SELECT ` + transactionColumns + transactionFrom
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY t.transaction_date DESC, t.id DESC"
	limit := input.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if input.Offset > 0 {
		args = append(args, input.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (s *Store) UpdateTransactionAmount(ctx context.Context, transactionID int64, amount decimal.Decimal) (models.Transaction, error) {
	if !amount.IsPositive() {
		return models.Transaction{}, store.ErrInvalidAmount
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Transaction{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	paid, oldStatus, err := lockTransaction(ctx, tx, transactionID)
	if err != nil {
		return models.Transaction{}, err
	}

	newStatus := models.PaymentStatusFor(paid, amount)
	balance := amount.Sub(paid)
	if _, err = tx.Exec(ctx, `
		UPDATE transactions
		SET amount = $2, balance_amount = $3, payment_status = $4, updated_at = now()
		WHERE id = $1
	`, transactionID, amount.StringFixed(2), balance.StringFixed(2), newStatus); err != nil {
		return models.Transaction{}, err
	}

	txn, err := getTransactionTx(ctx, tx, transactionID)
	if err != nil {
		return models.Transaction{}, err
	}
	if err = insertOutboxEvent(ctx, tx, store.EventTransactionUpdated, map[string]any{"transaction": txn}); err != nil {
		return models.Transaction{}, err
	}
	if newStatus != oldStatus {
		if err = emitPaymentStatus(ctx, tx, txn, oldStatus); err != nil {
			return models.Transaction{}, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Transaction{}, err
	}
	return txn, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, transactionID int64) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM settlements WHERE transaction_id = $1`, transactionID); err != nil {
		return err
	}
	var tag pgconn.CommandTag
	tag, err = tx.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, transactionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = store.ErrTransactionNotFound
		return err
	}
	return tx.Commit(ctx)
}

// RecordSettlement appends a payment and recomputes the transaction's
// derived totals. Partial payments over several visits are normal; only
// paying past the balance is rejected.
func (s *Store) RecordSettlement(ctx context.Context, input store.RecordSettlementInput) (models.Transaction, []models.Settlement, error) {
	if !input.Amount.IsPositive() {
		return models.Transaction{}, nil, store.ErrInvalidAmount
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Transaction{}, nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var (
		amountText string
		oldStatus  string
	)
	err = tx.QueryRow(ctx, `
		SELECT amount::text, payment_status FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, input.TransactionID).Scan(&amountText, &oldStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		err = store.ErrTransactionNotFound
		return models.Transaction{}, nil, err
	}
	if err != nil {
		return models.Transaction{}, nil, err
	}
	amount, err := decimal.NewFromString(amountText)
	if err != nil {
		return models.Transaction{}, nil, err
	}

	// Sum from the settlement rows themselves, not the cached column, so
	// a drifted cache cannot let an overpayment through.
	settled, err := sumSettlements(ctx, tx, input.TransactionID)
	if err != nil {
		return models.Transaction{}, nil, err
	}
	if settled.Add(input.Amount).GreaterThan(amount) {
		err = store.ErrSettlementExceeds
		return models.Transaction{}, nil, err
	}

	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	var settlementID int64
	if err = tx.QueryRow(ctx, `
		INSERT INTO settlements (transaction_id, amount, payment_mode, cashier_id, notes, paid_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, input.TransactionID, input.Amount.StringFixed(2), input.PaymentMode,
		input.CashierID, nullIfEmpty(input.Notes), paidAt).Scan(&settlementID); err != nil {
		return models.Transaction{}, nil, err
	}

	newPaid := settled.Add(input.Amount)
	newStatus := models.PaymentStatusFor(newPaid, amount)
	if _, err = tx.Exec(ctx, `
		UPDATE transactions
		SET paid_amount = $2, balance_amount = $3, payment_status = $4, cashier_id = $5, updated_at = now()
		WHERE id = $1
	`, input.TransactionID, newPaid.StringFixed(2), amount.Sub(newPaid).StringFixed(2), newStatus, input.CashierID); err != nil {
		return models.Transaction{}, nil, err
	}

	txn, err := getTransactionTx(ctx, tx, input.TransactionID)
	if err != nil {
		return models.Transaction{}, nil, err
	}
	settlements, err := listSettlementsTx(ctx, tx, input.TransactionID)
	if err != nil {
		return models.Transaction{}, nil, err
	}

	if err = insertOutboxEvent(ctx, tx, store.EventSettlementCreated, map[string]any{
		"transaction_id": input.TransactionID,
		"settlement_id":  settlementID,
		"amount":         input.Amount,
		"payment_mode":   input.PaymentMode,
		"transaction":    txn,
	}); err != nil {
		return models.Transaction{}, nil, err
	}
	if err = insertOutboxEvent(ctx, tx, store.EventTransactionUpdated, map[string]any{"transaction": txn}); err != nil {
		return models.Transaction{}, nil, err
	}
	if newStatus != oldStatus {
		if err = emitPaymentStatus(ctx, tx, txn, oldStatus); err != nil {
			return models.Transaction{}, nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Transaction{}, nil, err
	}
	return txn, settlements, nil
}

func (s *Store) ListSettlements(ctx context.Context, transactionID int64) ([]models.Settlement, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, transactionID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrTransactionNotFound
	}
	return listSettlementsTx(ctx, s.pool, transactionID)
}

// RecalculateTransaction rebuilds the derived totals from the settlement
// rows, healing any drift left by older writes.
func (s *Store) RecalculateTransaction(ctx context.Context, transactionID int64) (models.Transaction, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Transaction{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var (
		amountText  string
		oldPaidText string
		oldStatus   string
	)
	err = tx.QueryRow(ctx, `
		SELECT amount::text, paid_amount::text, payment_status FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, transactionID).Scan(&amountText, &oldPaidText, &oldStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		err = store.ErrTransactionNotFound
		return models.Transaction{}, err
	}
	if err != nil {
		return models.Transaction{}, err
	}
	amount, err := decimal.NewFromString(amountText)
	if err != nil {
		return models.Transaction{}, err
	}
	oldPaid, err := decimal.NewFromString(oldPaidText)
	if err != nil {
		return models.Transaction{}, err
	}

	paid, err := sumSettlements(ctx, tx, transactionID)
	if err != nil {
		return models.Transaction{}, err
	}
	newStatus := models.PaymentStatusFor(paid, amount)
	if _, err = tx.Exec(ctx, `
		UPDATE transactions
		SET paid_amount = $2, balance_amount = $3, payment_status = $4, updated_at = now()
		WHERE id = $1
	`, transactionID, paid.StringFixed(2), amount.Sub(paid).StringFixed(2), newStatus); err != nil {
		return models.Transaction{}, err
	}

	txn, err := getTransactionTx(ctx, tx, transactionID)
	if err != nil {
		return models.Transaction{}, err
	}
	// Notify only when the derived fields actually moved; a clean
	// recalculation stays silent.
	if !paid.Equal(oldPaid) || newStatus != oldStatus {
		if err = insertOutboxEvent(ctx, tx, store.EventTransactionUpdated, map[string]any{"transaction": txn}); err != nil {
			return models.Transaction{}, err
		}
	}
	if newStatus != oldStatus {
		if err = emitPaymentStatus(ctx, tx, txn, oldStatus); err != nil {
			return models.Transaction{}, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Transaction{}, err
	}
	return txn, nil
}

func lockTransaction(ctx context.Context, tx pgx.Tx, transactionID int64) (decimal.Decimal, string, error) {
	var (
		paidText string
		status   string
	)
	err := tx.QueryRow(ctx, `
		SELECT paid_amount::text, payment_status FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, transactionID).Scan(&paidText, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, "", store.ErrTransactionNotFound
	}
	if err != nil {
		return decimal.Zero, "", err
	}
	paid, err := decimal.NewFromString(paidText)
	if err != nil {
		return decimal.Zero, "", err
	}
	return paid, status, nil
}

func getTransactionTx(ctx context.Context, q querier, transactionID int64) (models.Transaction, error) {
	row := q.QueryRow(ctx, `SELECT `+transactionColumns+transactionFrom+` WHERE t.id = $1`, transactionID)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Transaction{}, store.ErrTransactionNotFound
	}
	return t, err
}

func sumSettlements(ctx context.Context, q querier, transactionID int64) (decimal.Decimal, error) {
	var text string
	if err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::text FROM settlements WHERE transaction_id = $1
	`, transactionID).Scan(&text); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(text)
}

func listSettlementsTx(ctx context.Context, q querier, transactionID int64) ([]models.Settlement, error) {
	rows, err := q.Query(ctx, `
		SELECT s.id, s.transaction_id, s.amount::text, s.payment_mode,
			s.cashier_id, COALESCE(u.full_name, ''), COALESCE(s.notes, ''), s.paid_at
		FROM settlements s
		LEFT JOIN users u ON u.id = s.cashier_id
		WHERE s.transaction_id = $1
		ORDER BY s.paid_at ASC, s.id ASC
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settlements []models.Settlement
	for rows.Next() {
		var (
			st         models.Settlement
			amountText string
			cashierID  sql.NullInt64
		)
		if err := rows.Scan(&st.ID, &st.TransactionID, &amountText, &st.PaymentMode,
			&cashierID, &st.CashierName, &st.Notes, &st.PaidAt); err != nil {
			return nil, err
		}
		if cashierID.Valid {
			id := cashierID.Int64
			st.CashierID = &id
		}
		st.Amount, err = decimal.NewFromString(amountText)
		if err != nil {
			return nil, err
		}
		settlements = append(settlements, st)
	}
	return settlements, rows.Err()
}

func emitPaymentStatus(ctx context.Context, tx pgx.Tx, txn models.Transaction, oldStatus string) error {
	return insertOutboxEvent(ctx, tx, store.EventPaymentStatusUpdated, map[string]any{
		"transaction_id": txn.ID,
		"or_number":      txn.ORNumber,
		"old_status":     oldStatus,
		"new_status":     txn.PaymentStatus,
		"paid_amount":    txn.PaidAmount,
		"balance_amount": txn.BalanceAmount,
	})
}
