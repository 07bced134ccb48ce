package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/v10ss/escashop/internal/models"
	"github.com/v10ss/escashop/internal/queue"
	"github.com/v10ss/escashop/internal/store"
)

const orNumberPad = 3

type Store struct {
	pool              *pgxpool.Pool
	avgServiceMinutes int
}

type Options struct {
	AvgServiceMinutes int
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	avg := options.AvgServiceMinutes
	if avg <= 0 {
		avg = queue.DefaultAvgServiceMinutes
	}
	return &Store{pool: pool, avgServiceMinutes: avg}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so read helpers
// can run inside or outside a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const customerColumns = `c.id, c.or_number, c.name, c.contact_number, COALESCE(c.email, ''), c.age,
	COALESCE(c.address, ''), COALESCE(c.occupation, ''), COALESCE(c.distribution_info, ''),
	c.sales_agent_id, COALESCE(u.full_name, ''), COALESCE(c.doctor_assigned, ''),
	c.prescription, COALESCE(c.grade_type, ''), COALESCE(c.lens_type, ''), COALESCE(c.frame_code, ''),
	c.payment_mode, c.payment_amount::text, COALESCE(c.remarks, ''), c.priority_flags,
	c.queue_status, c.token_number, c.manual_position, c.created_at, c.updated_at`

const customerFrom = ` FROM customers c LEFT JOIN users u ON u.id = c.sales_agent_id `

func scanCustomer(row pgx.Row) (models.Customer, error) {
	var (
		c               models.Customer
		salesAgentID    sql.NullInt64
		manualPosition  sql.NullInt32
		prescriptionRaw []byte
		flagsRaw        []byte
		amountText      string
	)
	err := row.Scan(&c.ID, &c.ORNumber, &c.Name, &c.ContactNumber, &c.Email, &c.Age,
		&c.Address, &c.Occupation, &c.DistributionInfo,
		&salesAgentID, &c.SalesAgentName, &c.DoctorAssigned,
		&prescriptionRaw, &c.GradeType, &c.LensType, &c.FrameCode,
		&c.PaymentInfo.Mode, &amountText, &c.Remarks, &flagsRaw,
		&c.QueueStatus, &c.TokenNumber, &manualPosition, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return models.Customer{}, err
	}
	if salesAgentID.Valid {
		id := salesAgentID.Int64
		c.SalesAgentID = &id
	}
	if manualPosition.Valid {
		pos := int(manualPosition.Int32)
		c.ManualPosition = &pos
	}
	if len(prescriptionRaw) > 0 {
		if err := json.Unmarshal(prescriptionRaw, &c.Prescription); err != nil {
			return models.Customer{}, fmt.Errorf("decode prescription: %w", err)
		}
	}
	if len(flagsRaw) > 0 {
		if err := json.Unmarshal(flagsRaw, &c.PriorityFlags); err != nil {
			return models.Customer{}, fmt.Errorf("decode priority flags: %w", err)
		}
	}
	c.PaymentInfo.Amount, err = decimal.NewFromString(amountText)
	if err != nil {
		return models.Customer{}, fmt.Errorf("decode payment amount: %w", err)
	}
	return c, nil
}

func (s *Store) RegisterCustomer(ctx context.Context, input store.RegisterCustomerInput) (models.Customer, models.Transaction, error) {
	if input.PaymentAmount.IsNegative() {
		return models.Customer{}, models.Transaction{}, store.ErrInvalidAmount
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Customer{}, models.Transaction{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	token, err := nextTokenNumber(ctx, tx, createdAt)
	if err != nil {
		return models.Customer{}, models.Transaction{}, err
	}
	orNumber := formatORNumber(createdAt, token)

	prescriptionRaw, err := json.Marshal(input.Prescription)
	if err != nil {
		return models.Customer{}, models.Transaction{}, err
	}
	flagsRaw, err := json.Marshal(input.PriorityFlags)
	if err != nil {
		return models.Customer{}, models.Transaction{}, err
	}

	var customerID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO customers (
			or_number, name, contact_number, email, age, address, occupation, distribution_info,
			sales_agent_id, doctor_assigned, prescription, grade_type, lens_type, frame_code,
			payment_mode, payment_amount, remarks, priority_flags,
			queue_status, token_number, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$21)
		RETURNING id
	`, orNumber, input.Name, input.ContactNumber, nullIfEmpty(input.Email), input.Age,
		nullIfEmpty(input.Address), nullIfEmpty(input.Occupation), nullIfEmpty(input.DistributionInfo),
		input.SalesAgentID, nullIfEmpty(input.DoctorAssigned), prescriptionRaw,
		nullIfEmpty(input.GradeType), nullIfEmpty(input.LensType), nullIfEmpty(input.FrameCode),
		input.PaymentMode, input.PaymentAmount.StringFixed(2), nullIfEmpty(input.Remarks), flagsRaw,
		models.StatusWaiting, token, createdAt).Scan(&customerID)
	if err != nil {
		return models.Customer{}, models.Transaction{}, err
	}

	// Every registration opens an unpaid transaction for the quoted amount.
	txn := models.Transaction{
		CustomerID:      customerID,
		ORNumber:        orNumber,
		Amount:          input.PaymentAmount,
		PaymentMode:     input.PaymentMode,
		SalesAgentID:    input.SalesAgentID,
		PaidAmount:      decimal.Zero,
		BalanceAmount:   input.PaymentAmount,
		PaymentStatus:   models.PaymentUnpaid,
		TransactionDate: createdAt,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO transactions (
			customer_id, or_number, amount, payment_mode, sales_agent_id,
			paid_amount, balance_amount, payment_status, transaction_date
		) VALUES ($1,$2,$3,$4,$5,0,$3,$6,$7)
		RETURNING id
	`, customerID, orNumber, input.PaymentAmount.StringFixed(2), input.PaymentMode,
		input.SalesAgentID, models.PaymentUnpaid, createdAt).Scan(&txn.ID)
	if err != nil {
		return models.Customer{}, models.Transaction{}, err
	}

	if err = insertQueueEvent(ctx, tx, queueEventInput{
		CustomerID: customerID,
		EventType:  store.EventJoined,
		ToStatus:   models.StatusWaiting,
		IsPriority: input.PriorityFlags.Any(),
		CreatedAt:  createdAt,
	}); err != nil {
		return models.Customer{}, models.Transaction{}, err
	}

	customer, err := getCustomerByID(ctx, tx, customerID)
	if err != nil {
		return models.Customer{}, models.Transaction{}, err
	}

	if err = insertOutboxEvent(ctx, tx, store.EventCustomerCreated, map[string]any{
		"customer":    customer,
		"transaction": txn,
	}); err != nil {
		return models.Customer{}, models.Transaction{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Customer{}, models.Transaction{}, err
	}
	return customer, txn, nil
}

func (s *Store) GetCustomer(ctx context.Context, customerID int64) (models.Customer, error) {
	return getCustomerByID(ctx, s.pool, customerID)
}

func (s *Store) ListCustomers(ctx context.Context, input store.ListCustomersInput) ([]models.Customer, error) {
	var (
		conds []string
		args  []any
	)
	if input.Status != "" {
		args = append(args, input.Status)
		conds = append(conds, fmt.Sprintf("c.queue_status = $%d", len(args)))
	}
	if input.Search != "" {
		args = append(args, "%"+input.Search+"%")
		conds = append(conds, fmt.Sprintf("(c.name ILIKE $%d OR c.or_number ILIKE $%d OR c.contact_number ILIKE $%d)", len(args), len(args), len(args)))
	}
	if input.Date != "" {
		args = append(args, input.Date)
		conds = append(conds, fmt.Sprintf("c.created_at::date = $%d::date", len(args)))
	}
	query := `SELECT ` + customerColumns + customerFrom
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY c.created_at DESC, c.id DESC"
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

	var customers []models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *Store) UpdateCustomer(ctx context.Context, input store.UpdateCustomerInput) (models.Customer, error) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if input.ContactNumber != nil {
		add("contact_number", *input.ContactNumber)
	}
	if input.Email != nil {
		add("email", nullIfEmpty(*input.Email))
	}
	if input.Address != nil {
		add("address", nullIfEmpty(*input.Address))
	}
	if input.DoctorAssigned != nil {
		add("doctor_assigned", nullIfEmpty(*input.DoctorAssigned))
	}
	if input.Prescription != nil {
		raw, err := json.Marshal(*input.Prescription)
		if err != nil {
			return models.Customer{}, err
		}
		add("prescription", raw)
	}
	if input.GradeType != nil {
		add("grade_type", nullIfEmpty(*input.GradeType))
	}
	if input.LensType != nil {
		add("lens_type", nullIfEmpty(*input.LensType))
	}
	if input.FrameCode != nil {
		add("frame_code", nullIfEmpty(*input.FrameCode))
	}
	if input.Remarks != nil {
		add("remarks", nullIfEmpty(*input.Remarks))
	}
	if input.PriorityFlags != nil {
		raw, err := json.Marshal(*input.PriorityFlags)
		if err != nil {
			return models.Customer{}, err
		}
		add("priority_flags", raw)
	}
	if len(sets) == 0 {
		return getCustomerByID(ctx, s.pool, input.CustomerID)
	}
	add("updated_at", time.Now().UTC())

	args = append(args, input.CustomerID)
	tag, err := s.pool.Exec(ctx, fmt.Sprintf("UPDATE customers SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args)), args...)
	if err != nil {
		return models.Customer{}, err
	}
	if tag.RowsAffected() == 0 {
		return models.Customer{}, store.ErrCustomerNotFound
	}
	return getCustomerByID(ctx, s.pool, input.CustomerID)
}

func getCustomerByID(ctx context.Context, q querier, customerID int64) (models.Customer, error) {
	row := q.QueryRow(ctx, `SELECT `+customerColumns+customerFrom+` WHERE c.id = $1`, customerID)
	customer, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Customer{}, store.ErrCustomerNotFound
	}
	return customer, err
}

// nextTokenNumber hands out the day's next token from a date-keyed
// counter row, resetting naturally at midnight.
func nextTokenNumber(ctx context.Context, tx pgx.Tx, at time.Time) (int, error) {
	var token int
	err := tx.QueryRow(ctx, `
		INSERT INTO daily_token_counters (day, next_number) VALUES ($1::date, 1)
		ON CONFLICT (day) DO UPDATE SET next_number = daily_token_counters.next_number + 1
		RETURNING next_number
	`, at.Format("2006-01-02")).Scan(&token)
	return token, err
}

func formatORNumber(at time.Time, token int) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("OR%s%0*d-%s", at.Format("060102"), orNumberPad, token, suffix)
}

type queueEventInput struct {
	CustomerID     int64
	EventType      string
	FromStatus     string
	ToStatus       string
	CounterID      *int64
	QueuePosition  *int
	WaitMinutes    *float64
	ServiceMinutes *float64
	IsPriority     bool
	CreatedAt      time.Time
}

// insertQueueEvent appends to the customer's hash-chained audit trail.
// The previous row is locked so concurrent writers cannot fork the chain.
func insertQueueEvent(ctx context.Context, tx pgx.Tx, input queueEventInput) error {
	var (
		prevSeq  int
		prevHash string
	)
	err := tx.QueryRow(ctx, `
		SELECT seq, hash FROM queue_events
		WHERE customer_id = $1
		ORDER BY seq DESC LIMIT 1
		FOR UPDATE
	`, input.CustomerID).Scan(&prevSeq, &prevHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	seq := prevSeq + 1
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	hash := store.ComputeQueueEventHash(prevHash, input.CustomerID, seq, input.EventType, input.FromStatus, input.ToStatus, createdAt)

	_, err = tx.Exec(ctx, `
		INSERT INTO queue_events (
			customer_id, seq, event_type, from_status, to_status, counter_id,
			queue_position, wait_time_minutes, service_time_minutes, is_priority,
			created_at, prev_hash, hash
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, input.CustomerID, seq, input.EventType, nullIfEmpty(input.FromStatus), nullIfEmpty(input.ToStatus),
		input.CounterID, input.QueuePosition, input.WaitMinutes, input.ServiceMinutes, input.IsPriority,
		createdAt, prevHash, hash)
	return err
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), eventType, raw, time.Now().UTC())
	return err
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func minutesBetween(from, to time.Time) float64 {
	if from.IsZero() || to.Before(from) {
		return 0
	}
	return to.Sub(from).Minutes()
}
