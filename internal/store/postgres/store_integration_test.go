package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/v10ss/escashop/internal/models"
	"github.com/v10ss/escashop/internal/store"
)

func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schemaName := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := createTestSchema(ctx, dsn, schemaName); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schemaName)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	st := NewStore(pool, Options{AvgServiceMinutes: 15})
	if err := st.EnsureSchema(ctx); err != nil {
		pool.Close()
		t.Fatalf("ensure schema: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = dropTestSchema(context.Background(), dsn, schemaName)
	}
	return st, pool, cleanup
}

func createTestSchema(ctx context.Context, dsn, name string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", name))
	return err
}

func dropTestSchema(ctx context.Context, dsn, name string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", name))
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, name string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	config.ConnConfig.RuntimeParams["search_path"] = name
	return pgxpool.NewWithConfig(ctx, config)
}

func registerTestCustomer(t *testing.T, ctx context.Context, st *Store, name string, flags models.PriorityFlags) (models.Customer, models.Transaction) {
	t.Helper()
	customer, txn, err := st.RegisterCustomer(ctx, store.RegisterCustomerInput{
		Name:          name,
		ContactNumber: "09171234567",
		Age:           35,
		PaymentMode:   models.PaymentCash,
		PaymentAmount: decimal.NewFromInt(1500),
		PriorityFlags: flags,
	})
	if err != nil {
		t.Fatalf("register customer: %v", err)
	}
	return customer, txn
}

func TestRegisterCustomerOpensUnpaidTransaction(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	customer, txn := registerTestCustomer(t, ctx, st, "Ana Cruz", models.PriorityFlags{})

	if customer.QueueStatus != models.StatusWaiting {
		t.Fatalf("new customer status = %q, want waiting", customer.QueueStatus)
	}
	if customer.TokenNumber != 1 {
		t.Fatalf("first token of the day = %d, want 1", customer.TokenNumber)
	}
	if txn.PaymentStatus != models.PaymentUnpaid {
		t.Fatalf("initial transaction status = %q, want unpaid", txn.PaymentStatus)
	}
	if !txn.BalanceAmount.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("initial balance = %s, want 1500", txn.BalanceAmount)
	}
	if txn.ORNumber != customer.ORNumber {
		t.Fatalf("transaction or %q != customer or %q", txn.ORNumber, customer.ORNumber)
	}

	second, _ := registerTestCustomer(t, ctx, st, "Ben Reyes", models.PriorityFlags{})
	if second.TokenNumber != 2 {
		t.Fatalf("second token of the day = %d, want 2", second.TokenNumber)
	}
}

func TestCallNextPrefersPriority(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	counter, err := st.CreateCounter(ctx, "Counter 1", 1)
	if err != nil {
		t.Fatalf("create counter: %v", err)
	}

	regular, _ := registerTestCustomer(t, ctx, st, "Regular First", models.PriorityFlags{})
	senior, _ := registerTestCustomer(t, ctx, st, "Senior Later", models.PriorityFlags{SeniorCitizen: true})

	called, err := st.CallNext(ctx, store.CallNextInput{CounterID: counter.ID})
	if err != nil {
		t.Fatalf("call next: %v", err)
	}
	if called.ID != senior.ID {
		t.Fatalf("called customer %d, want the senior %d before the regular %d", called.ID, senior.ID, regular.ID)
	}
	if called.QueueStatus != models.StatusServing {
		t.Fatalf("called customer status = %q, want serving", called.QueueStatus)
	}

	var current int64
	if err := pool.QueryRow(ctx, `SELECT current_customer_id FROM counters WHERE id = $1`, counter.ID).Scan(&current); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if current != senior.ID {
		t.Fatalf("counter holds %d, want %d", current, senior.ID)
	}
}

func TestCallNextConcurrencyAssignsDistinctCustomers(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	counterA, err := st.CreateCounter(ctx, "Counter A", 1)
	if err != nil {
		t.Fatalf("create counter: %v", err)
	}
	counterB, err := st.CreateCounter(ctx, "Counter B", 2)
	if err != nil {
		t.Fatalf("create counter: %v", err)
	}

	registerTestCustomer(t, ctx, st, "First", models.PriorityFlags{})
	registerTestCustomer(t, ctx, st, "Second", models.PriorityFlags{})

	var wg sync.WaitGroup
	results := make(chan int64, 2)
	for _, counterID := range []int64{counterA.ID, counterB.ID} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			customer, err := st.CallNext(ctx, store.CallNextInput{CounterID: id})
			if err != nil {
				t.Errorf("call next on counter %d: %v", id, err)
				return
			}
			results <- customer.ID
		}(counterID)
	}
	wg.Wait()
	close(results)

	seen := map[int64]bool{}
	for id := range results {
		if seen[id] {
			t.Fatalf("customer %d called at two counters", id)
		}
		seen[id] = true
	}
	if len(seen) != 2 {
		t.Fatalf("called %d distinct customers, want 2", len(seen))
	}
}

func TestCallNextSkipsRowHeldByAnotherTransaction(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	counter, err := st.CreateCounter(ctx, "Counter 1", 1)
	if err != nil {
		t.Fatalf("create counter: %v", err)
	}

	senior, _ := registerTestCustomer(t, ctx, st, "Senior Head", models.PriorityFlags{SeniorCitizen: true})
	regular, _ := registerTestCustomer(t, ctx, st, "Regular Next", models.PriorityFlags{})

	// Hold a row lock on the head of the queue from a second session.
	blocker, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin blocker: %v", err)
	}
	defer func() { _ = blocker.Rollback(ctx) }()
	if _, err := blocker.Exec(ctx, `SELECT id FROM customers WHERE id = $1 FOR UPDATE`, senior.ID); err != nil {
		t.Fatalf("lock head row: %v", err)
	}

	// A locked head must not make the queue look empty; the next
	// customer in rank is claimed instead.
	called, err := st.CallNext(ctx, store.CallNextInput{CounterID: counter.ID})
	if err != nil {
		t.Fatalf("call next with locked head: %v", err)
	}
	if called.ID != regular.ID {
		t.Fatalf("called customer %d, want %d", called.ID, regular.ID)
	}
}

func TestCallNextHonorsManualPosition(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	counter, err := st.CreateCounter(ctx, "Counter 1", 1)
	if err != nil {
		t.Fatalf("create counter: %v", err)
	}

	registerTestCustomer(t, ctx, st, "Senior First", models.PriorityFlags{SeniorCitizen: true})
	pinned, _ := registerTestCustomer(t, ctx, st, "Pinned Last", models.PriorityFlags{})

	first := 1
	if _, err := st.ReorderQueue(ctx, []store.ReorderItem{{CustomerID: pinned.ID, Position: &first}}, 0); err != nil {
		t.Fatalf("reorder: %v", err)
	}

	called, err := st.CallNext(ctx, store.CallNextInput{CounterID: counter.ID})
	if err != nil {
		t.Fatalf("call next: %v", err)
	}
	if called.ID != pinned.ID {
		t.Fatalf("called customer %d, want manually pinned %d", called.ID, pinned.ID)
	}
}

func TestSettlementLifecycle(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	cashier, err := st.CreateUser(ctx, store.CreateUserInput{
		Email: "cashier@example.test", FullName: "Cashier One", Password: "secret123", Role: models.RoleCashier,
	})
	if err != nil {
		t.Fatalf("create cashier: %v", err)
	}

	_, txn := registerTestCustomer(t, ctx, st, "Payer", models.PriorityFlags{})

	updated, _, err := st.RecordSettlement(ctx, store.RecordSettlementInput{
		TransactionID: txn.ID,
		Amount:        decimal.NewFromInt(500),
		PaymentMode:   models.PaymentGCash,
		CashierID:     cashier.ID,
	})
	if err != nil {
		t.Fatalf("first settlement: %v", err)
	}
	if updated.PaymentStatus != models.PaymentPartial {
		t.Fatalf("status after partial payment = %q, want partial", updated.PaymentStatus)
	}

	_, _, err = st.RecordSettlement(ctx, store.RecordSettlementInput{
		TransactionID: txn.ID,
		Amount:        decimal.NewFromInt(2000),
		PaymentMode:   models.PaymentCash,
		CashierID:     cashier.ID,
	})
	if !errors.Is(err, store.ErrSettlementExceeds) {
		t.Fatalf("overpayment error = %v, want ErrSettlementExceeds", err)
	}

	updated, settlements, err := st.RecordSettlement(ctx, store.RecordSettlementInput{
		TransactionID: txn.ID,
		Amount:        decimal.NewFromInt(1000),
		PaymentMode:   models.PaymentCash,
		CashierID:     cashier.ID,
	})
	if err != nil {
		t.Fatalf("final settlement: %v", err)
	}
	if updated.PaymentStatus != models.PaymentPaid {
		t.Fatalf("status after full payment = %q, want paid", updated.PaymentStatus)
	}
	if !updated.BalanceAmount.IsZero() {
		t.Fatalf("balance after full payment = %s, want 0", updated.BalanceAmount)
	}
	if len(settlements) != 2 {
		t.Fatalf("settlement count = %d, want 2", len(settlements))
	}
}

func countOutboxEvents(t *testing.T, ctx context.Context, st *Store, eventType string) int {
	t.Helper()
	events, err := st.ListOutboxEvents(ctx, time.Time{}, "", 500)
	if err != nil {
		t.Fatalf("list outbox events: %v", err)
	}
	n := 0
	for _, ev := range events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

func TestRecalculateEmitsOnlyWhenTotalsDrift(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	cashier, err := st.CreateUser(ctx, store.CreateUserInput{
		Email: "drift@example.test", FullName: "Cashier Two", Password: "secret123", Role: models.RoleCashier,
	})
	if err != nil {
		t.Fatalf("create cashier: %v", err)
	}
	_, txn := registerTestCustomer(t, ctx, st, "Drifter", models.PriorityFlags{})

	if _, _, err := st.RecordSettlement(ctx, store.RecordSettlementInput{
		TransactionID: txn.ID,
		Amount:        decimal.NewFromInt(500),
		PaymentMode:   models.PaymentCash,
		CashierID:     cashier.ID,
	}); err != nil {
		t.Fatalf("settle: %v", err)
	}

	// A clean recalculation changes nothing and stays silent.
	updatedBefore := countOutboxEvents(t, ctx, st, store.EventTransactionUpdated)
	if _, err := st.RecalculateTransaction(ctx, txn.ID); err != nil {
		t.Fatalf("clean recalculate: %v", err)
	}
	if got := countOutboxEvents(t, ctx, st, store.EventTransactionUpdated); got != updatedBefore {
		t.Fatalf("clean recalculate emitted %d new events", got-updatedBefore)
	}

	// Drift the cached total without touching the status tier.
	if _, err := pool.Exec(ctx, `UPDATE transactions SET paid_amount = 100, balance_amount = 1400 WHERE id = $1`, txn.ID); err != nil {
		t.Fatalf("inject drift: %v", err)
	}
	statusBefore := countOutboxEvents(t, ctx, st, store.EventPaymentStatusUpdated)

	healed, err := st.RecalculateTransaction(ctx, txn.ID)
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if !healed.PaidAmount.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("healed paid = %s, want 500", healed.PaidAmount)
	}
	if healed.PaymentStatus != models.PaymentPartial {
		t.Fatalf("healed status = %q, want partial", healed.PaymentStatus)
	}
	if got := countOutboxEvents(t, ctx, st, store.EventTransactionUpdated); got != updatedBefore+1 {
		t.Fatalf("drift correction emitted %d transaction_updated events, want 1", got-updatedBefore)
	}
	if got := countOutboxEvents(t, ctx, st, store.EventPaymentStatusUpdated); got != statusBefore {
		t.Fatalf("status did not change but payment_status_updated was emitted")
	}
}

func TestListOutboxEventsKeysetPagination(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	// Three events sharing one timestamp force the tie-break.
	stamp := time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"aaa", "bbb", "ccc"} {
		if _, err := pool.Exec(ctx, `
			INSERT INTO outbox_events (event_id, type, payload, created_at)
			VALUES ($1, 'queue_reset', '{}'::jsonb, $2)
		`, id, stamp); err != nil {
			t.Fatalf("insert event %s: %v", id, err)
		}
	}

	page, err := st.ListOutboxEvents(ctx, time.Time{}, "", 2)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(page) != 2 || page[0].EventID != "aaa" || page[1].EventID != "bbb" {
		t.Fatalf("first page = %+v, want aaa then bbb", page)
	}

	rest, err := st.ListOutboxEvents(ctx, page[1].CreatedAt, page[1].EventID, 2)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(rest) != 1 || rest[0].EventID != "ccc" {
		t.Fatalf("second page = %+v, want exactly ccc", rest)
	}
}

func TestChangeStatusRejectsInvalidTransition(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	customer, _ := registerTestCustomer(t, ctx, st, "Walk-in", models.PriorityFlags{})

	_, err := st.ChangeStatus(ctx, store.ChangeStatusInput{
		CustomerID: customer.ID,
		ToStatus:   models.StatusCompleted,
	})
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("waiting -> completed error = %v, want ErrInvalidTransition", err)
	}
}

func TestQueueEventChainSurvivesLifecycle(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	counter, err := st.CreateCounter(ctx, "Counter 1", 1)
	if err != nil {
		t.Fatalf("create counter: %v", err)
	}
	customer, _ := registerTestCustomer(t, ctx, st, "Audited", models.PriorityFlags{PWD: true})

	if _, err := st.CallNext(ctx, store.CallNextInput{CounterID: counter.ID}); err != nil {
		t.Fatalf("call next: %v", err)
	}
	if _, err := st.ChangeStatus(ctx, store.ChangeStatusInput{CustomerID: customer.ID, ToStatus: models.StatusCompleted}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	events, err := st.ListQueueEvents(ctx, customer.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("event count = %d, want joined/called/served", len(events))
	}
	if err := store.VerifyQueueEventChain(events); err != nil {
		t.Fatalf("audit chain broken: %v", err)
	}
}

func TestResetQueueCancelsActiveCustomers(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	registerTestCustomer(t, ctx, st, "Left Behind", models.PriorityFlags{})
	registerTestCustomer(t, ctx, st, "Also Waiting", models.PriorityFlags{})

	result, err := st.ResetQueue(ctx, store.ResetQueueInput{Policy: store.ResetPolicyCancel})
	if err != nil {
		t.Fatalf("reset queue: %v", err)
	}
	if result.Affected != 2 {
		t.Fatalf("reset affected %d, want 2", result.Affected)
	}

	entries, err := st.ListQueue(ctx, models.StatusWaiting)
	if err != nil {
		t.Fatalf("list queue: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("waiting queue has %d entries after reset, want 0", len(entries))
	}
}
