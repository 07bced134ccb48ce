package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/v10ss/escashop/internal/models"
	"github.com/v10ss/escashop/internal/store"
)

type fakeStore struct {
	registerFn      func(ctx context.Context, input store.RegisterCustomerInput) (models.Customer, models.Transaction, error)
	getCustomerFn   func(ctx context.Context, customerID int64) (models.Customer, error)
	listCustomersFn func(ctx context.Context, input store.ListCustomersInput) ([]models.Customer, error)
	updateCustFn    func(ctx context.Context, input store.UpdateCustomerInput) (models.Customer, error)
	listQueueFn     func(ctx context.Context, status string) ([]models.QueueEntry, error)
	positionFn      func(ctx context.Context, customerID int64) (models.QueueEntry, error)
	callNextFn      func(ctx context.Context, input store.CallNextInput) (models.Customer, error)
	callCustomerFn  func(ctx context.Context, input store.CallCustomerInput) (models.Customer, error)
	changeStatusFn  func(ctx context.Context, input store.ChangeStatusInput) (models.Customer, error)
	reorderFn       func(ctx context.Context, items []store.ReorderItem, userID int64) ([]models.QueueEntry, error)
	resetFn         func(ctx context.Context, input store.ResetQueueInput) (store.ResetResult, error)
	statsFn         func(ctx context.Context) (models.QueueStatistics, error)
	queueEventsFn   func(ctx context.Context, customerID int64) ([]store.QueueEvent, error)
	listCountersFn  func(ctx context.Context) ([]models.Counter, error)
	displayFn       func(ctx context.Context) ([]models.CounterDisplay, error)
	createCounterFn func(ctx context.Context, name string, displayOrder int) (models.Counter, error)
	updateCounterFn func(ctx context.Context, counterID int64, name *string, isActive *bool) (models.Counter, error)
	createTxnFn     func(ctx context.Context, input store.CreateTransactionInput) (models.Transaction, error)
	getTxnFn        func(ctx context.Context, transactionID int64) (models.Transaction, error)
	listTxnsFn      func(ctx context.Context, input store.ListTransactionsInput) ([]models.Transaction, error)
	updateAmountFn  func(ctx context.Context, transactionID int64, amount decimal.Decimal) (models.Transaction, error)
	deleteTxnFn     func(ctx context.Context, transactionID int64) error
	settleFn        func(ctx context.Context, input store.RecordSettlementInput) (models.Transaction, []models.Settlement, error)
	listSettleFn    func(ctx context.Context, transactionID int64) ([]models.Settlement, error)
	recalcFn        func(ctx context.Context, transactionID int64) (models.Transaction, error)
	dailySummaryFn  func(ctx context.Context, date string) (models.DailySummary, error)
	monthlyFn       func(ctx context.Context, year, month int) (models.MonthlyReport, error)
	saveReportFn    func(ctx context.Context, input store.SaveDailyReportInput) (models.DailyReport, error)
	getReportFn     func(ctx context.Context, date string) (models.DailyReport, error)
	loginFn         func(ctx context.Context, email, password string, ttl time.Duration) (models.User, models.Session, error)
	logoutFn        func(ctx context.Context, sessionID string) error
	getSessionFn    func(ctx context.Context, sessionID string) (models.Session, models.User, error)
	createUserFn    func(ctx context.Context, input store.CreateUserInput) (models.User, error)
	listUsersFn     func(ctx context.Context) ([]models.User, error)
	outboxFn        func(ctx context.Context, after time.Time, afterID string, limit int) ([]store.OutboxEvent, error)
}

func (f fakeStore) RegisterCustomer(ctx context.Context, input store.RegisterCustomerInput) (models.Customer, models.Transaction, error) {
	if f.registerFn == nil {
		return models.Customer{}, models.Transaction{}, nil
	}
	return f.registerFn(ctx, input)
}

func (f fakeStore) GetCustomer(ctx context.Context, customerID int64) (models.Customer, error) {
	if f.getCustomerFn == nil {
		return models.Customer{}, nil
	}
	return f.getCustomerFn(ctx, customerID)
}

func (f fakeStore) ListCustomers(ctx context.Context, input store.ListCustomersInput) ([]models.Customer, error) {
	if f.listCustomersFn == nil {
		return nil, nil
	}
	return f.listCustomersFn(ctx, input)
}

func (f fakeStore) UpdateCustomer(ctx context.Context, input store.UpdateCustomerInput) (models.Customer, error) {
	if f.updateCustFn == nil {
		return models.Customer{}, nil
	}
	return f.updateCustFn(ctx, input)
}

func (f fakeStore) ListQueue(ctx context.Context, status string) ([]models.QueueEntry, error) {
	if f.listQueueFn == nil {
		return nil, nil
	}
	return f.listQueueFn(ctx, status)
}

func (f fakeStore) GetPosition(ctx context.Context, customerID int64) (models.QueueEntry, error) {
	if f.positionFn == nil {
		return models.QueueEntry{}, nil
	}
	return f.positionFn(ctx, customerID)
}

func (f fakeStore) CallNext(ctx context.Context, input store.CallNextInput) (models.Customer, error) {
	if f.callNextFn == nil {
		return models.Customer{}, nil
	}
	return f.callNextFn(ctx, input)
}

func (f fakeStore) CallCustomer(ctx context.Context, input store.CallCustomerInput) (models.Customer, error) {
	if f.callCustomerFn == nil {
		return models.Customer{}, nil
	}
	return f.callCustomerFn(ctx, input)
}

func (f fakeStore) ChangeStatus(ctx context.Context, input store.ChangeStatusInput) (models.Customer, error) {
	if f.changeStatusFn == nil {
		return models.Customer{}, nil
	}
	return f.changeStatusFn(ctx, input)
}

func (f fakeStore) ReorderQueue(ctx context.Context, items []store.ReorderItem, userID int64) ([]models.QueueEntry, error) {
	if f.reorderFn == nil {
		return nil, nil
	}
	return f.reorderFn(ctx, items, userID)
}

func (f fakeStore) ResetQueue(ctx context.Context, input store.ResetQueueInput) (store.ResetResult, error) {
	if f.resetFn == nil {
		return store.ResetResult{}, nil
	}
	return f.resetFn(ctx, input)
}

func (f fakeStore) QueueStatistics(ctx context.Context) (models.QueueStatistics, error) {
	if f.statsFn == nil {
		return models.QueueStatistics{}, nil
	}
	return f.statsFn(ctx)
}

func (f fakeStore) ListQueueEvents(ctx context.Context, customerID int64) ([]store.QueueEvent, error) {
	if f.queueEventsFn == nil {
		return nil, nil
	}
	return f.queueEventsFn(ctx, customerID)
}

func (f fakeStore) ListCounters(ctx context.Context) ([]models.Counter, error) {
	if f.listCountersFn == nil {
		return nil, nil
	}
	return f.listCountersFn(ctx)
}

func (f fakeStore) CounterDisplay(ctx context.Context) ([]models.CounterDisplay, error) {
	if f.displayFn == nil {
		return nil, nil
	}
	return f.displayFn(ctx)
}

func (f fakeStore) CreateCounter(ctx context.Context, name string, displayOrder int) (models.Counter, error) {
	if f.createCounterFn == nil {
		return models.Counter{}, nil
	}
	return f.createCounterFn(ctx, name, displayOrder)
}

func (f fakeStore) UpdateCounter(ctx context.Context, counterID int64, name *string, isActive *bool) (models.Counter, error) {
	if f.updateCounterFn == nil {
		return models.Counter{}, nil
	}
	return f.updateCounterFn(ctx, counterID, name, isActive)
}

func (f fakeStore) CreateTransaction(ctx context.Context, input store.CreateTransactionInput) (models.Transaction, error) {
	if f.createTxnFn == nil {
		return models.Transaction{}, nil
	}
	return f.createTxnFn(ctx, input)
}

func (f fakeStore) GetTransaction(ctx context.Context, transactionID int64) (models.Transaction, error) {
	if f.getTxnFn == nil {
		return models.Transaction{}, nil
	}
	return f.getTxnFn(ctx, transactionID)
}

func (f fakeStore) ListTransactions(ctx context.Context, input store.ListTransactionsInput) ([]models.Transaction, error) {
	if f.listTxnsFn == nil {
		return nil, nil
	}
	return f.listTxnsFn(ctx, input)
}

func (f fakeStore) UpdateTransactionAmount(ctx context.Context, transactionID int64, amount decimal.Decimal) (models.Transaction, error) {
	if f.updateAmountFn == nil {
		return models.Transaction{}, nil
	}
	return f.updateAmountFn(ctx, transactionID, amount)
}

func (f fakeStore) DeleteTransaction(ctx context.Context, transactionID int64) error {
	if f.deleteTxnFn == nil {
		return nil
	}
	return f.deleteTxnFn(ctx, transactionID)
}

func (f fakeStore) RecordSettlement(ctx context.Context, input store.RecordSettlementInput) (models.Transaction, []models.Settlement, error) {
	if f.settleFn == nil {
		return models.Transaction{}, nil, nil
	}
	return f.settleFn(ctx, input)
}

func (f fakeStore) ListSettlements(ctx context.Context, transactionID int64) ([]models.Settlement, error) {
	if f.listSettleFn == nil {
		return nil, nil
	}
	return f.listSettleFn(ctx, transactionID)
}

func (f fakeStore) RecalculateTransaction(ctx context.Context, transactionID int64) (models.Transaction, error) {
	if f.recalcFn == nil {
		return models.Transaction{}, nil
	}
	return f.recalcFn(ctx, transactionID)
}

func (f fakeStore) DailySummary(ctx context.Context, date string) (models.DailySummary, error) {
	if f.dailySummaryFn == nil {
		return models.DailySummary{}, nil
	}
	return f.dailySummaryFn(ctx, date)
}

func (f fakeStore) MonthlyReport(ctx context.Context, year, month int) (models.MonthlyReport, error) {
	if f.monthlyFn == nil {
		return models.MonthlyReport{}, nil
	}
	return f.monthlyFn(ctx, year, month)
}

func (f fakeStore) SaveDailyReport(ctx context.Context, input store.SaveDailyReportInput) (models.DailyReport, error) {
	if f.saveReportFn == nil {
		return models.DailyReport{}, nil
	}
	return f.saveReportFn(ctx, input)
}

func (f fakeStore) GetDailyReport(ctx context.Context, date string) (models.DailyReport, error) {
	if f.getReportFn == nil {
		return models.DailyReport{}, nil
	}
	return f.getReportFn(ctx, date)
}

func (f fakeStore) Login(ctx context.Context, email, password string, ttl time.Duration) (models.User, models.Session, error) {
	if f.loginFn == nil {
		return models.User{}, models.Session{}, nil
	}
	return f.loginFn(ctx, email, password, ttl)
}

func (f fakeStore) Logout(ctx context.Context, sessionID string) error {
	if f.logoutFn == nil {
		return nil
	}
	return f.logoutFn(ctx, sessionID)
}

func (f fakeStore) GetSession(ctx context.Context, sessionID string) (models.Session, models.User, error) {
	if f.getSessionFn == nil {
		return models.Session{}, models.User{}, store.ErrSessionNotFound
	}
	return f.getSessionFn(ctx, sessionID)
}

func (f fakeStore) CreateUser(ctx context.Context, input store.CreateUserInput) (models.User, error) {
	if f.createUserFn == nil {
		return models.User{}, nil
	}
	return f.createUserFn(ctx, input)
}

func (f fakeStore) ListUsers(ctx context.Context) ([]models.User, error) {
	if f.listUsersFn == nil {
		return nil, nil
	}
	return f.listUsersFn(ctx)
}

func (f fakeStore) ListOutboxEvents(ctx context.Context, after time.Time, afterID string, limit int) ([]store.OutboxEvent, error) {
	if f.outboxFn == nil {
		return nil, nil
	}
	return f.outboxFn(ctx, after, afterID, limit)
}

func asUser(r *http.Request, role string) *http.Request {
	ctx := context.WithValue(r.Context(), authContextKey{}, authInfo{
		Session: models.Session{SessionID: "sess", UserID: 7},
		User:    models.User{ID: 7, Email: "user@example.test", Role: role, Active: true},
	})
	return r.WithContext(ctx)
}

func TestRegisterCustomerValidation(t *testing.T) {
	handler := NewHandler(fakeStore{}, Options{})
	routes := handler.Routes()

	cases := []struct {
		name string
		body string
	}{
		{"missing name", `{"contact_number":"09171234567","age":30,"payment_mode":"cash","payment_amount":100}`},
		{"bad payment mode", `{"name":"Ana","contact_number":"09171234567","age":30,"payment_mode":"check","payment_amount":100}`},
		{"zero age", `{"name":"Ana","contact_number":"09171234567","age":0,"payment_mode":"cash","payment_amount":100}`},
		{"negative amount", `{"name":"Ana","contact_number":"09171234567","age":30,"payment_mode":"cash","payment_amount":-5}`},
		{"unknown field", `{"name":"Ana","contact_number":"09171234567","age":30,"payment_mode":"cash","payment_amount":100,"bogus":true}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/customers", bytes.NewBufferString(tc.body))
			rec := httptest.NewRecorder()
			routes.ServeHTTP(rec, asUser(req, models.RoleSales))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestRegisterCustomerDefaultsSalesAgent(t *testing.T) {
	var captured store.RegisterCustomerInput
	handler := NewHandler(fakeStore{
		registerFn: func(_ context.Context, input store.RegisterCustomerInput) (models.Customer, models.Transaction, error) {
			captured = input
			return models.Customer{ID: 1, Name: input.Name}, models.Transaction{ID: 1}, nil
		},
	}, Options{})

	body := `{"name":"Ana Cruz","contact_number":"09171234567","age":30,"payment_mode":"gcash","payment_amount":1500,"priority_flags":{"senior_citizen":false,"pwd":false,"pregnant":true}}`
	req := httptest.NewRequest(http.MethodPost, "/api/customers", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, asUser(req, models.RoleSales))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}
	if captured.SalesAgentID == nil || *captured.SalesAgentID != 7 {
		t.Fatalf("sales agent id = %v, want the signed-in agent's id", captured.SalesAgentID)
	}
	if !captured.PriorityFlags.Pregnant {
		t.Fatal("priority flags were not forwarded")
	}
}

func TestCallNextQueueEmpty(t *testing.T) {
	handler := NewHandler(fakeStore{
		callNextFn: func(_ context.Context, _ store.CallNextInput) (models.Customer, error) {
			return models.Customer{}, store.ErrNoCustomerWaiting
		},
	}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/queue/call-next", bytes.NewBufferString(`{"counter_id":1}`))
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, asUser(req, models.RoleCashier))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Error.Code != "queue_empty" {
		t.Fatalf("error code = %q, want queue_empty", resp.Error.Code)
	}
}

func TestChangeStatusInvalidTransition(t *testing.T) {
	handler := NewHandler(fakeStore{
		changeStatusFn: func(_ context.Context, _ store.ChangeStatusInput) (models.Customer, error) {
			return models.Customer{}, store.ErrInvalidTransition
		},
	}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/queue/change-status", bytes.NewBufferString(`{"customer_id":5,"status":"completed"}`))
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, asUser(req, models.RoleCashier))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestReorderQueueAssignsPositionsInOrder(t *testing.T) {
	var captured []store.ReorderItem
	handler := NewHandler(fakeStore{
		reorderFn: func(_ context.Context, items []store.ReorderItem, _ int64) ([]models.QueueEntry, error) {
			captured = items
			return nil, nil
		},
	}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/queue/reorder", bytes.NewBufferString(`{"customer_ids":[9,4,7]}`))
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, asUser(req, models.RoleAdmin))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(captured) != 3 {
		t.Fatalf("items = %d, want 3", len(captured))
	}
	wantIDs := []int64{9, 4, 7}
	for i, item := range captured {
		if item.CustomerID != wantIDs[i] {
			t.Fatalf("item %d customer = %d, want %d", i, item.CustomerID, wantIDs[i])
		}
		if item.Position == nil || *item.Position != i+1 {
			t.Fatalf("item %d position = %v, want %d", i, item.Position, i+1)
		}
	}
}

func TestReorderQueueValidation(t *testing.T) {
	handler := NewHandler(fakeStore{}, Options{})
	for _, body := range []string{
		`{"customer_ids":[]}`,
		`{"customer_ids":[0]}`,
		`{"customer_ids":[3,3]}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/queue/reorder", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		handler.Routes().ServeHTTP(rec, asUser(req, models.RoleAdmin))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestCompleteServiceShortcut(t *testing.T) {
	var captured store.ChangeStatusInput
	handler := NewHandler(fakeStore{
		changeStatusFn: func(_ context.Context, input store.ChangeStatusInput) (models.Customer, error) {
			captured = input
			return models.Customer{ID: input.CustomerID, QueueStatus: input.ToStatus}, nil
		},
	}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/queue/complete", bytes.NewBufferString(`{"customer_id":5,"counter_id":2}`))
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, asUser(req, models.RoleCashier))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if captured.ToStatus != models.StatusCompleted {
		t.Fatalf("to status = %q, want completed", captured.ToStatus)
	}
	if captured.CounterID == nil || *captured.CounterID != 2 {
		t.Fatalf("counter id not forwarded: %v", captured.CounterID)
	}
}

func TestCancelServiceForwardsReason(t *testing.T) {
	var captured store.ChangeStatusInput
	handler := NewHandler(fakeStore{
		changeStatusFn: func(_ context.Context, input store.ChangeStatusInput) (models.Customer, error) {
			captured = input
			return models.Customer{ID: input.CustomerID, QueueStatus: input.ToStatus}, nil
		},
	}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/queue/cancel", bytes.NewBufferString(`{"customer_id":5,"reason":"customer left"}`))
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, asUser(req, models.RoleCashier))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if captured.ToStatus != models.StatusCancelled {
		t.Fatalf("to status = %q, want cancelled", captured.ToStatus)
	}
	if captured.Reason != "customer left" {
		t.Fatalf("reason = %q", captured.Reason)
	}
}

func TestSettlementExceedsBalance(t *testing.T) {
	handler := NewHandler(fakeStore{
		settleFn: func(_ context.Context, _ store.RecordSettlementInput) (models.Transaction, []models.Settlement, error) {
			return models.Transaction{}, nil, store.ErrSettlementExceeds
		},
	}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/transactions/9/settlements", bytes.NewBufferString(`{"amount":999,"payment_mode":"cash"}`))
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, asUser(req, models.RoleCashier))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestRoleEnforcement(t *testing.T) {
	handler := NewHandler(fakeStore{}, Options{})
	routes := handler.Routes()

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		role   string
		want   int
	}{
		{"sales cannot call next", http.MethodPost, "/api/queue/call-next", `{"counter_id":1}`, models.RoleSales, http.StatusForbidden},
		{"cashier cannot reset queue", http.MethodPost, "/api/queue/reset", `{}`, models.RoleCashier, http.StatusForbidden},
		{"cashier cannot create users", http.MethodPost, "/api/users", `{}`, models.RoleCashier, http.StatusForbidden},
		{"cashier cannot register customers", http.MethodPost, "/api/customers", `{}`, models.RoleCashier, http.StatusForbidden},
		{"sales cannot delete transactions", http.MethodDelete, "/api/transactions/3", "", models.RoleSales, http.StatusForbidden},
		{"admin can reset queue", http.MethodPost, "/api/queue/reset", `{}`, models.RoleAdmin, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString(tc.body))
			rec := httptest.NewRecorder()
			routes.ServeHTTP(rec, asUser(req, tc.role))
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	st := fakeStore{
		getSessionFn: func(_ context.Context, sessionID string) (models.Session, models.User, error) {
			if sessionID != "valid-session" {
				return models.Session{}, models.User{}, store.ErrSessionNotFound
			}
			return models.Session{SessionID: sessionID, UserID: 2},
				models.User{ID: 2, Role: models.RoleCashier, Active: true}, nil
		},
	}
	handler := NewHandler(st, Options{})
	wrapped := AuthMiddleware(st, handler.Routes())

	req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no-session status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	req.Header.Set("Authorization", "Bearer valid-session")
	rec = httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid-session status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}

	// The waiting-area display stays reachable without credentials.
	req = httptest.NewRequest(http.MethodGet, "/api/queue/display", nil)
	rec = httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("display status = %d, want 200", rec.Code)
	}
}

func TestLoginSetsSessionCookie(t *testing.T) {
	handler := NewHandler(fakeStore{
		loginFn: func(_ context.Context, email, password string, ttl time.Duration) (models.User, models.Session, error) {
			if email != "admin@example.test" || password != "secret123" {
				return models.User{}, models.Session{}, store.ErrInvalidCredentials
			}
			return models.User{ID: 1, Email: email, Role: models.RoleAdmin, Active: true},
				models.Session{SessionID: "new-session", UserID: 1, ExpiresAt: time.Now().Add(ttl)}, nil
		},
	}, Options{SessionTTL: time.Hour})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"email":"admin@example.test","password":"secret123"}`))
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	var found bool
	for _, cookie := range cookies {
		if cookie.Name == sessionCookieName && cookie.Value == "new-session" {
			found = true
		}
	}
	if !found {
		t.Fatal("session cookie was not set")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"email":"admin@example.test","password":"wrong"}`))
	rec = httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad-password status = %d, want 401", rec.Code)
	}
}

func TestTransactionExportCSV(t *testing.T) {
	handler := NewHandler(fakeStore{
		listTxnsFn: func(_ context.Context, _ store.ListTransactionsInput) ([]models.Transaction, error) {
			return []models.Transaction{{
				ID:              1,
				ORNumber:        "OR250601001-ABCDEF",
				CustomerName:    "Ana Cruz",
				Amount:          decimal.NewFromInt(1500),
				PaymentMode:     models.PaymentCash,
				PaidAmount:      decimal.NewFromInt(500),
				BalanceAmount:   decimal.NewFromInt(1000),
				PaymentStatus:   models.PaymentPartial,
				TransactionDate: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
			}}, nil
		},
	}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/transactions/export?date=2025-06-01", nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, asUser(req, models.RoleCashier))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/csv" {
		t.Fatalf("content type = %q, want text/csv", got)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("OR250601001-ABCDEF")) {
		t.Fatal("csv body does not contain the exported transaction")
	}
}

func TestQueuePositionValidation(t *testing.T) {
	handler := NewHandler(fakeStore{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/queue/position?customer_id=abc", nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, asUser(req, models.RoleSales))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestResetQueueRejectsUnknownPolicy(t *testing.T) {
	handler := NewHandler(fakeStore{}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/queue/reset", bytes.NewBufferString(`{"policy":"purge"}`))
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, asUser(req, models.RoleAdmin))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
