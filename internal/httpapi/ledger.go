package httpapi

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/v10ss/escashop/internal/models"
	"github.com/v10ss/escashop/internal/store"
)

type createTransactionRequest struct {
	CustomerID   int64           `json:"customer_id"`
	ORNumber     string          `json:"or_number"`
	Amount       decimal.Decimal `json:"amount"`
	PaymentMode  string          `json:"payment_mode"`
	SalesAgentID *int64          `json:"sales_agent_id"`
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleListTransactions(w, r)
	case http.MethodPost:
		h.handleCreateTransaction(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	if !requireAnyRole(w, r, models.RoleAdmin, models.RoleCashier) {
		return
	}
	var req createTransactionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.ORNumber = strings.TrimSpace(req.ORNumber)
	if req.CustomerID <= 0 || req.ORNumber == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "customer_id and or_number are required")
		return
	}
	if !models.ValidPaymentMode(req.PaymentMode) {
		writeError(w, http.StatusBadRequest, "invalid_request", "payment_mode must be one of cash, gcash, maya, credit_card, bank_transfer")
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "invalid_amount", "amount must be positive")
		return
	}
	user, _ := userFromContext(r.Context())
	cashierID := user.ID

	txn, err := h.store.CreateTransaction(r.Context(), store.CreateTransactionInput{
		CustomerID:   req.CustomerID,
		ORNumber:     req.ORNumber,
		Amount:       req.Amount,
		PaymentMode:  req.PaymentMode,
		SalesAgentID: req.SalesAgentID,
		CashierID:    &cashierID,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	if !requireAnyRole(w, r, models.RoleAdmin, models.RoleSales, models.RoleCashier) {
		return
	}
	input, ok := transactionFilter(w, r)
	if !ok {
		return
	}
	txns, err := h.store.ListTransactions(r.Context(), input)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, txns)
}

func transactionFilter(w http.ResponseWriter, r *http.Request) (store.ListTransactionsInput, bool) {
	query := r.URL.Query()
	var input store.ListTransactionsInput

	if date := strings.TrimSpace(query.Get("date")); date != "" {
		if _, ok := parseDate(date); !ok {
			writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
			return input, false
		}
		input.Date = date
	}
	if mode := strings.TrimSpace(query.Get("payment_mode")); mode != "" {
		if !models.ValidPaymentMode(mode) {
			writeError(w, http.StatusBadRequest, "invalid_request", "payment_mode is not valid")
			return input, false
		}
		input.PaymentMode = mode
	}
	if status := strings.TrimSpace(query.Get("payment_status")); status != "" {
		switch status {
		case models.PaymentUnpaid, models.PaymentPartial, models.PaymentPaid:
			input.PaymentStatus = status
		default:
			writeError(w, http.StatusBadRequest, "invalid_request", "payment_status must be unpaid, partial, or paid")
			return input, false
		}
	}
	for _, field := range []struct {
		name string
		dst  **int64
	}{
		{"sales_agent_id", &input.SalesAgentID},
		{"cashier_id", &input.CashierID},
	} {
		if raw := strings.TrimSpace(query.Get(field.name)); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_request", field.name+" must be a positive integer")
				return input, false
			}
			*field.dst = &id
		}
	}

	limit, offset, ok := parsePagination(w, query.Get("limit"), query.Get("offset"))
	if !ok {
		return input, false
	}
	input.Limit = limit
	input.Offset = offset
	return input, true
}

func (h *Handler) handleTransactionExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireAnyRole(w, r, models.RoleAdmin, models.RoleCashier) {
		return
	}
	input, ok := transactionFilter(w, r)
	if !ok {
		return
	}
	if input.Limit == 0 {
		input.Limit = 500
	}
	txns, err := h.store.ListTransactions(r.Context(), input)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	filename := "transactions.csv"
	if input.Date != "" {
		filename = "transactions-" + input.Date + ".csv"
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"id", "or_number", "customer", "amount", "payment_mode", "paid_amount", "balance_amount", "payment_status", "transaction_date"})
	for _, t := range txns {
		_ = writer.Write([]string{
			strconv.FormatInt(t.ID, 10),
			t.ORNumber,
			t.CustomerName,
			t.Amount.StringFixed(2),
			t.PaymentMode,
			t.PaidAmount.StringFixed(2),
			t.BalanceAmount.StringFixed(2),
			t.PaymentStatus,
			t.TransactionDate.UTC().Format(time.RFC3339),
		})
	}
	writer.Flush()
}

type updateTransactionRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type settlementRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PaymentMode string          `json:"payment_mode"`
	Notes       string          `json:"notes"`
}

type settlementResponse struct {
	Transaction models.Transaction  `json:"transaction"`
	Settlements []models.Settlement `json:"settlements"`
}

func (h *Handler) handleTransactionByID(w http.ResponseWriter, r *http.Request) {
	transactionID, rest, ok := pathID(r, "/api/transactions/")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "transaction id must be a positive integer")
		return
	}

	switch {
	case rest == "" && r.Method == http.MethodGet:
		if !requireAnyRole(w, r, models.RoleAdmin, models.RoleSales, models.RoleCashier) {
			return
		}
		txn, err := h.store.GetTransaction(r.Context(), transactionID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, txn)
	case rest == "" && r.Method == http.MethodPatch:
		if !requireAnyRole(w, r, models.RoleAdmin, models.RoleCashier) {
			return
		}
		var req updateTransactionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if !req.Amount.IsPositive() {
			writeError(w, http.StatusBadRequest, "invalid_amount", "amount must be positive")
			return
		}
		txn, err := h.store.UpdateTransactionAmount(r.Context(), transactionID, req.Amount)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, txn)
	case rest == "" && r.Method == http.MethodDelete:
		if !requireAnyRole(w, r, models.RoleAdmin) {
			return
		}
		if err := h.store.DeleteTransaction(r.Context(), transactionID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case rest == "settlements" && r.Method == http.MethodGet:
		if !requireAnyRole(w, r, models.RoleAdmin, models.RoleSales, models.RoleCashier) {
			return
		}
		settlements, err := h.store.ListSettlements(r.Context(), transactionID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, settlements)
	case rest == "settlements" && r.Method == http.MethodPost:
		if !requireAnyRole(w, r, models.RoleAdmin, models.RoleCashier) {
			return
		}
		var req settlementRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if !req.Amount.IsPositive() {
			writeError(w, http.StatusBadRequest, "invalid_amount", "amount must be positive")
			return
		}
		if !models.ValidPaymentMode(req.PaymentMode) {
			writeError(w, http.StatusBadRequest, "invalid_request", "payment_mode must be one of cash, gcash, maya, credit_card, bank_transfer")
			return
		}
		user, _ := userFromContext(r.Context())

		txn, settlements, err := h.store.RecordSettlement(r.Context(), store.RecordSettlementInput{
			TransactionID: transactionID,
			Amount:        req.Amount,
			PaymentMode:   req.PaymentMode,
			CashierID:     user.ID,
			Notes:         strings.TrimSpace(req.Notes),
			PaidAt:        time.Now().UTC(),
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusCreated, settlementResponse{Transaction: txn, Settlements: settlements})
	case rest == "recalculate" && r.Method == http.MethodPost:
		if !requireAnyRole(w, r, models.RoleAdmin) {
			return
		}
		txn, err := h.store.RecalculateTransaction(r.Context(), transactionID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, txn)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type saveDailyReportRequest struct {
	Date           string               `json:"date"`
	PettyCashStart decimal.Decimal      `json:"petty_cash_start"`
	PettyCashEnd   decimal.Decimal      `json:"petty_cash_end"`
	Expenses       []models.ExpenseItem `json:"expenses"`
	Funds          []models.FundItem    `json:"funds"`
}

func (h *Handler) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !requireAnyRole(w, r, models.RoleAdmin, models.RoleCashier) {
			return
		}
		date, ok := parseDate(r.URL.Query().Get("date"))
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
			return
		}
		if r.URL.Query().Get("summary") == "true" {
			summary, err := h.store.DailySummary(r.Context(), date)
			if err != nil {
				status, code, msg := mapError(err)
				writeError(w, status, code, msg)
				return
			}
			writeJSON(w, http.StatusOK, summary)
			return
		}
		report, err := h.store.GetDailyReport(r.Context(), date)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, report)
	case http.MethodPost:
		if !requireAnyRole(w, r, models.RoleAdmin, models.RoleCashier) {
			return
		}
		var req saveDailyReportRequest
		if !decodeBody(w, r, &req) {
			return
		}
		date, ok := parseDate(req.Date)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
			return
		}
		report, err := h.store.SaveDailyReport(r.Context(), store.SaveDailyReportInput{
			Date:           date,
			PettyCashStart: req.PettyCashStart,
			PettyCashEnd:   req.PettyCashEnd,
			Expenses:       req.Expenses,
			Funds:          req.Funds,
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, report)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireAnyRole(w, r, models.RoleAdmin, models.RoleCashier) {
		return
	}

	now := time.Now().UTC()
	year, month := now.Year(), int(now.Month())
	if raw := strings.TrimSpace(r.URL.Query().Get("year")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 2000 || parsed > 2100 {
			writeError(w, http.StatusBadRequest, "invalid_request", "year must be a four digit year")
			return
		}
		year = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("month")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 12 {
			writeError(w, http.StatusBadRequest, "invalid_request", "month must be between 1 and 12")
			return
		}
		month = parsed
	}

	report, err := h.store.MonthlyReport(r.Context(), year, month)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
