package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/v10ss/escashop/internal/models"
	"github.com/v10ss/escashop/internal/store"
)

type Handler struct {
	store       store.Store
	sessionTTL  time.Duration
	resetPolicy string
}

type Options struct {
	SessionTTL  time.Duration
	ResetPolicy string
}

func NewHandler(st store.Store, options Options) *Handler {
	ttl := options.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	policy := options.ResetPolicy
	if policy == "" {
		policy = store.ResetPolicyCancel
	}
	return &Handler{store: st, sessionTTL: ttl, resetPolicy: policy}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)

	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
	mux.HandleFunc("/api/auth/me", h.handleMe)
	mux.HandleFunc("/api/users", h.handleUsers)

	mux.HandleFunc("/api/customers", h.handleCustomers)
	mux.HandleFunc("/api/customers/", h.handleCustomerByID)

	mux.HandleFunc("/api/queue", h.handleQueue)
	mux.HandleFunc("/api/queue/statistics", h.handleQueueStatistics)
	mux.HandleFunc("/api/queue/display", h.handleQueueDisplay)
	mux.HandleFunc("/api/queue/position", h.handleQueuePosition)
	mux.HandleFunc("/api/queue/call-next", h.handleCallNext)
	mux.HandleFunc("/api/queue/call", h.handleCallCustomer)
	mux.HandleFunc("/api/queue/change-status", h.handleChangeStatus)
	mux.HandleFunc("/api/queue/complete", h.handleCompleteService)
	mux.HandleFunc("/api/queue/cancel", h.handleCancelService)
	mux.HandleFunc("/api/queue/reorder", h.handleReorderQueue)
	mux.HandleFunc("/api/queue/reset", h.handleResetQueue)

	mux.HandleFunc("/api/counters", h.handleCounters)
	mux.HandleFunc("/api/counters/", h.handleCounterByID)

	mux.HandleFunc("/api/transactions", h.handleTransactions)
	mux.HandleFunc("/api/transactions/export", h.handleTransactionExport)
	mux.HandleFunc("/api/transactions/", h.handleTransactionByID)

	mux.HandleFunc("/api/reports/daily", h.handleDailyReport)
	mux.HandleFunc("/api/reports/monthly", h.handleMonthlyReport)

	mux.HandleFunc("/api/events", h.handleEvents)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireAnyRole(w, r, models.RoleAdmin, models.RoleSales, models.RoleCashier) {
		return
	}

	var after time.Time
	if afterRaw := strings.TrimSpace(r.URL.Query().Get("after")); afterRaw != "" {
		parsed, err := time.Parse(time.RFC3339, afterRaw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "after must be an RFC3339 timestamp")
			return
		}
		after = parsed
	}

	// Passing the last event id alongside its timestamp resumes exactly
	// after it, even when several events share the timestamp.
	afterID := strings.TrimSpace(r.URL.Query().Get("after_id"))

	limit := 100
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.store.ListOutboxEvents(r.Context(), after, afterID, limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrCustomerNotFound):
		return http.StatusNotFound, "customer_not_found", "customer not found"
	case errors.Is(err, store.ErrTransactionNotFound):
		return http.StatusNotFound, "transaction_not_found", "transaction not found"
	case errors.Is(err, store.ErrCounterNotFound):
		return http.StatusNotFound, "counter_not_found", "counter not found"
	case errors.Is(err, store.ErrReportNotFound):
		return http.StatusNotFound, "report_not_found", "daily report not found"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	case errors.Is(err, store.ErrNoCustomerWaiting):
		return http.StatusNotFound, "queue_empty", "no customer waiting"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", "queue status does not allow this change"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict", "resource was modified concurrently"
	case errors.Is(err, store.ErrCounterOccupied):
		return http.StatusConflict, "counter_occupied", "counter is already serving a customer"
	case errors.Is(err, store.ErrSettlementExceeds):
		return http.StatusUnprocessableEntity, "settlement_exceeds_balance", "settlement exceeds remaining balance"
	case errors.Is(err, store.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount", "amount must be positive"
	case errors.Is(err, store.ErrDuplicateOR):
		return http.StatusConflict, "duplicate_or_number", "or number already exists"
	case errors.Is(err, store.ErrDuplicateEmail):
		return http.StatusConflict, "duplicate_email", "email already registered"
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid email or password"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	case errors.Is(err, store.ErrAccessDenied):
		return http.StatusForbidden, "access_denied", "access denied"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: responseError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeBody(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

// pathID extracts the numeric id segment after the given prefix, plus
// any remaining path. "/api/transactions/42/settlements" yields (42,
// "settlements").
func pathID(r *http.Request, prefix string) (int64, string, bool) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	parts := strings.SplitN(rest, "/", 2)
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	if len(parts) == 2 {
		return id, parts[1], true
	}
	return id, "", true
}

func parseDate(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Now().UTC().Format("2006-01-02"), true
	}
	if _, err := time.Parse("2006-01-02", value); err != nil {
		return "", false
	}
	return value, true
}
