package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/v10ss/escashop/internal/models"
	"github.com/v10ss/escashop/internal/store"
)

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireAnyRole(w, r, models.RoleAdmin, models.RoleSales, models.RoleCashier) {
		return
	}

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status != "" && !models.ValidQueueStatus(status) {
		writeError(w, http.StatusBadRequest, "invalid_request", "status must be a valid queue status")
		return
	}

	entries, err := h.store.ListQueue(r.Context(), status)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleQueueStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireAnyRole(w, r, models.RoleAdmin, models.RoleSales, models.RoleCashier) {
		return
	}
	stats, err := h.store.QueueStatistics(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleQueueDisplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	display, err := h.store.CounterDisplay(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, display)
}

func (h *Handler) handleQueuePosition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireAnyRole(w, r, models.RoleAdmin, models.RoleSales, models.RoleCashier) {
		return
	}
	customerID, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("customer_id")), 10, 64)
	if err != nil || customerID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "customer_id must be a positive integer")
		return
	}

	entry, err := h.store.GetPosition(r.Context(), customerID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type callNextRequest struct {
	CounterID int64 `json:"counter_id"`
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireAnyRole(w, r, models.RoleAdmin, models.RoleCashier) {
		return
	}
	var req callNextRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CounterID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "counter_id is required")
		return
	}
	user, _ := userFromContext(r.Context())

	customer, err := h.store.CallNext(r.Context(), store.CallNextInput{
		CounterID: req.CounterID,
		UserID:    user.ID,
		CalledAt:  time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

type callCustomerRequest struct {
	CustomerID int64 `json:"customer_id"`
	CounterID  int64 `json:"counter_id"`
}

func (h *Handler) handleCallCustomer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireAnyRole(w, r, models.RoleAdmin, models.RoleCashier) {
		return
	}
	var req callCustomerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CustomerID <= 0 || req.CounterID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "customer_id and counter_id are required")
		return
	}
	user, _ := userFromContext(r.Context())

	customer, err := h.store.CallCustomer(r.Context(), store.CallCustomerInput{
		CustomerID: req.CustomerID,
		CounterID:  req.CounterID,
		UserID:     user.ID,
		CalledAt:   time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

type changeStatusRequest struct {
	CustomerID int64  `json:"customer_id"`
	Status     string `json:"status"`
	CounterID  *int64 `json:"counter_id"`
	Reason     string `json:"reason"`
}

func (h *Handler) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireAnyRole(w, r, models.RoleAdmin, models.RoleCashier) {
		return
	}
	var req changeStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CustomerID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "customer_id is required")
		return
	}
	if !models.ValidQueueStatus(req.Status) {
		writeError(w, http.StatusBadRequest, "invalid_request", "status must be a valid queue status")
		return
	}
	user, _ := userFromContext(r.Context())

	customer, err := h.store.ChangeStatus(r.Context(), store.ChangeStatusInput{
		CustomerID: req.CustomerID,
		ToStatus:   req.Status,
		CounterID:  req.CounterID,
		UserID:     user.ID,
		Reason:     strings.TrimSpace(req.Reason),
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

type completeServiceRequest struct {
	CustomerID int64  `json:"customer_id"`
	CounterID  *int64 `json:"counter_id"`
}

// handleCompleteService is a shortcut for the completed transition. The
// settlement ledger is untouched; payments land through settlements only.
func (h *Handler) handleCompleteService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireAnyRole(w, r, models.RoleAdmin, models.RoleCashier) {
		return
	}
	var req completeServiceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CustomerID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "customer_id is required")
		return
	}
	user, _ := userFromContext(r.Context())

	customer, err := h.store.ChangeStatus(r.Context(), store.ChangeStatusInput{
		CustomerID: req.CustomerID,
		ToStatus:   models.StatusCompleted,
		CounterID:  req.CounterID,
		UserID:     user.ID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

type cancelServiceRequest struct {
	CustomerID int64  `json:"customer_id"`
	Reason     string `json:"reason"`
}

func (h *Handler) handleCancelService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireAnyRole(w, r, models.RoleAdmin, models.RoleCashier) {
		return
	}
	var req cancelServiceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CustomerID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "customer_id is required")
		return
	}
	user, _ := userFromContext(r.Context())

	customer, err := h.store.ChangeStatus(r.Context(), store.ChangeStatusInput{
		CustomerID: req.CustomerID,
		ToStatus:   models.StatusCancelled,
		UserID:     user.ID,
		Reason:     strings.TrimSpace(req.Reason),
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

type reorderRequest struct {
	CustomerIDs []int64 `json:"customer_ids"`
}

// handleReorderQueue pins the listed customers in the given order:
// index+1 becomes each customer's manual position. Customers not listed
// keep their algorithmic rank.
func (h *Handler) handleReorderQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireAnyRole(w, r, models.RoleAdmin) {
		return
	}
	var req reorderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.CustomerIDs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "customer_ids must not be empty")
		return
	}
	seen := make(map[int64]bool, len(req.CustomerIDs))
	items := make([]store.ReorderItem, 0, len(req.CustomerIDs))
	for i, id := range req.CustomerIDs {
		if id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "customer ids must be positive integers")
			return
		}
		if seen[id] {
			writeError(w, http.StatusBadRequest, "invalid_request", "customer ids must not repeat")
			return
		}
		seen[id] = true
		pos := i + 1
		items = append(items, store.ReorderItem{CustomerID: id, Position: &pos})
	}
	user, _ := userFromContext(r.Context())

	entries, err := h.store.ReorderQueue(r.Context(), items, user.ID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type resetQueueRequest struct {
	Policy string `json:"policy"`
	Reason string `json:"reason"`
}

func (h *Handler) handleResetQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireAnyRole(w, r, models.RoleAdmin) {
		return
	}
	var req resetQueueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	policy := req.Policy
	if policy == "" {
		policy = h.resetPolicy
	}
	if policy != store.ResetPolicyCancel && policy != store.ResetPolicyArchive {
		writeError(w, http.StatusBadRequest, "invalid_request", "policy must be cancel or archive")
		return
	}
	user, _ := userFromContext(r.Context())

	result, err := h.store.ResetQueue(r.Context(), store.ResetQueueInput{
		Policy:   policy,
		AdminID:  user.ID,
		Reason:   strings.TrimSpace(req.Reason),
		OccursAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type createCounterRequest struct {
	Name         string `json:"name"`
	DisplayOrder int    `json:"display_order"`
}

func (h *Handler) handleCounters(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !requireAnyRole(w, r, models.RoleAdmin, models.RoleSales, models.RoleCashier) {
			return
		}
		counters, err := h.store.ListCounters(r.Context())
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, counters)
	case http.MethodPost:
		if !requireAnyRole(w, r, models.RoleAdmin) {
			return
		}
		var req createCounterRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
			return
		}
		counter, err := h.store.CreateCounter(r.Context(), req.Name, req.DisplayOrder)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusCreated, counter)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type updateCounterRequest struct {
	Name     *string `json:"name"`
	IsActive *bool   `json:"is_active"`
}

func (h *Handler) handleCounterByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireAnyRole(w, r, models.RoleAdmin) {
		return
	}
	counterID, rest, ok := pathID(r, "/api/counters/")
	if !ok || rest != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "counter id must be a positive integer")
		return
	}
	var req updateCounterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name must not be empty")
		return
	}

	counter, err := h.store.UpdateCounter(r.Context(), counterID, req.Name, req.IsActive)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, counter)
}
