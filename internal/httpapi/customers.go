package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/v10ss/escashop/internal/models"
	"github.com/v10ss/escashop/internal/store"
)

type registerCustomerRequest struct {
	Name             string               `json:"name"`
	ContactNumber    string               `json:"contact_number"`
	Email            string               `json:"email"`
	Age              int                  `json:"age"`
	Address          string               `json:"address"`
	Occupation       string               `json:"occupation"`
	DistributionInfo string               `json:"distribution_info"`
	SalesAgentID     *int64               `json:"sales_agent_id"`
	DoctorAssigned   string               `json:"doctor_assigned"`
	Prescription     models.Prescription  `json:"prescription"`
	GradeType        string               `json:"grade_type"`
	LensType         string               `json:"lens_type"`
	FrameCode        string               `json:"frame_code"`
	PaymentMode      string               `json:"payment_mode"`
	PaymentAmount    decimal.Decimal      `json:"payment_amount"`
	Remarks          string               `json:"remarks"`
	PriorityFlags    models.PriorityFlags `json:"priority_flags"`
}

type registerCustomerResponse struct {
	Customer    models.Customer    `json:"customer"`
	Transaction models.Transaction `json:"transaction"`
}

func (h *Handler) handleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleRegisterCustomer(w, r)
	case http.MethodGet:
		h.handleListCustomers(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleRegisterCustomer(w http.ResponseWriter, r *http.Request) {
	if !requireAnyRole(w, r, models.RoleAdmin, models.RoleSales) {
		return
	}
	var req registerCustomerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.ContactNumber = strings.TrimSpace(req.ContactNumber)
	if req.Name == "" || req.ContactNumber == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name and contact_number are required")
		return
	}
	if req.Age <= 0 || req.Age > 150 {
		writeError(w, http.StatusBadRequest, "invalid_request", "age must be between 1 and 150")
		return
	}
	if !models.ValidPaymentMode(req.PaymentMode) {
		writeError(w, http.StatusBadRequest, "invalid_request", "payment_mode must be one of cash, gcash, maya, credit_card, bank_transfer")
		return
	}
	if req.PaymentAmount.IsNegative() {
		writeError(w, http.StatusBadRequest, "invalid_amount", "payment_amount must not be negative")
		return
	}

	// Registrations keyed in by a sales agent default to their own id.
	if req.SalesAgentID == nil {
		if user, ok := userFromContext(r.Context()); ok && user.Role == models.RoleSales {
			id := user.ID
			req.SalesAgentID = &id
		}
	}

	customer, txn, err := h.store.RegisterCustomer(r.Context(), store.RegisterCustomerInput{
		Name:             req.Name,
		ContactNumber:    req.ContactNumber,
		Email:            strings.TrimSpace(req.Email),
		Age:              req.Age,
		Address:          strings.TrimSpace(req.Address),
		Occupation:       strings.TrimSpace(req.Occupation),
		DistributionInfo: strings.TrimSpace(req.DistributionInfo),
		SalesAgentID:     req.SalesAgentID,
		DoctorAssigned:   strings.TrimSpace(req.DoctorAssigned),
		Prescription:     req.Prescription,
		GradeType:        strings.TrimSpace(req.GradeType),
		LensType:         strings.TrimSpace(req.LensType),
		FrameCode:        strings.TrimSpace(req.FrameCode),
		PaymentMode:      req.PaymentMode,
		PaymentAmount:    req.PaymentAmount,
		Remarks:          strings.TrimSpace(req.Remarks),
		PriorityFlags:    req.PriorityFlags,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, registerCustomerResponse{Customer: customer, Transaction: txn})
}

func (h *Handler) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	if !requireAnyRole(w, r, models.RoleAdmin, models.RoleSales, models.RoleCashier) {
		return
	}

	query := r.URL.Query()
	status := strings.TrimSpace(query.Get("status"))
	if status != "" && !models.ValidQueueStatus(status) {
		writeError(w, http.StatusBadRequest, "invalid_request", "status must be a valid queue status")
		return
	}
	date := strings.TrimSpace(query.Get("date"))
	if date != "" {
		if _, ok := parseDate(date); !ok {
			writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
			return
		}
	}
	limit, offset, ok := parsePagination(w, query.Get("limit"), query.Get("offset"))
	if !ok {
		return
	}

	customers, err := h.store.ListCustomers(r.Context(), store.ListCustomersInput{
		Status: status,
		Search: strings.TrimSpace(query.Get("search")),
		Date:   date,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

type updateCustomerRequest struct {
	ContactNumber  *string               `json:"contact_number"`
	Email          *string               `json:"email"`
	Address        *string               `json:"address"`
	DoctorAssigned *string               `json:"doctor_assigned"`
	Prescription   *models.Prescription  `json:"prescription"`
	GradeType      *string               `json:"grade_type"`
	LensType       *string               `json:"lens_type"`
	FrameCode      *string               `json:"frame_code"`
	Remarks        *string               `json:"remarks"`
	PriorityFlags  *models.PriorityFlags `json:"priority_flags"`
}

func (h *Handler) handleCustomerByID(w http.ResponseWriter, r *http.Request) {
	customerID, rest, ok := pathID(r, "/api/customers/")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "customer id must be a positive integer")
		return
	}

	switch {
	case rest == "" && r.Method == http.MethodGet:
		if !requireAnyRole(w, r, models.RoleAdmin, models.RoleSales, models.RoleCashier) {
			return
		}
		customer, err := h.store.GetCustomer(r.Context(), customerID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, customer)
	case rest == "" && r.Method == http.MethodPatch:
		if !requireAnyRole(w, r, models.RoleAdmin, models.RoleSales) {
			return
		}
		var req updateCustomerRequest
		if !decodeBody(w, r, &req) {
			return
		}
		customer, err := h.store.UpdateCustomer(r.Context(), store.UpdateCustomerInput{
			CustomerID:     customerID,
			ContactNumber:  req.ContactNumber,
			Email:          req.Email,
			Address:        req.Address,
			DoctorAssigned: req.DoctorAssigned,
			Prescription:   req.Prescription,
			GradeType:      req.GradeType,
			LensType:       req.LensType,
			FrameCode:      req.FrameCode,
			Remarks:        req.Remarks,
			PriorityFlags:  req.PriorityFlags,
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, customer)
	case rest == "events" && r.Method == http.MethodGet:
		if !requireAnyRole(w, r, models.RoleAdmin, models.RoleSales, models.RoleCashier) {
			return
		}
		events, err := h.store.ListQueueEvents(r.Context(), customerID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, events)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func parsePagination(w http.ResponseWriter, limitRaw, offsetRaw string) (int, int, bool) {
	limit, offset := 0, 0
	if raw := strings.TrimSpace(limitRaw); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return 0, 0, false
		}
		limit = parsed
	}
	if raw := strings.TrimSpace(offsetRaw); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "offset must not be negative")
			return 0, 0, false
		}
		offset = parsed
	}
	return limit, offset, true
}
