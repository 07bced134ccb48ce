package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// amounts are plain numbers on the wire
	decimal.MarshalJSONWithoutQuotes = true
}

// Queue statuses. The string values are part of the wire contract.
const (
	StatusWaiting    = "waiting"
	StatusServing    = "serving"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

func ValidQueueStatus(status string) bool {
	switch status {
	case StatusWaiting, StatusServing, StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// PriorityFlags are independent booleans; a customer may hold several.
type PriorityFlags struct {
	SeniorCitizen bool `json:"senior_citizen"`
	PWD           bool `json:"pwd"`
	Pregnant      bool `json:"pregnant"`
}

func (f PriorityFlags) Any() bool {
	return f.SeniorCitizen || f.PWD || f.Pregnant
}

type Prescription struct {
	OD  string `json:"od,omitempty"`
	OS  string `json:"os,omitempty"`
	OU  string `json:"ou,omitempty"`
	PD  string `json:"pd,omitempty"`
	Add string `json:"add,omitempty"`
}

type PaymentInfo struct {
	Mode   string          `json:"mode"`
	Amount decimal.Decimal `json:"amount"`
}

type Customer struct {
	ID               int64         `json:"id"`
	ORNumber         string        `json:"or_number"`
	Name             string        `json:"name"`
	ContactNumber    string        `json:"contact_number"`
	Email            string        `json:"email,omitempty"`
	Age              int           `json:"age"`
	Address          string        `json:"address,omitempty"`
	Occupation       string        `json:"occupation,omitempty"`
	DistributionInfo string        `json:"distribution_info,omitempty"`
	SalesAgentID     *int64        `json:"sales_agent_id,omitempty"`
	SalesAgentName   string        `json:"sales_agent_name,omitempty"`
	DoctorAssigned   string        `json:"doctor_assigned,omitempty"`
	Prescription     Prescription  `json:"prescription"`
	GradeType        string        `json:"grade_type,omitempty"`
	LensType         string        `json:"lens_type,omitempty"`
	FrameCode        string        `json:"frame_code,omitempty"`
	PaymentInfo      PaymentInfo   `json:"payment_info"`
	Remarks          string        `json:"remarks,omitempty"`
	PriorityFlags    PriorityFlags `json:"priority_flags"`
	QueueStatus      string        `json:"queue_status"`
	TokenNumber      int           `json:"token_number"`
	ManualPosition   *int          `json:"manual_position,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// QueueEntry is a customer plus its derived ordering data, as returned by
// the queue listing endpoints.
type QueueEntry struct {
	CustomerID        int64    `json:"customer_id"`
	Customer          Customer `json:"customer"`
	Position          int      `json:"position"`
	PriorityScore     int      `json:"priority_score"`
	EstimatedWaitMins int      `json:"estimated_wait_time"`
}

type QueueStatistics struct {
	Total           int     `json:"total"`
	Waiting         int     `json:"waiting"`
	Serving         int     `json:"serving"`
	Processing      int     `json:"processing"`
	Completed       int     `json:"completed"`
	Cancelled       int     `json:"cancelled"`
	AvgWaitMinutes  float64 `json:"average_wait_time"`
}
