package models

type Counter struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	DisplayOrder      int    `json:"display_order"`
	IsActive          bool   `json:"is_active"`
	CurrentCustomerID *int64 `json:"current_customer_id,omitempty"`
}

// CounterDisplay is the display-monitor projection of a counter: the
// counter plus the customer it is currently serving, if any.
type CounterDisplay struct {
	ID              int64            `json:"id"`
	Name            string           `json:"name"`
	IsActive        bool             `json:"is_active"`
	CurrentCustomer *DisplayCustomer `json:"current_customer"`
}

type DisplayCustomer struct {
	ID            int64         `json:"id"`
	Name          string        `json:"name"`
	TokenNumber   int           `json:"token_number"`
	QueueStatus   string        `json:"queue_status"`
	PriorityFlags PriorityFlags `json:"priority_flags"`
}
