package models

import "time"

// Roles. Authorization gates live in the HTTP layer; the queue engine only
// receives the pre-authorized role tag.
const (
	RoleAdmin   = "admin"
	RoleSales   = "sales"
	RoleCashier = "cashier"
)

type User struct {
	ID       int64     `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
	Active   bool      `json:"active"`
	Created  time.Time `json:"created_at"`
}

type Session struct {
	SessionID string    `json:"session_id"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
