package store

import "errors"

var (
	ErrCustomerNotFound    = errors.New("customer not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrCounterNotFound     = errors.New("counter not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrNoCustomerWaiting   = errors.New("no customer waiting")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrConflict            = errors.New("concurrent update conflict")
	ErrSettlementExceeds   = errors.New("settlement exceeds remaining balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrDuplicateOR         = errors.New("duplicate or number")
	ErrDuplicateEmail      = errors.New("duplicate email")
	ErrReportNotFound      = errors.New("daily report not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccessDenied        = errors.New("access denied")
	ErrCounterOccupied     = errors.New("counter occupied")
)
