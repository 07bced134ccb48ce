package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/v10ss/escashop/internal/models"
)

type RegisterCustomerInput struct {
	Name             string
	ContactNumber    string
	Email            string
	Age              int
	Address          string
	Occupation       string
	DistributionInfo string
	SalesAgentID     *int64
	DoctorAssigned   string
	Prescription     models.Prescription
	GradeType        string
	LensType         string
	FrameCode        string
	PaymentMode      string
	PaymentAmount    decimal.Decimal
	Remarks          string
	PriorityFlags    models.PriorityFlags
	CreatedAt        time.Time
}

type UpdateCustomerInput struct {
	CustomerID     int64
	ContactNumber  *string
	Email          *string
	Address        *string
	DoctorAssigned *string
	Prescription   *models.Prescription
	GradeType      *string
	LensType       *string
	FrameCode      *string
	Remarks        *string
	PriorityFlags  *models.PriorityFlags
}

type ListCustomersInput struct {
	Status string
	Search string
	Date   string
	Limit  int
	Offset int
}

type CallNextInput struct {
	CounterID int64
	UserID    int64
	CalledAt  time.Time
}

type CallCustomerInput struct {
	CustomerID int64
	CounterID  int64
	UserID     int64
	CalledAt   time.Time
}

type ChangeStatusInput struct {
	CustomerID int64
	ToStatus   string
	CounterID  *int64
	UserID     int64
	Reason     string
	OccurredAt time.Time
}

// ReorderItem pins one customer to a manual position. A nil Position
// clears the pin and returns the customer to automatic ordering.
type ReorderItem struct {
	CustomerID int64
	Position   *int
}

// Queue reset end states. Cancel marks leftover waiting customers
// cancelled; archive completes them so the day's books still balance.
const (
	ResetPolicyCancel  = "cancel"
	ResetPolicyArchive = "archive"
)

type ResetQueueInput struct {
	Policy   string
	AdminID  int64
	Reason   string
	OccursAt time.Time
}

type ResetResult struct {
	Affected int       `json:"affected"`
	Policy   string    `json:"policy"`
	ResetAt  time.Time `json:"reset_at"`
}

type CreateTransactionInput struct {
	CustomerID   int64
	ORNumber     string
	Amount       decimal.Decimal
	PaymentMode  string
	SalesAgentID *int64
	CashierID    *int64
}

type RecordSettlementInput struct {
	TransactionID int64
	Amount        decimal.Decimal
	PaymentMode   string
	CashierID     int64
	Notes         string
	PaidAt        time.Time
}

type ListTransactionsInput struct {
	Date          string
	PaymentMode   string
	PaymentStatus string
	SalesAgentID  *int64
	CashierID     *int64
	Limit         int
	Offset        int
}

type SaveDailyReportInput struct {
	Date           string
	PettyCashStart decimal.Decimal
	PettyCashEnd   decimal.Decimal
	Expenses       []models.ExpenseItem
	Funds          []models.FundItem
}

type CreateUserInput struct {
	Email    string
	FullName string
	Password string
	Role     string
}

// OutboxEvent is the transactional change feed consumed by the realtime
// broadcaster. Rows are written in the same transaction as the change
// they describe.
type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Event types emitted through the outbox. The camelCase settlement type
// is part of the wire contract.
const (
	EventCustomerCreated      = "customer_created"
	EventQueueStatusChanged   = "queue_status_changed"
	EventQueueReordered       = "queue_reordered"
	EventQueueReset           = "queue_reset"
	EventTransactionUpdated   = "transaction_updated"
	EventPaymentStatusUpdated = "payment_status_updated"
	EventSettlementCreated    = "settlementCreated"
)

// CustomerStore covers registration and the customer directory.
type CustomerStore interface {
	RegisterCustomer(ctx context.Context, input RegisterCustomerInput) (models.Customer, models.Transaction, error)
	GetCustomer(ctx context.Context, customerID int64) (models.Customer, error)
	ListCustomers(ctx context.Context, input ListCustomersInput) ([]models.Customer, error)
	UpdateCustomer(ctx context.Context, input UpdateCustomerInput) (models.Customer, error)
}

// QueueStore is the service-queue engine.
type QueueStore interface {
	ListQueue(ctx context.Context, status string) ([]models.QueueEntry, error)
	GetPosition(ctx context.Context, customerID int64) (models.QueueEntry, error)
	CallNext(ctx context.Context, input CallNextInput) (models.Customer, error)
	CallCustomer(ctx context.Context, input CallCustomerInput) (models.Customer, error)
	ChangeStatus(ctx context.Context, input ChangeStatusInput) (models.Customer, error)
	ReorderQueue(ctx context.Context, items []ReorderItem, userID int64) ([]models.QueueEntry, error)
	ResetQueue(ctx context.Context, input ResetQueueInput) (ResetResult, error)
	QueueStatistics(ctx context.Context) (models.QueueStatistics, error)
	ListQueueEvents(ctx context.Context, customerID int64) ([]QueueEvent, error)
	ListCounters(ctx context.Context) ([]models.Counter, error)
	CounterDisplay(ctx context.Context) ([]models.CounterDisplay, error)
	CreateCounter(ctx context.Context, name string, displayOrder int) (models.Counter, error)
	UpdateCounter(ctx context.Context, counterID int64, name *string, isActive *bool) (models.Counter, error)
}

// LedgerStore covers transactions, settlements, and reporting.
type LedgerStore interface {
	CreateTransaction(ctx context.Context, input CreateTransactionInput) (models.Transaction, error)
	GetTransaction(ctx context.Context, transactionID int64) (models.Transaction, error)
	ListTransactions(ctx context.Context, input ListTransactionsInput) ([]models.Transaction, error)
	UpdateTransactionAmount(ctx context.Context, transactionID int64, amount decimal.Decimal) (models.Transaction, error)
	DeleteTransaction(ctx context.Context, transactionID int64) error
	RecordSettlement(ctx context.Context, input RecordSettlementInput) (models.Transaction, []models.Settlement, error)
	ListSettlements(ctx context.Context, transactionID int64) ([]models.Settlement, error)
	RecalculateTransaction(ctx context.Context, transactionID int64) (models.Transaction, error)
	DailySummary(ctx context.Context, date string) (models.DailySummary, error)
	MonthlyReport(ctx context.Context, year, month int) (models.MonthlyReport, error)
	SaveDailyReport(ctx context.Context, input SaveDailyReportInput) (models.DailyReport, error)
	GetDailyReport(ctx context.Context, date string) (models.DailyReport, error)
}

// AuthStore covers users and cookie sessions.
type AuthStore interface {
	Login(ctx context.Context, email, password string, ttl time.Duration) (models.User, models.Session, error)
	Logout(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (models.Session, models.User, error)
	CreateUser(ctx context.Context, input CreateUserInput) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// OutboxStore is read by the broadcast poller.
type OutboxStore interface {
	ListOutboxEvents(ctx context.Context, after time.Time, afterID string, limit int) ([]OutboxEvent, error)
}

// Store is the full persistence surface the HTTP layer depends on.
type Store interface {
	CustomerStore
	QueueStore
	LedgerStore
	AuthStore
	OutboxStore
}
