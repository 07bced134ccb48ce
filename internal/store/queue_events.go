package store

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// QueueEvent is one entry in the per-customer audit trail. Events carry
// a per-customer sequence number and a hash chained over the previous
// event, so tampering with history is detectable.
type QueueEvent struct {
	ID             int64     `json:"id"`
	CustomerID     int64     `json:"customer_id"`
	Seq            int       `json:"seq"`
	EventType      string    `json:"event_type"`
	FromStatus     string    `json:"from_status,omitempty"`
	ToStatus       string    `json:"to_status,omitempty"`
	CounterID      *int64    `json:"counter_id,omitempty"`
	QueuePosition  *int      `json:"queue_position,omitempty"`
	WaitMinutes    *float64  `json:"wait_time_minutes,omitempty"`
	ServiceMinutes *float64  `json:"service_time_minutes,omitempty"`
	IsPriority     bool      `json:"is_priority"`
	CreatedAt      time.Time `json:"created_at"`
	PrevHash       string    `json:"prev_hash"`
	Hash           string    `json:"hash"`
}

// Queue event types recorded in the audit trail.
const (
	EventJoined     = "joined"
	EventCalled     = "called"
	EventProcessing = "processing"
	EventServed     = "served"
	EventCancelled  = "cancelled"
	EventReset      = "reset"
)

// ComputeQueueEventHash derives the chain hash for an event from the
// previous event's hash and the event's identifying fields.
func ComputeQueueEventHash(prevHash string, customerID int64, seq int, eventType, fromStatus, toStatus string, createdAt time.Time) string {
	raw := fmt.Sprintf("%s|%d|%d|%s|%s|%s|%s", prevHash, customerID, seq, eventType, fromStatus, toStatus, createdAt.UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyQueueEventChain walks a customer's events in sequence order and
// reports the first broken link, or nil when the chain is intact.
func VerifyQueueEventChain(events []QueueEvent) error {
	prev := ""
	for i, ev := range events {
		if ev.Seq != i+1 {
			return fmt.Errorf("event %d: seq %d out of order", ev.ID, ev.Seq)
		}
		if ev.PrevHash != prev {
			return fmt.Errorf("event %d: prev hash mismatch", ev.ID)
		}
		want := ComputeQueueEventHash(prev, ev.CustomerID, ev.Seq, ev.EventType, ev.FromStatus, ev.ToStatus, ev.CreatedAt)
		if ev.Hash != want {
			return fmt.Errorf("event %d: hash mismatch", ev.ID)
		}
		prev = ev.Hash
	}
	return nil
}
