// Package hub fans realtime events out to connected sockjs clients.
// Clients subscribe to topics; a send that would block is dropped so one
// slow display cannot stall the rest.
package hub

import (
	"encoding/json"
	"log"
	"sync"
)

// Topics a client can subscribe to. An empty subscription receives
// everything.
const (
	TopicQueue        = "queue"
	TopicTransactions = "transactions"
	TopicDisplay      = "display"
)

type Client struct {
	ID     string
	Send   chan []byte
	Topics map[string]bool
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

type SubscribeMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.Topics == nil {
		client.Topics = make(map[string]bool)
	}
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		client.Topics[topic] = true
	}
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		delete(client.Topics, topic)
	}
}

func (h *Hub) Broadcast(topic string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if len(client.Topics) > 0 && !client.Topics[topic] {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			log.Printf("drop message for client %s", client.ID)
		}
	}
}

// ClientCount reports how many clients are connected, for diagnostics.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}

// TopicFor maps an outbox event type to the topic its payload belongs
// on. Queue changes also feed the display monitors.
func TopicFor(eventType string) []string {
	switch eventType {
	case "customer_created", "queue_reordered", "queue_reset":
		return []string{TopicQueue}
	case "queue_status_changed":
		return []string{TopicQueue, TopicDisplay}
	case "transaction_updated", "payment_status_updated", "settlementCreated":
		return []string{TopicTransactions}
	default:
		return []string{TopicQueue}
	}
}
