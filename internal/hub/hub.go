package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Subscription narrows which ticket changes a client receives. Empty fields
// match everything, so a barber console subscribes by shop and barber while a
// customer subscribes by ticket.
type Subscription struct {
	ShopID   string
	BarberID string
	TicketID string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

// Hub fans published ticket events out to websocket clients. It holds no
// ticket state; missed events are recovered by re-fetching status over HTTP.
type Hub struct {
	mu      sync.RWMutex
	log     *slog.Logger
	clients map[string]*Client
}

type SubscribeMessage struct {
	Action   string `json:"action"`
	ShopID   string `json:"shop_id"`
	BarberID string `json:"barber_id"`
	TicketID string `json:"ticket_id"`
}

func New(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

// Broadcast delivers payload to every client whose subscription matches meta.
// A client that cannot keep up has the message dropped rather than blocking
// the fan-out.
func (h *Hub) Broadcast(payload []byte, meta Subscription) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !match(client.Subscription, meta) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			h.log.Warn("dropped message for slow client", "client_id", client.ID)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func match(sub Subscription, meta Subscription) bool {
	if sub.ShopID != "" && meta.ShopID != sub.ShopID {
		return false
	}
	if sub.BarberID != "" && meta.BarberID != sub.BarberID {
		return false
	}
	if sub.TicketID != "" && meta.TicketID != sub.TicketID {
		return false
	}
	return true
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
