package stream

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event is one observable state change on a monitored stream:
// connectivity flips and accident lifecycle transitions.
type Event struct {
	Type       string    `json:"type"`
	StreamID   string    `json:"stream_id"`
	At         time.Time `json:"at"`
	Connected  *bool     `json:"connected,omitempty"`
	AccidentID string    `json:"accident_id,omitempty"`
	DangerPct  float64   `json:"danger_pct,omitempty"`
}

const (
	EventConnectivity      = "connectivity"
	EventAccidentPending   = "accident_pending"
	EventAccidentConfirmed = "accident_confirmed"
	EventAccidentCancelled = "accident_cancelled"
)

// Hub fans events out to local WebSocket subscribers and bridges them
// across instances over Redis pub/sub.
type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	StreamID string
	Send     chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(streamID string) *Client {
	client := &Client{
		StreamID: streamID,
		Send:     make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[streamID] == nil {
		h.clients[streamID] = map[*Client]struct{}{}
	}
	h.clients[streamID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if streamClients, ok := h.clients[client.StreamID]; ok {
		delete(streamClients, client)
		if len(streamClients) == 0 {
			delete(h.clients, client.StreamID)
		}
	}
	close(client.Send)
}

// Publish marshals the event and broadcasts it to the event's stream.
func (h *Hub) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	h.Broadcast(evt.StreamID, payload)
}

func (h *Hub) Broadcast(streamID string, payload []byte) {
	h.mu.RLock()
	clients := h.clients[streamID]
	h.mu.RUnlock()

	for client := range clients {
		select {
		case client.Send <- payload:
		default:
		}
	}

	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(streamID), payload).Err()
		if err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.Subscribe(ctx, "events:*:broadcast")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		streamID := streamIDFromChannel(msg.Channel)
		h.mu.RLock()
		clients := h.clients[streamID]
		h.mu.RUnlock()
		for client := range clients {
			select {
			case client.Send <- []byte(msg.Payload):
			default:
			}
		}
	}
}

func redisChannel(streamID string) string {
	return "events:" + streamID + ":broadcast"
}

func streamIDFromChannel(ch string) string {
	// events:{stream}:broadcast
	const prefix = "events:"
	const suffix = ":broadcast"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
