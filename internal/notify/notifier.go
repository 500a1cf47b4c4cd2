package notify

import (
	"context"
	"encoding/json"
	"log"

	"github.com/yesser147/SafeRide/internal/motion"

	"github.com/redis/go-redis/v9"
)

type Kind string

const (
	KindUserConfirmation Kind = "user_confirmation"
	KindEmergencyAlert   Kind = "emergency_alert"
)

// Alert is the payload handed to the external delivery worker. Retry
// policy lives with the worker, not here.
type Alert struct {
	AccidentID string          `json:"accident_id"`
	StreamID   string          `json:"stream_id"`
	Location   motion.Location `json:"location"`
	DangerPct  float64         `json:"danger_pct"`
	Contacts   []string        `json:"contacts"`
}

type Notifier interface {
	SendAlert(ctx context.Context, kind Kind, alert Alert) error
}

// RedisNotifier hands alerts to the delivery worker over pub/sub.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) SendAlert(ctx context.Context, kind Kind, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, Channel(kind), payload).Err()
}

func Channel(kind Kind) string {
	return "alerts:" + string(kind)
}

// LogNotifier stands in when no Redis is configured, so a dev setup
// still surfaces alerts somewhere visible.
type LogNotifier struct{}

func (LogNotifier) SendAlert(_ context.Context, kind Kind, alert Alert) error {
	log.Printf("alert %s: accident=%s stream=%s danger=%.0f%%", kind, alert.AccidentID, alert.StreamID, alert.DangerPct)
	return nil
}

// New picks the Redis notifier when a client is available.
func New(client *redis.Client) Notifier {
	if client == nil {
		return LogNotifier{}
	}
	return NewRedisNotifier(client)
}
