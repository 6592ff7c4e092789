package messaging

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// StreamMessages is the default stream of processed messages.
const StreamMessages = "taskbot:messages"

// Event records the outcome of one processed inbound message
type Event struct {
	MessageID string
	Channel   string
	UserID    string
	Kind      string
	Branch    string
	Latency   time.Duration
	At        time.Time
}

// EventSink stores processed-message events
type EventSink interface {
	Record(ctx context.Context, ev Event) error
}

// ToRedisValues converts Event to Redis stream values map
func (e Event) ToRedisValues() map[string]interface{} {
	return map[string]interface{}{
		"message_id": e.MessageID,
		"channel":    e.Channel,
		"user_id":    e.UserID,
		"kind":       e.Kind,
		"branch":     e.Branch,
		"latency_ms": strconv.FormatInt(e.Latency.Milliseconds(), 10),
		"at":         strconv.FormatInt(e.At.Unix(), 10),
	}
}

// EventFromRedisValues creates Event from Redis stream values
func EventFromRedisValues(values map[string]interface{}) (*Event, error) {
	ev := &Event{}

	if v, ok := values["message_id"].(string); ok {
		ev.MessageID = v
	}
	if v, ok := values["channel"].(string); ok {
		ev.Channel = v
	}
	if v, ok := values["user_id"].(string); ok {
		ev.UserID = v
	}
	if v, ok := values["kind"].(string); ok {
		ev.Kind = v
	}
	if v, ok := values["branch"].(string); ok {
		ev.Branch = v
	}

	if v, ok := values["latency_ms"].(string); ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse latency_ms: %w", err)
		}
		ev.Latency = time.Duration(ms) * time.Millisecond
	}
	if v, ok := values["at"].(string); ok {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse at: %w", err)
		}
		ev.At = time.Unix(sec, 0)
	}

	return ev, nil
}
