// Package eventbus implements the Error/Event Sinks (C6): thin,
// best-effort publishers that serialize structured event/error records
// onto named Redis pub/sub channels. Grounded on
// original_source/events.py + errors.py (RedisDriver.publish, the
// event_queue/error_queue record shapes) and teacher
// internal/redis/service.go's connected-gate + RWMutex pattern for
// tolerating an unreachable broker without failing the caller.
package eventbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-redis/redis/v8"

	"s7gateway/pkg/logger"
)

const (
	// EventQueue carries monitor emissions per spec.md §4.6.
	EventQueue = "event_queue"
	// ErrorQueue carries structured error records per spec.md §4.6.
	ErrorQueue = "error_queue"
)

// Event is the event_queue record shape.
type Event struct {
	EventName string      `json:"event_name"`
	EventData interface{} `json:"event_data"`
	MachineID string      `json:"machine_id"`
	EventType string      `json:"event_type"`
}

// ErrorRecord is the error_queue record shape.
type ErrorRecord struct {
	ErrorName    string                 `json:"error_name"`
	ErrorCode    string                 `json:"error_code"`
	ErrorArgs    map[string]interface{} `json:"error_args,omitempty"`
	ErrorMessage string                 `json:"error_message"`
	MachineID    string                 `json:"machine_id"`
}

// Bus publishes events and errors onto Redis channels. Publication is
// best-effort: a disconnected or failing broker is logged and
// swallowed, never propagated to the caller that triggered it
// (spec.md §4.6).
type Bus struct {
	client *redis.Client
	ctx    context.Context

	mu        sync.RWMutex
	connected bool
}

// New connects to addr (host:port) and DB db. A connection failure is
// logged but does not prevent construction — the bus simply stays
// disconnected until a later publish succeeds, matching the teacher's
// "degrade to offline mode" pattern.
func New(addr string, password string, db int) *Bus {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	b := &Bus{client: client, ctx: context.Background()}
	if err := client.Ping(b.ctx).Err(); err != nil {
		logger.Warnf("eventbus: redis at %s unreachable, starting offline: %v", addr, err)
		b.connected = false
	} else {
		b.connected = true
	}
	return b
}

func (b *Bus) markConnected(ok bool) {
	b.mu.Lock()
	b.connected = ok
	b.mu.Unlock()
}

func (b *Bus) isConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *Bus) publish(channel string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Errorf("eventbus: marshal %s record: %v", channel, err)
		return
	}
	if err := b.client.Publish(b.ctx, channel, data).Err(); err != nil {
		logger.Warnf("eventbus: publish to %s failed: %v", channel, err)
		b.markConnected(false)
		return
	}
	b.markConnected(true)
}

// PublishEvent publishes a monitor emission onto event_queue.
func (b *Bus) PublishEvent(eventName string, eventData interface{}, machineID, eventType string) {
	b.publish(EventQueue, Event{
		EventName: eventName,
		EventData: eventData,
		MachineID: machineID,
		EventType: eventType,
	})
}

// PublishError publishes a structured error record onto error_queue.
func (b *Bus) PublishError(machineID string, rec ErrorRecord) {
	rec.MachineID = machineID
	b.publish(ErrorQueue, rec)
}

// IsConnected reports the bus's last known connection state.
func (b *Bus) IsConnected() bool { return b.isConnected() }

// Close releases the underlying Redis client.
func (b *Bus) Close() error {
	return b.client.Close()
}
