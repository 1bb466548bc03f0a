package wsbridge

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"s7gateway/internal/eventbus"
	"s7gateway/pkg/logger"
)

// Subscriber relays every record eventbus publishes onto
// event_queue/error_queue to the hub, so connected dashboards see them
// live. It never changes bus semantics: publication succeeds or fails
// independent of whether any dashboard is listening.
type Subscriber struct {
	client *redis.Client
	hub    *Hub
}

// NewSubscriber opens its own Redis subscription connection against
// addr (separate from eventbus's publish-only client, as pub/sub
// connections are stateful in go-redis).
func NewSubscriber(addr, password string, db int, hub *Hub) *Subscriber {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return &Subscriber{client: client, hub: hub}
}

// Run subscribes to both channels and relays messages until ctx is
// canceled. Safe to run in its own goroutine; a broker outage simply
// pauses relaying until the subscription is retried by the caller.
func (s *Subscriber) Run(ctx context.Context) {
	pubsub := s.client.Subscribe(ctx, eventbus.EventQueue, eventbus.ErrorQueue)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.relay(msg)
		}
	}
}

func (s *Subscriber) relay(msg *redis.Message) {
	switch msg.Channel {
	case eventbus.EventQueue:
		var ev eventbus.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			logger.Warnf("wsbridge: decode event_queue message: %v", err)
			return
		}
		s.hub.BroadcastEvent(ev)
	case eventbus.ErrorQueue:
		var rec eventbus.ErrorRecord
		if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
			logger.Warnf("wsbridge: decode error_queue message: %v", err)
			return
		}
		s.hub.BroadcastError(rec)
	}
}

// Close releases the subscription's underlying Redis client.
func (s *Subscriber) Close() error {
	return s.client.Close()
}
