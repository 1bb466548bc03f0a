// Package wsbridge fans out event_queue/error_queue records to
// connected operator/dashboard websocket clients. Adapted from the
// teacher's internal/websocket hub/client/handler trio: the
// register/unregister/broadcast channel shape and the read/write pump
// timing constants are kept verbatim; the payload moves from radar
// metrics/status/velocity messages to the gateway's event and error
// records, and inbound client commands are dropped since a dashboard
// here is receive-only.
package wsbridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"s7gateway/internal/eventbus"
	"s7gateway/pkg/logger"
)

// Hub manages every connected websocket client and fans broadcasted
// messages out to all of them.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub builds a hub that is not yet running; call Run to start its
// dispatch loop.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run is the hub's dispatch loop: register/unregister clients and
// relay broadcast messages until Shutdown is called.
func (h *Hub) Run() {
	logger.Info("wsbridge: hub started")
	statsTicker := time.NewTicker(1 * time.Minute)
	defer statsTicker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			logger.Info("wsbridge: hub shutting down")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			logger.Infof("wsbridge: client %s connected, total %d", client.id, count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			logger.Infof("wsbridge: client %s disconnected, total %d", client.id, count)

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.mu.RUnlock()
					h.unregister <- client
					h.mu.RLock()
				}
			}
			h.mu.RUnlock()

		case <-statsTicker.C:
			h.mu.RLock()
			count := len(h.clients)
			h.mu.RUnlock()
			logger.Infof("wsbridge: %d clients connected", count)
		}
	}
}

// BroadcastEvent fans a monitor emission out to every connected
// client, as the data of a {type: "event", timestamp, data} envelope.
func (h *Hub) BroadcastEvent(ev eventbus.Event) {
	h.broadcastJSON("event", ev)
}

// BroadcastError fans a structured error record out to every
// connected client, as the data of a {type: "error", timestamp, data}
// envelope.
func (h *Hub) BroadcastError(rec eventbus.ErrorRecord) {
	h.broadcastJSON("error", rec)
}

func (h *Hub) broadcastJSON(kind string, payload interface{}) {
	envelope := struct {
		Type      string      `json:"type"`
		Timestamp time.Time   `json:"timestamp"`
		Data      interface{} `json:"data"`
	}{Type: kind, Timestamp: time.Now(), Data: payload}

	data, err := json.Marshal(envelope)
	if err != nil {
		logger.Errorf("wsbridge: marshal %s envelope: %v", kind, err)
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.ctx.Done():
	}
}

// Shutdown stops the hub's dispatch loop and closes every connection.
func (h *Hub) Shutdown() {
	h.cancel()
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// ClientCount reports how many clients are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
