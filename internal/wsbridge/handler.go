package wsbridge

import (
	"net/http"

	"github.com/gorilla/websocket"

	"s7gateway/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades incoming HTTP requests to websocket connections and
// registers them with a Hub.
type Handler struct {
	hub *Hub
}

// NewHandler builds a handler serving clients into hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("wsbridge: upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	ipAddress := getIPAddress(r)
	logger.Infof("wsbridge: new connection from %s", ipAddress)

	client := newClient(h.hub, conn, ipAddress)
	h.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func getIPAddress(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}
