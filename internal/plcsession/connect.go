package plcsession

import (
	"fmt"
	"io"
	"time"

	"github.com/robinson/gos7"
)

// dialGos7 is the production dialFunc, grounded directly on
// internal/plc/client.go's S7Client.Connect from the teacher repo:
// gos7.NewTCPClientHandler, Timeout/IdleTimeout, handler.Connect,
// gos7.NewClient wrapping the handler.
func dialGos7(endpoint EndpointKey, timeout time.Duration) (wireClient, io.Closer, error) {
	handler := gos7.NewTCPClientHandler(endpoint.Host, endpoint.Rack, endpoint.Slot)
	handler.Timeout = timeout
	handler.IdleTimeout = 70 * time.Second

	if err := handler.Connect(); err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", endpoint, err)
	}

	client := gos7.NewClient(handler)
	return client, handler, nil
}
