package server

import (
	"encoding/json"
	"net/http"
	"time"

	"s7gateway/internal/metrics"
	"s7gateway/internal/wsbridge"
)

// setupRoutes mounts the RPC surface, the dashboard websocket, the
// Prometheus scrape endpoint, and two lightweight operator endpoints
// onto the single top-level mux, following the teacher's own
// router-as-dispatch-table layout.
func (s *Server) setupRoutes() {
	s.router.Handle("/rpc/", s.rpc.Handler())
	s.router.Handle("/ws", wsbridge.NewHandler(s.wsHub))
	s.router.Handle("/metrics", metrics.Handler())
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/info", s.handleInfo)
}

// handleHealth reports broker/discovery reachability and a handful of
// live counts, mirroring the teacher's healthHandler degrade-on-broker-
// loss logic.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	redisStatus := "ok"
	if !s.bus.IsConnected() {
		redisStatus = "offline"
		status = "degraded"
	}
	discoveryStatus := "ok"
	if s.discovery != nil && !s.discovery.IsRunning() {
		discoveryStatus = "offline"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"timestamp": time.Now(),
		"services": map[string]string{
			"redis":     redisStatus,
			"discovery": discoveryStatus,
		},
		"monitor_tasks":   s.monitor.Count(),
		"ws_clients":      s.wsHub.ClientCount(),
		"sessions_active": s.registry.Len(),
	})
}

// handleInfo reports process identity, mirroring the teacher's
// infoHandler.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := s.Info()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"name":      "s7gateway",
		"version":   info.Version,
		"ip":        info.IP,
		"port":      info.Port,
		"uptime":    time.Since(info.StartTime).Round(time.Second).String(),
		"startTime": info.StartTime,
	})
}
