// Package rpcserver exposes the gateway's RPC surface over HTTP/JSON
// using gorilla/mux, realizing spec.md §6's external interface table
// (execute/execute_monitor/disable_monitor/add_machine/delete_machine/
// get_machine/ping). Grounded on original_source/server.py's
// S7commServer (the XML-RPC method set this generalizes) and the
// teacher's internal/api router/middleware layering.
package rpcserver

import (
	"net/http"

	"github.com/gorilla/mux"

	"s7gateway/internal/eventbus"
	"s7gateway/internal/machine"
	"s7gateway/internal/metadata"
	"s7gateway/internal/monitor"
	"s7gateway/internal/signalops"
)

// Server wires the signal/monitor/machine-store core to an HTTP
// mux implementing the RPC table.
type Server struct {
	ops    *signalops.Ops
	mon    *monitor.Supervisor
	store  *machine.Store
	meta   *metadata.Metadata
	bus    *eventbus.Bus
	router *mux.Router
}

// New builds an RPC server. Call Handler to obtain the final
// http.Handler to pass to an http.Server.
func New(ops *signalops.Ops, mon *monitor.Supervisor, store *machine.Store, meta *metadata.Metadata, bus *eventbus.Bus) *Server {
	s := &Server{ops: ops, mon: mon, store: store, meta: meta, bus: bus, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/rpc/execute", s.handleExecute).Methods(http.MethodPost)
	s.router.HandleFunc("/rpc/execute_monitor", s.handleExecuteMonitor).Methods(http.MethodPost)
	s.router.HandleFunc("/rpc/disable_monitor", s.handleDisableMonitor).Methods(http.MethodPost)
	s.router.HandleFunc("/rpc/machines", s.handleAddMachine).Methods(http.MethodPost)
	s.router.HandleFunc("/rpc/machines/{uid}", s.handleGetMachine).Methods(http.MethodGet)
	s.router.HandleFunc("/rpc/machines/{uid}", s.handleDeleteMachine).Methods(http.MethodDelete)
	s.router.HandleFunc("/rpc/ping/{uid}", s.handlePing).Methods(http.MethodGet)
}

// Handler returns the fully wrapped HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	chain := Chain(LoggingMiddleware, RecoveryMiddleware, CorsMiddleware)
	return chain(s.router)
}
