// Package server wires every ambient and domain component into one
// process: the RPC surface, the dashboard websocket bridge, mDNS
// self-announcement, and Prometheus metrics, behind a single HTTP
// listener. Grounded on the teacher's internal/server/server.go
// (Server struct, initComponents/setupRoutes/Start/Shutdown split,
// ServerInfo), generalized from SICK-radar/redis/plc components to the
// S7 gateway's own core (C1-C6) plus ambient stack.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"s7gateway/internal/config"
	"s7gateway/internal/discovery"
	"s7gateway/internal/eventbus"
	"s7gateway/internal/machine"
	"s7gateway/internal/metadata"
	"s7gateway/internal/monitor"
	"s7gateway/internal/plcsession"
	"s7gateway/internal/registry"
	"s7gateway/internal/rpcserver"
	"s7gateway/internal/signalops"
	"s7gateway/internal/wsbridge"
	"s7gateway/pkg/logger"
)

// ServerInfo mirrors the teacher's ServerInfo: process-identity facts
// surfaced over /info for operators and orchestration tooling.
type ServerInfo struct {
	IP        string
	Port      int
	StartTime time.Time
	Version   string
}

// Server owns every long-running component of the gateway process.
type Server struct {
	config     *config.Config
	httpServer *http.Server
	router     *http.ServeMux

	store    *machine.Store
	registry *registry.Registry
	ops      *signalops.Ops
	monitor  *monitor.Supervisor
	bus      *eventbus.Bus
	meta     *metadata.Metadata

	rpc       *rpcserver.Server
	wsHub     *wsbridge.Hub
	wsSub     *wsbridge.Subscriber
	discovery *discovery.Service

	subCtx    context.Context
	subCancel context.CancelFunc

	info ServerInfo
}

// New builds every component and wires the HTTP mux, but starts
// nothing — call Start to bring the process up.
func New(cfg *config.Config) (*Server, error) {
	s := &Server{
		config: cfg,
		router: http.NewServeMux(),
		info: ServerInfo{
			StartTime: time.Now(),
			Version:   "1.0",
			Port:      cfg.Server.Port,
		},
	}

	ip, err := localIP()
	if err != nil {
		return nil, fmt.Errorf("determine local IP: %w", err)
	}
	s.info.IP = ip

	if err := s.initComponents(); err != nil {
		return nil, err
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

func (s *Server) initComponents() error {
	store, err := machine.NewStore(s.config.Paths.MachinesConfig)
	if err != nil {
		return fmt.Errorf("open machine store: %w", err)
	}
	s.store = store

	s.registry = registry.New(plcsession.Options{})
	s.ops = signalops.New(s.store, s.registry)
	s.bus = eventbus.New(s.config.Redis.RedisAddr(), s.config.Redis.Password, s.config.Redis.DB)
	s.monitor = monitor.New(s.store, s.ops, s.registry, s.bus)

	meta, err := metadata.Load(s.config.Paths.Metadata)
	if err != nil {
		logger.Warnf("server: metadata load failed, RPC vocabulary checks disabled: %v", err)
	} else {
		s.meta = meta
	}

	s.rpc = rpcserver.New(s.ops, s.monitor, s.store, s.meta, s.bus)

	s.wsHub = wsbridge.NewHub()
	s.wsSub = wsbridge.NewSubscriber(s.config.Redis.RedisAddr(), s.config.Redis.Password, s.config.Redis.DB, s.wsHub)

	s.discovery = discovery.New(s.config.Server.Port)

	return nil
}

// Start brings every long-running component up and blocks serving
// HTTP until Shutdown stops the listener.
func (s *Server) Start() error {
	s.subCtx, s.subCancel = context.WithCancel(context.Background())

	go s.wsHub.Run()
	go s.wsSub.Run(s.subCtx)

	if err := s.discovery.Start(); err != nil {
		logger.Warnf("server: mDNS announcement failed to start: %v", err)
	}

	s.logStartupInfo()

	logger.Infof("server: listening on :%d", s.config.Server.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// Shutdown tears every component down within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("server: shutting down")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("server: http shutdown: %v", err)
	}
	if s.subCancel != nil {
		s.subCancel()
	}
	if s.discovery != nil {
		s.discovery.Stop()
	}
	if s.wsHub != nil {
		s.wsHub.Shutdown()
	}
	if s.wsSub != nil {
		_ = s.wsSub.Close()
	}
	if s.bus != nil {
		_ = s.bus.Close()
	}

	logger.Info("server: shutdown complete")
	return nil
}

func (s *Server) Info() ServerInfo { return s.info }

func localIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String(), nil
			}
		}
	}
	return "localhost", nil
}

func (s *Server) logStartupInfo() {
	logger.Info("===============================================")
	logger.Info("                 S7 Gateway                    ")
	logger.Info("===============================================")
	logger.Infof("version:   %s", s.info.Version)
	logger.Infof("address:   %s:%d", s.info.IP, s.info.Port)
	logger.Infof("machines:  %s", s.config.Paths.MachinesConfig)
	logger.Infof("redis:     %s", s.config.Redis.RedisAddr())
	logger.Info("===============================================")
}
