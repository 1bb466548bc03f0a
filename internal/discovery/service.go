// Package discovery announces this gateway process on the local
// network via mDNS, so an orchestration layer can find a running
// instance without a hardcoded address. Adapted from the teacher's
// radar-discovery service — same zeroconf registration/shutdown
// lifecycle, renamed to advertise the gateway itself rather than a
// radar unit (spec.md's "no discovery of PLCs" non-goal is untouched:
// this discovers the gateway process, not any PLC).
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"

	"s7gateway/pkg/logger"

	"github.com/grandcat/zeroconf"
)

const (
	ServiceDomain = "local."
	ServiceType   = "_s7gateway._tcp"
	GatewayVersion = "1.0"
)

// Service manages this process's mDNS self-announcement.
type Service struct {
	server       *zeroconf.Server
	ctx          context.Context
	cancel       context.CancelFunc
	mutex        sync.Mutex
	instanceName string
	port         int
	running      bool
	serverIP     string
}

// New builds a discovery service that will announce the given RPC
// port once Start is called.
func New(port int) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	hostname, _ := os.Hostname()
	instanceName := fmt.Sprintf("%s-s7gateway", hostname)

	return &Service{
		ctx:          ctx,
		cancel:       cancel,
		port:         port,
		instanceName: instanceName,
	}
}

// Start registers the mDNS service record. Safe to call more than
// once; a second call is a no-op while already running.
func (s *Service) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return nil
	}

	ip, err := s.getLocalIP()
	if err != nil {
		return fmt.Errorf("discovery: determine local ip: %w", err)
	}
	s.serverIP = ip

	server, err := zeroconf.Register(
		s.instanceName,
		ServiceType,
		ServiceDomain,
		s.port,
		[]string{
			"version=" + GatewayVersion,
			"ip=" + ip,
			"name=S7 Gateway",
		},
		nil,
	)
	if err != nil {
		return fmt.Errorf("discovery: register mdns service: %w", err)
	}

	s.server = server
	s.running = true

	logger.Infof("discovery: announcing %s.%s at %s:%d", s.instanceName, ServiceType, ip, s.port)
	return nil
}

// Stop deregisters the mDNS service record.
func (s *Service) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return
	}

	if s.server != nil {
		s.server.Shutdown()
		s.server = nil
	}

	s.cancel()
	s.running = false
	logger.Info("discovery: stopped")
}

// GetServerIP returns the IP address last used to announce the
// service.
func (s *Service) GetServerIP() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.serverIP
}

// GetPort returns the announced port.
func (s *Service) GetPort() int { return s.port }

// IsRunning reports whether the service is currently announced.
func (s *Service) IsRunning() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.running
}

func (s *Service) getLocalIP() (string, error) {
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

	return "", fmt.Errorf("discovery: no non-loopback IPv4 address found")
}
