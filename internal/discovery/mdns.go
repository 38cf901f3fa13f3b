// ABOUTME: mDNS discovery of the coordinator endpoint
// ABOUTME: Coordinator advertises its listener, participants browse for it
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/mdns"
)

const (
	// ServiceType is the DNS-SD service coordinators advertise
	ServiceType = "_berkeley._tcp"

	browseTimeout = 3 * time.Second
)

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Transport   string // advertised in TXT so participants pick the right dialer
	Logger      logr.Logger
}

// Manager handles mDNS operations
type Manager struct {
	config Config
	log    logr.Logger
	ctx    context.Context
	cancel context.CancelFunc

	coordinators chan *CoordinatorInfo
}

// CoordinatorInfo describes a discovered coordinator
type CoordinatorInfo struct {
	Name      string
	Host      string
	Port      int
	Transport string
}

// Addr returns host:port
func (c *CoordinatorInfo) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:       config,
		log:          config.Logger.WithName("discovery"),
		ctx:          ctx,
		cancel:       cancel,
		coordinators: make(chan *CoordinatorInfo, 10),
	}
}

// Advertise announces the coordinator via mDNS until Stop is called
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"transport=" + m.config.Transport},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.log.Info("advertising coordinator", "name", m.config.ServiceName, "port", m.config.Port, "type", ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for coordinators until Stop is called
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				info := entryToInfo(entry)
				if info == nil {
					continue
				}

				m.log.V(1).Info("discovered coordinator", "name", info.Name, "addr", info.Addr())

				select {
				case m.coordinators <- info:
				case <-m.ctx.Done():
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Entries = entries
		params.Timeout = browseTimeout
		params.DisableIPv6 = true

		if err := mdns.Query(params); err != nil {
			m.log.V(1).Info("mdns query failed", "error", err.Error())
		}
		close(entries)
		<-done
	}
}

func entryToInfo(entry *mdns.ServiceEntry) *CoordinatorInfo {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}

	info := &CoordinatorInfo{
		Name:      entry.Name,
		Host:      entry.AddrV4.String(),
		Port:      entry.Port,
		Transport: "tcp",
	}
	for _, field := range entry.InfoFields {
		if v, ok := strings.CutPrefix(field, "transport="); ok && v != "" {
			info.Transport = v
		}
	}
	return info
}

// Coordinators returns the channel of discovered coordinators
func (m *Manager) Coordinators() <-chan *CoordinatorInfo {
	return m.coordinators
}

// WaitForCoordinator browses until the first coordinator is found or ctx ends
func (m *Manager) WaitForCoordinator(ctx context.Context) (*CoordinatorInfo, error) {
	m.Browse()
	select {
	case info := <-m.coordinators:
		return info, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("no coordinator discovered: %w", ctx.Err())
	}
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
