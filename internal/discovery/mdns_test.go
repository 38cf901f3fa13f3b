// ABOUTME: Tests for mDNS discovery
// ABOUTME: Tests manager creation and service entry parsing
package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
)

func TestNewManager(t *testing.T) {
	config := Config{
		ServiceName: "Test Coordinator",
		Port:        8080,
		Transport:   "tcp",
	}

	mgr := NewManager(config)
	if mgr == nil {
		t.Fatal("expected manager to be created")
	}
	mgr.Stop()
}

func TestEntryToInfo(t *testing.T) {
	tests := []struct {
		name          string
		entry         *mdns.ServiceEntry
		wantNil       bool
		wantAddr      string
		wantTransport string
	}{
		{
			name:    "nil entry",
			entry:   nil,
			wantNil: true,
		},
		{
			name:    "no ipv4 address",
			entry:   &mdns.ServiceEntry{Name: "c", Port: 8080},
			wantNil: true,
		},
		{
			name: "defaults to tcp",
			entry: &mdns.ServiceEntry{
				Name:   "coord._berkeley._tcp.local.",
				AddrV4: net.ParseIP("192.168.1.10"),
				Port:   8080,
			},
			wantAddr:      "192.168.1.10:8080",
			wantTransport: "tcp",
		},
		{
			name: "websocket from txt",
			entry: &mdns.ServiceEntry{
				Name:       "coord._berkeley._tcp.local.",
				AddrV4:     net.ParseIP("10.0.0.2"),
				Port:       9090,
				InfoFields: []string{"transport=ws"},
			},
			wantAddr:      "10.0.0.2:9090",
			wantTransport: "ws",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := entryToInfo(tt.entry)
			if tt.wantNil {
				if info != nil {
					t.Fatalf("expected nil, got %+v", info)
				}
				return
			}
			if info == nil {
				t.Fatal("expected coordinator info")
			}
			if info.Addr() != tt.wantAddr {
				t.Errorf("expected addr %s, got %s", tt.wantAddr, info.Addr())
			}
			if info.Transport != tt.wantTransport {
				t.Errorf("expected transport %s, got %s", tt.wantTransport, info.Transport)
			}
		})
	}
}
