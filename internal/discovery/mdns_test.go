package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name        string
		entry       *zeroconf.ServiceEntry
		wantOK      bool
		wantAddress string
	}{
		{
			name: "esp32-cam on port 80",
			entry: &zeroconf.ServiceEntry{
				HostName: "esp32-cam.local.",
				Port:     80,
				AddrIPv4: []net.IP{net.ParseIP("192.168.4.1")},
			},
			wantOK:      true,
			wantAddress: "192.168.4.1",
		},
		{
			name: "suffixed hostname without trailing dot",
			entry: &zeroconf.ServiceEntry{
				HostName: "esp32cam-garage.local",
				Port:     80,
				AddrIPv4: []net.IP{net.ParseIP("10.0.0.5")},
			},
			wantOK:      true,
			wantAddress: "10.0.0.5",
		},
		{
			name: "chip-id hostname on custom port",
			entry: &zeroconf.ServiceEntry{
				HostName: "esp32-a1b2c3.local",
				Port:     8080,
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.100")},
			},
			wantOK:      true,
			wantAddress: "192.168.1.100:8080",
		},
		{
			name: "no port specified",
			entry: &zeroconf.ServiceEntry{
				HostName: "ESPCAM.local",
				AddrIPv4: []net.IP{net.ParseIP("172.16.0.1")},
			},
			wantOK:      true,
			wantAddress: "172.16.0.1",
		},
		{
			name: "IPv6 only",
			entry: &zeroconf.ServiceEntry{
				HostName: "esp32-cam.local",
				Port:     80,
				AddrIPv6: []net.IP{net.ParseIP("fe80::1")},
			},
			wantOK:      true,
			wantAddress: "[fe80::1]",
		},
		{
			name: "prefers IPv4",
			entry: &zeroconf.ServiceEntry{
				HostName: "esp32-cam.local",
				Port:     80,
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.50")},
				AddrIPv6: []net.IP{net.ParseIP("fe80::2")},
			},
			wantOK:      true,
			wantAddress: "192.168.1.50",
		},
		{
			name: "printer is skipped",
			entry: &zeroconf.ServiceEntry{
				HostName: "office-printer.local",
				Port:     80,
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.1")},
			},
			wantOK: false,
		},
		{
			name: "empty hostname",
			entry: &zeroconf.ServiceEntry{
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.1")},
			},
			wantOK: false,
		},
		{
			name: "no address",
			entry: &zeroconf.ServiceEntry{
				HostName: "esp32-cam.local",
				Port:     80,
			},
			wantOK: false,
		},
		{
			name:   "nil entry",
			entry:  nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device, ok := parseServiceEntry(tt.entry)
			if ok != tt.wantOK {
				t.Fatalf("parseServiceEntry() ok = %v, want %v", ok, tt.wantOK)
			}
			if !tt.wantOK {
				return
			}
			if device.Address != tt.wantAddress {
				t.Errorf("device.Address = %v, want %v", device.Address, tt.wantAddress)
			}
			if device.Name != DisplayName(tt.wantAddress) {
				t.Errorf("device.Name = %v, want %v", device.Name, DisplayName(tt.wantAddress))
			}
		})
	}
}

func TestNewMDNSScanner(t *testing.T) {
	scanner := NewMDNSScanner()

	if scanner.Timeout != DefaultMDNSTimeout {
		t.Errorf("scanner.Timeout = %v, want %v", scanner.Timeout, DefaultMDNSTimeout)
	}
}

// Live mDNS browsing needs a multicast-capable network and is exercised
// manually with `espcam scan --mdns`.
