package discovery

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/espcam/internal/logging"
)

const (
	// ServiceType is the mDNS service type camera firmware advertises
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultMDNSTimeout is the default browse duration
	DefaultMDNSTimeout = 5 * time.Second
)

// hostnamePattern matches the hostnames ESP32 camera sketches usually pick
// (e.g. "esp32-cam.local", "esp32cam-garage.local", "esp32-a1b2c3.local").
var hostnamePattern = regexp.MustCompile(`(?i)^(esp32[-_]?cam[\w-]*|esp32-[0-9a-f]+|espcam[\w-]*)\.local\.?$`)

// MDNSScanner lists cameras that announce themselves over mDNS.
// Results are hints only: many camera firmwares do not run an mDNS responder,
// which is why range scanning remains the primary discovery path.
type MDNSScanner struct {
	// Timeout is how long to listen for announcements
	Timeout time.Duration
}

// NewMDNSScanner creates a new mDNS scanner with default settings
func NewMDNSScanner() *MDNSScanner {
	return &MDNSScanner{
		Timeout: DefaultMDNSTimeout,
	}
}

// Browse collects matching devices until the timeout or ctx ends
func (s *MDNSScanner) Browse(ctx context.Context) ([]Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu      sync.Mutex
		devices []Device
		seen    = make(map[string]bool)
	)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				device, ok := parseServiceEntry(entry)
				if !ok {
					continue
				}
				mu.Lock()
				if !seen[device.Address] {
					seen[device.Address] = true
					devices = append(devices, device)
					logging.Debug("mDNS camera found",
						zap.String("host", entry.HostName),
						zap.String("address", device.Address),
					)
				}
				mu.Unlock()
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return append([]Device(nil), devices...), nil
}

// parseServiceEntry converts a zeroconf entry into a Device.
// Entries whose hostname does not look like a camera are skipped.
func parseServiceEntry(entry *zeroconf.ServiceEntry) (Device, bool) {
	if entry == nil || entry.HostName == "" {
		return Device{}, false
	}
	if !hostnamePattern.MatchString(entry.HostName) {
		return Device{}, false
	}

	var ip net.IP
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0]
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0]
	}
	if ip == nil {
		return Device{}, false
	}

	address := ip.String()
	if entry.Port != 0 && entry.Port != 80 {
		address = net.JoinHostPort(address, strconv.Itoa(entry.Port))
	} else if ip.To4() == nil {
		address = "[" + address + "]"
	}

	return NewDevice(address), true
}
