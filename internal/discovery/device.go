package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	// DefaultStreamPort is the port the camera serves its continuous stream on
	DefaultStreamPort = 81

	// StatusPath is the liveness endpoint used by the probe
	StatusPath = "/status"

	// StreamPath is the multipart JPEG stream endpoint
	StreamPath = "/stream"

	// CapturePath is the single-shot still capture endpoint
	CapturePath = "/capture"
)

// ErrEmptyAddress is returned when a manual address is blank
var ErrEmptyAddress = errors.New("address is empty")

// Device is a camera known by its network address.
// Address is the identity key; Name is for display only.
type Device struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// NewDevice creates a Device with the generated display name for address
func NewDevice(address string) Device {
	return Device{
		Name:    DisplayName(address),
		Address: address,
	}
}

// DisplayName returns the generated display name embedding the address
func DisplayName(address string) string {
	return fmt.Sprintf("ESP32-CAM (%s)", address)
}

// String returns a human-readable string representation of the device
func (d Device) String() string {
	return fmt.Sprintf("%s at %s", d.Name, d.Address)
}

// BaseURL returns the HTTP base URL for the device
func (d Device) BaseURL() string {
	return "http://" + d.Address
}

// StatusURL returns the liveness probe URL
func (d Device) StatusURL() string {
	return d.BaseURL() + StatusPath
}

// CaptureURL returns the still capture URL
func (d Device) CaptureURL() string {
	return d.BaseURL() + CapturePath
}

// StreamHost returns host:port for the stream endpoint.
// Any port already present in Address is replaced by streamPort.
func (d Device) StreamHost(streamPort int) string {
	if streamPort <= 0 {
		streamPort = DefaultStreamPort
	}
	return net.JoinHostPort(d.Host(), strconv.Itoa(streamPort))
}

// StreamURL returns the MJPEG stream URL
func (d Device) StreamURL(streamPort int) string {
	return "http://" + d.StreamHost(streamPort) + StreamPath
}

// Host returns the address without any port
func (d Device) Host() string {
	if host, _, err := net.SplitHostPort(d.Address); err == nil {
		return host
	}
	return strings.Trim(d.Address, "[]")
}

// NormalizeAddress cleans up a user-entered address.
// It strips a scheme, a trailing path and surrounding whitespace.
func NormalizeAddress(input string) (string, error) {
	addr := strings.TrimSpace(input)
	addr = strings.TrimPrefix(addr, "http://")
	addr = strings.TrimPrefix(addr, "https://")
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		addr = addr[:i]
	}

	if addr == "" {
		return "", ErrEmptyAddress
	}
	if strings.ContainsAny(addr, " \t?#@") {
		return "", fmt.Errorf("invalid address %q", input)
	}

	return addr, nil
}
