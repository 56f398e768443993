package camera

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error
	ErrTypeNetwork ErrorType = iota
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the camera refused the connection
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
	// ErrTypeHTTP indicates a non-2xx response
	ErrTypeHTTP
	// ErrTypeParse indicates a malformed /status document
	ErrTypeParse
	// ErrTypeStream indicates the live stream could not be opened or broke
	ErrTypeStream
	// ErrTypeCapture indicates a still capture returned no usable image
	ErrTypeCapture
	// ErrTypeUnknown indicates an unknown or unexpected error
	ErrTypeUnknown
)

// NetworkErrorSubtype provides more specific network error classification
type NetworkErrorSubtype int

const (
	NetworkErrorGeneral NetworkErrorSubtype = iota
	NetworkErrorTimeout
	NetworkErrorConnectionRefused
	NetworkErrorDNS
	NetworkErrorHostUnreachable
	NetworkErrorNetworkUnreachable
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeStream:
		return "Stream Error"
	case ErrTypeCapture:
		return "Capture Error"
	case ErrTypeUnknown:
		return "Unknown Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// DeviceError represents an error that occurred while talking to a camera
type DeviceError struct {
	Type           ErrorType           // Category of error
	Message        string              // Human-readable error message
	StatusCode     int                 // HTTP status code (if applicable)
	Err            error               // Underlying error (if any)
	NetworkSubtype NetworkErrorSubtype // More specific network error type
	Address        string              // Camera address (for context)
	Retryable      bool                // Whether the error is retryable
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError analyzes a transport error and returns a typed DeviceError
func ClassifyNetworkError(err error, address string) *DeviceError {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) {
		return &DeviceError{
			Type:           ErrTypeTimeout,
			Message:        "Request timed out",
			Err:            err,
			NetworkSubtype: NetworkErrorTimeout,
			Address:        address,
			Retryable:      true,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &DeviceError{
			Type:           ErrTypeDNS,
			Message:        fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:            err,
			NetworkSubtype: NetworkErrorDNS,
			Address:        address,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &DeviceError{
				Type:           ErrTypeConnectionRefused,
				Message:        "Camera refused connection",
				Err:            err,
				NetworkSubtype: NetworkErrorConnectionRefused,
				Address:        address,
				Retryable:      true,
			}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &DeviceError{
				Type:           ErrTypeNetwork,
				Message:        "Host unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorHostUnreachable,
				Address:        address,
				Retryable:      true,
			}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &DeviceError{
				Type:           ErrTypeNetwork,
				Message:        "Network unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorNetworkUnreachable,
				Address:        address,
				Retryable:      true,
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ClassifyNetworkError(urlErr.Err, address)
	}

	return &DeviceError{
		Type:           ErrTypeNetwork,
		Message:        "Network error occurred",
		Err:            err,
		NetworkSubtype: NetworkErrorGeneral,
		Address:        address,
		Retryable:      true,
	}
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(address, message string, err error) *DeviceError {
	classified := ClassifyNetworkError(err, address)
	if classified != nil {
		classified.Message = message
		return classified
	}
	return &DeviceError{
		Type:      ErrTypeNetwork,
		Message:   message,
		Address:   address,
		Retryable: true,
	}
}

// NewHTTPError creates an HTTP-level error
func NewHTTPError(address string, statusCode int, message string) *DeviceError {
	return &DeviceError{
		Type:       ErrTypeHTTP,
		Message:    message,
		StatusCode: statusCode,
		Address:    address,
		Retryable:  statusCode >= 500,
	}
}

// NewParseError creates a parsing error
func NewParseError(address, message string, err error) *DeviceError {
	return &DeviceError{
		Type:    ErrTypeParse,
		Message: message,
		Err:     err,
		Address: address,
	}
}

// NewStreamError creates a stream error
func NewStreamError(address, message string, err error) *DeviceError {
	return &DeviceError{
		Type:      ErrTypeStream,
		Message:   message,
		Err:       err,
		Address:   address,
		Retryable: true,
	}
}

// NewCaptureError creates a capture error
func NewCaptureError(address, message string) *DeviceError {
	return &DeviceError{
		Type:      ErrTypeCapture,
		Message:   message,
		Address:   address,
		Retryable: true,
	}
}

func typeOf(err error) (ErrorType, bool) {
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		return ErrTypeUnknown, false
	}
	return devErr.Type, true
}

// IsNetworkError checks if an error is a network error (including timeout, connection refused, DNS)
func IsNetworkError(err error) bool {
	t, ok := typeOf(err)
	return ok && (t == ErrTypeNetwork || t == ErrTypeTimeout || t == ErrTypeConnectionRefused || t == ErrTypeDNS)
}

// IsHTTPError checks if an error is an HTTP error
func IsHTTPError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeHTTP
}

// IsStreamError checks if an error is a stream error
func IsStreamError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeStream
}

// IsCaptureError checks if an error is a capture error
func IsCaptureError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeCapture
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr.Retryable
	}
	return false
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		return "An unexpected error occurred. Please try again."
	}

	switch devErr.Type {
	case ErrTypeTimeout:
		return strings.Join([]string{
			"The camera did not respond in time.",
			"Troubleshooting:",
			"  • Check that the camera is powered on",
			"  • Verify you're connected to the camera's WiFi network",
			"  • Move closer to the camera to improve signal strength",
		}, "\n")

	case ErrTypeConnectionRefused:
		return strings.Join([]string{
			"The camera refused the connection.",
			"Troubleshooting:",
			"  • The camera web server may still be booting - wait a few seconds",
			"  • Check the stream port (default is 81)",
			"  • Only one stream client is served at a time - close other viewers",
		}, "\n")

	case ErrTypeDNS:
		return strings.Join([]string{
			"Could not resolve the camera hostname.",
			"Troubleshooting:",
			"  • Use the IP address instead of the hostname",
			"  • Run a range scan to find the camera's address",
		}, "\n")

	case ErrTypeNetwork:
		hint := []string{"Network communication failed."}
		switch devErr.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			hint = append(hint,
				"The camera is not reachable on the network.",
				"Troubleshooting:",
				"  • Verify the camera address is correct",
				"  • Try pinging the camera: ping "+devErr.Address)
		case NetworkErrorNetworkUnreachable:
			hint = append(hint,
				"Your computer cannot reach the camera's network.",
				"Troubleshooting:",
				"  • Connect to the camera's WiFi access point",
				"  • Verify WiFi is enabled on your computer")
		default:
			hint = append(hint,
				"Troubleshooting:",
				"  • Check your network connection",
				"  • Verify the camera is powered on")
		}
		return strings.Join(hint, "\n")

	case ErrTypeHTTP:
		if devErr.StatusCode >= 500 {
			return strings.Join([]string{
				fmt.Sprintf("The camera returned an error (HTTP %d).", devErr.StatusCode),
				"Troubleshooting:",
				"  • The sensor may have failed to initialise - power cycle the board",
				"  • Check the camera's serial console for driver errors",
			}, "\n")
		}
		return fmt.Sprintf("The camera returned HTTP error %d. Is this really a camera?", devErr.StatusCode)

	case ErrTypeParse:
		return "The camera's /status document could not be parsed. The firmware may be a different build."

	case ErrTypeStream:
		return strings.Join([]string{
			"The live stream could not be read.",
			"Troubleshooting:",
			"  • Check the stream mode (mjpeg or websocket) matches the firmware",
			"  • Close other viewers; the firmware serves one stream at a time",
		}, "\n")

	case ErrTypeCapture:
		return "The camera answered the capture request without an image. Try again."

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		return err.Error()
	}

	switch devErr.Type {
	case ErrTypeTimeout:
		return "Camera not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Camera refused connection"
	case ErrTypeDNS:
		return "Cannot resolve camera hostname"
	case ErrTypeNetwork:
		switch devErr.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			return "Camera unreachable - check network connection"
		case NetworkErrorNetworkUnreachable:
			return "Network unreachable - check WiFi connection"
		default:
			return "Network error - check connection"
		}
	case ErrTypeHTTP:
		return fmt.Sprintf("Camera error (HTTP %d)", devErr.StatusCode)
	case ErrTypeParse:
		return "Failed to parse camera status"
	default:
		return devErr.Message
	}
}
