package camera

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/muurk/espcam/internal/discovery"
	"github.com/muurk/espcam/internal/logging"
)

const (
	// DefaultTimeout is the default HTTP request timeout for status and capture
	DefaultTimeout = 10 * time.Second

	// MaxImageSize caps a captured frame; UXGA JPEGs from the OV2640 stay well below it
	MaxImageSize = 8 << 20

	// DefaultContentType is assumed when the camera omits Content-Type
	DefaultContentType = "image/jpeg"
)

// Image is a still captured from a camera
type Image struct {
	Data        []byte
	ContentType string
}

// Status is the subset of the camera's /status document the tools display.
// Unknown fields are ignored; firmware builds differ in what they report.
type Status struct {
	Framesize    int `json:"framesize"`
	Quality      int `json:"quality"`
	Brightness   int `json:"brightness"`
	Contrast     int `json:"contrast"`
	Saturation   int `json:"saturation"`
	HMirror      int `json:"hmirror"`
	VFlip        int `json:"vflip"`
	LEDIntensity int `json:"led_intensity"`
}

// Client talks to a single camera's control port
type Client struct {
	// Device is the camera being addressed
	Device discovery.Device

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client
}

// NewClient creates a client for the camera at address
func NewClient(address string) *Client {
	return &Client{
		Device:     discovery.NewDevice(address),
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// Status fetches and decodes GET /status.
// Unlike a liveness probe, a non-2xx answer or a body that is not JSON is an error.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	address := c.Device.Address

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Device.StatusURL(), nil)
	if err != nil {
		return nil, NewNetworkError(address, "failed to create status request", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, NewNetworkError(address, "status request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewHTTPError(address, resp.StatusCode, fmt.Sprintf("unexpected status code: %d", resp.StatusCode))
	}

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, NewParseError(address, "failed to parse status document", err)
	}

	return &status, nil
}

// Capture requests one still image with GET /capture.
// Any non-2xx status or an empty body is a capture failure. Nothing is retried.
func (c *Client) Capture(ctx context.Context) (Image, error) {
	image, err := c.capture(ctx)
	logging.LogCapture(c.Device.Address, len(image.Data), err)
	return image, err
}

func (c *Client) capture(ctx context.Context) (Image, error) {
	address := c.Device.Address

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Device.CaptureURL(), nil)
	if err != nil {
		return Image{}, NewNetworkError(address, "failed to create capture request", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Image{}, NewNetworkError(address, "capture request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Image{}, NewHTTPError(address, resp.StatusCode, "Failed to capture image")
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageSize+1))
	if err != nil {
		return Image{}, NewNetworkError(address, "failed to read capture body", err)
	}
	if len(data) == 0 {
		return Image{}, NewCaptureError(address, "camera returned an empty image")
	}
	if len(data) > MaxImageSize {
		return Image{}, NewCaptureError(address, fmt.Sprintf("image exceeds %d bytes", MaxImageSize))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = DefaultContentType
	}
	// Some builds send "image/jpeg; charset=..." which is meaningless for binary data
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}

	return Image{Data: data, ContentType: contentType}, nil
}
