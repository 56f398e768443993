package discovery

import (
	"context"
	"net/http"
	"time"

	"github.com/muurk/espcam/internal/logging"
)

// DefaultProbeTimeout bounds a single liveness probe
const DefaultProbeTimeout = 1000 * time.Millisecond

// Prober tests whether an address hosts a live device.
// Probe never fails: every failure is folded into false.
type Prober interface {
	Probe(ctx context.Context, address string) bool
}

// ProberFunc adapts a function to the Prober interface
type ProberFunc func(ctx context.Context, address string) bool

// Probe calls f(ctx, address)
func (f ProberFunc) Probe(ctx context.Context, address string) bool {
	return f(ctx, address)
}

// HTTPProber probes GET http://<address>/status.
//
// Any completed response counts as reachable, whatever its status or body:
// the cameras rarely send CORS headers, so browsers only ever see an opaque
// response, and this probe keeps the same coarse contract. A reachable
// address is therefore "some HTTP server", not necessarily a camera.
type HTTPProber struct {
	// Client performs the request. Its own Timeout is not relied upon.
	Client *http.Client

	// Timeout is the deadline for one probe (default 1000ms)
	Timeout time.Duration
}

// NewHTTPProber creates a prober with the given timeout
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &HTTPProber{
		Client:  newProbeClient(),
		Timeout: timeout,
	}
}

// newProbeClient returns a client that never uses a proxy, never reuses
// connections and never follows redirects. A redirect is already an answer.
func newProbeClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:             nil,
			DisableKeepAlives: true,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Probe issues the status request and reports whether anything answered.
// The deadline cancels the request itself, so nothing completes after
// Probe has returned.
func (p *HTTPProber) Probe(ctx context.Context, address string) bool {
	start := time.Now()

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	client := p.Client
	if client == nil {
		client = newProbeClient()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reachable := false
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, NewDevice(address).StatusURL(), nil)
	if err == nil {
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			reachable = true
		}
	}

	logging.LogProbe(address, reachable, time.Since(start))
	return reachable
}
