package simulator

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
)

const (
	frameWidth  = 160
	frameHeight = 120
	jpegQuality = 70
)

// Status mirrors the fields the stock firmware reports on /status
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

// Camera is the simulated sensor behind the HTTP handlers.
// The failure knobs may be flipped while the server is running.
type Camera struct {
	status Status

	failCapture atomic.Bool
	failStream  atomic.Bool

	frames   atomic.Uint64
	captures atomic.Uint64

	mu      sync.Mutex
	palette []color.RGBA
}

// NewCamera creates a simulated camera with firmware-like defaults
func NewCamera() *Camera {
	return &Camera{
		status: Status{
			Framesize: 8,
			Quality:   12,
		},
		palette: []color.RGBA{
			{R: 0xd9, G: 0x4f, B: 0x3d, A: 0xff},
			{R: 0x3d, G: 0x8b, B: 0xd9, A: 0xff},
			{R: 0x4f, G: 0xb3, B: 0x5c, A: 0xff},
			{R: 0xe0, G: 0xb2, B: 0x3a, A: 0xff},
		},
	}
}

// Status returns the reported sensor settings
func (c *Camera) Status() Status {
	return c.status
}

// SetFailCapture makes /capture answer 500 while enabled
func (c *Camera) SetFailCapture(fail bool) {
	c.failCapture.Store(fail)
}

// SetFailStream makes the stream endpoints answer 503 while enabled
func (c *Camera) SetFailStream(fail bool) {
	c.failStream.Store(fail)
}

// CaptureFails reports whether the capture knob is set
func (c *Camera) CaptureFails() bool {
	return c.failCapture.Load()
}

// StreamFails reports whether the stream knob is set
func (c *Camera) StreamFails() bool {
	return c.failStream.Load()
}

// FramesServed returns the number of stream frames written so far
func (c *Camera) FramesServed() uint64 {
	return c.frames.Load()
}

// CapturesServed returns the number of stills served so far
func (c *Camera) CapturesServed() uint64 {
	return c.captures.Load()
}

// NextFrame renders the next stream frame
func (c *Camera) NextFrame() ([]byte, error) {
	n := c.frames.Add(1)
	return c.render(n)
}

// Capture renders a still
func (c *Camera) Capture() ([]byte, error) {
	n := c.captures.Add(1)
	return c.render(n)
}

// render draws a solid frame whose colour cycles with seq, with a moving bar
// so consecutive frames differ.
func (c *Camera) render(seq uint64) ([]byte, error) {
	c.mu.Lock()
	bg := c.palette[seq%uint64(len(c.palette))]
	c.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, frameWidth, frameHeight))
	bar := int(seq % frameWidth)
	for y := 0; y < frameHeight; y++ {
		for x := 0; x < frameWidth; x++ {
			if x >= bar && x < bar+8 {
				img.SetRGBA(x, y, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
				continue
			}
			img.SetRGBA(x, y, bg)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame %d: %w", seq, err)
	}
	return buf.Bytes(), nil
}
