// Package blob holds captured images in memory behind revocable handles.
//
// A Handle plays the part of an object URL: it names bytes that live until
// the handle is released. Releasing twice is harmless.
package blob

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrReleased is returned when reading through a released handle
var ErrReleased = errors.New("blob handle released")

// Registry owns every live blob
type Registry struct {
	mu    sync.Mutex
	blobs map[string]entry
}

type entry struct {
	data        []byte
	contentType string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{blobs: make(map[string]entry)}
}

// Create stores data and returns a handle to it. The registry keeps its own copy.
func (r *Registry) Create(data []byte, contentType string) *Handle {
	id := uuid.NewString()

	r.mu.Lock()
	r.blobs[id] = entry{
		data:        append([]byte(nil), data...),
		contentType: contentType,
	}
	r.mu.Unlock()

	return &Handle{id: id, registry: r}
}

// Len returns the number of live blobs
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blobs)
}

func (r *Registry) get(id string) (entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.blobs[id]
	return e, ok
}

func (r *Registry) release(id string) {
	r.mu.Lock()
	delete(r.blobs, id)
	r.mu.Unlock()
}

// Handle is a revocable reference to one blob
type Handle struct {
	id       string
	registry *Registry
}

// ID returns the handle's identifier
func (h *Handle) ID() string {
	return h.id
}

// URL returns a blob: URL for display and logging
func (h *Handle) URL() string {
	return "blob:" + h.id
}

// Bytes returns a copy of the blob's contents
func (h *Handle) Bytes() ([]byte, error) {
	e, ok := h.registry.get(h.id)
	if !ok {
		return nil, ErrReleased
	}
	return append([]byte(nil), e.data...), nil
}

// Size returns the blob length, or 0 once released
func (h *Handle) Size() int {
	e, _ := h.registry.get(h.id)
	return len(e.data)
}

// ContentType returns the media type given at creation
func (h *Handle) ContentType() string {
	e, _ := h.registry.get(h.id)
	return e.contentType
}

// Released reports whether Release has been called
func (h *Handle) Released() bool {
	_, ok := h.registry.get(h.id)
	return !ok
}

// Release frees the blob
func (h *Handle) Release() {
	h.registry.release(h.id)
}
