package audio

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Handle identifies a transient playback reference. The zero Handle refers to nothing.
type Handle string

// PlaybackRegistry holds audio for immediate playback for the lifetime of the
// process. Every Acquire must be paired with a Release, otherwise the bytes stay
// in memory until shutdown.
type PlaybackRegistry struct {
	mu      sync.RWMutex
	entries map[Handle][]byte
}

// NewPlaybackRegistry constructs an empty registry.
func NewPlaybackRegistry() *PlaybackRegistry {
	return &PlaybackRegistry{entries: make(map[Handle][]byte)}
}

// Acquire stores a private copy of data and returns its handle.
func (r *PlaybackRegistry) Acquire(data []byte) Handle {
	h := Handle(uuid.NewString())

	r.mu.Lock()
	r.entries[h] = slices.Clone(data)
	r.mu.Unlock()

	return h
}

// Open returns the bytes behind h.
func (r *PlaybackRegistry) Open(h Handle) ([]byte, bool) {
	r.mu.RLock()
	data, ok := r.entries[h]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return slices.Clone(data), true
}

// Release drops h. Releasing an unknown or already released handle is a no-op
// and reports false.
func (r *PlaybackRegistry) Release(h Handle) bool {
	if h == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[h]; !ok {
		return false
	}
	delete(r.entries, h)
	return true
}

// Live reports how many references are currently held.
func (r *PlaybackRegistry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
