package monitor

import (
	"image"
	"sync"
)

// FrameBuffer hands the most recent rendered frame from the session
// loop to the HTTP handlers. The session loop publishes a freshly
// allocated image on each render, so readers never race on pixel data.
type FrameBuffer struct {
	mu     sync.RWMutex
	latest *image.RGBA
	count  uint64
}

// Publish replaces the latest frame. The image must not be mutated by
// the caller afterwards.
func (fb *FrameBuffer) Publish(img *image.RGBA) {
	fb.mu.Lock()
	fb.latest = img
	fb.count++
	fb.mu.Unlock()
}

// Latest returns the most recent frame and whether one exists yet.
func (fb *FrameBuffer) Latest() (*image.RGBA, bool) {
	fb.mu.RLock()
	defer fb.mu.RUnlock()
	return fb.latest, fb.latest != nil
}

// Published returns how many frames have been published.
func (fb *FrameBuffer) Published() uint64 {
	fb.mu.RLock()
	defer fb.mu.RUnlock()
	return fb.count
}
