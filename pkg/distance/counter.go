package distance

import "sync/atomic"

// Counter holds travelled segments that have not been flushed yet.
// It is the only value shared between the sampling path, the reporter and the
// status page, so every operation is atomic.
type Counter struct {
	segments atomic.Uint32
}

// Add adds n segments.
func (c *Counter) Add(n uint32) {
	c.segments.Add(n)
}

// Load returns the current segment count without resetting it.
func (c *Counter) Load() uint32 {
	return c.segments.Load()
}

// Drain returns the current segment count and resets it to zero in a single
// step, so no increment is lost or counted twice.
func (c *Counter) Drain() uint32 {
	return c.segments.Swap(0)
}
