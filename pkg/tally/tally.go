// Package tally counts manual button presses.
package tally

import "sync/atomic"

// Tally increments once per press: the press latches until the input returns
// to inactive, so holding the button across many polls counts once.
type Tally struct {
	pressed bool
	count   atomic.Uint32
}

// Update feeds the current input level and reports whether a new press was
// counted.
func (t *Tally) Update(active bool) bool {
	if !active {
		t.pressed = false
		return false
	}
	if t.pressed {
		return false
	}
	t.pressed = true
	t.count.Add(1)
	return true
}

// Count returns the number of presses seen. Safe to call from any goroutine.
func (t *Tally) Count() uint32 {
	return t.count.Load()
}
