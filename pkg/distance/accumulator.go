// Package distance counts wheel segment transitions.
//
// The accumulator assumes the sensors are polled often enough that the wheel
// cannot pass more than one segment boundary between two polls. This is a
// physical precondition, not something the accumulator can detect: if the
// wheel skips segments between polls the count silently comes out low. Anyone
// changing the poll interval has to keep it at or below 1/max_segment_rate.
package distance

import "github.com/itohio/furball/pkg/gray"

// Accumulator turns a stream of segment codes into segment transitions.
// Direction is not computed; every change of position counts as one segment.
type Accumulator struct {
	counter *Counter

	lastIndex int // -1 until the first valid code
	misses    uint64
}

// NewAccumulator creates an accumulator that adds to counter.
func NewAccumulator(counter *Counter) *Accumulator {
	return &Accumulator{counter: counter, lastIndex: -1}
}

// Update processes one polled segment code and reports whether the position
// changed. The first valid code only establishes the starting position.
// A code that is not in the Gray table keeps the previous position.
func (a *Accumulator) Update(code uint8) bool {
	idx := gray.Decode(code, a.lastIndex)
	if idx < 0 || gray.Table[idx] != code {
		a.misses++
		return false
	}

	if a.lastIndex < 0 {
		a.lastIndex = idx
		return false
	}

	if idx == a.lastIndex {
		return false
	}

	a.lastIndex = idx
	a.counter.Add(1)
	return true
}

// Position returns the last decoded position, or -1 before the first valid
// code.
func (a *Accumulator) Position() int {
	return a.lastIndex
}

// Misses returns how many codes could not be decoded.
func (a *Accumulator) Misses() uint64 {
	return a.misses
}
