package distance

import (
	"sync"
	"testing"

	"github.com/itohio/furball/pkg/gray"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedPositions(a *Accumulator, positions ...int) {
	for _, p := range positions {
		a.Update(gray.Table[p])
	}
}

func TestAccumulator_CountsTransitions(t *testing.T) {
	var c Counter
	a := NewAccumulator(&c)

	feedPositions(a, 0, 1, 1, 3, 3, 3, 5)

	// 0->1, 1->3 and 3->5
	assert.Equal(t, uint32(3), c.Load())
	assert.Equal(t, 5, a.Position())
}

func TestAccumulator_Sequences(t *testing.T) {
	tests := []struct {
		name      string
		positions []int
		want      uint32
	}{
		{"empty", nil, 0},
		{"single", []int{7}, 0},
		{"steady", []int{4, 4, 4, 4}, 0},
		{"full turn", []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 0}, 16},
		{"backwards also counts", []int{5, 4, 3, 2}, 3},
		{"jitter counts every change", []int{2, 3, 2, 3}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Counter
			a := NewAccumulator(&c)
			feedPositions(a, tt.positions...)
			assert.Equal(t, tt.want, c.Load())
		})
	}
}

func TestAccumulator_FirstCodeDoesNotCount(t *testing.T) {
	var c Counter
	a := NewAccumulator(&c)

	assert.False(t, a.Update(gray.Table[9]))
	assert.Equal(t, uint32(0), c.Load())
	assert.True(t, a.Update(gray.Table[10]))
	assert.Equal(t, uint32(1), c.Load())
}

func TestAccumulator_MalformedCodeRetainsPosition(t *testing.T) {
	var c Counter
	a := NewAccumulator(&c)

	feedPositions(a, 3)
	assert.False(t, a.Update(0x1F))
	assert.Equal(t, 3, a.Position())
	assert.Equal(t, uint64(1), a.Misses())
	assert.Equal(t, uint32(0), c.Load())

	// Returning to the same position after a miss is not a transition.
	feedPositions(a, 3)
	assert.Equal(t, uint32(0), c.Load())

	feedPositions(a, 4)
	assert.Equal(t, uint32(1), c.Load())
}

func TestCounter_Drain(t *testing.T) {
	var c Counter
	c.Add(10)
	c.Add(2)

	require.Equal(t, uint32(12), c.Load())
	assert.Equal(t, uint32(12), c.Drain())
	assert.Equal(t, uint32(0), c.Load())
	assert.Equal(t, uint32(0), c.Drain())
}

func TestCounter_ConcurrentAddAndDrain(t *testing.T) {
	var c Counter
	const writers, perWriter = 8, 1000

	var drained uint32
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				c.Add(1)
				if j%100 == 0 {
					n := c.Drain()
					mu.Lock()
					drained += n
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	drained += c.Drain()
	assert.Equal(t, uint32(writers*perWriter), drained, "no increment lost or counted twice")
}

func TestAccumulator_MalformedCodeBeforeStart(t *testing.T) {
	var c Counter
	a := NewAccumulator(&c)
	assert.Equal(t, -1, a.Position())

	assert.False(t, a.Update(0x1F))
	assert.Equal(t, -1, a.Position(), "a miss does not establish a position")
	assert.Equal(t, uint64(1), a.Misses())

	assert.False(t, a.Update(gray.Table[6]))
	assert.Equal(t, 6, a.Position())
	assert.True(t, a.Update(gray.Table[7]))
	assert.Equal(t, uint32(1), c.Load())
}
