// Package pipeline connects the audio-analysis producer to the per-frame
// parameter consumer through single-slot latest-value cells.
package pipeline

import "sync/atomic"

type versioned[T any] struct {
	value   T
	version uint64
}

// Cell holds the most recently published value. Publish replaces it and Load
// reads it; neither ever blocks.
type Cell[T any] struct {
	slot    atomic.Pointer[versioned[T]]
	version atomic.Uint64
}

// Publish stores v and returns its version. Versions start at 1.
func (c *Cell[T]) Publish(v T) uint64 {
	n := c.version.Add(1)
	c.slot.Store(&versioned[T]{value: v, version: n})
	return n
}

// Load returns the latest value and its version. ok is false if nothing has
// been published yet.
func (c *Cell[T]) Load() (v T, version uint64, ok bool) {
	p := c.slot.Load()
	if p == nil {
		return v, 0, false
	}
	return p.value, p.version, true
}
