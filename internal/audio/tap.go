package audio

import (
	"sync"

	"github.com/gopxl/beep/v2"

	"github.com/guidoenr/lumen/internal/pcm"
)

// Tap is a streamer wrapper that copies a mono mix of everything passing
// through into chunk-sized blocks. It sits between a decoder and the
// speaker so analysis sees exactly what is being played.
type Tap struct {
	s         beep.Streamer
	rate      float64
	chunkSize int
	queue     *chunkQueue

	mu     sync.Mutex
	block  []float32
	frames int64
	done   bool
}

// NewTap wraps s. Blocks of chunkSize frames are delivered through Read.
func NewTap(s beep.Streamer, rate beep.SampleRate, chunkSize, queueDepth int) *Tap {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Tap{
		s:         s,
		rate:      float64(rate),
		chunkSize: chunkSize,
		queue:     newChunkQueue(queueDepth),
		block:     make([]float32, 0, chunkSize),
	}
}

// Stream passes audio through while capturing it. When the wrapped
// streamer is drained the partial block is flushed and the tap closes.
func (t *Tap) Stream(samples [][2]float64) (int, bool) {
	n, ok := t.s.Stream(samples)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return n, ok
	}
	for i := range n {
		t.block = append(t.block, float32((samples[i][0]+samples[i][1])/2))
		if len(t.block) == t.chunkSize {
			t.flush()
		}
	}
	if !ok || n == 0 {
		t.flush()
		t.done = true
		t.queue.close()
	}
	return n, ok
}

// flush hands the pending block to the queue. Callers hold t.mu.
func (t *Tap) flush() {
	if len(t.block) == 0 {
		return
	}
	samples := make([]float32, len(t.block))
	copy(samples, t.block)
	t.queue.push(pcm.Chunk{
		Samples:    samples,
		Channels:   1,
		SampleRate: t.rate,
		Position:   framesToDuration(t.frames, t.rate),
	})
	t.frames += int64(len(samples))
	t.block = t.block[:0]
}

// Err returns the underlying streamer's error.
func (t *Tap) Err() error {
	return t.s.Err()
}

// Close ends the tap early. Blocked readers see the end of stream.
func (t *Tap) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	t.queue.close()
}
