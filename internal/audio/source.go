package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/guidoenr/lumen/internal/pcm"
)

var (
	// ErrSourceClosed is returned by Read after Close.
	ErrSourceClosed = errors.New("audio source closed")
	// ErrUnsupportedFormat is returned for files no decoder accepts.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// DefaultChunkSize is the number of frames per delivered chunk.
const DefaultChunkSize = 1024

const defaultQueueDepth = 8

// Source delivers PCM chunks from a device, a file or a generator.
type Source interface {
	// Read blocks until a chunk is available, the stream ends (io.EOF) or
	// ctx is done.
	Read(ctx context.Context) (pcm.Chunk, error)
	SampleRate() float64
	Close() error
}

// chunkQueue hands chunks from a real-time callback to a reader. Pushing
// never blocks: when the queue is full the oldest chunk is dropped.
type chunkQueue struct {
	ch      chan pcm.Chunk
	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

func newChunkQueue(depth int) *chunkQueue {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	return &chunkQueue{ch: make(chan pcm.Chunk, depth)}
}

func (q *chunkQueue) push(c pcm.Chunk) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	for {
		select {
		case q.ch <- c:
			return
		default:
		}
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
		}
	}
}

func (q *chunkQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// pop waits for the next chunk. ok is false once the queue is closed and
// drained.
func (q *chunkQueue) pop(ctx context.Context) (c pcm.Chunk, ok bool, err error) {
	select {
	case c, ok = <-q.ch:
		return c, ok, nil
	case <-ctx.Done():
		return pcm.Chunk{}, false, ctx.Err()
	}
}

// Dropped returns how many chunks were discarded because the reader fell
// behind.
func (q *chunkQueue) Dropped() uint64 { return q.dropped.Load() }
