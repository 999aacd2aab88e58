package recorder

import (
	"sync"
	"time"

	"github.com/snarg/whisper-dictation/internal/capture"
)

// ChunkQueue is an unbounded FIFO between one producer and one consumer.
// Push never blocks and never drops; a stalled consumer grows memory
// without limit.
type ChunkQueue struct {
	mu     sync.Mutex
	items  []capture.Chunk
	head   int
	notify chan struct{}
}

// NewChunkQueue creates an empty queue.
func NewChunkQueue() *ChunkQueue {
	return &ChunkQueue{notify: make(chan struct{}, 1)}
}

// Push appends a chunk. Safe to call from a driver callback.
func (q *ChunkQueue) Push(c capture.Chunk) {
	q.mu.Lock()
	q.items = append(q.items, c)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// TryPop removes the oldest chunk without waiting.
func (q *ChunkQueue) TryPop() (capture.Chunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.items) {
		return nil, false
	}
	c := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		// Reuse the backing array once drained.
		q.items = q.items[:0]
		q.head = 0
	}
	return c, true
}

// Pop waits up to timeout for a chunk.
func (q *ChunkQueue) Pop(timeout time.Duration) (capture.Chunk, bool) {
	if c, ok := q.TryPop(); ok {
		return c, true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.notify:
			if c, ok := q.TryPop(); ok {
				return c, true
			}
		case <-timer.C:
			return q.TryPop()
		}
	}
}

// Len returns the number of queued chunks.
func (q *ChunkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
