package recorder

import (
	"sync"
	"testing"
	"time"

	"github.com/snarg/whisper-dictation/internal/capture"
)

func TestChunkQueue_FIFO(t *testing.T) {
	q := NewChunkQueue()
	for i := 0; i < 5; i++ {
		q.Push(capture.Chunk{int16(i)})
	}
	if q.Len() != 5 {
		t.Fatalf("Len = %d, want 5", q.Len())
	}
	for i := 0; i < 5; i++ {
		c, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop %d: empty", i)
		}
		if c[0] != int16(i) {
			t.Errorf("pop %d = %d", i, c[0])
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Error("TryPop on empty queue returned ok")
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d, want 0", q.Len())
	}
}

func TestChunkQueue_PopTimesOut(t *testing.T) {
	q := NewChunkQueue()
	start := time.Now()
	_, ok := q.Pop(20 * time.Millisecond)
	if ok {
		t.Error("Pop on empty queue returned ok")
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("Pop returned after %v, expected to wait", elapsed)
	}
}

func TestChunkQueue_PopWakesOnPush(t *testing.T) {
	q := NewChunkQueue()
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(capture.Chunk{42})
	}()
	c, ok := q.Pop(time.Second)
	if !ok {
		t.Fatal("Pop timed out")
	}
	if c[0] != 42 {
		t.Errorf("got %d, want 42", c[0])
	}
}

func TestChunkQueue_ConcurrentProducerConsumer(t *testing.T) {
	q := NewChunkQueue()
	const n = 5000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Push(capture.Chunk{int16(i % 30000)})
		}
	}()

	for i := 0; i < n; i++ {
		c, ok := q.Pop(time.Second)
		if !ok {
			t.Fatalf("Pop %d timed out", i)
		}
		if c[0] != int16(i%30000) {
			t.Fatalf("pop %d = %d, out of order", i, c[0])
		}
	}
	wg.Wait()
}
