package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/synapse/orchestrator/common/logger"
)

func newTestQueue(capacity int) *MemoryTaskQueue {
	return NewMemoryTaskQueue(capacity, logger.New("error", "text"))
}

func TestMemoryQueue_FIFO(t *testing.T) {
	q := newTestQueue(8)
	ctx := context.Background()

	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		if err := q.Push(ctx, id); err != nil {
			t.Fatalf("Push(%s) failed: %v", id, err)
		}
	}

	for _, want := range ids {
		got, ok, err := q.Pop(ctx, time.Second)
		if err != nil {
			t.Fatalf("Pop failed: %v", err)
		}
		if !ok {
			t.Fatal("Pop timed out with queued elements")
		}
		if got != want {
			t.Errorf("Pop order: expected %s, got %s", want, got)
		}
	}
}

func TestMemoryQueue_PopTimeout(t *testing.T) {
	q := newTestQueue(1)

	start := time.Now()
	_, ok, err := q.Pop(context.Background(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Pop failed: %v", err)
	}
	if ok {
		t.Error("Pop on empty queue reported an element")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Pop returned before timeout: %v", elapsed)
	}
}

func TestMemoryQueue_PopCancelled(t *testing.T) {
	q := newTestQueue(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := q.Pop(ctx, time.Minute)
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestMemoryQueue_ClosedAfterDrain(t *testing.T) {
	q := newTestQueue(2)
	ctx := context.Background()

	if err := q.Push(ctx, "last"); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	q.Close()

	got, ok, err := q.Pop(ctx, time.Second)
	if err != nil || !ok || got != "last" {
		t.Fatalf("Expected to drain queued element, got (%q, %v, %v)", got, ok, err)
	}

	_, _, err = q.Pop(ctx, time.Second)
	if err != ErrClosed {
		t.Errorf("Expected ErrClosed after drain, got %v", err)
	}
}

func TestMemoryQueue_ConcurrentConsumers(t *testing.T) {
	q := newTestQueue(128)
	ctx := context.Background()

	const total = 100
	for i := 0; i < total; i++ {
		if err := q.Push(ctx, fmt.Sprintf("task-%d", i)); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				id, ok, err := q.Pop(ctx, 50*time.Millisecond)
				if err != nil || !ok {
					return
				}
				mu.Lock()
				seen[id]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("Expected %d distinct ids, got %d", total, len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("Task %s delivered %d times", id, count)
		}
	}
}

func TestMemoryQueue_Length(t *testing.T) {
	q := newTestQueue(4)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := q.Push(ctx, fmt.Sprintf("t%d", i)); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}

	n, err := q.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected length 3, got %d", n)
	}
}
