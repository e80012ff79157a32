package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/synapse/orchestrator/common/logger"
)

func BenchmarkMemoryTaskQueue_PushPop(b *testing.B) {
	q := NewMemoryTaskQueue(1024, logger.New("error", "text"))
	ctx := context.Background()
	taskID := uuid.New().String()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := q.Push(ctx, taskID); err != nil {
			b.Fatal(err)
		}
		if _, ok, err := q.Pop(ctx, time.Second); err != nil || !ok {
			b.Fatalf("pop failed: ok=%v err=%v", ok, err)
		}
	}
}

func BenchmarkMemoryTaskQueue_Contended(b *testing.B) {
	q := NewMemoryTaskQueue(1024, logger.New("error", "text"))
	ctx := context.Background()
	taskID := uuid.New().String()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if err := q.Push(ctx, taskID); err != nil {
				b.Fatal(err)
			}
			if _, _, err := q.Pop(ctx, time.Second); err != nil {
				b.Fatal(err)
			}
		}
	})
}
