package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/synapse/orchestrator/common/logger"
	"github.com/synapse/orchestrator/common/redis"
)

// ErrClosed is returned by Pop after the queue has been closed.
var ErrClosed = errors.New("task queue closed")

// TaskQueue is the FIFO work queue between the change-notification
// listener and the engine workers. Elements are task id strings.
// Delivery is at-least-once; consumers must tolerate duplicates.
type TaskQueue interface {
	// Push enqueues a task id.
	Push(ctx context.Context, taskID string) error
	// Pop dequeues the oldest task id, blocking up to timeout.
	// ok is false when the timeout elapsed with nothing to pop.
	Pop(ctx context.Context, timeout time.Duration) (taskID string, ok bool, err error)
	// Length reports the number of queued ids.
	Length(ctx context.Context) (int64, error)
}

// RedisTaskQueue backs the work queue with a Redis list. The listener
// LPUSHes and workers BRPOP, so ids come out in arrival order and a
// blocked worker wakes as soon as an id lands.
type RedisTaskQueue struct {
	client *redis.Client
	key    string
	log    *logger.Logger
}

// NewRedisTaskQueue creates a Redis-backed task queue on the given list key.
func NewRedisTaskQueue(client *redis.Client, key string, log *logger.Logger) *RedisTaskQueue {
	return &RedisTaskQueue{
		client: client,
		key:    key,
		log:    log,
	}
}

// Push enqueues a task id.
func (q *RedisTaskQueue) Push(ctx context.Context, taskID string) error {
	return q.client.PushToList(ctx, q.key, taskID)
}

// Pop dequeues the oldest task id, blocking up to timeout.
func (q *RedisTaskQueue) Pop(ctx context.Context, timeout time.Duration) (string, bool, error) {
	result, err := q.client.BlockingPopList(ctx, timeout, q.key)
	if err != nil {
		return "", false, err
	}
	if len(result) < 2 {
		// Timeout
		return "", false, nil
	}
	// BRPOP returns [key, value]
	return result[1], true, nil
}

// Length reports the number of queued ids.
func (q *RedisTaskQueue) Length(ctx context.Context) (int64, error) {
	return q.client.ListLength(ctx, q.key)
}

// MemoryTaskQueue is a channel-backed queue for tests and
// single-process runs.
type MemoryTaskQueue struct {
	ch        chan string
	closeOnce sync.Once
	log       *logger.Logger
}

// NewMemoryTaskQueue creates an in-memory task queue with the given capacity.
func NewMemoryTaskQueue(capacity int, log *logger.Logger) *MemoryTaskQueue {
	return &MemoryTaskQueue{
		ch:  make(chan string, capacity),
		log: log,
	}
}

// Push enqueues a task id, blocking when the queue is full.
func (q *MemoryTaskQueue) Push(ctx context.Context, taskID string) error {
	select {
	case q.ch <- taskID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop dequeues the oldest task id, blocking up to timeout.
func (q *MemoryTaskQueue) Pop(ctx context.Context, timeout time.Duration) (string, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case taskID, open := <-q.ch:
		if !open {
			return "", false, ErrClosed
		}
		return taskID, true, nil
	case <-timer.C:
		return "", false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// Length reports the number of queued ids.
func (q *MemoryTaskQueue) Length(ctx context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}

// Close closes the queue. Pending Pops drain remaining ids and then
// return ErrClosed.
func (q *MemoryTaskQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.ch)
	})
}
