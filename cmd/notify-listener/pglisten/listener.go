package pglisten

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/synapse/orchestrator/common/models"
	"github.com/synapse/orchestrator/common/queue"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// EventPublisher republishes trigger payloads for downstream fanout.
// Publishing is fire-and-forget; a failed publish never blocks queue
// delivery.
type EventPublisher interface {
	PublishEvent(ctx context.Context, channel string, message string) error
}

// Listener bridges Postgres LISTEN/NOTIFY into the work queue. It owns
// one dedicated autocommit connection subscribed to the task channels;
// every notification enqueues the task id and republishes the payload
// on the event channel. Delivery to the queue is at-least-once: the
// engine's claim step absorbs duplicates from reconnects.
type Listener struct {
	connString   string
	channels     []string
	queue        queue.TaskQueue
	events       EventPublisher
	eventChannel string
	log          Logger

	maxBackoff time.Duration
}

// Opts contains options for creating a listener
type Opts struct {
	// ConnString is the Postgres connection string for the dedicated
	// listen connection
	ConnString string

	// Queue receives the task id of every notification
	Queue queue.TaskQueue

	// Events, when set, receives every raw payload on EventChannel
	Events       EventPublisher
	EventChannel string

	Logger Logger
}

// New creates a listener subscribed to the task_created and
// task_updated channels.
func New(opts Opts) *Listener {
	return &Listener{
		connString:   opts.ConnString,
		channels:     []string{models.ChannelTaskCreated, models.ChannelTaskUpdated},
		queue:        opts.Queue,
		events:       opts.Events,
		eventChannel: opts.EventChannel,
		log:          opts.Logger,
		maxBackoff:   30 * time.Second,
	}
}

// Run connects and consumes notifications until ctx is cancelled.
// Connection loss is retried with exponential backoff; notifications
// committed while disconnected are recovered by the engine's PENDING
// re-scan, not here.
func (l *Listener) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := l.listen(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}

		l.log.Error("listener connection lost", "error", err, "retry_in", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		backoff *= 2
		if backoff > l.maxBackoff {
			backoff = l.maxBackoff
		}
	}
}

// listen holds one connection for its whole lifetime
func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return fmt.Errorf("connect for listen: %w", err)
	}
	defer conn.Close(context.Background())

	for _, channel := range l.channels {
		if _, err := conn.Exec(ctx, fmt.Sprintf("LISTEN %s", pgx.Identifier{channel}.Sanitize())); err != nil {
			return fmt.Errorf("listen on %s: %w", channel, err)
		}
	}
	l.log.Info("listening for task notifications", "channels", l.channels)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return context.Canceled
			}
			return fmt.Errorf("wait for notification: %w", err)
		}

		l.handleNotification(ctx, notification.Channel, []byte(notification.Payload))
	}
}

// handleNotification enqueues the task id and republishes the payload.
// A malformed payload is logged and dropped: the id cannot be
// recovered from it, and the PENDING re-scan covers the loss.
func (l *Listener) handleNotification(ctx context.Context, channel string, payload []byte) {
	event, err := ParsePayload(payload)
	if err != nil {
		l.log.Warn("discarding malformed notification", "channel", channel, "error", err)
		return
	}

	l.log.Debug("task notification",
		"channel", channel,
		"task_id", event.TaskID,
		"status", event.Status)

	if err := l.queue.Push(ctx, event.TaskID.String()); err != nil {
		l.log.Error("failed to enqueue task", "task_id", event.TaskID, "error", err)
		return
	}

	if l.events != nil && l.eventChannel != "" {
		if err := l.events.PublishEvent(ctx, l.eventChannel, string(payload)); err != nil {
			// Fanout is best effort
			l.log.Warn("failed to publish task event", "task_id", event.TaskID, "error", err)
		}
	}
}

// ParsePayload decodes a trigger payload. The task id is the only
// required field.
func ParsePayload(payload []byte) (*models.TaskNotification, error) {
	var event models.TaskNotification
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode notification payload: %w", err)
	}
	if event.TaskID == uuid.Nil {
		return nil, fmt.Errorf("notification payload has no task_id")
	}
	return &event, nil
}
