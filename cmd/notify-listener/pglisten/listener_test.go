package pglisten

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/synapse/orchestrator/common/logger"
	"github.com/synapse/orchestrator/common/models"
	"github.com/synapse/orchestrator/common/queue"
)

type recordingPublisher struct {
	channels []string
	payloads []string
	err      error
}

func (p *recordingPublisher) PublishEvent(ctx context.Context, channel, message string) error {
	if p.err != nil {
		return p.err
	}
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, message)
	return nil
}

func newTestListener(q queue.TaskQueue, events EventPublisher) *Listener {
	return New(Opts{
		ConnString:   "postgres://unused",
		Queue:        q,
		Events:       events,
		EventChannel: "task-events",
		Logger:       logger.New("error", "text"),
	})
}

func TestParsePayload_UpdateShape(t *testing.T) {
	taskID := uuid.New()
	payload := fmt.Sprintf(`{"task_id": %q, "status": "COMPLETED", "updated_at": "2025-06-01T12:00:00Z"}`, taskID)

	event, err := ParsePayload([]byte(payload))
	if err != nil {
		t.Fatalf("ParsePayload failed: %v", err)
	}
	if event.TaskID != taskID {
		t.Errorf("wrong task_id: %s", event.TaskID)
	}
	if event.Status != models.StatusCompleted {
		t.Errorf("wrong status: %s", event.Status)
	}
	if event.WorkflowID != nil {
		t.Error("update payload should not carry workflow_id")
	}
}

func TestParsePayload_CreateShape(t *testing.T) {
	taskID := uuid.New()
	workflowID := uuid.New()
	payload := fmt.Sprintf(
		`{"task_id": %q, "workflow_id": %q, "assignee_id": "Agent:A", "status": "PENDING", "created_at": "2025-06-01T12:00:00Z"}`,
		taskID, workflowID)

	event, err := ParsePayload([]byte(payload))
	if err != nil {
		t.Fatalf("ParsePayload failed: %v", err)
	}
	if event.TaskID != taskID {
		t.Errorf("wrong task_id: %s", event.TaskID)
	}
	if event.WorkflowID == nil || *event.WorkflowID != workflowID {
		t.Errorf("wrong workflow_id: %v", event.WorkflowID)
	}
	if event.AssigneeID != "Agent:A" {
		t.Errorf("wrong assignee: %s", event.AssigneeID)
	}
}

func TestParsePayload_Malformed(t *testing.T) {
	cases := []string{
		``,
		`not json`,
		`{"status": "PENDING"}`,
		`{"task_id": "not-a-uuid"}`,
	}
	for _, payload := range cases {
		if _, err := ParsePayload([]byte(payload)); err == nil {
			t.Errorf("ParsePayload(%q) should fail", payload)
		}
	}
}

func TestHandleNotification_EnqueuesAndPublishes(t *testing.T) {
	log := logger.New("error", "text")
	q := queue.NewMemoryTaskQueue(8, log)
	events := &recordingPublisher{}
	l := newTestListener(q, events)

	taskID := uuid.New()
	payload := fmt.Sprintf(`{"task_id": %q, "status": "PENDING"}`, taskID)

	l.handleNotification(context.Background(), models.ChannelTaskUpdated, []byte(payload))

	got, ok, err := q.Pop(context.Background(), 100*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("expected a queued id, got ok=%v err=%v", ok, err)
	}
	if got != taskID.String() {
		t.Errorf("queued %q, want %q", got, taskID)
	}

	if len(events.payloads) != 1 || events.payloads[0] != payload {
		t.Errorf("event not republished: %v", events.payloads)
	}
	if events.channels[0] != "task-events" {
		t.Errorf("wrong event channel: %s", events.channels[0])
	}
}

func TestHandleNotification_MalformedPayloadIsDropped(t *testing.T) {
	log := logger.New("error", "text")
	q := queue.NewMemoryTaskQueue(8, log)
	events := &recordingPublisher{}
	l := newTestListener(q, events)

	l.handleNotification(context.Background(), models.ChannelTaskCreated, []byte(`garbage`))

	if _, ok, _ := q.Pop(context.Background(), 20*time.Millisecond); ok {
		t.Error("malformed payload must not enqueue anything")
	}
	if len(events.payloads) != 0 {
		t.Error("malformed payload must not be republished")
	}
}

func TestHandleNotification_PublishFailureDoesNotBlockQueue(t *testing.T) {
	log := logger.New("error", "text")
	q := queue.NewMemoryTaskQueue(8, log)
	events := &recordingPublisher{err: fmt.Errorf("redis down")}
	l := newTestListener(q, events)

	taskID := uuid.New()
	payload := fmt.Sprintf(`{"task_id": %q, "status": "PENDING"}`, taskID)
	l.handleNotification(context.Background(), models.ChannelTaskUpdated, []byte(payload))

	if _, ok, _ := q.Pop(context.Background(), 100*time.Millisecond); !ok {
		t.Error("queue delivery must survive a failed event publish")
	}
}
