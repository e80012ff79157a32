package main

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/synapse/orchestrator/common/logger"
)

func testClient(hub *Hub, filter string) *Client {
	return &Client{
		hub:            hub,
		workflowFilter: filter,
		send:           make(chan []byte, 4),
		log:            logger.New("error", "text"),
	}
}

func TestHub_BroadcastFiltersByWorkflow(t *testing.T) {
	hub := NewHub(logger.New("error", "text"))
	workflowID := uuid.New()

	all := testClient(hub, "")
	matching := testClient(hub, workflowID.String())
	other := testClient(hub, uuid.New().String())
	hub.registerClient(all)
	hub.registerClient(matching)
	hub.registerClient(other)

	event := []byte(fmt.Sprintf(`{"task_id": %q, "workflow_id": %q, "status": "PENDING"}`, uuid.New(), workflowID))
	hub.broadcastEvent(event)

	select {
	case got := <-all.send:
		if string(got) != string(event) {
			t.Errorf("unfiltered client got wrong payload: %s", got)
		}
	default:
		t.Error("unfiltered client should receive the event")
	}

	select {
	case <-matching.send:
	default:
		t.Error("matching filter should receive the event")
	}

	select {
	case <-other.send:
		t.Error("non-matching filter must not receive the event")
	default:
	}
}

func TestHub_EventWithoutWorkflowSkipsFilteredClients(t *testing.T) {
	hub := NewHub(logger.New("error", "text"))

	all := testClient(hub, "")
	filtered := testClient(hub, uuid.New().String())
	hub.registerClient(all)
	hub.registerClient(filtered)

	// Update payloads carry only task_id and status
	event := []byte(fmt.Sprintf(`{"task_id": %q, "status": "COMPLETED"}`, uuid.New()))
	hub.broadcastEvent(event)

	select {
	case <-all.send:
	default:
		t.Error("unfiltered client should receive updates without workflow_id")
	}

	select {
	case <-filtered.send:
		t.Error("filtered client must not receive updates without workflow_id")
	default:
	}
}

func TestHub_UnregisterClosesAndRemoves(t *testing.T) {
	hub := NewHub(logger.New("error", "text"))
	client := testClient(hub, "")
	hub.registerClient(client)

	if hub.ConnectionCount() != 1 {
		t.Fatalf("expected 1 connection, got %d", hub.ConnectionCount())
	}

	hub.unregisterClient(client)

	if hub.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections, got %d", hub.ConnectionCount())
	}
	if _, ok := <-client.send; ok {
		t.Error("send channel should be closed after unregister")
	}
}

func TestHub_FullClientBufferDropsEvent(t *testing.T) {
	hub := NewHub(logger.New("error", "text"))
	client := testClient(hub, "")
	hub.registerClient(client)

	event := []byte(fmt.Sprintf(`{"task_id": %q, "status": "PENDING"}`, uuid.New()))
	for i := 0; i < cap(client.send)+2; i++ {
		hub.broadcastEvent(event) // must not block once the buffer fills
	}

	if got := len(client.send); got != cap(client.send) {
		t.Errorf("expected a full buffer of %d, got %d", cap(client.send), got)
	}
}
