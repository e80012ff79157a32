package main

import (
	"encoding/json"
	"sync"

	"github.com/synapse/orchestrator/common/logger"
)

// Hub maintains active WebSocket connections and broadcasts task
// events to them. Clients either follow one workflow or everything;
// events without a workflow id only reach the follow-everything
// clients.
type Hub struct {
	// Map: workflow filter → clients ("" means all workflows)
	connections map[string][]*Client
	mutex       sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	log *logger.Logger
}

// NewHub creates a new Hub instance
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		connections: make(map[string][]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan []byte, 256),
		log:         log,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.log.Info("hub started")

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

// registerClient adds a client to the hub
func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.connections[client.workflowFilter] = append(h.connections[client.workflowFilter], client)
	h.log.Debug("client registered",
		"workflow_filter", client.workflowFilter,
		"clients_for_filter", len(h.connections[client.workflowFilter]))
}

// unregisterClient removes a client from the hub
func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	clients := h.connections[client.workflowFilter]
	for i, c := range clients {
		if c == client {
			h.connections[client.workflowFilter] = append(clients[:i], clients[i+1:]...)
			close(client.send)

			if len(h.connections[client.workflowFilter]) == 0 {
				delete(h.connections, client.workflowFilter)
			}

			h.log.Debug("client unregistered", "workflow_filter", client.workflowFilter)
			break
		}
	}
}

// broadcastEvent delivers one event: unfiltered clients always get it,
// filtered clients only when the payload names their workflow. Update
// payloads carry no workflow_id and so skip filtered clients.
func (h *Hub) broadcastEvent(event []byte) {
	workflowID := extractWorkflowID(event)

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	targets := make([]*Client, 0, len(h.connections[""])+len(h.connections[workflowID]))
	targets = append(targets, h.connections[""]...)
	if workflowID != "" {
		targets = append(targets, h.connections[workflowID]...)
	}

	for _, client := range targets {
		select {
		case client.send <- event:
		default:
			// Client cannot keep up; drop the event rather than block
			// every other connection
			h.log.Warn("client send buffer full, dropping event",
				"workflow_filter", client.workflowFilter)
		}
	}
}

// ConnectionCount returns the total number of active connections
func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	count := 0
	for _, clients := range h.connections {
		count += len(clients)
	}
	return count
}

// extractWorkflowID pulls workflow_id out of a trigger payload.
// Returns "" when absent or unparseable.
func extractWorkflowID(event []byte) string {
	var partial struct {
		WorkflowID string `json:"workflow_id"`
	}
	if err := json.Unmarshal(event, &partial); err != nil {
		return ""
	}
	return partial.WorkflowID
}
