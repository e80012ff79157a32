package main

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/synapse/orchestrator/common/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browser dashboards connect cross-origin in development
		return true
	},
}

// Server handles WebSocket upgrades
type Server struct {
	hub *Hub
	log *logger.Logger
}

// NewServer creates a new Server instance
func NewServer(hub *Hub, log *logger.Logger) *Server {
	return &Server{
		hub: hub,
		log: log,
	}
}

// HandleWebSocket upgrades the connection and registers the client.
// URL: /ws?workflow_id=<uuid> — omit workflow_id to receive all events.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	workflowFilter := r.URL.Query().Get("workflow_id")
	if workflowFilter != "" {
		if _, err := uuid.Parse(workflowFilter); err != nil {
			http.Error(w, "workflow_id is not a valid UUID", http.StatusBadRequest)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, workflowFilter, s.log)
	s.hub.register <- client

	s.log.Info("websocket client connected",
		"workflow_filter", workflowFilter,
		"remote", r.RemoteAddr)

	go client.writePump()
	go client.readPump()
}
