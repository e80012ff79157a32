package main

import (
	"context"

	"github.com/synapse/orchestrator/common/logger"
	"github.com/synapse/orchestrator/common/redis"
)

// EventSubscriber listens on the task event channel and forwards every
// payload to the hub. Delivery is fire-and-forget: a dropped event
// never affects the durable queue pipeline.
type EventSubscriber struct {
	redis   *redis.Client
	channel string
	hub     *Hub
	log     *logger.Logger
}

// NewEventSubscriber creates a new EventSubscriber instance
func NewEventSubscriber(redisClient *redis.Client, channel string, hub *Hub, log *logger.Logger) *EventSubscriber {
	return &EventSubscriber{
		redis:   redisClient,
		channel: channel,
		hub:     hub,
		log:     log,
	}
}

// Start consumes the event channel until ctx is cancelled
func (s *EventSubscriber) Start(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	s.log.Info("event subscriber started", "channel", s.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("event subscriber stopping")
			return

		case msg, ok := <-ch:
			if !ok {
				s.log.Warn("event subscription closed")
				return
			}
			if msg == nil {
				continue
			}

			s.log.Debug("task event received", "size", len(msg.Payload))
			s.hub.broadcast <- []byte(msg.Payload)
		}
	}
}
