// Package sse carries submission change notifications over Server-Sent Events. The Hub
// fans events out to connected streams on the server; Source consumes a stream on the
// client and dispatches per submission id.
package sse

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// EventSubmissionUpdate is the event type of submission change notifications.
const EventSubmissionUpdate = "submission_update"

// Event represents a Server-Sent Event
type Event struct {
	EventType    string `json:"event"`
	Data         string `json:"data"`
	SubmissionID string `json:"submission_id,omitempty"`
	UserID       string `json:"user_id,omitempty"`
}

// Client represents a connected SSE stream. A non-empty SubmissionID restricts the
// stream to events of that submission.
type Client struct {
	ID           string
	UserID       string
	SubmissionID string
	Events       chan Event
}

func (c *Client) wants(ev Event) bool {
	if ev.UserID != "" && ev.UserID != c.UserID {
		return false
	}
	if c.SubmissionID == "" || ev.SubmissionID == "" {
		return true
	}
	return c.SubmissionID == ev.SubmissionID
}

// Publisher forwards events to other server instances.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Hub manages all SSE client connections
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client
	publisher Publisher
	logger    *zap.Logger
}

// NewHub creates a new SSE Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger.Named("sse"),
	}
}

// SetPublisher routes Publish through p; received events come back via Broadcast.
func (h *Hub) SetPublisher(p Publisher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publisher = p
}

// Register adds a new client to the hub
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Debug("client registered",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID),
		zap.String("submission_id", client.SubmissionID),
		zap.Int("total", len(h.clients)))
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		h.logger.Debug("client unregistered", zap.String("client_id", clientID), zap.Int("total", len(h.clients)))
	}
}

// Count returns the number of connected streams.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers an event to the local clients that want it.
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !client.wants(event) {
			continue
		}
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("client buffer full, skipping event", zap.String("client_id", client.ID), zap.String("event", event.EventType))
		}
	}
}

// Publish sends an event to every instance when a publisher is set, otherwise to the
// local clients. A failed publish falls back to the local broadcast.
func (h *Hub) Publish(ctx context.Context, event Event) {
	h.mu.RLock()
	p := h.publisher
	h.mu.RUnlock()
	if p != nil {
		err := p.Publish(ctx, event)
		if err == nil {
			return
		}
		h.logger.Warn("publish failed, broadcasting locally", zap.String("event", event.EventType), zap.Error(err))
	}
	h.Broadcast(event)
}

// PublishSubmissionUpdate notifies streams that a submission changed.
func (h *Hub) PublishSubmissionUpdate(ctx context.Context, submissionID, action string) {
	data, _ := json.Marshal(map[string]string{
		"submissionId": submissionID,
		"action":       action,
	})
	h.Publish(ctx, Event{
		EventType:    EventSubmissionUpdate,
		Data:         string(data),
		SubmissionID: submissionID,
	})
	h.logger.Debug("published submission_update", zap.String("submission_id", submissionID), zap.String("action", action))
}

// SendToUser 给特定用户发送事件（而非广播）
func (h *Hub) SendToUser(ctx context.Context, userID string, event Event) {
	event.UserID = userID
	h.Publish(ctx, event)
}
