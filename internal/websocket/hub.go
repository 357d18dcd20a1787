// Package websocket streams server events (ingest progress, tool
// activity) to connected clients. One hub fans events out; clients can
// narrow the stream to a single document slug.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"openapi-mcp/internal/logging"
)

// Event types carried on the stream.
const (
	EventConnection = "connection"
	EventSystem     = "system"
	EventIngest     = "ingest"
	EventTool       = "tool"
	EventHeartbeat  = "heartbeat"
	EventPong       = "pong"
)

// Event is one message on the stream.
type Event struct {
	Type      string      `json:"type"`
	Action    string      `json:"action,omitempty"`
	Document  string      `json:"document,omitempty"`
	Tool      string      `json:"tool,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType, action, document string, data interface{}) Event {
	return Event{
		Type:      eventType,
		Action:    action,
		Document:  document,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Client is one connected stream consumer.
type Client struct {
	ID   string
	Send chan Event

	conn *websocket.Conn
	hub  *Hub
	// document narrows the stream to one document slug; empty receives all.
	document string

	mu     sync.Mutex
	closed bool
}

// NewClient wraps an upgraded connection.
func NewClient(id string, conn *websocket.Conn, hub *Hub, document string) *Client {
	return &Client{
		ID:       id,
		Send:     make(chan Event, 256),
		conn:     conn,
		hub:      hub,
		document: document,
	}
}

func (c *Client) safeClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.Send)
		c.closed = true
	}
}

func (c *Client) closeConn() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Hub owns the client set and the broadcast loop.
type Hub struct {
	logger logging.Logger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan Event
	mu         sync.RWMutex
}

// NewHub creates a hub; Run must be started for it to deliver anything.
func NewHub(logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Hub{
		logger:     logger.WithComponent("websocket"),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Event, 256),
	}
}

// Run drives registration and fan-out until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for client := range h.clients {
			client.safeClose()
			client.closeConn()
		}
		h.clients = make(map[*Client]bool)
		h.mu.Unlock()
	}()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.ID, "total", total)

			welcome := NewEvent(EventConnection, "connected", "", map[string]interface{}{
				"client_id": client.ID,
			})
			select {
			case client.Send <- welcome:
			default:
				h.removeClient(client)
			}

		case client := <-h.unregister:
			h.removeClient(client)

		case event := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if !client.wants(&event) {
					continue
				}
				select {
				case client.Send <- event:
				default:
					// slow consumer, drop it
					go h.removeClient(client)
				}
			}
			h.mu.RUnlock()

		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.safeClose()
		client.closeConn()
		h.logger.Debug("client disconnected", "client_id", client.ID, "total", len(h.clients))
	}
}

// wants applies the client's document filter. Connection and system
// events always pass.
func (c *Client) wants(event *Event) bool {
	if event.Type == EventConnection || event.Type == EventSystem {
		return true
	}
	c.mu.Lock()
	document := c.document
	c.mu.Unlock()
	return document == "" || event.Document == "" || document == event.Document
}

// Register queues a client for registration.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister queues a client for removal.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast queues an event; a full queue drops the event rather than
// blocking the caller.
func (h *Hub) Broadcast(event Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast queue full, dropping event", "type", event.Type)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// WritePump forwards hub events onto the connection and keeps it alive
// with heartbeats.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(Event{Type: EventHeartbeat, Timestamp: time.Now()}); err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// ReadPump consumes client messages (subscriptions, pings) until the
// connection drops.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.closeConn()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg map[string]interface{}
			if err := c.conn.ReadJSON(&msg); err != nil {
				return
			}
			c.handleMessage(msg)
		}
	}
}

func (c *Client) handleMessage(msg map[string]interface{}) {
	msgType, _ := msg["type"].(string)
	switch msgType {
	case "subscribe":
		if document, ok := msg["document"].(string); ok {
			c.mu.Lock()
			c.document = document
			c.mu.Unlock()
		}

	case "unsubscribe":
		c.mu.Lock()
		c.document = ""
		c.mu.Unlock()

	case "ping":
		select {
		case c.Send <- Event{Type: EventPong, Timestamp: time.Now()}:
		default:
		}
	}
}
