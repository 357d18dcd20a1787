package websocket

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"openapi-mcp/internal/logging"
)

// Server upgrades HTTP requests onto the event stream.
type Server struct {
	hub      *Hub
	logger   logging.Logger
	upgrader websocket.Upgrader
}

// NewServer wraps a hub with an HTTP upgrade handler.
func NewServer(hub *Hub, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Server{
		hub:    hub,
		logger: logger.WithComponent("websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The stream is read-only telemetry; origin policy is left to
			// the reverse proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and runs the client pumps. The optional
// ?document= query narrows the stream to one document slug.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	client := NewClient(uuid.NewString(), conn, s.hub, r.URL.Query().Get("document"))
	s.hub.Register(client)

	// the connection outlives the handler once hijacked
	go client.WritePump(context.Background())
	go client.ReadPump(context.Background())
}
