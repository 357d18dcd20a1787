// Package api serves the HTTP transport: the JSON-RPC endpoint for
// remote MCP clients, health and metrics probes, the rendered API
// reference and the websocket event stream.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/fredcamaral/gomcp-sdk/protocol"

	"openapi-mcp/internal/config"
	"openapi-mcp/internal/docs"
	"openapi-mcp/internal/logging"
	"openapi-mcp/internal/mcp"
	"openapi-mcp/internal/websocket"
)

const (
	requestTimeout = 30 * time.Second
	maxRequestSize = 10 << 20 // 10MB
)

// Router is the HTTP surface over the request engine. ws may be nil when
// the event stream is disabled.
type Router struct {
	cfg      *config.Config
	engine   *mcp.Server
	ws       *websocket.Server
	renderer *docs.Renderer
	logger   logging.Logger
	mux      chi.Router
	started  time.Time
}

// NewRouter assembles the middleware stack and routes.
func NewRouter(cfg *config.Config, engine *mcp.Server, ws *websocket.Server, logger logging.Logger) *Router {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	r := &Router{
		cfg:      cfg,
		engine:   engine,
		ws:       ws,
		renderer: docs.New(cfg.Docs),
		logger:   logger.WithComponent("api"),
		mux:      chi.NewRouter(),
		started:  time.Now(),
	}
	r.setupMiddleware()
	r.setupRoutes()
	return r
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) setupMiddleware() {
	r.mux.Use(chimiddleware.Recoverer)
	r.mux.Use(r.timeoutMiddleware)
	r.mux.Use(r.requestLogger)
	r.mux.Use(corsMiddleware)
	r.mux.Use(chimiddleware.RequestSize(maxRequestSize))
	r.mux.Use(chimiddleware.Heartbeat("/ping"))
}

// timeoutMiddleware applies the request deadline everywhere except the
// websocket upgrade, which holds its connection open.
func (r *Router) timeoutMiddleware(next http.Handler) http.Handler {
	withTimeout := chimiddleware.Timeout(requestTimeout)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.HasPrefix(req.URL.Path, "/ws") {
			next.ServeHTTP(w, req)
			return
		}
		withTimeout.ServeHTTP(w, req)
	})
}

// requestLogger stamps a correlation id on the request context and logs
// the call on completion.
func (r *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requestID := req.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = logging.NewRequestID()
		}
		ctx := logging.WithRequestID(req.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)

		ww := chimiddleware.NewWrapResponseWriter(w, req.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, req.WithContext(ctx))

		r.logger.DebugContext(ctx, "http request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"took_ms", time.Since(start).Milliseconds(),
		)
	})
}

// corsMiddleware allows browser-based MCP clients from any origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *Router) setupRoutes() {
	r.mux.Get("/", r.handleRoot)
	r.mux.Post("/mcp", r.handleMCP)
	r.mux.Get("/health", r.handleHealth)
	r.mux.Get("/readiness", r.handleHealth)
	r.mux.Get("/liveness", r.handleLiveness)
	r.mux.Get("/metrics", r.handleMetrics)
	if r.cfg.Docs.Enabled {
		r.mux.Get("/docs", r.handleDocs)
	}
	if r.ws != nil {
		r.mux.Get("/ws", r.ws.ServeHTTP)
	}

	r.mux.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint not found: "+req.URL.Path)
	})
	r.mux.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: "+req.Method)
	})
}

// handleRoot describes the server for clients probing the base URL.
func (r *Router) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    mcp.ServerName,
		"version": mcp.ServerVersion,
		"endpoints": map[string]string{
			"mcp":     "/mcp",
			"health":  "/health",
			"metrics": "/metrics",
			"docs":    "/docs",
			"ws":      "/ws",
		},
	})
}

// handleMCP runs one JSON-RPC exchange over HTTP.
func (r *Router) handleMCP(w http.ResponseWriter, req *http.Request) {
	var rpcReq protocol.JSONRPCRequest
	if err := json.NewDecoder(req.Body).Decode(&rpcReq); err != nil {
		writeJSON(w, http.StatusBadRequest, &protocol.JSONRPCResponse{
			JSONRPC: "2.0",
			Error: &protocol.JSONRPCError{
				Code:    -32700,
				Message: "parse error: " + err.Error(),
			},
		})
		return
	}

	resp := r.engine.MCPServer().HandleRequest(req.Context(), &rpcReq)
	if resp == nil {
		// notification, nothing to send back
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHealth reports overall status plus per-component detail; a
// failing store turns the whole probe into a 503.
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	status := http.StatusOK
	overall := "healthy"

	storeStatus := "healthy"
	if err := r.engine.Ping(req.Context()); err != nil {
		storeStatus = "unhealthy: " + err.Error()
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	indexStatus := "no document active"
	if idx := r.engine.Index(); idx != nil {
		indexStatus = "serving " + idx.Document().Title
	}

	components := map[string]string{
		"store": storeStatus,
		"index": indexStatus,
	}
	if r.ws != nil {
		components["websocket"] = "enabled"
	}

	writeJSON(w, status, map[string]interface{}{
		"status":         overall,
		"uptime_seconds": int64(time.Since(r.started).Seconds()),
		"components":     components,
	})
}

func (r *Router) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (r *Router) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.engine.Metrics())
}

// handleDocs serves the rendered reference for the active document.
func (r *Router) handleDocs(w http.ResponseWriter, _ *http.Request) {
	idx := r.engine.Index()
	if idx == nil {
		writeError(w, http.StatusServiceUnavailable, "no document ingested yet")
		return
	}
	page, err := r.renderer.HTML(idx)
	if err != nil {
		r.logger.Error("render docs page", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to render documentation")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":  message,
		"status": status,
	})
}
