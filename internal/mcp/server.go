// Package mcp is the request engine between the MCP transport and the
// core: tool dispatch, parameter validation, the resilience envelope and
// response shaping for the searchEndpoints, getSchema and getExample
// tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mcpsdk "github.com/fredcamaral/gomcp-sdk"
	"github.com/fredcamaral/gomcp-sdk/server"

	"openapi-mcp/internal/circuitbreaker"
	"openapi-mcp/internal/config"
	"openapi-mcp/internal/index"
	"openapi-mcp/internal/ingest"
	"openapi-mcp/internal/logging"
	"openapi-mcp/internal/monitoring"
	"openapi-mcp/internal/performance"
	"openapi-mcp/internal/results"
	"openapi-mcp/internal/retry"
	"openapi-mcp/internal/store"
	"openapi-mcp/internal/websocket"
)

// ServerName and ServerVersion identify the server during the MCP
// handshake.
const (
	ServerName    = "openapi-mcp"
	ServerVersion = "1.0.0"
)

// Server owns the tool surface and the shared state behind it.
type Server struct {
	cfg    *config.Config
	logger logging.Logger

	store     store.Store
	holder    *index.Holder
	cache     performance.Cache
	processor *results.Processor
	ingestSvc *ingest.Service
	monitor   *monitoring.Monitor
	hub       *websocket.Hub

	breaker  *circuitbreaker.CircuitBreaker
	retriers map[string]*retry.Retrier
	slots    chan struct{}

	mcpServer *server.Server
}

// NewServer wires the request engine. hub may be nil.
func NewServer(cfg *config.Config, st store.Store, logger logging.Logger, hub *websocket.Hub) (*Server, error) {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	logger = logger.WithComponent("mcp")

	cache, err := performance.New(cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}

	res := cfg.Resilience
	maxConcurrent := res.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 20
	}

	// a typed nil hub must not become a non-nil event sink
	var events ingest.Events
	if hub != nil {
		events = hub
	}

	monitor := monitoring.New(cfg.Monitoring, logger)
	monitor.SetThreshold(ToolSearchEndpoints, monitor.FastMS())
	monitor.SetThreshold(ToolGetSchema, monitor.AcceptableMS())
	monitor.SetThreshold(ToolGetExample, monitor.SlowMS())
	if hub != nil {
		monitor.AddAlertHandler(func(alert monitoring.Alert) {
			event := websocket.NewEvent(websocket.EventSystem, "threshold_alert", "", map[string]interface{}{
				"tool":         alert.Tool,
				"took_ms":      alert.TookMS,
				"threshold_ms": alert.ThresholdMS,
			})
			event.Tool = alert.Tool
			event.RequestID = alert.RequestID
			hub.Broadcast(event)
		})
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		holder:    index.NewHolder(nil),
		cache:     cache,
		processor: results.NewProcessor(cache, cfg.Search, logger),
		ingestSvc: ingest.NewService(st, cfg.Ingest, logger, events),
		monitor:   monitor,
		hub:       hub,
		breaker:   circuitbreaker.New(newBreakerConfig(res, logger)),
		retriers:  map[string]*retry.Retrier{
			ToolSearchEndpoints: newRetrier(res, res.SearchRetries),
			ToolGetSchema:       newRetrier(res, res.SchemaRetries),
			ToolGetExample:      newRetrier(res, res.ExampleRetries),
		},
		slots: make(chan struct{}, maxConcurrent),
	}

	s.mcpServer = mcpsdk.NewServer(ServerName, ServerVersion)
	s.registerTools()
	s.registerResources()
	return s, nil
}

// newBreakerConfig maps the resilience settings onto the breaker,
// keeping the package defaults for unset values.
func newBreakerConfig(res config.ResilienceConfig, logger logging.Logger) *circuitbreaker.Config {
	cfg := circuitbreaker.DefaultConfig()
	if res.BreakerFailureThreshold > 0 {
		cfg.FailureThreshold = res.BreakerFailureThreshold
	}
	if res.BreakerWindowSeconds > 0 {
		cfg.FailureWindow = time.Duration(res.BreakerWindowSeconds) * time.Second
	}
	if res.BreakerHalfOpenProbes > 0 {
		cfg.ProbeSuccesses = res.BreakerHalfOpenProbes
		cfg.MaxProbes = res.BreakerHalfOpenProbes
	}
	cfg.OnStateChange = func(from, to circuitbreaker.State) {
		logger.Warn("circuit breaker state change",
			"from", from.String(), "to", to.String())
	}
	return cfg
}

// newRetrier builds the per-tool retry policy: retries counts the
// attempts after the first one.
func newRetrier(res config.ResilienceConfig, retries int) *retry.Retrier {
	maxDelay := time.Duration(res.BackoffMaxSeconds) * time.Second
	if maxDelay <= 0 {
		maxDelay = 60 * time.Second
	}
	multiplier := res.BackoffFactor
	if multiplier < 1 {
		multiplier = 2
	}
	return retry.New(&retry.Config{
		MaxAttempts:     retries + 1,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        maxDelay,
		Multiplier:      multiplier,
		RandomizeFactor: 0.1,
	})
}

// Start verifies the store and activates the most recently ingested
// document, if any.
func (s *Server) Start(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	if len(docs) == 0 {
		s.logger.Info("no documents ingested yet, tool calls will report resource-not-found")
		return nil
	}
	return s.ActivateDocument(ctx, docs[0].ID)
}

// ActivateDocument builds the search index for the document and swaps it
// in atomically.
func (s *Server) ActivateDocument(ctx context.Context, documentID int64) error {
	idx, err := index.Build(ctx, s.store, documentID, s.logger)
	if err != nil {
		return fmt.Errorf("build index for document %d: %w", documentID, err)
	}
	s.holder.Swap(idx)
	s.logger.Info("document activated",
		"document_id", documentID,
		"title", idx.Document().Title,
		"endpoints", len(idx.EndpointIDs()),
		"schemas", len(idx.SchemaNames()),
	)
	return nil
}

// Ingest runs the ingest pipeline on path and activates the result.
func (s *Server) Ingest(ctx context.Context, path string) (*ingest.Outcome, error) {
	outcome, err := s.ingestSvc.IngestFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := s.ActivateDocument(ctx, outcome.DocumentID); err != nil {
		return nil, err
	}
	return outcome, nil
}

// Index returns the active search index, nil before the first activation.
func (s *Server) Index() *index.Index {
	return s.holder.Get()
}

// MCPServer exposes the underlying protocol server for transports.
func (s *Server) MCPServer() *server.Server {
	return s.mcpServer
}

// Monitor exposes the tool metrics collector.
func (s *Server) Monitor() *monitoring.Monitor {
	return s.monitor
}

// Ping reports whether the backing store is reachable.
func (s *Server) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Metrics is the runtime counter payload served over HTTP.
type Metrics struct {
	Tools        monitoring.Snapshot  `json:"tools"`
	BreakerState string               `json:"breaker_state"`
	Breaker      circuitbreaker.Stats `json:"breaker"`
	Cache        performance.Stats    `json:"cache"`
}

// Metrics aggregates tool, breaker and cache statistics.
func (s *Server) Metrics() Metrics {
	return Metrics{
		Tools:        s.monitor.Snapshot(),
		BreakerState: s.breaker.GetState().String(),
		Breaker:      s.breaker.GetStats(),
		Cache:        s.cache.Stats(),
	}
}

// Close releases the cache backend.
func (s *Server) Close() error {
	return s.cache.Close()
}

// marshalJSON renders v for a resource or tool payload; the engine
// controls every input, so failures are programming errors.
func marshalJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
