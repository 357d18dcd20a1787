// Command server runs the OpenAPI MCP server, speaking the protocol
// over stdio for local agents or over HTTP for remote ones.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fredcamaral/gomcp-sdk/transport"

	"openapi-mcp/internal/api"
	"openapi-mcp/internal/config"
	"openapi-mcp/internal/logging"
	"openapi-mcp/internal/mcp"
	"openapi-mcp/internal/store"
	"openapi-mcp/internal/websocket"
)

const shutdownTimeout = 30 * time.Second

func main() {
	mode := flag.String("mode", "", "transport mode: stdio or http (overrides OPENAPI_MCP_MODE)")
	addr := flag.String("addr", "", "HTTP listen address as host:port (overrides config)")
	ingestPath := flag.String("ingest", "", "ingest this OpenAPI document before serving")
	flag.Parse()

	if err := run(*mode, *addr, *ingestPath); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(mode, addr, ingestPath string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if mode != "" {
		cfg.Server.Mode = mode
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger := newLogger(cfg.Logging)
	logging.SetDefaultLogger(logger)

	if cfg.Store.Driver == "sqlite" {
		if _, err := cfg.EnsureStoreDir(); err != nil {
			return err
		}
	}
	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// the event hub only exists in http mode, stdio has no subscribers
	var hub *websocket.Hub
	if cfg.Server.Mode == "http" && cfg.Server.EnableWebSocket {
		hub = websocket.NewHub(logger)
		go hub.Run(ctx)
	}

	engine, err := mcp.NewServer(cfg, store.NewRetryableFromConfig(st, cfg.Store), logger, hub)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	if ingestPath != "" {
		outcome, err := engine.Ingest(ctx, ingestPath)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", ingestPath, err)
		}
		logger.Info("document ingested",
			"path", ingestPath,
			"document_id", outcome.DocumentID,
			"endpoints", outcome.Endpoints,
			"schemas", outcome.Schemas,
		)
	}

	if err := engine.Start(ctx); err != nil {
		return err
	}

	if cfg.Server.Mode == "stdio" {
		return runStdio(ctx, engine, logger)
	}
	return runHTTP(ctx, cfg, engine, hub, addr, logger)
}

func newLogger(cfg config.LoggingConfig) logging.Logger {
	level := logging.ParseLogLevel(cfg.Level)
	if cfg.Format == "text" {
		return logging.NewTextLogger(level)
	}
	return logging.NewLogger(level)
}

// runStdio speaks the protocol on stdin/stdout until the client closes
// the pipe or a signal arrives. Logs go to stderr, stdout stays clean.
func runStdio(ctx context.Context, engine *mcp.Server, logger logging.Logger) error {
	logger.Info("serving MCP over stdio",
		"server", mcp.ServerName, "version", mcp.ServerVersion)

	engine.MCPServer().SetTransport(transport.NewStdioTransport())
	if err := engine.MCPServer().Start(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stdio transport: %w", err)
	}
	return nil
}

func runHTTP(ctx context.Context, cfg *config.Config, engine *mcp.Server, hub *websocket.Hub, addr string, logger logging.Logger) error {
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	var ws *websocket.Server
	if hub != nil {
		ws = websocket.NewServer(hub, logger)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(cfg, engine, ws, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over http", "addr", addr, "websocket", ws != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", shutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
