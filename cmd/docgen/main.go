// Command docgen writes the API reference for an ingested document to a
// Markdown or HTML file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"openapi-mcp/internal/config"
	"openapi-mcp/internal/docs"
	"openapi-mcp/internal/index"
	"openapi-mcp/internal/logging"
	"openapi-mcp/internal/store"
)

func main() {
	dbPath := flag.String("db", "", "sqlite database path (overrides OPENAPI_MCP_STORE_PATH)")
	documentID := flag.Int64("document", 0, "document id to render (default: most recent)")
	format := flag.String("format", "markdown", "output format: markdown or html")
	output := flag.String("o", "", "output file (default: api-reference.md or .html)")
	title := flag.String("title", "", "override the reference title")
	flag.Parse()

	if err := run(*dbPath, *documentID, *format, *output, *title); err != nil {
		fmt.Fprintf(os.Stderr, "docgen: %v\n", err)
		os.Exit(1)
	}
}

func run(dbPath string, documentID int64, format, output, title string) error {
	if format != "markdown" && format != "html" {
		return fmt.Errorf("unknown format %q, want markdown or html", format)
	}
	if output == "" {
		output = "api-reference.md"
		if format == "html" {
			output = "api-reference.html"
		}
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Store.Driver = "sqlite"
		cfg.Store.Path = dbPath
	}
	if title != "" {
		cfg.Docs.Title = title
	}

	logger := logging.NewTextLogger(logging.ParseLogLevel(cfg.Logging.Level))
	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()
	backend := store.NewRetryableFromConfig(st, cfg.Store)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if documentID == 0 {
		documents, err := backend.ListDocuments(ctx)
		if err != nil {
			return fmt.Errorf("list documents: %w", err)
		}
		if len(documents) == 0 {
			return fmt.Errorf("store holds no documents, ingest one first")
		}
		documentID = documents[0].ID
	}

	idx, err := index.Build(ctx, backend, documentID, logger)
	if err != nil {
		return fmt.Errorf("load document %d: %w", documentID, err)
	}

	renderer := docs.New(cfg.Docs)
	var data []byte
	if format == "html" {
		data, err = renderer.HTML(idx)
		if err != nil {
			return err
		}
	} else {
		data = []byte(renderer.Markdown(idx))
	}

	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	fmt.Printf("wrote %s reference for %q to %s (%d bytes)\n",
		format, idx.Document().Title, output, len(data))
	return nil
}
