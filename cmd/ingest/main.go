// Command ingest loads OpenAPI documents into the store and prints a
// colored summary of what was extracted, without starting a server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"openapi-mcp/internal/config"
	"openapi-mcp/internal/ingest"
	"openapi-mcp/internal/logging"
	"openapi-mcp/internal/store"
	"openapi-mcp/pkg/types"
)

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	cyan   = color.New(color.FgCyan)
)

func main() {
	dbPath := flag.String("db", "", "sqlite database path (overrides OPENAPI_MCP_STORE_PATH)")
	strict := flag.Bool("strict", false, "treat spec validation findings as fatal")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: ingest [flags] <openapi-file>...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(*dbPath, *strict, *verbose, flag.Args()); err != nil {
		red.Fprintf(os.Stderr, "ingest: %v\n", err)
		os.Exit(1)
	}
}

func run(dbPath string, strict, verbose bool, paths []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Store.Driver = "sqlite"
		cfg.Store.Path = dbPath
	}
	if strict {
		cfg.Ingest.StrictValidation = true
	}

	// keep stdout for the summary, logs stay on stderr
	level := logging.WARN
	if verbose {
		level = logging.DEBUG
	}
	logger := logging.NewTextLogger(level)

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

	svc := ingest.NewService(store.NewRetryableFromConfig(st, cfg.Store), cfg.Ingest, logger, nil)
	for _, path := range paths {
		start := time.Now()
		outcome, err := svc.IngestFile(ctx, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		printOutcome(path, outcome, time.Since(start))
	}
	return nil
}

func printOutcome(path string, outcome *ingest.Outcome, took time.Duration) {
	doc := outcome.Document

	bold.Printf("%s %s", doc.Title, doc.Version)
	fmt.Printf("  (OpenAPI %s)\n", doc.OpenAPIVersion)
	if outcome.Skipped {
		yellow.Println("  unchanged since last ingest, stored document reused")
	}

	fmt.Printf("  source:    %s\n", path)
	cyan.Printf("  endpoints: %d\n", outcome.Endpoints)
	cyan.Printf("  schemas:   %d\n", outcome.Schemas)
	if m := outcome.Metrics; m != nil {
		line := fmt.Sprintf("  parsed:    %s in %s", formatBytes(m.BytesRead), took.Round(time.Millisecond))
		if m.Converted {
			line += "  (converted from Swagger 2.0)"
		}
		fmt.Println(line)
	}

	printIssues("error", red, outcome.Errors)
	printIssues("warning", yellow, outcome.Warnings)
	if len(outcome.Errors) == 0 && len(outcome.Warnings) == 0 {
		green.Println("  clean, no spec findings")
	}
	fmt.Println()
}

func printIssues(kind string, c *color.Color, issues []types.IngestIssue) {
	if len(issues) == 0 {
		return
	}
	c.Printf("  %d %s(s):\n", len(issues), kind)
	for _, issue := range issues {
		location := issue.Pointer
		if location == "" && issue.Line > 0 {
			location = fmt.Sprintf("line %d", issue.Line)
		}
		if location != "" {
			c.Printf("    %s: %s\n", location, issue.Message)
		} else {
			c.Printf("    %s\n", issue.Message)
		}
	}
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
