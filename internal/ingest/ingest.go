// Package ingest drives the document pipeline: parse, normalize, persist.
// Re-ingesting an unchanged document (same source path, same content hash)
// is a no-op that returns the stored document untouched.
package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"openapi-mcp/internal/config"
	"openapi-mcp/internal/logging"
	"openapi-mcp/internal/normalizer"
	"openapi-mcp/internal/parser"
	"openapi-mcp/internal/store"
	"openapi-mcp/internal/websocket"
	"openapi-mcp/pkg/types"
)

// Events receives pipeline progress. The websocket hub satisfies it.
type Events interface {
	Broadcast(event websocket.Event)
}

// Outcome reports one ingest run.
type Outcome struct {
	DocumentID int64              `json:"document_id"`
	Document   *types.APIDocument `json:"document"`
	// Skipped is true when the stored content hash already matched.
	Skipped   bool            `json:"skipped"`
	Endpoints int             `json:"endpoints"`
	Schemas   int             `json:"schemas"`
	Metrics   *parser.Metrics `json:"metrics,omitempty"`
	Errors    []types.IngestIssue
	Warnings  []types.IngestIssue
}

// Service orchestrates the pipeline against one store.
type Service struct {
	store      store.Store
	cfg        config.IngestConfig
	logger     logging.Logger
	events     Events
	normalizer *normalizer.Normalizer
}

// NewService creates an ingest service. events may be nil.
func NewService(st store.Store, cfg config.IngestConfig, logger logging.Logger, events Events) *Service {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Service{
		store:      st,
		cfg:        cfg,
		logger:     logger.WithComponent("ingest"),
		events:     events,
		normalizer: normalizer.New(logger),
	}
}

// IngestFile runs the pipeline on the document at path.
func (s *Service) IngestFile(ctx context.Context, path string) (*Outcome, error) {
	slug := Slug(path)
	s.emit("started", slug, nil)

	doc, metrics, errs, warns, err := s.newParser(slug).Parse(ctx, path)
	if err != nil {
		s.emit("failed", slug, map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	return s.finish(ctx, slug, doc, metrics, errs, warns)
}

// IngestBytes runs the pipeline on an in-memory document.
func (s *Service) IngestBytes(ctx context.Context, name string, data []byte) (*Outcome, error) {
	slug := Slug(name)
	s.emit("started", slug, nil)

	doc, metrics, errs, warns, err := s.newParser(slug).ParseBytes(ctx, name, data)
	if err != nil {
		s.emit("failed", slug, map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	return s.finish(ctx, slug, doc, metrics, errs, warns)
}

func (s *Service) newParser(slug string) *parser.Parser {
	return parser.New(parser.Options{
		ProgressInterval: s.cfg.ProgressIntervalBytes,
		MaxDocumentBytes: s.cfg.MaxDocumentBytes,
		Strict:           s.cfg.StrictValidation,
		Logger:           s.logger,
		Progress: func(ev parser.ProgressEvent) {
			s.emit("progress", slug, map[string]interface{}{
				"bytes_read":  ev.BytesRead,
				"bytes_total": ev.TotalBytes,
				"percent":     ev.Percent,
			})
		},
	})
}

func (s *Service) finish(ctx context.Context, slug string, doc *parser.Document, metrics *parser.Metrics, errs, warns []types.IngestIssue) (*Outcome, error) {
	if existing, err := s.store.GetDocumentBySourcePath(ctx, doc.SourcePath); err == nil &&
		existing != nil && existing.ContentHash == doc.ContentHash {
		s.logger.Info("document unchanged, skipping",
			"source", doc.SourcePath, "hash", doc.ContentHash)
		s.emit("skipped", slug, map[string]interface{}{"document_id": existing.ID})
		return &Outcome{
			DocumentID: existing.ID,
			Document:   existing,
			Skipped:    true,
			Metrics:    metrics,
		}, nil
	}

	result := s.normalizer.Normalize(doc)
	result.Document.IngestErrors = append(errs, result.Errors...)
	result.Document.IngestWarnings = append(warns, result.Warnings...)

	started := time.Now()
	id, err := s.store.SaveDocument(ctx, batchFrom(result))
	if err != nil {
		s.emit("failed", slug, map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	result.Document.ID = id

	s.logger.Info("document ingested",
		"document_id", id,
		"source", doc.SourcePath,
		"endpoints", len(result.Endpoints),
		"schemas", len(result.Schemas),
		"errors", len(result.Document.IngestErrors),
		"warnings", len(result.Document.IngestWarnings),
		"save_ms", time.Since(started).Milliseconds(),
	)
	s.emit("completed", slug, map[string]interface{}{
		"document_id": id,
		"endpoints":   len(result.Endpoints),
		"schemas":     len(result.Schemas),
	})

	return &Outcome{
		DocumentID: id,
		Document:   result.Document,
		Endpoints:  len(result.Endpoints),
		Schemas:    len(result.Schemas),
		Metrics:    metrics,
		Errors:     result.Document.IngestErrors,
		Warnings:   result.Document.IngestWarnings,
	}, nil
}

func batchFrom(result *normalizer.Result) *store.Batch {
	batch := &store.Batch{
		Document:        result.Document,
		Endpoints:       result.Endpoints,
		Schemas:         result.Schemas,
		SecuritySchemes: result.SecuritySchemes,
		Edges:           result.Edges,
	}
	for _, xref := range result.CrossReferences {
		batch.CrossReferences = append(batch.CrossReferences, store.XRef{
			EndpointIndex: xref.EndpointIndex,
			SchemaName:    xref.SchemaName,
			Context:       xref.Context,
			ContentType:   xref.ContentType,
			Required:      xref.Required,
			Score:         xref.Score,
		})
	}
	return batch
}

func (s *Service) emit(action, slug string, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	s.events.Broadcast(websocket.NewEvent(websocket.EventIngest, action, slug, data))
}

// Slug derives the document slug used in events and URLs from a source
// path: base name, lowered, extension dropped.
func Slug(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ToLower(base)
}
