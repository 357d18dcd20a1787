// Package store persists the canonical records of ingested documents
// behind one SQL implementation with two drivers: SQLite (default) and
// PostgreSQL. Complex record bodies are stored as JSON next to the scalar
// columns the lookups need, so the search index can always be rebuilt from
// the store alone.
package store

import (
	"context"
	"errors"

	"openapi-mcp/pkg/types"
)

// Version is the on-disk layout version. Opening a store written by a
// newer build fails rather than risking silent corruption.
const Version = 1

// ErrNotFound marks a lookup that matched no row.
var ErrNotFound = errors.New("record not found")

// ErrVersionMismatch marks a store written by a newer layout version.
var ErrVersionMismatch = errors.New("store layout version is newer than this build supports")

// XRef is one schema-endpoint usage row staged for commit. EndpointIndex
// ties the row to its endpoint by position in the batch; the store swaps in
// the real endpoint id inside the save transaction.
type XRef struct {
	EndpointIndex int
	SchemaName    string
	Context       types.UsageContext
	ContentType   string
	Required      bool
	Score         float64
}

// Batch is everything one document ingests into, saved atomically.
type Batch struct {
	Document        *types.APIDocument
	Endpoints       []*types.Endpoint
	Schemas         []*types.Schema
	SecuritySchemes []*types.SecurityScheme
	Edges           []types.ReferenceEdge
	CrossReferences []XRef
}

// Store is the persistence interface the rest of the server consumes.
type Store interface {
	// SaveDocument commits the batch in one transaction and returns the
	// document id. A previous document with the same source path is
	// replaced; when its content hash already matches, the save is a
	// no-op returning the existing id.
	SaveDocument(ctx context.Context, batch *Batch) (int64, error)

	GetDocument(ctx context.Context, id int64) (*types.APIDocument, error)
	GetDocumentBySourcePath(ctx context.Context, sourcePath string) (*types.APIDocument, error)
	ListDocuments(ctx context.Context) ([]*types.APIDocument, error)

	GetEndpoint(ctx context.Context, id int64) (*types.Endpoint, error)
	GetEndpointByPathMethod(ctx context.Context, documentID int64, path, method string) (*types.Endpoint, error)
	ListEndpoints(ctx context.Context, documentID int64, offset, limit int) ([]*types.Endpoint, error)

	GetSchema(ctx context.Context, documentID int64, name string) (*types.Schema, error)
	ListSchemas(ctx context.Context, documentID int64) ([]*types.Schema, error)

	GetSecurityScheme(ctx context.Context, documentID int64, name string) (*types.SecurityScheme, error)
	ListSecuritySchemes(ctx context.Context, documentID int64) ([]*types.SecurityScheme, error)

	ListReferenceEdges(ctx context.Context, documentID int64) ([]types.ReferenceEdge, error)
	ListCrossReferences(ctx context.Context, documentID int64) ([]types.CrossReference, error)

	DeleteDocument(ctx context.Context, id int64) error

	Ping(ctx context.Context) error
	Stats(ctx context.Context) (*types.StoreStats, error)
	Close() error
}
