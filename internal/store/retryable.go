package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"openapi-mcp/internal/config"
	"openapi-mcp/internal/retry"
	"openapi-mcp/pkg/types"
)

// RetryableStore wraps a Store with retries for transient driver errors.
type RetryableStore struct {
	store   Store
	retrier *retry.Retrier
}

// NewRetryable wraps store with the given retry configuration.
func NewRetryable(store Store, config *retry.Config) Store {
	if config == nil {
		config = defaultRetryConfig()
	}
	return &RetryableStore{
		store:   store,
		retrier: retry.New(config),
	}
}

// NewRetryableFromConfig derives the retry policy from the store
// settings. Zero attempts returns the store unwrapped.
func NewRetryableFromConfig(st Store, cfg config.StoreConfig) Store {
	if cfg.RetryAttempts <= 0 {
		return st
	}
	rc := defaultRetryConfig()
	rc.MaxAttempts = cfg.RetryAttempts
	if cfg.RetryBaseDelayMS > 0 {
		rc.InitialDelay = time.Duration(cfg.RetryBaseDelayMS) * time.Millisecond
	}
	return NewRetryable(st, rc)
}

func defaultRetryConfig() *retry.Config {
	return &retry.Config{
		MaxAttempts:     3,
		InitialDelay:    200 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.1,
		RetryIf:         isRetryableStoreError,
	}
}

// isRetryableStoreError reports whether a driver error is worth retrying.
// Not-found and version-gate failures never retry.
func isRetryableStoreError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrVersionMismatch) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"timeout",
		"timed out",
		"database is locked",
		"database table is locked",
		"busy",
		"too many connections",
		"temporary failure",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return retry.DefaultRetryIf(err) && isDriverError(err)
}

// isDriverError filters the fallback path so application-level errors do
// not retry just because they wrap a transient-looking message.
func isDriverError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "sql") ||
		strings.Contains(errStr, "pq:") ||
		strings.Contains(errStr, "sqlite")
}

func (r *RetryableStore) do(ctx context.Context, what string, op func(ctx context.Context) error) error {
	result := r.retrier.Do(ctx, op)
	if result.Err != nil && result.Attempts > 1 {
		return fmt.Errorf("%s failed after %d attempts: %w", what, result.Attempts, result.Err)
	}
	return result.Err
}

func (r *RetryableStore) SaveDocument(ctx context.Context, batch *Batch) (int64, error) {
	var id int64
	err := r.do(ctx, "save document", func(ctx context.Context) error {
		var err error
		id, err = r.store.SaveDocument(ctx, batch)
		return err
	})
	return id, err
}

func (r *RetryableStore) GetDocument(ctx context.Context, id int64) (*types.APIDocument, error) {
	var doc *types.APIDocument
	err := r.do(ctx, "get document", func(ctx context.Context) error {
		var err error
		doc, err = r.store.GetDocument(ctx, id)
		return err
	})
	return doc, err
}

func (r *RetryableStore) GetDocumentBySourcePath(ctx context.Context, sourcePath string) (*types.APIDocument, error) {
	var doc *types.APIDocument
	err := r.do(ctx, "get document by source path", func(ctx context.Context) error {
		var err error
		doc, err = r.store.GetDocumentBySourcePath(ctx, sourcePath)
		return err
	})
	return doc, err
}

func (r *RetryableStore) ListDocuments(ctx context.Context) ([]*types.APIDocument, error) {
	var docs []*types.APIDocument
	err := r.do(ctx, "list documents", func(ctx context.Context) error {
		var err error
		docs, err = r.store.ListDocuments(ctx)
		return err
	})
	return docs, err
}

func (r *RetryableStore) GetEndpoint(ctx context.Context, id int64) (*types.Endpoint, error) {
	var ep *types.Endpoint
	err := r.do(ctx, "get endpoint", func(ctx context.Context) error {
		var err error
		ep, err = r.store.GetEndpoint(ctx, id)
		return err
	})
	return ep, err
}

func (r *RetryableStore) GetEndpointByPathMethod(ctx context.Context, documentID int64, path, method string) (*types.Endpoint, error) {
	var ep *types.Endpoint
	err := r.do(ctx, "get endpoint by path", func(ctx context.Context) error {
		var err error
		ep, err = r.store.GetEndpointByPathMethod(ctx, documentID, path, method)
		return err
	})
	return ep, err
}

func (r *RetryableStore) ListEndpoints(ctx context.Context, documentID int64, offset, limit int) ([]*types.Endpoint, error) {
	var eps []*types.Endpoint
	err := r.do(ctx, "list endpoints", func(ctx context.Context) error {
		var err error
		eps, err = r.store.ListEndpoints(ctx, documentID, offset, limit)
		return err
	})
	return eps, err
}

func (r *RetryableStore) GetSchema(ctx context.Context, documentID int64, name string) (*types.Schema, error) {
	var sc *types.Schema
	err := r.do(ctx, "get schema", func(ctx context.Context) error {
		var err error
		sc, err = r.store.GetSchema(ctx, documentID, name)
		return err
	})
	return sc, err
}

func (r *RetryableStore) ListSchemas(ctx context.Context, documentID int64) ([]*types.Schema, error) {
	var scs []*types.Schema
	err := r.do(ctx, "list schemas", func(ctx context.Context) error {
		var err error
		scs, err = r.store.ListSchemas(ctx, documentID)
		return err
	})
	return scs, err
}

func (r *RetryableStore) GetSecurityScheme(ctx context.Context, documentID int64, name string) (*types.SecurityScheme, error) {
	var scheme *types.SecurityScheme
	err := r.do(ctx, "get security scheme", func(ctx context.Context) error {
		var err error
		scheme, err = r.store.GetSecurityScheme(ctx, documentID, name)
		return err
	})
	return scheme, err
}

func (r *RetryableStore) ListSecuritySchemes(ctx context.Context, documentID int64) ([]*types.SecurityScheme, error) {
	var schemes []*types.SecurityScheme
	err := r.do(ctx, "list security schemes", func(ctx context.Context) error {
		var err error
		schemes, err = r.store.ListSecuritySchemes(ctx, documentID)
		return err
	})
	return schemes, err
}

func (r *RetryableStore) ListReferenceEdges(ctx context.Context, documentID int64) ([]types.ReferenceEdge, error) {
	var edges []types.ReferenceEdge
	err := r.do(ctx, "list reference edges", func(ctx context.Context) error {
		var err error
		edges, err = r.store.ListReferenceEdges(ctx, documentID)
		return err
	})
	return edges, err
}

func (r *RetryableStore) ListCrossReferences(ctx context.Context, documentID int64) ([]types.CrossReference, error) {
	var xrefs []types.CrossReference
	err := r.do(ctx, "list cross references", func(ctx context.Context) error {
		var err error
		xrefs, err = r.store.ListCrossReferences(ctx, documentID)
		return err
	})
	return xrefs, err
}

func (r *RetryableStore) DeleteDocument(ctx context.Context, id int64) error {
	return r.do(ctx, "delete document", func(ctx context.Context) error {
		return r.store.DeleteDocument(ctx, id)
	})
}

func (r *RetryableStore) Ping(ctx context.Context) error {
	return r.do(ctx, "ping", func(ctx context.Context) error {
		return r.store.Ping(ctx)
	})
}

func (r *RetryableStore) Stats(ctx context.Context) (*types.StoreStats, error) {
	var stats *types.StoreStats
	err := r.do(ctx, "stats", func(ctx context.Context) error {
		var err error
		stats, err = r.store.Stats(ctx)
		return err
	})
	return stats, err
}

func (r *RetryableStore) Close() error {
	return r.store.Close()
}
