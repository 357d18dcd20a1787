package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openapi-mcp/internal/config"
	"openapi-mcp/pkg/types"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(config.StoreConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testBatch(sourcePath, hash string) *Batch {
	return &Batch{
		Document: &types.APIDocument{
			Title:          "Pet Store",
			Version:        "1.0.0",
			OpenAPIVersion: "3.0.0",
			SourcePath:     sourcePath,
			ContentHash:    hash,
			BaseURL:        "https://api.example.com",
		},
		Endpoints: []*types.Endpoint{
			{
				Path:        "/pets",
				Method:      "GET",
				OperationID: "listPets",
				Summary:     "List pets",
				Tags:        []string{"pets"},
				ResponseOrder: []string{"200"},
				Responses: map[string]*types.Response{
					"200": {Description: "ok"},
				},
				SchemaDependencies: []string{"Pet"},
				SearchableText:     "pets pets pets list pets",
			},
			{
				Path:       "/pets/{petId}",
				Method:     "GET",
				Summary:    "Get a pet",
				Deprecated: true,
				Parameters: []types.Parameter{
					{Name: "petId", In: types.LocationPath, Required: true},
				},
			},
		},
		Schemas: []*types.Schema{
			{
				Name:          "Pet",
				Type:          "object",
				PropertyOrder: []string{"id", "name"},
				Properties: map[string]*types.Schema{
					"id":   {Type: "integer"},
					"name": {Type: "string"},
				},
				Required: []string{"id"},
			},
			{Name: "Error", Type: "object"},
		},
		SecuritySchemes: []*types.SecurityScheme{
			{Name: "apiKey", Kind: types.SecurityAPIKey, In: types.LocationHeader, ParamName: "X-API-Key"},
		},
		Edges: []types.ReferenceEdge{
			{Source: "GET /pets", Target: "Pet", Slot: types.SlotResponse, Resolved: true},
		},
		CrossReferences: []XRef{
			{EndpointIndex: 0, SchemaName: "Pet", Context: types.UsageResponseBody, ContentType: "application/json", Score: 0.8},
		},
	}
}

func TestSaveAndGetDocument(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.SaveDocument(ctx, testBatch("petstore.json", "hash-1"))
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	doc, err := s.GetDocument(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Pet Store", doc.Title)
	assert.Equal(t, "hash-1", doc.ContentHash)
	assert.Equal(t, id, doc.ID)
	assert.False(t, doc.CreatedAt.IsZero())

	byPath, err := s.GetDocumentBySourcePath(ctx, "petstore.json")
	require.NoError(t, err)
	assert.Equal(t, id, byPath.ID)

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestSaveIsIdempotentOnContentHash(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.SaveDocument(ctx, testBatch("petstore.json", "hash-1"))
	require.NoError(t, err)

	second, err := s.SaveDocument(ctx, testBatch("petstore.json", "hash-1"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 2, stats.Endpoints)
}

func TestSaveReplacesChangedDocument(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.SaveDocument(ctx, testBatch("petstore.json", "hash-1"))
	require.NoError(t, err)

	second, err := s.SaveDocument(ctx, testBatch("petstore.json", "hash-2"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = s.GetDocument(ctx, first)
	assert.ErrorIs(t, err, ErrNotFound)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 2, stats.Endpoints)
	assert.Equal(t, 2, stats.Schemas)
	assert.Equal(t, 1, stats.CrossReferences)
}

func TestEndpointLookups(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	docID, err := s.SaveDocument(ctx, testBatch("petstore.json", "hash-1"))
	require.NoError(t, err)

	ep, err := s.GetEndpointByPathMethod(ctx, docID, "/pets", "GET")
	require.NoError(t, err)
	assert.Equal(t, "listPets", ep.OperationID)
	assert.Equal(t, docID, ep.DocumentID)
	assert.Equal(t, []string{"Pet"}, ep.SchemaDependencies)

	byID, err := s.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, ep.Path, byID.Path)

	_, err = s.GetEndpointByPathMethod(ctx, docID, "/missing", "GET")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := s.ListEndpoints(ctx, docID, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "/pets", all[0].Path)

	page, err := s.ListEndpoints(ctx, docID, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "/pets/{petId}", page[0].Path)
	assert.True(t, page[0].Deprecated)
}

func TestSchemaAndSchemeLookups(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	docID, err := s.SaveDocument(ctx, testBatch("petstore.json", "hash-1"))
	require.NoError(t, err)

	pet, err := s.GetSchema(ctx, docID, "Pet")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, pet.PropertyOrder)
	assert.Equal(t, docID, pet.DocumentID)

	_, err = s.GetSchema(ctx, docID, "Missing")
	assert.ErrorIs(t, err, ErrNotFound)

	schemas, err := s.ListSchemas(ctx, docID)
	require.NoError(t, err)
	require.Len(t, schemas, 2)
	assert.Equal(t, "Pet", schemas[0].Name)

	scheme, err := s.GetSecurityScheme(ctx, docID, "apiKey")
	require.NoError(t, err)
	assert.Equal(t, types.SecurityAPIKey, scheme.Kind)
	assert.Equal(t, "X-API-Key", scheme.ParamName)

	schemes, err := s.ListSecuritySchemes(ctx, docID)
	require.NoError(t, err)
	require.Len(t, schemes, 1)
}

func TestEdgesAndCrossReferences(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	docID, err := s.SaveDocument(ctx, testBatch("petstore.json", "hash-1"))
	require.NoError(t, err)

	edges, err := s.ListReferenceEdges(ctx, docID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "GET /pets", edges[0].Source)
	assert.Equal(t, types.SlotResponse, edges[0].Slot)
	assert.True(t, edges[0].Resolved)

	xrefs, err := s.ListCrossReferences(ctx, docID)
	require.NoError(t, err)
	require.Len(t, xrefs, 1)

	ep, err := s.GetEndpointByPathMethod(ctx, docID, "/pets", "GET")
	require.NoError(t, err)
	assert.Equal(t, ep.ID, xrefs[0].EndpointID)
	assert.Equal(t, types.UsageResponseBody, xrefs[0].Context)
	assert.InDelta(t, 0.8, xrefs[0].Score, 0.001)
}

func TestDeleteDocumentCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	docID, err := s.SaveDocument(ctx, testBatch("petstore.json", "hash-1"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteDocument(ctx, docID))
	assert.ErrorIs(t, s.DeleteDocument(ctx, docID), ErrNotFound)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Documents)
	assert.Equal(t, 0, stats.Endpoints)
	assert.Equal(t, 0, stats.Schemas)
	assert.Equal(t, 0, stats.ReferenceEdges)
	assert.Equal(t, 0, stats.CrossReferences)
}

func TestVersionGate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	cfg := config.StoreConfig{Driver: "sqlite", Path: path}

	s, err := Open(cfg, nil)
	require.NoError(t, err)

	_, err = s.db.Exec(`UPDATE meta SET value = '99' WHERE key = 'store_version'`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(cfg, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestRetryableStoreClassification(t *testing.T) {
	assert.False(t, isRetryableStoreError(nil))
	assert.False(t, isRetryableStoreError(ErrNotFound))
	assert.False(t, isRetryableStoreError(ErrVersionMismatch))
	assert.True(t, isRetryableStoreError(errors.New("database is locked")))
	assert.True(t, isRetryableStoreError(errors.New("pq: connection refused")))
	assert.False(t, isRetryableStoreError(errors.New("encode document record: bad value")))
}

func TestRetryableStorePassThrough(t *testing.T) {
	s := openTestStore(t)
	wrapped := NewRetryable(s, nil)
	ctx := context.Background()

	docID, err := wrapped.SaveDocument(ctx, testBatch("petstore.json", "hash-1"))
	require.NoError(t, err)

	doc, err := wrapped.GetDocument(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, "Pet Store", doc.Title)

	_, err = wrapped.GetSchema(ctx, docID, "Missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, wrapped.Ping(ctx))
}

func TestStatsSizeBytes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.SaveDocument(ctx, testBatch("petstore.json", "hash-1"))
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Greater(t, stats.SizeBytes, int64(0))
}
