package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openapi-mcp/internal/config"
	"openapi-mcp/internal/store"
	"openapi-mcp/internal/websocket"
)

const petstoreJSON = `{
  "openapi": "3.0.0",
  "info": {"title": "Pet Store", "version": "1.0.0"},
  "servers": [{"url": "https://api.petstore.example.com/v1"}],
  "paths": {
    "/pets": {
      "get": {
        "operationId": "listPets",
        "summary": "List pets",
        "tags": ["pets"],
        "responses": {"200": {"description": "ok"}}
      },
      "post": {
        "operationId": "createPet",
        "requestBody": {
          "required": true,
          "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Pet"}}}
        },
        "responses": {"201": {"description": "created"}}
      }
    }
  },
  "components": {
    "schemas": {
      "Pet": {
        "type": "object",
        "properties": {"id": {"type": "integer"}, "name": {"type": "string"}},
        "required": ["id"]
      }
    }
  }
}`

// sink collects broadcast events for assertions.
type sink struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (s *sink) Broadcast(event websocket.Event) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *sink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Action)
	}
	return out
}

func newTestService(t *testing.T, events Events) (*Service, store.Store) {
	t.Helper()
	st, err := store.Open(config.StoreConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewService(st, config.IngestConfig{}, nil, events), st
}

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "petstore.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestIngestFile(t *testing.T) {
	events := &sink{}
	svc, st := newTestService(t, events)
	ctx := context.Background()

	outcome, err := svc.IngestFile(ctx, writeSpec(t, petstoreJSON))
	require.NoError(t, err)
	assert.False(t, outcome.Skipped)
	assert.NotZero(t, outcome.DocumentID)
	assert.Equal(t, 2, outcome.Endpoints)
	assert.Equal(t, 1, outcome.Schemas)
	assert.Equal(t, "Pet Store", outcome.Document.Title)

	endpoints, err := st.ListEndpoints(ctx, outcome.DocumentID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, endpoints, 2)

	actions := events.actions()
	assert.Contains(t, actions, "started")
	assert.Contains(t, actions, "completed")
	for _, ev := range events.events {
		assert.Equal(t, "petstore", ev.Document)
	}
}

func TestIngestUnchangedDocumentIsSkipped(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	path := writeSpec(t, petstoreJSON)

	first, err := svc.IngestFile(ctx, path)
	require.NoError(t, err)

	second, err := svc.IngestFile(ctx, path)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.DocumentID, second.DocumentID)
}

func TestIngestChangedDocumentReplaces(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()
	path := writeSpec(t, petstoreJSON)

	first, err := svc.IngestFile(ctx, path)
	require.NoError(t, err)

	changed := petstoreJSON[:len(petstoreJSON)-1] + ",\"tags\":[{\"name\":\"pets\"}]}"
	require.NoError(t, os.WriteFile(path, []byte(changed), 0o600))

	second, err := svc.IngestFile(ctx, path)
	require.NoError(t, err)
	assert.False(t, second.Skipped)

	docs, err := st.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1, "same source path replaces the previous document")
	_ = first
}

func TestIngestBytes(t *testing.T) {
	svc, _ := newTestService(t, nil)

	outcome, err := svc.IngestBytes(context.Background(), "billing.yaml", []byte(petstoreJSON))
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Endpoints)
	assert.Equal(t, "billing.yaml", outcome.Document.SourcePath)
}

func TestIngestUnparsableDocument(t *testing.T) {
	events := &sink{}
	svc, _ := newTestService(t, events)

	_, err := svc.IngestBytes(context.Background(), "broken.json", []byte(`{"openapi": "3.0.0"}`))
	require.Error(t, err)
	assert.Contains(t, events.actions(), "failed")
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "petstore", Slug("/specs/PetStore.json"))
	assert.Equal(t, "billing-v2", Slug("billing-v2.yaml"))
	assert.Equal(t, "api", Slug("api"))
}
