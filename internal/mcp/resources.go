package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/fredcamaral/gomcp-sdk"
	"github.com/fredcamaral/gomcp-sdk/protocol"

	"openapi-mcp/internal/monitoring"
	"openapi-mcp/internal/performance"
	"openapi-mcp/pkg/types"
)

// Resource URIs for browsing server state.
const (
	ResourceDocument = "openapi://document"
	ResourceStats    = "openapi://stats"
)

func (s *Server) registerResources() {
	resources := []struct {
		uri         string
		name        string
		description string
	}{
		{
			uri:         ResourceDocument,
			name:        "Active Document",
			description: "Metadata of the currently indexed OpenAPI document, including ingest errors and warnings",
		},
		{
			uri:         ResourceStats,
			name:        "Server Statistics",
			description: "Store row counts, per-tool latency percentiles and cache activity",
		},
	}
	for _, res := range resources {
		resource := mcpsdk.NewResource(res.uri, res.name, res.description, "application/json")
		s.mcpServer.AddResource(resource, mcpsdk.ResourceHandlerFunc(s.handleResourceRead))
	}
}

func (s *Server) handleResourceRead(ctx context.Context, uri string) ([]protocol.Content, error) {
	switch uri {
	case ResourceDocument:
		return s.readDocumentResource()
	case ResourceStats:
		return s.readStatsResource(ctx)
	default:
		return nil, fmt.Errorf("unknown resource URI: %s", uri)
	}
}

func (s *Server) readDocumentResource() ([]protocol.Content, error) {
	idx := s.holder.Get()
	if idx == nil {
		return []protocol.Content{protocol.NewContent(`{"active": false}`)}, nil
	}
	payload := struct {
		Active    bool               `json:"active"`
		Document  *types.APIDocument `json:"document"`
		Endpoints int                `json:"endpoints"`
		Schemas   int                `json:"schemas"`
	}{
		Active:    true,
		Document:  idx.Document(),
		Endpoints: len(idx.EndpointIDs()),
		Schemas:   len(idx.SchemaNames()),
	}
	return []protocol.Content{protocol.NewContent(marshalJSON(payload))}, nil
}

func (s *Server) readStatsResource(ctx context.Context) ([]protocol.Content, error) {
	storeStats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect store stats: %w", err)
	}
	payload := struct {
		Store *types.StoreStats   `json:"store"`
		Tools monitoring.Snapshot `json:"tools"`
		Cache performance.Stats   `json:"cache"`
	}{
		Store: storeStats,
		Tools: s.monitor.Snapshot(),
		Cache: s.cache.Stats(),
	}
	return []protocol.Content{protocol.NewContent(marshalJSON(payload))}, nil
}
