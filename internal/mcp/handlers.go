package mcp

import (
	"context"
	"sort"
	"strings"
	"time"

	"openapi-mcp/internal/codegen"
	apperrors "openapi-mcp/internal/errors"
	"openapi-mcp/internal/index"
	"openapi-mcp/internal/logging"
	"openapi-mcp/internal/query"
	"openapi-mcp/internal/resolver"
	"openapi-mcp/internal/results"
	"openapi-mcp/pkg/types"
)

// SchemaResponse is the getSchema payload.
type SchemaResponse struct {
	Name               string              `json:"name"`
	Schema             *types.OrderedMap   `json:"schema"`
	Dependencies       map[string][]string `json:"dependencies,omitempty"`
	CircularReferences []string            `json:"circularReferences,omitempty"`
	Unresolved         []string            `json:"unresolved,omitempty"`
	Metadata           SchemaMetadata      `json:"metadata"`
}

// SchemaMetadata summarizes the resolution.
type SchemaMetadata struct {
	TotalDependencies int     `json:"totalDependencies"`
	MaxDepthReached   bool    `json:"maxDepthReached"`
	TookMS            float64 `json:"tookMS"`
	RequestID         string  `json:"requestId,omitempty"`
}

// ExampleResponse is the getExample payload.
type ExampleResponse struct {
	Endpoint string          `json:"endpoint"`
	Method   string          `json:"method"`
	Path     string          `json:"path"`
	Format   string          `json:"format"`
	Snippet  string          `json:"snippet"`
	Metadata ExampleMetadata `json:"metadata"`
}

// ExampleMetadata summarizes the generation.
type ExampleMetadata struct {
	OperationID string  `json:"operationId,omitempty"`
	IncludeAuth bool    `json:"includeAuth"`
	TookMS      float64 `json:"tookMS"`
	RequestID   string  `json:"requestId,omitempty"`
}

func (s *Server) handleSearchEndpoints(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	p, err := parseSearchParams(params)
	if err != nil {
		return nil, err
	}

	return s.execute(ctx, ToolSearchEndpoints, func(ctx context.Context) (interface{}, error) {
		idx, err := s.activeIndex()
		if err != nil {
			return nil, err
		}

		mode := p.searchMode()
		q, warnings := query.Parse(p.Keywords)
		hits := idx.Search(q, mode)

		opts := results.Options{
			Mode:      mode,
			Query:     p.Keywords,
			Page:      p.Page,
			PerPage:   p.PerPage,
			RequestID: requestIDFrom(ctx),
			Warnings:  warnings,
		}
		if len(p.HTTPMethods) > 0 {
			opts.Filters = map[string]interface{}{"methods": p.HTTPMethods}
		}

		resp, err := s.processor.Process(ctx, idx, hits, opts)
		if err != nil {
			return nil, err
		}
		resp.Suggestions = toSuggestions(query.Suggest(q, len(resp.Results), idx.Vocabulary(), string(mode)))
		return resp, nil
	})
}

func (s *Server) handleGetSchema(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	p, err := parseSchemaParams(params)
	if err != nil {
		return nil, err
	}

	return s.execute(ctx, ToolGetSchema, func(ctx context.Context) (interface{}, error) {
		idx, err := s.activeIndex()
		if err != nil {
			return nil, err
		}

		started := time.Now()
		res, err := resolver.New(idx, s.logger).Resolve(p.ComponentName, p.options())
		if err != nil {
			return nil, err
		}

		return &SchemaResponse{
			Name:               res.Name,
			Schema:             res.Schema,
			Dependencies:       res.Dependencies,
			CircularReferences: res.CircularReferences,
			Unresolved:         res.Unresolved,
			Metadata: SchemaMetadata{
				TotalDependencies: res.TotalDependencies,
				MaxDepthReached:   res.DepthReached,
				TookMS:            float64(time.Since(started).Microseconds()) / 1000,
				RequestID:         requestIDFrom(ctx),
			},
		}, nil
	})
}

func (s *Server) handleGetExample(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	p, err := parseExampleParams(params)
	if err != nil {
		return nil, err
	}

	return s.execute(ctx, ToolGetExample, func(ctx context.Context) (interface{}, error) {
		idx, err := s.activeIndex()
		if err != nil {
			return nil, err
		}

		started := time.Now()
		ep, err := findEndpoint(idx, p.Endpoint, p.Method)
		if err != nil {
			return nil, err
		}

		baseURL := p.BaseURL
		if baseURL == "" && idx.Document() != nil {
			baseURL = idx.Document().BaseURL
		}
		snippet, err := codegen.Generate(ep, idx, codegen.Options{
			Format:      p.Format,
			IncludeAuth: boolOr(p.IncludeAuth, true),
			BaseURL:     baseURL,
		})
		if err != nil {
			return nil, err
		}

		return &ExampleResponse{
			Endpoint: ep.Method + " " + ep.Path,
			Method:   ep.Method,
			Path:     ep.Path,
			Format:   p.Format,
			Snippet:  snippet,
			Metadata: ExampleMetadata{
				OperationID: ep.OperationID,
				IncludeAuth: boolOr(p.IncludeAuth, true),
				TookMS:      float64(time.Since(started).Microseconds()) / 1000,
				RequestID:   requestIDFrom(ctx),
			},
		}, nil
	})
}

// activeIndex returns the current index or a not-found error pointing the
// caller at ingestion.
func (s *Server) activeIndex() (*index.Index, error) {
	idx := s.holder.Get()
	if idx == nil {
		return nil, apperrors.NewResourceNotFound("document", "active",
			[]string{"ingest an OpenAPI document first"})
	}
	return idx, nil
}

// findEndpoint matches spec in priority order: exact operationId, then
// path plus method. Misses return the closest operations as hints.
func findEndpoint(idx *index.Index, spec, method string) (*types.Endpoint, error) {
	byPath := strings.HasPrefix(spec, "/")
	for _, id := range idx.EndpointIDs() {
		ep := idx.Endpoint(id)
		if ep == nil {
			continue
		}
		if byPath {
			if ep.Path == spec && strings.EqualFold(ep.Method, method) {
				return ep, nil
			}
			continue
		}
		if strings.EqualFold(ep.OperationID, spec) {
			return ep, nil
		}
	}

	label := spec
	if byPath {
		label = method + " " + spec
	}
	return nil, apperrors.NewResourceNotFound("endpoint", label, similarEndpoints(idx, spec))
}

// similarEndpoints ranks operations by edit distance on the path (or
// operationId) and returns up to five "METHOD path" hints.
func similarEndpoints(idx *index.Index, spec string) []string {
	type candidate struct {
		label    string
		distance int
	}
	needle := strings.ToLower(spec)
	const maxDistance = 10

	var candidates []candidate
	for _, id := range idx.EndpointIDs() {
		ep := idx.Endpoint(id)
		if ep == nil {
			continue
		}
		best := query.EditDistance(needle, strings.ToLower(ep.Path), maxDistance)
		if ep.OperationID != "" {
			if d := query.EditDistance(needle, strings.ToLower(ep.OperationID), maxDistance); d < best {
				best = d
			}
		}
		if strings.Contains(strings.ToLower(ep.Path), needle) {
			best = 0
		}
		if best > maxDistance {
			continue
		}
		candidates = append(candidates, candidate{label: ep.Method + " " + ep.Path, distance: best})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})
	if len(candidates) > 5 {
		candidates = candidates[:5]
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.label)
	}
	return out
}

func toSuggestions(in []query.Suggestion) []types.Suggestion {
	if len(in) == 0 {
		return nil
	}
	out := make([]types.Suggestion, 0, len(in))
	for _, s := range in {
		out = append(out, types.Suggestion{Type: s.Type, Value: s.Value, Reason: s.Reason})
	}
	return out
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(logging.RequestIDKey).(string); ok {
		return id
	}
	return ""
}
