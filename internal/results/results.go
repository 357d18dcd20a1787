// Package results turns raw index hits into the response envelope of the
// searchEndpoints tool: filter, enrich, rank, cluster, paginate, and cache
// the final page.
package results

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"openapi-mcp/internal/config"
	"openapi-mcp/internal/index"
	"openapi-mcp/internal/logging"
	"openapi-mcp/internal/performance"
	"openapi-mcp/pkg/types"
)

// Hard ceiling on per_page regardless of configuration.
const perPageCeiling = 100

// Ranking multipliers.
const (
	deprecationPenalty = 0.5
	fieldMatchBonus    = 1.2
	identifierBonus    = 1.1
	modeTypePreference = 1.1
)

// Options carries one search request through the pipeline.
type Options struct {
	Mode      types.SearchMode
	Query     string
	Filters   map[string]interface{}
	Page      int
	PerPage   int
	RequestID string
	// Warnings accumulated upstream (query parsing) that belong in the
	// response metadata.
	Warnings []string
}

// Processor runs the result pipeline. The cache is optional.
type Processor struct {
	cache  performance.Cache
	search config.SearchConfig
	logger logging.Logger
}

// NewProcessor creates a result processor.
func NewProcessor(cache performance.Cache, search config.SearchConfig, logger logging.Logger) *Processor {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if search.DefaultPageSize <= 0 {
		search.DefaultPageSize = 10
	}
	if search.MaxPageSize <= 0 {
		search.MaxPageSize = 50
	}
	if search.MaxPageSize > perPageCeiling {
		search.MaxPageSize = perPageCeiling
	}
	return &Processor{cache: cache, search: search, logger: logger.WithComponent("results")}
}

// cacheShape is the canonical request fingerprint. Field order is fixed;
// map keys are sorted by encoding/json.
type cacheShape struct {
	DocumentID int64                  `json:"document_id"`
	Query      string                 `json:"query"`
	Filters    map[string]interface{} `json:"filters"`
	Page       int                    `json:"page"`
	PerPage    int                    `json:"per_page"`
	Mode       string                 `json:"mode"`
}

// Process runs the full pipeline over raw hits.
func (p *Processor) Process(ctx context.Context, idx *index.Index, hits []index.Hit, opts Options) (*types.SearchResponse, error) {
	started := time.Now()
	page, perPage := p.normalizePage(opts.Page, opts.PerPage)

	key := performance.Key(cacheShape{
		DocumentID: idx.DocumentID(),
		Query:      opts.Query,
		Filters:    opts.Filters,
		Page:       page,
		PerPage:    perPage,
		Mode:       string(opts.Mode),
	})
	if p.cache != nil && key != "" {
		if data, ok := p.cache.Get(ctx, key); ok {
			var cached types.SearchResponse
			if err := json.Unmarshal(data, &cached); err == nil {
				cached.Metadata.CacheHit = true
				cached.Metadata.TookMS = float64(time.Since(started).Microseconds()) / 1000
				cached.Metadata.RequestID = opts.RequestID
				return &cached, nil
			}
			p.cache.Delete(ctx, key)
		}
	}

	warnings := append([]string(nil), opts.Warnings...)
	filtered, filterWarnings := p.applyFilters(idx, hits, opts)
	warnings = append(warnings, filterWarnings...)

	ranked := p.rank(idx, filtered, opts)
	pagination := paginate(len(ranked), page, perPage)

	start := (page - 1) * perPage
	end := start + perPage
	if start > len(ranked) {
		start = len(ranked)
	}
	if end > len(ranked) {
		end = len(ranked)
	}

	resp := &types.SearchResponse{
		Results:    make([]types.SearchResult, 0, end-start),
		Pagination: pagination,
		Metadata: types.SearchMetadata{
			Query:     opts.Query,
			Mode:      opts.Mode,
			Warnings:  warnings,
			RequestID: opts.RequestID,
		},
	}
	for _, r := range ranked[start:end] {
		resp.Results = append(resp.Results, p.enrich(idx, r, opts.Mode))
	}
	if opts.Mode != types.SearchModeSchemas {
		resp.Organization = p.cluster(idx, ranked)
	}
	resp.Metadata.TookMS = float64(time.Since(started).Microseconds()) / 1000

	if p.cache != nil && key != "" {
		if data, err := json.Marshal(resp); err == nil {
			if err := p.cache.Set(ctx, key, data); err != nil {
				p.logger.Warn("result cache write failed", "error", err)
			}
		}
	}
	return resp, nil
}

// normalizePage clamps pagination to configured bounds.
func (p *Processor) normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = p.search.DefaultPageSize
	}
	if perPage > p.search.MaxPageSize {
		perPage = p.search.MaxPageSize
	}
	return page, perPage
}

// ranked is one hit after scoring, with the tie-break columns resolved.
type ranked struct {
	id         int64
	score      float64
	deprecated bool
	path       string
	method     string
}

// rank applies the composite score and sorts: score descending, deprecated
// last, then path, then method.
func (p *Processor) rank(idx *index.Index, hits []index.Hit, opts Options) []ranked {
	queryTerms := index.TokenizeQuery(opts.Query)
	out := make([]ranked, 0, len(hits))
	for _, h := range hits {
		r := ranked{id: h.ID, score: h.Score}
		switch opts.Mode {
		case types.SearchModeSchemas:
			doc := idx.SchemaDoc(h.ID)
			if doc == nil {
				continue
			}
			r.path = doc.SchemaName
			r.score *= schemaBonus(doc, queryTerms)
			if doc.SchemaType == "object" {
				r.score *= modeTypePreference
			}
		default:
			ep := idx.Endpoint(h.ID)
			doc := idx.EndpointDoc(h.ID)
			if ep == nil || doc == nil {
				continue
			}
			r.path = ep.Path
			r.method = ep.Method
			r.deprecated = ep.Deprecated
			r.score *= endpointBonus(doc, queryTerms)
			if preferredOperation(doc.OperationType) {
				r.score *= modeTypePreference
			}
			if ep.Deprecated {
				r.score *= deprecationPenalty
			}
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].deprecated != out[j].deprecated {
			return !out[i].deprecated
		}
		if out[i].path != out[j].path {
			return out[i].path < out[j].path
		}
		return out[i].method < out[j].method
	})
	return out
}

// endpointBonus rewards hits whose path or operation id carries a query
// term directly.
func endpointBonus(doc *types.EndpointDocument, queryTerms []string) float64 {
	pathTerms := termSet(doc.EndpointPath + " " + doc.PathSegments)
	idTerms := termSet(doc.OperationID)
	for _, term := range queryTerms {
		if pathTerms[term] {
			return fieldMatchBonus
		}
	}
	for _, term := range queryTerms {
		if idTerms[term] {
			return identifierBonus
		}
	}
	return 1.0
}

// schemaBonus rewards hits whose name carries a query term directly.
func schemaBonus(doc *types.SchemaDocument, queryTerms []string) float64 {
	nameTerms := termSet(doc.SchemaName)
	for _, term := range queryTerms {
		if nameTerms[term] {
			return fieldMatchBonus
		}
	}
	return 1.0
}

// preferredOperation marks the retrieval-shaped operations endpoint
// searches usually target.
func preferredOperation(op types.OperationType) bool {
	return op == types.OperationRead || op == types.OperationList || op == types.OperationSearch
}

func termSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, term := range index.Tokenize(text) {
		set[term] = true
	}
	return set
}

// cluster groups the full ranked set along every axis at once. Groups hold
// member ids only.
func (p *Processor) cluster(idx *index.Index, all []ranked) *types.Organization {
	org := &types.Organization{
		ByTag:           make(map[string][]int64),
		ByResource:      make(map[string][]int64),
		ByComplexity:    make(map[string][]int64),
		ByMethod:        make(map[string][]int64),
		ByOperationType: make(map[string][]int64),
		ByAuth:          make(map[string][]int64),
	}
	for _, r := range all {
		ep := idx.Endpoint(r.id)
		doc := idx.EndpointDoc(r.id)
		if ep == nil || doc == nil {
			continue
		}
		for _, tag := range ep.Tags {
			org.ByTag[tag] = append(org.ByTag[tag], r.id)
		}
		org.ByResource[resourceGroup(ep.Path)] = append(org.ByResource[resourceGroup(ep.Path)], r.id)
		level := string(p.endpointComplexity(idx, r.id))
		org.ByComplexity[level] = append(org.ByComplexity[level], r.id)
		org.ByMethod[ep.Method] = append(org.ByMethod[ep.Method], r.id)
		org.ByOperationType[string(doc.OperationType)] = append(org.ByOperationType[string(doc.OperationType)], r.id)
		auth := "none"
		if len(ep.Security) > 0 {
			auth = "required"
		}
		org.ByAuth[auth] = append(org.ByAuth[auth], r.id)
	}
	return org
}

// paginate computes the page envelope.
func paginate(total, page, perPage int) types.Pagination {
	totalPages := 0
	if total > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(perPage)))
	}
	return types.Pagination{
		Total:       total,
		Page:        page,
		PerPage:     perPage,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1 && total > 0,
	}
}

// resourceGroup is the most specific non-parameter path segment.
func resourceGroup(path string) string {
	group := ""
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || strings.HasPrefix(seg, "{") {
			continue
		}
		group = seg
	}
	if group == "" {
		return "root"
	}
	return group
}
