package results

import (
	"strings"

	"openapi-mcp/internal/index"
	"openapi-mcp/pkg/types"
)

// Parameter-summary caps.
const maxCommonNames = 5

// enrich decorates one ranked hit with display metadata.
func (p *Processor) enrich(idx *index.Index, r ranked, mode types.SearchMode) types.SearchResult {
	if mode == types.SearchModeSchemas {
		return p.enrichSchema(idx, r)
	}
	return p.enrichEndpoint(idx, r)
}

func (p *Processor) enrichEndpoint(idx *index.Index, r ranked) types.SearchResult {
	ep := idx.Endpoint(r.id)
	doc := idx.EndpointDoc(r.id)
	result := types.SearchResult{
		EndpointID:  r.id,
		Path:        ep.Path,
		Method:      ep.Method,
		OperationID: ep.OperationID,
		Summary:     ep.Summary,
		Description: ep.Description,
		Tags:        ep.Tags,
		Score:       r.score,
		Deprecated:  ep.Deprecated,

		OperationType:   doc.OperationType,
		ComplexityLevel: p.endpointComplexity(idx, r.id),
		ResourceGroup:   resourceGroup(ep.Path),
		Stability:       stability(ep),

		ParameterSummary:   parameterSummary(ep),
		AuthenticationInfo: authenticationInfo(idx, ep),
		ResponseInfo:       p.responseInfo(idx, ep),
	}
	return result
}

func (p *Processor) enrichSchema(idx *index.Index, r ranked) types.SearchResult {
	doc := idx.SchemaDoc(r.id)
	s := idx.Schema(r.id)
	result := types.SearchResult{
		SchemaID:        r.id,
		SchemaName:      doc.SchemaName,
		Description:     doc.Description,
		Score:           r.score,
		ComplexityLevel: doc.ComplexityLevel,
	}
	if s != nil {
		result.Summary = s.Title
	}
	return result
}

// endpointComplexity is the highest complexity among the schemas the
// endpoint touches; endpoints without schema usage are simple.
func (p *Processor) endpointComplexity(idx *index.Index, endpointID int64) types.ComplexityLevel {
	level := types.ComplexitySimple
	for _, usage := range idx.EndpointSchemas(endpointID) {
		s := idx.SchemaByName(usage.SchemaName)
		if s == nil {
			continue
		}
		if candidate := index.ComplexityOf(s); complexityRank(candidate) > complexityRank(level) {
			level = candidate
		}
	}
	return level
}

func complexityRank(level types.ComplexityLevel) int {
	switch level {
	case types.ComplexityComplex:
		return 2
	case types.ComplexityModerate:
		return 1
	default:
		return 0
	}
}

// parameterSummary aggregates the endpoint's parameters for display.
func parameterSummary(ep *types.Endpoint) *types.ParameterSummary {
	summary := &types.ParameterSummary{
		Total:         len(ep.Parameters),
		TypeHistogram: make(map[string]int),
	}
	for _, param := range ep.Parameters {
		if param.Required {
			summary.Required++
		} else {
			summary.Optional++
		}
		if param.Schema != nil {
			if param.Schema.Type != "" {
				summary.TypeHistogram[param.Schema.Type]++
			}
			switch param.Schema.Type {
			case "object", "array":
				summary.HasComplexTypes = true
			}
			if param.Schema.Format == "binary" {
				summary.HasFileUpload = true
			}
		}
		if len(summary.CommonNames) < maxCommonNames {
			summary.CommonNames = append(summary.CommonNames, param.Name)
		}
	}
	for _, ct := range ep.ContentTypes {
		if strings.HasPrefix(ct, "multipart/") {
			summary.HasFileUpload = true
		}
	}
	if len(summary.TypeHistogram) == 0 {
		summary.TypeHistogram = nil
	}
	return summary
}

// authenticationInfo resolves the endpoint's scheme names against the
// document's security schemes.
func authenticationInfo(idx *index.Index, ep *types.Endpoint) *types.AuthenticationInfo {
	info := &types.AuthenticationInfo{Required: len(ep.Security) > 0}
	seen := make(map[string]bool)
	for _, name := range ep.SecurityDependencies {
		scheme := idx.SecurityScheme(name)
		if scheme == nil {
			continue
		}
		kind := string(scheme.Kind)
		if !seen[kind] {
			seen[kind] = true
			info.SchemeKinds = append(info.SchemeKinds, kind)
		}
		if info.Description == "" && scheme.Description != "" {
			info.Description = scheme.Description
		}
	}
	if len(ep.Security) > 0 {
		if _, scopes := ep.Security[0].First(); len(scopes) > 0 {
			info.Scopes = scopes
		}
	}
	return info
}

// responseInfo summarizes the endpoint's responses; complexity is the
// highest among its response-body schemas.
func (p *Processor) responseInfo(idx *index.Index, ep *types.Endpoint) *types.ResponseInfo {
	info := &types.ResponseInfo{
		StatusCodes:  ep.ResponseCodes,
		ContentTypes: ep.ContentTypes,
	}
	for _, ct := range ep.ContentTypes {
		if strings.Contains(ct, "json") {
			info.HasJSON = true
		}
		if ct == "application/octet-stream" || strings.HasPrefix(ct, "image/") ||
			strings.HasPrefix(ct, "audio/") || strings.HasPrefix(ct, "video/") {
			info.HasBinary = true
		}
	}

	level := types.ComplexitySimple
	found := false
	for _, usage := range idx.EndpointSchemas(ep.ID) {
		if usage.Context != types.UsageResponseBody {
			continue
		}
		s := idx.SchemaByName(usage.SchemaName)
		if s == nil {
			continue
		}
		found = true
		if candidate := index.ComplexityOf(s); complexityRank(candidate) > complexityRank(level) {
			level = candidate
		}
	}
	if found {
		info.Complexity = level
	}
	return info
}

// stability classifies an endpoint's lifecycle from its markers.
func stability(ep *types.Endpoint) string {
	if ep.Deprecated {
		return "deprecated"
	}
	haystack := strings.ToLower(ep.Path + " " + strings.Join(ep.Tags, " "))
	for _, marker := range []string{"alpha", "beta", "experimental", "preview"} {
		if strings.Contains(haystack, marker) {
			return "experimental"
		}
	}
	return "stable"
}
