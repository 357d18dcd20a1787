package normalizer

import (
	"strings"

	"openapi-mcp/pkg/types"
)

// Searchable-text repetition weights. The relative weighting is
// path 3 : summary 2 : tags 1.5 : description 1 : parameter descriptions 1,
// realized as integer repetition counts (scaled by two) so tokenized term
// frequency reproduces the weighting deterministically.
const (
	weightPath      = 6
	weightSummary   = 4
	weightTags      = 3
	weightDesc      = 2
	weightParamDesc = 2
)

// derive computes the persisted derived columns of an endpoint from the
// decoded record and the per-endpoint scope accumulated while decoding.
func (r *run) derive(ep *types.Endpoint, scope *endpointScope) {
	for _, p := range ep.Parameters {
		ep.ParameterNames = append(ep.ParameterNames, p.Name)
	}
	ep.ResponseCodes = ep.ResponseOrder
	ep.ContentTypes = scope.contentTypes
	ep.SchemaDependencies = scope.deps

	seen := make(map[string]bool)
	for _, req := range ep.Security {
		for _, name := range req.SchemeOrder {
			if !seen[name] {
				seen[name] = true
				ep.SecurityDependencies = append(ep.SecurityDependencies, name)
			}
		}
	}

	ep.SearchableText = searchableText(ep)
}

// searchableText builds the field-weighted text blob the index consumes.
func searchableText(ep *types.Endpoint) string {
	var b strings.Builder
	appendWeighted(&b, pathText(ep.Path), weightPath)
	appendWeighted(&b, ep.Summary, weightSummary)
	appendWeighted(&b, strings.Join(ep.Tags, " "), weightTags)
	appendWeighted(&b, ep.Description, weightDesc)
	for _, p := range ep.Parameters {
		appendWeighted(&b, p.Description, weightParamDesc)
	}
	return strings.TrimSpace(b.String())
}

// pathText renders a path template as searchable words: separators become
// spaces and parameter braces are dropped.
func pathText(path string) string {
	replacer := strings.NewReplacer("/", " ", "{", "", "}", "", "-", " ", "_", " ", ".", " ")
	return strings.TrimSpace(replacer.Replace(path))
}

func appendWeighted(b *strings.Builder, text string, weight int) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	for i := 0; i < weight; i++ {
		b.WriteString(text)
		b.WriteByte(' ')
	}
}
