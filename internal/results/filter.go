package results

import (
	"fmt"
	"strings"

	"openapi-mcp/internal/index"
	"openapi-mcp/pkg/types"
)

// Filter keys understood by the endpoint and schema pipelines.
var knownFilters = map[string]bool{
	"methods":                 true,
	"tags":                    true,
	"authentication":          true,
	"authentication.required": true,
	"authentication.schemes":  true,
	"complexity":              true,
	"include_deprecated":      true,
	"schema_types":            true,
	"min_usage_frequency":     true,
}

// applyFilters narrows the hit set. A malformed filter is skipped with a
// warning; it never fails the search. Deprecated endpoints are dropped
// unless include_deprecated is set.
func (p *Processor) applyFilters(idx *index.Index, hits []index.Hit, opts Options) ([]index.Hit, []string) {
	filters, warnings := flattenFilters(opts.Filters)

	includeDeprecated := false
	if raw, ok := filters["include_deprecated"]; ok {
		if b, ok := raw.(bool); ok {
			includeDeprecated = b
		} else {
			warnings = append(warnings, fmt.Sprintf("filter include_deprecated skipped: expected boolean, got %T", raw))
		}
	}

	out := make([]index.Hit, 0, len(hits))
	for _, h := range hits {
		if opts.Mode == types.SearchModeSchemas {
			if p.keepSchema(idx, h.ID, filters, &warnings) {
				out = append(out, h)
			}
			continue
		}
		ep := idx.Endpoint(h.ID)
		if ep == nil {
			continue
		}
		if ep.Deprecated && !includeDeprecated {
			continue
		}
		if p.keepEndpoint(idx, ep, filters, &warnings) {
			out = append(out, h)
		}
	}
	return out, warnings
}

// flattenFilters normalizes the nested authentication object into dotted
// keys and warns about unknown ones. Warnings are emitted once per key.
func flattenFilters(raw map[string]interface{}) (map[string]interface{}, []string) {
	filters := make(map[string]interface{}, len(raw))
	var warnings []string
	for key, value := range raw {
		if key == "authentication" {
			nested, ok := value.(map[string]interface{})
			if !ok {
				warnings = append(warnings, fmt.Sprintf("filter authentication skipped: expected object, got %T", value))
				continue
			}
			for sub, subValue := range nested {
				dotted := "authentication." + sub
				if !knownFilters[dotted] {
					warnings = append(warnings, "unknown filter ignored: "+dotted)
					continue
				}
				filters[dotted] = subValue
			}
			continue
		}
		if !knownFilters[key] {
			warnings = append(warnings, "unknown filter ignored: "+key)
			continue
		}
		filters[key] = value
	}
	return filters, warnings
}

// keepEndpoint applies the endpoint-scoped filters. warned collects
// per-filter problems; a problem disables that filter, not the hit.
func (p *Processor) keepEndpoint(idx *index.Index, ep *types.Endpoint, filters map[string]interface{}, warned *[]string) bool {
	if raw, ok := filters["methods"]; ok {
		methods, err := stringSet(raw)
		if err != nil {
			*warned = appendOnce(*warned, "filter methods skipped: "+err.Error())
		} else if len(methods) > 0 && !methods[strings.ToUpper(ep.Method)] {
			return false
		}
	}

	if raw, ok := filters["tags"]; ok {
		wanted, err := stringList(raw)
		if err != nil {
			*warned = appendOnce(*warned, "filter tags skipped: "+err.Error())
		} else if len(wanted) > 0 && !matchesTagSubstring(ep.Tags, wanted) {
			return false
		}
	}

	if raw, ok := filters["authentication.required"]; ok {
		required, ok := raw.(bool)
		if !ok {
			*warned = appendOnce(*warned, fmt.Sprintf("filter authentication.required skipped: expected boolean, got %T", raw))
		} else if required != (len(ep.Security) > 0) {
			return false
		}
	}

	if raw, ok := filters["authentication.schemes"]; ok {
		kinds, err := stringSet(raw)
		if err != nil {
			*warned = appendOnce(*warned, "filter authentication.schemes skipped: "+err.Error())
		} else if len(kinds) > 0 && !matchesSchemeKind(idx, ep, kinds) {
			return false
		}
	}

	if raw, ok := filters["complexity"]; ok {
		levels, err := stringSet(raw)
		if err != nil {
			*warned = appendOnce(*warned, "filter complexity skipped: "+err.Error())
		} else if len(levels) > 0 && !levels[string(p.endpointComplexity(idx, ep.ID))] {
			return false
		}
	}

	return true
}

// keepSchema applies the schema-scoped filters.
func (p *Processor) keepSchema(idx *index.Index, id int64, filters map[string]interface{}, warned *[]string) bool {
	doc := idx.SchemaDoc(id)
	if doc == nil {
		return false
	}

	if raw, ok := filters["schema_types"]; ok {
		kinds, err := stringSet(raw)
		if err != nil {
			*warned = appendOnce(*warned, "filter schema_types skipped: "+err.Error())
		} else if len(kinds) > 0 && !kinds[doc.SchemaType] {
			return false
		}
	}

	if raw, ok := filters["min_usage_frequency"]; ok {
		minUsage, err := intValue(raw)
		if err != nil {
			*warned = appendOnce(*warned, "filter min_usage_frequency skipped: "+err.Error())
		} else if doc.UsageFrequency < minUsage {
			return false
		}
	}

	if raw, ok := filters["complexity"]; ok {
		levels, err := stringSet(raw)
		if err != nil {
			*warned = appendOnce(*warned, "filter complexity skipped: "+err.Error())
		} else if len(levels) > 0 && !levels[string(doc.ComplexityLevel)] {
			return false
		}
	}

	return true
}

// matchesTagSubstring reports whether any wanted tag is a substring of any
// endpoint tag, case-insensitively.
func matchesTagSubstring(tags, wanted []string) bool {
	for _, tag := range tags {
		lower := strings.ToLower(tag)
		for _, w := range wanted {
			if strings.Contains(lower, strings.ToLower(w)) {
				return true
			}
		}
	}
	return false
}

// matchesSchemeKind reports whether the endpoint uses a security scheme of
// any of the wanted kinds.
func matchesSchemeKind(idx *index.Index, ep *types.Endpoint, kinds map[string]bool) bool {
	for _, name := range ep.SecurityDependencies {
		scheme := idx.SecurityScheme(name)
		if scheme != nil && kinds[string(scheme.Kind)] {
			return true
		}
	}
	return false
}

// stringList coerces a filter value into a string slice. JSON decoding
// hands us []interface{}; direct callers may pass []string.
func stringList(raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string list, found %T element", item)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("expected string list, got %T", raw)
	}
}

func stringSet(raw interface{}) (map[string]bool, error) {
	list, err := stringList(raw)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(list))
	for _, item := range list {
		set[strings.ToUpper(item)] = true
		set[item] = true
		set[strings.ToLower(item)] = true
	}
	return set, nil
}

func intValue(raw interface{}) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", raw)
	}
}

// appendOnce appends msg unless it is already present.
func appendOnce(warnings []string, msg string) []string {
	for _, w := range warnings {
		if w == msg {
			return warnings
		}
	}
	return append(warnings, msg)
}
