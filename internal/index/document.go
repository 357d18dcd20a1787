package index

import (
	"sort"
	"strings"

	"openapi-mcp/pkg/types"
)

// Complexity scoring. The bounded score is
//
//	properties + 2*nested refs + validation rules + 3*(composition present)
//
// bucketed simple < 5, moderate 5-11, complex >= 12.
const (
	complexityModerateAt = 5
	complexityComplexAt  = 12
)

// BuildEndpointDocument projects an endpoint record into its searchable
// document.
func BuildEndpointDocument(ep *types.Endpoint) *types.EndpointDocument {
	doc := &types.EndpointDocument{
		EndpointID:           ep.ID,
		EndpointPath:         ep.Path,
		HTTPMethod:           ep.Method,
		OperationSummary:     ep.Summary,
		OperationDescription: ep.Description,
		OperationID:          ep.OperationID,
		Tags:                 strings.Join(ep.Tags, " "),
		StatusCodes:          strings.Join(ep.ResponseCodes, " "),
		ContentTypes:         strings.Join(ep.ContentTypes, " "),
		SecurityRequirements: strings.Join(ep.SecurityDependencies, " "),
		SearchableText:       ep.SearchableText,
		Deprecated:           ep.Deprecated,
		HasRequestBody:       ep.HasRequestBody(),
	}

	segments, params := splitPathSegments(ep.Path)
	doc.PathSegments = strings.Join(segments, " ")
	if len(segments) > 0 {
		doc.ResourceName = segments[0]
	}

	var pathParams, queryParams, headerParams []string
	var required, optional, paramTypes []string
	for _, p := range ep.Parameters {
		switch p.In {
		case types.LocationPath:
			pathParams = append(pathParams, p.Name)
		case types.LocationQuery:
			queryParams = append(queryParams, p.Name)
		case types.LocationHeader:
			headerParams = append(headerParams, p.Name)
		}
		if p.Required {
			required = append(required, p.Name)
		} else {
			optional = append(optional, p.Name)
		}
		if p.Schema != nil && p.Schema.Type != "" {
			paramTypes = append(paramTypes, p.Schema.Type)
		}
		if p.Example != nil || (p.Schema != nil && p.Schema.Example != nil) {
			doc.HasExamples = true
		}
	}
	doc.PathParameters = strings.Join(pathParams, " ")
	doc.QueryParameters = strings.Join(queryParams, " ")
	doc.HeaderParameters = strings.Join(headerParams, " ")
	doc.ParameterNames = strings.Join(ep.ParameterNames, " ")
	doc.RequiredParameters = strings.Join(required, " ")
	doc.OptionalParameters = strings.Join(optional, " ")
	doc.ParameterTypes = strings.Join(paramTypes, " ")

	doc.ResponseSchemas = strings.Join(responseSchemaNames(ep), " ")
	doc.OperationType = DeriveOperationType(ep, params)
	if !doc.HasExamples {
		doc.HasExamples = hasMediaExamples(ep)
	}

	doc.Keywords = keywordSet(
		doc.PathSegments, doc.OperationSummary, doc.OperationDescription,
		doc.OperationID, doc.ParameterNames, doc.ResponseSchemas,
		doc.StatusCodes, doc.ContentTypes, doc.SecurityRequirements,
		doc.Tags, doc.ResourceName, string(doc.OperationType),
	)
	return doc
}

// BuildSchemaDocument projects a schema record into its searchable
// document. usages are the schema's cross-reference rows; endpoints
// resolves their endpoint ids for the used_in_endpoints field.
func BuildSchemaDocument(s *types.Schema, usages []types.CrossReference, endpoints map[int64]*types.Endpoint) *types.SchemaDocument {
	doc := &types.SchemaDocument{
		SchemaID:        s.ID,
		SchemaName:      s.Name,
		SchemaType:      s.Type,
		Description:     s.Description,
		CompositionType: s.CompositionType(),
		UsageFrequency:  len(usages),
	}

	var required, optional, descriptions, propTypes []string
	requiredSet := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		requiredSet[name] = true
	}
	for _, name := range s.PropertyOrder {
		p := s.Properties[name]
		if requiredSet[name] {
			required = append(required, name)
		} else {
			optional = append(optional, name)
		}
		if p == nil {
			continue
		}
		if p.Description != "" {
			descriptions = append(descriptions, p.Description)
		}
		if p.Type != "" {
			propTypes = append(propTypes, p.Type)
		}
	}
	doc.PropertyNames = strings.Join(s.PropertyOrder, " ")
	doc.PropertyDescriptions = strings.Join(descriptions, " ")
	doc.PropertyTypes = strings.Join(propTypes, " ")
	doc.RequiredProperties = strings.Join(required, " ")
	doc.OptionalProperties = strings.Join(optional, " ")
	doc.NestedSchemas = strings.Join(s.Dependencies, " ")
	doc.ValidationRules = strings.Join(collectValidationRules(s), " ")

	var inherits []string
	for _, part := range s.AllOf {
		if name := schemaRefName(part); name != "" {
			inherits = append(inherits, name)
		}
	}
	doc.InheritsFrom = strings.Join(inherits, " ")

	var usedIn, contexts []string
	seenCtx := make(map[string]bool)
	for _, u := range usages {
		if ep := endpoints[u.EndpointID]; ep != nil {
			usedIn = append(usedIn, ep.Method+" "+ep.Path)
		}
		if !seenCtx[string(u.Context)] {
			seenCtx[string(u.Context)] = true
			contexts = append(contexts, string(u.Context))
		}
	}
	doc.UsedInEndpoints = strings.Join(usedIn, " ")
	doc.UsageContexts = strings.Join(contexts, " ")

	doc.ComplexityLevel = ComplexityOf(s)

	doc.SearchableText = strings.Join([]string{
		doc.SchemaName, doc.SchemaName, doc.SchemaName,
		doc.Description, doc.Description,
		doc.PropertyNames, doc.PropertyDescriptions,
	}, " ")
	doc.Keywords = keywordSet(
		doc.SchemaName, doc.SchemaType, doc.Description, doc.PropertyNames,
		doc.PropertyTypes, doc.NestedSchemas, doc.ValidationRules,
		doc.UsageContexts, doc.CompositionType, doc.InheritsFrom,
	)
	return doc
}

// DeriveOperationType classifies an endpoint from method, path shape and
// summary hints. params is the ordered {token} list of the path template.
func DeriveOperationType(ep *types.Endpoint, params []string) types.OperationType {
	endsInParam := strings.HasSuffix(strings.TrimRight(ep.Path, "/"), "}")

	switch ep.Method {
	case types.MethodGet:
		if endsInParam {
			return types.OperationRead
		}
		if hintsSearch(ep.Summary) || hintsSearch(ep.Path) {
			return types.OperationSearch
		}
		return types.OperationList
	case types.MethodPost:
		if hintsUpload(ep.Path) || hintsUploadParams(ep) {
			return types.OperationUpload
		}
		return types.OperationCreate
	case types.MethodPut, types.MethodPatch:
		return types.OperationUpdate
	case types.MethodDelete:
		return types.OperationDelete
	default:
		return types.OperationAction
	}
}

func hintsSearch(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "search") || strings.Contains(lower, "query") ||
		strings.Contains(lower, "find")
}

func hintsUpload(path string) bool {
	lower := strings.ToLower(path)
	return strings.Contains(lower, "upload") || strings.Contains(lower, "file") ||
		strings.Contains(lower, "attachment") || strings.Contains(lower, "import")
}

func hintsUploadParams(ep *types.Endpoint) bool {
	for _, ct := range ep.ContentTypes {
		if strings.HasPrefix(ct, "multipart/") || ct == "application/octet-stream" {
			return true
		}
	}
	for _, p := range ep.Parameters {
		if hintsUpload(p.Name) {
			return true
		}
	}
	return false
}

// ComplexityOf buckets a schema by its bounded structural score.
func ComplexityOf(s *types.Schema) types.ComplexityLevel {
	score := ComplexityScore(s)
	switch {
	case score >= complexityComplexAt:
		return types.ComplexityComplex
	case score >= complexityModerateAt:
		return types.ComplexityModerate
	default:
		return types.ComplexitySimple
	}
}

// ComplexityScore computes the documented structural score.
func ComplexityScore(s *types.Schema) int {
	if s == nil {
		return 0
	}
	score := len(s.PropertyOrder)
	score += 2 * countRefs(s)
	score += len(collectValidationRules(s))
	if s.HasComposition() {
		score += 3
	}
	return score
}

// countRefs counts $ref occurrences in the schema tree.
func countRefs(s *types.Schema) int {
	if s == nil {
		return 0
	}
	if s.Ref != "" {
		return 1
	}
	count := 0
	for _, name := range s.PropertyOrder {
		count += countRefs(s.Properties[name])
	}
	count += countRefs(s.Items)
	count += countRefs(s.AdditionalProperties)
	for _, part := range s.AllOf {
		count += countRefs(part)
	}
	for _, part := range s.OneOf {
		count += countRefs(part)
	}
	for _, part := range s.AnyOf {
		count += countRefs(part)
	}
	count += countRefs(s.Not)
	count += countRefs(s.If)
	count += countRefs(s.Then)
	count += countRefs(s.Else)
	return count
}

// collectValidationRules gathers validation keyword tokens over the whole
// schema tree, deduplicated in first-seen order.
func collectValidationRules(s *types.Schema) []string {
	seen := make(map[string]bool)
	var rules []string
	var walk func(*types.Schema)
	walk = func(node *types.Schema) {
		if node == nil || node.Ref != "" {
			return
		}
		for _, kw := range node.ValidationKeywords() {
			if !seen[kw] {
				seen[kw] = true
				rules = append(rules, kw)
			}
		}
		for _, name := range node.PropertyOrder {
			walk(node.Properties[name])
		}
		walk(node.Items)
		walk(node.AdditionalProperties)
		for _, part := range node.AllOf {
			walk(part)
		}
		for _, part := range node.OneOf {
			walk(part)
		}
		for _, part := range node.AnyOf {
			walk(part)
		}
		walk(node.Not)
	}
	walk(s)
	return rules
}

// hasMediaExamples reports whether any request-body or response media type
// carries an example, directly or on its schema.
func hasMediaExamples(ep *types.Endpoint) bool {
	if ep.RequestBody != nil {
		for _, media := range ep.RequestBody.Content {
			if mediaHasExample(media) {
				return true
			}
		}
	}
	for _, resp := range ep.Responses {
		if resp == nil {
			continue
		}
		for _, media := range resp.Content {
			if mediaHasExample(media) {
				return true
			}
		}
	}
	return false
}

func mediaHasExample(media *types.MediaType) bool {
	if media == nil {
		return false
	}
	return media.Example != nil || (media.Schema != nil && media.Schema.Example != nil)
}

// responseSchemaNames lists the named schemas referenced from responses,
// in status-code then content-type order.
func responseSchemaNames(ep *types.Endpoint) []string {
	seen := make(map[string]bool)
	var names []string
	for _, code := range ep.ResponseOrder {
		resp := ep.Responses[code]
		if resp == nil {
			continue
		}
		for _, ct := range resp.ContentOrder {
			media := resp.Content[ct]
			if media == nil {
				continue
			}
			for _, name := range schemaTreeNames(media.Schema) {
				if !seen[name] {
					seen[name] = true
					names = append(names, name)
				}
			}
		}
	}
	return names
}

// schemaTreeNames lists named-schema references in a schema tree.
func schemaTreeNames(s *types.Schema) []string {
	var names []string
	var walk func(*types.Schema)
	walk = func(node *types.Schema) {
		if node == nil {
			return
		}
		if name := schemaRefName(node); name != "" {
			names = append(names, name)
			return
		}
		for _, propName := range node.PropertyOrder {
			walk(node.Properties[propName])
		}
		walk(node.Items)
		walk(node.AdditionalProperties)
		for _, part := range node.AllOf {
			walk(part)
		}
		for _, part := range node.OneOf {
			walk(part)
		}
		for _, part := range node.AnyOf {
			walk(part)
		}
	}
	walk(s)
	return names
}

// schemaRefName extracts the component name from a reference node.
func schemaRefName(s *types.Schema) string {
	if s == nil || s.Ref == "" {
		return ""
	}
	for _, prefix := range []string{"#/components/schemas/", "#/definitions/"} {
		if strings.HasPrefix(s.Ref, prefix) {
			return strings.TrimPrefix(s.Ref, prefix)
		}
	}
	return ""
}

// splitPathSegments returns the non-parameter segments and the parameter
// tokens of a path template, in order.
func splitPathSegments(path string) (segments, params []string) {
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			params = append(params, strings.Trim(seg, "{}"))
			continue
		}
		segments = append(segments, seg)
	}
	return segments, params
}

// keywordSet tokenizes the inputs into a sorted, deduplicated keyword list.
func keywordSet(fields ...string) []string {
	seen := make(map[string]bool)
	for _, field := range fields {
		for _, term := range Tokenize(field) {
			seen[term] = true
		}
	}
	keywords := make([]string, 0, len(seen))
	for term := range seen {
		keywords = append(keywords, term)
	}
	sort.Strings(keywords)
	return keywords
}
