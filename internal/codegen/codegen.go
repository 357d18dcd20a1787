// Package codegen emits ready-to-run request snippets for the getExample
// tool. Snippets are deterministic for a given endpoint and option set.
package codegen

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "openapi-mcp/internal/errors"
	"openapi-mcp/pkg/types"
)

// Formats accepted by the tool surface.
const (
	FormatCurl       = "curl"
	FormatJavaScript = "javascript"
	FormatPython     = "python"
)

// Placeholder values substituted into path templates.
const (
	placeholderString = "EXAMPLE_VALUE"
	placeholderNumber = "12345"
	tokenPlaceholder  = "YOUR_TOKEN_HERE"
	apiKeyPlaceholder = "YOUR_API_KEY_HERE"
	defaultBaseURL    = "https://api.example.com"
)

// Fallback body when the request schema is too complex to exemplify.
const fallbackBody = `{"data": "example_value"}`

// SupportedFormats lists the accepted formats for validation messages.
var SupportedFormats = []string{FormatCurl, FormatJavaScript, FormatPython}

// Source resolves schema and security-scheme names; the search index
// satisfies it.
type Source interface {
	SchemaByName(name string) *types.Schema
	SecurityScheme(name string) *types.SecurityScheme
}

// Options controls one snippet.
type Options struct {
	Format      string
	IncludeAuth bool
	BaseURL     string
}

// Generate builds a snippet for the endpoint in the requested format.
func Generate(ep *types.Endpoint, source Source, opts Options) (string, error) {
	format := strings.ToLower(opts.Format)
	switch format {
	case FormatCurl, FormatJavaScript, FormatPython:
	default:
		return "", apperrors.NewCodeGenerationError(ep.Method+" "+ep.Path, opts.Format,
			fmt.Sprintf("unsupported format; expected one of %s", strings.Join(SupportedFormats, ", ")))
	}

	req := buildRequest(ep, source, opts)
	switch format {
	case FormatCurl:
		return renderCurl(req), nil
	case FormatJavaScript:
		return renderJavaScript(req), nil
	default:
		return renderPython(req), nil
	}
}

// header is one HTTP header line, order-preserving.
type header struct {
	name  string
	value string
}

// request is the format-independent snippet model.
type request struct {
	method  string
	url     string
	headers []header
	body    string
	// comment is emitted when the auth scheme cannot be exemplified by a
	// header alone.
	comment string
}

func buildRequest(ep *types.Endpoint, source Source, opts Options) request {
	req := request{
		method: ep.Method,
		url:    buildURL(ep, opts.BaseURL),
	}
	req.headers = append(req.headers, header{"Accept", "application/json"})
	if hasBody(ep) {
		req.headers = append(req.headers, header{"Content-Type", "application/json"})
		req.body = buildBody(ep, source)
	}
	if opts.IncludeAuth && len(ep.Security) > 0 {
		name, _ := ep.Security[0].First()
		if name != "" {
			applyAuth(&req, name, source)
		}
	}
	return req
}

// buildURL substitutes illustrative placeholders for path parameters.
func buildURL(ep *types.Endpoint, baseURL string) string {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	path := ep.Path
	for _, token := range ep.PathParameterTokens() {
		path = strings.Replace(path, "{"+token+"}", pathPlaceholder(ep, token), 1)
	}
	return baseURL + path
}

// pathPlaceholder picks the placeholder by the declared parameter type:
// numbers read better as numbers.
func pathPlaceholder(ep *types.Endpoint, token string) string {
	for _, p := range ep.Parameters {
		if p.In != types.LocationPath || p.Name != token {
			continue
		}
		if p.Schema != nil && (p.Schema.Type == "integer" || p.Schema.Type == "number") {
			return placeholderNumber
		}
	}
	return placeholderString
}

func hasBody(ep *types.Endpoint) bool {
	switch ep.Method {
	case types.MethodPost, types.MethodPut, types.MethodPatch:
		return true
	}
	return ep.HasRequestBody()
}

// applyAuth honors the endpoint's first security requirement.
func applyAuth(req *request, schemeName string, source Source) {
	var scheme *types.SecurityScheme
	if source != nil {
		scheme = source.SecurityScheme(schemeName)
	}
	if scheme == nil {
		req.comment = fmt.Sprintf("requires authentication via %q", schemeName)
		return
	}
	switch scheme.Kind {
	case types.SecurityHTTP:
		if strings.EqualFold(scheme.Scheme, "bearer") {
			req.headers = append(req.headers, header{"Authorization", "Bearer " + tokenPlaceholder})
			return
		}
		req.comment = fmt.Sprintf("requires HTTP %s authentication", scheme.Scheme)
	case types.SecurityAPIKey:
		if scheme.In == types.LocationHeader && scheme.ParamName != "" {
			req.headers = append(req.headers, header{scheme.ParamName, apiKeyPlaceholder})
			return
		}
		req.comment = fmt.Sprintf("requires an API key in %s %q", scheme.In, scheme.ParamName)
	default:
		req.comment = fmt.Sprintf("requires %s authentication (%s)", scheme.Kind, schemeName)
	}
}

// buildBody exemplifies the JSON request body from its schema when the
// schema is simple; anything else falls back to a generic placeholder.
func buildBody(ep *types.Endpoint, source Source) string {
	s := requestSchema(ep, source)
	if s == nil {
		return fallbackBody
	}
	value, ok := exampleValue(s, source, 0)
	if !ok {
		return fallbackBody
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fallbackBody
	}
	return string(data)
}

// requestSchema finds the JSON request-body schema, following one level of
// reference.
func requestSchema(ep *types.Endpoint, source Source) *types.Schema {
	if ep.RequestBody == nil {
		return nil
	}
	media := ep.RequestBody.Content["application/json"]
	if media == nil {
		for _, ct := range ep.RequestBody.ContentOrder {
			if m := ep.RequestBody.Content[ct]; m != nil && strings.Contains(ct, "json") {
				media = m
				break
			}
		}
	}
	if media == nil || media.Schema == nil {
		return nil
	}
	return deref(media.Schema, source)
}

func deref(s *types.Schema, source Source) *types.Schema {
	if s == nil || s.Ref == "" || source == nil {
		return s
	}
	name := s.Ref
	for _, prefix := range []string{"#/components/schemas/", "#/definitions/"} {
		name = strings.TrimPrefix(name, prefix)
	}
	if target := source.SchemaByName(name); target != nil {
		return target
	}
	return nil
}

// exampleValue renders a deterministic placeholder for a simple schema.
// Composition, deep nesting and unresolved references are not simple.
func exampleValue(s *types.Schema, source Source, depth int) (interface{}, bool) {
	if s == nil || depth > 2 {
		return nil, false
	}
	if s.Ref != "" {
		if target := deref(s, source); target != nil {
			return exampleValue(target, source, depth+1)
		}
		return nil, false
	}
	if s.HasComposition() {
		return nil, false
	}
	if s.Example != nil {
		return s.Example, true
	}
	if s.Default != nil {
		return s.Default, true
	}
	if len(s.Enum) > 0 {
		return s.Enum[0], true
	}

	switch s.Type {
	case "string":
		return stringExample(s.Format), true
	case "integer":
		return 12345, true
	case "number":
		return 123.45, true
	case "boolean":
		return true, true
	case "array":
		item, ok := exampleValue(s.Items, source, depth+1)
		if !ok {
			return nil, false
		}
		return []interface{}{item}, true
	case "object", "":
		if len(s.PropertyOrder) == 0 {
			return nil, false
		}
		body := types.NewOrderedMap()
		for _, name := range s.PropertyOrder {
			value, ok := exampleValue(s.Properties[name], source, depth+1)
			if !ok {
				return nil, false
			}
			body.Set(name, value)
		}
		return body, true
	default:
		return nil, false
	}
}

func stringExample(format string) string {
	switch format {
	case "email":
		return "user@example.com"
	case "date":
		return "2024-01-15"
	case "date-time":
		return "2024-01-15T09:30:00Z"
	case "uuid":
		return "123e4567-e89b-12d3-a456-426614174000"
	case "uri", "url":
		return "https://example.com"
	default:
		return "example_value"
	}
}
