package mcp

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"openapi-mcp/internal/codegen"
	apperrors "openapi-mcp/internal/errors"
	"openapi-mcp/internal/resolver"
	"openapi-mcp/pkg/types"
)

// Parameter bounds of the tool contracts.
const (
	maxKeywordsLength      = 500
	maxComponentNameLength = 255
	maxPerPage             = 50
	defaultPerPage         = 20
)

type searchParams struct {
	Keywords    string   `mapstructure:"keywords"`
	Mode        string   `mapstructure:"mode"`
	HTTPMethods []string `mapstructure:"httpMethods"`
	Page        int      `mapstructure:"page"`
	PerPage     int      `mapstructure:"perPage"`
}

// searchMode returns the validated corpus selector.
func (p *searchParams) searchMode() types.SearchMode {
	return types.SearchMode(p.Mode)
}

type schemaParams struct {
	ComponentName       string `mapstructure:"componentName"`
	ResolveDependencies *bool  `mapstructure:"resolveDependencies"`
	MaxDepth            int    `mapstructure:"maxDepth"`
	IncludeExamples     *bool  `mapstructure:"includeExamples"`
	IncludeExtensions   *bool  `mapstructure:"includeExtensions"`
}

type exampleParams struct {
	Endpoint    string `mapstructure:"endpoint"`
	Format      string `mapstructure:"format"`
	Method      string `mapstructure:"method"`
	IncludeAuth *bool  `mapstructure:"includeAuth"`
	BaseURL     string `mapstructure:"baseUrl"`
}

// decode fills out from the raw argument map, tolerating JSON number
// types and ignoring unknown keys.
func decode(params map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if err := dec.Decode(params); err != nil {
		return apperrors.NewValidationError("arguments", "arguments do not match the tool contract: "+err.Error(), params, nil)
	}
	return nil
}

func parseSearchParams(params map[string]interface{}) (*searchParams, error) {
	p := &searchParams{}
	if err := decode(params, p); err != nil {
		return nil, err
	}

	p.Keywords = strings.TrimSpace(p.Keywords)
	if p.Keywords == "" {
		return nil, apperrors.NewValidationError("keywords",
			"must be a non-empty string", p.Keywords,
			[]string{`{"keywords": "users"}`})
	}
	if len(p.Keywords) > maxKeywordsLength {
		return nil, apperrors.NewValidationError("keywords",
			fmt.Sprintf("must be at most %d characters", maxKeywordsLength),
			len(p.Keywords), nil)
	}
	if p.Mode == "" {
		p.Mode = string(types.SearchModeEndpoints)
	}
	if !types.SearchMode(p.Mode).Valid() {
		return nil, apperrors.NewValidationError("mode",
			"unknown search mode", p.Mode,
			[]string{string(types.SearchModeEndpoints), string(types.SearchModeSchemas)})
	}
	for _, method := range p.HTTPMethods {
		if !types.IsKnownHTTPMethod(method) {
			return nil, apperrors.NewValidationError("httpMethods",
				"unknown HTTP method", method, types.KnownHTTPMethods)
		}
	}
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Page < 1 {
		return nil, apperrors.NewValidationError("page",
			"must be at least 1", p.Page, nil)
	}
	if p.PerPage == 0 {
		p.PerPage = defaultPerPage
	}
	if p.PerPage < 1 || p.PerPage > maxPerPage {
		return nil, apperrors.NewValidationError("perPage",
			fmt.Sprintf("must be between 1 and %d", maxPerPage), p.PerPage, nil)
	}
	return p, nil
}

func parseSchemaParams(params map[string]interface{}) (*schemaParams, error) {
	p := &schemaParams{}
	if err := decode(params, p); err != nil {
		return nil, err
	}

	p.ComponentName = strings.TrimSpace(p.ComponentName)
	if p.ComponentName == "" {
		return nil, apperrors.NewValidationError("componentName",
			"must be a non-empty string", p.ComponentName,
			[]string{`{"componentName": "User"}`})
	}
	if len(p.ComponentName) > maxComponentNameLength {
		return nil, apperrors.NewValidationError("componentName",
			fmt.Sprintf("must be at most %d characters", maxComponentNameLength),
			len(p.ComponentName), nil)
	}
	if p.MaxDepth == 0 {
		p.MaxDepth = resolver.DefaultDepth
	}
	if p.MaxDepth < resolver.MinDepth || p.MaxDepth > resolver.MaxDepth {
		return nil, apperrors.NewValidationError("maxDepth",
			fmt.Sprintf("must be between %d and %d", resolver.MinDepth, resolver.MaxDepth),
			p.MaxDepth, nil)
	}
	return p, nil
}

// options renders the schema params as resolver options with the
// documented defaults for the unset booleans.
func (p *schemaParams) options() resolver.Options {
	return resolver.Options{
		MaxDepth:            p.MaxDepth,
		ResolveDependencies: boolOr(p.ResolveDependencies, true),
		IncludeExamples:     boolOr(p.IncludeExamples, true),
		IncludeExtensions:   boolOr(p.IncludeExtensions, true),
	}
}

func parseExampleParams(params map[string]interface{}) (*exampleParams, error) {
	p := &exampleParams{}
	if err := decode(params, p); err != nil {
		return nil, err
	}

	p.Endpoint = strings.TrimSpace(p.Endpoint)
	if p.Endpoint == "" {
		return nil, apperrors.NewValidationError("endpoint",
			"must be a non-empty string", p.Endpoint,
			[]string{`{"endpoint": "POST /api/v1/users", "format": "curl"}`})
	}

	format := strings.ToLower(strings.TrimSpace(p.Format))
	switch format {
	case codegen.FormatCurl, codegen.FormatJavaScript, codegen.FormatPython:
		p.Format = format
	default:
		return nil, apperrors.NewValidationError("format",
			"unsupported format", p.Format, codegen.SupportedFormats)
	}

	// "METHOD path" carries its own method; a bare path needs one.
	if fields := strings.Fields(p.Endpoint); len(fields) == 2 && types.IsKnownHTTPMethod(fields[0]) {
		p.Method = fields[0]
		p.Endpoint = fields[1]
	}
	if p.Method != "" && !types.IsKnownHTTPMethod(p.Method) {
		return nil, apperrors.NewValidationError("method",
			"unknown HTTP method", p.Method, types.KnownHTTPMethods)
	}
	p.Method = strings.ToUpper(strings.TrimSpace(p.Method))
	if strings.HasPrefix(p.Endpoint, "/") && p.Method == "" {
		return nil, apperrors.NewValidationError("method",
			"required when endpoint is a path", p.Method,
			[]string{`{"endpoint": "/api/v1/users", "method": "POST", "format": "curl"}`})
	}
	return p, nil
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
