package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "openapi-mcp/internal/errors"
	"openapi-mcp/internal/resolver"
)

func asAppError(t *testing.T, err error) *apperrors.AppError {
	t.Helper()
	require.Error(t, err)
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok, "expected *AppError, got %T", err)
	return appErr
}

func TestParseSearchParamsEmptyKeywords(t *testing.T) {
	_, err := parseSearchParams(map[string]interface{}{"keywords": "   "})
	appErr := asAppError(t, err)
	assert.Equal(t, apperrors.RPCCodeInvalidParams, appErr.RPCCode())
	assert.Equal(t, "keywords", appErr.Details["parameter"])
	assert.NotEmpty(t, appErr.Details["suggestions"])
}

func TestParseSearchParamsDefaults(t *testing.T) {
	p, err := parseSearchParams(map[string]interface{}{"keywords": "users"})
	require.NoError(t, err)
	assert.Equal(t, "users", p.Keywords)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, defaultPerPage, p.PerPage)
	assert.Empty(t, p.HTTPMethods)
}

func TestParseSearchParamsWeaklyTypedNumbers(t *testing.T) {
	// JSON decodes numbers as float64.
	p, err := parseSearchParams(map[string]interface{}{
		"keywords": "users",
		"page":     float64(2),
		"perPage":  float64(5),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, 5, p.PerPage)
}

func TestParseSearchParamsUnknownMethod(t *testing.T) {
	_, err := parseSearchParams(map[string]interface{}{
		"keywords":    "users",
		"httpMethods": []interface{}{"FETCH"},
	})
	appErr := asAppError(t, err)
	assert.Equal(t, "httpMethods", appErr.Details["parameter"])
}

func TestParseSearchParamsPerPageBounds(t *testing.T) {
	_, err := parseSearchParams(map[string]interface{}{
		"keywords": "users",
		"perPage":  maxPerPage + 1,
	})
	appErr := asAppError(t, err)
	assert.Equal(t, "perPage", appErr.Details["parameter"])

	_, err = parseSearchParams(map[string]interface{}{
		"keywords": "users",
		"page":     -1,
	})
	appErr = asAppError(t, err)
	assert.Equal(t, "page", appErr.Details["parameter"])
}

func TestParseSchemaParamsDefaults(t *testing.T) {
	p, err := parseSchemaParams(map[string]interface{}{"componentName": "User"})
	require.NoError(t, err)
	assert.Equal(t, "User", p.ComponentName)

	opts := p.options()
	assert.Equal(t, resolver.DefaultDepth, opts.MaxDepth)
	assert.True(t, opts.ResolveDependencies)
	assert.True(t, opts.IncludeExamples)
	assert.True(t, opts.IncludeExtensions)
}

func TestParseSchemaParamsOverrides(t *testing.T) {
	p, err := parseSchemaParams(map[string]interface{}{
		"componentName":       "User",
		"resolveDependencies": false,
		"maxDepth":            3,
		"includeExamples":     false,
	})
	require.NoError(t, err)

	opts := p.options()
	assert.Equal(t, 3, opts.MaxDepth)
	assert.False(t, opts.ResolveDependencies)
	assert.False(t, opts.IncludeExamples)
	assert.True(t, opts.IncludeExtensions)
}

func TestParseSchemaParamsDepthBounds(t *testing.T) {
	_, err := parseSchemaParams(map[string]interface{}{
		"componentName": "User",
		"maxDepth":      resolver.MaxDepth + 1,
	})
	appErr := asAppError(t, err)
	assert.Equal(t, "maxDepth", appErr.Details["parameter"])
}

func TestParseSchemaParamsEmptyName(t *testing.T) {
	_, err := parseSchemaParams(map[string]interface{}{"componentName": ""})
	appErr := asAppError(t, err)
	assert.Equal(t, apperrors.RPCCodeInvalidParams, appErr.RPCCode())
	assert.Equal(t, "componentName", appErr.Details["parameter"])
}

func TestParseExampleParamsMethodPrefix(t *testing.T) {
	p, err := parseExampleParams(map[string]interface{}{
		"endpoint": "POST /api/v1/users",
		"format":   "curl",
	})
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/users", p.Endpoint)
	assert.Equal(t, "POST", p.Method)
}

func TestParseExampleParamsBarePathNeedsMethod(t *testing.T) {
	_, err := parseExampleParams(map[string]interface{}{
		"endpoint": "/api/v1/users",
		"format":   "curl",
	})
	appErr := asAppError(t, err)
	assert.Equal(t, "method", appErr.Details["parameter"])
}

func TestParseExampleParamsOperationID(t *testing.T) {
	p, err := parseExampleParams(map[string]interface{}{
		"endpoint": "createUser",
		"format":   "python",
	})
	require.NoError(t, err)
	assert.Equal(t, "createUser", p.Endpoint)
	assert.Empty(t, p.Method)
}

func TestParseExampleParamsNormalizesCase(t *testing.T) {
	p, err := parseExampleParams(map[string]interface{}{
		"endpoint": "/api/v1/users",
		"method":   "post",
		"format":   "cURL",
	})
	require.NoError(t, err)
	assert.Equal(t, "POST", p.Method)
	assert.Equal(t, "curl", p.Format)
}

func TestParseExampleParamsUnsupportedFormat(t *testing.T) {
	_, err := parseExampleParams(map[string]interface{}{
		"endpoint": "createUser",
		"format":   "rust",
	})
	appErr := asAppError(t, err)
	assert.Equal(t, "format", appErr.Details["parameter"])
	assert.Contains(t, appErr.Details["suggestions"], "curl")
}
