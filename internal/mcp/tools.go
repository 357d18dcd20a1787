package mcp

import (
	"context"

	mcpsdk "github.com/fredcamaral/gomcp-sdk"
	"github.com/fredcamaral/gomcp-sdk/protocol"

	apperrors "openapi-mcp/internal/errors"
)

// Tool names of the public surface.
const (
	ToolSearchEndpoints = "searchEndpoints"
	ToolGetSchema       = "getSchema"
	ToolGetExample      = "getExample"
)

// toolHandler adapts an engine handler for the protocol layer: failures
// become tool error results carrying the scrubbed JSON-RPC error object,
// so agents can read the kind, details and suggestions instead of a bare
// message string.
func toolHandler(h func(ctx context.Context, params map[string]interface{}) (interface{}, error)) protocol.ToolHandlerFunc {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		result, err := h(ctx, params)
		if err != nil {
			rpcErr := apperrors.FromError(err).ToJSONRPCError()
			return protocol.NewToolCallError(marshalJSON(rpcErr)), nil
		}
		return result, nil
	}
}

// registerTools declares the three tools with schemas rich enough for an
// agent to call them correctly on the first try.
func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcpsdk.NewTool(
		ToolSearchEndpoints,
		"Search the ingested OpenAPI document for endpoints by keyword. Supports field-scoped clauses (method:POST, tag:users, status:404, auth:bearerAuth, param:limit, path:\"/api/v1/users\"), quoted phrases, trailing ~ for fuzzy matching, and AND/OR/NOT operators. Results are ranked, enriched with parameter/auth/response summaries, clustered by tag/resource/method/complexity, and paginated. USE THIS WHEN: you need to discover which operations an API offers, find endpoints touching a resource, or check which calls need authentication. EXAMPLES: {\"keywords\": \"users\"} lists user operations; {\"keywords\": \"create user\", \"httpMethods\": [\"POST\"]} narrows to creation calls.",
		mcpsdk.ObjectSchema("Endpoint search parameters", map[string]interface{}{
			"keywords": map[string]interface{}{
				"type":        "string",
				"description": "REQUIRED: Search text, at most 500 characters. Plain terms, quoted phrases, field:value clauses and AND/OR/NOT all work. Example: 'users method:GET NOT deprecated'",
			},
			"mode": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"endpoints", "schemas"},
				"default":     "endpoints",
				"description": "Optional: search operations ('endpoints') or component schemas ('schemas').",
			},
			"httpMethods": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Optional: restrict results to these HTTP methods, e.g. [\"GET\", \"POST\"]. Case-insensitive. Endpoint mode only.",
			},
			"page": map[string]interface{}{
				"type":        "integer",
				"default":     1,
				"description": "Optional: 1-based page number.",
			},
			"perPage": map[string]interface{}{
				"type":        "integer",
				"default":     20,
				"description": "Optional: results per page, 1-50.",
			},
		}, []string{"keywords"}),
	), toolHandler(s.handleSearchEndpoints))

	s.mcpServer.AddTool(mcpsdk.NewTool(
		ToolGetSchema,
		"Retrieve a component schema from the ingested OpenAPI document with its $ref dependencies expanded inline. Cyclic references are detected, reported, and left as verbatim $ref nodes; expansion stops at maxDepth. USE THIS WHEN: you need the full shape of a request or response body, including nested objects. Accepts 'User', 'components/schemas/User', '#/components/schemas/User' and '#/definitions/User' spellings. EXAMPLE: {\"componentName\": \"User\", \"maxDepth\": 3}.",
		mcpsdk.ObjectSchema("Schema retrieval parameters", map[string]interface{}{
			"componentName": map[string]interface{}{
				"type":        "string",
				"description": "REQUIRED: The schema name, at most 255 characters. Unknown names return similar candidates.",
			},
			"resolveDependencies": map[string]interface{}{
				"type":        "boolean",
				"default":     true,
				"description": "Optional: false returns the bare body with every $ref left verbatim.",
			},
			"maxDepth": map[string]interface{}{
				"type":        "integer",
				"default":     5,
				"description": "Optional: reference expansion depth, 1-10.",
			},
			"includeExamples": map[string]interface{}{
				"type":        "boolean",
				"default":     true,
				"description": "Optional: include example/examples/default values.",
			},
			"includeExtensions": map[string]interface{}{
				"type":        "boolean",
				"default":     true,
				"description": "Optional: include x-* vendor extensions.",
			},
		}, []string{"componentName"}),
	), toolHandler(s.handleGetSchema))

	s.mcpServer.AddTool(mcpsdk.NewTool(
		ToolGetExample,
		"Generate a ready-to-run request example for one endpoint as a curl command, a JavaScript fetch call, or a Python requests script. Path parameters get illustrative placeholders, the request body is exemplified from its schema, and the endpoint's auth scheme becomes the right header. USE THIS WHEN: you want to show how to call an operation. EXAMPLE: {\"endpoint\": \"/api/v1/users\", \"method\": \"POST\", \"format\": \"curl\"} or {\"endpoint\": \"POST /api/v1/users\", \"format\": \"python\"}.",
		mcpsdk.ObjectSchema("Example generation parameters", map[string]interface{}{
			"endpoint": map[string]interface{}{
				"type":        "string",
				"description": "REQUIRED: The endpoint path ('/api/v1/users'), 'METHOD path' pair, or operationId.",
			},
			"format": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"curl", "javascript", "python"},
				"description": "REQUIRED: Snippet language.",
			},
			"method": map[string]interface{}{
				"type":        "string",
				"description": "HTTP method; required when 'endpoint' is a bare path.",
			},
			"includeAuth": map[string]interface{}{
				"type":        "boolean",
				"default":     true,
				"description": "Optional: include authentication headers for the endpoint's security scheme.",
			},
			"baseUrl": map[string]interface{}{
				"type":        "string",
				"description": "Optional: override the server URL the snippet targets.",
			},
		}, []string{"endpoint", "format"}),
	), toolHandler(s.handleGetExample))
}
