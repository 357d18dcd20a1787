package docs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openapi-mcp/internal/config"
	"openapi-mcp/pkg/types"
)

// fakeSource is a minimal in-memory document view.
type fakeSource struct {
	doc       *types.APIDocument
	endpoints []*types.Endpoint
	schemas   map[string]*types.Schema
	order     []string
	schemes   map[string]*types.SecurityScheme
	schemeIDs []string
}

func (f *fakeSource) Document() *types.APIDocument { return f.doc }

func (f *fakeSource) EndpointIDs() []int64 {
	ids := make([]int64, len(f.endpoints))
	for i := range f.endpoints {
		ids[i] = int64(i + 1)
	}
	return ids
}

func (f *fakeSource) Endpoint(id int64) *types.Endpoint { return f.endpoints[id-1] }

func (f *fakeSource) SchemaNames() []string { return f.order }

func (f *fakeSource) SchemaByName(name string) *types.Schema { return f.schemas[name] }

func (f *fakeSource) SecuritySchemeNames() []string { return f.schemeIDs }

func (f *fakeSource) SecurityScheme(name string) *types.SecurityScheme { return f.schemes[name] }

func petstoreSource() *fakeSource {
	return &fakeSource{
		doc: &types.APIDocument{
			Title:          "Pet Store",
			Version:        "1.0.0",
			OpenAPIVersion: "3.0.0",
			Description:    "A sample pet store API.",
			BaseURL:        "https://api.petstore.example.com/v1",
		},
		endpoints: []*types.Endpoint{
			{Method: "GET", Path: "/pets", OperationID: "listPets", Summary: "List pets", Tags: []string{"pets"}},
			{Method: "POST", Path: "/pets", OperationID: "createPet", Summary: "Create a pet", Tags: []string{"pets"}},
			{Method: "GET", Path: "/status", OperationID: "getStatus", Deprecated: true},
		},
		order: []string{"Pet"},
		schemas: map[string]*types.Schema{
			"Pet": {
				Name:          "Pet",
				Type:          "object",
				Description:   "A pet in the store.",
				PropertyOrder: []string{"id", "name", "tags"},
				Required:      []string{"id"},
				Properties: map[string]*types.Schema{
					"id":   {Type: "integer", Format: "int64"},
					"name": {Type: "string"},
					"tags": {Type: "array", Items: &types.Schema{Type: "string"}},
				},
			},
		},
		schemeIDs: []string{"bearerAuth"},
		schemes: map[string]*types.SecurityScheme{
			"bearerAuth": {Name: "bearerAuth", Kind: types.SecurityHTTP, Scheme: "bearer", BearerFormat: "JWT"},
		},
	}
}

func TestMarkdownReference(t *testing.T) {
	md := New(config.DocsConfig{}).Markdown(petstoreSource())

	assert.Contains(t, md, "# Pet Store")
	assert.Contains(t, md, "- Version: 1.0.0")
	assert.Contains(t, md, "- Base URL: https://api.petstore.example.com/v1")

	assert.Contains(t, md, "## Endpoints")
	assert.Contains(t, md, "### Pets")
	assert.Contains(t, md, "| GET | `/pets` | List pets |")
	assert.Contains(t, md, "| POST | `/pets` | Create a pet |")

	// untagged operations land in the trailing group, deprecated marked
	assert.Contains(t, md, "### Other")
	assert.Contains(t, md, "getStatus *(deprecated)*")

	assert.Contains(t, md, "## Authentication")
	assert.Contains(t, md, "**bearerAuth** — HTTP bearer (JWT)")

	assert.Contains(t, md, "## Schemas")
	assert.Contains(t, md, "### Pet")
	assert.Contains(t, md, "| id | `integer (int64)` | yes |")
	assert.Contains(t, md, "| name | `string` | no |")
	assert.Contains(t, md, "| tags | `string[]` | no |")
}

func TestMarkdownTitleOverride(t *testing.T) {
	md := New(config.DocsConfig{Title: "Internal Reference"}).Markdown(petstoreSource())
	assert.Contains(t, md, "# Internal Reference")
}

func TestHTMLReference(t *testing.T) {
	page, err := New(config.DocsConfig{}).HTML(petstoreSource())
	require.NoError(t, err)

	html := string(page)
	assert.Contains(t, html, "<title>Pet Store — API Reference</title>")
	assert.Contains(t, html, "<h1")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<code>/pets</code>")
}

func TestPropertyTypeRenderings(t *testing.T) {
	assert.Equal(t, "any", propertyType(nil))
	assert.Equal(t, "Address", propertyType(&types.Schema{Ref: "#/components/schemas/Address"}))
	assert.Equal(t, "object", propertyType(&types.Schema{}))
	assert.Equal(t, "integer[]", propertyType(&types.Schema{Type: "array", Items: &types.Schema{Type: "integer"}}))
}
