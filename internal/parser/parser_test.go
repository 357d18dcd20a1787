package parser

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const petstoreJSON = `{
  "openapi": "3.0.0",
  "info": {
    "title": "Pet Store",
    "version": "1.2.0",
    "description": "Manage pets and their owners"
  },
  "servers": [
    {"url": "https://api.petstore.example.com/v1"}
  ],
  "paths": {
    "/pets": {
      "get": {
        "operationId": "listPets",
        "summary": "List pets",
        "tags": ["pets"],
        "responses": {"200": {"description": "ok"}}
      },
      "post": {
        "operationId": "createPet",
        "summary": "Create a pet",
        "requestBody": {
          "required": true,
          "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Pet"}}}
        },
        "responses": {"201": {"description": "created"}}
      }
    },
    "/pets/{petId}": {
      "get": {
        "operationId": "getPet",
        "parameters": [
          {"name": "petId", "in": "path", "required": true, "schema": {"type": "string"}}
        ],
        "responses": {"200": {"description": "ok"}}
      }
    },
    "/owners": {
      "get": {
        "operationId": "listOwners",
        "responses": {"200": {"description": "ok"}}
      }
    }
  },
  "components": {
    "schemas": {
      "Pet": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "age": {"type": "integer"},
          "owner": {"$ref": "#/components/schemas/Owner"}
        },
        "required": ["name"]
      },
      "Owner": {
        "type": "object",
        "properties": {"email": {"type": "string"}}
      },
      "Error": {
        "type": "object",
        "properties": {"message": {"type": "string"}}
      }
    },
    "securitySchemes": {
      "bearerAuth": {"type": "http", "scheme": "bearer"}
    }
  }
}`

const petstoreYAML = `openapi: 3.0.0
info:
  title: Pet Store
  version: 1.2.0
paths:
  /pets:
    get:
      operationId: listPets
      responses:
        "200":
          description: ok
  /owners:
    get:
      operationId: listOwners
      deprecated: true
      responses:
        "200":
          description: ok
components:
  schemas:
    Pet:
      type: object
      properties:
        name:
          type: string
        age:
          type: integer
          maximum: 30
`

const legacySwaggerJSON = `{
  "swagger": "2.0",
  "info": {"title": "Legacy", "version": "1.0"},
  "host": "api.example.com",
  "basePath": "/v1",
  "paths": {
    "/pets": {
      "get": {
        "summary": "List pets",
        "responses": {"200": {"description": "ok"}}
      }
    }
  },
  "definitions": {
    "Pet": {"type": "object", "properties": {"name": {"type": "string"}}}
  }
}`

func TestParseBytes_JSONKeepsSourceOrder(t *testing.T) {
	p := New(Options{})
	doc, metrics, errList, warnList, err := p.ParseBytes(context.Background(), "petstore.json", []byte(petstoreJSON))
	require.NoError(t, err)
	assert.Empty(t, errList)
	assert.Empty(t, warnList)

	assert.Equal(t, "3.0.0", doc.OpenAPI)
	assert.Equal(t, "Pet Store", doc.Info.Get("title").StringOr(""))

	pathNames := make([]string, 0, len(doc.Paths))
	for _, m := range doc.Paths {
		pathNames = append(pathNames, m.Name)
	}
	assert.Equal(t, []string{"/pets", "/pets/{petId}", "/owners"}, pathNames)

	schemaNames := make([]string, 0, len(doc.Components.Schemas))
	for _, m := range doc.Components.Schemas {
		schemaNames = append(schemaNames, m.Name)
	}
	assert.Equal(t, []string{"Pet", "Owner", "Error"}, schemaNames)

	require.Len(t, doc.Components.SecuritySchemes, 1)
	assert.Equal(t, "bearerAuth", doc.Components.SecuritySchemes[0].Name)

	require.NotNil(t, metrics)
	assert.Equal(t, "json", metrics.Format)
	assert.Equal(t, 3, metrics.PathCount)
	assert.Equal(t, 3, metrics.SchemaCount)
	assert.Len(t, doc.ContentHash, 64)
}

func TestParseBytes_HashIsStable(t *testing.T) {
	p := New(Options{})
	doc1, _, _, _, err := p.ParseBytes(context.Background(), "a.json", []byte(petstoreJSON))
	require.NoError(t, err)
	doc2, _, _, _, err := p.ParseBytes(context.Background(), "b.json", []byte(petstoreJSON))
	require.NoError(t, err)

	assert.Equal(t, doc1.ContentHash, doc2.ContentHash)
	assert.Equal(t, hashBytes([]byte(petstoreJSON)), doc1.ContentHash)
}

func TestParseBytes_YAML(t *testing.T) {
	p := New(Options{})
	doc, metrics, errList, _, err := p.ParseBytes(context.Background(), "petstore.yaml", []byte(petstoreYAML))
	require.NoError(t, err)
	assert.Empty(t, errList)
	assert.Equal(t, "yaml", metrics.Format)

	pathNames := make([]string, 0, len(doc.Paths))
	for _, m := range doc.Paths {
		pathNames = append(pathNames, m.Name)
	}
	assert.Equal(t, []string{"/pets", "/owners"}, pathNames)

	// yaml scalars land on the JSON value space
	pet := doc.Components.Schemas[0].Node
	maximum, ok := pet.Get("properties").Get("age").Get("maximum").AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(30), maximum)

	deprecated, ok := doc.Paths[1].Node.Get("get").Get("deprecated").AsBool()
	require.True(t, ok)
	assert.True(t, deprecated)
}

func TestParseBytes_SyntaxErrorCarriesPosition(t *testing.T) {
	input := "{\n  \"openapi\": \"3.0.0\",\n  !\n}"
	p := New(Options{})
	_, _, errList, _, err := p.ParseBytes(context.Background(), "broken.json", []byte(input))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParseFailed)
	require.NotEmpty(t, errList)
	assert.Equal(t, 3, errList[0].Line)
	assert.Equal(t, 3, errList[0].Column)
	assert.Contains(t, errList[0].Message, "syntax error")
}

func TestParseBytes_TruncatedInput(t *testing.T) {
	input := `{"openapi": "3.0.0", "info": {"title": "T"`
	p := New(Options{})
	_, _, errList, _, err := p.ParseBytes(context.Background(), "trunc.json", []byte(input))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParseFailed)
	require.NotEmpty(t, errList)
	assert.Contains(t, errList[0].Message, "unexpected end of input")
}

func TestParseBytes_MissingEnvelope(t *testing.T) {
	input := `{"openapi": "3.0.0"}`
	p := New(Options{})
	_, _, errList, _, err := p.ParseBytes(context.Background(), "empty.json", []byte(input))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParseFailed)

	pointers := make([]string, 0, len(errList))
	for _, is := range errList {
		pointers = append(pointers, is.Pointer)
	}
	assert.Contains(t, pointers, "/info")
	assert.Contains(t, pointers, "/paths")
}

func TestParseBytes_WrongShapeIsRecorded(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		pointer string
	}{
		{
			name:    "paths as array",
			input:   `{"openapi":"3.0.0","info":{"title":"T","version":"1"},"paths":[]}`,
			pointer: "/paths",
		},
		{
			name:    "info as string",
			input:   `{"openapi":"3.0.0","info":"nope","paths":{}}`,
			pointer: "/info",
		},
		{
			name:    "schemas as array",
			input:   `{"openapi":"3.0.0","info":{"title":"T","version":"1"},"paths":{},"components":{"schemas":[1]}}`,
			pointer: "/components/schemas",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(Options{})
			_, _, errList, _, err := p.ParseBytes(context.Background(), "shape.json", []byte(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParseFailed)

			found := false
			for _, is := range errList {
				if is.Pointer == tt.pointer {
					found = true
				}
			}
			assert.True(t, found, "expected an issue at %s, got %v", tt.pointer, errList)
		})
	}
}

func TestParseBytes_UnknownTopLevelMemberWarns(t *testing.T) {
	input := `{"openapi":"3.0.0","info":{"title":"T","version":"1"},"paths":{},"custom":1,"x-internal":true}`
	p := New(Options{})
	doc, _, errList, warnList, err := p.ParseBytes(context.Background(), "extra.json", []byte(input))
	require.NoError(t, err)
	assert.Empty(t, errList)

	require.Len(t, warnList, 1)
	assert.Equal(t, "/custom", warnList[0].Pointer)

	// both members survive on the document
	assert.Len(t, doc.Extra, 2)
}

func TestParseBytes_ProgressEvents(t *testing.T) {
	var events []ProgressEvent
	p := New(Options{
		ProgressInterval: 64,
		Progress:         func(e ProgressEvent) { events = append(events, e) },
	})

	_, metrics, _, _, err := p.ParseBytes(context.Background(), "petstore.json", []byte(petstoreJSON))
	require.NoError(t, err)

	require.NotEmpty(t, events)
	assert.GreaterOrEqual(t, len(events), len(petstoreJSON)/64)
	last := events[len(events)-1]
	assert.Equal(t, int64(len(petstoreJSON)), last.BytesRead)
	assert.Equal(t, 100.0, last.Percent)
	assert.Equal(t, len(events), metrics.ProgressEvents)
}

func TestParseBytes_Swagger2Converts(t *testing.T) {
	p := New(Options{})
	doc, metrics, errList, _, err := p.ParseBytes(context.Background(), "legacy.json", []byte(legacySwaggerJSON))
	require.NoError(t, err)
	assert.Empty(t, errList)

	assert.True(t, doc.Converted)
	assert.Equal(t, "2.0", doc.Swagger)
	assert.NotEmpty(t, doc.OpenAPI)
	assert.True(t, metrics.Converted)

	// hash refers to the original bytes, not the converted form
	assert.Equal(t, hashBytes([]byte(legacySwaggerJSON)), doc.ContentHash)

	require.NotEmpty(t, doc.Paths)
	assert.Equal(t, "/pets", doc.Paths[0].Name)

	require.Len(t, doc.Components.Schemas, 1)
	assert.Equal(t, "Pet", doc.Components.Schemas[0].Name)
}

func TestParseBytes_Swagger2YAMLConverts(t *testing.T) {
	legacyYAML := `swagger: "2.0"
info:
  title: Legacy
  version: "1.0"
host: api.example.com
basePath: /v1
paths:
  /pets:
    get:
      summary: List pets
      responses:
        "200":
          description: ok
definitions:
  Pet:
    type: object
`
	p := New(Options{})
	doc, _, _, _, err := p.ParseBytes(context.Background(), "legacy.yaml", []byte(legacyYAML))
	require.NoError(t, err)
	assert.True(t, doc.Converted)
	require.Len(t, doc.Components.Schemas, 1)
	assert.Equal(t, "Pet", doc.Components.Schemas[0].Name)
}

func TestParse_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "petstore.json")
	require.NoError(t, os.WriteFile(path, []byte(petstoreJSON), 0o600))

	p := New(Options{})
	doc, metrics, errList, _, err := p.Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, errList)
	assert.Equal(t, path, doc.SourcePath)
	assert.Equal(t, int64(len(petstoreJSON)), doc.SourceBytes)
	assert.Equal(t, int64(len(petstoreJSON)), metrics.BytesRead)
}

func TestParse_SizeLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "petstore.json")
	require.NoError(t, os.WriteFile(path, []byte(petstoreJSON), 0o600))

	p := New(Options{MaxDocumentBytes: 16})
	_, _, _, _, err := p.Parse(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParseFailed)
}

func TestParseBytes_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(Options{})
	_, _, _, _, err := p.ParseBytes(ctx, "petstore.json", []byte(petstoreJSON))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		input string
		want  string
	}{
		{"json extension", "spec.json", "openapi: 3.0.0", "json"},
		{"yaml extension", "spec.yaml", "{}", "yaml"},
		{"json by first byte", "spec", "  \n\t{\"openapi\":\"3\"}", "json"},
		{"yaml by first byte", "spec", "openapi: 3.0.0\n", "yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cr := newCountingReader(strings.NewReader(tt.input), int64(len(tt.input)), 0, nil)
			br := bufio.NewReader(cr)
			format, err := detectFormat(tt.file, br)
			require.NoError(t, err)
			assert.Equal(t, tt.want, format)
		})
	}
}

func TestCountingReader_LineCol(t *testing.T) {
	input := "ab\ncdef\ng"
	cr := newCountingReader(strings.NewReader(input), int64(len(input)), 0, nil)
	_, err := io.ReadAll(cr)
	require.NoError(t, err)

	line, col := cr.lineCol(0) // 'a'
	assert.Equal(t, 1, line)
	assert.Equal(t, 1, col)

	line, col = cr.lineCol(3) // 'c'
	assert.Equal(t, 2, line)
	assert.Equal(t, 1, col)

	line, col = cr.lineCol(6) // 'f'
	assert.Equal(t, 2, line)
	assert.Equal(t, 4, col)

	line, col = cr.lineCol(8) // 'g'
	assert.Equal(t, 3, line)
	assert.Equal(t, 1, col)
}
