package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openapi-mcp/internal/config"
	"openapi-mcp/internal/mcp"
	"openapi-mcp/internal/store"
)

const taskAPIJSON = `{
  "openapi": "3.0.0",
  "info": {"title": "Task API", "version": "1.0.0"},
  "servers": [{"url": "https://tasks.example.com"}],
  "paths": {
    "/tasks": {
      "get": {
        "operationId": "listTasks",
        "summary": "List tasks",
        "tags": ["tasks"],
        "responses": {"200": {"description": "ok"}}
      },
      "post": {
        "operationId": "createTask",
        "summary": "Create a task",
        "tags": ["tasks"],
        "requestBody": {
          "content": {
            "application/json": {"schema": {"$ref": "#/components/schemas/Task"}}
          }
        },
        "responses": {"201": {"description": "created"}}
      }
    }
  },
  "components": {
    "schemas": {
      "Task": {
        "type": "object",
        "required": ["title"],
        "properties": {
          "id": {"type": "integer"},
          "title": {"type": "string"}
        }
      }
    }
  }
}`

func newTestRouter(t *testing.T, withDocument bool) *Router {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(config.StoreConfig{
		Driver: "sqlite",
		Path:   filepath.Join(dir, "api.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{
		Docs:       config.DocsConfig{Enabled: true},
		Monitoring: config.MonitoringConfig{Enabled: true},
	}
	engine, err := mcp.NewServer(cfg, st, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	if withDocument {
		path := filepath.Join(dir, "task-api.json")
		require.NoError(t, os.WriteFile(path, []byte(taskAPIJSON), 0o600))
		_, err = engine.Ingest(context.Background(), path)
		require.NoError(t, err)
	}
	return NewRouter(cfg, engine, nil, nil)
}

func doRequest(t *testing.T, router *Router, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return body
}

func TestToolsListOverHTTP(t *testing.T) {
	router := newTestRouter(t, true)

	rec := doRequest(t, router, http.MethodPost, "/mcp",
		`{"jsonrpc": "2.0", "id": 1, "method": "tools/list"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	result := body["result"].(map[string]interface{})
	tools := result["tools"].([]interface{})
	require.Len(t, tools, 3)

	names := make(map[string]bool)
	for _, tool := range tools {
		names[tool.(map[string]interface{})["name"].(string)] = true
	}
	assert.True(t, names["searchEndpoints"])
	assert.True(t, names["getSchema"])
	assert.True(t, names["getExample"])
}

func TestToolCallOverHTTP(t *testing.T) {
	router := newTestRouter(t, true)

	rec := doRequest(t, router, http.MethodPost, "/mcp",
		`{"jsonrpc": "2.0", "id": 2, "method": "tools/call",
		  "params": {"name": "searchEndpoints", "arguments": {"keywords": "tasks"}}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Nil(t, body["error"])
	result := body["result"].(map[string]interface{})
	assert.Nil(t, result["isError"])

	content := result["content"].([]interface{})
	require.NotEmpty(t, content)
	text := content[0].(map[string]interface{})["text"].(string)
	assert.Contains(t, text, "listTasks")
	assert.Contains(t, text, "createTask")
}

func TestToolCallErrorCarriesStructuredPayload(t *testing.T) {
	router := newTestRouter(t, true)

	rec := doRequest(t, router, http.MethodPost, "/mcp",
		`{"jsonrpc": "2.0", "id": 3, "method": "tools/call",
		  "params": {"name": "searchEndpoints", "arguments": {"keywords": ""}}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	result := body["result"].(map[string]interface{})
	require.Equal(t, true, result["isError"])

	text := result["content"].([]interface{})[0].(map[string]interface{})["text"].(string)
	var rpcErr struct {
		Code int `json:"code"`
		Data struct {
			Kind      string `json:"kind"`
			Parameter string `json:"parameter"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &rpcErr))
	assert.Equal(t, -32602, rpcErr.Code)
	assert.Equal(t, "VALIDATION_ERROR", rpcErr.Data.Kind)
	assert.Equal(t, "keywords", rpcErr.Data.Parameter)
}

func TestMCPParseError(t *testing.T) {
	router := newTestRouter(t, false)

	rec := doRequest(t, router, http.MethodPost, "/mcp", `{"jsonrpc":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	rpcErr := body["error"].(map[string]interface{})
	assert.Equal(t, float64(-32700), rpcErr["code"])
}

func TestMCPRejectsGet(t *testing.T) {
	router := newTestRouter(t, false)

	rec := doRequest(t, router, http.MethodGet, "/mcp", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "method not allowed")
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, false)

	rec := doRequest(t, router, http.MethodOptions, "/mcp", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestHealthReportsComponents(t *testing.T) {
	router := newTestRouter(t, true)

	rec := doRequest(t, router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	components := body["components"].(map[string]interface{})
	assert.Equal(t, "healthy", components["store"])
	assert.Contains(t, components["index"], "Task API")
}

func TestHealthBeforeIngest(t *testing.T) {
	router := newTestRouter(t, false)

	rec := doRequest(t, router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	components := decodeBody(t, rec)["components"].(map[string]interface{})
	assert.Equal(t, "no document active", components["index"])
}

func TestMetricsAfterToolCall(t *testing.T) {
	router := newTestRouter(t, true)

	doRequest(t, router, http.MethodPost, "/mcp",
		`{"jsonrpc": "2.0", "id": 4, "method": "tools/call",
		  "params": {"name": "searchEndpoints", "arguments": {"keywords": "tasks"}}}`)

	rec := doRequest(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "CLOSED", body["breaker_state"])
	tools := body["tools"].(map[string]interface{})
	assert.Equal(t, float64(1), tools["total_calls"])
	cache := body["cache"].(map[string]interface{})
	assert.Equal(t, "memory", cache["backend"])
}

func TestDocsPage(t *testing.T) {
	router := newTestRouter(t, true)

	rec := doRequest(t, router, http.MethodGet, "/docs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Task API")
	assert.Contains(t, rec.Body.String(), "/tasks")
}

func TestDocsUnavailableBeforeIngest(t *testing.T) {
	router := newTestRouter(t, false)

	rec := doRequest(t, router, http.MethodGet, "/docs", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "no document")
}

func TestNotFoundIsJSON(t *testing.T) {
	router := newTestRouter(t, false)

	rec := doRequest(t, router, http.MethodGet, "/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "/nope")
}

func TestRequestIDPropagation(t *testing.T) {
	router := newTestRouter(t, false)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "fixed-req-id")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "fixed-req-id", rec.Header().Get("X-Request-ID"))

	// generated when absent
	rec = doRequest(t, router, http.MethodGet, "/health", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRootDescribesServer(t *testing.T) {
	router := newTestRouter(t, false)

	rec := doRequest(t, router, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, mcp.ServerName, body["name"])
	assert.Equal(t, "/mcp", body["endpoints"].(map[string]interface{})["mcp"])
}
