package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentResourceBeforeActivation(t *testing.T) {
	s := newTestServer(t)

	contents, err := s.handleResourceRead(context.Background(), ResourceDocument)
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.JSONEq(t, `{"active": false}`, contents[0].Text)
}

func TestDocumentResource(t *testing.T) {
	s := newActiveServer(t)

	contents, err := s.handleResourceRead(context.Background(), ResourceDocument)
	require.NoError(t, err)
	require.Len(t, contents, 1)

	var payload struct {
		Active    bool `json:"active"`
		Endpoints int  `json:"endpoints"`
		Schemas   int  `json:"schemas"`
		Document  struct {
			Title string `json:"title"`
		} `json:"document"`
	}
	require.NoError(t, json.Unmarshal([]byte(contents[0].Text), &payload))
	assert.True(t, payload.Active)
	assert.Equal(t, "User API", payload.Document.Title)
	assert.Equal(t, 4, payload.Endpoints)
	assert.Equal(t, 3, payload.Schemas)
}

func TestStatsResource(t *testing.T) {
	s := newActiveServer(t)

	contents, err := s.handleResourceRead(context.Background(), ResourceStats)
	require.NoError(t, err)
	require.Len(t, contents, 1)

	var payload struct {
		Store struct {
			Documents int `json:"documents"`
			Endpoints int `json:"endpoints"`
		} `json:"store"`
		Cache struct {
			Backend string `json:"backend"`
		} `json:"cache"`
	}
	require.NoError(t, json.Unmarshal([]byte(contents[0].Text), &payload))
	assert.Equal(t, 1, payload.Store.Documents)
	assert.Equal(t, 4, payload.Store.Endpoints)
	assert.Equal(t, "memory", payload.Cache.Backend)
}

func TestUnknownResourceURI(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handleResourceRead(context.Background(), "openapi://nope")
	assert.Error(t, err)
}
