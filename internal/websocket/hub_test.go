package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	return hub, cancel
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count stuck at %d, want %d", hub.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastsToRegisteredClient(t *testing.T) {
	hub, cancel := startHub(t)
	defer cancel()

	client := NewClient("c1", nil, hub, "")
	hub.Register(client)
	waitForClients(t, hub, 1)

	welcome := <-client.Send
	assert.Equal(t, EventConnection, welcome.Type)
	assert.Equal(t, "connected", welcome.Action)

	hub.Broadcast(NewEvent(EventIngest, "completed", "petstore", map[string]interface{}{"endpoints": 12}))

	select {
	case event := <-client.Send:
		assert.Equal(t, EventIngest, event.Type)
		assert.Equal(t, "petstore", event.Document)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestHubDocumentFilter(t *testing.T) {
	hub, cancel := startHub(t)
	defer cancel()

	petstore := NewClient("c1", nil, hub, "petstore")
	hub.Register(petstore)
	waitForClients(t, hub, 1)
	<-petstore.Send // welcome

	hub.Broadcast(NewEvent(EventIngest, "started", "billing", nil))
	hub.Broadcast(NewEvent(EventIngest, "started", "petstore", nil))

	select {
	case event := <-petstore.Send:
		assert.Equal(t, "petstore", event.Document, "billing event must be filtered out")
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestHubSystemEventsBypassFilter(t *testing.T) {
	hub, cancel := startHub(t)
	defer cancel()

	client := NewClient("c1", nil, hub, "petstore")
	hub.Register(client)
	waitForClients(t, hub, 1)
	<-client.Send // welcome

	hub.Broadcast(NewEvent(EventSystem, "shutdown", "", nil))

	select {
	case event := <-client.Send:
		assert.Equal(t, EventSystem, event.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("system event not delivered")
	}
}

func TestHubUnregister(t *testing.T) {
	hub, cancel := startHub(t)
	defer cancel()

	client := NewClient("c1", nil, hub, "")
	hub.Register(client)
	waitForClients(t, hub, 1)

	hub.Unregister(client)
	waitForClients(t, hub, 0)

	// channel is closed after removal
	for range client.Send {
	}
}

func TestServerStreamsOverRealConnection(t *testing.T) {
	hub, cancel := startHub(t)
	defer cancel()

	srv := httptest.NewServer(NewServer(hub, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?document=petstore"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	var welcome Event
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, EventConnection, welcome.Type)

	waitForClients(t, hub, 1)
	hub.Broadcast(NewEvent(EventTool, "called", "petstore", map[string]interface{}{"tool": "searchEndpoints"}))

	var event Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, EventTool, event.Type)
	assert.Equal(t, "petstore", event.Document)
}
