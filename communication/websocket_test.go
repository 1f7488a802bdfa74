package communication

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(EventRecommendation, map[string]string{"proposal_id": "UNI-1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event WSEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, EventRecommendation, event.Type)
	assert.Equal(t, "UNI-1", event.Payload.(map[string]interface{})["proposal_id"])
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastAfterClose(t *testing.T) {
	hub := NewHub(zap.NewNop())
	hub.Close()
	assert.NotPanics(t, func() { hub.Broadcast(EventStateChanged, "ready") })
}
