package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raaihank/vibeguard/internal/privacy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func allEvents() *HubConfig {
	return &HubConfig{
		BroadcastRedactions:  true,
		BroadcastRequests:    true,
		BroadcastSystem:      true,
		BroadcastConnections: false,
	}
}

func redactionEvent(categories ...string) Event {
	findings := make([]privacy.Finding, len(categories))
	for i, c := range categories {
		findings[i] = privacy.Finding{Category: c, Count: 1}
	}
	return Event{Type: EventTypeRedaction, Data: RedactionEvent{Findings: findings}}
}

func TestShouldSendToClient(t *testing.T) {
	client := &Client{}
	assert.True(t, shouldSendToClient(client, redactionEvent("EMAIL")))

	client.Subscription = &SubscriptionRequest{Events: []EventType{EventTypeRequestLog}}
	assert.False(t, shouldSendToClient(client, redactionEvent("EMAIL")))
	assert.True(t, shouldSendToClient(client, Event{Type: EventTypeRequestLog}))

	client.Subscription = &SubscriptionRequest{Categories: []string{"API_KEY"}}
	assert.False(t, shouldSendToClient(client, redactionEvent("EMAIL")))
	assert.True(t, shouldSendToClient(client, redactionEvent("EMAIL", "API_KEY")))
	assert.True(t, shouldSendToClient(client, Event{Type: EventTypeSystemStatus}))
}

func TestShouldBroadcastEvent(t *testing.T) {
	hub := NewHub(allEvents(), zap.NewNop())
	assert.True(t, hub.shouldBroadcastEvent(EventTypeRedaction))
	assert.True(t, hub.shouldBroadcastEvent(EventTypeRestoration))
	assert.False(t, hub.shouldBroadcastEvent(EventTypeConnection))
	assert.False(t, hub.shouldBroadcastEvent(EventTypePong))

	assert.False(t, NewHub(nil, zap.NewNop()).shouldBroadcastEvent(EventTypeRedaction))
}

func TestAuthorized(t *testing.T) {
	hub := NewHub(&HubConfig{Username: "admin", Password: "pw"}, zap.NewNop())

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.False(t, hub.authorized(r))

	r.SetBasicAuth("admin", "wrong")
	assert.False(t, hub.authorized(r))

	r.SetBasicAuth("admin", "pw")
	assert.True(t, hub.authorized(r))

	assert.True(t, NewHub(allEvents(), zap.NewNop()).authorized(httptest.NewRequest(http.MethodGet, "/ws", nil)))
}

func TestHubBroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(allEvents(), zap.NewNop())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.GetStats().ActiveConnections == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.BroadcastEvent(redactionEvent("EMAIL"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got map[string]any
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, string(EventTypeRedaction), got["type"])

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "ping"}))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, string(EventTypePong), got["type"])
}

func TestHubRejectsBadCredentials(t *testing.T) {
	hub := NewHub(&HubConfig{Username: "admin", Password: "pw"}, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
