package gateway

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statuswatch/status-monitor-backend/bus"
	"github.com/statuswatch/status-monitor-backend/eventlog"
	"github.com/statuswatch/status-monitor-backend/types"
)

func newTestGateway(t *testing.T, replayDepth int, origins []string) (*Gateway, *bus.Bus, string) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	eventBus := bus.New(bus.Options{QueueDepth: 64}, eventlog.New(64), logger)
	g := New(Options{ReplayDepth: replayDepth, AllowedOrigins: origins}, eventBus, logger)

	server := httptest.NewServer(http.HandlerFunc(g.HandleWebSocket))
	t.Cleanup(server.Close)
	t.Cleanup(func() { eventBus.Close() })

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return g, eventBus, wsURL
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) eventMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg eventMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func changeEvent(source, entryID string) types.ChangeEvent {
	return types.ChangeEvent{
		Source:     source,
		Kind:       types.EventNewEntry,
		DetectedAt: time.Now().UTC(),
		EntryID:    entryID,
		Title:      "Incident " + entryID,
	}
}

func TestGatewayStreamsLiveEvents(t *testing.T) {
	_, eventBus, url := newTestGateway(t, 0, []string{"*"})
	conn := dial(t, url)

	// Wait until the handler has registered its subscription.
	require.Eventually(t, func() bool { return eventBus.SubscriberCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	eventBus.Publish(changeEvent("openai", "incident-1"))

	msg := readEnvelope(t, conn)
	assert.Equal(t, "event", msg.Type)
	assert.False(t, msg.Replay)
	assert.Equal(t, "incident-1", msg.Data.EntryID)
	assert.Equal(t, "openai", msg.Data.Source)
}

func TestGatewayReplaysBacklogOldestFirst(t *testing.T) {
	_, eventBus, url := newTestGateway(t, 2, []string{"*"})

	eventBus.Publish(changeEvent("openai", "incident-1"))
	eventBus.Publish(changeEvent("openai", "incident-2"))
	eventBus.Publish(changeEvent("openai", "incident-3"))

	conn := dial(t, url)

	// Replay depth 2: the two most recent events, oldest first.
	first := readEnvelope(t, conn)
	assert.True(t, first.Replay)
	assert.Equal(t, "incident-2", first.Data.EntryID)

	second := readEnvelope(t, conn)
	assert.True(t, second.Replay)
	assert.Equal(t, "incident-3", second.Data.EntryID)

	// Live events follow the replayed backlog unflagged.
	require.Eventually(t, func() bool { return eventBus.SubscriberCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	eventBus.Publish(changeEvent("openai", "incident-4"))

	live := readEnvelope(t, conn)
	assert.False(t, live.Replay)
	assert.Equal(t, "incident-4", live.Data.EntryID)
}

func TestGatewayMultipleClientsEachReceive(t *testing.T) {
	_, eventBus, url := newTestGateway(t, 0, []string{"*"})

	connA := dial(t, url)
	connB := dial(t, url)
	require.Eventually(t, func() bool { return eventBus.SubscriberCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	eventBus.Publish(changeEvent("github", "incident-7"))

	assert.Equal(t, "incident-7", readEnvelope(t, connA).Data.EntryID)
	assert.Equal(t, "incident-7", readEnvelope(t, connB).Data.EntryID)
}

func TestGatewayDisconnectCleansUp(t *testing.T) {
	g, eventBus, url := newTestGateway(t, 0, []string{"*"})
	conn := dial(t, url)

	require.Eventually(t, func() bool { return eventBus.SubscriberCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, g.ConnectionCount())

	conn.Close()

	require.Eventually(t, func() bool { return eventBus.SubscriberCount() == 0 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return g.ConnectionCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestGatewayClosesClientsOnBusShutdown(t *testing.T) {
	_, eventBus, url := newTestGateway(t, 0, []string{"*"})
	conn := dial(t, url)

	require.Eventually(t, func() bool { return eventBus.SubscriberCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	eventBus.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
}

func TestGatewayOriginFiltering(t *testing.T) {
	_, _, url := newTestGateway(t, 0, []string{"http://dashboard.example.com"})

	// Disallowed browser origin: handshake is refused.
	header := http.Header{"Origin": []string{"http://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Listed origin connects.
	header = http.Header{"Origin": []string{"http://dashboard.example.com"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()

	// No origin header (non-browser client) connects.
	conn2, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	conn2.Close()
}

func TestDeliveryErrorWraps(t *testing.T) {
	cause := errors.New("broken pipe")
	err := &DeliveryError{ClientID: "abc", Err: cause}

	assert.Contains(t, err.Error(), "abc")
	assert.True(t, errors.Is(err, cause))
}
