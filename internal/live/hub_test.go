package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"order-status-tracker/internal/logger"
	"order-status-tracker/internal/model"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()

	hub := NewHub(nil, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orderID := uint(456)
		if r.URL.Query().Get("order") == "457" {
			orderID = 457
		}
		_ = hub.Serve(w, r, orderID)
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, srv, cancel
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversToOrderRoomOnly(t *testing.T) {
	hub, srv, _ := startHub(t)

	watcher := dial(t, srv, "order=456")
	other := dial(t, srv, "order=457")
	require.Eventually(t, func() bool {
		return hub.ClientCount(456) == 1 && hub.ClientCount(457) == 1
	}, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, hub.PublishStatus(ctx, model.StatusEvent{OrderID: 456, NewStatus: model.StatusReady, Version: 4}))

	watcher.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := watcher.ReadMessage()
	require.NoError(t, err)

	var event model.StatusEvent
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, uint(456), event.OrderID)
	assert.Equal(t, model.StatusReady, event.NewStatus)
	assert.Equal(t, uint64(4), event.Version)

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = other.ReadMessage()
	assert.Error(t, err)
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub, srv, _ := startHub(t)

	conn := dial(t, srv, "order=456")
	require.Eventually(t, func() bool { return hub.ClientCount(456) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool { return hub.ClientCount(456) == 0 }, time.Second, 5*time.Millisecond)
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub, srv, cancel := startHub(t)

	conn := dial(t, srv, "order=456")
	require.Eventually(t, func() bool { return hub.ClientCount(456) == 1 }, time.Second, 5*time.Millisecond)

	cancel()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	assert.Eventually(t, func() bool {
		return hub.PublishStatus(context.Background(), model.StatusEvent{OrderID: 456}) == ErrHubClosed
	}, time.Second, 5*time.Millisecond)
}
