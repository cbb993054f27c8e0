package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// realtimeServer is a minimal websocket server speaking the backend's
// realtime protocol: it records the join message and pushes scripted
// frames back.
type realtimeServer struct {
	t      *testing.T
	joins  chan wsMessage
	auth   chan string
	frames []string
}

func newRealtimeServer(t *testing.T, frames ...string) (*realtimeServer, string) {
	s := &realtimeServer{
		t:      t,
		joins:  make(chan wsMessage, 1),
		auth:   make(chan string, 1),
		frames: frames,
	}

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.auth <- r.Header.Get("Authorization")

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer func() {
			_ = conn.Close()
		}()

		var join wsMessage
		require.NoError(t, conn.ReadJSON(&join))
		s.joins <- join

		for _, frame := range s.frames {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
		}

		// hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	return s, "ws" + strings.TrimPrefix(server.URL, "http")
}

func recordFrame(t *testing.T, event RowEvent) string {
	record, err := json.Marshal(event)
	require.NoError(t, err)

	frame, err := json.Marshal(wsMessage{Event: wsEventUpdate, Record: record})
	require.NoError(t, err)
	return string(frame)
}

func waitForEvent(t *testing.T, events <-chan RowEvent) RowEvent {
	t.Helper()

	select {
	case event, ok := <-events:
		require.True(t, ok, "event channel closed unexpectedly")
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for row event")
		return RowEvent{}
	}
}

func TestWebsocketChannelSubscribe(t *testing.T) {
	server, url := newRealtimeServer(t,
		recordFrame(t, RowEvent{ID: "a1", IsProcessed: true}),
	)

	channel := NewWebsocketChannel(url, "secret-key")
	defer func() {
		_ = channel.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := channel.Subscribe(ctx, "artifacts", "owner=u1")
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-key", <-server.auth)

	join := <-server.joins
	assert.Equal(t, wsEventSubscribe, join.Event)
	assert.Equal(t, "artifacts", join.Table)
	assert.Equal(t, "owner=u1", join.Filter)

	event := waitForEvent(t, events)
	assert.Equal(t, "a1", event.ID)
	assert.True(t, event.IsProcessed)
	assert.Equal(t, "artifacts", event.Table)
}

func TestWebsocketChannelSkipsNonUpdateAndMalformed(t *testing.T) {
	_, url := newRealtimeServer(t,
		`{"event":"heartbeat"}`,
		`not even json`,
		`{"event":"UPDATE","record":{"is_processed":true}}`,
		recordFrame(t, RowEvent{ID: "a2", ProcessingFailed: true, ProcessingError: "boom"}),
	)

	channel := NewWebsocketChannel(url, "")
	defer func() {
		_ = channel.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := channel.Subscribe(ctx, "artifacts", "")
	require.NoError(t, err)

	event := waitForEvent(t, events)
	assert.Equal(t, "a2", event.ID)
	assert.True(t, event.ProcessingFailed)
	assert.Equal(t, "boom", event.ProcessingError)
}

func TestWebsocketChannelSubscribeAfterClose(t *testing.T) {
	_, url := newRealtimeServer(t)

	channel := NewWebsocketChannel(url, "")
	require.NoError(t, channel.Close())

	_, err := channel.Subscribe(context.Background(), "artifacts", "")
	assert.Error(t, err)
}

func TestWebsocketChannelDialFailure(t *testing.T) {
	channel := NewWebsocketChannel("ws://127.0.0.1:1/realtime", "")
	defer func() {
		_ = channel.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := channel.Subscribe(ctx, "artifacts", "")
	assert.Error(t, err)
}
