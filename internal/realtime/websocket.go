package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lusia-studio/cli/internal/logger"
)

const (
	wsEventSubscribe   = "subscribe"
	wsEventUnsubscribe = "unsubscribe"
	wsEventHeartbeat   = "heartbeat"
	wsEventUpdate      = "UPDATE"

	wsHeartbeatInterval = 30 * time.Second
	wsWriteTimeout      = 10 * time.Second
)

type wsMessage struct {
	Event  string          `json:"event"`
	Table  string          `json:"table,omitempty"`
	Filter string          `json:"filter,omitempty"`
	Record json.RawMessage `json:"record,omitempty"`
}

// WebsocketChannel implements PushChannel over the backend's realtime
// websocket endpoint. Each subscription holds its own connection so
// teardown of one scope never disturbs another.
type WebsocketChannel struct {
	url    string
	apiKey string
	dialer *websocket.Dialer

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

// NewWebsocketChannel creates a websocket push channel targeting url
func NewWebsocketChannel(url, apiKey string) *WebsocketChannel {
	return &WebsocketChannel{
		url:    url,
		apiKey: apiKey,
		dialer: websocket.DefaultDialer,
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// Subscribe dials the realtime endpoint and joins the (table, filter)
// channel. Row events are delivered until ctx ends or the transport
// closes.
func (w *WebsocketChannel) Subscribe(ctx context.Context, table, filter string) (<-chan RowEvent, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, fmt.Errorf("push channel is closed")
	}
	w.mu.Unlock()

	header := http.Header{}
	if w.apiKey != "" {
		header.Set("Authorization", "Bearer "+w.apiKey)
	}

	conn, resp, err := w.dialer.DialContext(ctx, w.url, header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return nil, fmt.Errorf("failed to dial realtime endpoint: %w", err)
	}

	join := wsMessage{Event: wsEventSubscribe, Table: table, Filter: filter}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(join); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to join channel: %w", err)
	}

	w.mu.Lock()
	w.conns[conn] = struct{}{}
	w.mu.Unlock()

	logger.FromContext(ctx).Debug("realtime subscription opened",
		zap.String("table", table),
		zap.String("filter", filter))

	events := make(chan RowEvent, 16)

	go w.writeLoop(ctx, conn)
	go w.readLoop(ctx, conn, table, events)

	return events, nil
}

// writeLoop owns all writes after the join: heartbeats on an interval
// and the unsubscribe message on teardown
func (w *WebsocketChannel) writeLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			_ = conn.WriteJSON(wsMessage{Event: wsEventUnsubscribe})
			w.drop(conn)
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(wsMessage{Event: wsEventHeartbeat}); err != nil {
				w.drop(conn)
				return
			}
		}
	}
}

func (w *WebsocketChannel) readLoop(ctx context.Context, conn *websocket.Conn, table string, events chan<- RowEvent) {
	defer close(events)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			logger.Debug("dropping malformed realtime message", "error", err)
			continue
		}

		if msg.Event != wsEventUpdate || len(msg.Record) == 0 {
			continue
		}

		event, err := decodeRowEvent(table, msg.Record)
		if err != nil {
			logger.Debug("dropping malformed row event", "error", err)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case events <- event:
		}
	}
}

// drop closes and forgets a connection
func (w *WebsocketChannel) drop(conn *websocket.Conn) {
	w.mu.Lock()
	delete(w.conns, conn)
	w.mu.Unlock()
	_ = conn.Close()
}

// Close tears down every open subscription
func (w *WebsocketChannel) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	for conn := range w.conns {
		_ = conn.Close()
	}
	w.conns = make(map[*websocket.Conn]struct{})
	return nil
}
