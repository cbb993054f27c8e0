// Package realtime provides the push channel: a server-driven
// subscription keyed by table and row filter, delivering row-updated
// events. Two transports are supported, selected by configuration.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
)

// RowEvent is one "row updated" notification. Only the fields the
// client reads are decoded; everything else in the payload is ignored.
type RowEvent struct {
	Table            string `json:"table,omitempty"`
	ID               string `json:"id"`
	IsProcessed      bool   `json:"is_processed"`
	ProcessingFailed bool   `json:"processing_failed"`
	ProcessingError  string `json:"processing_error,omitempty"`
}

// PushChannel is a subscription transport for row-updated events
type PushChannel interface {
	// Subscribe opens a subscription scoped to (table, filter). The
	// returned channel is closed when the subscription ends.
	Subscribe(ctx context.Context, table, filter string) (<-chan RowEvent, error)

	// Close tears down the transport; pending subscriptions end.
	Close() error
}

// decodeRowEvent parses a raw notification payload. Malformed payloads
// are reported so callers can drop them and continue.
func decodeRowEvent(table string, payload []byte) (RowEvent, error) {
	var event RowEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return RowEvent{}, fmt.Errorf("failed to decode row event: %w", err)
	}
	if event.ID == "" {
		return RowEvent{}, fmt.Errorf("row event missing id")
	}
	event.Table = table
	return event, nil
}
