package domain

import "time"

// ChatEvent is the interface implemented by all chat session events
type ChatEvent interface {
	GetRunID() string
	GetTimestamp() time.Time
}

// BaseChatEvent provides common implementation for ChatEvent
type BaseChatEvent struct {
	RunID     string
	Timestamp time.Time
}

func (e BaseChatEvent) GetRunID() string        { return e.RunID }
func (e BaseChatEvent) GetTimestamp() time.Time { return e.Timestamp }

// ChatStartEvent indicates a stream session has started
type ChatStartEvent struct {
	BaseChatEvent
	ConversationID string
}

// ChatChunkEvent carries one incremental token delta
type ChatChunkEvent struct {
	BaseChatEvent
	Delta string
}

// ToolCallUpdateEvent indicates a tool invocation changed phase
type ToolCallUpdateEvent struct {
	BaseChatEvent
	Key   string
	State ToolCallState
}

// ChatCompleteEvent indicates the stream finished normally
type ChatCompleteEvent struct {
	BaseChatEvent
	Text      string
	ToolCalls []ToolCallView
}

// ChatErrorEvent indicates the stream failed
type ChatErrorEvent struct {
	BaseChatEvent
	Error error
}
