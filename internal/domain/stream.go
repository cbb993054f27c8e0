package domain

import (
	"encoding/json"
	"fmt"
)

// FrameType identifies one kind of decoded chat stream frame
type FrameType string

const (
	FrameRunStatus    FrameType = "run_status"
	FrameToken        FrameType = "token"
	FrameToolCall     FrameType = "tool_call"
	FrameToolCallArgs FrameType = "tool_call_args"
	FrameToolResult   FrameType = "tool_result"
	FrameError        FrameType = "error"
)

// Run status values carried by run_status frames
const (
	RunStatusStreaming = "streaming"
	RunStatusDone      = "done"
)

// StreamFrame is one decoded unit of the chat streaming protocol.
// The Type tag selects which of the remaining fields are meaningful:
//
//	run_status:     Status, RunID
//	token:          Delta, RunID
//	tool_call:      Name, RunID (Args may be absent)
//	tool_call_args: Name, Args, RunID
//	tool_result:    Name, Content, RunID
//	error:          Message
type StreamFrame struct {
	Type    FrameType       `json:"type"`
	Status  string          `json:"status,omitempty"`
	Delta   string          `json:"delta,omitempty"`
	Name    string          `json:"name,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
	Content string          `json:"content,omitempty"`
	Message string          `json:"message,omitempty"`
	RunID   string          `json:"run_id,omitempty"`
}

// DecodeFrame decodes a raw SSE payload into a StreamFrame.
// Unknown frame types are rejected so callers can drop them.
func DecodeFrame(data []byte) (StreamFrame, error) {
	var frame StreamFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return StreamFrame{}, fmt.Errorf("failed to decode stream frame: %w", err)
	}

	switch frame.Type {
	case FrameRunStatus, FrameToken, FrameToolCall, FrameToolCallArgs, FrameToolResult, FrameError:
		return frame, nil
	default:
		return StreamFrame{}, fmt.Errorf("unknown frame type: %q", frame.Type)
	}
}

// StreamStatus is the lifecycle status of a chat stream session
type StreamStatus string

const (
	StreamIdle      StreamStatus = "idle"
	StreamStreaming StreamStatus = "streaming"
	StreamDone      StreamStatus = "done"
	StreamErrored   StreamStatus = "error"
)

// ToolCallState tracks one tool invocation through its lifecycle:
// created on tool_call, args filled on tool_call_args, finalized on
// tool_result.
type ToolCallState struct {
	Name    string          `json:"name"`
	Started bool            `json:"started"`
	Args    json.RawMessage `json:"args,omitempty"`
	Final   bool            `json:"final"`
	Result  string          `json:"result,omitempty"`
}

// ToolCallView pairs a disambiguated key (name, name-2, ...) with its state
type ToolCallView struct {
	Key   string
	State ToolCallState
}
