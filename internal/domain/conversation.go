package domain

import (
	"encoding/json"
	"time"
)

// Conversation is a chat conversation as returned by the backend
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is one stored message of a conversation transcript
type ChatMessage struct {
	ID        string          `json:"id,omitempty"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	CreatedAt time.Time       `json:"created_at,omitempty"`
}

// SendMessageRequest is the body of the chat stream endpoint
type SendMessageRequest struct {
	Message string   `json:"message"`
	Images  []string `json:"images,omitempty"`
}
