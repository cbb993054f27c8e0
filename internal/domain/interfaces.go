package domain

import (
	"context"
	"io"
)

// ChatStreamer opens message streams against the backend
type ChatStreamer interface {
	// StreamMessage sends a message and returns the raw SSE body.
	// A non-success response is returned as an error carrying the
	// response's error text.
	StreamMessage(ctx context.Context, conversationID string, req SendMessageRequest) (io.ReadCloser, error)
}

// DocumentService covers the document processing boundary: status
// polling, snapshots, retry and the one-shot full-record fetch.
type DocumentService interface {
	GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error)
	ListProcessing(ctx context.Context) ([]Artifact, error)
	RetryArtifact(ctx context.Context, artifactID string) (*JobStatus, error)
	GetArtifact(ctx context.Context, artifactID string) (*Artifact, error)
}

// ConversationService covers conversation management
type ConversationService interface {
	CreateConversation(ctx context.Context, title string) (*Conversation, error)
	ListConversations(ctx context.Context) ([]Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]ChatMessage, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}
