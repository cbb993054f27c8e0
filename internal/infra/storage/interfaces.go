package storage

import (
	"context"
	"time"

	"github.com/lusia-studio/cli/internal/domain"
)

// TranscriptStorage is the local cache of chat transcripts so previous
// conversations can be browsed without contacting the backend
type TranscriptStorage interface {
	// SaveTranscript stores a conversation's messages and metadata
	SaveTranscript(ctx context.Context, conversationID string, messages []domain.ChatMessage, metadata TranscriptMetadata) error

	// LoadTranscript loads a cached transcript by conversation ID
	LoadTranscript(ctx context.Context, conversationID string) ([]domain.ChatMessage, TranscriptMetadata, error)

	// ListTranscripts returns cached transcript summaries, newest first
	ListTranscripts(ctx context.Context, limit, offset int) ([]TranscriptSummary, error)

	// DeleteTranscript removes a cached transcript
	DeleteTranscript(ctx context.Context, conversationID string) error

	// Close closes the storage connection
	Close() error

	// Health checks if the storage is healthy and reachable
	Health(ctx context.Context) error
}

// TranscriptMetadata contains metadata about a cached transcript
type TranscriptMetadata struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// TranscriptSummary contains summary information about a cached transcript
type TranscriptSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}
