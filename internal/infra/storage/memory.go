package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lusia-studio/cli/internal/domain"
)

// MemoryStorage implements TranscriptStorage using in-memory storage.
// This allows transcript caching to work without persistent storage.
type MemoryStorage struct {
	transcripts map[string]transcriptData
	mutex       sync.RWMutex
}

type transcriptData struct {
	messages []domain.ChatMessage
	metadata TranscriptMetadata
}

// NewMemoryStorage creates a new in-memory storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		transcripts: make(map[string]transcriptData),
	}
}

// SaveTranscript stores a conversation's messages and metadata
func (m *MemoryStorage) SaveTranscript(ctx context.Context, conversationID string, messages []domain.ChatMessage, metadata TranscriptMetadata) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	metadata.UpdatedAt = time.Now()
	metadata.MessageCount = len(messages)

	messagesCopy := make([]domain.ChatMessage, len(messages))
	copy(messagesCopy, messages)

	m.transcripts[conversationID] = transcriptData{
		messages: messagesCopy,
		metadata: metadata,
	}

	return nil
}

// LoadTranscript loads a cached transcript by conversation ID
func (m *MemoryStorage) LoadTranscript(ctx context.Context, conversationID string) ([]domain.ChatMessage, TranscriptMetadata, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	data, exists := m.transcripts[conversationID]
	if !exists {
		return nil, TranscriptMetadata{}, fmt.Errorf("transcript not found: %s", conversationID)
	}

	messagesCopy := make([]domain.ChatMessage, len(data.messages))
	copy(messagesCopy, data.messages)

	return messagesCopy, data.metadata, nil
}

// ListTranscripts returns cached transcript summaries, newest first
func (m *MemoryStorage) ListTranscripts(ctx context.Context, limit, offset int) ([]TranscriptSummary, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	summaries := make([]TranscriptSummary, 0, len(m.transcripts))
	for _, data := range m.transcripts {
		summaries = append(summaries, TranscriptSummary{
			ID:           data.metadata.ID,
			Title:        data.metadata.Title,
			CreatedAt:    data.metadata.CreatedAt,
			UpdatedAt:    data.metadata.UpdatedAt,
			MessageCount: data.metadata.MessageCount,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})

	if offset >= len(summaries) {
		return []TranscriptSummary{}, nil
	}

	if limit <= 0 {
		return summaries[offset:], nil
	}

	end := min(offset+limit, len(summaries))
	return summaries[offset:end], nil
}

// DeleteTranscript removes a cached transcript
func (m *MemoryStorage) DeleteTranscript(ctx context.Context, conversationID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.transcripts[conversationID]; !exists {
		return fmt.Errorf("transcript not found: %s", conversationID)
	}

	delete(m.transcripts, conversationID)
	return nil
}

// Close closes the storage connection (no-op for memory storage)
func (m *MemoryStorage) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.transcripts = make(map[string]transcriptData)
	return nil
}

// Health checks if the storage is healthy and reachable
func (m *MemoryStorage) Health(ctx context.Context) error {
	return nil
}
