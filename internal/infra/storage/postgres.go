package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/lusia-studio/cli/config"
	"github.com/lusia-studio/cli/internal/domain"
)

// PostgresStorage implements TranscriptStorage using PostgreSQL
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(cfg config.PostgresConfig) (*PostgresStorage, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.Username, cfg.Password, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	storage := &PostgresStorage{db: db}

	if err := storage.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcripts (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		count INTEGER NOT NULL DEFAULT 0,
		messages JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transcripts_updated_at ON transcripts(updated_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveTranscript stores a conversation's messages and metadata
func (s *PostgresStorage) SaveTranscript(ctx context.Context, conversationID string, messages []domain.ChatMessage, metadata TranscriptMetadata) error {
	messagesJSON, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	metadata.UpdatedAt = time.Now()
	if metadata.CreatedAt.IsZero() {
		metadata.CreatedAt = metadata.UpdatedAt
	}

	query := `
	INSERT INTO transcripts (id, title, count, messages, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT(id) DO UPDATE SET
		title = EXCLUDED.title,
		count = EXCLUDED.count,
		messages = EXCLUDED.messages,
		updated_at = EXCLUDED.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		conversationID, metadata.Title, len(messages), string(messagesJSON),
		metadata.CreatedAt, metadata.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}

	return nil
}

// LoadTranscript loads a cached transcript by conversation ID
func (s *PostgresStorage) LoadTranscript(ctx context.Context, conversationID string) ([]domain.ChatMessage, TranscriptMetadata, error) {
	query := `SELECT id, title, count, messages, created_at, updated_at FROM transcripts WHERE id = $1`

	var metadata TranscriptMetadata
	var messagesJSON []byte

	err := s.db.QueryRowContext(ctx, query, conversationID).Scan(
		&metadata.ID, &metadata.Title, &metadata.MessageCount,
		&messagesJSON, &metadata.CreatedAt, &metadata.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, TranscriptMetadata{}, fmt.Errorf("transcript not found: %s", conversationID)
	}
	if err != nil {
		return nil, TranscriptMetadata{}, fmt.Errorf("failed to load transcript: %w", err)
	}

	var messages []domain.ChatMessage
	if err := json.Unmarshal(messagesJSON, &messages); err != nil {
		return nil, TranscriptMetadata{}, fmt.Errorf("failed to unmarshal messages: %w", err)
	}

	return messages, metadata, nil
}

// ListTranscripts returns cached transcript summaries, newest first
func (s *PostgresStorage) ListTranscripts(ctx context.Context, limit, offset int) ([]TranscriptSummary, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
	SELECT id, title, count, created_at, updated_at
	FROM transcripts
	ORDER BY updated_at DESC
	LIMIT $1 OFFSET $2
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var summaries []TranscriptSummary
	for rows.Next() {
		var summary TranscriptSummary
		if err := rows.Scan(&summary.ID, &summary.Title, &summary.MessageCount,
			&summary.CreatedAt, &summary.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		summaries = append(summaries, summary)
	}

	return summaries, rows.Err()
}

// DeleteTranscript removes a cached transcript
func (s *PostgresStorage) DeleteTranscript(ctx context.Context, conversationID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("transcript not found: %s", conversationID)
	}

	return nil
}

// Close closes the storage connection
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// Health checks if the storage is healthy and reachable
func (s *PostgresStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
