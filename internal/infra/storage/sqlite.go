package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lusia-studio/cli/config"
	"github.com/lusia-studio/cli/internal/domain"
)

// SQLiteStorage implements TranscriptStorage using SQLite
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(cfg config.SQLiteConfig) (*SQLiteStorage, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	storage := &SQLiteStorage{
		db:   db,
		path: cfg.Path,
	}

	if err := storage.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcripts (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		count INTEGER NOT NULL DEFAULT 0,
		messages TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transcripts_updated_at ON transcripts(updated_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveTranscript stores a conversation's messages and metadata
func (s *SQLiteStorage) SaveTranscript(ctx context.Context, conversationID string, messages []domain.ChatMessage, metadata TranscriptMetadata) error {
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
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		count = excluded.count,
		messages = excluded.messages,
		updated_at = excluded.updated_at
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
func (s *SQLiteStorage) LoadTranscript(ctx context.Context, conversationID string) ([]domain.ChatMessage, TranscriptMetadata, error) {
	query := `SELECT id, title, count, messages, created_at, updated_at FROM transcripts WHERE id = ?`

	var metadata TranscriptMetadata
	var messagesJSON string

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
	if err := json.Unmarshal([]byte(messagesJSON), &messages); err != nil {
		return nil, TranscriptMetadata{}, fmt.Errorf("failed to unmarshal messages: %w", err)
	}

	return messages, metadata, nil
}

// ListTranscripts returns cached transcript summaries, newest first
func (s *SQLiteStorage) ListTranscripts(ctx context.Context, limit, offset int) ([]TranscriptSummary, error) {
	if limit <= 0 {
		limit = -1
	}

	query := `
	SELECT id, title, count, created_at, updated_at
	FROM transcripts
	ORDER BY updated_at DESC
	LIMIT ? OFFSET ?
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
func (s *SQLiteStorage) DeleteTranscript(ctx context.Context, conversationID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE id = ?`, conversationID)
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
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Health checks if the storage is healthy and reachable
func (s *SQLiteStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
