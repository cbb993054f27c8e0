package storage

import (
	"fmt"

	"github.com/lusia-studio/cli/config"
)

// NewStorage creates a new storage instance based on the provided configuration
func NewStorage(cfg config.StorageConfig) (TranscriptStorage, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "sqlite":
		return NewSQLiteStorage(cfg.SQLite)
	case "postgres":
		return NewPostgresStorage(cfg.Postgres)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
