package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lusia-studio/cli/config"
)

func newTestSQLiteStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	store, err := NewSQLiteStorage(config.SQLiteConfig{
		Path: filepath.Join(t.TempDir(), "transcripts.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestSQLiteStorageSaveAndLoad(t *testing.T) {
	store := newTestSQLiteStorage(t)
	ctx := context.Background()

	metadata := TranscriptMetadata{ID: "conv-1", Title: "Greetings"}
	require.NoError(t, store.SaveTranscript(ctx, "conv-1", sampleMessages(), metadata))

	messages, loaded, err := store.LoadTranscript(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, "hi there", messages[1].Content)
	assert.Equal(t, "Greetings", loaded.Title)
	assert.Equal(t, 2, loaded.MessageCount)
}

func TestSQLiteStorageUpsert(t *testing.T) {
	store := newTestSQLiteStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTranscript(ctx, "conv-1", sampleMessages(),
		TranscriptMetadata{ID: "conv-1", Title: "First"}))

	updated := append(sampleMessages(), sampleMessages()...)
	require.NoError(t, store.SaveTranscript(ctx, "conv-1", updated,
		TranscriptMetadata{ID: "conv-1", Title: "Second"}))

	messages, metadata, err := store.LoadTranscript(ctx, "conv-1")
	require.NoError(t, err)
	assert.Len(t, messages, 4)
	assert.Equal(t, "Second", metadata.Title)

	summaries, err := store.ListTranscripts(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestSQLiteStorageListOrdersByUpdatedAt(t *testing.T) {
	store := newTestSQLiteStorage(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("conv-%d", i)
		require.NoError(t, store.SaveTranscript(ctx, id, sampleMessages(),
			TranscriptMetadata{ID: id, Title: id}))
		time.Sleep(2 * time.Millisecond)
	}

	summaries, err := store.ListTranscripts(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, "conv-3", summaries[0].ID)
	assert.Equal(t, "conv-1", summaries[2].ID)

	page, err := store.ListTranscripts(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "conv-2", page[0].ID)
}

func TestSQLiteStorageDelete(t *testing.T) {
	store := newTestSQLiteStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTranscript(ctx, "conv-1", sampleMessages(),
		TranscriptMetadata{ID: "conv-1"}))

	require.NoError(t, store.DeleteTranscript(ctx, "conv-1"))
	_, _, err := store.LoadTranscript(ctx, "conv-1")
	assert.Error(t, err)

	assert.Error(t, store.DeleteTranscript(ctx, "conv-1"))
}

func TestSQLiteStorageHealth(t *testing.T) {
	store := newTestSQLiteStorage(t)
	assert.NoError(t, store.Health(context.Background()))
}

func TestStorageFactory(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.StorageConfig
		expectError bool
	}{
		{name: "empty defaults to memory", cfg: config.StorageConfig{}},
		{name: "memory", cfg: config.StorageConfig{Type: "memory"}},
		{name: "unknown type", cfg: config.StorageConfig{Type: "etcd"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewStorage(tt.cfg)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, store.Close())
		})
	}
}

func TestStorageFactorySQLite(t *testing.T) {
	store, err := NewStorage(config.StorageConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "t.db")},
	})
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}
