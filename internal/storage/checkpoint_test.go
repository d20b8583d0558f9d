package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Veraticus/the-model-must-learn/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCheckpoint(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.SaveTrainingExample(ctx, newTestExample(i, "order_food", model.DispositionAutoApproved)))
	}

	dir := filepath.Join(t.TempDir(), "checkpoints")
	info, err := store.CreateCheckpoint(ctx, dir, "before-retrain", "manual snapshot")
	require.NoError(t, err)

	assert.Equal(t, "before-retrain", info.ID)
	assert.Equal(t, 3, info.RowCounts["training_examples"])
	assert.Equal(t, 0, info.RowCounts["corrections"])
	assert.Positive(t, info.FileSize)
	assert.FileExists(t, filepath.Join(dir, "before-retrain.db"))
	assert.FileExists(t, filepath.Join(dir, "before-retrain.meta.json"))

	snapshot, err := NewSQLiteStorage(info.Path)
	require.NoError(t, err)
	defer func() { _ = snapshot.Close() }()

	examples, err := snapshot.ListTrainableExamples(ctx)
	require.NoError(t, err)
	assert.Len(t, examples, 3)
}

func TestCreateCheckpoint_Errors(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	dir := t.TempDir()

	_, err := store.CreateCheckpoint(ctx, dir, "../escape", "")
	require.ErrorIs(t, err, ErrInvalidCheckpoint)

	_, err = store.CreateCheckpoint(ctx, dir, "once", "")
	require.NoError(t, err)
	_, err = store.CreateCheckpoint(ctx, dir, "once", "")
	require.ErrorIs(t, err, ErrCheckpointExists)
}

func TestListCheckpoints(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	dir := t.TempDir()

	_, err := store.CreateCheckpoint(ctx, dir, "first", "")
	require.NoError(t, err)
	_, err = store.CreateCheckpoint(ctx, dir, "second", "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.meta.json"), []byte("{"), 0600))

	list, err := ListCheckpoints(dir)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].ID)
	assert.Equal(t, filepath.Join(dir, "first.db"), list[1].Path)

	missing, err := ListCheckpoints(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}
