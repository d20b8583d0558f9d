package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/the-model-must-learn/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCorrection(n int, predicted, actual string, createdAt time.Time) *model.Correction {
	return &model.Correction{
		ID:                  makeTestID("corr", n),
		SessionID:           "session-1",
		OriginalText:        fmt.Sprintf("text %d", n%3),
		PredictedLabel:      predicted,
		PredictedConfidence: 0.55,
		ActualAction:        actual,
		Detail:              model.IntentMismatch{Confidence: 0.55, Threshold: 0.6},
		CreatedAt:           createdAt,
	}
}

func TestSaveAndGetPendingCorrections(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now()
	override := newTestCorrection(1, "order_food", "book_table", now.Add(-2*time.Minute))
	override.Detail = model.ButtonOverride{SelectedAction: "book_table", ExpectedLabels: []string{"order_food"}}
	require.NoError(t, store.SaveCorrection(ctx, override))
	require.NoError(t, store.SaveCorrection(ctx, newTestCorrection(2, "order_food", "book_table", now.Add(-time.Minute))))

	pending, err := store.GetPendingCorrections(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, override.ID, pending[0].ID, "oldest first")

	detail, ok := pending[0].Detail.(model.ButtonOverride)
	require.True(t, ok, "detail should decode to ButtonOverride, got %T", pending[0].Detail)
	assert.Equal(t, "book_table", detail.SelectedAction)
	assert.Equal(t, []string{"order_food"}, detail.ExpectedLabels)

	limited, err := store.GetPendingCorrections(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestCountPendingCorrections(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.SaveCorrection(ctx, newTestCorrection(1, "a", "b", now.Add(-8*24*time.Hour))))
	require.NoError(t, store.SaveCorrection(ctx, newTestCorrection(2, "a", "b", now.Add(-time.Hour))))
	require.NoError(t, store.SaveCorrection(ctx, newTestCorrection(3, "a", "b", now)))

	count, err := store.CountPendingCorrections(ctx, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMarkCorrectionsUsed(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now()
	ids := make([]string, 0, 3)
	for i := 1; i <= 3; i++ {
		c := newTestCorrection(i, "a", "b", now)
		require.NoError(t, store.SaveCorrection(ctx, c))
		ids = append(ids, c.ID)
	}

	marked, err := store.MarkCorrectionsUsed(ctx, ids[:2])
	require.NoError(t, err)
	assert.Equal(t, 2, marked)

	// Marking again touches nothing.
	marked, err = store.MarkCorrectionsUsed(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	count, err := store.CountPendingCorrections(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, count)

	marked, err = store.MarkCorrectionsUsed(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, marked)
}

func TestMarkCorrectionsUsed_LargeBatch(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now()
	ids := make([]string, 0, markBatchSize+10)
	for i := 0; i < markBatchSize+10; i++ {
		c := newTestCorrection(i, "a", "b", now)
		require.NoError(t, store.SaveCorrection(ctx, c))
		ids = append(ids, c.ID)
	}

	marked, err := store.MarkCorrectionsUsed(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, markBatchSize+10, marked)
}

func TestGetPatternCounts(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now()
	since := now.Add(-7 * 24 * time.Hour)

	// An old correction makes the pair's first sighting predate the window.
	require.NoError(t, store.SaveCorrection(ctx, newTestCorrection(1, "greet", "goodbye", now.Add(-30*24*time.Hour))))
	require.NoError(t, store.SaveCorrection(ctx, newTestCorrection(2, "greet", "goodbye", now.Add(-time.Hour))))
	for i := 3; i < 6; i++ {
		require.NoError(t, store.SaveCorrection(ctx, newTestCorrection(i, "order_food", "book_table", now.Add(-time.Duration(i)*time.Minute))))
	}

	counts, err := store.GetPatternCounts(ctx, since)
	require.NoError(t, err)
	require.Len(t, counts, 2)

	assert.Equal(t, "order_food", counts[0].PredictedLabel)
	assert.Equal(t, "book_table", counts[0].ActualAction)
	assert.Equal(t, 3, counts[0].Count)
	assert.True(t, counts[0].FirstSeen.After(since))

	assert.Equal(t, 1, counts[1].Count)
	assert.True(t, counts[1].FirstSeen.Before(since))
}

func TestGetRepeatedCorrections(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 3; i++ {
		c := newTestCorrection(i, "order_food", "book_table", now.Add(-time.Duration(i)*time.Hour))
		c.OriginalText = "table for two"
		require.NoError(t, store.SaveCorrection(ctx, c))
	}
	once := newTestCorrection(10, "order_food", "book_table", now)
	once.OriginalText = "just once"
	require.NoError(t, store.SaveCorrection(ctx, once))

	repeated, err := store.GetRepeatedCorrections(ctx, now.Add(-7*24*time.Hour), 3)
	require.NoError(t, err)
	require.Len(t, repeated, 1)
	assert.Equal(t, "table for two", repeated[0].Text)
	assert.Equal(t, 3, repeated[0].Count)

	_, err = store.GetRepeatedCorrections(ctx, now, 0)
	assert.ErrorIs(t, err, ErrInvalidOccurrenceBase)
}
