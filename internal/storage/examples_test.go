package storage

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/the-model-must-learn/internal/common"
	"github.com/Veraticus/the-model-must-learn/internal/model"
	"github.com/Veraticus/the-model-must-learn/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndGetTrainingExample(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	example := newTestExample(1, "order_food", model.DispositionAutoApproved)
	example.Entities = model.Entities{"dish": "pizza"}
	example.Reviewer = &model.Reviewer{Identity: "auto", ReviewedAt: time.Now()}

	require.NoError(t, store.SaveTrainingExample(ctx, example))
	assert.False(t, example.CreatedAt.IsZero())

	got, err := store.GetTrainingExample(ctx, example.ID)
	require.NoError(t, err)
	assert.Equal(t, example.Text, got.Text)
	assert.Equal(t, "order_food", got.PredictedLabel)
	assert.Equal(t, model.DispositionAutoApproved, got.Disposition)
	assert.Equal(t, model.Entities{"dish": "pizza"}, got.Entities)
	require.NotNil(t, got.Reviewer)
	assert.Equal(t, "auto", got.Reviewer.Identity)
	assert.True(t, example.CreatedAt.Equal(got.CreatedAt))

	_, err = store.GetTrainingExample(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSaveTrainingExample_DuplicatePair(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	first := newTestExample(1, "order_food", model.DispositionAutoApproved)
	require.NoError(t, store.SaveTrainingExample(ctx, first))

	second := newTestExample(2, "order_food", model.DispositionPendingReview)
	second.Text = first.Text
	err := store.SaveTrainingExample(ctx, second)
	require.ErrorIs(t, err, common.ErrDuplicateEntry)

	// Same text with a different label is a distinct example.
	third := newTestExample(3, "book_table", model.DispositionPendingReview)
	third.Text = first.Text
	require.NoError(t, store.SaveTrainingExample(ctx, third))
}

func TestFindTrainingExample(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	example := newTestExample(1, "order_food", model.DispositionPendingReview)
	require.NoError(t, store.SaveTrainingExample(ctx, example))

	got, err := store.FindTrainingExample(ctx, example.Text, "order_food")
	require.NoError(t, err)
	assert.Equal(t, example.ID, got.ID)

	_, err = store.FindTrainingExample(ctx, example.Text, "book_table")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdateTrainingExampleReview(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	example := newTestExample(1, "order_food", model.DispositionPendingReview)
	require.NoError(t, store.SaveTrainingExample(ctx, example))

	example.Disposition = model.DispositionApproved
	example.PredictedLabel = "book_table"
	example.Entities = model.Entities{"party_size": "4"}
	example.Reviewer = &model.Reviewer{Identity: "alex", ReviewedAt: time.Now()}
	require.NoError(t, store.UpdateTrainingExampleReview(ctx, example))

	got, err := store.GetTrainingExample(ctx, example.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DispositionApproved, got.Disposition)
	assert.Equal(t, "book_table", got.PredictedLabel)
	assert.Equal(t, model.Entities{"party_size": "4"}, got.Entities)
	assert.Equal(t, "alex", got.Reviewer.Identity)

	missing := newTestExample(99, "order_food", model.DispositionRejected)
	assert.ErrorIs(t, store.UpdateTrainingExampleReview(ctx, missing), common.ErrNotFound)
}

func TestListTrainingExamples(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	normal := newTestExample(1, "order_food", model.DispositionPendingReview)
	urgent := newTestExample(2, "order_food", model.DispositionPendingReview)
	urgent.Priority = model.ExamplePriorityPriority
	approved := newTestExample(3, "order_food", model.DispositionAutoApproved)
	for _, e := range []*model.TrainingExample{normal, urgent, approved} {
		require.NoError(t, store.SaveTrainingExample(ctx, e))
	}

	pending, err := store.ListTrainingExamples(ctx, service.ExampleFilter{Disposition: model.DispositionPendingReview})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, urgent.ID, pending[0].ID, "priority items come first")

	limited, err := store.ListTrainingExamples(ctx, service.ExampleFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	onlyUrgent, err := store.ListTrainingExamples(ctx, service.ExampleFilter{Priority: model.ExamplePriorityPriority})
	require.NoError(t, err)
	require.Len(t, onlyUrgent, 1)
	assert.Equal(t, urgent.ID, onlyUrgent[0].ID)
}

func TestTrainableExamples(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	cutoff := time.Now().Add(-time.Hour)

	old := newTestExample(1, "greet", model.DispositionAutoApproved)
	old.CreatedAt = cutoff.Add(-time.Hour)
	fresh := newTestExample(2, "greet", model.DispositionAutoApproved)
	reviewed := newTestExample(3, "greet", model.DispositionApproved)
	pending := newTestExample(4, "greet", model.DispositionPendingReview)
	rejected := newTestExample(5, "greet", model.DispositionRejected)
	for _, e := range []*model.TrainingExample{old, fresh, reviewed, pending, rejected} {
		require.NoError(t, store.SaveTrainingExample(ctx, e))
	}

	count, err := store.CountTrainableExamplesSince(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	all, err := store.ListTrainableExamples(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLabelStats(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.RecordLabelConfidence(ctx, "order_food", 0.9))
	require.NoError(t, store.RecordLabelConfidence(ctx, "order_food", 0.8))
	require.NoError(t, store.RecordLabelConfidence(ctx, "greet", 0.95))

	stats, err := store.GetLabelStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "order_food", stats[0].Label)
	assert.Equal(t, 2, stats[0].Count)
	assert.InDelta(t, 0.85, stats[0].AvgConfidence, 1e-9)
	assert.Equal(t, "greet", stats[1].Label)

	assert.ErrorIs(t, store.RecordLabelConfidence(ctx, "greet", 1.5), ErrInvalidConfidence)
}
