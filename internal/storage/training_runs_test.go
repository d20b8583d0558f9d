package storage

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/the-model-must-learn/internal/common"
	"github.com/Veraticus/the-model-must-learn/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainingRuns(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.GetLatestTrainingRun(ctx)
	require.ErrorIs(t, err, common.ErrNotFound)

	now := time.Now()
	older := &model.TrainingRun{ID: "run-1", Source: model.SourceTriage, SubmittedAt: now.Add(-time.Hour)}
	newer := &model.TrainingRun{
		ID:           "run-2",
		JobID:        "job-42",
		Source:       model.SourceCorrection,
		Reason:       "120 pending corrections",
		DataFile:     "/data/export.yml",
		ExampleCount: 120,
		Priority:     model.RetrainPriorityHigh,
		SubmittedAt:  now,
	}
	require.NoError(t, store.SaveTrainingRun(ctx, newer))
	require.NoError(t, store.SaveTrainingRun(ctx, older))

	latest, err := store.GetLatestTrainingRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.ID)
	assert.Equal(t, "job-42", latest.JobID)
	assert.Equal(t, model.RetrainPriorityHigh, latest.Priority)
	assert.Equal(t, 120, latest.ExampleCount)
	assert.True(t, now.Equal(latest.SubmittedAt))

	assert.ErrorIs(t, store.SaveTrainingRun(ctx, &model.TrainingRun{ID: "run-3"}), ErrInvalidTrainingRun)
}
