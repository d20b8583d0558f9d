package correction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-model-must-learn/internal/model"
	"github.com/Veraticus/the-model-must-learn/internal/testutil"
	"github.com/Veraticus/the-model-must-learn/internal/testutil/fixtures"
)

func TestGenerateTrainingExamples(t *testing.T) {
	tracker, _ := newTestTracker(t, nil)
	ctx := context.Background()

	_, err := tracker.Track(ctx, newCorrection("s1", "get me a pizza", "greet", "order_food"))
	require.NoError(t, err)

	missing := newCorrection("s2", "fly to Lisbon", "book_flight", "book_flight")
	missing.Detail = model.EntityMissing{Entity: "city", Value: "Lisbon"}
	_, err = tracker.Track(ctx, missing)
	require.NoError(t, err)

	_, err = tracker.Track(ctx, newCorrection("s3", "weather?", "greet", "weather_lookup"))
	require.NoError(t, err)

	examples, err := tracker.GenerateTrainingExamples(ctx, 2)
	require.NoError(t, err)
	require.Len(t, examples, 2)

	assert.Equal(t, "get me a pizza", examples[0].Text)
	assert.Equal(t, "order_food", examples[0].PredictedLabel)
	assert.Equal(t, model.DispositionApproved, examples[0].Disposition)
	assert.Equal(t, model.SourceCorrection, examples[0].Source)

	assert.Equal(t, "book_flight", examples[1].PredictedLabel)
	assert.Equal(t, model.Entities{"city": "Lisbon"}, examples[1].Entities)
}

func TestMarkAsUsedForTraining(t *testing.T) {
	tracker, db := newTestTracker(t, nil)
	ctx := context.Background()

	var ids []string
	for _, text := range []string{"a", "b", "c"} {
		result, err := tracker.Track(ctx, newCorrection("s", text, "greet", "order_food"))
		require.NoError(t, err)
		ids = append(ids, result.CorrectionID)
	}
	assert.Equal(t, 3, tracker.PatternCount("greet", "order_food"))

	n, err := tracker.MarkAsUsedForTraining(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	pending, err := db.Storage.CountPendingCorrections(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, pending)
	assert.Zero(t, tracker.PatternCount("greet", "order_food"))

	examples, err := tracker.GenerateTrainingExamples(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, examples)

	// Marking again is a no-op.
	n, err = tracker.MarkAsUsedForTraining(ctx, ids)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFoldSkipsDuplicates(t *testing.T) {
	tracker, db := newTestTracker(t, nil)
	ctx := context.Background()

	for _, session := range []string{"s1", "s2"} {
		_, err := tracker.Track(ctx, newCorrection(session, "pizza", "greet", "order_food"))
		require.NoError(t, err)
	}

	ids, err := tracker.fold(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	trainable, err := db.Storage.ListTrainableExamples(ctx)
	require.NoError(t, err)
	assert.Len(t, trainable, 1)

	_, err = tracker.MarkAsUsedForTraining(ctx, ids)
	require.NoError(t, err)

	_, err = tracker.fold(ctx)
	assert.ErrorIs(t, err, ErrNothingToFold)
}

func TestSubmitSkipsFoldWhileAnotherSubmitRuns(t *testing.T) {
	requester := &mockRequester{}
	requester.On("RequestRetrain", mock.Anything, mock.Anything).
		Return(model.RetrainingDecision{Accepted: false, Reason: "a training job is already in progress"})

	db := testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
		return b.WithCorrections("greet", "order_food", 150)
	})
	ctx := context.Background()
	tracker := New(db.Storage, requester, DefaultConfig())

	tracker.submitting.Store(true)
	decision, err := tracker.submit(ctx, 150)
	require.NoError(t, err)
	assert.False(t, decision.Accepted)

	requester.AssertCalled(t, "RequestRetrain", mock.Anything, mock.MatchedBy(func(req model.RetrainingRequest) bool {
		return req.Source == model.SourceCorrection && req.NewExampleCount == 0
	}))

	trainable, err := db.Storage.ListTrainableExamples(ctx)
	require.NoError(t, err)
	assert.Empty(t, trainable)

	tracker.submitting.Store(false)
	_, err = tracker.submit(ctx, 150)
	require.NoError(t, err)
	assert.False(t, tracker.submitting.Load())

	trainable, err = db.Storage.ListTrainableExamples(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, trainable)
}
