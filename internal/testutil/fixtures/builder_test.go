package fixtures_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-model-must-learn/internal/model"
	"github.com/Veraticus/the-model-must-learn/internal/service"
	"github.com/Veraticus/the-model-must-learn/internal/testutil"
	"github.com/Veraticus/the-model-must-learn/internal/testutil/fixtures"
)

func TestBuilder(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	db := testutil.SetupTestDBWithBuilder(t, func(b fixtures.Builder) fixtures.Builder {
		return b.At(at).
			WithExamples("greet", 2, model.DispositionAutoApproved).
			WithExamples("goodbye", 1, model.DispositionPendingReview).
			WithCorrections("greet", "goodbye", 3)
	})
	ctx := context.Background()

	assert.Len(t, db.Seeded.ByLabel("greet"), 2)
	assert.Len(t, db.Seeded.CorrectionIDs(), 3)

	trainable, err := db.Storage.ListTrainableExamples(ctx)
	require.NoError(t, err)
	assert.Len(t, trainable, 2)

	pending, err := db.Storage.ListTrainingExamples(ctx, service.ExampleFilter{Disposition: model.DispositionPendingReview})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].CreatedAt.Equal(at))

	count, err := db.Storage.CountPendingCorrections(ctx, at.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
