package storage

import (
	"context"
	"testing"

	"github.com/Veraticus/the-model-must-learn/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestValidateExample(t *testing.T) {
	valid := func() *model.TrainingExample {
		return newTestExample(1, "order_food", model.DispositionPendingReview)
	}

	tests := []struct {
		mutate  func(*model.TrainingExample)
		wantErr error
		name    string
	}{
		{name: "valid", mutate: func(*model.TrainingExample) {}},
		{name: "missing id", mutate: func(e *model.TrainingExample) { e.ID = "" }, wantErr: ErrInvalidExample},
		{name: "missing text", mutate: func(e *model.TrainingExample) { e.Text = " " }, wantErr: ErrInvalidExample},
		{name: "missing label", mutate: func(e *model.TrainingExample) { e.PredictedLabel = "" }, wantErr: ErrInvalidExample},
		{name: "unknown disposition", mutate: func(e *model.TrainingExample) { e.Disposition = "MAYBE" }, wantErr: ErrInvalidDisposition},
		{name: "confidence above one", mutate: func(e *model.TrainingExample) { e.Confidence = 1.01 }, wantErr: ErrInvalidExample},
		{name: "negative confidence", mutate: func(e *model.TrainingExample) { e.Confidence = -0.1 }, wantErr: ErrInvalidExample},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			example := valid()
			tt.mutate(example)
			err := validateExample(example)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.ErrorIs(t, validateExample(nil), ErrNilParameter)
}

func TestValidateCorrection(t *testing.T) {
	base := model.Correction{
		ID:             "c-1",
		SessionID:      "s-1",
		PredictedLabel: "order_food",
		ActualAction:   "book_table",
	}

	assert.NoError(t, validateCorrection(&base))

	missingSession := base
	missingSession.SessionID = ""
	assert.ErrorIs(t, validateCorrection(&missingSession), ErrInvalidCorrection)

	missingAction := base
	missingAction.ActualAction = ""
	assert.ErrorIs(t, validateCorrection(&missingAction), ErrInvalidCorrection)

	assert.ErrorIs(t, validateCorrection(nil), ErrNilParameter)
}

func TestValidateContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	assert.ErrorIs(t, validateContext(nil), ErrNilContext)
	assert.NoError(t, validateContext(context.Background()))
}
