package triage

import (
	"context"

	"github.com/Veraticus/the-model-must-learn/internal/model"
)

// Annotator accepts examples for priority human annotation.
type Annotator interface {
	SubmitTask(ctx context.Context, example model.TrainingExample) error
}

// RetrainRequester is the arbitration point that decides whether a training job launches.
type RetrainRequester interface {
	RequestRetrain(ctx context.Context, req model.RetrainingRequest) model.RetrainingDecision
}
