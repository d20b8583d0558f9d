package triage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/the-model-must-learn/internal/common"
	"github.com/Veraticus/the-model-must-learn/internal/model"
	"github.com/Veraticus/the-model-must-learn/internal/service"
)

// Approval carries a reviewer's decision to admit an example into the corpus.
// Label and Entities, when set, replace the predicted values.
type Approval struct {
	Entities model.Entities
	Reviewer string
	Label    string
}

// Approve moves a reviewable example into the corpus.
func (e *Engine) Approve(ctx context.Context, id string, approval Approval) (*model.TrainingExample, error) {
	example, err := e.reviewable(ctx, id, approval.Reviewer)
	if err != nil {
		return nil, err
	}

	if label := strings.TrimSpace(approval.Label); label != "" {
		example.PredictedLabel = label
	}
	if approval.Entities != nil {
		example.Entities = approval.Entities
	}
	example.Disposition = model.DispositionApproved
	example.RejectReason = ""
	example.Reviewer = &model.Reviewer{Identity: approval.Reviewer, ReviewedAt: e.now()}

	if err := e.storage.UpdateTrainingExampleReview(ctx, example); err != nil {
		return nil, fmt.Errorf("failed to approve example %s: %w", id, err)
	}

	slog.Info("Example approved", "example_id", id, "label", example.PredictedLabel, "reviewer", approval.Reviewer)
	return example, nil
}

// Reject closes out a reviewable example without adding it to the corpus.
func (e *Engine) Reject(ctx context.Context, id, reviewer, reason string) (*model.TrainingExample, error) {
	example, err := e.reviewable(ctx, id, reviewer)
	if err != nil {
		return nil, err
	}

	example.Disposition = model.DispositionRejected
	example.RejectReason = strings.TrimSpace(reason)
	example.Reviewer = &model.Reviewer{Identity: reviewer, ReviewedAt: e.now()}

	if err := e.storage.UpdateTrainingExampleReview(ctx, example); err != nil {
		return nil, fmt.Errorf("failed to reject example %s: %w", id, err)
	}

	slog.Info("Example rejected", "example_id", id, "reviewer", reviewer, "reason", example.RejectReason)
	return example, nil
}

// PendingReview lists examples awaiting a reviewer, priority items first.
func (e *Engine) PendingReview(ctx context.Context, priorityOnly bool, limit int) ([]model.TrainingExample, error) {
	filter := service.ExampleFilter{
		Disposition: model.DispositionPendingReview,
		Limit:       limit,
	}
	if priorityOnly {
		filter.Priority = model.ExamplePriorityPriority
	}
	return e.storage.ListTrainingExamples(ctx, filter)
}

func (e *Engine) reviewable(ctx context.Context, id, reviewer string) (*model.TrainingExample, error) {
	if strings.TrimSpace(reviewer) == "" {
		return nil, common.NewUserError("reviewer identity is required", nil)
	}

	example, err := e.storage.GetTrainingExample(ctx, id)
	if err != nil {
		return nil, err
	}

	if !example.Disposition.IsReviewable() {
		return nil, fmt.Errorf("%w: example %s is %s", common.ErrInvalidTransition, id, example.Disposition)
	}
	return example, nil
}
