package correction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-model-must-learn/internal/common"
	"github.com/Veraticus/the-model-must-learn/internal/model"
)

// ErrNothingToFold is returned when no unused corrections are available.
var ErrNothingToFold = errors.New("no unused corrections")

// GenerateTrainingExamples maps up to limit unused corrections to approved
// training examples labeled with the user's actual action.
func (t *Tracker) GenerateTrainingExamples(ctx context.Context, limit int) ([]model.TrainingExample, error) {
	corrections, err := t.storage.GetPendingCorrections(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending corrections: %w", err)
	}

	now := t.now()
	examples := make([]model.TrainingExample, 0, len(corrections))
	for _, c := range corrections {
		examples = append(examples, toTrainingExample(c, now))
	}
	return examples, nil
}

func toTrainingExample(c model.Correction, now time.Time) model.TrainingExample {
	example := model.TrainingExample{
		ID:             "correction-" + c.ID,
		Text:           c.OriginalText,
		PredictedLabel: c.ActualAction,
		Confidence:     1,
		Disposition:    model.DispositionApproved,
		Priority:       model.ExamplePriorityNormal,
		Source:         model.SourceCorrection,
		Reviewer:       &model.Reviewer{Identity: "session:" + c.SessionID, ReviewedAt: c.CreatedAt},
		CreatedAt:      now,
	}
	if missing, ok := c.Detail.(model.EntityMissing); ok && missing.Value != "" {
		example.Entities = model.Entities{missing.Entity: missing.Value}
	}
	return example
}

// MarkAsUsedForTraining flags corrections as consumed and re-seeds the
// pattern counter so they stop counting.
func (t *Tracker) MarkAsUsedForTraining(ctx context.Context, ids []string) (int, error) {
	n, err := t.storage.MarkCorrectionsUsed(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to mark corrections used: %w", err)
	}

	if err := t.Load(ctx); err != nil {
		slog.Warn("Failed to refresh correction patterns", "error", err)
	}

	slog.Info("Corrections marked as used for training", "count", n)
	return n, nil
}

// fold writes unused corrections into the corpus and returns the IDs of the
// corrections behind them. Examples already on file are skipped.
func (t *Tracker) fold(ctx context.Context) ([]string, error) {
	corrections, err := t.storage.GetPendingCorrections(ctx, t.config.FoldLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending corrections: %w", err)
	}
	if len(corrections) == 0 {
		return nil, ErrNothingToFold
	}

	now := t.now()
	ids := make([]string, 0, len(corrections))
	var added int
	for _, c := range corrections {
		ids = append(ids, c.ID)
		example := toTrainingExample(c, now)
		if example.Text == "" {
			continue
		}
		err := t.storage.SaveTrainingExample(ctx, &example)
		switch {
		case err == nil:
			added++
		case errors.Is(err, common.ErrDuplicateEntry):
		default:
			return nil, fmt.Errorf("failed to fold correction %s: %w", c.ID, err)
		}
	}

	slog.Debug("Folded corrections into corpus", "corrections", len(ids), "new_examples", added)
	return ids, nil
}

// submitInBackground folds pending corrections into the corpus and asks for
// a retrain. Accepted requests consume the folded corrections.
func (t *Tracker) submitInBackground(ctx context.Context, pending int) {
	if t.requester == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)
	t.bg.Add(1)
	go func() {
		defer t.bg.Done()

		if _, err := t.submit(ctx, pending); err != nil {
			slog.Warn("Correction-triggered retrain failed", "error", err)
		}
	}()
}

// submit folds and requests a retrain. While another submit holds the fold,
// the request goes to the coordinator without folding and consumes nothing.
func (t *Tracker) submit(ctx context.Context, pending int) (model.RetrainingDecision, error) {
	if !t.submitting.CompareAndSwap(false, true) {
		decision := t.requestRetrain(ctx, pending, 0)
		if !decision.Accepted {
			slog.Debug("Correction-triggered retrain declined while another submit runs", "reason", decision.Reason)
		}
		return decision, nil
	}
	defer t.submitting.Store(false)

	ids, err := t.fold(ctx)
	if err != nil {
		return model.RetrainingDecision{}, err
	}

	decision := t.requestRetrain(ctx, pending, len(ids))
	if !decision.Accepted {
		slog.Info("Correction-triggered retrain declined", "reason", decision.Reason)
		return decision, nil
	}

	if _, err := t.MarkAsUsedForTraining(ctx, ids); err != nil {
		return decision, err
	}

	slog.Info("Correction-triggered retrain accepted", "job_id", decision.JobID, "corrections", len(ids))
	return decision, nil
}

func (t *Tracker) requestRetrain(ctx context.Context, pending, folded int) model.RetrainingDecision {
	priority := model.RetrainPriorityNormal
	if pending >= t.config.HighPriorityThreshold {
		priority = model.RetrainPriorityHigh
	}

	return t.requester.RequestRetrain(ctx, model.RetrainingRequest{
		Source:          model.SourceCorrection,
		Reason:          fmt.Sprintf("%d unused corrections pending", pending),
		NewExampleCount: folded,
		Priority:        priority,
	})
}
