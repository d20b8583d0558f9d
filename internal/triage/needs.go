package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-model-must-learn/internal/common"
	"github.com/Veraticus/the-model-must-learn/internal/model"
)

// NeedsRetraining reports whether enough new signal has accumulated since
// the last submitted training run to justify another one.
func (e *Engine) NeedsRetraining(ctx context.Context) (model.RetrainingNeed, error) {
	var since time.Time
	run, err := e.storage.GetLatestTrainingRun(ctx)
	switch {
	case err == nil:
		since = run.SubmittedAt
	case !errors.Is(err, common.ErrNotFound):
		return model.RetrainingNeed{}, fmt.Errorf("failed to load latest training run: %w", err)
	}

	count, err := e.storage.CountTrainableExamplesSince(ctx, since)
	if err != nil {
		return model.RetrainingNeed{}, err
	}

	patterns, err := e.emergingPatterns(ctx)
	if err != nil {
		return model.RetrainingNeed{}, err
	}

	need := model.RetrainingNeed{
		NewExampleCount: count,
		PatternCount:    patterns,
	}

	switch {
	case count > e.config.RetrainThreshold:
		need.Needed = true
		need.Reason = fmt.Sprintf("%d new training examples since last retrain (threshold %d)", count, e.config.RetrainThreshold)
	case patterns >= e.config.MinPatterns:
		need.Needed = true
		need.Reason = fmt.Sprintf("%d new correction patterns in the last %s", patterns, formatWindow(e.config.PatternWindow))
	default:
		need.Reason = fmt.Sprintf("%d new examples and %d new patterns; not enough signal", count, patterns)
	}

	return need, nil
}

// emergingPatterns counts (predicted, actual) pairs seen at least PatternThreshold
// times inside the window whose first sighting also falls inside it.
func (e *Engine) emergingPatterns(ctx context.Context) (int, error) {
	windowStart := e.now().Add(-e.config.PatternWindow)

	counts, err := e.storage.GetPatternCounts(ctx, windowStart)
	if err != nil {
		return 0, fmt.Errorf("failed to load correction patterns: %w", err)
	}

	var n int
	for _, pc := range counts {
		if pc.Count >= e.config.PatternThreshold && !pc.FirstSeen.Before(windowStart) {
			n++
		}
	}
	return n, nil
}

// CheckRetraining evaluates retraining need and, when needed, submits a
// request in the background. It returns the evaluated need.
func (e *Engine) CheckRetraining(ctx context.Context, requester RetrainRequester) (model.RetrainingNeed, error) {
	need, err := e.NeedsRetraining(ctx)
	if err != nil {
		return need, err
	}

	if !need.Needed {
		slog.Debug("Retraining not needed", "reason", need.Reason)
		return need, nil
	}

	priority := model.RetrainPriorityNormal
	if need.NewExampleCount >= e.config.HighPriorityThreshold {
		priority = model.RetrainPriorityHigh
	}

	req := model.RetrainingRequest{
		Source:          model.SourceTriage,
		Reason:          need.Reason,
		NewExampleCount: need.NewExampleCount,
		Priority:        priority,
	}

	ctx = context.WithoutCancel(ctx)
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()

		decision := requester.RequestRetrain(ctx, req)
		if decision.Accepted {
			slog.Info("Retraining requested", "job_id", decision.JobID, "reason", req.Reason)
			return
		}
		slog.Info("Retraining request declined", "reason", decision.Reason)
	}()

	return need, nil
}

func formatWindow(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%d days", int(d/(24*time.Hour)))
	}
	return d.String()
}
