package correction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-model-must-learn/internal/model"
)

// HourlySweep refreshes the pattern counter and submits a retrain request
// when the pending backlog is over threshold. Repeat submissions are left to
// the coordinator's cooldown.
func (t *Tracker) HourlySweep(ctx context.Context) (int, error) {
	if err := t.Load(ctx); err != nil {
		return 0, err
	}

	pending, err := t.storage.CountPendingCorrections(ctx, t.now().Add(-t.config.Window))
	if err != nil {
		return 0, fmt.Errorf("failed to count pending corrections: %w", err)
	}

	if pending >= t.config.RetrainThreshold {
		slog.Info("Pending corrections over threshold", "pending", pending, "threshold", t.config.RetrainThreshold)
		t.submitInBackground(ctx, pending)
	}
	return pending, nil
}

// DailyReport logs (text, predicted, actual) triples that keep recurring.
func (t *Tracker) DailyReport(ctx context.Context) ([]model.RepeatedCorrection, error) {
	repeated, err := t.storage.GetRepeatedCorrections(ctx, t.now().Add(-t.config.Window), t.config.PatternThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate repeated corrections: %w", err)
	}

	for _, rc := range repeated {
		slog.Info("Repeated correction",
			"text", rc.Text,
			"predicted", rc.PredictedLabel,
			"actual", rc.ActualAction,
			"count", rc.Count,
			"last_seen", rc.LastSeen)
	}
	slog.Info("Daily correction report complete", "repeated", len(repeated))
	return repeated, nil
}
