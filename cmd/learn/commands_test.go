package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-model-must-learn/internal/cli"
	"github.com/Veraticus/the-model-must-learn/internal/common"
	"github.com/Veraticus/the-model-must-learn/internal/correction"
	"github.com/Veraticus/the-model-must-learn/internal/model"
	"github.com/Veraticus/the-model-must-learn/internal/triage"
)

type scriptedPrompter struct {
	answers []cli.ReviewAnswer
	seen    []string
}

func (s *scriptedPrompter) Prompt(_ context.Context, ex model.TrainingExample, _, _ int) (cli.ReviewAnswer, error) {
	s.seen = append(s.seen, ex.ID)
	if len(s.answers) == 0 {
		return cli.ReviewAnswer{Action: cli.ReviewQuit}, nil
	}
	next := s.answers[0]
	s.answers = s.answers[1:]
	return next, nil
}

type recordingDecider struct {
	err       error
	approvals map[string]triage.Approval
	rejects   map[string]string
}

func newRecordingDecider() *recordingDecider {
	return &recordingDecider{approvals: map[string]triage.Approval{}, rejects: map[string]string{}}
}

func (r *recordingDecider) Approve(_ context.Context, id string, a triage.Approval) (*model.TrainingExample, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.approvals[id] = a
	return &model.TrainingExample{ID: id}, nil
}

func (r *recordingDecider) Reject(_ context.Context, id, _, reason string) (*model.TrainingExample, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.rejects[id] = reason
	return &model.TrainingExample{ID: id}, nil
}

func pendingExamples(ids ...string) []model.TrainingExample {
	out := make([]model.TrainingExample, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.TrainingExample{ID: id, Text: "utterance " + id, Disposition: model.DispositionPendingReview})
	}
	return out
}

func TestWalkQueue(t *testing.T) {
	prompter := &scriptedPrompter{answers: []cli.ReviewAnswer{
		{Action: cli.ReviewApprove},
		{Action: cli.ReviewApprove, Label: "book_hotel"},
		{Action: cli.ReviewSkip},
		{Action: cli.ReviewReject, Reason: "gibberish"},
	}}
	decider := newRecordingDecider()

	tally, err := walkQueue(context.Background(), decider, prompter, "ana", pendingExamples("a", "b", "c", "d"))
	require.NoError(t, err)

	assert.Equal(t, reviewTally{approved: 2, rejected: 1, skipped: 1}, tally)
	assert.Equal(t, triage.Approval{Reviewer: "ana"}, decider.approvals["a"])
	assert.Equal(t, "book_hotel", decider.approvals["b"].Label)
	assert.Equal(t, "gibberish", decider.rejects["d"])
}

func TestWalkQueue_QuitStopsEarly(t *testing.T) {
	prompter := &scriptedPrompter{answers: []cli.ReviewAnswer{
		{Action: cli.ReviewApprove},
		{Action: cli.ReviewQuit},
	}}
	decider := newRecordingDecider()

	tally, err := walkQueue(context.Background(), decider, prompter, "ana", pendingExamples("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, 1, tally.approved)
	assert.Equal(t, []string{"a", "b"}, prompter.seen)
}

func TestWalkQueue_DecisionError(t *testing.T) {
	prompter := &scriptedPrompter{answers: []cli.ReviewAnswer{{Action: cli.ReviewApprove}}}
	decider := newRecordingDecider()
	decider.err = errors.New("database is locked")

	_, err := walkQueue(context.Background(), decider, prompter, "ana", pendingExamples("a"))
	assert.EqualError(t, err, "database is locked")
}

func TestFormatTriageResult(t *testing.T) {
	tests := []struct {
		name   string
		result triage.Result
		want   []string
	}{
		{
			name:   "auto approved",
			result: triage.Result{ExampleID: "ex-1", Disposition: model.DispositionAutoApproved},
			want:   []string{"Added to the training corpus", "ex-1", "AUTO_APPROVED"},
		},
		{
			name:   "duplicate",
			result: triage.Result{ExampleID: "ex-1", Disposition: model.DispositionAutoApproved, Duplicate: true, Message: "duplicate: already on file"},
			want:   []string{"Already on file", "duplicate: already on file"},
		},
		{
			name:   "priority",
			result: triage.Result{ExampleID: "ex-2", Disposition: model.DispositionPendingReview, Priority: model.ExamplePriorityPriority, Forwarded: true},
			want:   []string{"Queued for priority review", "sent to the annotation service"},
		},
		{
			name:   "normal review",
			result: triage.Result{ExampleID: "ex-3", Disposition: model.DispositionPendingReview, Priority: model.ExamplePriorityNormal},
			want:   []string{"Queued for review", "PENDING_REVIEW"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := formatTriageResult(tt.result)
			for _, want := range tt.want {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestFormatDecision(t *testing.T) {
	accepted := formatDecision(model.RetrainingDecision{
		Accepted: true,
		Reason:   "training job job-9 submitted with 120 samples",
		JobID:    "job-9",
		DataFile: "/exports/nlu_20260601_090000.yml",
	})
	assert.Contains(t, accepted, "job-9")
	assert.Contains(t, accepted, "nlu_20260601_090000.yml")

	declined := formatDecision(model.RetrainingDecision{
		Reason:     "cooldown active, 12 minutes remaining",
		RejectedBy: model.GateCooldown,
	})
	assert.Contains(t, declined, "Retraining declined: cooldown active, 12 minutes remaining [cooldown]")
	assert.NotContains(t, declined, "try again once")

	busy := formatDecision(model.RetrainingDecision{
		Reason:     "service busy: training service already has 1 active job(s)",
		RejectedBy: model.GateRemoteBusy,
		Cause:      fmt.Errorf("%w: training service already has 1 active job(s)", common.ErrServiceBusy),
	})
	assert.Contains(t, busy, "[remote_busy]")
	assert.Contains(t, busy, "try again once its current job finishes")
}

func TestFormatNeed(t *testing.T) {
	assert.Contains(t, formatNeed(model.RetrainingNeed{Needed: true, Reason: "101 new examples", NewExampleCount: 101}), "Retraining needed: 101 new examples")
	assert.Contains(t, formatNeed(model.RetrainingNeed{NewExampleCount: 3}), "No retraining needed")
}

func TestStatus(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	for _, pred := range []model.Prediction{
		{Text: "order a pizza", PredictedLabel: "order_food", Confidence: 0.95},
		{Text: "pizza please", PredictedLabel: "order_food", Confidence: 0.75},
		{Text: "umm pizza?", PredictedLabel: "order_food", Confidence: 0.4},
	} {
		_, err := p.engine.Classify(ctx, pred)
		require.NoError(t, err)
	}

	now := time.Now()
	require.NoError(t, p.store.SaveTrainingRun(ctx, &model.TrainingRun{
		ID:          "run-1",
		JobID:       "job-1",
		Source:      model.SourceManual,
		Reason:      "manual retrain",
		SubmittedAt: now.Add(-10 * time.Minute),
		Priority:    model.RetrainPriorityNormal,
	}))

	report, err := collectStatus(ctx, p, now)
	require.NoError(t, err)
	assert.Equal(t, 2, report.pending)
	assert.Equal(t, 1, report.priority)
	require.NotNil(t, report.lastRun)
	assert.Equal(t, "job-1", report.lastRun.JobID)
	assert.False(t, report.need.Needed)
	require.Len(t, report.labels, 1)

	out := renderStatus(report)
	assert.Contains(t, out, "2 pending, 1 priority")
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "cooldown: 20m0s remaining")
	assert.Contains(t, out, "order_food")
}

func TestFormatTrackResult(t *testing.T) {
	out := formatTrackResult("book_flight", "book_hotel", correction.Result{
		Tracked:          true,
		PatternCount:     3,
		IsPattern:        true,
		PendingCount:     100,
		RetrainTriggered: true,
	})
	assert.Contains(t, out, "book_flight → book_hotel seen 3 time(s)")
	assert.Contains(t, out, "repeated correction pattern")
	assert.Contains(t, out, "100 unused correction(s) pending")
	assert.Contains(t, out, "retraining requested")

	quiet := formatTrackResult("book_flight", "book_hotel", correction.Result{Tracked: true, PatternCount: 1, PendingCount: 1})
	assert.NotContains(t, quiet, "repeated correction pattern")
	assert.NotContains(t, quiet, "retraining requested")
}
