// Package fixtures seeds training examples and corrections for tests
// through a fluent builder.
package fixtures

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/the-model-must-learn/internal/model"
	"github.com/Veraticus/the-model-must-learn/internal/service"
)

// Builder provides a fluent interface for constructing test data.
type Builder interface {
	// WithExamples adds n examples labeled label with the given disposition.
	WithExamples(label string, n int, disposition model.Disposition) Builder

	// WithCorrections adds n unused corrections of predicted to actual.
	WithCorrections(predicted, actual string, n int) Builder

	// At pins the creation time of everything added after it.
	At(t time.Time) Builder

	// Build writes the data to storage and returns what was created.
	Build(ctx context.Context, storage service.Storage) (Seeded, error)
}

// Seeded is the data a Builder wrote.
type Seeded struct {
	Examples    []model.TrainingExample
	Corrections []model.Correction
}

// ByLabel returns the seeded examples carrying label.
func (s Seeded) ByLabel(label string) []model.TrainingExample {
	var out []model.TrainingExample
	for _, ex := range s.Examples {
		if ex.PredictedLabel == label {
			out = append(out, ex)
		}
	}
	return out
}

// CorrectionIDs returns the IDs of every seeded correction.
func (s Seeded) CorrectionIDs() []string {
	ids := make([]string, len(s.Corrections))
	for i, c := range s.Corrections {
		ids[i] = c.ID
	}
	return ids
}

type builder struct {
	t           *testing.T
	at          time.Time
	examples    []model.TrainingExample
	corrections []model.Correction
	seq         int
}

// NewBuilder creates a new fixtures builder for the given test.
func NewBuilder(t *testing.T) Builder {
	t.Helper()
	return &builder{t: t}
}

func (b *builder) next() int {
	b.seq++
	return b.seq
}

func (b *builder) createdAt() time.Time {
	if b.at.IsZero() {
		return time.Now()
	}
	return b.at
}

func (b *builder) At(t time.Time) Builder {
	b.at = t
	return b
}

func (b *builder) WithExamples(label string, n int, disposition model.Disposition) Builder {
	b.t.Helper()
	if !disposition.IsValid() {
		b.t.Fatalf("invalid disposition %q", disposition)
	}

	for range n {
		seq := b.next()
		b.examples = append(b.examples, model.TrainingExample{
			ID:             fmt.Sprintf("fixture-ex-%04d", seq),
			Text:           fmt.Sprintf("%s utterance %d", label, seq),
			PredictedLabel: label,
			Confidence:     0.9,
			Disposition:    disposition,
			Priority:       model.ExamplePriorityNormal,
			Source:         "fixture",
			CreatedAt:      b.createdAt(),
		})
	}
	return b
}

func (b *builder) WithCorrections(predicted, actual string, n int) Builder {
	for range n {
		seq := b.next()
		b.corrections = append(b.corrections, model.Correction{
			ID:                  fmt.Sprintf("fixture-corr-%04d", seq),
			SessionID:           fmt.Sprintf("session-%d", seq),
			OriginalText:        fmt.Sprintf("%s instead of %s %d", actual, predicted, seq),
			PredictedLabel:      predicted,
			PredictedConfidence: 0.5,
			ActualAction:        actual,
			Detail:              model.ExplicitFeedback{UserMessage: "wrong"},
			CreatedAt:           b.createdAt(),
		})
	}
	return b
}

func (b *builder) Build(ctx context.Context, storage service.Storage) (Seeded, error) {
	for i := range b.examples {
		if err := storage.SaveTrainingExample(ctx, &b.examples[i]); err != nil {
			return Seeded{}, fmt.Errorf("failed to seed example %s: %w", b.examples[i].ID, err)
		}
	}
	for i := range b.corrections {
		if err := storage.SaveCorrection(ctx, &b.corrections[i]); err != nil {
			return Seeded{}, fmt.Errorf("failed to seed correction %s: %w", b.corrections[i].ID, err)
		}
	}
	return Seeded{Examples: b.examples, Corrections: b.corrections}, nil
}
