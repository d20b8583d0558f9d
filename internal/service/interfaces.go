// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/the-model-must-learn/internal/model"
)

// ExampleFilter narrows training example listings.
type ExampleFilter struct {
	Disposition model.Disposition
	Priority    model.ExamplePriority
	Limit       int
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Training example operations
	SaveTrainingExample(ctx context.Context, example *model.TrainingExample) error
	GetTrainingExample(ctx context.Context, id string) (*model.TrainingExample, error)
	FindTrainingExample(ctx context.Context, text, label string) (*model.TrainingExample, error)
	UpdateTrainingExampleReview(ctx context.Context, example *model.TrainingExample) error
	ListTrainingExamples(ctx context.Context, filter ExampleFilter) ([]model.TrainingExample, error)
	ListTrainableExamples(ctx context.Context) ([]model.TrainingExample, error)
	CountTrainableExamplesSince(ctx context.Context, since time.Time) (int, error)

	// Label statistics
	RecordLabelConfidence(ctx context.Context, label string, confidence float64) error
	GetLabelStats(ctx context.Context) ([]model.LabelStats, error)

	// Correction operations
	SaveCorrection(ctx context.Context, correction *model.Correction) error
	CountPendingCorrections(ctx context.Context, since time.Time) (int, error)
	GetPendingCorrections(ctx context.Context, limit int) ([]model.Correction, error)
	MarkCorrectionsUsed(ctx context.Context, ids []string) (int, error)
	GetPatternCounts(ctx context.Context, since time.Time) ([]model.PatternCount, error)
	GetRepeatedCorrections(ctx context.Context, since time.Time, minOccurrences int) ([]model.RepeatedCorrection, error)

	// Training run ledger
	SaveTrainingRun(ctx context.Context, run *model.TrainingRun) error
	GetLatestTrainingRun(ctx context.Context) (*model.TrainingRun, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
