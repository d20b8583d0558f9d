// Package triage decides, for every live NLU prediction, whether the example is
// folded into the training corpus, queued for review, or escalated for annotation.
package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/the-model-must-learn/internal/common"
	"github.com/Veraticus/the-model-must-learn/internal/model"
	"github.com/Veraticus/the-model-must-learn/internal/service"
)

// Config holds configuration options for the triage engine.
type Config struct {
	AnnotationRetry       service.RetryOptions
	HighConfidence        float64
	MediumConfidence      float64
	RetrainThreshold      int
	HighPriorityThreshold int
	PatternThreshold      int
	MinPatterns           int
	PatternWindow         time.Duration
	AnnotationTimeout     time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		HighConfidence:        0.85,
		MediumConfidence:      0.70,
		RetrainThreshold:      100,
		HighPriorityThreshold: 200,
		PatternThreshold:      3,
		MinPatterns:           5,
		PatternWindow:         7 * 24 * time.Hour,
		AnnotationTimeout:     5 * time.Second,
		AnnotationRetry: service.RetryOptions{
			MaxAttempts:  2,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
	}
}

// Engine triages predictions into dispositions and reports retraining need.
type Engine struct {
	storage   service.Storage
	annotator Annotator
	now       func() time.Time
	config    Config
	bg        sync.WaitGroup
	mu        sync.RWMutex
}

// New creates a triage engine. annotator may be nil when no annotation service is configured.
func New(storage service.Storage, annotator Annotator, config Config) (*Engine, error) {
	if err := validateThresholds(config.HighConfidence, config.MediumConfidence); err != nil {
		return nil, err
	}
	return &Engine{
		storage:   storage,
		annotator: annotator,
		config:    config,
		now:       time.Now,
	}, nil
}

// Result is the outcome of classifying one prediction.
type Result struct {
	ExampleID   string                `json:"example_id"`
	Disposition model.Disposition     `json:"disposition"`
	Priority    model.ExamplePriority `json:"priority,omitempty"`
	Message     string                `json:"message"`
	Duplicate   bool                  `json:"duplicate"`
	Forwarded   bool                  `json:"forwarded"`
}

// Thresholds returns the current high and medium confidence thresholds.
func (e *Engine) Thresholds() (high, medium float64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config.HighConfidence, e.config.MediumConfidence
}

// SetThresholds replaces the confidence thresholds at runtime.
func (e *Engine) SetThresholds(high, medium float64) error {
	if err := validateThresholds(high, medium); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config.HighConfidence = high
	e.config.MediumConfidence = medium
	return nil
}

func validateThresholds(high, medium float64) error {
	if high < 0 || high > 1 || medium < 0 || medium > 1 {
		return fmt.Errorf("%w: confidence thresholds must be within [0,1]", common.ErrInvalidConfig)
	}
	if medium > high {
		return fmt.Errorf("%w: medium confidence %.2f exceeds high confidence %.2f", common.ErrInvalidConfig, medium, high)
	}
	return nil
}

// Classify stores a prediction with the disposition its confidence earns.
// Classifying a (text, label) pair already on file is a no-op reported as a duplicate.
func (e *Engine) Classify(ctx context.Context, pred model.Prediction) (Result, error) {
	text := strings.TrimSpace(pred.Text)
	label := strings.TrimSpace(pred.PredictedLabel)
	if text == "" || label == "" {
		return Result{}, common.NewUserError("text and predicted label are required", nil)
	}
	if pred.Confidence < 0 || pred.Confidence > 1 {
		return Result{}, common.NewUserError(fmt.Sprintf("confidence %v is outside [0,1]", pred.Confidence), nil)
	}

	existing, err := e.storage.FindTrainingExample(ctx, text, label)
	switch {
	case err == nil:
		return duplicateResult(existing.ID, text, label), nil
	case !errors.Is(err, common.ErrNotFound):
		return Result{}, fmt.Errorf("failed to check for duplicate: %w", err)
	}

	high, medium := e.Thresholds()
	now := e.now()

	example := model.TrainingExample{
		ID:             uuid.NewString(),
		Text:           text,
		PredictedLabel: label,
		Confidence:     pred.Confidence,
		Entities:       pred.Entities,
		Source:         pred.Source,
		Priority:       model.ExamplePriorityNormal,
		CreatedAt:      now,
	}

	var message string
	switch {
	case pred.Confidence >= high:
		example.Disposition = model.DispositionAutoApproved
		example.Reviewer = &model.Reviewer{Identity: "auto", ReviewedAt: now}
		message = fmt.Sprintf("auto-approved with confidence %.2f", pred.Confidence)
	case pred.Confidence >= medium:
		example.Disposition = model.DispositionPendingReview
		message = fmt.Sprintf("queued for review with confidence %.2f", pred.Confidence)
	default:
		example.Disposition = model.DispositionPendingReview
		example.Priority = model.ExamplePriorityPriority
		message = fmt.Sprintf("queued for priority review with confidence %.2f", pred.Confidence)
	}

	if err := e.storage.SaveTrainingExample(ctx, &example); err != nil {
		if errors.Is(err, common.ErrDuplicateEntry) {
			// Lost a race with a concurrent classification of the same pair.
			existing, findErr := e.storage.FindTrainingExample(ctx, text, label)
			if findErr != nil {
				return duplicateResult("", text, label), nil
			}
			return duplicateResult(existing.ID, text, label), nil
		}
		return Result{}, fmt.Errorf("failed to save training example: %w", err)
	}

	result := Result{
		ExampleID:   example.ID,
		Disposition: example.Disposition,
		Priority:    example.Priority,
		Message:     message,
	}

	if example.Disposition == model.DispositionAutoApproved {
		if err := e.storage.RecordLabelConfidence(ctx, label, pred.Confidence); err != nil {
			slog.Warn("Failed to update label statistics", "label", label, "error", err)
		}
	}

	if example.Priority == model.ExamplePriorityPriority && e.annotator != nil {
		e.forwardToAnnotation(ctx, example)
		result.Forwarded = true
		result.Message += " and forwarded to annotation"
	}

	slog.Debug("Classified prediction",
		"example_id", example.ID,
		"label", label,
		"confidence", pred.Confidence,
		"disposition", example.Disposition,
		"priority", example.Priority)

	return result, nil
}

func duplicateResult(id, text, label string) Result {
	return Result{
		ExampleID:   id,
		Disposition: model.DispositionAutoApproved,
		Message:     fmt.Sprintf("duplicate: %q labeled %q is already on file", text, label),
		Duplicate:   true,
	}
}

// forwardToAnnotation submits the example in the background. Failures are only logged.
func (e *Engine) forwardToAnnotation(ctx context.Context, example model.TrainingExample) {
	ctx = context.WithoutCancel(ctx)

	e.bg.Add(1)
	go func() {
		defer e.bg.Done()

		err := common.WithRetry(ctx, func() error {
			callCtx, cancel := context.WithTimeout(ctx, e.config.AnnotationTimeout)
			defer cancel()
			return e.annotator.SubmitTask(callCtx, example)
		}, e.config.AnnotationRetry)
		if err != nil {
			slog.Warn("Failed to forward example to annotation queue",
				"example_id", example.ID,
				"error", err)
			return
		}
		slog.Info("Forwarded example to annotation queue", "example_id", example.ID)
	}()
}

// Wait blocks until background annotation forwards and retrain submissions finish.
func (e *Engine) Wait() {
	e.bg.Wait()
}
