package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/the-model-must-learn/internal/model"
)

// Validation errors.
var (
	ErrNilContext            = errors.New("context cannot be nil")
	ErrEmptyString           = errors.New("string parameter cannot be empty")
	ErrNilParameter          = errors.New("parameter cannot be nil")
	ErrInvalidDisposition    = errors.New("invalid disposition")
	ErrInvalidExample        = errors.New("invalid training example")
	ErrInvalidCorrection     = errors.New("invalid correction")
	ErrInvalidTrainingRun    = errors.New("invalid training run")
	ErrInvalidConfidence     = errors.New("confidence must be between 0 and 1")
	ErrInvalidOccurrenceBase = errors.New("minimum occurrences must be positive")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateConfidence(c float64) error {
	if c < 0 || c > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidConfidence, c)
	}
	return nil
}

func validateExample(example *model.TrainingExample) error {
	if example == nil {
		return fmt.Errorf("%w: example", ErrNilParameter)
	}
	if strings.TrimSpace(example.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidExample)
	}
	if strings.TrimSpace(example.Text) == "" {
		return fmt.Errorf("%w: missing text", ErrInvalidExample)
	}
	if strings.TrimSpace(example.PredictedLabel) == "" {
		return fmt.Errorf("%w: missing predicted label", ErrInvalidExample)
	}
	if !example.Disposition.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidDisposition, example.Disposition)
	}
	if err := validateConfidence(example.Confidence); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExample, err)
	}
	return nil
}

func validateCorrection(c *model.Correction) error {
	if c == nil {
		return fmt.Errorf("%w: correction", ErrNilParameter)
	}
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidCorrection)
	}
	if strings.TrimSpace(c.SessionID) == "" {
		return fmt.Errorf("%w: missing session ID", ErrInvalidCorrection)
	}
	if strings.TrimSpace(c.PredictedLabel) == "" {
		return fmt.Errorf("%w: missing predicted label", ErrInvalidCorrection)
	}
	if strings.TrimSpace(c.ActualAction) == "" {
		return fmt.Errorf("%w: missing actual action", ErrInvalidCorrection)
	}
	if err := validateConfidence(c.PredictedConfidence); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCorrection, err)
	}
	return nil
}

func validateTrainingRun(run *model.TrainingRun) error {
	if run == nil {
		return fmt.Errorf("%w: training run", ErrNilParameter)
	}
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTrainingRun)
	}
	if strings.TrimSpace(run.Source) == "" {
		return fmt.Errorf("%w: missing source", ErrInvalidTrainingRun)
	}
	return nil
}
