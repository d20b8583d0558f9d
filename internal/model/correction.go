package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// CorrectionType names the signal that revealed a misclassification.
type CorrectionType string

// Correction type constants.
const (
	CorrectionButtonOverride   CorrectionType = "BUTTON_OVERRIDE"
	CorrectionIntentMismatch   CorrectionType = "INTENT_MISMATCH"
	CorrectionEntityMissing    CorrectionType = "ENTITY_MISSING"
	CorrectionExplicitFeedback CorrectionType = "EXPLICIT_FEEDBACK"
)

// CorrectionDetail is the variant-specific payload of a correction.
type CorrectionDetail interface {
	Type() CorrectionType
}

// ButtonOverride is recorded when the user picked an action outside the set
// consistent with the predicted label.
type ButtonOverride struct {
	SelectedAction string   `json:"selected_action"`
	ExpectedLabels []string `json:"expected_labels,omitempty"`
}

// Type implements CorrectionDetail.
func (ButtonOverride) Type() CorrectionType { return CorrectionButtonOverride }

// IntentMismatch is recorded when a low-confidence prediction was followed by
// a different user action.
type IntentMismatch struct {
	Confidence float64 `json:"confidence"`
	Threshold  float64 `json:"threshold"`
}

// Type implements CorrectionDetail.
func (IntentMismatch) Type() CorrectionType { return CorrectionIntentMismatch }

// EntityMissing is recorded when the model failed to extract an entity the user supplied.
type EntityMissing struct {
	Entity string `json:"entity"`
	Value  string `json:"value,omitempty"`
}

// Type implements CorrectionDetail.
func (EntityMissing) Type() CorrectionType { return CorrectionEntityMissing }

// ExplicitFeedback is recorded when the user said outright that the assistant misunderstood.
type ExplicitFeedback struct {
	UserMessage string `json:"user_message"`
}

// Type implements CorrectionDetail.
func (ExplicitFeedback) Type() CorrectionType { return CorrectionExplicitFeedback }

// Correction is one observed mismatch between a prediction and the user's actual action.
type Correction struct {
	CreatedAt           time.Time
	Detail              CorrectionDetail
	ID                  string
	SessionID           string
	OriginalText        string
	PredictedLabel      string
	ActualAction        string
	PredictedConfidence float64
	UsedForTraining     bool
}

// Type returns the correction's variant, or "" when no detail is attached.
func (c *Correction) Type() CorrectionType {
	if c.Detail == nil {
		return ""
	}
	return c.Detail.Type()
}

// EncodeCorrectionDetail serializes a detail for storage.
func EncodeCorrectionDetail(d CorrectionDetail) (string, error) {
	if d == nil {
		return "", nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s detail: %w", d.Type(), err)
	}
	return string(data), nil
}

// DecodeCorrectionDetail restores a detail previously written by EncodeCorrectionDetail.
func DecodeCorrectionDetail(typ CorrectionType, data string) (CorrectionDetail, error) {
	if typ == "" {
		return nil, nil
	}

	var detail CorrectionDetail
	switch typ {
	case CorrectionButtonOverride:
		detail = &ButtonOverride{}
	case CorrectionIntentMismatch:
		detail = &IntentMismatch{}
	case CorrectionEntityMissing:
		detail = &EntityMissing{}
	case CorrectionExplicitFeedback:
		detail = &ExplicitFeedback{}
	default:
		return nil, fmt.Errorf("unknown correction type: %s", typ)
	}

	if data != "" {
		if err := json.Unmarshal([]byte(data), detail); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s detail: %w", typ, err)
		}
	}

	// Return value types so callers can type-switch on the plain structs.
	switch d := detail.(type) {
	case *ButtonOverride:
		return *d, nil
	case *IntentMismatch:
		return *d, nil
	case *EntityMissing:
		return *d, nil
	case *ExplicitFeedback:
		return *d, nil
	}
	return detail, nil
}

// PatternCount is the number of unused corrections for one predicted -> actual pair.
type PatternCount struct {
	FirstSeen      time.Time
	PredictedLabel string
	ActualAction   string
	Count          int
}

// RepeatedCorrection is a (text, predicted, actual) triple that keeps recurring.
type RepeatedCorrection struct {
	LastSeen       time.Time
	Text           string
	PredictedLabel string
	ActualAction   string
	Count          int
}
