// Package model defines the core domain models used throughout the application.
package model

import "time"

// Disposition indicates where a classified example sits in the review pipeline.
type Disposition string

// Disposition constants.
const (
	DispositionAutoApproved      Disposition = "AUTO_APPROVED"
	DispositionPendingReview     Disposition = "PENDING_REVIEW"
	DispositionSentForAnnotation Disposition = "SENT_FOR_ANNOTATION"
	DispositionApproved          Disposition = "APPROVED"
	DispositionRejected          Disposition = "REJECTED"
)

// IsValid reports whether d is a known disposition.
func (d Disposition) IsValid() bool {
	switch d {
	case DispositionAutoApproved, DispositionPendingReview, DispositionSentForAnnotation,
		DispositionApproved, DispositionRejected:
		return true
	}
	return false
}

// IsTrainable reports whether examples with this disposition belong in the corpus.
func (d Disposition) IsTrainable() bool {
	return d == DispositionAutoApproved || d == DispositionApproved
}

// IsReviewable reports whether a reviewer may still approve or reject the example.
func (d Disposition) IsReviewable() bool {
	return d == DispositionPendingReview || d == DispositionSentForAnnotation
}

// ExamplePriority orders the human review queue.
type ExamplePriority string

// Example priority constants.
const (
	ExamplePriorityNormal   ExamplePriority = "NORMAL"
	ExamplePriorityPriority ExamplePriority = "PRIORITY"
)

// Entities holds structured key/value annotations extracted from an utterance.
type Entities map[string]string

// Reviewer records who made a review decision and when.
type Reviewer struct {
	ReviewedAt time.Time
	Identity   string
}

// TrainingExample is one classified utterance considered for the training corpus.
type TrainingExample struct {
	CreatedAt      time.Time
	Entities       Entities
	Reviewer       *Reviewer
	ID             string
	Text           string
	PredictedLabel string
	Source         string
	Disposition    Disposition
	Priority       ExamplePriority
	RejectReason   string
	Confidence     float64
}

// Prediction is a live classification produced by the NLU model.
type Prediction struct {
	Entities       Entities `json:"entities,omitempty"`
	Text           string   `json:"text"`
	PredictedLabel string   `json:"predicted_label"`
	Source         string   `json:"source,omitempty"`
	Confidence     float64  `json:"confidence"`
}

// LabelStats tracks auto-approved volume and the running confidence mean for a label.
type LabelStats struct {
	UpdatedAt     time.Time
	Label         string
	Count         int
	AvgConfidence float64
}
