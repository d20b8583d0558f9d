package api

import (
	"time"

	"github.com/Veraticus/the-model-must-learn/internal/coordinator"
	"github.com/Veraticus/the-model-must-learn/internal/model"
)

// ExampleDetail is the wire form of a training example.
type ExampleDetail struct {
	CreatedAt      time.Time             `json:"created_at"`
	ReviewedAt     *time.Time            `json:"reviewed_at,omitempty"`
	Entities       model.Entities        `json:"entities,omitempty"`
	ID             string                `json:"id"`
	Text           string                `json:"text"`
	PredictedLabel string                `json:"predicted_label"`
	Source         string                `json:"source,omitempty"`
	Disposition    model.Disposition     `json:"disposition"`
	Priority       model.ExamplePriority `json:"priority"`
	ReviewedBy     string                `json:"reviewed_by,omitempty"`
	RejectReason   string                `json:"reject_reason,omitempty"`
	Confidence     float64               `json:"confidence"`
}

// ComposeExampleDetail converts a stored example to its wire form.
func ComposeExampleDetail(ex model.TrainingExample) ExampleDetail {
	d := ExampleDetail{
		ID:             ex.ID,
		Text:           ex.Text,
		PredictedLabel: ex.PredictedLabel,
		Confidence:     ex.Confidence,
		Entities:       ex.Entities,
		Disposition:    ex.Disposition,
		Priority:       ex.Priority,
		Source:         ex.Source,
		RejectReason:   ex.RejectReason,
		CreatedAt:      ex.CreatedAt,
	}
	if ex.Reviewer != nil {
		d.ReviewedBy = ex.Reviewer.Identity
		at := ex.Reviewer.ReviewedAt
		d.ReviewedAt = &at
	}
	return d
}

// LabelStatsDetail is the wire form of per-label statistics.
type LabelStatsDetail struct {
	UpdatedAt     time.Time `json:"updated_at"`
	Label         string    `json:"label"`
	Count         int       `json:"count"`
	AvgConfidence float64   `json:"avg_confidence"`
}

// StatusDetail is the wire form of the coordinator state.
type StatusDetail struct {
	LastRequestAt            *time.Time `json:"last_request_at,omitempty"`
	LastJobID                string     `json:"last_job_id,omitempty"`
	LastDataFile             string     `json:"last_data_file,omitempty"`
	CooldownRemainingSeconds int        `json:"cooldown_remaining_seconds"`
	InFlight                 bool       `json:"in_flight"`
}

// ComposeStatusDetail converts a coordinator snapshot to its wire form.
func ComposeStatusDetail(st coordinator.Status) StatusDetail {
	d := StatusDetail{
		InFlight:                 st.InFlight,
		LastJobID:                st.LastJobID,
		LastDataFile:             st.LastDataFile,
		CooldownRemainingSeconds: int(st.CooldownRemaining.Round(time.Second) / time.Second),
	}
	if !st.LastRequestAt.IsZero() {
		at := st.LastRequestAt
		d.LastRequestAt = &at
	}
	return d
}
