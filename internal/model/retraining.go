package model

import (
	"fmt"
	"strings"
	"time"
)

// RetrainPriority orders competing retraining requests.
type RetrainPriority int

// Retrain priority constants. Higher values outrank lower ones.
const (
	RetrainPriorityLow RetrainPriority = iota
	RetrainPriorityNormal
	RetrainPriorityHigh
)

func (p RetrainPriority) String() string {
	switch p {
	case RetrainPriorityLow:
		return "low"
	case RetrainPriorityNormal:
		return "normal"
	case RetrainPriorityHigh:
		return "high"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ParseRetrainPriority parses "low", "normal" or "high".
func ParseRetrainPriority(s string) (RetrainPriority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return RetrainPriorityLow, nil
	case "", "normal":
		return RetrainPriorityNormal, nil
	case "high":
		return RetrainPriorityHigh, nil
	}
	return RetrainPriorityNormal, fmt.Errorf("unknown retrain priority: %q", s)
}

// Known retraining request sources.
const (
	SourceTriage     = "triage"
	SourceCorrection = "correction"
	SourceManual     = "manual"
)

// RetrainingRequest asks the coordinator to launch a training job.
type RetrainingRequest struct {
	Source          string
	Reason          string
	NewExampleCount int
	Priority        RetrainPriority
}

// Retraining gates, in evaluation order.
const (
	GateCooldown   = "cooldown"
	GateInFlight   = "in_flight"
	GateHealth     = "health"
	GateRemoteBusy = "remote_busy"
	GateExport     = "export"
	GateSubmission = "submission"
)

// RetrainingDecision is the coordinator's synchronous answer to a request.
// RejectedBy names the gate that declined the request.
type RetrainingDecision struct {
	Reason        string `json:"reason"`
	RejectedBy    string `json:"rejected_by,omitempty"`
	JobID         string `json:"job_id,omitempty"`
	EstimatedTime string `json:"estimated_time,omitempty"`
	DataFile      string `json:"data_file,omitempty"`
	Cause         error  `json:"-"`
	Accepted      bool   `json:"accepted"`
}

// RetrainingNeed reports whether accumulated data justifies a new training run.
type RetrainingNeed struct {
	Reason          string `json:"reason"`
	NewExampleCount int    `json:"new_example_count"`
	PatternCount    int    `json:"pattern_count"`
	Needed          bool   `json:"needed"`
}

// TrainingRun is the ledger entry written for every accepted submission.
type TrainingRun struct {
	SubmittedAt  time.Time
	ID           string
	JobID        string
	Source       string
	Reason       string
	DataFile     string
	ExampleCount int
	Priority     RetrainPriority
}
