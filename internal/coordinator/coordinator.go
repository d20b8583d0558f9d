// Package coordinator is the single arbitration point deciding whether a
// retraining job is launched against the training service.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/the-model-must-learn/internal/common"
	"github.com/Veraticus/the-model-must-learn/internal/corpus"
	"github.com/Veraticus/the-model-must-learn/internal/model"
	"github.com/Veraticus/the-model-must-learn/internal/trainer"
)

// TrainingService is the remote service that runs training jobs.
type TrainingService interface {
	Health(ctx context.Context) error
	ActiveJobs(ctx context.Context) (int, error)
	ExportFromDB(ctx context.Context) (trainer.ExportResult, error)
	Train(ctx context.Context, req trainer.TrainRequest) (trainer.TrainResponse, error)
}

// Exporter produces a corpus file locally when the service cannot.
type Exporter interface {
	Export(ctx context.Context) (corpus.Result, error)
	LastKnownGood() (corpus.Result, error)
}

// RunRecorder persists accepted submissions.
type RunRecorder interface {
	SaveTrainingRun(ctx context.Context, run *model.TrainingRun) error
}

// Config holds configuration options for the coordinator.
type Config struct {
	OutputPrefix string
	Cooldown     time.Duration
	SettleDelay  time.Duration
	Epochs       int
	BatchSize    int
	LearningRate float64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		OutputPrefix: "nlu",
		Cooldown:     30 * time.Minute,
		SettleDelay:  60 * time.Second,
		Epochs:       100,
		BatchSize:    32,
		LearningRate: 0.001,
	}
}

// Coordinator enforces cooldown and mutual exclusion over training submissions.
// It keeps no queue: rejected requests are the caller's to resubmit.
type Coordinator struct {
	training TrainingService
	exporter Exporter
	runs     RunRecorder
	now      func() time.Time
	settle   *time.Timer

	lastRequest  time.Time
	lastJobID    string
	lastDataFile string
	config       Config
	generation   uint64

	// gate serializes RequestRetrain end to end; mu guards the fields above.
	gate     sync.Mutex
	mu       sync.Mutex
	inFlight bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithExporter sets the local export fallback.
func WithExporter(e Exporter) Option {
	return func(c *Coordinator) {
		c.exporter = e
	}
}

// WithRunRecorder records every accepted submission.
func WithRunRecorder(r RunRecorder) Option {
	return func(c *Coordinator) {
		c.runs = r
	}
}

// WithClock overrides the coordinator's clock.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// New creates a coordinator in the idle state.
func New(training TrainingService, config Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		training: training,
		config:   config,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestRetrain runs the request through the cooldown, in-flight, health and
// remote-busy gates and, when all pass, exports the corpus and submits a job.
func (c *Coordinator) RequestRetrain(ctx context.Context, req model.RetrainingRequest) model.RetrainingDecision {
	c.gate.Lock()
	defer c.gate.Unlock()

	logger := slog.With("source", req.Source, "priority", req.Priority.String())
	decision := c.decide(ctx, req)
	if decision.Accepted {
		logger.Info("Retraining request accepted", "job_id", decision.JobID, "data_file", decision.DataFile)
	} else {
		logger.Info("Retraining request rejected", "gate", decision.RejectedBy, "reason", decision.Reason)
	}
	return decision
}

func (c *Coordinator) decide(ctx context.Context, req model.RetrainingRequest) model.RetrainingDecision {
	now := c.now()

	c.mu.Lock()
	lastRequest := c.lastRequest
	inFlight := c.inFlight
	c.mu.Unlock()

	if req.Priority < model.RetrainPriorityHigh && !lastRequest.IsZero() {
		if elapsed := now.Sub(lastRequest); elapsed < c.config.Cooldown {
			minutes := int(math.Ceil((c.config.Cooldown - elapsed).Minutes()))
			return reject(model.GateCooldown, fmt.Sprintf("cooldown active, %d minutes remaining", minutes))
		}
	}

	if inFlight {
		return reject(model.GateInFlight, "a training job is already in progress")
	}

	if err := c.training.Health(ctx); err != nil {
		return reject(model.GateHealth, fmt.Sprintf("training service unhealthy: %v", err))
	}

	active, err := c.training.ActiveJobs(ctx)
	if err != nil {
		return reject(model.GateRemoteBusy, fmt.Sprintf("failed to query training service status: %v", err))
	}
	if active > 0 {
		c.mu.Lock()
		c.inFlight = true
		c.scheduleSettleLocked()
		c.mu.Unlock()
		return rejectErr(model.GateRemoteBusy, fmt.Errorf("%w: training service already has %d active job(s)", common.ErrServiceBusy, active))
	}

	c.mu.Lock()
	c.inFlight = true
	c.lastRequest = now
	c.mu.Unlock()

	revert := func() {
		c.mu.Lock()
		c.inFlight = false
		c.lastRequest = lastRequest
		c.mu.Unlock()
	}

	dataFile, samples, err := c.export(ctx)
	if err != nil {
		revert()
		return reject(model.GateExport, fmt.Sprintf("no training data available: %v", err))
	}

	outputName := fmt.Sprintf("%s_%s_%s", c.config.OutputPrefix, req.Source, now.UTC().Format("20060102_150405"))
	resp, err := c.training.Train(ctx, trainer.TrainRequest{
		DataFile:     dataFile,
		OutputName:   outputName,
		TriggeredBy:  req.Source,
		Notes:        req.Reason,
		Priority:     req.Priority.String(),
		Epochs:       c.config.Epochs,
		BatchSize:    c.config.BatchSize,
		LearningRate: c.config.LearningRate,
	})
	if err != nil {
		revert()
		return reject(model.GateSubmission, fmt.Sprintf("failed to submit training job: %v", err))
	}

	c.mu.Lock()
	c.lastJobID = resp.JobID
	c.lastDataFile = dataFile
	c.scheduleSettleLocked()
	c.mu.Unlock()

	c.recordRun(context.WithoutCancel(ctx), req, resp.JobID, dataFile, samples, now)

	return model.RetrainingDecision{
		Accepted:      true,
		Reason:        fmt.Sprintf("training job %s submitted with %d samples", outputName, samples),
		JobID:         resp.JobID,
		EstimatedTime: resp.EstimatedTime.String(),
		DataFile:      dataFile,
	}
}

func reject(gate, reason string) model.RetrainingDecision {
	return model.RetrainingDecision{RejectedBy: gate, Reason: reason}
}

func rejectErr(gate string, err error) model.RetrainingDecision {
	return model.RetrainingDecision{RejectedBy: gate, Reason: err.Error(), Cause: err}
}

// export asks the service for a corpus file, then falls back to a fresh
// local export and finally to the newest previous export.
func (c *Coordinator) export(ctx context.Context) (string, int, error) {
	remote, err := c.training.ExportFromDB(ctx)
	if err == nil {
		return remote.File, remote.Samples, nil
	}
	slog.Warn("Training service export failed, falling back to local export", "error", err)

	if c.exporter == nil {
		return "", 0, err
	}

	local, localErr := c.exporter.Export(ctx)
	if localErr == nil {
		return local.File, local.Samples, nil
	}
	slog.Warn("Local export failed, falling back to last known good export", "error", localErr)

	previous, prevErr := c.exporter.LastKnownGood()
	if prevErr != nil {
		return "", 0, fmt.Errorf("remote: %v; local: %v; previous: %w", err, localErr, prevErr)
	}
	return previous.File, previous.Samples, nil
}

// scheduleSettleLocked clears inFlight after the settle delay. A newer
// schedule supersedes older ones. Callers hold c.mu.
func (c *Coordinator) scheduleSettleLocked() {
	c.generation++
	gen := c.generation

	if c.settle != nil {
		c.settle.Stop()
	}
	c.settle = time.AfterFunc(c.config.SettleDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generation != gen {
			return
		}
		c.inFlight = false
		slog.Debug("Training submission settled", "job_id", c.lastJobID)
	})
}

func (c *Coordinator) recordRun(ctx context.Context, req model.RetrainingRequest, jobID, dataFile string, samples int, at time.Time) {
	if c.runs == nil {
		return
	}

	run := &model.TrainingRun{
		ID:           uuid.NewString(),
		JobID:        jobID,
		Source:       req.Source,
		Reason:       req.Reason,
		DataFile:     dataFile,
		ExampleCount: samples,
		Priority:     req.Priority,
		SubmittedAt:  at,
	}
	if err := c.runs.SaveTrainingRun(ctx, run); err != nil {
		slog.Warn("Failed to record training run", "job_id", jobID, "error", err)
	}
}

// Status is a snapshot of the coordinator's state.
type Status struct {
	LastRequestAt     time.Time
	LastJobID         string
	LastDataFile      string
	CooldownRemaining time.Duration
	InFlight          bool
}

// Status returns the current state without waiting on an in-progress request.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		InFlight:      c.inFlight,
		LastRequestAt: c.lastRequest,
		LastJobID:     c.lastJobID,
		LastDataFile:  c.lastDataFile,
	}
	if !c.lastRequest.IsZero() {
		if remaining := c.config.Cooldown - c.now().Sub(c.lastRequest); remaining > 0 {
			st.CooldownRemaining = remaining
		}
	}
	return st
}

// Close stops the pending settle timer.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settle != nil {
		c.settle.Stop()
	}
}
