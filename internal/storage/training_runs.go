package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/the-model-must-learn/internal/common"
	"github.com/Veraticus/the-model-must-learn/internal/model"
)

// SaveTrainingRun appends a submitted job to the training run ledger.
func (s *SQLiteStorage) SaveTrainingRun(ctx context.Context, run *model.TrainingRun) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTrainingRun(run); err != nil {
		return err
	}

	if run.SubmittedAt.IsZero() {
		run.SubmittedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO training_runs (
			id, job_id, source, reason, data_file, example_count, priority, submitted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		nullString(run.JobID),
		run.Source,
		nullString(run.Reason),
		nullString(run.DataFile),
		run.ExampleCount,
		int(run.Priority),
		formatTime(run.SubmittedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save training run: %w", err)
	}
	return nil
}

// GetLatestTrainingRun returns the most recently submitted run, or common.ErrNotFound.
func (s *SQLiteStorage) GetLatestTrainingRun(ctx context.Context) (*model.TrainingRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		run                     model.TrainingRun
		jobID, reason, dataFile sql.NullString
		priority                int
		submittedAt             string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, job_id, source, reason, data_file, example_count, priority, submitted_at
		FROM training_runs
		ORDER BY submitted_at DESC
		LIMIT 1`,
	).Scan(&run.ID, &jobID, &run.Source, &reason, &dataFile, &run.ExampleCount, &priority, &submittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: training run", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest training run: %w", err)
	}

	run.JobID = jobID.String
	run.Reason = reason.String
	run.DataFile = dataFile.String
	run.Priority = model.RetrainPriority(priority)
	if run.SubmittedAt, err = parseTime(submittedAt); err != nil {
		return nil, err
	}
	return &run, nil
}
