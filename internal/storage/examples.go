package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/the-model-must-learn/internal/common"
	"github.com/Veraticus/the-model-must-learn/internal/model"
	"github.com/Veraticus/the-model-must-learn/internal/service"
)

const exampleColumns = `id, text, predicted_label, confidence, entities, disposition,
	priority, source, reviewed_by, reviewed_at, reject_reason, created_at`

// SaveTrainingExample inserts a new training example.
// A (text, predicted_label) pair already on file yields common.ErrDuplicateEntry.
func (s *SQLiteStorage) SaveTrainingExample(ctx context.Context, example *model.TrainingExample) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateExample(example); err != nil {
		return err
	}

	if example.CreatedAt.IsZero() {
		example.CreatedAt = time.Now()
	}
	if example.Priority == "" {
		example.Priority = model.ExamplePriorityNormal
	}

	entities, err := encodeEntities(example.Entities)
	if err != nil {
		return err
	}

	var reviewedBy, reviewedAt sql.NullString
	if example.Reviewer != nil {
		reviewedBy = nullString(example.Reviewer.Identity)
		reviewedAt = nullString(formatTime(example.Reviewer.ReviewedAt))
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO training_examples (`+exampleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		example.ID,
		example.Text,
		example.PredictedLabel,
		example.Confidence,
		entities,
		string(example.Disposition),
		string(example.Priority),
		example.Source,
		reviewedBy,
		reviewedAt,
		nullString(example.RejectReason),
		formatTime(example.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q labeled %q", common.ErrDuplicateEntry, example.Text, example.PredictedLabel)
		}
		return fmt.Errorf("failed to save training example: %w", err)
	}

	return nil
}

// GetTrainingExample retrieves a training example by ID.
func (s *SQLiteStorage) GetTrainingExample(ctx context.Context, id string) (*model.TrainingExample, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+exampleColumns+` FROM training_examples WHERE id = ?`, id)
	example, err := scanExample(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: training example %s", common.ErrNotFound, id)
	}
	return example, err
}

// FindTrainingExample looks up the example stored for a (text, label) pair.
func (s *SQLiteStorage) FindTrainingExample(ctx context.Context, text, label string) (*model.TrainingExample, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+exampleColumns+` FROM training_examples
		WHERE text = ? AND predicted_label = ?`, text, label)
	example, err := scanExample(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: training example %q labeled %q", common.ErrNotFound, text, label)
	}
	return example, err
}

// UpdateTrainingExampleReview persists a reviewer decision.
// Only label, entities, disposition, reviewer and reject reason are written.
func (s *SQLiteStorage) UpdateTrainingExampleReview(ctx context.Context, example *model.TrainingExample) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateExample(example); err != nil {
		return err
	}

	entities, err := encodeEntities(example.Entities)
	if err != nil {
		return err
	}

	var reviewedBy, reviewedAt sql.NullString
	if example.Reviewer != nil {
		reviewedBy = nullString(example.Reviewer.Identity)
		reviewedAt = nullString(formatTime(example.Reviewer.ReviewedAt))
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE training_examples SET
			predicted_label = ?,
			entities = ?,
			disposition = ?,
			reviewed_by = ?,
			reviewed_at = ?,
			reject_reason = ?
		WHERE id = ?`,
		example.PredictedLabel,
		entities,
		string(example.Disposition),
		reviewedBy,
		reviewedAt,
		nullString(example.RejectReason),
		example.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q labeled %q", common.ErrDuplicateEntry, example.Text, example.PredictedLabel)
		}
		return fmt.Errorf("failed to update training example: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: training example %s", common.ErrNotFound, example.ID)
	}

	return nil
}

// ListTrainingExamples returns examples matching filter, priority items first.
func (s *SQLiteStorage) ListTrainingExamples(ctx context.Context, filter service.ExampleFilter) ([]model.TrainingExample, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.Disposition != "" {
		where = append(where, "disposition = ?")
		args = append(args, string(filter.Disposition))
	}
	if filter.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, string(filter.Priority))
	}

	query := `SELECT ` + exampleColumns + ` FROM training_examples`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY CASE priority WHEN 'PRIORITY' THEN 0 ELSE 1 END, created_at, id`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return s.queryExamples(ctx, query, args...)
}

// ListTrainableExamples returns every example that belongs in the training corpus.
func (s *SQLiteStorage) ListTrainableExamples(ctx context.Context) ([]model.TrainingExample, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	return s.queryExamples(ctx, `
		SELECT `+exampleColumns+` FROM training_examples
		WHERE disposition IN (?, ?)
		ORDER BY predicted_label, created_at, id`,
		string(model.DispositionAutoApproved), string(model.DispositionApproved))
}

// CountTrainableExamplesSince counts corpus examples created after since.
func (s *SQLiteStorage) CountTrainableExamplesSince(ctx context.Context, since time.Time) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM training_examples
		WHERE disposition IN (?, ?) AND created_at > ?`,
		string(model.DispositionAutoApproved), string(model.DispositionApproved), formatTime(since),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count trainable examples: %w", err)
	}
	return count, nil
}

func (s *SQLiteStorage) queryExamples(ctx context.Context, query string, args ...any) ([]model.TrainingExample, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query training examples: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var examples []model.TrainingExample
	for rows.Next() {
		example, err := scanExample(rows)
		if err != nil {
			return nil, err
		}
		examples = append(examples, *example)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate training examples: %w", err)
	}
	return examples, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExample(row rowScanner) (*model.TrainingExample, error) {
	var (
		example      model.TrainingExample
		entities     sql.NullString
		disposition  string
		priority     string
		reviewedBy   sql.NullString
		reviewedAt   sql.NullString
		rejectReason sql.NullString
		createdAt    string
	)

	err := row.Scan(
		&example.ID,
		&example.Text,
		&example.PredictedLabel,
		&example.Confidence,
		&entities,
		&disposition,
		&priority,
		&example.Source,
		&reviewedBy,
		&reviewedAt,
		&rejectReason,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan training example: %w", err)
	}

	example.Disposition = model.Disposition(disposition)
	example.Priority = model.ExamplePriority(priority)
	example.RejectReason = rejectReason.String

	if example.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	if entities.Valid && entities.String != "" {
		if err := json.Unmarshal([]byte(entities.String), &example.Entities); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entities: %w", err)
		}
	}

	if reviewedBy.Valid {
		at, err := parseNullTime(reviewedAt)
		if err != nil {
			return nil, err
		}
		example.Reviewer = &model.Reviewer{Identity: reviewedBy.String}
		if at != nil {
			example.Reviewer.ReviewedAt = *at
		}
	}

	return &example, nil
}

func encodeEntities(entities model.Entities) (sql.NullString, error) {
	if len(entities) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(entities)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal entities: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
