package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/the-model-must-learn/internal/model"
)

// markBatchSize keeps IN (...) lists well under SQLite's bound-parameter limit.
const markBatchSize = 500

// SaveCorrection inserts a correction record.
func (s *SQLiteStorage) SaveCorrection(ctx context.Context, correction *model.Correction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCorrection(correction); err != nil {
		return err
	}

	if correction.CreatedAt.IsZero() {
		correction.CreatedAt = time.Now()
	}

	detail, err := model.EncodeCorrectionDetail(correction.Detail)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO corrections (
			id, session_id, original_text, predicted_label, predicted_confidence,
			actual_action, correction_type, detail, used_for_training, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		correction.ID,
		correction.SessionID,
		correction.OriginalText,
		correction.PredictedLabel,
		correction.PredictedConfidence,
		correction.ActualAction,
		string(correction.Type()),
		nullString(detail),
		correction.UsedForTraining,
		formatTime(correction.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save correction: %w", err)
	}
	return nil
}

// CountPendingCorrections counts corrections not yet used for training created at or after since.
func (s *SQLiteStorage) CountPendingCorrections(ctx context.Context, since time.Time) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM corrections
		WHERE used_for_training = 0 AND created_at >= ?`,
		formatTime(since),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending corrections: %w", err)
	}
	return count, nil
}

// GetPendingCorrections returns up to limit unused corrections, oldest first.
func (s *SQLiteStorage) GetPendingCorrections(ctx context.Context, limit int) ([]model.Correction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, session_id, original_text, predicted_label, predicted_confidence,
			actual_action, correction_type, detail, used_for_training, created_at
		FROM corrections
		WHERE used_for_training = 0
		ORDER BY created_at, id`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending corrections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var corrections []model.Correction
	for rows.Next() {
		var (
			c         model.Correction
			typ       string
			detail    sql.NullString
			createdAt string
		)
		if err := rows.Scan(
			&c.ID, &c.SessionID, &c.OriginalText, &c.PredictedLabel, &c.PredictedConfidence,
			&c.ActualAction, &typ, &detail, &c.UsedForTraining, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan correction: %w", err)
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if c.Detail, err = model.DecodeCorrectionDetail(model.CorrectionType(typ), detail.String); err != nil {
			return nil, err
		}
		corrections = append(corrections, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate corrections: %w", err)
	}
	return corrections, nil
}

// MarkCorrectionsUsed flags the given corrections as used for training in a single transaction.
// Corrections already marked are left untouched; the number newly marked is returned.
func (s *SQLiteStorage) MarkCorrectionsUsed(ctx context.Context, ids []string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	total := 0
	for start := 0; start < len(ids); start += markBatchSize {
		end := min(start+markBatchSize, len(ids))
		batch := ids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE corrections SET used_for_training = 1
			WHERE used_for_training = 0 AND id IN (`+placeholders+`)`, args...)
		if err != nil {
			return 0, fmt.Errorf("failed to mark corrections used: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		total += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return total, nil
}

// GetPatternCounts groups unused corrections created at or after since by
// predicted -> actual pair. FirstSeen is the pair's earliest correction on file.
func (s *SQLiteStorage) GetPatternCounts(ctx context.Context, since time.Time) ([]model.PatternCount, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.predicted_label, c.actual_action, COUNT(*) AS n,
			(SELECT MIN(f.created_at) FROM corrections f
				WHERE f.predicted_label = c.predicted_label
				AND f.actual_action = c.actual_action) AS first_seen
		FROM corrections c
		WHERE c.used_for_training = 0 AND c.created_at >= ?
		GROUP BY c.predicted_label, c.actual_action
		ORDER BY n DESC, c.predicted_label, c.actual_action`,
		formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query pattern counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []model.PatternCount
	for rows.Next() {
		var (
			pc        model.PatternCount
			firstSeen string
		)
		if err := rows.Scan(&pc.PredictedLabel, &pc.ActualAction, &pc.Count, &firstSeen); err != nil {
			return nil, fmt.Errorf("failed to scan pattern count: %w", err)
		}
		if pc.FirstSeen, err = parseTime(firstSeen); err != nil {
			return nil, err
		}
		counts = append(counts, pc)
	}

	return counts, rows.Err()
}

// GetRepeatedCorrections reports (text, predicted, actual) triples seen at least
// minOccurrences times at or after since. Used-for-training status is ignored.
func (s *SQLiteStorage) GetRepeatedCorrections(ctx context.Context, since time.Time, minOccurrences int) ([]model.RepeatedCorrection, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if minOccurrences <= 0 {
		return nil, ErrInvalidOccurrenceBase
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT original_text, predicted_label, actual_action, COUNT(*) AS n, MAX(created_at)
		FROM corrections
		WHERE created_at >= ?
		GROUP BY original_text, predicted_label, actual_action
		HAVING COUNT(*) >= ?
		ORDER BY n DESC, original_text`,
		formatTime(since), minOccurrences)
	if err != nil {
		return nil, fmt.Errorf("failed to query repeated corrections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var repeated []model.RepeatedCorrection
	for rows.Next() {
		var (
			rc       model.RepeatedCorrection
			lastSeen string
		)
		if err := rows.Scan(&rc.Text, &rc.PredictedLabel, &rc.ActualAction, &rc.Count, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan repeated correction: %w", err)
		}
		if rc.LastSeen, err = parseTime(lastSeen); err != nil {
			return nil, err
		}
		repeated = append(repeated, rc)
	}

	return repeated, rows.Err()
}
