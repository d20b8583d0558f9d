package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/the-model-must-learn/internal/model"
)

// RecordLabelConfidence folds one auto-approved confidence into the label's running mean.
func (s *SQLiteStorage) RecordLabelConfidence(ctx context.Context, label string, confidence float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(label, "label"); err != nil {
		return err
	}
	if err := validateConfidence(confidence); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO label_stats (label, count, avg_confidence, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(label) DO UPDATE SET
			avg_confidence = (label_stats.avg_confidence * label_stats.count + excluded.avg_confidence) / (label_stats.count + 1),
			count = label_stats.count + 1,
			updated_at = excluded.updated_at`,
		label, confidence, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to record label confidence: %w", err)
	}
	return nil
}

// GetLabelStats returns statistics for every label, busiest first.
func (s *SQLiteStorage) GetLabelStats(ctx context.Context) ([]model.LabelStats, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT label, count, avg_confidence, updated_at
		FROM label_stats
		ORDER BY count DESC, label`)
	if err != nil {
		return nil, fmt.Errorf("failed to query label stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []model.LabelStats
	for rows.Next() {
		var (
			st        model.LabelStats
			updatedAt string
		)
		if err := rows.Scan(&st.Label, &st.Count, &st.AvgConfidence, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan label stats: %w", err)
		}
		if st.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}

	return stats, rows.Err()
}
