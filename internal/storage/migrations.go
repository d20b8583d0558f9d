package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS training_examples (
					id TEXT PRIMARY KEY,
					text TEXT NOT NULL,
					predicted_label TEXT NOT NULL,
					confidence REAL NOT NULL DEFAULT 0,
					entities TEXT,
					disposition TEXT NOT NULL,
					priority TEXT NOT NULL DEFAULT 'NORMAL',
					source TEXT NOT NULL DEFAULT '',
					reviewed_by TEXT,
					reviewed_at TEXT,
					reject_reason TEXT,
					created_at TEXT NOT NULL,
					UNIQUE(text, predicted_label)
				)`,
				`CREATE INDEX idx_training_examples_disposition ON training_examples(disposition, created_at)`,

				`CREATE TABLE IF NOT EXISTS corrections (
					id TEXT PRIMARY KEY,
					session_id TEXT NOT NULL,
					original_text TEXT NOT NULL,
					predicted_label TEXT NOT NULL,
					predicted_confidence REAL NOT NULL DEFAULT 0,
					actual_action TEXT NOT NULL,
					correction_type TEXT NOT NULL DEFAULT '',
					detail TEXT,
					used_for_training BOOLEAN NOT NULL DEFAULT 0,
					created_at TEXT NOT NULL
				)`,
				`CREATE INDEX idx_corrections_pending ON corrections(used_for_training, created_at)`,
				`CREATE INDEX idx_corrections_pair ON corrections(predicted_label, actual_action)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Add per-label confidence statistics",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS label_stats (
					label TEXT PRIMARY KEY,
					count INTEGER NOT NULL DEFAULT 0,
					avg_confidence REAL NOT NULL DEFAULT 0,
					updated_at TEXT NOT NULL
				)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Add training run ledger",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS training_runs (
					id TEXT PRIMARY KEY,
					job_id TEXT,
					source TEXT NOT NULL,
					reason TEXT,
					data_file TEXT,
					example_count INTEGER NOT NULL DEFAULT 0,
					priority INTEGER NOT NULL DEFAULT 1,
					submitted_at TEXT NOT NULL
				)`,
				`CREATE INDEX idx_training_runs_submitted ON training_runs(submitted_at)`,
			})
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion reports the schema version currently applied to the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
