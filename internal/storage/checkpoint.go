package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Checkpoint errors.
var (
	ErrCheckpointExists    = errors.New("checkpoint already exists")
	ErrCheckpointCorrupted = errors.New("checkpoint integrity check failed")
	ErrInvalidCheckpoint   = errors.New("invalid checkpoint tag")
)

// CheckpointInfo describes one database snapshot.
type CheckpointInfo struct {
	CreatedAt     time.Time      `json:"created_at"`
	RowCounts     map[string]int `json:"row_counts"`
	ID            string         `json:"id"`
	Description   string         `json:"description"`
	Path          string         `json:"-"`
	FileSize      int64          `json:"file_size"`
	SchemaVersion int            `json:"schema_version"`
}

// checkpointTables are counted into every snapshot's metadata.
var checkpointTables = map[string]string{
	"training_examples": "SELECT COUNT(*) FROM training_examples",
	"corrections":       "SELECT COUNT(*) FROM corrections",
	"label_stats":       "SELECT COUNT(*) FROM label_stats",
	"training_runs":     "SELECT COUNT(*) FROM training_runs",
}

// CreateCheckpoint writes a consistent copy of the database into dir as <tag>.db
// with a <tag>.meta.json sidecar. An empty tag is generated from the current time.
func (s *SQLiteStorage) CreateCheckpoint(ctx context.Context, dir, tag, description string) (*CheckpointInfo, error) {
	if tag == "" {
		tag = "checkpoint-" + time.Now().UTC().Format("20060102-150405")
	}
	if strings.ContainsAny(tag, `/\'";`) || strings.Contains(tag, "..") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCheckpoint, tag)
	}

	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve checkpoint directory: %w", err)
	}
	if strings.ContainsAny(dir, `'";`) {
		return nil, fmt.Errorf("invalid checkpoint directory: %s", dir)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	dest := filepath.Join(dir, tag+".db")
	if _, statErr := os.Stat(dest); statErr == nil {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointExists, tag)
	}

	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(checkpointTables))
	for table, query := range checkpointTables {
		var n int
		if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}

	// #nosec G201 - dest is built from validated components above
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", dest)); err != nil {
		return nil, fmt.Errorf("failed to snapshot database: %w", err)
	}

	if err := verifyIntegrity(ctx, dest); err != nil {
		removeQuietly(dest)
		return nil, err
	}

	stat, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to stat checkpoint: %w", err)
	}

	info := &CheckpointInfo{
		ID:            tag,
		CreatedAt:     time.Now().UTC(),
		Description:   description,
		Path:          dest,
		FileSize:      stat.Size(),
		RowCounts:     counts,
		SchemaVersion: version,
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		removeQuietly(dest)
		return nil, fmt.Errorf("failed to encode checkpoint metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, tag+".meta.json"), data, 0600); err != nil {
		removeQuietly(dest)
		return nil, fmt.Errorf("failed to write checkpoint metadata: %w", err)
	}

	return info, nil
}

// ListCheckpoints returns the snapshots in dir, newest first.
// Snapshots with unreadable metadata are skipped.
func ListCheckpoints(dir string) ([]CheckpointInfo, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var out []CheckpointInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".meta.json") {
			continue
		}

		// #nosec G304 - name comes from the checkpoint directory listing
		data, readErr := os.ReadFile(filepath.Join(dir, name))
		if readErr != nil {
			slog.Warn("skipping unreadable checkpoint metadata", "file", name, "error", readErr)
			continue
		}
		var info CheckpointInfo
		if jsonErr := json.Unmarshal(data, &info); jsonErr != nil {
			slog.Warn("skipping corrupt checkpoint metadata", "file", name, "error", jsonErr)
			continue
		}
		info.Path = filepath.Join(dir, strings.TrimSuffix(name, ".meta.json")+".db")
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func verifyIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("failed to close checkpoint database", "error", err)
		}
	}()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpointCorrupted, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: %s", ErrCheckpointCorrupted, result)
	}
	return nil
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("failed to remove checkpoint file", "path", path, "error", err)
	}
}
