package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/the-model-must-learn/internal/common"
	"github.com/Veraticus/the-model-must-learn/internal/model"
)

const filePrefix = "nlu_"

// Source provides the examples that make up the corpus.
type Source interface {
	ListTrainableExamples(ctx context.Context) ([]model.TrainingExample, error)
}

// Result describes a written export.
type Result struct {
	File    string
	Samples int
	Intents int
}

// Exporter writes corpus exports into a directory.
type Exporter struct {
	source     Source
	now        func() time.Time
	onProgress func(done, total int)
	dir        string
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithProgress reports progress after each intent block is built.
func WithProgress(fn func(done, total int)) Option {
	return func(e *Exporter) {
		e.onProgress = fn
	}
}

// WithClock overrides the clock used to name export files.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		e.now = now
	}
}

// NewExporter creates an exporter writing into dir.
func NewExporter(source Source, dir string, opts ...Option) *Exporter {
	e := &Exporter{
		source: source,
		dir:    dir,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dir returns the export directory.
func (e *Exporter) Dir() string {
	return e.dir
}

// Export writes the current corpus to a new file. An empty corpus is an error.
func (e *Exporter) Export(ctx context.Context) (Result, error) {
	examples, err := e.source.ListTrainableExamples(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load corpus: %w", err)
	}
	if len(examples) == 0 {
		return Result{}, fmt.Errorf("%w: corpus is empty", common.ErrNoExport)
	}

	doc := Build(examples)
	if e.onProgress != nil {
		for i := range doc.NLU {
			e.onProgress(i+1, len(doc.NLU))
		}
	}

	path, err := e.write(doc)
	if err != nil {
		return Result{}, err
	}

	slog.Info("Exported training corpus", "file", path, "samples", doc.Samples(), "intents", len(doc.NLU))
	return Result{File: path, Samples: doc.Samples(), Intents: len(doc.NLU)}, nil
}

func (e *Exporter) write(doc Document) (string, error) {
	if err := os.MkdirAll(e.dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	path := e.nextPath()

	tmp, err := os.CreateTemp(e.dir, ".export-*.yml")
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	enc := yaml.NewEncoder(tmp)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to encode corpus: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to flush corpus: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close export file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to finalize export file: %w", err)
	}
	return path, nil
}

func (e *Exporter) nextPath() string {
	stamp := e.now().UTC().Format("20060102_150405")
	path := filepath.Join(e.dir, filePrefix+stamp+".yml")
	for i := 1; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path
		}
		path = filepath.Join(e.dir, fmt.Sprintf("%s%s_%d.yml", filePrefix, stamp, i))
	}
}

// LastKnownGood returns the newest readable export in the directory.
func (e *Exporter) LastKnownGood() (Result, error) {
	matches, err := filepath.Glob(filepath.Join(e.dir, filePrefix+"*.yml"))
	if err != nil {
		return Result{}, fmt.Errorf("failed to list exports: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))

	for _, path := range matches {
		doc, err := ReadFile(path)
		if err != nil {
			slog.Warn("Skipping unreadable export", "file", path, "error", err)
			continue
		}
		if doc.Samples() == 0 {
			continue
		}
		return Result{File: path, Samples: doc.Samples(), Intents: len(doc.NLU)}, nil
	}

	return Result{}, fmt.Errorf("%w: no previous export in %s", common.ErrNoExport, e.dir)
}

// ReadFile decodes an export file.
func ReadFile(path string) (Document, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the export directory
	if err != nil {
		return Document{}, fmt.Errorf("failed to open export: %w", err)
	}
	defer func() { _ = f.Close() }()

	var doc Document
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("failed to decode export %s: %w", path, err)
	}
	return doc, nil
}
