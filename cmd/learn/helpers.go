package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/Veraticus/the-model-must-learn/internal/annotation"
	"github.com/Veraticus/the-model-must-learn/internal/common"
	"github.com/Veraticus/the-model-must-learn/internal/config"
	"github.com/Veraticus/the-model-must-learn/internal/coordinator"
	"github.com/Veraticus/the-model-must-learn/internal/corpus"
	"github.com/Veraticus/the-model-must-learn/internal/correction"
	"github.com/Veraticus/the-model-must-learn/internal/model"
	"github.com/Veraticus/the-model-must-learn/internal/storage"
	"github.com/Veraticus/the-model-must-learn/internal/trainer"
	"github.com/Veraticus/the-model-must-learn/internal/triage"
)

// loadSettings reads the typed settings from the global viper instance.
func loadSettings() (config.Settings, error) {
	return config.Load(viper.GetViper())
}

// initStorage opens the database and brings the schema up to date.
func initStorage(ctx context.Context, settings config.Settings) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(settings.DatabasePath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// pipeline is every component of the learning loop wired over one database.
type pipeline struct {
	store       *storage.SQLiteStorage
	engine      *triage.Engine
	tracker     *correction.Tracker
	coordinator *coordinator.Coordinator
	exporter    *corpus.Exporter
	settings    config.Settings
}

// newPipeline wires storage, the triage engine, the correction tracker and
// the retraining coordinator from settings.
func newPipeline(ctx context.Context, settings config.Settings, opts ...corpus.Option) (*pipeline, error) {
	store, err := initStorage(ctx, settings)
	if err != nil {
		return nil, err
	}

	annotator, err := newAnnotator(settings)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	engine, err := triage.New(store, annotator, triageConfig(settings))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	training, err := trainer.NewClient(trainer.Config{
		BaseURL:        settings.TrainingURL,
		HealthTimeout:  settings.HealthTimeout,
		RequestTimeout: settings.RequestTimeout,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	exporter := corpus.NewExporter(store, settings.ExportDir, opts...)
	coord := coordinator.New(training, coordinatorConfig(settings),
		coordinator.WithExporter(exporter),
		coordinator.WithRunRecorder(store),
	)

	return &pipeline{
		store:       store,
		engine:      engine,
		tracker:     correction.New(store, coord, trackerConfig(settings)),
		coordinator: coord,
		exporter:    exporter,
		settings:    settings,
	}, nil
}

// Close drains background work, then closes the database.
func (p *pipeline) Close() {
	p.engine.Wait()
	p.tracker.Wait()
	p.coordinator.Close()
	if err := p.store.Close(); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}

// newAnnotator returns nil when no annotation service is configured.
func newAnnotator(settings config.Settings) (triage.Annotator, error) {
	if settings.AnnotationURL == "" {
		slog.Debug("Annotation service not configured, low-confidence examples stay local")
		return nil, nil
	}
	client, err := annotation.NewClient(annotation.Config{
		BaseURL:      settings.AnnotationURL,
		ProjectID:    settings.AnnotationProjectID,
		APIToken:     settings.AnnotationToken,
		ModelVersion: settings.AnnotationModel,
		Timeout:      settings.AnnotationTimeout,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func triageConfig(s config.Settings) triage.Config {
	cfg := triage.DefaultConfig()
	cfg.HighConfidence = s.HighConfidence
	cfg.MediumConfidence = s.MediumConfidence
	cfg.RetrainThreshold = s.RetrainThreshold
	cfg.HighPriorityThreshold = s.HighPriorityThreshold
	cfg.PatternThreshold = s.PatternThreshold
	cfg.MinPatterns = s.MinPatterns
	cfg.PatternWindow = s.PatternWindow
	cfg.AnnotationTimeout = s.AnnotationTimeout
	return cfg
}

func trackerConfig(s config.Settings) correction.Config {
	cfg := correction.DefaultConfig()
	if s.ActionLabels != nil {
		cfg.ActionLabels = s.ActionLabels
	}
	cfg.PatternThreshold = s.PatternThreshold
	cfg.RetrainThreshold = s.RetrainThreshold
	cfg.HighPriorityThreshold = s.HighPriorityThreshold
	cfg.FoldLimit = s.FoldLimit
	cfg.ImplicitConfidence = s.ImplicitConfidence
	cfg.Window = s.PatternWindow
	return cfg
}

func coordinatorConfig(s config.Settings) coordinator.Config {
	cfg := coordinator.DefaultConfig()
	cfg.Cooldown = s.Cooldown
	cfg.SettleDelay = s.SettleDelay
	cfg.Epochs = s.Epochs
	cfg.BatchSize = s.BatchSize
	cfg.LearningRate = s.LearningRate
	return cfg
}

// parseEntities turns repeated key=value flags into entities.
func parseEntities(pairs []string) (model.Entities, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	entities := make(model.Entities, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, common.NewUserError(fmt.Sprintf("entity %q must look like name=value", pair), nil)
		}
		entities[key] = strings.TrimSpace(value)
	}
	return entities, nil
}

// correctionDetail builds the variant payload for a correction type name.
func correctionDetail(kind, userMessage, actualAction, entity, entityValue string, confidence float64) (model.CorrectionDetail, error) {
	switch strings.ToLower(strings.ReplaceAll(kind, "-", "_")) {
	case "", "explicit", "explicit_feedback":
		return model.ExplicitFeedback{UserMessage: userMessage}, nil
	case "button", "button_override":
		return model.ButtonOverride{SelectedAction: actualAction}, nil
	case "mismatch", "intent_mismatch":
		return model.IntentMismatch{Confidence: confidence}, nil
	case "entity", "entity_missing":
		if entity == "" {
			return nil, common.NewUserError("--entity is required for entity corrections", nil)
		}
		return model.EntityMissing{Entity: entity, Value: entityValue}, nil
	}
	return nil, common.NewUserError(fmt.Sprintf("unknown correction type %q (explicit, button, mismatch, entity)", kind), nil)
}

// truncateString shortens s to max runes with an ellipsis.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
