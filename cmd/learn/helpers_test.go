package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-model-must-learn/internal/common"
	"github.com/Veraticus/the-model-must-learn/internal/config"
	"github.com/Veraticus/the-model-must-learn/internal/model"
)

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	s := config.Defaults()
	dir := t.TempDir()
	s.DatabasePath = filepath.Join(dir, "learn.db")
	s.ExportDir = filepath.Join(dir, "exports")
	return s
}

func newTestPipeline(t *testing.T) *pipeline {
	t.Helper()
	p, err := newPipeline(context.Background(), testSettings(t))
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestParseEntities(t *testing.T) {
	tests := []struct {
		name    string
		want    model.Entities
		input   []string
		wantErr bool
	}{
		{name: "none", input: nil, want: nil},
		{name: "pairs", input: []string{"city=paris", " dish = pizza "}, want: model.Entities{"city": "paris", "dish": "pizza"}},
		{name: "empty value", input: []string{"time="}, want: model.Entities{"time": ""}},
		{name: "missing equals", input: []string{"paris"}, wantErr: true},
		{name: "missing name", input: []string{"=paris"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEntities(tt.input)
			if tt.wantErr {
				var userErr *common.UserError
				assert.ErrorAs(t, err, &userErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCorrectionDetail(t *testing.T) {
	tests := []struct {
		want    model.CorrectionDetail
		name    string
		kind    string
		entity  string
		wantErr bool
	}{
		{name: "default is explicit", kind: "", want: model.ExplicitFeedback{UserMessage: "no, a hotel"}},
		{name: "button", kind: "button", want: model.ButtonOverride{SelectedAction: "book_hotel"}},
		{name: "mismatch", kind: "intent-mismatch", want: model.IntentMismatch{Confidence: 0.4}},
		{name: "entity", kind: "ENTITY_MISSING", entity: "city", want: model.EntityMissing{Entity: "city", Value: "rome"}},
		{name: "entity without name", kind: "entity", wantErr: true},
		{name: "unknown", kind: "telepathy", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := correctionDetail(tt.kind, "no, a hotel", "book_hotel", tt.entity, "rome", 0.4)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComponentConfigs(t *testing.T) {
	s := config.Defaults()
	s.HighConfidence = 0.9
	s.RetrainThreshold = 40
	s.Cooldown = 5 * time.Minute
	s.ActionLabels = map[string][]string{"pay": {"payment"}}

	tc := triageConfig(s)
	assert.InDelta(t, 0.9, tc.HighConfidence, 1e-9)
	assert.Equal(t, 40, tc.RetrainThreshold)
	assert.Positive(t, tc.AnnotationRetry.MaxAttempts)

	cc := trackerConfig(s)
	assert.Equal(t, 40, cc.RetrainThreshold)
	assert.Equal(t, map[string][]string{"pay": {"payment"}}, cc.ActionLabels)
	assert.Equal(t, s.PatternWindow, cc.Window)

	s.ActionLabels = nil
	assert.NotEmpty(t, trackerConfig(s).ActionLabels)

	assert.Equal(t, 5*time.Minute, coordinatorConfig(s).Cooldown)
	assert.Equal(t, "nlu", coordinatorConfig(s).OutputPrefix)
}

func TestNewAnnotator(t *testing.T) {
	s := config.Defaults()
	a, err := newAnnotator(s)
	require.NoError(t, err)
	assert.Nil(t, a)

	s.AnnotationURL = "http://annotations.local"
	s.AnnotationProjectID = "7"
	a, err = newAnnotator(s)
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestApplyThresholds(t *testing.T) {
	p := newTestPipeline(t)
	write := fsnotify.Event{Name: "config.yaml", Op: fsnotify.Write}

	v := viper.New()
	v.Set("triage.high_confidence", 0.95)
	v.Set("triage.medium_confidence", 0.5)
	applyThresholds(p, write, v)

	high, medium := p.engine.Thresholds()
	assert.InDelta(t, 0.95, high, 1e-9)
	assert.InDelta(t, 0.5, medium, 1e-9)

	bad := viper.New()
	bad.Set("triage.high_confidence", 0.4)
	bad.Set("triage.medium_confidence", 0.6)
	applyThresholds(p, write, bad)

	high, medium = p.engine.Thresholds()
	assert.InDelta(t, 0.95, high, 1e-9, "invalid change ignored")
	assert.InDelta(t, 0.5, medium, 1e-9)

	v.Set("triage.high_confidence", 0.99)
	applyThresholds(p, fsnotify.Event{Name: "config.yaml", Op: fsnotify.Chmod}, v)
	high, _ = p.engine.Thresholds()
	assert.InDelta(t, 0.95, high, 1e-9, "chmod does not reload")
}

func TestSweepJobs(t *testing.T) {
	p := newTestPipeline(t)

	jobs := sweepJobs(p)
	require.Len(t, jobs, 3)

	intervals := map[string]time.Duration{}
	for _, job := range jobs {
		intervals[job.Name] = job.Interval
		require.NoError(t, job.Run(context.Background()), job.Name)
	}
	assert.Equal(t, map[string]time.Duration{
		"retrain-check":     24 * time.Hour,
		"correction-sweep":  time.Hour,
		"correction-report": 24 * time.Hour,
	}, intervals)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "book a...", truncateString("book a flight to paris", 9))
	assert.Equal(t, "ñañ", truncateString("ñañaña", 3))
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", formatFileSize(512))
	assert.Equal(t, "1.5 KB", formatFileSize(1536))
	assert.Equal(t, "2.0 MB", formatFileSize(2*1024*1024))
}
