package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/the-model-must-learn/internal/common"
)

// Settings is the complete runtime configuration.
type Settings struct {
	ActionLabels map[string][]string

	DatabasePath string
	ExportDir    string
	ListenAddr   string

	TrainingURL           string
	AnnotationURL         string
	AnnotationProjectID   string
	AnnotationToken       string
	AnnotationModel       string
	HealthTimeout         time.Duration
	RequestTimeout        time.Duration
	AnnotationTimeout     time.Duration
	PatternWindow         time.Duration
	Cooldown              time.Duration
	SettleDelay           time.Duration
	TriageCheckInterval   time.Duration
	CorrectionSweepPeriod time.Duration
	CorrectionReportEvery time.Duration

	HighConfidence        float64
	MediumConfidence      float64
	ImplicitConfidence    float64
	LearningRate          float64
	RetrainThreshold      int
	HighPriorityThreshold int
	PatternThreshold      int
	MinPatterns           int
	FoldLimit             int
	Epochs                int
	BatchSize             int
}

// Defaults returns the built-in configuration.
func Defaults() Settings {
	return Settings{
		DatabasePath:          "~/.local/share/learn/learn.db",
		ExportDir:             "~/.local/share/learn/exports",
		ListenAddr:            ":8080",
		TrainingURL:           "http://localhost:8000",
		AnnotationModel:       "live",
		HealthTimeout:         5 * time.Second,
		RequestTimeout:        10 * time.Second,
		AnnotationTimeout:     5 * time.Second,
		PatternWindow:         7 * 24 * time.Hour,
		Cooldown:              30 * time.Minute,
		SettleDelay:           60 * time.Second,
		TriageCheckInterval:   24 * time.Hour,
		CorrectionSweepPeriod: time.Hour,
		CorrectionReportEvery: 24 * time.Hour,
		HighConfidence:        0.85,
		MediumConfidence:      0.70,
		ImplicitConfidence:    0.6,
		LearningRate:          0.001,
		RetrainThreshold:      100,
		HighPriorityThreshold: 200,
		PatternThreshold:      3,
		MinPatterns:           5,
		FoldLimit:             1000,
		Epochs:                100,
		BatchSize:             32,
	}
}

// Load builds Settings with this precedence:
// 1. Viper configuration (config file or LEARN_ env vars)
// 2. Direct environment variables (HIGH_CONFIDENCE, TRAINING_SERVICE_URL, ...)
// 3. Default values
func Load(v *viper.Viper) (Settings, error) {
	s := Defaults()
	l := loader{v: v}

	l.str(&s.DatabasePath, "database.path", "")
	l.str(&s.ExportDir, "export.dir", "")
	l.str(&s.ListenAddr, "server.address", "")

	l.float(&s.HighConfidence, "triage.high_confidence", "HIGH_CONFIDENCE")
	l.float(&s.MediumConfidence, "triage.medium_confidence", "MEDIUM_CONFIDENCE")
	l.integer(&s.RetrainThreshold, "triage.retrain_threshold", "RETRAIN_THRESHOLD")
	l.integer(&s.HighPriorityThreshold, "triage.high_priority_threshold", "")
	l.integer(&s.PatternThreshold, "triage.pattern_threshold", "PATTERN_THRESHOLD")
	l.integer(&s.MinPatterns, "triage.min_patterns", "")
	l.duration(&s.PatternWindow, "triage.pattern_window", "")

	l.float(&s.ImplicitConfidence, "correction.implicit_confidence", "")
	l.integer(&s.FoldLimit, "correction.fold_limit", "")
	if v.IsSet("correction.action_labels") {
		s.ActionLabels = v.GetStringMapStringSlice("correction.action_labels")
	}

	l.minutes(&s.Cooldown, "coordinator.cooldown_minutes", "COOLDOWN_MINUTES")
	l.duration(&s.SettleDelay, "coordinator.settle_delay", "")
	l.integer(&s.Epochs, "coordinator.epochs", "")
	l.integer(&s.BatchSize, "coordinator.batch_size", "")
	l.float(&s.LearningRate, "coordinator.learning_rate", "")

	l.str(&s.TrainingURL, "training.url", "TRAINING_SERVICE_URL")
	l.duration(&s.HealthTimeout, "training.health_timeout", "")
	l.duration(&s.RequestTimeout, "training.request_timeout", "")

	l.str(&s.AnnotationURL, "annotation.url", "ANNOTATION_SERVICE_URL")
	l.str(&s.AnnotationProjectID, "annotation.project_id", "ANNOTATION_PROJECT_ID")
	l.str(&s.AnnotationToken, "annotation.api_token", "ANNOTATION_API_TOKEN")
	l.str(&s.AnnotationModel, "annotation.model_version", "")
	l.duration(&s.AnnotationTimeout, "annotation.timeout", "")

	l.duration(&s.TriageCheckInterval, "schedule.retrain_check", "")
	l.duration(&s.CorrectionSweepPeriod, "schedule.correction_sweep", "")
	l.duration(&s.CorrectionReportEvery, "schedule.correction_report", "")

	if l.err != nil {
		return Settings{}, l.err
	}

	s.DatabasePath = ExpandPath(s.DatabasePath)
	s.ExportDir = ExpandPath(s.ExportDir)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks that the settings are internally consistent.
func (s Settings) Validate() error {
	var problems []string

	if s.HighConfidence < 0 || s.HighConfidence > 1 {
		problems = append(problems, fmt.Sprintf("high confidence %.2f outside [0,1]", s.HighConfidence))
	}
	if s.MediumConfidence < 0 || s.MediumConfidence > 1 {
		problems = append(problems, fmt.Sprintf("medium confidence %.2f outside [0,1]", s.MediumConfidence))
	}
	if s.MediumConfidence > s.HighConfidence {
		problems = append(problems, "medium confidence exceeds high confidence")
	}
	if s.ImplicitConfidence < 0 || s.ImplicitConfidence > 1 {
		problems = append(problems, fmt.Sprintf("implicit confidence %.2f outside [0,1]", s.ImplicitConfidence))
	}
	for name, n := range map[string]int{
		"retrain threshold":       s.RetrainThreshold,
		"high priority threshold": s.HighPriorityThreshold,
		"pattern threshold":       s.PatternThreshold,
		"min patterns":            s.MinPatterns,
		"epochs":                  s.Epochs,
		"batch size":              s.BatchSize,
	} {
		if n <= 0 {
			problems = append(problems, name+" must be positive")
		}
	}
	if s.Cooldown < 0 {
		problems = append(problems, "cooldown must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"pattern window":           s.PatternWindow,
		"settle delay":             s.SettleDelay,
		"retrain check interval":   s.TriageCheckInterval,
		"correction sweep period":  s.CorrectionSweepPeriod,
		"correction report period": s.CorrectionReportEvery,
	} {
		if d <= 0 {
			problems = append(problems, name+" must be positive")
		}
	}
	if s.AnnotationURL != "" && s.AnnotationProjectID == "" {
		problems = append(problems, "annotation project id is required when an annotation URL is set")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", common.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// loader resolves one setting at a time, remembering the first parse error.
type loader struct {
	v   *viper.Viper
	err error
}

func (l *loader) lookup(key, env string) (string, bool) {
	if l.v.IsSet(key) {
		return l.v.GetString(key), true
	}
	if env != "" {
		if val, ok := os.LookupEnv(env); ok && strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val), true
		}
	}
	return "", false
}

func (l *loader) fail(key, raw string, err error) {
	if l.err == nil {
		l.err = fmt.Errorf("%w: %s=%q: %v", common.ErrInvalidConfig, key, raw, err)
	}
}

func (l *loader) str(dst *string, key, env string) {
	if raw, ok := l.lookup(key, env); ok {
		*dst = raw
	}
}

func (l *loader) float(dst *float64, key, env string) {
	raw, ok := l.lookup(key, env)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		l.fail(key, raw, err)
		return
	}
	*dst = f
}

func (l *loader) integer(dst *int, key, env string) {
	raw, ok := l.lookup(key, env)
	if !ok {
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		l.fail(key, raw, err)
		return
	}
	*dst = n
}

func (l *loader) duration(dst *time.Duration, key, env string) {
	raw, ok := l.lookup(key, env)
	if !ok {
		return
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		l.fail(key, raw, err)
		return
	}
	*dst = d
}

func (l *loader) minutes(dst *time.Duration, key, env string) {
	raw, ok := l.lookup(key, env)
	if !ok {
		return
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		l.fail(key, raw, err)
		return
	}
	*dst = time.Duration(n * float64(time.Minute))
}
