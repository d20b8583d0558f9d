// Package correction records user corrections of NLU predictions, detects
// recurring mispredictions, and asks for retraining once enough corrections
// have piled up.
package correction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/the-model-must-learn/internal/common"
	"github.com/Veraticus/the-model-must-learn/internal/model"
	"github.com/Veraticus/the-model-must-learn/internal/service"
)

// RetrainRequester is the arbitration point that decides whether a training job launches.
type RetrainRequester interface {
	RequestRetrain(ctx context.Context, req model.RetrainingRequest) model.RetrainingDecision
}

// Config holds configuration options for the tracker.
type Config struct {
	// ActionLabels maps a user action to the predicted labels consistent with it.
	ActionLabels          map[string][]string
	PatternThreshold      int
	RetrainThreshold      int
	HighPriorityThreshold int
	FoldLimit             int
	ImplicitConfidence    float64
	Window                time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ActionLabels:          DefaultActionLabels(),
		PatternThreshold:      3,
		RetrainThreshold:      100,
		HighPriorityThreshold: 200,
		FoldLimit:             1000,
		ImplicitConfidence:    0.6,
		Window:                7 * 24 * time.Hour,
	}
}

// DefaultActionLabels is the built-in action to expected-labels map.
func DefaultActionLabels() map[string][]string {
	return map[string][]string{
		"order_food":      {"order_food", "restaurant_search"},
		"book_flight":     {"book_flight", "search_flights"},
		"book_hotel":      {"book_hotel", "search_hotels"},
		"cancel_booking":  {"cancel_booking"},
		"check_status":    {"check_status", "track_order"},
		"request_human":   {"request_human", "complaint"},
		"weather_lookup":  {"weather"},
		"account_balance": {"check_balance"},
	}
}

type patternKey struct {
	predicted string
	actual    string
}

// Tracker records corrections and maintains the rolling pattern counter.
type Tracker struct {
	storage   service.Storage
	requester RetrainRequester
	counts    map[patternKey]int
	now       func() time.Time
	config    Config
	bg        sync.WaitGroup
	mu        sync.Mutex

	// seed keeps Load from reading a correction that Track has saved but
	// not yet counted. Track holds it shared, Load exclusively.
	seed       sync.RWMutex
	submitting atomic.Bool
}

// New creates a tracker. Call Load to seed the pattern counter from storage.
func New(storage service.Storage, requester RetrainRequester, config Config) *Tracker {
	if config.ActionLabels == nil {
		config.ActionLabels = DefaultActionLabels()
	}
	return &Tracker{
		storage:   storage,
		requester: requester,
		config:    config,
		counts:    make(map[patternKey]int),
		now:       time.Now,
	}
}

// Result is the outcome of tracking one correction.
type Result struct {
	CorrectionID     string `json:"correction_id"`
	PatternCount     int    `json:"pattern_count"`
	PendingCount     int    `json:"pending_count"`
	Tracked          bool   `json:"tracked"`
	IsPattern        bool   `json:"is_pattern"`
	RetrainTriggered bool   `json:"retrain_triggered"`
}

// Load replaces the in-memory pattern counter with the unused corrections
// recorded inside the trailing window.
func (t *Tracker) Load(ctx context.Context) error {
	t.seed.Lock()
	defer t.seed.Unlock()

	counts, err := t.storage.GetPatternCounts(ctx, t.now().Add(-t.config.Window))
	if err != nil {
		return fmt.Errorf("failed to load correction patterns: %w", err)
	}

	fresh := make(map[patternKey]int, len(counts))
	for _, pc := range counts {
		fresh[patternKey{pc.PredictedLabel, pc.ActualAction}] = pc.Count
	}

	t.mu.Lock()
	t.counts = fresh
	t.mu.Unlock()

	slog.Debug("Loaded correction patterns", "pairs", len(fresh))
	return nil
}

// PatternCount returns the current counter value for a predicted -> actual pair.
func (t *Tracker) PatternCount(predicted, actual string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[patternKey{predicted, actual}]
}

// Track records a correction and reports whether its pair has become a pattern.
// When the pending backlog reaches the retrain threshold a retraining request
// is submitted in the background.
func (t *Tracker) Track(ctx context.Context, c model.Correction) (Result, error) {
	c.SessionID = strings.TrimSpace(c.SessionID)
	c.PredictedLabel = strings.TrimSpace(c.PredictedLabel)
	c.ActualAction = strings.TrimSpace(c.ActualAction)
	if c.SessionID == "" || c.PredictedLabel == "" || c.ActualAction == "" {
		return Result{}, common.NewUserError("session, predicted label and actual action are required", nil)
	}
	if c.PredictedConfidence < 0 || c.PredictedConfidence > 1 {
		return Result{}, common.NewUserError(fmt.Sprintf("confidence %v is outside [0,1]", c.PredictedConfidence), nil)
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = t.now()
	}
	c.UsedForTraining = false

	n, err := t.record(ctx, &c)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		CorrectionID: c.ID,
		Tracked:      true,
		PatternCount: n,
		IsPattern:    n >= t.config.PatternThreshold,
	}

	if result.IsPattern {
		slog.Info("Correction pattern detected",
			"predicted", c.PredictedLabel,
			"actual", c.ActualAction,
			"count", n)
	}

	pending, err := t.storage.CountPendingCorrections(ctx, t.now().Add(-t.config.Window))
	if err != nil {
		slog.Warn("Failed to count pending corrections", "error", err)
		return result, nil
	}
	result.PendingCount = pending

	if pending >= t.config.RetrainThreshold {
		result.RetrainTriggered = true
		t.submitInBackground(ctx, pending)
	}

	return result, nil
}

// record saves the correction and counts it as one step under the seed lock.
func (t *Tracker) record(ctx context.Context, c *model.Correction) (int, error) {
	t.seed.RLock()
	defer t.seed.RUnlock()

	if err := t.storage.SaveCorrection(ctx, c); err != nil {
		return 0, fmt.Errorf("failed to save correction: %w", err)
	}

	key := patternKey{c.PredictedLabel, c.ActualAction}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[key]++
	return t.counts[key], nil
}

// ImplicitSignal is what the conversation layer observed after a prediction.
type ImplicitSignal struct {
	SessionID   string
	UserMessage string
	UserAction  string
	FlowContext string
	Prediction  model.Prediction
}

// DetectImplicitCorrection infers a correction from the user's next action.
// A button outside the set expected for the predicted label wins over a
// low-confidence prediction. It returns false without side effects when
// neither fires.
func (t *Tracker) DetectImplicitCorrection(ctx context.Context, signal ImplicitSignal) (bool, error) {
	detail := t.classifySignal(signal)
	if detail == nil {
		return false, nil
	}

	text := signal.UserMessage
	if strings.TrimSpace(text) == "" {
		text = signal.Prediction.Text
	}

	result, err := t.Track(ctx, model.Correction{
		SessionID:           signal.SessionID,
		OriginalText:        text,
		PredictedLabel:      signal.Prediction.PredictedLabel,
		PredictedConfidence: signal.Prediction.Confidence,
		ActualAction:        signal.UserAction,
		Detail:              detail,
	})
	if err != nil {
		return false, err
	}

	slog.Debug("Implicit correction tracked",
		"correction_id", result.CorrectionID,
		"type", detail.Type(),
		"flow", signal.FlowContext)
	return true, nil
}

func (t *Tracker) classifySignal(signal ImplicitSignal) model.CorrectionDetail {
	action := strings.TrimSpace(signal.UserAction)
	if action == "" {
		return nil
	}

	if expected, ok := t.config.ActionLabels[action]; ok && !contains(expected, signal.Prediction.PredictedLabel) {
		return model.ButtonOverride{SelectedAction: action, ExpectedLabels: expected}
	}

	if signal.Prediction.Confidence < t.config.ImplicitConfidence {
		return model.IntentMismatch{
			Confidence: signal.Prediction.Confidence,
			Threshold:  t.config.ImplicitConfidence,
		}
	}

	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// Wait blocks until background retrain submissions finish.
func (t *Tracker) Wait() {
	t.bg.Wait()
}
