// Package api serves the pipeline's inbound HTTP interface for the
// conversation-handling layer and reviewers.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Veraticus/the-model-must-learn/internal/coordinator"
	"github.com/Veraticus/the-model-must-learn/internal/correction"
	"github.com/Veraticus/the-model-must-learn/internal/model"
	"github.com/Veraticus/the-model-must-learn/internal/service"
	"github.com/Veraticus/the-model-must-learn/internal/triage"
)

// APIRoot prefixes every route.
const APIRoot = "/api"

// Classifier triages live predictions.
type Classifier interface {
	Classify(ctx context.Context, pred model.Prediction) (triage.Result, error)
}

// Reviewer applies reviewer decisions.
type Reviewer interface {
	Approve(ctx context.Context, id string, approval triage.Approval) (*model.TrainingExample, error)
	Reject(ctx context.Context, id, reviewer, reason string) (*model.TrainingExample, error)
}

// NeedChecker reports retraining need.
type NeedChecker interface {
	NeedsRetraining(ctx context.Context) (model.RetrainingNeed, error)
}

// ExampleLister lists stored examples.
type ExampleLister interface {
	ListTrainingExamples(ctx context.Context, filter service.ExampleFilter) ([]model.TrainingExample, error)
}

// LabelStatsSource reads per-label statistics.
type LabelStatsSource interface {
	GetLabelStats(ctx context.Context) ([]model.LabelStats, error)
}

// CorrectionTracker records explicit and implicit corrections.
type CorrectionTracker interface {
	Track(ctx context.Context, c model.Correction) (correction.Result, error)
	DetectImplicitCorrection(ctx context.Context, signal correction.ImplicitSignal) (bool, error)
}

// Retrainer arbitrates retraining requests.
type Retrainer interface {
	RequestRetrain(ctx context.Context, req model.RetrainingRequest) model.RetrainingDecision
	Status() coordinator.Status
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Classifier  Classifier
	Reviewer    Reviewer
	NeedChecker NeedChecker
	Examples    ExampleLister
	LabelStats  LabelStatsSource
	Tracker     CorrectionTracker
	Retrainer   Retrainer
	Version     string
}

// NewServer builds the echo server with every route registered.
func NewServer(deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(requestLogger)

	e.POST(APIRoot+"/classify", ClassifyHandler(deps.Classifier))
	e.GET(APIRoot+"/examples", ListExamplesHandler(deps.Examples))
	e.POST(APIRoot+"/examples/:id/approve", ApproveHandler(deps.Reviewer, "id"))
	e.POST(APIRoot+"/examples/:id/reject", RejectHandler(deps.Reviewer, "id"))

	e.POST(APIRoot+"/corrections", TrackCorrectionHandler(deps.Tracker))
	e.POST(APIRoot+"/corrections/implicit", ImplicitCorrectionHandler(deps.Tracker))

	e.GET(APIRoot+"/retrain/needed", RetrainNeededHandler(deps.NeedChecker))
	e.POST(APIRoot+"/retrain", RequestRetrainHandler(deps.Retrainer))
	e.GET(APIRoot+"/retrain/status", RetrainStatusHandler(deps.Retrainer))

	e.GET(APIRoot+"/stats/labels", LabelStatsHandler(deps.LabelStats))
	e.GET(APIRoot+"/health", HealthHandler(deps.Version))

	return e
}

// requestLogger logs server-side latency of every request.
func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		begin := time.Now()

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		attrs := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", c.Response().Status,
			"duration", time.Since(begin),
		}
		if err != nil {
			attrs = append(attrs, "error", err)
			slog.Warn("Request failed", attrs...)
			return nil
		}
		slog.Debug("Request handled", attrs...)
		return nil
	}
}
