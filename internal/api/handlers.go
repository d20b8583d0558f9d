package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Veraticus/the-model-must-learn/internal/correction"
	"github.com/Veraticus/the-model-must-learn/internal/model"
	"github.com/Veraticus/the-model-must-learn/internal/service"
	"github.com/Veraticus/the-model-must-learn/internal/triage"
)

// ClassifyHandler triages one prediction.
func ClassifyHandler(classifier Classifier) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := new(model.Prediction)
		if err := c.Bind(req); err != nil {
			return badRequest("can not understand the requested json", err)
		}

		result, err := classifier.Classify(c.Request().Context(), *req)
		if err != nil {
			return fromError(err)
		}

		status := http.StatusCreated
		if result.Duplicate {
			status = http.StatusOK
		}
		return c.JSON(status, result)
	}
}

// ListExamplesHandler lists examples filtered by disposition and priority query parameters.
func ListExamplesHandler(lister ExampleLister) echo.HandlerFunc {
	return func(c echo.Context) error {
		filter := service.ExampleFilter{}

		if v := c.QueryParam("disposition"); v != "" {
			d := model.Disposition(strings.ToUpper(v))
			if !d.IsValid() {
				return badRequest("unknown disposition: "+v, nil)
			}
			filter.Disposition = d
		}

		switch p := model.ExamplePriority(strings.ToUpper(c.QueryParam("priority"))); p {
		case "":
		case model.ExamplePriorityNormal, model.ExamplePriorityPriority:
			filter.Priority = p
		default:
			return badRequest("unknown priority: "+c.QueryParam("priority"), nil)
		}

		if v := c.QueryParam("limit"); v != "" {
			limit, err := strconv.Atoi(v)
			if err != nil || limit < 0 {
				return badRequest("limit must be a non-negative integer", err)
			}
			filter.Limit = limit
		}

		examples, err := lister.ListTrainingExamples(c.Request().Context(), filter)
		if err != nil {
			return fromError(err)
		}

		resp := make([]ExampleDetail, 0, len(examples))
		for _, ex := range examples {
			resp = append(resp, ComposeExampleDetail(ex))
		}
		return c.JSON(http.StatusOK, resp)
	}
}

// ApproveRequest is the body of an approval.
type ApproveRequest struct {
	Entities model.Entities `json:"entities,omitempty"`
	Reviewer string         `json:"reviewer"`
	Label    string         `json:"label,omitempty"`
}

// ApproveHandler approves a pending example.
func ApproveHandler(reviewer Reviewer, idParam string) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := new(ApproveRequest)
		if err := c.Bind(req); err != nil {
			return badRequest("can not understand the requested json", err)
		}

		ex, err := reviewer.Approve(c.Request().Context(), c.Param(idParam), triage.Approval{
			Reviewer: req.Reviewer,
			Label:    req.Label,
			Entities: req.Entities,
		})
		if err != nil {
			return fromError(err)
		}
		return c.JSON(http.StatusOK, ComposeExampleDetail(*ex))
	}
}

// RejectRequest is the body of a rejection.
type RejectRequest struct {
	Reviewer string `json:"reviewer"`
	Reason   string `json:"reason,omitempty"`
}

// RejectHandler rejects a pending example.
func RejectHandler(reviewer Reviewer, idParam string) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := new(RejectRequest)
		if err := c.Bind(req); err != nil {
			return badRequest("can not understand the requested json", err)
		}

		ex, err := reviewer.Reject(c.Request().Context(), c.Param(idParam), req.Reviewer, req.Reason)
		if err != nil {
			return fromError(err)
		}
		return c.JSON(http.StatusOK, ComposeExampleDetail(*ex))
	}
}

// CorrectionRequest is the body of an explicit correction.
type CorrectionRequest struct {
	SessionID           string  `json:"session_id"`
	Text                string  `json:"text"`
	PredictedLabel      string  `json:"predicted_label"`
	ActualAction        string  `json:"actual_action"`
	Type                string  `json:"type,omitempty"`
	UserMessage         string  `json:"user_message,omitempty"`
	SelectedAction      string  `json:"selected_action,omitempty"`
	Entity              string  `json:"entity,omitempty"`
	EntityValue         string  `json:"entity_value,omitempty"`
	PredictedConfidence float64 `json:"predicted_confidence"`
}

func (r CorrectionRequest) detail() (model.CorrectionDetail, error) {
	switch model.CorrectionType(strings.ToUpper(r.Type)) {
	case "", model.CorrectionExplicitFeedback:
		return model.ExplicitFeedback{UserMessage: r.UserMessage}, nil
	case model.CorrectionButtonOverride:
		action := r.SelectedAction
		if action == "" {
			action = r.ActualAction
		}
		return model.ButtonOverride{SelectedAction: action}, nil
	case model.CorrectionIntentMismatch:
		return model.IntentMismatch{Confidence: r.PredictedConfidence}, nil
	case model.CorrectionEntityMissing:
		if r.Entity == "" {
			return nil, badRequest("entity is required for ENTITY_MISSING corrections", nil)
		}
		return model.EntityMissing{Entity: r.Entity, Value: r.EntityValue}, nil
	}
	return nil, badRequest("unknown correction type: "+r.Type, nil)
}

// TrackCorrectionHandler records an explicit correction.
func TrackCorrectionHandler(tracker CorrectionTracker) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := new(CorrectionRequest)
		if err := c.Bind(req); err != nil {
			return badRequest("can not understand the requested json", err)
		}

		detail, err := req.detail()
		if err != nil {
			return err
		}

		result, err := tracker.Track(c.Request().Context(), model.Correction{
			SessionID:           req.SessionID,
			OriginalText:        req.Text,
			PredictedLabel:      req.PredictedLabel,
			PredictedConfidence: req.PredictedConfidence,
			ActualAction:        req.ActualAction,
			Detail:              detail,
		})
		if err != nil {
			return fromError(err)
		}
		return c.JSON(http.StatusCreated, result)
	}
}

// ImplicitRequest is the body of an implicit correction check.
type ImplicitRequest struct {
	SessionID   string           `json:"session_id"`
	UserMessage string           `json:"user_message"`
	UserAction  string           `json:"user_action"`
	FlowContext string           `json:"flow_context,omitempty"`
	Prediction  model.Prediction `json:"prediction"`
}

// ImplicitResponse reports whether a correction was inferred.
type ImplicitResponse struct {
	Corrected bool `json:"corrected"`
}

// ImplicitCorrectionHandler infers a correction from the user's next action.
func ImplicitCorrectionHandler(tracker CorrectionTracker) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := new(ImplicitRequest)
		if err := c.Bind(req); err != nil {
			return badRequest("can not understand the requested json", err)
		}

		corrected, err := tracker.DetectImplicitCorrection(c.Request().Context(), correction.ImplicitSignal{
			SessionID:   req.SessionID,
			UserMessage: req.UserMessage,
			UserAction:  req.UserAction,
			FlowContext: req.FlowContext,
			Prediction:  req.Prediction,
		})
		if err != nil {
			return fromError(err)
		}
		return c.JSON(http.StatusOK, ImplicitResponse{Corrected: corrected})
	}
}

// RetrainNeededHandler reports whether retraining is warranted.
func RetrainNeededHandler(checker NeedChecker) echo.HandlerFunc {
	return func(c echo.Context) error {
		need, err := checker.NeedsRetraining(c.Request().Context())
		if err != nil {
			return fromError(err)
		}
		return c.JSON(http.StatusOK, need)
	}
}

// RetrainRequest is the body of a manual retraining request.
type RetrainRequest struct {
	Reason   string `json:"reason"`
	Priority string `json:"priority,omitempty"`
}

// RequestRetrainHandler submits a manual retraining request. Rejections are
// ordinary outcomes and answered with 200.
func RequestRetrainHandler(retrainer Retrainer) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := new(RetrainRequest)
		if err := c.Bind(req); err != nil {
			return badRequest("can not understand the requested json", err)
		}

		priority, err := model.ParseRetrainPriority(req.Priority)
		if err != nil {
			return badRequest(err.Error(), err)
		}

		reason := req.Reason
		if strings.TrimSpace(reason) == "" {
			reason = "manual request"
		}

		decision := retrainer.RequestRetrain(c.Request().Context(), model.RetrainingRequest{
			Source:   model.SourceManual,
			Reason:   reason,
			Priority: priority,
		})

		status := http.StatusOK
		if decision.Accepted {
			status = http.StatusAccepted
		}
		return c.JSON(status, decision)
	}
}

// RetrainStatusHandler reports the coordinator state.
func RetrainStatusHandler(retrainer Retrainer) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, ComposeStatusDetail(retrainer.Status()))
	}
}

// LabelStatsHandler lists per-label statistics.
func LabelStatsHandler(source LabelStatsSource) echo.HandlerFunc {
	return func(c echo.Context) error {
		stats, err := source.GetLabelStats(c.Request().Context())
		if err != nil {
			return fromError(err)
		}

		resp := make([]LabelStatsDetail, 0, len(stats))
		for _, s := range stats {
			resp = append(resp, LabelStatsDetail{
				Label:         s.Label,
				Count:         s.Count,
				AvgConfidence: s.AvgConfidence,
				UpdatedAt:     s.UpdatedAt,
			})
		}
		return c.JSON(http.StatusOK, resp)
	}
}

// HealthResponse is the body of the health check.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// HealthHandler answers liveness probes.
func HealthHandler(version string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Version: version})
	}
}
