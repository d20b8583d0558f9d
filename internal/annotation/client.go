// Package annotation forwards low-confidence examples to the external annotation queue.
package annotation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Veraticus/the-model-must-learn/internal/common"
	"github.com/Veraticus/the-model-must-learn/internal/model"
)

// Config holds connection settings for the annotation service.
type Config struct {
	BaseURL      string
	ProjectID    string
	APIToken     string
	ModelVersion string
	Timeout      time.Duration
}

// Client creates annotation tasks.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	projectID    string
	apiToken     string
	modelVersion string
}

// NewClient creates an annotation service client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%w: annotation service URL", common.ErrMissingConfig)
	}
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, fmt.Errorf("%w: annotation project ID", common.ErrMissingConfig)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	modelVersion := cfg.ModelVersion
	if modelVersion == "" {
		modelVersion = "live"
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		projectID:    cfg.ProjectID,
		apiToken:     cfg.APIToken,
		modelVersion: modelVersion,
		httpClient:   &http.Client{Timeout: timeout},
	}, nil
}

type taskData struct {
	Text           string  `json:"text"`
	PredictedLabel string  `json:"predicted_label"`
	Source         string  `json:"source"`
	Confidence     float64 `json:"confidence"`
}

type choiceValue struct {
	Choices []string `json:"choices"`
}

type predictionResult struct {
	Value    choiceValue `json:"value"`
	FromName string      `json:"from_name"`
	ToName   string      `json:"to_name"`
	Type     string      `json:"type"`
}

type prediction struct {
	ModelVersion string             `json:"model_version"`
	Result       []predictionResult `json:"result"`
	Score        float64            `json:"score"`
}

type taskRequest struct {
	Data        taskData     `json:"data"`
	Predictions []prediction `json:"predictions"`
}

// SubmitTask creates one annotation task carrying the model's prediction as a pre-annotation.
func (c *Client) SubmitTask(ctx context.Context, example model.TrainingExample) error {
	body := taskRequest{
		Data: taskData{
			Text:           example.Text,
			PredictedLabel: example.PredictedLabel,
			Confidence:     example.Confidence,
			Source:         example.Source,
		},
		Predictions: []prediction{{
			ModelVersion: c.modelVersion,
			Score:        example.Confidence,
			Result: []predictionResult{{
				FromName: "intent",
				ToName:   "text",
				Type:     "choices",
				Value:    choiceValue{Choices: []string{example.PredictedLabel}},
			}},
		}},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal annotation task: %w", err)
	}

	url := fmt.Sprintf("%s/projects/%s/tasks", c.baseURL, c.projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Token "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: annotation service: %v", common.ErrServiceUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("annotation service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusTooManyRequests {
			return &common.RetryableError{Err: fmt.Errorf("%w: %v", common.ErrRateLimit, err), Retryable: true}
		}
		// Client errors will not fix themselves on retry.
		return &common.RetryableError{Err: err, Retryable: resp.StatusCode >= http.StatusInternalServerError}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
