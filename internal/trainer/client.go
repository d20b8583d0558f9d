// Package trainer talks to the external model training service over HTTP.
package trainer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/the-model-must-learn/internal/common"
)

// Config holds connection settings for the training service.
type Config struct {
	BaseURL        string
	HealthTimeout  time.Duration
	RequestTimeout time.Duration
}

// Client is an HTTP client for the training service.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	healthTimeout  time.Duration
	requestTimeout time.Duration
}

// NewClient creates a training service client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%w: training service URL", common.ErrMissingConfig)
	}

	healthTimeout := cfg.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 5 * time.Second
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		healthTimeout:  healthTimeout,
		requestTimeout: requestTimeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Endpoint   string
	Body       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("training service %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Unwrap lets 429 answers match common.ErrRateLimit and 5xx answers match
// common.ErrServiceUnavailable.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return common.ErrRateLimit
	}
	if e.StatusCode >= http.StatusInternalServerError {
		return common.ErrServiceUnavailable
	}
	return nil
}

type healthResponse struct {
	Status string `json:"status"`
}

// Health probes GET /health. Any status other than healthy/ok is an error.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	var resp healthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return err
	}

	switch strings.ToLower(resp.Status) {
	case "healthy", "ok":
		return nil
	}
	return fmt.Errorf("%w: training service reports status %q", common.ErrServiceUnavailable, resp.Status)
}

type statusResponse struct {
	ActiveTrainingJobs int `json:"active_training_jobs"`
}

// ActiveJobs reports how many training jobs the service is currently running.
func (c *Client) ActiveJobs(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var resp statusResponse
	if err := c.do(ctx, http.MethodGet, "/status", nil, &resp); err != nil {
		return 0, err
	}
	return resp.ActiveTrainingJobs, nil
}

// ExportResult describes a corpus file written by the training service.
type ExportResult struct {
	Status  string `json:"status"`
	File    string `json:"file"`
	Samples int    `json:"samples"`
}

// ExportFromDB asks the service to export the approved corpus to a flat file.
func (c *Client) ExportFromDB(ctx context.Context) (ExportResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var resp ExportResult
	if err := c.do(ctx, http.MethodPost, "/export-from-db", struct{}{}, &resp); err != nil {
		return ExportResult{}, err
	}
	if !strings.EqualFold(resp.Status, "success") || resp.File == "" {
		return ExportResult{}, fmt.Errorf("training service export failed: status %q, file %q", resp.Status, resp.File)
	}
	return resp, nil
}

// TrainRequest is the body of POST /train.
type TrainRequest struct {
	DataFile     string  `json:"data_file"`
	OutputName   string  `json:"output_name"`
	TriggeredBy  string  `json:"triggered_by"`
	Notes        string  `json:"notes"`
	Priority     string  `json:"priority"`
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batch_size"`
	LearningRate float64 `json:"learning_rate"`
}

// TrainResponse is the service's acknowledgement of a submitted job.
type TrainResponse struct {
	JobID         string       `json:"job_id"`
	EstimatedTime flexibleText `json:"estimated_time"`
}

// Train submits a training job.
func (c *Client) Train(ctx context.Context, req TrainRequest) (TrainResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var resp TrainResponse
	if err := c.do(ctx, http.MethodPost, "/train", req, &resp); err != nil {
		return TrainResponse{}, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", common.ErrServiceUnavailable, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Endpoint: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", path, err)
	}
	return nil
}

// flexibleText accepts either a JSON string or a JSON number.
type flexibleText string

func (f *flexibleText) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleText(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("estimated_time must be a string or number: %w", err)
	}
	*f = flexibleText(strconv.FormatFloat(n, 'f', -1, 64))
	return nil
}

// String returns the raw text.
func (f flexibleText) String() string {
	return string(f)
}
