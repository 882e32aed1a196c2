package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/quizforge/orchestrator/internal/model"
	"github.com/quizforge/orchestrator/internal/pkg/logger"
)

// JobsClient talks to the job service: enqueue an operation, poll its record.
type JobsClient struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewJobsClient(baseURL string, timeout time.Duration) *JobsClient {
	return &JobsClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: logger.Get(),
	}
}

type enqueueRequest struct {
	Kind   string `json:"kind"`
	Params any    `json:"params,omitempty"`
}

type enqueueResponse struct {
	JobID string `json:"job_id"`
}

// Enqueue submits one logical operation and returns the assigned job id.
func (c *JobsClient) Enqueue(ctx context.Context, kind string, params any) (string, error) {
	body, err := json.Marshal(enqueueRequest{Kind: kind, Params: params})
	if err != nil {
		return "", fmt.Errorf("failed to marshal enqueue request: %w", err)
	}

	url := c.baseURL + "/api/v1/jobs"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("job service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", decodeError("job service", resp)
	}

	var out enqueueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode enqueue response: %w", err)
	}
	if out.JobID == "" {
		return "", fmt.Errorf("job service returned no job id")
	}

	c.log.Debug().Str("kind", kind).Str("job_id", out.JobID).Msg("job enqueued")
	return out.JobID, nil
}

// Get fetches one job record. The status is normalized on ingestion.
func (c *JobsClient) Get(ctx context.Context, jobID string) (*model.JobRecord, error) {
	url := c.baseURL + "/api/v1/jobs/" + jobID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("job service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError("job service", resp)
	}

	var record model.JobRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode job record: %w", err)
	}

	normalized := record.Normalize()
	return &normalized, nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func decodeError(service string, resp *http.Response) error {
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		if body.Error != "" {
			return fmt.Errorf("%s: %s", service, body.Error)
		}
		if body.Message != "" {
			return fmt.Errorf("%s: %s", service, body.Message)
		}
	}
	return fmt.Errorf("%s returned status %d", service, resp.StatusCode)
}
