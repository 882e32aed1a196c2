package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/quizforge/orchestrator/internal/model"
	"github.com/quizforge/orchestrator/internal/pkg/logger"
)

// MaterialsClient talks to the material service: upload source files, kick
// analysis, fetch and delete persisted materials.
type MaterialsClient struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewMaterialsClient(baseURL string, timeout time.Duration) *MaterialsClient {
	return &MaterialsClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: logger.Get(),
	}
}

// AnalyzeResult is the response of a batch analyze call: one job per
// material plus the recomputed page total.
type AnalyzeResult struct {
	Jobs       []model.AnalyzeJobBinding `json:"jobs"`
	TotalPages int                       `json:"total_pages"`
}

// Upload transfers one file and returns the persisted material.
func (c *MaterialsClient) Upload(ctx context.Context, filename string, content io.Reader) (*model.Material, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to read file content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	url := c.baseURL + "/api/v1/materials/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("material service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError("material service", resp)
	}

	var material model.Material
	if err := json.NewDecoder(resp.Body).Decode(&material); err != nil {
		return nil, fmt.Errorf("failed to decode material: %w", err)
	}

	c.log.Debug().Str("filename", filename).Int64("material_id", material.ID).Msg("material uploaded")
	return &material, nil
}

// UploadBatch transfers several files in one request. The tracker uploads
// per file for failure isolation; this variant serves callers that want the
// single round trip.
func (c *MaterialsClient) UploadBatch(ctx context.Context, files map[string]io.Reader) ([]model.Material, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for filename, content := range files {
		part, err := writer.CreateFormFile("files", filename)
		if err != nil {
			return nil, fmt.Errorf("failed to build multipart body: %w", err)
		}
		if _, err := io.Copy(part, content); err != nil {
			return nil, fmt.Errorf("failed to read file content: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	url := c.baseURL + "/api/v1/materials/upload-batch"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("material service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError("material service", resp)
	}

	var materials []model.Material
	if err := json.NewDecoder(resp.Body).Decode(&materials); err != nil {
		return nil, fmt.Errorf("failed to decode materials: %w", err)
	}
	return materials, nil
}

type analyzeRequest struct {
	MaterialIDs []int64 `json:"material_ids"`
}

// Analyze starts analysis jobs for the given materials.
func (c *MaterialsClient) Analyze(ctx context.Context, materialIDs []int64) (*AnalyzeResult, error) {
	body, err := json.Marshal(analyzeRequest{MaterialIDs: materialIDs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analyze request: %w", err)
	}

	url := c.baseURL + "/api/v1/materials/analyze"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("material service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError("material service", resp)
	}

	var result AnalyzeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode analyze response: %w", err)
	}
	return &result, nil
}

// Delete removes one persisted material.
func (c *MaterialsClient) Delete(ctx context.Context, materialID int64) error {
	url := c.baseURL + "/api/v1/materials/" + strconv.FormatInt(materialID, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("material service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError("material service", resp)
	}
	return nil
}

// Get fetches one material. Used by the re-edit entry path to rebuild prior
// state.
func (c *MaterialsClient) Get(ctx context.Context, materialID int64) (*model.Material, error) {
	url := c.baseURL + "/api/v1/materials/" + strconv.FormatInt(materialID, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("material service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError("material service", resp)
	}

	var material model.Material
	if err := json.NewDecoder(resp.Body).Decode(&material); err != nil {
		return nil, fmt.Errorf("failed to decode material: %w", err)
	}
	return &material, nil
}
