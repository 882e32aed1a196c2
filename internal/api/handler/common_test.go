package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/quizforge/orchestrator/config"
	"github.com/quizforge/orchestrator/internal/api/middleware"
	"github.com/quizforge/orchestrator/internal/model"
	"github.com/quizforge/orchestrator/internal/pkg/response"
	"github.com/quizforge/orchestrator/internal/service"
	"github.com/quizforge/orchestrator/internal/testutil"
)

// analyzeDone scripts one finished analysis job carrying extracted text.
func analyzeDone(jobID, text string) testutil.GetResponse {
	return testutil.GetResponse{Record: &model.JobRecord{
		ID:     jobID,
		Status: model.JobStatusDone,
		Result: map[string]any{"extracted_text": text},
	}}
}

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret"

type testEnv struct {
	cfg       *config.Config
	manager   *service.Manager
	jobs      *testutil.FakeJobService
	materials *testutil.FakeMaterialService
	events    *testutil.CaptureSink
	router    *gin.Engine
}

// newTestEnv wires the handlers onto a router mirroring the production
// route layout, backed by in-memory upstreams.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		JWT:     config.JWTConfig{Secret: testSecret, ExpireHours: 1},
		Polling: config.PollingConfig{IntervalMS: 5},
		Upload: config.UploadConfig{
			MaxFileSize:   15 * 1024 * 1024,
			MaxTotalPages: 20,
		},
		Generation: config.GenerationConfig{
			MaxTotalQuestions: 100,
			MinSourceChars:    100,
		},
	}

	jobs := testutil.NewFakeJobService()
	materials := testutil.NewFakeMaterialService()
	events := testutil.NewCaptureSink()
	manager := service.NewManager(cfg, jobs, materials, events)

	sessionHandler := NewSessionHandler(manager, cfg)
	generationHandler := NewGenerationHandler(manager)
	materialHandler := NewMaterialHandler(manager)
	bulkHandler := NewBulkHandler(manager)

	router := gin.New()
	api := router.Group("/api/v1")
	api.POST("/session", sessionHandler.Create)

	authenticated := api.Group("")
	authenticated.Use(middleware.Auth(cfg.JWT.Secret))
	{
		authenticated.DELETE("/session", sessionHandler.Close)

		generation := authenticated.Group("/generation")
		{
			generation.GET("/state", generationHandler.State)
			generation.POST("/start", generationHandler.Start)
			generation.PUT("/counters", generationHandler.SetCounter)
			generation.PUT("/difficulty", generationHandler.SetDifficulty)
			generation.PUT("/source", generationHandler.SetSource)
			generation.PUT("/instructions", generationHandler.SetInstructions)
			generation.POST("/reedit/:jobId", generationHandler.Reedit)
		}

		authenticated.POST("/materials/upload", materialHandler.Upload)
		authenticated.DELETE("/materials/:id", materialHandler.Delete)
		authenticated.DELETE("/uploads/:tempId", materialHandler.DiscardUpload)

		selection := authenticated.Group("/selection")
		{
			selection.GET("", bulkHandler.State)
			selection.POST("/toggle", bulkHandler.Toggle)
			selection.PUT("", bulkHandler.SelectAll)
			selection.DELETE("", bulkHandler.Clear)
		}

		questions := authenticated.Group("/questions")
		{
			questions.POST("/regenerate", bulkHandler.Regenerate)
			questions.POST("/convert", bulkHandler.Convert)
		}
	}

	return &testEnv{
		cfg:       cfg,
		manager:   manager,
		jobs:      jobs,
		materials: materials,
		events:    events,
		router:    router,
	}
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// openSession creates a session through the API and returns its id and token.
func (e *testEnv) openSession(t *testing.T) (string, string) {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/v1/session", "", nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)

	data := resp.Data.(map[string]interface{})
	sessionID, _ := data["session_id"].(string)
	token, _ := data["token"].(string)
	require.NotEmpty(t, sessionID)
	require.NotEmpty(t, token)
	return sessionID, token
}

// multipartUpload builds a multipart request with one part per file under the
// "files" field.
func (e *testEnv) multipartUpload(t *testing.T, token string, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for filename, content := range files {
		part, err := writer.CreateFormFile("files", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/materials/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}
