package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizforge/orchestrator/internal/model"
)

func TestMaterialsClient_Upload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/materials/upload", r.URL.Path)

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()

		content, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "notes.pdf", header.Filename)
		assert.Equal(t, "chapter one", string(content))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":       1,
			"file_id":  "file-1",
			"filename": "notes.pdf",
		})
	}))
	defer server.Close()

	client := NewMaterialsClient(server.URL, testTimeout)
	material, err := client.Upload(context.Background(), "notes.pdf", strings.NewReader("chapter one"))

	require.NoError(t, err)
	assert.Equal(t, int64(1), material.ID)
	assert.Equal(t, "notes.pdf", material.Filename)
}

func TestMaterialsClient_UploadErrorSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unsupported file type"})
	}))
	defer server.Close()

	client := NewMaterialsClient(server.URL, testTimeout)
	_, err := client.Upload(context.Background(), "notes.exe", strings.NewReader("x"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestMaterialsClient_UploadBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/materials/upload-batch", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		var names []string
		for _, header := range r.MultipartForm.File["files"] {
			names = append(names, header.Filename)
		}
		sort.Strings(names)
		assert.Equal(t, []string{"a.pdf", "b.pdf"}, names)

		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "filename": "a.pdf"},
			{"id": 2, "filename": "b.pdf"},
		})
	}))
	defer server.Close()

	client := NewMaterialsClient(server.URL, testTimeout)
	materials, err := client.UploadBatch(context.Background(), map[string]io.Reader{
		"a.pdf": strings.NewReader("alpha"),
		"b.pdf": strings.NewReader("beta"),
	})

	require.NoError(t, err)
	require.Len(t, materials, 2)
}

func TestMaterialsClient_Analyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/materials/analyze", r.URL.Path)

		var req analyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []int64{1, 2}, req.MaterialIDs)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"jobs": []map[string]any{
				{"job_id": "analyze-1", "material": map[string]any{"id": 1}},
				{"job_id": "analyze-2", "material": map[string]any{"id": 2}},
			},
			"total_pages": 9,
		})
	}))
	defer server.Close()

	client := NewMaterialsClient(server.URL, testTimeout)
	result, err := client.Analyze(context.Background(), []int64{1, 2})

	require.NoError(t, err)
	require.Len(t, result.Jobs, 2)
	assert.Equal(t, "analyze-1", result.Jobs[0].JobID)
	assert.Equal(t, int64(2), result.Jobs[1].Material.ID)
	assert.Equal(t, 9, result.TotalPages)
}

func TestMaterialsClient_Delete(t *testing.T) {
	var deletedPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		deletedPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewMaterialsClient(server.URL, testTimeout)
	require.NoError(t, client.Delete(context.Background(), 7))
	assert.Equal(t, "/api/v1/materials/7", deletedPath)
}

func TestMaterialsClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/materials/7", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":              7,
			"filename":        "notes.pdf",
			"extracted_text":  "alpha",
			"analysis_status": model.MaterialStatusDone,
		})
	}))
	defer server.Close()

	client := NewMaterialsClient(server.URL, testTimeout)
	material, err := client.Get(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, "alpha", material.ExtractedText)
	assert.Equal(t, model.MaterialStatusDone, material.AnalysisStatus)
}
