package handler

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizforge/orchestrator/internal/pkg/response"
	"github.com/quizforge/orchestrator/internal/service"
)

func TestMaterialHandler_Upload(t *testing.T) {
	env := newTestEnv(t)
	sessionID, token := env.openSession(t)

	env.jobs.Script("analyze-1", analyzeDone("analyze-1", "alpha"))

	w := env.multipartUpload(t, token, map[string]string{"notes.pdf": "chapter one"})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, "uploads started", resp.Message)

	session, err := env.manager.Get(sessionID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(session.Workflow.Snapshot().Materials) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, env.materials.UploadCalls())
}

func TestMaterialHandler_UploadRejectsEmptyForm(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.openSession(t)

	w := env.multipartUpload(t, token, map[string]string{})
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
	assert.Equal(t, 0, env.materials.UploadCalls())
}

func TestMaterialHandler_UploadRejectsNonMultipart(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.openSession(t)

	w := env.do(t, http.MethodPost, "/api/v1/materials/upload", token, map[string]any{"files": "nope"})
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
}

func TestMaterialHandler_UploadRejectsOversizedBatch(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.openSession(t)

	// One oversized file rejects the whole batch before any upstream call.
	w := env.multipartUpload(t, token, map[string]string{
		"ok.pdf":   "small",
		"huge.pdf": strings.Repeat("x", 15*1024*1024+1),
	})
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeParamError, resp.Code)
	assert.Contains(t, resp.Message, "huge.pdf")
	assert.Equal(t, 0, env.materials.UploadCalls())
}

func TestMaterialHandler_Delete(t *testing.T) {
	env := newTestEnv(t)
	sessionID, token := env.openSession(t)

	env.jobs.Script("analyze-1", analyzeDone("analyze-1", "alpha"))
	w := env.multipartUpload(t, token, map[string]string{"notes.pdf": "chapter one"})
	require.Equal(t, response.CodeSuccess, parseResponse(t, w).Code)

	session, err := env.manager.Get(sessionID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(session.Workflow.Snapshot().Materials) == 1
	}, time.Second, 5*time.Millisecond)

	w = env.do(t, http.MethodDelete, "/api/v1/materials/1", token, nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Contains(t, env.materials.Deleted(), int64(1))

	w = env.do(t, http.MethodDelete, "/api/v1/materials/abc", token, nil)
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
}

func TestMaterialHandler_DiscardUpload(t *testing.T) {
	env := newTestEnv(t)
	sessionID, token := env.openSession(t)

	env.materials.FailUpload("bad.pdf", "corrupt stream")
	w := env.multipartUpload(t, token, map[string]string{"bad.pdf": "x"})
	require.Equal(t, response.CodeSuccess, parseResponse(t, w).Code)

	session, err := env.manager.Get(sessionID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return !session.Workflow.Tracker().Busy()
	}, time.Second, 5*time.Millisecond)

	tasks := session.Workflow.Tracker().Tasks()
	require.Len(t, tasks, 1)

	w = env.do(t, http.MethodDelete, "/api/v1/uploads/"+tasks[0].TempID, token, nil)
	require.Equal(t, response.CodeSuccess, parseResponse(t, w).Code)
	assert.Empty(t, session.Workflow.Tracker().Tasks())

	w = env.do(t, http.MethodDelete, "/api/v1/uploads/"+tasks[0].TempID, token, nil)
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
	assert.Equal(t, service.ErrUploadMissing.Error(), resp.Message)
}
