package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(t *testing.T, handler gin.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	router := gin.New()
	router.GET("/test", handler)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(w, req)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestSuccess(t *testing.T) {
	w, resp := perform(t, func(c *gin.Context) {
		Success(c, gin.H{"job_id": "42"})
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, CodeSuccess, resp.Code)
	assert.Equal(t, "success", resp.Message)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "42", data["job_id"])
}

func TestSuccessWithMessage(t *testing.T) {
	_, resp := perform(t, func(c *gin.Context) {
		SuccessWithMessage(c, "session closed", nil)
	})

	assert.Equal(t, CodeSuccess, resp.Code)
	assert.Equal(t, "session closed", resp.Message)
}

func TestError_DefaultMessageFallback(t *testing.T) {
	_, resp := perform(t, func(c *gin.Context) {
		Error(c, CodeUpstreamError, "")
	})

	assert.Equal(t, CodeUpstreamError, resp.Code)
	assert.Equal(t, "upstream service error", resp.Message)
	assert.Nil(t, resp.Data)
}

func TestErrorHelpers(t *testing.T) {
	cases := []struct {
		name    string
		handler gin.HandlerFunc
		code    int
		message string
	}{
		{"param", func(c *gin.Context) { ParamError(c, "bad field") }, CodeParamError, "bad field"},
		{"auth", func(c *gin.Context) { AuthError(c, "") }, CodeAuthFailed, "authentication failed"},
		{"not found", func(c *gin.Context) { NotFoundError(c, "") }, CodeResourceNotFound, "resource not found"},
		{"conflict", func(c *gin.Context) { ConflictError(c, "busy") }, CodeConflict, "busy"},
		{"upstream", func(c *gin.Context) { UpstreamError(c, "job service down") }, CodeUpstreamError, "job service down"},
		{"server", func(c *gin.Context) { ServerError(c, "") }, CodeServerError, "internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, resp := perform(t, tc.handler)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tc.code, resp.Code)
			assert.Equal(t, tc.message, resp.Message)
		})
	}
}
