package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizforge/orchestrator/internal/pkg/jwt"
	"github.com/quizforge/orchestrator/internal/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret"

func authRouter() *gin.Engine {
	router := gin.New()
	router.GET("/protected", Auth(testSecret), func(c *gin.Context) {
		sessionID, ok := GetSessionID(c)
		if !ok {
			response.ServerError(c, "session id missing")
			return
		}
		response.Success(c, gin.H{"session_id": sessionID})
	})
	return router
}

func performAuth(t *testing.T, header string) response.Response {
	t.Helper()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	authRouter().ServeHTTP(w, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAuth_Success(t *testing.T) {
	token, err := jwt.GenerateToken("session-1", testSecret, 1)
	require.NoError(t, err)

	resp := performAuth(t, "Bearer "+token)
	assert.Equal(t, response.CodeSuccess, resp.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "session-1", data["session_id"])
}

func TestAuth_MissingHeader(t *testing.T) {
	resp := performAuth(t, "")
	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}

func TestAuth_MalformedHeader(t *testing.T) {
	token, err := jwt.GenerateToken("session-1", testSecret, 1)
	require.NoError(t, err)

	resp := performAuth(t, token) // no Bearer prefix
	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}

func TestAuth_InvalidToken(t *testing.T) {
	resp := performAuth(t, "Bearer not-a-token")
	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}

func TestAuth_WrongSecret(t *testing.T) {
	token, err := jwt.GenerateToken("session-1", "other-secret", 1)
	require.NoError(t, err)

	resp := performAuth(t, "Bearer "+token)
	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}

func TestGetSessionID_Unset(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := GetSessionID(c)
	assert.False(t, ok)
}
