package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes shared with the UI host.
const (
	CodeSuccess          = 0
	CodeParamError       = 1000
	CodeAuthFailed       = 1001
	CodeResourceNotFound = 1003
	CodeConflict         = 1005
	CodeUpstreamError    = 2000
	CodeServerError      = 5000
)

var codeMessages = map[int]string{
	CodeSuccess:          "success",
	CodeParamError:       "invalid request",
	CodeAuthFailed:       "authentication failed",
	CodeResourceNotFound: "resource not found",
	CodeConflict:         "conflicting operation",
	CodeUpstreamError:    "upstream service error",
	CodeServerError:      "internal server error",
}

// Response is the uniform envelope for every API reply.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success writes a success envelope.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage writes a success envelope with a custom message.
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// Error writes an error envelope, falling back to the code's default message.
func Error(c *gin.Context, code int, message string) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func AuthError(c *gin.Context, message string) {
	Error(c, CodeAuthFailed, message)
}

func NotFoundError(c *gin.Context, message string) {
	Error(c, CodeResourceNotFound, message)
}

func ConflictError(c *gin.Context, message string) {
	Error(c, CodeConflict, message)
}

func UpstreamError(c *gin.Context, message string) {
	Error(c, CodeUpstreamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}
