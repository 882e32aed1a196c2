package handler

import (
	"bytes"
	"errors"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/quizforge/orchestrator/internal/pkg/response"
	"github.com/quizforge/orchestrator/internal/service"
)

type MaterialHandler struct {
	manager *service.Manager
}

func NewMaterialHandler(manager *service.Manager) *MaterialHandler {
	return &MaterialHandler{
		manager: manager,
	}
}

// Upload accepts a multipart batch and starts independent uploads.
// POST /api/v1/materials/upload
func (h *MaterialHandler) Upload(c *gin.Context) {
	session, ok := currentSession(c, h.manager)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.ParamError(c, "expected multipart form upload")
		return
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		response.ParamError(c, "no files provided")
		return
	}

	// Buffer file contents: the uploads outlive this request.
	files := make([]service.UploadFile, 0, len(headers))
	for _, header := range headers {
		src, err := header.Open()
		if err != nil {
			response.ServerError(c, "failed to read uploaded file")
			return
		}
		var buf bytes.Buffer
		_, err = io.Copy(&buf, src)
		src.Close()
		if err != nil {
			response.ServerError(c, "failed to read uploaded file")
			return
		}
		files = append(files, service.UploadFile{
			Filename: header.Filename,
			Size:     header.Size,
			Content:  &buf,
		})
	}

	if err := session.Workflow.SubmitFiles(files); err != nil {
		if errors.Is(err, service.ErrFileTooLarge) {
			response.ParamError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.SuccessWithMessage(c, "uploads started", session.Workflow.Snapshot())
}

// Delete removes one persisted material.
// DELETE /api/v1/materials/:id
func (h *MaterialHandler) Delete(c *gin.Context) {
	session, ok := currentSession(c, h.manager)
	if !ok {
		return
	}

	materialID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid material id")
		return
	}

	if err := session.Workflow.DeleteMaterial(c.Request.Context(), materialID); err != nil {
		response.UpstreamError(c, err.Error())
		return
	}

	response.Success(c, session.Workflow.Snapshot())
}

// DiscardUpload removes a failed upload slot.
// DELETE /api/v1/uploads/:tempId
func (h *MaterialHandler) DiscardUpload(c *gin.Context) {
	session, ok := currentSession(c, h.manager)
	if !ok {
		return
	}

	tempID := c.Param("tempId")
	if err := session.Workflow.Tracker().Discard(tempID); err != nil {
		switch {
		case errors.Is(err, service.ErrUploadMissing):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrUploadActive):
			response.ConflictError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, session.Workflow.Snapshot())
}
