package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/quizforge/orchestrator/internal/model/dto"
	"github.com/quizforge/orchestrator/internal/pkg/response"
	"github.com/quizforge/orchestrator/internal/service"
)

type BulkHandler struct {
	manager *service.Manager
}

func NewBulkHandler(manager *service.Manager) *BulkHandler {
	return &BulkHandler{
		manager: manager,
	}
}

func bulkState(b *service.BulkCoordinator) dto.BulkStateResponse {
	return dto.BulkStateResponse{
		Selected: b.Selected(),
		Phase:    b.Phase(),
		JobID:    b.JobID(),
		Error:    b.LastError(),
	}
}

// State returns the selection and operation state.
// GET /api/v1/selection
func (h *BulkHandler) State(c *gin.Context) {
	session, ok := currentSession(c, h.manager)
	if !ok {
		return
	}

	response.Success(c, bulkState(session.Bulk))
}

// Toggle flips the given ids in the selection.
// POST /api/v1/selection/toggle
func (h *BulkHandler) Toggle(c *gin.Context) {
	session, ok := currentSession(c, h.manager)
	if !ok {
		return
	}

	var req dto.SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	for _, id := range req.IDs {
		session.Bulk.Toggle(id)
	}
	response.Success(c, bulkState(session.Bulk))
}

// SelectAll replaces the selection.
// PUT /api/v1/selection
func (h *BulkHandler) SelectAll(c *gin.Context) {
	session, ok := currentSession(c, h.manager)
	if !ok {
		return
	}

	var req dto.SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	session.Bulk.SelectAll(req.IDs)
	response.Success(c, bulkState(session.Bulk))
}

// Clear empties the selection.
// DELETE /api/v1/selection
func (h *BulkHandler) Clear(c *gin.Context) {
	session, ok := currentSession(c, h.manager)
	if !ok {
		return
	}

	session.Bulk.Clear()
	response.Success(c, bulkState(session.Bulk))
}

// Regenerate enqueues one regenerate job for the whole selection.
// POST /api/v1/questions/regenerate
func (h *BulkHandler) Regenerate(c *gin.Context) {
	session, ok := currentSession(c, h.manager)
	if !ok {
		return
	}

	var req dto.RegenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	jobID, err := session.Bulk.Regenerate(c.Request.Context(), req.Instruction)
	if err != nil {
		h.writeBulkError(c, err)
		return
	}

	response.Success(c, dto.StartGenerationResponse{JobID: jobID})
}

// Convert enqueues one convert job for the whole selection.
// POST /api/v1/questions/convert
func (h *BulkHandler) Convert(c *gin.Context) {
	session, ok := currentSession(c, h.manager)
	if !ok {
		return
	}

	var req dto.ConvertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	jobID, err := session.Bulk.Convert(c.Request.Context(), req.Target)
	if err != nil {
		h.writeBulkError(c, err)
		return
	}

	response.Success(c, dto.StartGenerationResponse{JobID: jobID})
}

func (h *BulkHandler) writeBulkError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptySelection), errors.Is(err, service.ErrBadTarget):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrBulkActive):
		response.ConflictError(c, err.Error())
	default:
		response.UpstreamError(c, err.Error())
	}
}
