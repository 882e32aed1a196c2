package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/quizforge/orchestrator/internal/model/dto"
	"github.com/quizforge/orchestrator/internal/pkg/response"
	"github.com/quizforge/orchestrator/internal/service"
)

type GenerationHandler struct {
	manager *service.Manager
}

func NewGenerationHandler(manager *service.Manager) *GenerationHandler {
	return &GenerationHandler{
		manager: manager,
	}
}

// State returns the observable workflow snapshot.
// GET /api/v1/generation/state
func (h *GenerationHandler) State(c *gin.Context) {
	session, ok := currentSession(c, h.manager)
	if !ok {
		return
	}

	response.Success(c, session.Workflow.Snapshot())
}

// Start validates and enqueues the generation job.
// POST /api/v1/generation/start
func (h *GenerationHandler) Start(c *gin.Context) {
	session, ok := currentSession(c, h.manager)
	if !ok {
		return
	}

	jobID, err := session.Workflow.StartGeneration(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGenerationActive):
			response.ConflictError(c, err.Error())
		case errors.Is(err, service.ErrBusy),
			errors.Is(err, service.ErrSourceTooShort),
			errors.Is(err, service.ErrNoQuestions),
			errors.Is(err, service.ErrDifficultyMismatch):
			response.ParamError(c, err.Error())
		default:
			response.UpstreamError(c, err.Error())
		}
		return
	}

	response.Success(c, dto.StartGenerationResponse{JobID: jobID})
}

// SetCounter sets one structural question counter.
// PUT /api/v1/generation/counters
func (h *GenerationHandler) SetCounter(c *gin.Context) {
	session, ok := currentSession(c, h.manager)
	if !ok {
		return
	}

	var req dto.UpdateCountersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if err := session.Workflow.SetTypeCount(req.Field, req.Value); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	response.Success(c, session.Workflow.Snapshot())
}

// SetDifficulty sets one difficulty counter.
// PUT /api/v1/generation/difficulty
func (h *GenerationHandler) SetDifficulty(c *gin.Context) {
	session, ok := currentSession(c, h.manager)
	if !ok {
		return
	}

	var req dto.UpdateDifficultyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if err := session.Workflow.SetDifficulty(req.Field, req.Value); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	response.Success(c, session.Workflow.Snapshot())
}

// SetSource replaces the free-text source content.
// PUT /api/v1/generation/source
func (h *GenerationHandler) SetSource(c *gin.Context) {
	session, ok := currentSession(c, h.manager)
	if !ok {
		return
	}

	var req dto.UpdateSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	session.Workflow.SetSourceText(req.Text)
	response.Success(c, session.Workflow.Snapshot())
}

// SetInstructions replaces the additional generation instructions.
// PUT /api/v1/generation/instructions
func (h *GenerationHandler) SetInstructions(c *gin.Context) {
	session, ok := currentSession(c, h.manager)
	if !ok {
		return
	}

	var req dto.UpdateInstructionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	session.Workflow.SetInstructions(req.Instructions)
	response.Success(c, session.Workflow.Snapshot())
}

// Reedit seeds the workflow from a prior job's configuration. No job is
// created.
// POST /api/v1/generation/reedit/:jobId
func (h *GenerationHandler) Reedit(c *gin.Context) {
	session, ok := currentSession(c, h.manager)
	if !ok {
		return
	}

	jobID := c.Param("jobId")
	if jobID == "" {
		response.ParamError(c, "missing job id")
		return
	}

	if err := session.Workflow.LoadFromJob(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, service.ErrNoConfiguration) {
			response.ParamError(c, err.Error())
			return
		}
		response.UpstreamError(c, err.Error())
		return
	}

	response.Success(c, session.Workflow.Snapshot())
}
