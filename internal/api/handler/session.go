package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/quizforge/orchestrator/config"
	"github.com/quizforge/orchestrator/internal/api/middleware"
	"github.com/quizforge/orchestrator/internal/model/dto"
	"github.com/quizforge/orchestrator/internal/pkg/jwt"
	"github.com/quizforge/orchestrator/internal/pkg/response"
	"github.com/quizforge/orchestrator/internal/service"
)

type SessionHandler struct {
	manager *service.Manager
	cfg     *config.Config
}

func NewSessionHandler(manager *service.Manager, cfg *config.Config) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		cfg:     cfg,
	}
}

// Create opens a workflow session and returns its token.
// POST /api/v1/session
func (h *SessionHandler) Create(c *gin.Context) {
	session := h.manager.Create()

	token, err := jwt.GenerateToken(session.ID, h.cfg.JWT.Secret, h.cfg.JWT.ExpireHours)
	if err != nil {
		h.manager.Close(session.ID)
		response.ServerError(c, "")
		return
	}

	response.Success(c, dto.SessionResponse{
		SessionID: session.ID,
		Token:     token,
	})
}

// Close tears the calling session down.
// DELETE /api/v1/session
func (h *SessionHandler) Close(c *gin.Context) {
	sessionID, ok := middleware.GetSessionID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	if err := h.manager.Close(sessionID); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, nil)
}

// currentSession resolves the authenticated caller's session, writing the
// error response itself when that fails.
func currentSession(c *gin.Context, manager *service.Manager) (*service.Session, bool) {
	sessionID, ok := middleware.GetSessionID(c)
	if !ok {
		response.AuthError(c, "")
		return nil, false
	}

	session, err := manager.Get(sessionID)
	if err != nil {
		response.NotFoundError(c, "session expired, open a new one")
		return nil, false
	}
	return session, true
}
