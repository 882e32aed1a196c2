package api

import (
	"github.com/gin-gonic/gin"

	"github.com/quizforge/orchestrator/config"
	"github.com/quizforge/orchestrator/internal/api/handler"
	"github.com/quizforge/orchestrator/internal/api/middleware"
)

type Router struct {
	sessionHandler    *handler.SessionHandler
	generationHandler *handler.GenerationHandler
	materialHandler   *handler.MaterialHandler
	bulkHandler       *handler.BulkHandler
	websocketHandler  *handler.WebSocketHandler
	cfg               *config.Config
}

func NewRouter(
	sessionHandler *handler.SessionHandler,
	generationHandler *handler.GenerationHandler,
	materialHandler *handler.MaterialHandler,
	bulkHandler *handler.BulkHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		sessionHandler:    sessionHandler,
		generationHandler: generationHandler,
		materialHandler:   materialHandler,
		bulkHandler:       bulkHandler,
		websocketHandler:  websocketHandler,
		cfg:               cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// WebSocket, authenticated by token query parameter
		api.GET("/ws", r.websocketHandler.Handle)

		// Public: open a session
		api.POST("/session", r.sessionHandler.Create)

		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			authenticated.DELETE("/session", r.sessionHandler.Close)

			generation := authenticated.Group("/generation")
			{
				generation.GET("/state", r.generationHandler.State)
				generation.POST("/start", r.generationHandler.Start)
				generation.PUT("/counters", r.generationHandler.SetCounter)
				generation.PUT("/difficulty", r.generationHandler.SetDifficulty)
				generation.PUT("/source", r.generationHandler.SetSource)
				generation.PUT("/instructions", r.generationHandler.SetInstructions)
				generation.POST("/reedit/:jobId", r.generationHandler.Reedit)
			}

			authenticated.POST("/materials/upload", r.materialHandler.Upload)
			authenticated.DELETE("/materials/:id", r.materialHandler.Delete)
			authenticated.DELETE("/uploads/:tempId", r.materialHandler.DiscardUpload)

			selection := authenticated.Group("/selection")
			{
				selection.GET("", r.bulkHandler.State)
				selection.POST("/toggle", r.bulkHandler.Toggle)
				selection.PUT("", r.bulkHandler.SelectAll)
				selection.DELETE("", r.bulkHandler.Clear)
			}

			questions := authenticated.Group("/questions")
			{
				questions.POST("/regenerate", r.bulkHandler.Regenerate)
				questions.POST("/convert", r.bulkHandler.Convert)
			}
		}
	}

	return engine
}
