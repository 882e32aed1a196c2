package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/quizforge/orchestrator/config"
	"github.com/quizforge/orchestrator/internal/api"
	"github.com/quizforge/orchestrator/internal/api/handler"
	"github.com/quizforge/orchestrator/internal/pkg/cron"
	"github.com/quizforge/orchestrator/internal/pkg/logger"
	"github.com/quizforge/orchestrator/internal/pkg/pubsub"
	"github.com/quizforge/orchestrator/internal/pkg/ws"
	"github.com/quizforge/orchestrator/internal/service"
	"github.com/quizforge/orchestrator/internal/upstream"
)

func main() {
	// .env is optional, real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	log.Info().Msg("redis connected")

	// Upstream clients
	jobs := upstream.NewJobsClient(cfg.Upstream.JobServiceURL, cfg.UpstreamTimeout())
	materials := upstream.NewMaterialsClient(cfg.Upstream.MaterialServiceURL, cfg.UpstreamTimeout())

	// Event pipeline: services publish, the subscriber feeds the hub.
	publisher := pubsub.NewPublisher(rdb)
	subscriber := pubsub.NewSubscriber(rdb)
	hub := ws.NewHub()

	go func() {
		err := subscriber.Subscribe(context.Background(), func(event *pubsub.Event) {
			_ = hub.SendToSession(event.SessionID, &ws.Message{
				Type: "workflow_event",
				Data: event,
			})
		})
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("workflow event subscription ended")
		}
	}()

	// Session manager and janitor
	manager := service.NewManager(cfg, jobs, materials, publisher)
	janitor := cron.NewService(manager,
		time.Duration(cfg.Session.ExpireMinutes)*time.Minute,
		time.Minute,
	)
	janitor.Start()
	defer janitor.Stop()

	// Handlers
	sessionHandler := handler.NewSessionHandler(manager, cfg)
	generationHandler := handler.NewGenerationHandler(manager)
	materialHandler := handler.NewMaterialHandler(manager)
	bulkHandler := handler.NewBulkHandler(manager)
	websocketHandler := handler.NewWebSocketHandler(hub, cfg.JWT.Secret)

	router := api.NewRouter(
		sessionHandler,
		generationHandler,
		materialHandler,
		bulkHandler,
		websocketHandler,
		cfg,
	)
	engine := router.Setup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("server starting")
	if err := engine.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}
