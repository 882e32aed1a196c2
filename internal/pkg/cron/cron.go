package cron

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/quizforge/orchestrator/internal/pkg/logger"
)

// SessionStore is the part of the session manager the janitor needs.
type SessionStore interface {
	EvictIdle(ttl time.Duration) int
}

// Service evicts idle sessions in the background so abandoned workflows do
// not keep pollers and upload state alive forever.
type Service struct {
	sessions SessionStore
	ttl      time.Duration
	interval time.Duration
	stopChan chan struct{}
	log      zerolog.Logger
}

func NewService(sessions SessionStore, ttl, interval time.Duration) *Service {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Service{
		sessions: sessions,
		ttl:      ttl,
		interval: interval,
		stopChan: make(chan struct{}),
		log:      logger.Get(),
	}
}

// Start launches the eviction loop.
func (s *Service) Start() {
	go s.run()
	s.log.Info().Dur("ttl", s.ttl).Msg("session janitor started")
}

// Stop halts the eviction loop.
func (s *Service) Stop() {
	close(s.stopChan)
	s.log.Info().Msg("session janitor stopped")
}

func (s *Service) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if evicted := s.sessions.EvictIdle(s.ttl); evicted > 0 {
				s.log.Info().Int("evicted", evicted).Msg("idle sessions evicted")
			}
		}
	}
}
