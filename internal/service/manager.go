package service

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quizforge/orchestrator/config"
	"github.com/quizforge/orchestrator/internal/pkg/logger"
)

var ErrSessionNotFound = errors.New("session not found")

// Session bundles the orchestration state machines owned by one UI session.
type Session struct {
	ID         string
	Workflow   *GenerationWorkflow
	Bulk       *BulkCoordinator
	lastActive time.Time
}

// Manager owns the per-session workflow instances. Every instance gets its
// own poller, tracker and aggregator; teardown cancels them all so no stale
// update outlives its session.
type Manager struct {
	cfg       *config.Config
	jobs      JobAPI
	materials MaterialAPI
	events    EventSink
	log       zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(cfg *config.Config, jobs JobAPI, materials MaterialAPI, events EventSink) *Manager {
	return &Manager{
		cfg:       cfg,
		jobs:      jobs,
		materials: materials,
		events:    events,
		log:       logger.Get(),
		sessions:  make(map[string]*Session),
	}
}

// Create starts a fresh session with its own workflow instances.
func (m *Manager) Create() *Session {
	id := uuid.NewString()
	session := &Session{
		ID:         id,
		Workflow:   NewGenerationWorkflow(id, m.jobs, m.materials, m.events, m.cfg),
		Bulk:       NewBulkCoordinator(id, m.jobs, m.events, m.cfg),
		lastActive: time.Now(),
	}

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()

	m.log.Info().Str("session_id", id).Msg("session created")
	return session
}

// Get looks a session up and refreshes its activity timestamp.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.lastActive = time.Now()
	return session, nil
}

// Close tears one session down.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	session.Workflow.Close()
	session.Bulk.Close()
	m.log.Info().Str("session_id", id).Msg("session closed")
	return nil
}

// EvictIdle tears down sessions inactive for longer than ttl and returns
// how many were removed.
func (m *Manager) EvictIdle(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	expired := make([]*Session, 0)
	for id, session := range m.sessions {
		if session.lastActive.Before(cutoff) {
			expired = append(expired, session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, session := range expired {
		session.Workflow.Close()
		session.Bulk.Close()
		m.log.Info().Str("session_id", session.ID).Msg("idle session evicted")
	}
	return len(expired)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
