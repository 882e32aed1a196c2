package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/quizforge/orchestrator/internal/pkg/logger"
)

type Hub struct {
	// A session can hold several connections (multiple tabs, reconnects).
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	log     zerolog.Logger
}

type Client struct {
	SessionID string
	Conn      *websocket.Conn
	mu        sync.Mutex // write lock, the gorilla conn allows one writer
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		log:     logger.Get(),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.SessionID] == nil {
		h.clients[client.SessionID] = make(map[*Client]struct{})
	}
	h.clients[client.SessionID][client] = struct{}{}

	h.log.Debug().Str("session_id", client.SessionID).
		Int("session_conns", len(h.clients[client.SessionID])).
		Msg("websocket connected")
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[client.SessionID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.SessionID)
		}
	}
	h.log.Debug().Str("session_id", client.SessionID).Msg("websocket disconnected")
}

// SendToSession delivers a message to every connection of one session.
func (h *Hub) SendToSession(sessionID string, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns, ok := h.clients[sessionID]
	if !ok {
		h.mu.RUnlock()
		return nil
	}
	// Copy the references so the lock is not held across writes.
	clients := make([]*Client, 0, len(conns))
	for c := range conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		err := c.Conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			h.log.Warn().Err(err).Str("session_id", sessionID).Msg("websocket write failed")
		}
	}
	return nil
}

// IsOnline reports whether a session has at least one live connection.
func (h *Hub) IsOnline(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.clients[sessionID]
	return ok && len(conns) > 0
}

// ConnectionCount returns the total number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
