package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelWorkflowEvents = "workflow_events"
)

// Workflow event kinds pushed to the UI host.
const (
	EventPhaseChanged   = "phase_changed"
	EventUploadChanged  = "upload_changed"
	EventAnalysisDone   = "analysis_done"
	EventListingRefresh = "listing_refresh"
	EventNavigate       = "navigate"
)

// Event describes one observable workflow transition for a session.
type Event struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id"`
	Phase      string `json:"phase,omitempty"`
	JobID      string `json:"job_id,omitempty"`
	ArtifactID int64  `json:"artifact_id,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Publisher fans workflow events out over redis so every orchestrator
// replica's websocket layer sees them.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow event: %w", err)
	}

	return p.client.Publish(ctx, ChannelWorkflowEvents, data).Err()
}

// Subscriber consumes workflow events from redis.
type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe blocks, invoking handler for each event until ctx is done.
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*Event)) error {
	pubsub := s.client.Subscribe(ctx, ChannelWorkflowEvents)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue // skip malformed payloads
			}

			handler(&event)
		}
	}
}
