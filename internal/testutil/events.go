package testutil

import (
	"context"
	"sync"

	"github.com/quizforge/orchestrator/internal/pkg/pubsub"
)

// CaptureSink collects published workflow events for assertions.
type CaptureSink struct {
	mu     sync.Mutex
	events []pubsub.Event
}

func NewCaptureSink() *CaptureSink {
	return &CaptureSink{}
}

func (s *CaptureSink) Publish(ctx context.Context, event *pubsub.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

// Events returns a snapshot of everything published so far.
func (s *CaptureSink) Events() []pubsub.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pubsub.Event(nil), s.events...)
}

// ByType filters the captured events by type.
func (s *CaptureSink) ByType(eventType string) []pubsub.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	filtered := make([]pubsub.Event, 0)
	for _, event := range s.events {
		if event.Type == eventType {
			filtered = append(filtered, event)
		}
	}
	return filtered
}
