package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/quizforge/orchestrator/config"
	"github.com/quizforge/orchestrator/internal/model"
	"github.com/quizforge/orchestrator/internal/pkg/logger"
	"github.com/quizforge/orchestrator/internal/pkg/pubsub"
)

// Bulk operation phases.
const (
	BulkPhaseIdle       = "idle"
	BulkPhaseSubmitting = "submitting"
	BulkPhasePolling    = "polling"
	BulkPhaseFailed     = "failed"
)

// Conversion targets.
const (
	ConvertTargetOpen   = "open"
	ConvertTargetClosed = "closed"
)

var (
	ErrEmptySelection = errors.New("no questions selected")
	ErrBulkActive     = errors.New("a bulk operation is already running")
	ErrBadTarget      = errors.New("conversion target must be open or closed")
)

// BulkCoordinator applies regenerate/convert operations to a client-held
// selection of question ids, one job per whole selection. Selection
// management itself is pure synchronous state. On success the selection is
// cleared; on failure it is preserved so the user can retry or adjust.
type BulkCoordinator struct {
	sessionID string
	jobs      JobAPI
	events    EventSink
	poller    *JobPoller
	log       zerolog.Logger

	mu       sync.Mutex
	selected map[int64]struct{}
	phase    string
	jobID    string
	lastErr  string
}

func NewBulkCoordinator(sessionID string, jobs JobAPI, events EventSink, cfg *config.Config) *BulkCoordinator {
	b := &BulkCoordinator{
		sessionID: sessionID,
		jobs:      jobs,
		events:    events,
		poller:    NewJobPoller(jobs, cfg.PollInterval()),
		log:       logger.Get(),
		selected:  make(map[int64]struct{}),
		phase:     BulkPhaseIdle,
	}
	b.poller.OnDone(b.handleDone)
	b.poller.OnFailed(b.handleFailed)
	return b
}

// Toggle flips one id in or out of the selection.
func (b *BulkCoordinator) Toggle(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.selected[id]; ok {
		delete(b.selected, id)
	} else {
		b.selected[id] = struct{}{}
	}
}

// SelectAll replaces the selection with the given ids.
func (b *BulkCoordinator) SelectAll(ids []int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.selected = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		b.selected[id] = struct{}{}
	}
}

// Clear empties the selection.
func (b *BulkCoordinator) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selected = make(map[int64]struct{})
}

// Selected returns the selection in ascending order.
func (b *BulkCoordinator) Selected() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selectedLocked()
}

func (b *BulkCoordinator) selectedLocked() []int64 {
	ids := make([]int64, 0, len(b.selected))
	for id := range b.selected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Regenerate enqueues one regenerate job over the whole selection.
func (b *BulkCoordinator) Regenerate(ctx context.Context, instruction string) (string, error) {
	params := map[string]any{"instruction": instruction}
	return b.run(ctx, "bulk-regenerate", params)
}

// Convert enqueues one convert job over the whole selection.
func (b *BulkCoordinator) Convert(ctx context.Context, target string) (string, error) {
	if target != ConvertTargetOpen && target != ConvertTargetClosed {
		return "", fmt.Errorf("%w: %s", ErrBadTarget, target)
	}
	return b.run(ctx, "bulk-convert", map[string]any{"target": target})
}

func (b *BulkCoordinator) run(ctx context.Context, kind string, params map[string]any) (string, error) {
	b.mu.Lock()
	if b.phase == BulkPhaseSubmitting || b.phase == BulkPhasePolling {
		b.mu.Unlock()
		return "", ErrBulkActive
	}
	ids := b.selectedLocked()
	if len(ids) == 0 {
		b.mu.Unlock()
		return "", ErrEmptySelection
	}
	b.phase = BulkPhaseSubmitting
	b.lastErr = ""
	b.mu.Unlock()

	params["question_ids"] = ids

	jobID, err := b.jobs.Enqueue(ctx, kind, params)
	if err != nil {
		b.mu.Lock()
		b.phase = BulkPhaseIdle
		b.lastErr = err.Error()
		b.mu.Unlock()
		return "", err
	}

	b.mu.Lock()
	b.jobID = jobID
	b.phase = BulkPhasePolling
	b.mu.Unlock()

	b.poller.Start(jobID)
	return jobID, nil
}

// handleDone clears the selection and asks the UI host to refresh the
// question listing.
func (b *BulkCoordinator) handleDone(record *model.JobRecord) {
	b.mu.Lock()
	b.selected = make(map[int64]struct{})
	b.phase = BulkPhaseIdle
	b.jobID = ""
	b.lastErr = ""
	b.mu.Unlock()

	b.emit(&pubsub.Event{Type: pubsub.EventListingRefresh, SessionID: b.sessionID})
}

// handleFailed keeps the selection so the operation can be retried.
func (b *BulkCoordinator) handleFailed(record *model.JobRecord, message string) {
	b.mu.Lock()
	b.phase = BulkPhaseFailed
	b.jobID = ""
	b.lastErr = message
	b.mu.Unlock()
}

// Phase returns the coordinator phase.
func (b *BulkCoordinator) Phase() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

// JobID returns the active bulk job id, empty when none.
func (b *BulkCoordinator) JobID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jobID
}

// LastError returns the last surfaced error message.
func (b *BulkCoordinator) LastError() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Close tears down the coordinator's poller.
func (b *BulkCoordinator) Close() {
	b.poller.Reset()
}

func (b *BulkCoordinator) emit(event *pubsub.Event) {
	if b.events == nil {
		return
	}
	if err := b.events.Publish(context.Background(), event); err != nil {
		b.log.Warn().Err(err).Str("type", event.Type).Msg("failed to publish workflow event")
	}
}
