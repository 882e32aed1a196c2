package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quizforge/orchestrator/internal/model"
	"github.com/quizforge/orchestrator/internal/pkg/logger"
	"github.com/quizforge/orchestrator/internal/pkg/pubsub"
)

const defaultPollInterval = 1500 * time.Millisecond

// JobAPI is the slice of the job service the orchestration layer consumes.
type JobAPI interface {
	Enqueue(ctx context.Context, kind string, params any) (string, error)
	Get(ctx context.Context, jobID string) (*model.JobRecord, error)
}

// EventSink receives observable workflow transitions. *pubsub.Publisher
// satisfies it; tests substitute a capture sink.
type EventSink interface {
	Publish(ctx context.Context, event *pubsub.Event) error
}

// Poller states.
const (
	PollStateIdle    = "idle"
	PollStatePolling = "polling"
	PollStateDone    = "done"
	PollStateFailed  = "failed"
)

const genericJobFailure = "the job failed without an error message"

// JobPoller tracks a single job id to a terminal status on a fixed cadence.
// Fetches are strictly sequential: the next one is scheduled only after the
// previous one resolved. Transport errors are transient; the message is kept
// but polling continues. The done/failed callbacks fire at most once per
// Start, and a later Start, Stop or Reset invalidates any in-flight fetch so
// a stale response is never applied.
type JobPoller struct {
	jobs     JobAPI
	interval time.Duration
	log      zerolog.Logger

	onDone   func(*model.JobRecord)
	onFailed func(*model.JobRecord, string)

	mu      sync.Mutex
	state   string
	jobID   string
	record  *model.JobRecord
	lastErr string
	epoch   int
	cancel  context.CancelFunc
}

func NewJobPoller(jobs JobAPI, interval time.Duration) *JobPoller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &JobPoller{
		jobs:     jobs,
		interval: interval,
		log:      logger.Get(),
		state:    PollStateIdle,
	}
}

// OnDone registers the success callback. Must be set before Start.
func (p *JobPoller) OnDone(fn func(*model.JobRecord)) {
	p.onDone = fn
}

// OnFailed registers the failure callback. Must be set before Start.
func (p *JobPoller) OnFailed(fn func(*model.JobRecord, string)) {
	p.onFailed = fn
}

// Start begins tracking jobID, replacing any job tracked before. The first
// fetch is issued immediately.
func (p *JobPoller) Start(jobID string) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.epoch++
	epoch := p.epoch
	p.state = PollStatePolling
	p.jobID = jobID
	p.record = nil
	p.lastErr = ""
	p.mu.Unlock()

	go p.loop(ctx, epoch, jobID)
}

func (p *JobPoller) loop(ctx context.Context, epoch int, jobID string) {
	for {
		record, err := p.jobs.Get(ctx, jobID)
		if ctx.Err() != nil {
			return
		}

		notify, terminal := p.apply(epoch, record, err)
		if notify != nil {
			notify()
		}
		if terminal {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.interval):
		}
	}
}

// apply folds one fetch outcome into the state machine. The returned
// callback, if any, must be invoked outside the lock.
func (p *JobPoller) apply(epoch int, record *model.JobRecord, err error) (notify func(), terminal bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if epoch != p.epoch || p.state != PollStatePolling {
		// A newer Start or a teardown happened while the fetch was in
		// flight; its result no longer belongs to anyone.
		return nil, true
	}

	if err != nil {
		// Transient transport failure: keep the message, keep polling.
		p.lastErr = err.Error()
		p.log.Warn().Err(err).Str("job_id", p.jobID).Msg("job poll failed, retrying")
		return nil, false
	}

	p.record = record

	switch record.Status {
	case model.JobStatusDone:
		p.state = PollStateDone
		p.lastErr = ""
		if cb := p.onDone; cb != nil {
			return func() { cb(record) }, true
		}
		return nil, true
	case model.JobStatusFailed:
		p.state = PollStateFailed
		message := record.Error
		if message == "" {
			message = genericJobFailure
		}
		p.lastErr = message
		if cb := p.onFailed; cb != nil {
			return func() { cb(record, message) }, true
		}
		return nil, true
	default:
		p.lastErr = ""
		return nil, false
	}
}

// Stop halts polling without clearing the last known record.
func (p *JobPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.epoch++
	if p.state == PollStatePolling {
		p.state = PollStateIdle
	}
}

// Reset halts polling and clears all state. Safe to call repeatedly and
// after the job already completed.
func (p *JobPoller) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.epoch++
	p.state = PollStateIdle
	p.jobID = ""
	p.record = nil
	p.lastErr = ""
}

// State returns the poller state.
func (p *JobPoller) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// JobID returns the tracked job id, empty when idle.
func (p *JobPoller) JobID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jobID
}

// Record returns the latest known record, nil before the first response.
func (p *JobPoller) Record() *model.JobRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record
}

// LastError returns the current user-facing error message.
func (p *JobPoller) LastError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}
