package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quizforge/orchestrator/internal/model"
	"github.com/quizforge/orchestrator/internal/pkg/logger"
)

const resultKeyExtractedText = "extracted_text"

const genericAnalysisFailure = "analysis failed"

// MultiJobAggregator polls a set of analysis jobs on a shared cadence until
// every one of them is terminal, then reports the per-material outcomes as a
// single batch. Rounds are sequential: the next fan-out starts only after
// the whole current fan-out resolved. A transport error for one job does not
// abort the round for the others; the round is simply rescheduled.
type MultiJobAggregator struct {
	jobs     JobAPI
	interval time.Duration
	log      zerolog.Logger

	// onFinal fires once per aggregation with all outcomes and the first
	// failure's message, empty when every job succeeded.
	onFinal func(outcomes []AnalysisOutcome, firstFailure string)

	mu       sync.Mutex
	bindings []model.AnalyzeJobBinding
	records  map[string]*model.JobRecord
	active   bool
	epoch    int
	cancel   context.CancelFunc
}

func NewMultiJobAggregator(jobs JobAPI, interval time.Duration) *MultiJobAggregator {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &MultiJobAggregator{
		jobs:     jobs,
		interval: interval,
		log:      logger.Get(),
		records:  make(map[string]*model.JobRecord),
	}
}

// OnFinal registers the finalization callback. Must be set before Add.
func (a *MultiJobAggregator) OnFinal(fn func(outcomes []AnalysisOutcome, firstFailure string)) {
	a.onFinal = fn
}

// Add extends the tracked set and starts the round loop when none is
// running. Uploads finish at different times, so bindings arrive
// incrementally; finalization always covers the full current set.
func (a *MultiJobAggregator) Add(bindings []model.AnalyzeJobBinding) {
	if len(bindings) == 0 {
		return
	}

	a.mu.Lock()
	a.bindings = append(a.bindings, bindings...)
	if a.active {
		a.mu.Unlock()
		return
	}

	if a.cancel != nil {
		a.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.active = true
	a.epoch++
	epoch := a.epoch
	a.mu.Unlock()

	go a.loop(ctx, epoch)
}

func (a *MultiJobAggregator) loop(ctx context.Context, epoch int) {
	for {
		a.mu.Lock()
		if epoch != a.epoch || !a.active {
			a.mu.Unlock()
			return
		}
		jobIDs := make([]string, 0, len(a.bindings))
		for _, b := range a.bindings {
			jobIDs = append(jobIDs, b.JobID)
		}
		a.mu.Unlock()

		round := a.fanOut(ctx, jobIDs)
		if ctx.Err() != nil {
			return
		}

		notify, final := a.applyRound(epoch, round)
		if notify != nil {
			notify()
		}
		if final {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(a.interval):
		}
	}
}

// fanOut fetches every job record concurrently. Jobs whose fetch failed are
// simply absent from the result.
func (a *MultiJobAggregator) fanOut(ctx context.Context, jobIDs []string) map[string]*model.JobRecord {
	var wg sync.WaitGroup
	var mu sync.Mutex
	round := make(map[string]*model.JobRecord, len(jobIDs))

	for _, jobID := range jobIDs {
		wg.Add(1)
		go func(jobID string) {
			defer wg.Done()
			record, err := a.jobs.Get(ctx, jobID)
			if err != nil {
				a.log.Warn().Err(err).Str("job_id", jobID).Msg("analysis poll failed, round will repeat")
				return
			}
			mu.Lock()
			round[jobID] = record
			mu.Unlock()
		}(jobID)
	}
	wg.Wait()
	return round
}

// applyRound merges the round into the known records and finalizes when
// every bound job is terminal. The returned callback must run outside the
// lock.
func (a *MultiJobAggregator) applyRound(epoch int, round map[string]*model.JobRecord) (notify func(), final bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if epoch != a.epoch || !a.active {
		return nil, true
	}

	for jobID, record := range round {
		a.records[jobID] = record
	}

	for _, b := range a.bindings {
		record, ok := a.records[b.JobID]
		if !ok || !record.IsTerminal() {
			return nil, false
		}
	}

	outcomes := make([]AnalysisOutcome, 0, len(a.bindings))
	firstFailure := ""
	for _, b := range a.bindings {
		record := a.records[b.JobID]
		outcome := AnalysisOutcome{MaterialID: b.Material.ID}
		if record.Status == model.JobStatusDone {
			if text, ok := record.Result[resultKeyExtractedText].(string); ok {
				outcome.ExtractedText = text
			}
		} else {
			outcome.Err = record.Error
			if outcome.Err == "" {
				outcome.Err = genericAnalysisFailure
			}
			if firstFailure == "" {
				firstFailure = outcome.Err
			}
		}
		outcomes = append(outcomes, outcome)
	}

	a.active = false
	a.bindings = nil
	a.records = make(map[string]*model.JobRecord)

	if cb := a.onFinal; cb != nil {
		return func() { cb(outcomes, firstFailure) }, true
	}
	return nil, true
}

// Active reports whether an aggregation is still running.
func (a *MultiJobAggregator) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Stop cancels the aggregation and clears the tracked set.
func (a *MultiJobAggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.epoch++
	a.active = false
	a.bindings = nil
	a.records = make(map[string]*model.JobRecord)
}
