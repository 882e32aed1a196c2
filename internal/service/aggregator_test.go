package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizforge/orchestrator/internal/model"
	"github.com/quizforge/orchestrator/internal/testutil"
)

type finalCapture struct {
	mu           sync.Mutex
	fired        int
	outcomes     []AnalysisOutcome
	firstFailure string
	done         chan struct{}
}

func newFinalCapture() *finalCapture {
	return &finalCapture{done: make(chan struct{}, 4)}
}

func (c *finalCapture) hook(outcomes []AnalysisOutcome, firstFailure string) {
	c.mu.Lock()
	c.fired++
	c.outcomes = outcomes
	c.firstFailure = firstFailure
	c.mu.Unlock()
	c.done <- struct{}{}
}

func (c *finalCapture) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatal("aggregation never finalized")
	}
}

func binding(jobID string, materialID int64) model.AnalyzeJobBinding {
	return model.AnalyzeJobBinding{
		JobID:    jobID,
		Material: model.Material{ID: materialID},
	}
}

func TestAggregator_FinalizesOnlyWhenAllJobsTerminal(t *testing.T) {
	jobs := testutil.NewFakeJobService()
	// Job A is done on the first round, job B needs a second round.
	jobs.Script("a", testutil.GetResponse{
		Record: doneRecord("a", map[string]any{"extracted_text": "alpha"}),
	})
	jobs.Script("b",
		testutil.GetResponse{Record: &model.JobRecord{ID: "b", Status: model.JobStatusProcessing}},
		testutil.GetResponse{Record: failedRecord("b", "unreadable scan")},
	)

	aggregator := NewMultiJobAggregator(jobs, testInterval)
	capture := newFinalCapture()
	aggregator.OnFinal(capture.hook)

	aggregator.Add([]model.AnalyzeJobBinding{binding("a", 1), binding("b", 2)})
	capture.wait(t)

	// A was terminal after round one; finalization still waited for B.
	assert.GreaterOrEqual(t, jobs.GetCalls("b"), 2)

	require.Len(t, capture.outcomes, 2)
	assert.Equal(t, int64(1), capture.outcomes[0].MaterialID)
	assert.Equal(t, "alpha", capture.outcomes[0].ExtractedText)
	assert.Empty(t, capture.outcomes[0].Err)
	assert.Equal(t, int64(2), capture.outcomes[1].MaterialID)
	assert.Equal(t, "unreadable scan", capture.outcomes[1].Err)
	assert.Equal(t, "unreadable scan", capture.firstFailure)

	assert.False(t, aggregator.Active())
	assert.Equal(t, 1, capture.fired)
}

func TestAggregator_AllSuccessesReportNoFailure(t *testing.T) {
	jobs := testutil.NewFakeJobService()
	jobs.Script("a", testutil.GetResponse{
		Record: doneRecord("a", map[string]any{"extracted_text": "alpha"}),
	})
	jobs.Script("b", testutil.GetResponse{
		Record: doneRecord("b", map[string]any{"extracted_text": "beta"}),
	})

	aggregator := NewMultiJobAggregator(jobs, testInterval)
	capture := newFinalCapture()
	aggregator.OnFinal(capture.hook)

	aggregator.Add([]model.AnalyzeJobBinding{binding("a", 1), binding("b", 2)})
	capture.wait(t)

	assert.Empty(t, capture.firstFailure)
	require.Len(t, capture.outcomes, 2)
	assert.Equal(t, "beta", capture.outcomes[1].ExtractedText)
}

func TestAggregator_TransportErrorRepeatsRound(t *testing.T) {
	jobs := testutil.NewFakeJobService()
	jobs.Script("a",
		testutil.GetResponse{Err: errors.New("connection refused")},
		testutil.GetResponse{Record: doneRecord("a", map[string]any{"extracted_text": "alpha"})},
	)

	aggregator := NewMultiJobAggregator(jobs, testInterval)
	capture := newFinalCapture()
	aggregator.OnFinal(capture.hook)

	aggregator.Add([]model.AnalyzeJobBinding{binding("a", 1)})
	capture.wait(t)

	assert.Equal(t, 2, jobs.GetCalls("a"))
	assert.Empty(t, capture.firstFailure)
}

func TestAggregator_AddExtendsRunningSet(t *testing.T) {
	jobs := testutil.NewFakeJobService()
	jobs.Script("a",
		testutil.GetResponse{Record: &model.JobRecord{ID: "a", Status: model.JobStatusProcessing}},
		testutil.GetResponse{Record: doneRecord("a", map[string]any{"extracted_text": "alpha"})},
	)
	jobs.Script("b", testutil.GetResponse{
		Record: doneRecord("b", map[string]any{"extracted_text": "beta"}),
	})

	aggregator := NewMultiJobAggregator(jobs, testInterval)
	capture := newFinalCapture()
	aggregator.OnFinal(capture.hook)

	aggregator.Add([]model.AnalyzeJobBinding{binding("a", 1)})
	require.Eventually(t, func() bool {
		return jobs.GetCalls("a") >= 1
	}, time.Second, 2*time.Millisecond)

	aggregator.Add([]model.AnalyzeJobBinding{binding("b", 2)})
	capture.wait(t)

	// One finalization covering both materials.
	assert.Equal(t, 1, capture.fired)
	require.Len(t, capture.outcomes, 2)
	assert.Equal(t, "alpha", capture.outcomes[0].ExtractedText)
	assert.Equal(t, "beta", capture.outcomes[1].ExtractedText)
}

func TestAggregator_AddAfterFinalizationStartsFreshBatch(t *testing.T) {
	jobs := testutil.NewFakeJobService()
	jobs.Script("a", testutil.GetResponse{
		Record: doneRecord("a", map[string]any{"extracted_text": "alpha"}),
	})
	jobs.Script("b", testutil.GetResponse{
		Record: doneRecord("b", map[string]any{"extracted_text": "beta"}),
	})

	aggregator := NewMultiJobAggregator(jobs, testInterval)
	capture := newFinalCapture()
	aggregator.OnFinal(capture.hook)

	aggregator.Add([]model.AnalyzeJobBinding{binding("a", 1)})
	capture.wait(t)

	aggregator.Add([]model.AnalyzeJobBinding{binding("b", 2)})
	capture.wait(t)

	assert.Equal(t, 2, capture.fired)
	require.Len(t, capture.outcomes, 1)
	assert.Equal(t, int64(2), capture.outcomes[0].MaterialID)
}

func TestAggregator_StopCancelsWithoutFinalizing(t *testing.T) {
	jobs := testutil.NewFakeJobService()
	jobs.Script("a", testutil.GetResponse{
		Record: &model.JobRecord{ID: "a", Status: model.JobStatusProcessing},
	})

	aggregator := NewMultiJobAggregator(jobs, testInterval)
	capture := newFinalCapture()
	aggregator.OnFinal(capture.hook)

	aggregator.Add([]model.AnalyzeJobBinding{binding("a", 1)})
	require.Eventually(t, func() bool {
		return jobs.GetCalls("a") >= 1
	}, time.Second, 2*time.Millisecond)

	aggregator.Stop()

	time.Sleep(5 * testInterval)
	assert.False(t, aggregator.Active())
	assert.Equal(t, 0, capture.fired)
}

func TestAggregator_AddEmptyIsNoop(t *testing.T) {
	aggregator := NewMultiJobAggregator(testutil.NewFakeJobService(), testInterval)
	aggregator.Add(nil)
	assert.False(t, aggregator.Active())
}
