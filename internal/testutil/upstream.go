package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/quizforge/orchestrator/internal/model"
	"github.com/quizforge/orchestrator/internal/upstream"
)

// GetResponse scripts one poll response for a job.
type GetResponse struct {
	Record *model.JobRecord
	Err    error
}

// EnqueuedJob records one enqueue call.
type EnqueuedJob struct {
	Kind   string
	Params any
}

// FakeJobService is an in-memory job service. Poll responses are scripted
// per job id; the last scripted response repeats once the script runs out.
type FakeJobService struct {
	mu         sync.Mutex
	scripts    map[string][]GetResponse
	cursors    map[string]int
	getCalls   map[string]int
	enqueued   []EnqueuedJob
	enqueueIDs []string
	enqueueErr error
}

func NewFakeJobService() *FakeJobService {
	return &FakeJobService{
		scripts:  make(map[string][]GetResponse),
		cursors:  make(map[string]int),
		getCalls: make(map[string]int),
	}
}

// Script sets the successive poll responses for jobID.
func (f *FakeJobService) Script(jobID string, responses ...GetResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[jobID] = responses
	f.cursors[jobID] = 0
}

// QueueEnqueueID predefines the ids returned by successive Enqueue calls.
func (f *FakeJobService) QueueEnqueueID(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueueIDs = append(f.enqueueIDs, ids...)
}

// SetEnqueueErr makes every Enqueue call fail.
func (f *FakeJobService) SetEnqueueErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueueErr = err
}

func (f *FakeJobService) Enqueue(ctx context.Context, kind string, params any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.enqueueErr != nil {
		return "", f.enqueueErr
	}

	f.enqueued = append(f.enqueued, EnqueuedJob{Kind: kind, Params: params})
	if len(f.enqueueIDs) > 0 {
		id := f.enqueueIDs[0]
		f.enqueueIDs = f.enqueueIDs[1:]
		return id, nil
	}
	return fmt.Sprintf("job-%d", len(f.enqueued)), nil
}

func (f *FakeJobService) Get(ctx context.Context, jobID string) (*model.JobRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getCalls[jobID]++

	script, ok := f.scripts[jobID]
	if !ok || len(script) == 0 {
		return nil, errors.New("job not found")
	}

	cursor := f.cursors[jobID]
	if cursor >= len(script) {
		cursor = len(script) - 1
	} else {
		f.cursors[jobID] = cursor + 1
	}

	response := script[cursor]
	if response.Err != nil {
		return nil, response.Err
	}
	record := response.Record.Normalize()
	return &record, nil
}

// GetCalls returns how many times jobID was polled.
func (f *FakeJobService) GetCalls(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls[jobID]
}

// Enqueued returns a snapshot of all enqueue calls.
func (f *FakeJobService) Enqueued() []EnqueuedJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]EnqueuedJob(nil), f.enqueued...)
}

// FakeMaterialService is an in-memory material service with per-file
// failure injection and gates for timing control.
type FakeMaterialService struct {
	mu          sync.Mutex
	nextID      int64
	materials   map[int64]model.Material
	pageCounts  map[string]int
	failUploads map[string]string
	gates       map[string]chan struct{}
	analyzeErr  error
	uploadCalls int
	deleted     []int64
}

func NewFakeMaterialService() *FakeMaterialService {
	return &FakeMaterialService{
		materials:   make(map[int64]model.Material),
		pageCounts:  make(map[string]int),
		failUploads: make(map[string]string),
		gates:       make(map[string]chan struct{}),
	}
}

// SetPageCount fixes the page count reported for uploads of filename.
func (f *FakeMaterialService) SetPageCount(filename string, pages int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCounts[filename] = pages
}

// FailUpload makes uploads of filename fail with message.
func (f *FakeMaterialService) FailUpload(filename, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failUploads[filename] = message
}

// GateUpload blocks uploads of filename until the returned release func is
// called. The release func is safe to call more than once.
func (f *FakeMaterialService) GateUpload(filename string) func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[filename] = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// SetAnalyzeErr makes every Analyze call fail.
func (f *FakeMaterialService) SetAnalyzeErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzeErr = err
}

// AddMaterial seeds a stored material, for Get-based tests.
func (f *FakeMaterialService) AddMaterial(material model.Material) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.materials[material.ID] = material
}

func (f *FakeMaterialService) Upload(ctx context.Context, filename string, content io.Reader) (*model.Material, error) {
	f.mu.Lock()
	f.uploadCalls++
	gate := f.gates[filename]
	failMsg, failing := f.failUploads[filename]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if failing {
		return nil, errors.New(failMsg)
	}
	if _, err := io.ReadAll(content); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	material := model.Material{
		ID:             f.nextID,
		FileID:         fmt.Sprintf("file-%d", f.nextID),
		Filename:       filename,
		AnalysisStatus: model.MaterialStatusPending,
	}
	if pages, ok := f.pageCounts[filename]; ok {
		material.PageCount = &pages
	}
	f.materials[material.ID] = material
	return &material, nil
}

// AnalyzeJobID returns the deterministic job id Analyze assigns to a
// material, so tests can script the matching poll responses up front.
func AnalyzeJobID(materialID int64) string {
	return fmt.Sprintf("analyze-%d", materialID)
}

func (f *FakeMaterialService) Analyze(ctx context.Context, materialIDs []int64) (*upstream.AnalyzeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}

	result := &upstream.AnalyzeResult{}
	for _, id := range materialIDs {
		material := f.materials[id]
		result.Jobs = append(result.Jobs, model.AnalyzeJobBinding{
			JobID:    AnalyzeJobID(id),
			Material: material,
		})
		result.TotalPages += material.Pages()
	}
	return result, nil
}

func (f *FakeMaterialService) Delete(ctx context.Context, materialID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.materials[materialID]; !ok {
		return errors.New("material not found")
	}
	delete(f.materials, materialID)
	f.deleted = append(f.deleted, materialID)
	return nil
}

func (f *FakeMaterialService) Get(ctx context.Context, materialID int64) (*model.Material, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	material, ok := f.materials[materialID]
	if !ok {
		return nil, errors.New("material not found")
	}
	return &material, nil
}

// UploadCalls returns how many uploads were attempted.
func (f *FakeMaterialService) UploadCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploadCalls
}

// Deleted returns the ids removed via Delete.
func (f *FakeMaterialService) Deleted() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.deleted...)
}
