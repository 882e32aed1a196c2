package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quizforge/orchestrator/internal/model"
	"github.com/quizforge/orchestrator/internal/pkg/logger"
	"github.com/quizforge/orchestrator/internal/upstream"
)

// MaterialAPI is the slice of the material service the tracker consumes.
type MaterialAPI interface {
	Upload(ctx context.Context, filename string, content io.Reader) (*model.Material, error)
	Analyze(ctx context.Context, materialIDs []int64) (*upstream.AnalyzeResult, error)
	Delete(ctx context.Context, materialID int64) error
	Get(ctx context.Context, materialID int64) (*model.Material, error)
}

var (
	ErrFileTooLarge  = errors.New("file exceeds the upload size limit")
	ErrUploadMissing = errors.New("upload not found")
	ErrUploadActive  = errors.New("upload still in progress")
)

// UploadFile is one file accepted from the UI host.
type UploadFile struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// AnalysisOutcome routes one finished analysis job's result back onto the
// material it belongs to.
type AnalysisOutcome struct {
	MaterialID    int64
	ExtractedText string
	Err           string
}

// UploadTracker runs independent concurrent file uploads with a per-file
// status slot. One file's failure never cancels or delays its siblings.
// The tracker also owns the materials collection and the running page total
// compared against the advisory ceiling.
type UploadTracker struct {
	materials   MaterialAPI
	maxFileSize int64
	maxPages    int
	log         zerolog.Logger

	// onUploaded fires per file right after its upload succeeds, so a fast
	// file starts analysis without waiting for slower siblings.
	onUploaded func(material model.Material)
	// onChanged fires after any mutation of the tasks or materials
	// collections.
	onChanged func()

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	tasks    []model.UploadTask
	items    []model.Material
	limitHit bool
}

func NewUploadTracker(materials MaterialAPI, maxFileSize int64, maxPages int) *UploadTracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &UploadTracker{
		materials:   materials,
		maxFileSize: maxFileSize,
		maxPages:    maxPages,
		log:         logger.Get(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// OnUploaded registers the per-file success hook. Must be set before Submit.
func (t *UploadTracker) OnUploaded(fn func(material model.Material)) {
	t.onUploaded = fn
}

// OnChanged registers the collection-change hook. Must be set before Submit.
func (t *UploadTracker) OnChanged(fn func()) {
	t.onChanged = fn
}

// Submit validates a batch and starts one independent upload per file.
// Validation is all-or-nothing: any oversized file rejects the whole batch
// before a single network call is made.
func (t *UploadTracker) Submit(files []UploadFile) error {
	for _, f := range files {
		if f.Size > t.maxFileSize {
			return fmt.Errorf("%w: %s (%d bytes)", ErrFileTooLarge, f.Filename, f.Size)
		}
	}

	tasks := make([]model.UploadTask, 0, len(files))
	for _, f := range files {
		tasks = append(tasks, model.UploadTask{
			TempID:    newTempID(),
			Filename:  f.Filename,
			SizeBytes: f.Size,
			Status:    model.UploadStatusUploading,
		})
	}

	t.mu.Lock()
	t.tasks = append(t.tasks, tasks...)
	t.mu.Unlock()
	t.notifyChanged()

	for i, f := range files {
		go t.upload(tasks[i].TempID, f)
	}
	return nil
}

func newTempID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString())
}

func (t *UploadTracker) upload(tempID string, file UploadFile) {
	material, err := t.materials.Upload(t.ctx, file.Filename, file.Content)
	if t.ctx.Err() != nil {
		// The owning workflow was torn down; drop the result.
		return
	}

	if err != nil {
		t.markFailed(tempID, err.Error())
		return
	}

	t.mu.Lock()
	t.removeTask(tempID)
	t.items = append(t.items, *material)
	t.recomputeLimit()
	t.mu.Unlock()
	t.notifyChanged()

	t.log.Debug().Str("filename", file.Filename).Int64("material_id", material.ID).Msg("upload finished")

	if t.onUploaded != nil {
		t.onUploaded(*material)
	}
}

func (t *UploadTracker) markFailed(tempID, message string) {
	t.mu.Lock()
	for i := range t.tasks {
		if t.tasks[i].TempID == tempID {
			t.tasks[i].Status = model.UploadStatusFailed
			t.tasks[i].Error = message
			break
		}
	}
	t.mu.Unlock()
	t.notifyChanged()
}

// removeTask must be called with the lock held.
func (t *UploadTracker) removeTask(tempID string) {
	for i := range t.tasks {
		if t.tasks[i].TempID == tempID {
			t.tasks = append(t.tasks[:i], t.tasks[i+1:]...)
			return
		}
	}
}

// recomputeLimit must be called with the lock held. The ceiling is advisory:
// it blocks the next submission, it does not undo finished uploads.
func (t *UploadTracker) recomputeLimit() {
	t.limitHit = model.TotalPages(t.items) > t.maxPages
}

// Discard removes a failed upload task. Tasks still uploading cannot be
// discarded; they never auto-retry, so a failed slot stays visible until
// this call.
func (t *UploadTracker) Discard(tempID string) error {
	t.mu.Lock()
	var found *model.UploadTask
	for i := range t.tasks {
		if t.tasks[i].TempID == tempID {
			found = &t.tasks[i]
			break
		}
	}
	if found == nil {
		t.mu.Unlock()
		return ErrUploadMissing
	}
	if found.Status != model.UploadStatusFailed {
		t.mu.Unlock()
		return ErrUploadActive
	}
	t.removeTask(tempID)
	t.mu.Unlock()
	t.notifyChanged()
	return nil
}

// Delete removes a persisted material upstream and from the collection.
func (t *UploadTracker) Delete(ctx context.Context, materialID int64) error {
	if err := t.materials.Delete(ctx, materialID); err != nil {
		return err
	}

	t.mu.Lock()
	for i := range t.items {
		if t.items[i].ID == materialID {
			t.items = append(t.items[:i], t.items[i+1:]...)
			break
		}
	}
	t.recomputeLimit()
	t.mu.Unlock()
	t.notifyChanged()
	return nil
}

// ApplyAnalysis merges finished analysis outcomes onto the matching
// materials by id. Materials outside the batch are left untouched.
func (t *UploadTracker) ApplyAnalysis(outcomes []AnalysisOutcome) {
	t.mu.Lock()
	for _, outcome := range outcomes {
		for i := range t.items {
			if t.items[i].ID != outcome.MaterialID {
				continue
			}
			if outcome.Err != "" {
				t.items[i].AnalysisStatus = model.MaterialStatusFailed
				t.items[i].ProcessingError = outcome.Err
			} else {
				t.items[i].AnalysisStatus = model.MaterialStatusDone
				t.items[i].ExtractedText = outcome.ExtractedText
				t.items[i].ProcessingError = ""
			}
			break
		}
	}
	t.mu.Unlock()
	t.notifyChanged()
}

// SetMaterials replaces the collection, used by the re-edit entry path.
func (t *UploadTracker) SetMaterials(materials []model.Material) {
	t.mu.Lock()
	t.items = append([]model.Material(nil), materials...)
	t.recomputeLimit()
	t.mu.Unlock()
	t.notifyChanged()
}

// Tasks returns a snapshot of the in-flight and failed uploads.
func (t *UploadTracker) Tasks() []model.UploadTask {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.UploadTask(nil), t.tasks...)
}

// Materials returns a snapshot of the materials collection.
func (t *UploadTracker) Materials() []model.Material {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.Material(nil), t.items...)
}

// PageTotal returns the current page sum over all materials.
func (t *UploadTracker) PageTotal() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return model.TotalPages(t.items)
}

// LimitExceeded reports the advisory page-ceiling flag.
func (t *UploadTracker) LimitExceeded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limitHit
}

// Busy reports whether any upload is still in flight.
func (t *UploadTracker) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, task := range t.tasks {
		if task.Status == model.UploadStatusUploading {
			return true
		}
	}
	return false
}

// Close cancels in-flight uploads; their late results are discarded.
func (t *UploadTracker) Close() {
	t.cancel()
}

func (t *UploadTracker) notifyChanged() {
	if t.onChanged != nil {
		t.onChanged()
	}
}
