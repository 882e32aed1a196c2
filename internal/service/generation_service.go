package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/quizforge/orchestrator/config"
	"github.com/quizforge/orchestrator/internal/model"
	"github.com/quizforge/orchestrator/internal/model/dto"
	"github.com/quizforge/orchestrator/internal/pkg/logger"
	"github.com/quizforge/orchestrator/internal/pkg/pubsub"
)

// Workflow phases surfaced to the UI host.
const (
	PhaseEditing    = "editing"
	PhaseSubmitting = "submitting"
	PhasePolling    = "polling"
	PhaseSucceeded  = "succeeded"
	PhaseFailed     = "failed"
)

// Structural counter fields.
const (
	FieldTrueFalse    = "true_false"
	FieldSingleChoice = "single_choice"
	FieldMultiChoice  = "multi_choice"
	FieldOpen         = "open"
)

// Difficulty counter fields.
const (
	FieldEasy   = "easy"
	FieldMedium = "medium"
	FieldHard   = "hard"
)

const resultKeyTestID = "test_id"

var (
	ErrBusy               = errors.New("please wait for uploads and analysis to finish")
	ErrSourceTooShort     = errors.New("source text is too short to generate from")
	ErrNoQuestions        = errors.New("request at least one question")
	ErrDifficultyMismatch = errors.New("difficulty counts must add up to the question total")
	ErrGenerationActive   = errors.New("a generation job is already running")
	ErrUnknownField       = errors.New("unknown counter field")
	ErrNoArtifact         = errors.New("job finished but returned no quiz id")
	ErrNoConfiguration    = errors.New("job carries no generation configuration")
)

// GenerationWorkflow drives one quiz generation per UI session: collect
// structure and source, validate, enqueue, poll, then navigate or surface
// the failure. It composes the upload tracker, the analysis aggregator and
// a single job poller; at most one generation job is active at a time.
type GenerationWorkflow struct {
	sessionID string
	jobs      JobAPI
	materials MaterialAPI
	events    EventSink
	cfg       *config.Config
	log       zerolog.Logger

	tracker    *UploadTracker
	aggregator *MultiJobAggregator
	poller     *JobPoller

	mu           sync.Mutex
	phase        string
	trueFalse    int
	singleChoice int
	multiChoice  int
	numOpen      int
	easy         int
	medium       int
	hard         int
	sourceText   string
	instructions string
	jobID        string
	artifactID   int64
	lastErr      string
	advisory     string
}

func NewGenerationWorkflow(sessionID string, jobs JobAPI, materials MaterialAPI, events EventSink, cfg *config.Config) *GenerationWorkflow {
	w := &GenerationWorkflow{
		sessionID:  sessionID,
		jobs:       jobs,
		materials:  materials,
		events:     events,
		cfg:        cfg,
		log:        logger.Get(),
		phase:      PhaseEditing,
		tracker:    NewUploadTracker(materials, cfg.Upload.MaxFileSize, cfg.Upload.MaxTotalPages),
		aggregator: NewMultiJobAggregator(jobs, cfg.PollInterval()),
		poller:     NewJobPoller(jobs, cfg.PollInterval()),
	}

	w.tracker.OnUploaded(w.kickAnalysis)
	w.tracker.OnChanged(func() {
		w.emit(&pubsub.Event{Type: pubsub.EventUploadChanged, SessionID: w.sessionID})
	})
	w.aggregator.OnFinal(w.applyAnalysis)
	w.poller.OnDone(w.handleDone)
	w.poller.OnFailed(w.handleFailed)

	return w
}

// Tracker exposes the upload tracker for handlers.
func (w *GenerationWorkflow) Tracker() *UploadTracker {
	return w.tracker
}

// SubmitFiles validates and starts the batch upload.
func (w *GenerationWorkflow) SubmitFiles(files []UploadFile) error {
	return w.tracker.Submit(files)
}

// DeleteMaterial removes a material and recombines the remaining text.
func (w *GenerationWorkflow) DeleteMaterial(ctx context.Context, materialID int64) error {
	if err := w.tracker.Delete(ctx, materialID); err != nil {
		return err
	}
	w.recombine()
	return nil
}

// kickAnalysis starts analysis for one freshly uploaded material. Kickoff is
// sequenced per file, not batched, so fast uploads do not wait for slow
// siblings.
func (w *GenerationWorkflow) kickAnalysis(material model.Material) {
	result, err := w.materials.Analyze(context.Background(), []int64{material.ID})
	if err != nil {
		w.mu.Lock()
		w.advisory = err.Error()
		w.mu.Unlock()
		w.log.Warn().Err(err).Int64("material_id", material.ID).Msg("analysis kickoff failed")
		return
	}

	w.aggregator.Add(result.Jobs)
}

// applyAnalysis is the aggregator's finalization hook: merge outcomes onto
// the materials, recombine the source text and surface the first failure as
// an advisory without discarding the materials that analyzed fine.
func (w *GenerationWorkflow) applyAnalysis(outcomes []AnalysisOutcome, firstFailure string) {
	w.tracker.ApplyAnalysis(outcomes)
	w.recombine()

	w.mu.Lock()
	w.advisory = firstFailure
	w.mu.Unlock()

	w.emit(&pubsub.Event{
		Type:      pubsub.EventAnalysisDone,
		SessionID: w.sessionID,
		Error:     firstFailure,
	})
}

// recombine rebuilds the free-text source from the materials' extracted
// text. This is the single point where per-material text becomes the
// generation payload.
func (w *GenerationWorkflow) recombine() {
	texts := make([]string, 0)
	for _, m := range w.tracker.Materials() {
		if strings.TrimSpace(m.ExtractedText) != "" {
			texts = append(texts, m.ExtractedText)
		}
	}

	w.mu.Lock()
	w.sourceText = strings.Join(texts, "\n\n")
	w.mu.Unlock()
}

// SetTypeCount sets one structural counter, capped so the question total
// never exceeds the configured maximum.
func (w *GenerationWorkflow) SetTypeCount(field string, value int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if value < 0 {
		value = 0
	}

	max := w.cfg.Generation.MaxTotalQuestions
	switch field {
	case FieldTrueFalse:
		w.trueFalse = clamp(value, max-w.singleChoice-w.multiChoice-w.numOpen)
	case FieldSingleChoice:
		w.singleChoice = clamp(value, max-w.trueFalse-w.multiChoice-w.numOpen)
	case FieldMultiChoice:
		w.multiChoice = clamp(value, max-w.trueFalse-w.singleChoice-w.numOpen)
	case FieldOpen:
		w.numOpen = clamp(value, max-w.trueFalse-w.singleChoice-w.multiChoice)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return nil
}

// SetDifficulty sets one difficulty counter, clamped to what the other two
// leave of the question total. The sum can therefore never exceed the total
// through these setters alone.
func (w *GenerationWorkflow) SetDifficulty(field string, value int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if value < 0 {
		value = 0
	}

	total := w.totalQuestionsLocked()
	switch field {
	case FieldEasy:
		w.easy = clamp(value, total-w.medium-w.hard)
	case FieldMedium:
		w.medium = clamp(value, total-w.easy-w.hard)
	case FieldHard:
		w.hard = clamp(value, total-w.easy-w.medium)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return nil
}

func clamp(value, limit int) int {
	if limit < 0 {
		limit = 0
	}
	if value > limit {
		return limit
	}
	return value
}

// SetSourceText replaces the free-text source content.
func (w *GenerationWorkflow) SetSourceText(text string) {
	w.mu.Lock()
	w.sourceText = text
	w.mu.Unlock()
}

// SetInstructions replaces the additional instructions.
func (w *GenerationWorkflow) SetInstructions(instructions string) {
	w.mu.Lock()
	w.instructions = instructions
	w.mu.Unlock()
}

func (w *GenerationWorkflow) totalQuestionsLocked() int {
	return w.trueFalse + w.singleChoice + w.multiChoice + w.numOpen
}

// canGenerateLocked checks the submission gate in priority order; only the
// first violated rule is reported.
func (w *GenerationWorkflow) canGenerateLocked() error {
	if w.tracker.Busy() || w.aggregator.Active() {
		return ErrBusy
	}
	if utf8.RuneCountInString(strings.TrimSpace(w.sourceText)) < w.cfg.Generation.MinSourceChars {
		return ErrSourceTooShort
	}
	total := w.totalQuestionsLocked()
	if total == 0 {
		return ErrNoQuestions
	}
	if w.easy+w.medium+w.hard != total {
		return ErrDifficultyMismatch
	}
	return nil
}

// CanGenerate reports whether submission would pass the validation gate.
func (w *GenerationWorkflow) CanGenerate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.canGenerateLocked()
}

// StartGeneration validates, enqueues the generation job and binds it to
// the poller. Any previous job binding is cleared first so a retry starts
// clean.
func (w *GenerationWorkflow) StartGeneration(ctx context.Context) (string, error) {
	w.mu.Lock()
	if w.phase == PhaseSubmitting || w.phase == PhasePolling {
		w.mu.Unlock()
		return "", ErrGenerationActive
	}
	if err := w.canGenerateLocked(); err != nil {
		w.mu.Unlock()
		return "", err
	}

	w.jobID = ""
	w.artifactID = 0
	w.lastErr = ""
	req := w.buildRequestLocked()
	w.phase = PhaseSubmitting
	w.mu.Unlock()
	w.emitPhase(PhaseSubmitting, "", "")

	jobID, err := w.jobs.Enqueue(ctx, "generate", req)
	if err != nil {
		w.mu.Lock()
		w.phase = PhaseEditing
		w.lastErr = err.Error()
		w.mu.Unlock()
		w.emitPhase(PhaseEditing, "", err.Error())
		return "", err
	}

	w.mu.Lock()
	w.jobID = jobID
	w.phase = PhasePolling
	w.mu.Unlock()
	w.emitPhase(PhasePolling, jobID, "")

	w.poller.Start(jobID)
	return jobID, nil
}

// buildRequestLocked assembles the generation payload from current state.
func (w *GenerationWorkflow) buildRequestLocked() dto.GenerationRequest {
	req := dto.GenerationRequest{
		Closed: dto.ClosedCounts{
			TrueFalse:    w.trueFalse,
			SingleChoice: w.singleChoice,
			MultiChoice:  w.multiChoice,
		},
		NumOpen:                w.numOpen,
		Easy:                   w.easy,
		Medium:                 w.medium,
		Hard:                   w.hard,
		AdditionalInstructions: w.instructions,
	}

	materials := w.tracker.Materials()
	if len(materials) > 0 {
		ids := make([]int64, 0, len(materials))
		for _, m := range materials {
			ids = append(ids, m.ID)
		}
		req.MaterialIDs = ids
	}
	req.Text = w.sourceText
	return req
}

func (w *GenerationWorkflow) handleDone(record *model.JobRecord) {
	artifactID, ok := int64FromAny(record.Result[resultKeyTestID])
	if !ok {
		w.mu.Lock()
		w.phase = PhaseFailed
		w.lastErr = ErrNoArtifact.Error()
		w.jobID = ""
		w.mu.Unlock()
		w.poller.Reset()
		w.emitPhase(PhaseFailed, "", ErrNoArtifact.Error())
		return
	}

	w.mu.Lock()
	w.artifactID = artifactID
	w.phase = PhaseSucceeded
	jobID := w.jobID
	w.mu.Unlock()

	w.emit(&pubsub.Event{Type: pubsub.EventListingRefresh, SessionID: w.sessionID})
	w.emit(&pubsub.Event{Type: pubsub.EventNavigate, SessionID: w.sessionID, ArtifactID: artifactID})
	w.emit(&pubsub.Event{Type: pubsub.EventPhaseChanged, SessionID: w.sessionID, Phase: PhaseSucceeded, JobID: jobID, ArtifactID: artifactID})
}

func (w *GenerationWorkflow) handleFailed(record *model.JobRecord, message string) {
	if text, ok := record.Result["error"].(string); ok && text != "" {
		message = text
	}

	w.mu.Lock()
	w.phase = PhaseFailed
	w.lastErr = message
	w.jobID = ""
	w.mu.Unlock()

	w.poller.Reset()
	w.emitPhase(PhaseFailed, "", message)
}

// LoadFromJob seeds Editing state from a prior job's persisted
// configuration. It never creates a job.
func (w *GenerationWorkflow) LoadFromJob(ctx context.Context, jobID string) error {
	record, err := w.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if len(record.Payload) == 0 {
		return ErrNoConfiguration
	}

	payload := record.Payload

	w.mu.Lock()
	if closed, ok := payload["closed"].(map[string]any); ok {
		w.trueFalse, _ = intFromAny(closed[FieldTrueFalse])
		w.singleChoice, _ = intFromAny(closed[FieldSingleChoice])
		w.multiChoice, _ = intFromAny(closed[FieldMultiChoice])
	}
	w.numOpen, _ = intFromAny(payload["num_open"])
	w.easy, _ = intFromAny(payload[FieldEasy])
	w.medium, _ = intFromAny(payload[FieldMedium])
	w.hard, _ = intFromAny(payload[FieldHard])
	if text, ok := payload["text"].(string); ok {
		w.sourceText = text
	}
	if instructions, ok := payload["additional_instructions"].(string); ok {
		w.instructions = instructions
	}
	w.phase = PhaseEditing
	w.jobID = ""
	w.artifactID = 0
	w.lastErr = ""
	w.mu.Unlock()

	materialIDs := int64SliceFromAny(payload["material_ids"])
	if len(materialIDs) == 0 {
		w.tracker.SetMaterials(nil)
		return nil
	}

	// File-based source: reconstruct the materials and recombine their text.
	materials := make([]model.Material, 0, len(materialIDs))
	var firstErr error
	for _, id := range materialIDs {
		material, err := w.materials.Get(ctx, id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		materials = append(materials, *material)
	}

	w.tracker.SetMaterials(materials)
	w.recombine()

	if firstErr != nil {
		w.mu.Lock()
		w.advisory = firstErr.Error()
		w.mu.Unlock()
	}
	return nil
}

// Snapshot returns the observable workflow state for the UI host.
func (w *GenerationWorkflow) Snapshot() dto.WorkflowSnapshot {
	materials := w.tracker.Materials()
	uploads := w.tracker.Tasks()
	pageTotal := w.tracker.PageTotal()
	limitHit := w.tracker.LimitExceeded()
	analysisBusy := w.aggregator.Active()

	w.mu.Lock()
	defer w.mu.Unlock()

	snapshot := dto.WorkflowSnapshot{
		Phase: w.phase,
		Error: w.lastErr,
		JobID: w.jobID,
		Counters: dto.ClosedCounts{
			TrueFalse:    w.trueFalse,
			SingleChoice: w.singleChoice,
			MultiChoice:  w.multiChoice,
		},
		NumOpen:       w.numOpen,
		Easy:          w.easy,
		Medium:        w.medium,
		Hard:          w.hard,
		SourceText:    w.sourceText,
		Instructions:  w.instructions,
		ArtifactID:    w.artifactID,
		Materials:     materials,
		Uploads:       uploads,
		PageTotal:     pageTotal,
		PageLimitHit:  limitHit,
		AnalysisBusy:  analysisBusy,
		AdvisoryError: w.advisory,
	}

	if w.phase == PhaseEditing || w.phase == PhaseFailed {
		if err := w.canGenerateLocked(); err != nil {
			snapshot.BlockedReason = err.Error()
		}
	}
	return snapshot
}

// Close tears the workflow down: pending timers are cleared and in-flight
// responses are discarded rather than applied.
func (w *GenerationWorkflow) Close() {
	w.poller.Reset()
	w.aggregator.Stop()
	w.tracker.Close()
}

func (w *GenerationWorkflow) emitPhase(phase, jobID, errMsg string) {
	w.emit(&pubsub.Event{
		Type:      pubsub.EventPhaseChanged,
		SessionID: w.sessionID,
		Phase:     phase,
		JobID:     jobID,
		Error:     errMsg,
	})
}

func (w *GenerationWorkflow) emit(event *pubsub.Event) {
	if w.events == nil {
		return
	}
	if err := w.events.Publish(context.Background(), event); err != nil {
		w.log.Warn().Err(err).Str("type", event.Type).Msg("failed to publish workflow event")
	}
}

func intFromAny(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func int64FromAny(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func int64SliceFromAny(v any) []int64 {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if id, ok := int64FromAny(item); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
