package dto

import "github.com/quizforge/orchestrator/internal/model"

// ClosedCounts are the per-type counters for closed questions.
type ClosedCounts struct {
	TrueFalse    int `json:"true_false"`
	SingleChoice int `json:"single_choice"`
	MultiChoice  int `json:"multi_choice"`
}

// GenerationRequest is the payload sent to the job service for a generate
// operation.
type GenerationRequest struct {
	Closed                 ClosedCounts `json:"closed"`
	NumOpen                int          `json:"num_open"`
	Easy                   int          `json:"easy"`
	Medium                 int          `json:"medium"`
	Hard                   int          `json:"hard"`
	Text                   string       `json:"text,omitempty"`
	MaterialIDs            []int64      `json:"material_ids,omitempty"`
	AdditionalInstructions string       `json:"additional_instructions,omitempty"`
}

// UpdateCountersRequest sets one structural counter field.
type UpdateCountersRequest struct {
	Field string `json:"field" binding:"required,oneof=true_false single_choice multi_choice open"`
	Value int    `json:"value" binding:"min=0"`
}

// UpdateDifficultyRequest sets one difficulty counter field.
type UpdateDifficultyRequest struct {
	Field string `json:"field" binding:"required,oneof=easy medium hard"`
	Value int    `json:"value" binding:"min=0"`
}

// UpdateSourceRequest replaces the free-text source content.
type UpdateSourceRequest struct {
	Text string `json:"text"`
}

// UpdateInstructionsRequest replaces the additional instructions.
type UpdateInstructionsRequest struct {
	Instructions string `json:"instructions"`
}

// StartGenerationResponse returns the job bound to the new generation run.
type StartGenerationResponse struct {
	JobID string `json:"job_id"`
}

// WorkflowSnapshot is the observable state pushed to the UI host.
type WorkflowSnapshot struct {
	Phase         string             `json:"phase"`
	BlockedReason string             `json:"blocked_reason,omitempty"`
	Error         string             `json:"error,omitempty"`
	JobID         string             `json:"job_id,omitempty"`
	ArtifactID    int64              `json:"artifact_id,omitempty"`
	Counters      ClosedCounts       `json:"counters"`
	NumOpen       int                `json:"num_open"`
	Easy          int                `json:"easy"`
	Medium        int                `json:"medium"`
	Hard          int                `json:"hard"`
	SourceText    string             `json:"source_text"`
	Instructions  string             `json:"instructions,omitempty"`
	Materials     []model.Material   `json:"materials"`
	Uploads       []model.UploadTask `json:"uploads"`
	PageTotal     int                `json:"page_total"`
	PageLimitHit  bool               `json:"page_limit_hit"`
	AnalysisBusy  bool               `json:"analysis_busy"`
	AdvisoryError string             `json:"advisory_error,omitempty"`
}
