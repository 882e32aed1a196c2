package dto

// SelectionRequest toggles or sets the bulk selection.
type SelectionRequest struct {
	IDs []int64 `json:"ids" binding:"required"`
}

// RegenerateRequest regenerates all selected questions as one job.
type RegenerateRequest struct {
	Instruction string `json:"instruction,omitempty" binding:"omitempty,max=2000"`
}

// ConvertRequest converts all selected questions to open or closed form.
type ConvertRequest struct {
	Target string `json:"target" binding:"required,oneof=open closed"`
}

// BulkStateResponse reports the coordinator's observable state.
type BulkStateResponse struct {
	Selected []int64 `json:"selected"`
	Phase    string  `json:"phase"`
	JobID    string  `json:"job_id,omitempty"`
	Error    string  `json:"error,omitempty"`
}
