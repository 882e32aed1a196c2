package model

// Material analysis statuses.
const (
	MaterialStatusPending = "pending"
	MaterialStatusDone    = "done"
	MaterialStatusFailed  = "failed"
)

// Material is a source document persisted by the material service.
type Material struct {
	ID              int64  `json:"id"`
	FileID          string `json:"file_id,omitempty"`
	Filename        string `json:"filename"`
	PageCount       *int   `json:"page_count,omitempty"`
	ExtractedText   string `json:"extracted_text,omitempty"`
	AnalysisStatus  string `json:"analysis_status"`
	ProcessingError string `json:"processing_error,omitempty"`
}

// Pages returns the page count, defaulting to 1 when the server omits it.
func (m Material) Pages() int {
	if m.PageCount == nil || *m.PageCount <= 0 {
		return 1
	}
	return *m.PageCount
}

// TotalPages sums page counts over the current materials.
func TotalPages(materials []Material) int {
	total := 0
	for _, m := range materials {
		total += m.Pages()
	}
	return total
}

// Upload task statuses. There is no "done": a successful upload disappears
// from the tracking set and a Material takes its place.
const (
	UploadStatusUploading = "uploading"
	UploadStatusFailed    = "failed"
)

// UploadTask is a client-only tracking record for one in-flight transfer.
type UploadTask struct {
	TempID    string `json:"temp_id"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// AnalyzeJobBinding pairs a material with the job id returned for its
// analysis, so a finished job's outcome can be routed back to the right
// material.
type AnalyzeJobBinding struct {
	JobID    string   `json:"job_id"`
	Material Material `json:"material"`
}
