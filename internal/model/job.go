package model

import (
	"strings"
	"time"
)

// Job statuses as reported by the job service. Comparison is
// case-insensitive on the wire; NormalizeStatus is applied on ingestion.
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusDone       = "done"
	JobStatusFailed     = "failed"
)

// JobRecord is a read-only snapshot of a server-tracked asynchronous job.
// The server is the only writer; clients obtain snapshots by polling.
type JobRecord struct {
	ID        string         `json:"id"`
	Status    string         `json:"status"`
	Payload   map[string]any `json:"payload,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NormalizeStatus lowercases a wire status so comparisons are uniform.
func NormalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// IsTerminalStatus reports whether a job reached done or failed.
func IsTerminalStatus(status string) bool {
	s := NormalizeStatus(status)
	return s == JobStatusDone || s == JobStatusFailed
}

// Normalize returns a copy of the record with its status normalized.
func (j JobRecord) Normalize() JobRecord {
	j.Status = NormalizeStatus(j.Status)
	return j
}

// IsTerminal reports whether the record reached a terminal status.
func (j JobRecord) IsTerminal() bool {
	return IsTerminalStatus(j.Status)
}
