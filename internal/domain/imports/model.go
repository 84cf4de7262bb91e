// Package imports manages statement import jobs: submission, execution,
// duplicate staging, and reconciliation against the task queue.
package imports

import (
	"time"

	"github.com/google/uuid"
)

// Import statuses. An import moves queued -> processing -> completed|failed.
// StatusManual is a synthetic bucket housing ad-hoc entries and never
// transitions.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusManual     = "manual"
)

// errorMessageMaxLen caps stored failure reasons.
const errorMessageMaxLen = 1000

// StatementImport is one import job record.
type StatementImport struct {
	ID                  uuid.UUID  `json:"id"`
	UserID              *string    `json:"user_id,omitempty"`
	Filename            string     `json:"filename"`
	Status              string     `json:"status"`
	QueueJobID          *string    `json:"queue_job_id,omitempty"`
	TotalRows           int        `json:"total_rows"`
	ProcessedRows       int        `json:"processed_rows"`
	ErrorMessage        *string    `json:"error_message,omitempty"`
	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	FinishedAt          *time.Time `json:"finished_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Terminal reports whether the import can no longer change state.
func (s *StatementImport) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed || s.Status == StatusManual
}

// UploadedFile is the raw statement text retained for the executor.
type UploadedFile struct {
	ID               uuid.UUID
	ImportID         uuid.UUID
	OriginalFilename string
	ContentText      string
	CreatedAt        time.Time
}

func truncateReason(reason string) string {
	if len(reason) > errorMessageMaxLen {
		return reason[:errorMessageMaxLen]
	}
	return reason
}
