// Package dtos defines the request/response shapes that do not map onto a
// single persisted model: import payloads and the async job status envelope.
package dtos

import (
	"time"

	"github.com/google/uuid"
)

// BatchJob is the status envelope of one asynchronous import job. It lives
// only in the in-memory job store and is never persisted.
type BatchJob struct {
	ID          uuid.UUID  `json:"id"`
	Status      string     `json:"status"`   // pending, processing, completed, failed
	Progress    int        `json:"progress"` // 0-100 percentage
	Total       int        `json:"total"`
	Processed   int        `json:"processed"`
	Created     int        `json:"created"`
	Updated     int        `json:"updated"`
	Deleted     int        `json:"deleted"`
	Failed      int        `json:"failed"`
	Errors      []JobError `json:"errors"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// JobError pins one failed row to its position in the import payload.
type JobError struct {
	Row     int               `json:"row"`     // 1-based position in the products array
	Product string            `json:"product"` // name as given in the payload, may be empty
	Fields  map[string]string `json:"fields"`  // field name to validation message
}

// Lifecycle states a job moves through. Pending only exists between
// CreateJob and the first worker update.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)
