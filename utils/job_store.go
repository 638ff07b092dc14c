package utils

import (
	"sync"
	"time"

	"souq-backend/dtos"

	"github.com/google/uuid"
)

// Finished jobs stay visible for an hour so clients can collect results
// after the fact.
const jobRetention = time.Hour

// JobStore tracks asynchronous import jobs in memory. Jobs are ephemeral:
// a restart loses them, and callers are expected to re-submit.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*dtos.BatchJob
}

// Store is the process-wide job store.
var Store = &JobStore{
	jobs: make(map[uuid.UUID]*dtos.BatchJob),
}

// CreateJob registers a pending job and returns a snapshot of it. Stale
// finished jobs are evicted on the way in, so the map cannot grow without
// bound even when nothing polls it.
func (js *JobStore) CreateJob(total int) dtos.BatchJob {
	js.CleanupOldJobs()

	job := &dtos.BatchJob{
		ID:        uuid.New(),
		Status:    dtos.JobStatusPending,
		Total:     total,
		Errors:    []dtos.JobError{}, // marshals as [] rather than null
		StartedAt: time.Now(),
	}

	js.mu.Lock()
	js.jobs[job.ID] = job
	js.mu.Unlock()
	return *job
}

// GetJob returns a snapshot of the job. Copying means the HTTP handler can
// marshal the result while the import goroutine keeps writing.
func (js *JobStore) GetJob(id uuid.UUID) (dtos.BatchJob, bool) {
	js.mu.RLock()
	defer js.mu.RUnlock()

	job, exists := js.jobs[id]
	if !exists {
		return dtos.BatchJob{}, false
	}
	snapshot := *job
	snapshot.Errors = append([]dtos.JobError(nil), job.Errors...)
	return snapshot, true
}

// UpdateJob applies fn to the live job under the store lock.
func (js *JobStore) UpdateJob(id uuid.UUID, fn func(*dtos.BatchJob)) {
	js.mu.Lock()
	defer js.mu.Unlock()

	if job, exists := js.jobs[id]; exists {
		fn(job)
	}
}

// CompleteJob moves a job to its terminal status.
func (js *JobStore) CompleteJob(id uuid.UUID, status string) {
	js.mu.Lock()
	defer js.mu.Unlock()

	job, ok := js.jobs[id]
	if !ok {
		return
	}
	job.Status = status
	job.Progress = 100
	now := time.Now()
	job.CompletedAt = &now
}

// CleanupOldJobs evicts finished jobs past the retention window. Running
// jobs are never evicted regardless of age.
func (js *JobStore) CleanupOldJobs() {
	js.mu.Lock()
	defer js.mu.Unlock()

	cutoff := time.Now().Add(-jobRetention)
	for id, job := range js.jobs {
		if job.Status != dtos.JobStatusCompleted && job.Status != dtos.JobStatusFailed {
			continue
		}
		finished := job.StartedAt
		if job.CompletedAt != nil {
			finished = *job.CompletedAt
		}
		if finished.Before(cutoff) {
			delete(js.jobs, id)
		}
	}
}
