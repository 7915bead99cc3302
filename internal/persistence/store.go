package persistence

import (
	"errors"
	"time"
)

// ErrJobNotFound is returned when a job record is not found.
var ErrJobNotFound = errors.New("job not found")

// JobType identifies which workflow a job runs.
type JobType string

const (
	JobTypePackage     JobType = "package"
	JobTypeApplyDeltas JobType = "apply_deltas"
	JobTypeProcessFile JobType = "process_projectfile"
)

// JobStatus is the lifecycle state of a job record.
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusQueued   JobStatus = "queued"
	JobStatusStarted  JobStatus = "started"
	JobStatusFinished JobStatus = "finished"
	JobStatusFailed   JobStatus = "failed"
)

// Job is the persistent record of one processing job. The worker updates
// Status as the job moves through its lifecycle and stores the serialized
// feedback document when the run ends.
type Job struct {
	ID        string
	ProjectID string
	Type      JobType
	Status    JobStatus

	// Output is a short human-readable result: empty on success, the
	// run error on failure.
	Output string

	// Feedback is the JSON feedback document produced by the runner.
	Feedback []byte

	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobFilter selects jobs from the store.
// Zero values mean "no filter" for that field.
type JobFilter struct {
	ProjectID string
	Type      JobType
	Status    JobStatus
}

// JobStore handles storage of job records.
type JobStore interface {
	SaveJob(job *Job) error
	UpdateJob(job *Job) error
	GetJob(id string) (*Job, error)
	ListJobs(filter JobFilter) ([]*Job, error)
}
