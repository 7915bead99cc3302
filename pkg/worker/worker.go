package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldworks/stepflow/internal/engine"
	"github.com/fieldworks/stepflow/internal/persistence"
	"github.com/fieldworks/stepflow/internal/taskqueue"
	"github.com/fieldworks/stepflow/pkg/api"
)

// WorkflowFactory builds the workflow to run for one job. Factories are
// registered per job type; they typically close over the collaborators the
// operations need (file transfer clients, container launchers).
type WorkflowFactory func(job *persistence.Job) (*api.Workflow, error)

// DeltaStatusRecorder receives per-delta results after an apply-deltas job
// completes. Implementations persist the status on the delta records so
// the API layer can surface them to clients.
type DeltaStatusRecorder interface {
	RecordDeltaStatus(ctx context.Context, deltaID string, status string, feedback map[string]any) error
}

// Per-delta terminal statuses recorded through a DeltaStatusRecorder.
const (
	DeltaStatusApplied    = "applied"
	DeltaStatusConflict   = "conflict"
	DeltaStatusNotApplied = "not_applied"
	DeltaStatusError      = "error"
)

// Config customizes a Worker.
type Config struct {
	// WorkDirBase overrides where per-run working roots are created.
	WorkDirBase string

	// Observer receives run and step lifecycle callbacks for every job.
	Observer api.Observer

	// Logger is used for worker-level logs. Nil means slog.Default().
	Logger *slog.Logger

	// DeltaRecorder, if set, receives per-delta statuses after
	// apply-deltas jobs.
	DeltaRecorder DeltaStatusRecorder
}

// Worker pulls job tasks from a Queue, builds the workflow registered for
// the job's type, runs it, and persists the feedback document and terminal
// status on the job record.
type Worker struct {
	store  persistence.JobStore
	queue  taskqueue.Queue
	cfg    Config
	logger *slog.Logger

	mu        sync.RWMutex
	factories map[persistence.JobType]WorkflowFactory
}

// New creates a Worker with default config.
func New(store persistence.JobStore, queue taskqueue.Queue) *Worker {
	return NewWithConfig(store, queue, Config{})
}

// NewWithConfig creates a Worker with the given config.
func NewWithConfig(store persistence.JobStore, queue taskqueue.Queue, cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:     store,
		queue:     queue,
		factories: make(map[persistence.JobType]WorkflowFactory),
		cfg:       cfg,
		logger:    logger,
	}
}

// RegisterFactory registers the workflow factory for a job type,
// replacing any previous registration. It is safe to call while workers
// are already processing.
func (w *Worker) RegisterFactory(t persistence.JobType, f WorkflowFactory) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.factories[t] = f
}

func (w *Worker) factory(t persistence.JobType) WorkflowFactory {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.factories[t]
}

// EnqueueJob persists the job as JobStatusQueued and enqueues a task for
// it. The record is written before the task becomes visible to workers: a
// worker may dequeue and finish the job immediately, and any status write
// by the enqueuer after that point would clobber the worker's result.
func (w *Worker) EnqueueJob(ctx context.Context, job *persistence.Job) error {
	if job.ID == "" {
		return errors.New("worker: job ID is required")
	}
	if w.factory(job.Type) == nil {
		return fmt.Errorf("worker: no workflow factory registered for job type %q", job.Type)
	}

	job.Status = persistence.JobStatusQueued
	if err := w.store.SaveJob(job); err != nil {
		return err
	}

	return w.queue.Enqueue(ctx, taskqueue.Task{
		JobID:      job.ID,
		EnqueuedAt: time.Now(),
	})
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false, err != nil: nothing processed (e.g. ctx cancelled
//     while waiting for a task)
//   - processed == true: a task was processed; err indicates whether the
//     job could be handled.
//
// A failed workflow run is not an error here: the failure lives in the
// job's feedback and status. Errors are reserved for jobs that could not
// be processed at all (unknown job, missing factory, store failures).
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	job, err := w.store.GetJob(task.JobID)
	if err != nil {
		return true, fmt.Errorf("worker: load job %q: %w", task.JobID, err)
	}

	factory := w.factory(job.Type)
	if factory == nil {
		job.Status = persistence.JobStatusFailed
		job.Output = fmt.Sprintf("no workflow registered for job type %q", job.Type)
		_ = w.store.UpdateJob(job)
		return true, fmt.Errorf("worker: no workflow factory registered for job type %q", job.Type)
	}

	job.Status = persistence.JobStatusStarted
	if err := w.store.UpdateJob(job); err != nil {
		return true, err
	}

	w.logger.InfoContext(ctx, "job_started",
		slog.String("job_id", job.ID),
		slog.String("job_type", string(job.Type)),
		slog.String("project_id", job.ProjectID),
	)

	wf, err := factory(job)
	if err != nil {
		job.Status = persistence.JobStatusFailed
		job.Output = err.Error()
		_ = w.store.UpdateJob(job)
		return true, fmt.Errorf("worker: build workflow for job %q: %w", job.ID, err)
	}

	var buf bytes.Buffer
	fb, err := engine.Run(ctx, wf, engine.Options{
		FeedbackWriter: &buf,
		WorkDirBase:    w.cfg.WorkDirBase,
		Observer:       w.cfg.Observer,
	})
	if err != nil {
		// Sink is an in-memory buffer; failing to write it is a defect.
		return true, fmt.Errorf("worker: encode feedback for job %q: %w", job.ID, err)
	}

	job.Feedback = buf.Bytes()
	if fb.HasError() {
		job.Status = persistence.JobStatusFailed
		job.Output = fb.Error
	} else {
		job.Status = persistence.JobStatusFinished
		job.Output = ""
	}

	if err := w.store.UpdateJob(job); err != nil {
		return true, err
	}

	if job.Type == persistence.JobTypeApplyDeltas && w.cfg.DeltaRecorder != nil {
		if err := w.recordDeltaStatuses(ctx, fb); err != nil {
			return true, err
		}
	}

	w.logger.InfoContext(ctx, "job_done",
		slog.String("job_id", job.ID),
		slog.String("status", string(job.Status)),
	)

	return true, nil
}

// recordDeltaStatuses lifts per-delta results out of the feedback outputs
// and hands them to the configured recorder. The apply step is expected to
// externalize an output named "deltas": a list of documents each carrying
// at least "delta_id" and "status".
func (w *Worker) recordDeltaStatuses(ctx context.Context, fb *api.Feedback) error {
	for stepID, outputs := range fb.Outputs {
		raw, ok := outputs["deltas"]
		if !ok {
			continue
		}

		entries, ok := raw.([]any)
		if !ok {
			return fmt.Errorf("worker: step %q output \"deltas\" is %T, want []any", stepID, raw)
		}

		for _, entry := range entries {
			doc, ok := entry.(map[string]any)
			if !ok {
				return fmt.Errorf("worker: step %q delta entry is %T, want map[string]any", stepID, entry)
			}

			deltaID, _ := doc["delta_id"].(string)
			rawStatus, _ := doc["status"].(string)

			if err := w.cfg.DeltaRecorder.RecordDeltaStatus(ctx, deltaID, mapDeltaStatus(rawStatus), doc); err != nil {
				return err
			}
		}
	}

	return nil
}

// mapDeltaStatus translates the statuses reported by the apply operation
// into the terminal statuses recorded on delta records. Anything
// unrecognized is treated as an error status.
func mapDeltaStatus(raw string) string {
	switch raw {
	case "status_applied":
		return DeltaStatusApplied
	case "status_conflict":
		return DeltaStatusConflict
	case "status_apply_failed":
		return DeltaStatusNotApplied
	default:
		return DeltaStatusError
	}
}
