package stepflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/fieldworks/stepflow/internal/persistence"
	"github.com/fieldworks/stepflow/internal/taskqueue"
	"github.com/fieldworks/stepflow/pkg/worker"
)

// Job-layer types re-exported for callers of LocalRunner and the bundles.

type (
	Job       = persistence.Job
	JobType   = persistence.JobType
	JobStatus = persistence.JobStatus
	JobFilter = persistence.JobFilter
	JobStore  = persistence.JobStore

	WorkerConfig    = worker.Config
	WorkflowFactory = worker.WorkflowFactory
)

const (
	JobTypePackage     = persistence.JobTypePackage
	JobTypeApplyDeltas = persistence.JobTypeApplyDeltas
	JobTypeProcessFile = persistence.JobTypeProcessFile

	JobStatusPending  = persistence.JobStatusPending
	JobStatusQueued   = persistence.JobStatusQueued
	JobStatusStarted  = persistence.JobStatusStarted
	JobStatusFinished = persistence.JobStatusFinished
	JobStatusFailed   = persistence.JobStatusFailed
)

// LocalRunner bundles an in-memory job store, an in-memory task queue, and
// a Worker to provide a simple single-process job runner for development
// and tests.
//
// Typical usage:
//
//	runner := stepflow.NewLocalRunner()
//	runner.Worker.RegisterFactory(stepflow.JobTypePackage, buildPackageWorkflow)
//
//	_ = runner.StartWorkers(ctx, 2)
//	defer runner.Stop()
//
//	_ = runner.Worker.EnqueueJob(ctx, &stepflow.Job{ID: "job-1", Type: stepflow.JobTypePackage})
type LocalRunner struct {
	// Store is the in-memory job store used by this runner.
	Store JobStore

	// Queue is the in-memory task queue used by the Worker.
	Queue taskqueue.Queue

	// Worker processes job tasks from Queue against Store.
	Worker *worker.Worker

	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory store,
// in-memory queue, and a Worker with default config.
func NewLocalRunner() *LocalRunner {
	return NewLocalRunnerWithConfig(WorkerConfig{})
}

// NewLocalRunnerWithConfig is like NewLocalRunner but lets the caller
// customize the Worker (observer, working-dir base, delta recorder).
func NewLocalRunnerWithConfig(cfg WorkerConfig) *LocalRunner {
	store := persistence.NewInMemoryStore()
	q := taskqueue.NewInMemoryQueue(1024)
	w := worker.NewWithConfig(store, q, cfg)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &LocalRunner{
		Store:  store,
		Queue:  q,
		Worker: w,
		logger: logger,
	}
}

// StartWorkers starts 'concurrency' worker goroutines that continuously
// call Worker.ProcessOne(ctx) until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("stepflow: LocalRunner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()

			for {
				processed, err := r.Worker.ProcessOne(ctx)
				if err != nil {
					// Cancellation is a clean shutdown signal for the local runner.
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// For other errors, log and keep going so a single bad job
					// doesn't kill the worker loop.
					r.logger.Error("local runner worker error", slog.Any("error", err))
					continue
				}
				if !processed {
					continue
				}
			}
		}()
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}
