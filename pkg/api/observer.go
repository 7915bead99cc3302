package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the runner for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be
// done asynchronously so as not to delay step execution.
type Observer interface {
	// OnRunStart is called once per run, before the first step executes.
	OnRunStart(ctx context.Context, wf *Workflow, runID string)

	// OnRunCompleted is called when every step completed successfully.
	OnRunCompleted(ctx context.Context, wf *Workflow, runID string, fb *Feedback)

	// OnRunFailed is called when the run aborted due to a step failure.
	OnRunFailed(ctx context.Context, wf *Workflow, runID string, err error)

	// OnStepStart is called before resolving a step's arguments.
	// stepIndex is the 0-based index into Workflow.Steps.
	OnStepStart(ctx context.Context, runID string, step Step, stepIndex int)

	// OnStepCompleted is called after a step finishes, for both successes
	// and failures (err != nil).
	OnStepCompleted(ctx context.Context, runID string, step Step, stepIndex int, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, wf *Workflow, runID string)                  {}
func (NoopObserver) OnRunCompleted(ctx context.Context, wf *Workflow, runID string, fb *Feedback) {}
func (NoopObserver) OnRunFailed(ctx context.Context, wf *Workflow, runID string, err error)      {}
func (NoopObserver) OnStepStart(ctx context.Context, runID string, step Step, idx int)           {}
func (NoopObserver) OnStepCompleted(ctx context.Context, runID string, step Step, idx int, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, wf *Workflow, runID string) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, wf, runID)
	}
}

func (c *CompositeObserver) OnRunCompleted(ctx context.Context, wf *Workflow, runID string, fb *Feedback) {
	for _, o := range c.observers {
		o.OnRunCompleted(ctx, wf, runID, fb)
	}
}

func (c *CompositeObserver) OnRunFailed(ctx context.Context, wf *Workflow, runID string, err error) {
	for _, o := range c.observers {
		o.OnRunFailed(ctx, wf, runID, err)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, runID string, step Step, idx int) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, runID, step, idx)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, runID string, step Step, idx int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, runID, step, idx, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / step lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, wf *Workflow, runID string) {
	o.Logger.InfoContext(ctx, "run_start",
		slog.String("workflow", wf.ID),
		slog.String("run_id", runID),
	)
}

func (o *LoggingObserver) OnRunCompleted(ctx context.Context, wf *Workflow, runID string, fb *Feedback) {
	o.Logger.InfoContext(ctx, "run_completed",
		slog.String("workflow", wf.ID),
		slog.String("run_id", runID),
	)
}

func (o *LoggingObserver) OnRunFailed(ctx context.Context, wf *Workflow, runID string, err error) {
	o.Logger.ErrorContext(ctx, "run_failed",
		slog.String("workflow", wf.ID),
		slog.String("run_id", runID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, runID string, step Step, idx int) {
	o.Logger.InfoContext(ctx, "step_start",
		slog.String("run_id", runID),
		slog.String("step", step.ID),
		slog.String("step_name", step.Name),
		slog.Int("step_index", idx),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, runID string, step Step, idx int, err error, d time.Duration) {
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "step_completed",
		slog.String("run_id", runID),
		slog.String("step", step.ID),
		slog.Int("step_index", idx),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	runsStarted       atomic.Int64
	runsCompleted     atomic.Int64
	runsFailed        atomic.Int64
	stepsCompleted    atomic.Int64
	totalStepDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64

	StepsCompleted  int64
	AvgStepDuration time.Duration
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, wf *Workflow, runID string) {
	m.runsStarted.Add(1)
}

func (m *BasicMetrics) OnRunCompleted(ctx context.Context, wf *Workflow, runID string, fb *Feedback) {
	m.runsCompleted.Add(1)
}

func (m *BasicMetrics) OnRunFailed(ctx context.Context, wf *Workflow, runID string, err error) {
	m.runsFailed.Add(1)
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, runID string, step Step, idx int, err error, d time.Duration) {
	// Only count successful steps for average duration.
	if err == nil {
		m.stepsCompleted.Add(1)
		m.totalStepDuration.Add(d.Nanoseconds())
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	steps := m.stepsCompleted.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if steps > 0 {
		avg = time.Duration(totalNs / steps)
	}

	return BasicMetricsSnapshot{
		RunsStarted:     m.runsStarted.Load(),
		RunsCompleted:   m.runsCompleted.Load(),
		RunsFailed:      m.runsFailed.Load(),
		StepsCompleted:  steps,
		AvgStepDuration: avg,
	}
}
