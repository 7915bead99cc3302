package stepflow

import (
	"context"
	"io"

	"github.com/fieldworks/stepflow/internal/engine"
	"github.com/fieldworks/stepflow/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Workflow        = api.Workflow
	Step            = api.Step
	Operation       = api.Operation
	OperationFunc   = api.OperationFunc
	ArgValue        = api.ArgValue
	Literal         = api.Literal
	StepOutput      = api.StepOutput
	WorkDirPath     = api.WorkDirPath
	Stage           = api.Stage
	Feedback        = api.Feedback
	StepFeedback    = api.StepFeedback
	ValidationError = api.ValidationError

	Observer             = api.Observer
	NoopObserver         = api.NoopObserver
	LoggingObserver      = api.LoggingObserver
	CompositeObserver    = api.CompositeObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
)

// Re-export stage values for convenience.

const (
	StageNotStarted = api.StageNotStarted
	StageRunning    = api.StageRunning
	StageCompleted  = api.StageCompleted

	FeedbackVersion = api.FeedbackVersion
)

// Re-export argument binding constructors and observer helpers.

var (
	Lit      = api.Lit
	FromStep = api.FromStep
	WorkDir  = api.WorkDir

	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// NewWorkflow builds and validates a workflow from ready-made steps.
// Most callers will prefer the WorkflowBuilder (see New).
func NewWorkflow(id, version, name, description string, steps []Step) (*Workflow, error) {
	return api.NewWorkflow(id, version, name, description, steps)
}

// RunOption customizes a single workflow run.
type RunOption func(*engine.Options)

// WithFeedbackWriter makes the runner write the feedback document to w at
// the end of the run.
func WithFeedbackWriter(w io.Writer) RunOption {
	return func(o *engine.Options) { o.FeedbackWriter = w }
}

// WithFeedbackPath makes the runner write the feedback document to the
// given file at the end of the run.
func WithFeedbackPath(path string) RunOption {
	return func(o *engine.Options) { o.FeedbackPath = path }
}

// WithWorkDirBase overrides the directory under which the per-run working
// root is created. The default is the OS temp directory.
func WithWorkDirBase(dir string) RunOption {
	return func(o *engine.Options) { o.WorkDirBase = dir }
}

// WithObserver attaches an Observer to the run.
func WithObserver(obs Observer) RunOption {
	return func(o *engine.Options) { o.Observer = obs }
}

// Run executes a validated workflow and returns its feedback document.
//
// Step failures never surface as the returned error; they are recorded in
// the document's Error / ErrorStack fields, alongside the outputs of every
// step that completed before the failure. The returned error reports only
// problems writing the document to a configured sink.
func Run(ctx context.Context, wf *Workflow, opts ...RunOption) (*Feedback, error) {
	var options engine.Options
	for _, opt := range opts {
		opt(&options)
	}
	return engine.Run(ctx, wf, options)
}
