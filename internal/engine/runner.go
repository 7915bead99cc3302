package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldworks/stepflow/pkg/api"
)

// Options configures a single workflow run.
type Options struct {
	// FeedbackWriter, if non-nil, receives the feedback document once, at
	// the very end of the run (success or failure).
	FeedbackWriter io.Writer

	// FeedbackPath, if non-empty, is a file the feedback document is
	// written to at the end of the run.
	FeedbackPath string

	// WorkDirBase is the directory under which the per-run working root is
	// created. Empty means the OS temp directory.
	WorkDirBase string

	// Observer receives run and step lifecycle callbacks. Nil means no
	// observation.
	Observer api.Observer
}

// stepResult is the outcome of one step invocation: either named returns
// or a failure. Failures are values, not panics, so the run loop can stop
// executing and still assemble feedback for every step that completed.
type stepResult struct {
	returns map[string]any
	err     error
	stack   []string
}

// Run executes the workflow's steps strictly in declared order, single
// threaded. It always returns a fully populated feedback document; step
// failures are recorded in the document, never returned as a Go error.
// The returned error reports only problems delivering the document to the
// configured sink.
//
// Each run owns a freshly created working root, which is never shared with
// other runs. Execution stops at the first failing step; steps already
// completed keep their captured returns and outputs in the document, and
// steps never reached stay at StageNotStarted.
func Run(ctx context.Context, wf *api.Workflow, opts Options) (*api.Feedback, error) {
	obs := opts.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}

	runID := uuid.NewString()
	obs.OnRunStart(ctx, wf, runID)

	// Per-run execution state. Stages live here, not on the steps, so the
	// workflow definition stays immutable and reusable.
	stages := make(map[string]api.Stage, len(wf.Steps))
	stepReturns := make(map[string]map[string]any, len(wf.Steps))

	var runErr error
	var errStack []string

	root, err := os.MkdirTemp(opts.WorkDirBase, "stepflow-run-")
	if err != nil {
		runErr = fmt.Errorf("create working directory: %w", err)
		errStack = stackLines()
	} else {
		for i, step := range wf.Steps {
			if err := ctx.Err(); err != nil {
				runErr = err
				errStack = stackLines()
				break
			}

			stages[step.ID] = api.StageRunning
			start := time.Now()
			obs.OnStepStart(ctx, runID, step, i)

			res := runStep(ctx, step, root, stepReturns)

			obs.OnStepCompleted(ctx, runID, step, i, res.err, time.Since(start))

			if res.err != nil {
				runErr = res.err
				errStack = res.stack
				break
			}

			stepReturns[step.ID] = res.returns
			stages[step.ID] = api.StageCompleted
		}
	}

	fb := assembleFeedback(wf, stages, stepReturns, runErr, errStack)

	if runErr != nil {
		obs.OnRunFailed(ctx, wf, runID, runErr)
	} else {
		obs.OnRunCompleted(ctx, wf, runID, fb)
	}

	return fb, emitFeedback(fb, opts)
}

// runStep resolves the step's arguments, invokes the operation, and
// destructures the result into the declared return names. A panicking
// operation is recovered into a failure result so the run loop can keep
// its "always produce feedback" contract.
func runStep(ctx context.Context, step api.Step, root string, stepReturns map[string]map[string]any) (res stepResult) {
	defer func() {
		if r := recover(); r != nil {
			res = stepResult{
				err:   fmt.Errorf("step %q: operation %q panicked: %v", step.ID, step.Operation.Name, r),
				stack: stackLines(),
			}
		}
	}()

	args, err := resolveArguments(step, root, stepReturns)
	if err != nil {
		return stepResult{err: err, stack: stackLines()}
	}

	result, err := step.Operation.Call(ctx, args)
	if err != nil {
		return stepResult{
			err:   fmt.Errorf("step %q: %w", step.ID, err),
			stack: stackLines(),
		}
	}

	returns, err := destructure(step, result)
	if err != nil {
		return stepResult{err: err, stack: stackLines()}
	}

	return stepResult{returns: returns}
}

// resolveArguments replaces each binding with its concrete value: literals
// pass through, StepOutput references are looked up in the completed
// returns of earlier steps, and WorkDirPath specs are evaluated against the
// per-run root.
//
// A missing StepOutput entry here is a programming defect: validation
// guarantees the referenced step ran earlier, so the lookup can only fail
// if that guarantee was broken. It aborts the run loudly rather than being
// silently swallowed.
func resolveArguments(step api.Step, root string, stepReturns map[string]map[string]any) (map[string]any, error) {
	args := make(map[string]any, len(step.Arguments))

	for name, value := range step.Arguments {
		switch v := value.(type) {
		case api.Literal:
			args[name] = v.Value

		case api.StepOutput:
			returns, ok := stepReturns[v.StepID]
			if !ok {
				return nil, fmt.Errorf("step %q argument %q: referenced step %q has not completed; workflow validation invariant broken", step.ID, name, v.StepID)
			}
			val, ok := returns[v.ReturnName]
			if !ok {
				return nil, fmt.Errorf("step %q argument %q: step %q recorded no return %q; workflow validation invariant broken", step.ID, name, v.StepID, v.ReturnName)
			}
			args[name] = val

		case api.WorkDirPath:
			path, err := v.Eval(root)
			if err != nil {
				return nil, fmt.Errorf("step %q argument %q: %w", step.ID, name, err)
			}
			args[name] = path

		default:
			return nil, fmt.Errorf("step %q argument %q: unsupported binding %T", step.ID, name, value)
		}
	}

	return args, nil
}

// destructure maps the operation result onto the step's declared return
// names. Arity rule: exactly one declared name takes the raw result as the
// single value; more than one requires a []any of matching length.
func destructure(step api.Step, result any) (map[string]any, error) {
	returns := make(map[string]any, len(step.ReturnNames))

	switch len(step.ReturnNames) {
	case 0:
		// No declared returns; the result, if any, is dropped.
	case 1:
		returns[step.ReturnNames[0]] = result
	default:
		values, ok := result.([]any)
		if !ok {
			return nil, fmt.Errorf("step %q: operation %q declared %d return names but returned %T, want []any", step.ID, step.Operation.Name, len(step.ReturnNames), result)
		}
		if len(values) != len(step.ReturnNames) {
			return nil, fmt.Errorf("step %q: operation %q returned %d values, want %d", step.ID, step.Operation.Name, len(values), len(step.ReturnNames))
		}
		for i, name := range step.ReturnNames {
			returns[name] = values[i]
		}
	}

	return returns, nil
}

// assembleFeedback builds the document covering every step: completed
// steps carry their returns and declared outputs, the rest only id, name
// and stage.
func assembleFeedback(wf *api.Workflow, stages map[string]api.Stage, stepReturns map[string]map[string]any, runErr error, errStack []string) *api.Feedback {
	fb := &api.Feedback{
		FeedbackVersion: api.FeedbackVersion,
		WorkflowVersion: wf.Version,
		WorkflowID:      wf.ID,
		WorkflowName:    wf.Name,
		Steps:           make([]api.StepFeedback, 0, len(wf.Steps)),
		Outputs:         make(map[string]map[string]any),
	}

	if runErr != nil {
		fb.Error = runErr.Error()
		fb.ErrorStack = errStack
	}

	for _, step := range wf.Steps {
		sf := api.StepFeedback{
			ID:      step.ID,
			Name:    step.Name,
			Stage:   stages[step.ID],
			Returns: map[string]any{},
		}

		if sf.Stage == api.StageCompleted {
			sf.Returns = stepReturns[step.ID]

			outputs := make(map[string]any, len(step.Outputs))
			for _, name := range step.Outputs {
				outputs[name] = stepReturns[step.ID][name]
			}
			fb.Outputs[step.ID] = outputs
		}

		fb.Steps = append(fb.Steps, sf)
	}

	return fb
}

// emitFeedback writes the document to the configured sinks, if any.
func emitFeedback(fb *api.Feedback, opts Options) error {
	if opts.FeedbackWriter != nil {
		if err := fb.Encode(opts.FeedbackWriter); err != nil {
			return fmt.Errorf("write feedback: %w", err)
		}
	}

	if opts.FeedbackPath != "" {
		if err := fb.WriteFile(opts.FeedbackPath); err != nil {
			return fmt.Errorf("write feedback to %q: %w", opts.FeedbackPath, err)
		}
	}

	return nil
}

func stackLines() []string {
	return strings.Split(strings.TrimRight(string(debug.Stack()), "\n"), "\n")
}
