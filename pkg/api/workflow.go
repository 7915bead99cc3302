package api

import (
	"context"
	"fmt"
)

// OperationFunc is the callable behind an operation. Arguments arrive as a
// map keyed by parameter name, fully resolved: StepOutput references have
// been replaced by the referenced values and WorkDirPath specs by concrete
// filesystem paths.
//
// The result is interpreted against the step's declared return names:
// with exactly one return name the raw result is taken as that single
// value; with more than one, the result must be a []any whose length
// matches the number of declared names.
type OperationFunc func(ctx context.Context, args map[string]any) (any, error)

// Operation describes a callable unit of work with an explicit parameter
// list. The descriptor replaces runtime signature introspection: the
// declared Params are checked against a step's argument bindings when the
// workflow is constructed, so a miswired pipeline fails before anything
// runs.
type Operation struct {
	// Name identifies the operation in validation errors and logs.
	Name string

	// Params lists the named parameters the operation accepts. Every
	// parameter must be bound by exactly one argument, and every argument
	// must match a declared parameter.
	Params []string

	// Call executes the operation.
	Call OperationFunc
}

// Step binds one operation to concrete argument sources and names its
// return values. Steps are immutable once built; run-time progress is
// tracked by the runner, not on the step itself, so the same workflow
// definition can be executed repeatedly or concurrently.
type Step struct {
	// ID uniquely identifies the step within its workflow.
	ID string

	// Name is a human-readable label used in logs and feedback. It is not
	// required to be unique.
	Name string

	// Operation is the unit of work this step invokes.
	Operation Operation

	// Arguments maps operation parameter names to their bindings.
	Arguments map[string]ArgValue

	// ReturnNames names the operation's return values, in the order the
	// operation returns them.
	ReturnNames []string

	// Outputs is the subset of ReturnNames that is safe to externalize in
	// the feedback document (no raw blobs, no secrets).
	Outputs []string
}

// Workflow is an ordered, validated sequence of steps. Step order is
// significant: it defines both execution order and which earlier returns
// a step may reference.
type Workflow struct {
	ID          string
	Version     string
	Name        string
	Description string
	Steps       []Step
}

// NewWorkflow builds a workflow and validates it. Validation runs once,
// before any execution, and covers the whole graph: a returned error means
// the workflow cannot be constructed and nothing has run.
func NewWorkflow(id, version, name, description string, steps []Step) (*Workflow, error) {
	w := &Workflow{
		ID:          id,
		Version:     version,
		Name:        name,
		Description: description,
		Steps:       steps,
	}

	if err := w.validate(); err != nil {
		return nil, err
	}

	return w, nil
}

// validate checks the workflow invariants:
//
//  1. at least one step;
//  2. step IDs are non-empty and unique;
//  3. for each step, Arguments keys and Operation.Params match exactly in
//     both directions;
//  4. every StepOutput reference points at a step defined earlier in the
//     list and at one of that step's declared return names;
//  5. declared Outputs are a subset of ReturnNames.
//
// The table of previously seen return names is intermediate state; it is
// rebuilt on every call, so validation is deterministic and repeatable.
func (w *Workflow) validate() error {
	if len(w.Steps) == 0 {
		return newValidationError(w.ID, "", "", "must contain at least one step", ErrNoSteps)
	}

	seenReturns := make(map[string][]string, len(w.Steps))

	for _, step := range w.Steps {
		if step.ID == "" {
			return newValidationError(w.ID, step.ID, "", "step ID must not be empty", ErrEmptyStepID)
		}
		if _, ok := seenReturns[step.ID]; ok {
			return newValidationError(w.ID, step.ID, "", "step ID is already used", ErrDuplicateStepID)
		}
		if step.Operation.Call == nil {
			return newValidationError(w.ID, step.ID, "", fmt.Sprintf("operation %q has no Call function", step.Operation.Name), ErrNilOperation)
		}

		params := make(map[string]bool, len(step.Operation.Params))
		for _, param := range step.Operation.Params {
			params[param] = true

			if _, ok := step.Arguments[param]; !ok {
				return newValidationError(w.ID, step.ID, param,
					fmt.Sprintf("operation %q parameter %q is not bound by the step arguments", step.Operation.Name, param),
					ErrUnboundParameter)
			}
		}

		for name, value := range step.Arguments {
			if !params[name] {
				return newValidationError(w.ID, step.ID, name,
					fmt.Sprintf("operation %q declares no parameter %q, expected one of %v", step.Operation.Name, name, step.Operation.Params),
					ErrUnknownParameter)
			}

			ref, ok := value.(StepOutput)
			if !ok {
				continue
			}

			returns, ok := seenReturns[ref.StepID]
			if !ok {
				return newValidationError(w.ID, step.ID, name,
					fmt.Sprintf("references return value %q of step %q, but no previous step has that ID", ref.ReturnName, ref.StepID),
					ErrUnknownStepReference)
			}

			if !contains(returns, ref.ReturnName) {
				return newValidationError(w.ID, step.ID, name,
					fmt.Sprintf("references return value %q of step %q, but that step declares no such return", ref.ReturnName, ref.StepID),
					ErrUnknownReturnName)
			}
		}

		for _, output := range step.Outputs {
			if !contains(step.ReturnNames, output) {
				return newValidationError(w.ID, step.ID, output,
					fmt.Sprintf("output %q is not among the declared return names %v", output, step.ReturnNames),
					ErrUnknownOutputName)
			}
		}

		seenReturns[step.ID] = step.ReturnNames
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
