package stepflow

import (
	"fmt"

	"github.com/fieldworks/stepflow/pkg/api"
)

// WorkflowBuilder provides a fluent API for defining workflows:
//
//	wf, err := stepflow.New("package_project", "1.0", "Package project").
//	    Step("download", "Download project files", downloadOp,
//	        stepflow.Args{"project_id": stepflow.Lit(projectID), "dest": stepflow.WorkDir("files").Ensure()},
//	        stepflow.Returns("project_dir"),
//	    ).
//	    Step("package", "Package project", packageOp,
//	        stepflow.Args{"project_dir": stepflow.FromStep("download", "project_dir")},
//	        stepflow.Returns("package_dir", "details"),
//	        stepflow.Outputs("details"),
//	    ).
//	    Build()
//
// Build validates the whole graph; an invalid wiring never produces a
// Workflow.
type WorkflowBuilder struct {
	id          string
	version     string
	name        string
	description string
	steps       []api.Step
}

// Args maps operation parameter names to argument bindings on one step.
type Args map[string]api.ArgValue

// StepOption configures one step added through the builder.
type StepOption func(*api.Step)

// Returns declares the names of the step's return values, in the order the
// operation returns them.
func Returns(names ...string) StepOption {
	return func(s *api.Step) { s.ReturnNames = names }
}

// Outputs marks the subset of the step's return names that is safe to
// externalize in the feedback document.
func Outputs(names ...string) StepOption {
	return func(s *api.Step) { s.Outputs = names }
}

// New creates a new workflow builder with the given identity.
func New(id, version, name string) *WorkflowBuilder {
	return &WorkflowBuilder{
		id:      id,
		version: version,
		name:    name,
		steps:   make([]api.Step, 0),
	}
}

// ID returns the workflow id.
func (b *WorkflowBuilder) ID() string {
	return b.id
}

// Describe sets the workflow description.
func (b *WorkflowBuilder) Describe(description string) *WorkflowBuilder {
	b.description = description
	return b
}

// Step appends a step binding the given operation. Structural mistakes
// (empty id, missing operation) panic immediately, mirroring a programming
// error; wiring mistakes are reported by Build.
func (b *WorkflowBuilder) Step(id, name string, op api.Operation, args Args, opts ...StepOption) *WorkflowBuilder {
	if id == "" {
		panic("stepflow: step id must not be empty")
	}
	if op.Call == nil {
		panic(fmt.Sprintf("stepflow: step %q has an operation with nil Call", id))
	}

	step := api.Step{
		ID:        id,
		Name:      name,
		Operation: op,
		Arguments: map[string]api.ArgValue(args),
	}
	for _, opt := range opts {
		opt(&step)
	}

	b.steps = append(b.steps, step)
	return b
}

// Build validates the assembled workflow and returns it.
func (b *WorkflowBuilder) Build() (*api.Workflow, error) {
	return api.NewWorkflow(b.id, b.version, b.name, b.description, b.steps)
}

// MustBuild is like Build but panics on validation errors.
// Useful for statically known workflows wired in main().
func (b *WorkflowBuilder) MustBuild() *api.Workflow {
	wf, err := b.Build()
	if err != nil {
		panic(err)
	}
	return wf
}
