package api

import (
	"os"
	"path/filepath"
)

// ArgValue is a single argument binding on a Step. A binding is one of
// three kinds:
//
//   - Literal: a plain value passed to the operation unchanged.
//   - StepOutput: a reference to a named return value of an earlier step,
//     resolved by the runner at execution time.
//   - WorkDirPath: a relative path under the per-run working directory,
//     materialized lazily when the step executes.
//
// The interface is sealed; the runner resolves bindings with a type switch
// over these three kinds.
type ArgValue interface {
	argValue()
}

// Literal wraps a plain value that is passed through to the operation as-is.
type Literal struct {
	Value any
}

func (Literal) argValue() {}

// Lit is a shorthand constructor for a Literal binding.
func Lit(v any) Literal {
	return Literal{Value: v}
}

// StepOutput references a named return value produced by an earlier step
// of the same workflow. It carries no value itself; the runner looks the
// value up in the referenced step's completed returns.
//
// Validation requires that StepID names a step defined earlier in the
// workflow and that ReturnName is among that step's declared return names.
type StepOutput struct {
	StepID     string
	ReturnName string
}

func (StepOutput) argValue() {}

// FromStep constructs a StepOutput reference.
func FromStep(stepID, returnName string) StepOutput {
	return StepOutput{StepID: stepID, ReturnName: returnName}
}

// WorkDirPath is a relative path inside the working directory that the
// runner creates fresh for each workflow execution. The path is evaluated
// once per step invocation; roots are never shared between runs.
type WorkDirPath struct {
	Parts []string

	// Mkdir makes Eval create the directory (parents included) the first
	// time it is evaluated.
	Mkdir bool
}

func (WorkDirPath) argValue() {}

// WorkDir constructs a WorkDirPath from one or more path segments.
func WorkDir(parts ...string) WorkDirPath {
	return WorkDirPath{Parts: parts}
}

// Ensure returns a copy of the path with the Mkdir flag set, so the
// directory is created when the path is first evaluated.
func (p WorkDirPath) Ensure() WorkDirPath {
	p.Mkdir = true
	return p
}

// Eval resolves the path against the given root directory. If Mkdir is set,
// the directory tree is created with os.MkdirAll, which is idempotent and
// never truncates existing content.
func (p WorkDirPath) Eval(root string) (string, error) {
	path := filepath.Join(append([]string{root}, p.Parts...)...)

	if p.Mkdir {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return "", err
		}
	}

	return path, nil
}
