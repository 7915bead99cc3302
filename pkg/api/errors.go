package api

import (
	"errors"
	"fmt"
)

// Workflow validation errors. All of them are configuration-time errors:
// they are raised by NewWorkflow before any step executes, and a workflow
// that fails validation is never partially applied.
var (
	// ErrNoSteps is returned when a workflow declares zero steps.
	ErrNoSteps = errors.New("workflow has no steps")

	// ErrEmptyStepID is returned when a step has an empty ID.
	ErrEmptyStepID = errors.New("step has empty ID")

	// ErrDuplicateStepID is returned when two steps share the same ID.
	ErrDuplicateStepID = errors.New("duplicate step ID")

	// ErrNilOperation is returned when a step's operation has no Call func.
	ErrNilOperation = errors.New("step operation has no Call function")

	// ErrUnboundParameter is returned when an operation parameter has no
	// matching key in the step's Arguments.
	ErrUnboundParameter = errors.New("operation parameter is not bound")

	// ErrUnknownParameter is returned when a step binds an argument name
	// that the operation does not declare.
	ErrUnknownParameter = errors.New("argument does not match any operation parameter")

	// ErrUnknownStepReference is returned when a StepOutput references a
	// step that does not appear earlier in the workflow.
	ErrUnknownStepReference = errors.New("reference to unknown or later step")

	// ErrUnknownReturnName is returned when a StepOutput references a
	// return name the target step does not declare.
	ErrUnknownReturnName = errors.New("reference to undeclared return name")

	// ErrUnknownOutputName is returned when a step lists an output that is
	// not among its declared return names.
	ErrUnknownOutputName = errors.New("output is not a declared return name")
)

// ValidationError describes a workflow validation failure with enough
// context to identify the offending step and binding.
type ValidationError struct {
	WorkflowID string
	StepID     string
	Field      string
	Message    string
	Err        error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("workflow %q", e.WorkflowID)
	if e.StepID != "" {
		msg += fmt.Sprintf(" step %q", e.StepID)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" %q", e.Field)
	}
	return msg + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(workflowID, stepID, field, message string, err error) *ValidationError {
	return &ValidationError{
		WorkflowID: workflowID,
		StepID:     stepID,
		Field:      field,
		Message:    message,
		Err:        err,
	}
}
