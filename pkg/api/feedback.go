package api

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// FeedbackVersion is the schema version of the feedback document.
const FeedbackVersion = "2.0"

// Stage is a step's run-time progress marker. Transitions are monotonic:
// not started → running → completed. A step that fails simply never reaches
// StageCompleted; the workflow-level error fields record the failure.
type Stage int

const (
	StageNotStarted Stage = 0
	StageRunning    Stage = 1
	StageCompleted  Stage = 2
)

func (s Stage) String() string {
	switch s {
	case StageNotStarted:
		return "not_started"
	case StageRunning:
		return "running"
	case StageCompleted:
		return "completed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// StepFeedback records one step's outcome within a feedback document.
// Returns is populated only for steps that completed.
type StepFeedback struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Stage   Stage          `json:"stage"`
	Returns map[string]any `json:"returns"`
}

// Feedback is the structured record of one workflow execution. It is
// created fresh per run and fully populated by the time the runner
// returns, whether the run succeeded or aborted partway.
type Feedback struct {
	FeedbackVersion string `json:"feedback_version"`
	WorkflowVersion string `json:"workflow_version"`
	WorkflowID      string `json:"workflow_id"`
	WorkflowName    string `json:"workflow_name"`

	// Steps holds one entry per workflow step, in declared order. Steps
	// never reached contribute only id/name/stage.
	Steps []StepFeedback `json:"steps"`

	// Outputs maps step ID to output name to value, restricted to each
	// completed step's declared Outputs.
	Outputs map[string]map[string]any `json:"outputs"`

	// Error and ErrorStack are set only if execution aborted.
	Error      string   `json:"error,omitempty"`
	ErrorStack []string `json:"error_stack,omitempty"`
}

// HasError reports whether the run aborted with a failure.
func (f *Feedback) HasError() bool {
	return f.Error != ""
}

// Encode writes the document to w as indented JSON. Values that cannot be
// serialized are replaced by a type-name-plus-string placeholder instead of
// failing the whole write.
func (f *Feedback) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(f.sanitized())
}

// WriteFile writes the document to the given path, creating or truncating
// the file.
func (f *Feedback) WriteFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return f.Encode(file)
}

// sanitized returns a copy of the document with non-serializable return and
// output values replaced by placeholders. The original document is left
// untouched so in-process consumers still see the raw values.
func (f *Feedback) sanitized() *Feedback {
	out := *f

	out.Steps = make([]StepFeedback, len(f.Steps))
	for i, step := range f.Steps {
		step.Returns = sanitizeMap(step.Returns)
		out.Steps[i] = step
	}

	if f.Outputs != nil {
		out.Outputs = make(map[string]map[string]any, len(f.Outputs))
		for stepID, values := range f.Outputs {
			out.Outputs[stepID] = sanitizeMap(values)
		}
	}

	return &out
}

func sanitizeMap(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}

	out := make(map[string]any, len(values))
	for name, value := range values {
		out[name] = sanitizeValue(value)
	}
	return out
}

// sanitizeValue returns v unchanged if it is JSON-serializable, otherwise a
// readable placeholder.
func sanitizeValue(v any) any {
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprintf("<non-serializable: %T %v>", v, v)
	}
	return v
}
