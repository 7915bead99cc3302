package api

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStageString(t *testing.T) {
	cases := []struct {
		stage Stage
		want  string
	}{
		{StageNotStarted, "not_started"},
		{StageRunning, "running"},
		{StageCompleted, "completed"},
		{Stage(99), "stage(99)"},
	}

	for _, tc := range cases {
		if got := tc.stage.String(); got != tc.want {
			t.Errorf("Stage(%d).String() = %q, want %q", int(tc.stage), got, tc.want)
		}
	}
}

func TestFeedbackHasError(t *testing.T) {
	fb := &Feedback{}
	if fb.HasError() {
		t.Fatal("empty feedback should not report an error")
	}

	fb.Error = "boom"
	if !fb.HasError() {
		t.Fatal("feedback with Error set should report an error")
	}
}

func TestFeedbackEncode(t *testing.T) {
	fb := &Feedback{
		FeedbackVersion: FeedbackVersion,
		WorkflowVersion: "1.0",
		WorkflowID:      "wf",
		WorkflowName:    "Test",
		Steps: []StepFeedback{
			{ID: "s1", Name: "Step one", Stage: StageCompleted, Returns: map[string]any{"n": 3}},
			{ID: "s2", Name: "Step two", Stage: StageNotStarted, Returns: map[string]any{}},
		},
		Outputs: map[string]map[string]any{
			"s1": {"n": 3},
		},
	}

	var buf bytes.Buffer
	if err := fb.Encode(&buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if decoded["feedback_version"] != "2.0" {
		t.Errorf("feedback_version = %v, want 2.0", decoded["feedback_version"])
	}
	if _, ok := decoded["error"]; ok {
		t.Error("error field should be omitted on success")
	}
	if _, ok := decoded["error_stack"]; ok {
		t.Error("error_stack field should be omitted on success")
	}

	steps := decoded["steps"].([]any)
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps in document, got %d", len(steps))
	}
	if stage := steps[1].(map[string]any)["stage"]; stage != float64(0) {
		t.Errorf("unreached step stage = %v, want 0", stage)
	}
}

func TestFeedbackEncodeNonSerializable(t *testing.T) {
	fb := &Feedback{
		FeedbackVersion: FeedbackVersion,
		Steps: []StepFeedback{
			{ID: "s1", Stage: StageCompleted, Returns: map[string]any{
				"fn":   func() {}, // not JSON-serializable
				"okay": "value",
			}},
		},
		Outputs: map[string]map[string]any{
			"s1": {"fn": func() {}},
		},
	}

	var buf bytes.Buffer
	if err := fb.Encode(&buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if !strings.Contains(buf.String(), "<non-serializable: func()") {
		t.Fatalf("expected placeholder in output, got:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), `"okay": "value"`) {
		t.Fatalf("serializable sibling value lost:\n%s", buf.String())
	}

	// The in-memory document must keep the raw value.
	if _, ok := fb.Steps[0].Returns["fn"].(func()); !ok {
		t.Fatal("Encode mutated the original document")
	}
}

func TestFeedbackWriteFile(t *testing.T) {
	fb := &Feedback{
		FeedbackVersion: FeedbackVersion,
		WorkflowID:      "wf",
		Error:           "step failed",
		ErrorStack:      []string{"line 1", "line 2"},
	}

	path := filepath.Join(t.TempDir(), "feedback.json")
	if err := fb.WriteFile(path); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}

	var decoded Feedback
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Error != "step failed" {
		t.Errorf("error = %q", decoded.Error)
	}
	if len(decoded.ErrorStack) != 2 {
		t.Errorf("error_stack = %v", decoded.ErrorStack)
	}
}
