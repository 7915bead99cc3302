package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fieldworks/stepflow/pkg/api"
)

//
// Helpers
//

func mustWorkflow(t *testing.T, steps []api.Step) *api.Workflow {
	t.Helper()
	wf, err := api.NewWorkflow("test-wf", "1.0", "Test workflow", "", steps)
	if err != nil {
		t.Fatalf("NewWorkflow failed: %v", err)
	}
	return wf
}

func op(name string, params []string, fn api.OperationFunc) api.Operation {
	return api.Operation{Name: name, Params: params, Call: fn}
}

// lifecycleObserver counts runner callbacks.
type lifecycleObserver struct {
	mu sync.Mutex

	runStarts, runCompletes, runFails int
	stepStarts, stepCompletes         int
	stepErrs                          int
}

func (o *lifecycleObserver) OnRunStart(ctx context.Context, wf *api.Workflow, runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runStarts++
}

func (o *lifecycleObserver) OnRunCompleted(ctx context.Context, wf *api.Workflow, runID string, fb *api.Feedback) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runCompletes++
}

func (o *lifecycleObserver) OnRunFailed(ctx context.Context, wf *api.Workflow, runID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runFails++
}

func (o *lifecycleObserver) OnStepStart(ctx context.Context, runID string, step api.Step, idx int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stepStarts++
}

func (o *lifecycleObserver) OnStepCompleted(ctx context.Context, runID string, step api.Step, idx int, err error, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stepCompletes++
	if err != nil {
		o.stepErrs++
	}
}

//
// Tests
//

func TestRunPipelineSuccess(t *testing.T) {
	steps := []api.Step{
		{
			ID:        "produce",
			Name:      "Produce values",
			Operation: op("produce", []string{"base"}, func(ctx context.Context, args map[string]any) (any, error) {
				base := args["base"].(int)
				return []any{base * 2, base * 3}, nil
			}),
			Arguments:   map[string]api.ArgValue{"base": api.Lit(7)},
			ReturnNames: []string{"double", "triple"},
			Outputs:     []string{"double"},
		},
		{
			ID:   "consume",
			Name: "Consume the triple",
			Operation: op("consume", []string{"value"}, func(ctx context.Context, args map[string]any) (any, error) {
				return args["value"].(int) + 1, nil
			}),
			Arguments: map[string]api.ArgValue{
				// Picks "triple" out of the two returns of "produce".
				"value": api.FromStep("produce", "triple"),
			},
			ReturnNames: []string{"result"},
			Outputs:     []string{"result"},
		},
	}

	fb, err := Run(context.Background(), mustWorkflow(t, steps), Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if fb.HasError() {
		t.Fatalf("unexpected run error: %s", fb.Error)
	}

	if fb.FeedbackVersion != api.FeedbackVersion {
		t.Errorf("feedback version = %q", fb.FeedbackVersion)
	}
	if fb.WorkflowID != "test-wf" || fb.WorkflowVersion != "1.0" {
		t.Errorf("workflow identity not carried: %s/%s", fb.WorkflowID, fb.WorkflowVersion)
	}

	if len(fb.Steps) != 2 {
		t.Fatalf("expected 2 step entries, got %d", len(fb.Steps))
	}
	for _, sf := range fb.Steps {
		if sf.Stage != api.StageCompleted {
			t.Errorf("step %q stage = %v, want completed", sf.ID, sf.Stage)
		}
	}

	if got := fb.Steps[0].Returns["triple"]; got != 21 {
		t.Errorf("produce.triple = %v, want 21", got)
	}
	if got := fb.Steps[1].Returns["result"]; got != 22 {
		t.Errorf("consume.result = %v, want 22", got)
	}

	// Outputs are restricted to the declared subset.
	if got := fb.Outputs["produce"]["double"]; got != 14 {
		t.Errorf("outputs[produce][double] = %v, want 14", got)
	}
	if _, ok := fb.Outputs["produce"]["triple"]; ok {
		t.Error("triple was not declared as output but was externalized")
	}
	if got := fb.Outputs["consume"]["result"]; got != 22 {
		t.Errorf("outputs[consume][result] = %v, want 22", got)
	}
}

func TestRunPartialFailure(t *testing.T) {
	stepErr := errors.New("remote unavailable")
	thirdRan := false

	steps := []api.Step{
		{
			ID:   "ok",
			Name: "Succeeds",
			Operation: op("ok", nil, func(ctx context.Context, args map[string]any) (any, error) {
				return "fine", nil
			}),
			ReturnNames: []string{"status"},
			Outputs:     []string{"status"},
		},
		{
			ID:   "boom",
			Name: "Fails",
			Operation: op("boom", nil, func(ctx context.Context, args map[string]any) (any, error) {
				return nil, stepErr
			}),
		},
		{
			ID:   "never",
			Name: "Unreached",
			Operation: op("never", nil, func(ctx context.Context, args map[string]any) (any, error) {
				thirdRan = true
				return nil, nil
			}),
		},
	}

	fb, err := Run(context.Background(), mustWorkflow(t, steps), Options{})
	if err != nil {
		t.Fatalf("Run returned error for step failure: %v", err)
	}
	if thirdRan {
		t.Fatal("step after the failure was executed")
	}

	if !fb.HasError() {
		t.Fatal("expected feedback error")
	}
	if !strings.Contains(fb.Error, "remote unavailable") {
		t.Errorf("error %q does not mention the cause", fb.Error)
	}
	if len(fb.ErrorStack) == 0 {
		t.Error("error stack is empty")
	}

	if fb.Steps[0].Stage != api.StageCompleted {
		t.Errorf("completed step stage = %v", fb.Steps[0].Stage)
	}
	if fb.Steps[1].Stage != api.StageRunning {
		t.Errorf("failed step stage = %v, want running", fb.Steps[1].Stage)
	}
	if fb.Steps[2].Stage != api.StageNotStarted {
		t.Errorf("unreached step stage = %v, want not started", fb.Steps[2].Stage)
	}

	// The completed step keeps its outputs despite the later failure.
	if got := fb.Outputs["ok"]["status"]; got != "fine" {
		t.Errorf("outputs[ok][status] = %v", got)
	}
	if _, ok := fb.Outputs["boom"]; ok {
		t.Error("failed step must not contribute outputs")
	}
}

func TestRunRecoversPanic(t *testing.T) {
	steps := []api.Step{
		{
			ID: "panics",
			Operation: op("panics", nil, func(ctx context.Context, args map[string]any) (any, error) {
				panic("nil map write")
			}),
		},
	}

	fb, err := Run(context.Background(), mustWorkflow(t, steps), Options{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !fb.HasError() {
		t.Fatal("expected feedback error after panic")
	}
	if !strings.Contains(fb.Error, "panicked") || !strings.Contains(fb.Error, "nil map write") {
		t.Errorf("unexpected error %q", fb.Error)
	}
	if len(fb.ErrorStack) == 0 {
		t.Error("panic left no stack")
	}
}

func TestRunArityMismatch(t *testing.T) {
	cases := []struct {
		name   string
		result any
		want   string
	}{
		{"not a slice", "single", "want []any"},
		{"wrong length", []any{1}, "returned 1 values, want 2"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			steps := []api.Step{
				{
					ID: "s",
					Operation: op("s", nil, func(ctx context.Context, args map[string]any) (any, error) {
						return tc.result, nil
					}),
					ReturnNames: []string{"a", "b"},
				},
			}

			fb, err := Run(context.Background(), mustWorkflow(t, steps), Options{})
			if err != nil {
				t.Fatalf("Run returned error: %v", err)
			}
			if !fb.HasError() {
				t.Fatal("expected feedback error")
			}
			if !strings.Contains(fb.Error, tc.want) {
				t.Errorf("error %q does not contain %q", fb.Error, tc.want)
			}
		})
	}
}

func TestRunNoReturnNamesDropsResult(t *testing.T) {
	steps := []api.Step{
		{
			ID: "fire-and-forget",
			Operation: op("noop", nil, func(ctx context.Context, args map[string]any) (any, error) {
				return "ignored", nil
			}),
		},
	}

	fb, err := Run(context.Background(), mustWorkflow(t, steps), Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if fb.HasError() {
		t.Fatalf("unexpected error: %s", fb.Error)
	}
	if len(fb.Steps[0].Returns) != 0 {
		t.Errorf("undeclared result was recorded: %v", fb.Steps[0].Returns)
	}
}

func TestRunWorkDirPerRun(t *testing.T) {
	base := t.TempDir()

	var mu sync.Mutex
	var seen []string

	steps := []api.Step{
		{
			ID: "record",
			Operation: op("record", []string{"dir"}, func(ctx context.Context, args map[string]any) (any, error) {
				mu.Lock()
				seen = append(seen, args["dir"].(string))
				mu.Unlock()
				return nil, nil
			}),
			Arguments: map[string]api.ArgValue{
				"dir": api.WorkDir("files").Ensure(),
			},
		},
	}

	wf := mustWorkflow(t, steps)
	for i := 0; i < 2; i++ {
		if _, err := Run(context.Background(), wf, Options{WorkDirBase: base}); err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
	}

	if len(seen) != 2 {
		t.Fatalf("expected 2 recorded dirs, got %d", len(seen))
	}
	if seen[0] == seen[1] {
		t.Fatalf("runs shared a working directory: %s", seen[0])
	}
	for _, dir := range seen {
		if !strings.HasPrefix(dir, base) {
			t.Errorf("dir %q is not under base %q", dir, base)
		}
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("ensured dir missing: %v", err)
		}
	}
}

func TestRunFeedbackSinks(t *testing.T) {
	steps := []api.Step{
		{
			ID: "s",
			Operation: op("s", nil, func(ctx context.Context, args map[string]any) (any, error) {
				return "done", nil
			}),
			ReturnNames: []string{"status"},
		},
	}

	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "feedback.json")

	_, err := Run(context.Background(), mustWorkflow(t, steps), Options{
		FeedbackWriter: &buf,
		FeedbackPath:   path,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	fromFile, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read feedback file: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), fromFile) {
		t.Error("writer and file sinks received different documents")
	}

	var decoded api.Feedback
	if err := json.Unmarshal(fromFile, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Steps[0].Returns["status"] != "done" {
		t.Errorf("round-tripped return = %v", decoded.Steps[0].Returns["status"])
	}
}

func TestRunContextCanceled(t *testing.T) {
	ran := false
	steps := []api.Step{
		{
			ID: "s",
			Operation: op("s", nil, func(ctx context.Context, args map[string]any) (any, error) {
				ran = true
				return nil, nil
			}),
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fb, err := Run(ctx, mustWorkflow(t, steps), Options{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if ran {
		t.Fatal("step executed after cancellation")
	}
	if !fb.HasError() {
		t.Fatal("expected feedback error")
	}
	if !strings.Contains(fb.Error, context.Canceled.Error()) {
		t.Errorf("error %q does not mention cancellation", fb.Error)
	}
	if fb.Steps[0].Stage != api.StageNotStarted {
		t.Errorf("step stage = %v, want not started", fb.Steps[0].Stage)
	}
}

func TestRunObserverLifecycle(t *testing.T) {
	failing := func(ctx context.Context, args map[string]any) (any, error) {
		return nil, fmt.Errorf("boom")
	}
	ok := func(ctx context.Context, args map[string]any) (any, error) {
		return nil, nil
	}

	steps := []api.Step{
		{ID: "a", Operation: op("a", nil, ok)},
		{ID: "b", Operation: op("b", nil, failing)},
		{ID: "c", Operation: op("c", nil, ok)},
	}

	obs := &lifecycleObserver{}
	fb, err := Run(context.Background(), mustWorkflow(t, steps), Options{Observer: obs})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !fb.HasError() {
		t.Fatal("expected failed run")
	}

	if obs.runStarts != 1 || obs.runFails != 1 || obs.runCompletes != 0 {
		t.Errorf("unexpected run callbacks: %+v", obs)
	}
	// Step "c" is never started, so only two step start/complete pairs.
	if obs.stepStarts != 2 || obs.stepCompletes != 2 {
		t.Errorf("unexpected step callbacks: %+v", obs)
	}
	if obs.stepErrs != 1 {
		t.Errorf("stepErrs = %d, want 1", obs.stepErrs)
	}
}
