package api

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWorkDirEvalJoinsParts(t *testing.T) {
	root := t.TempDir()

	path, err := WorkDir("files", "attachments").Eval(root)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}

	want := filepath.Join(root, "files", "attachments")
	if path != want {
		t.Fatalf("got %q, want %q", path, want)
	}

	// Without Ensure, Eval must not touch the filesystem.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("directory should not exist, stat err = %v", err)
	}
}

func TestWorkDirEnsureCreatesDirectory(t *testing.T) {
	root := t.TempDir()

	p := WorkDir("export", "deep").Ensure()
	path, err := p.Eval(root)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("%q is not a directory", path)
	}

	// Re-evaluation is idempotent and must not disturb existing content.
	marker := filepath.Join(path, "marker")
	if err := os.WriteFile(marker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	if _, err := p.Eval(root); err != nil {
		t.Fatalf("second Eval failed: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("marker lost after re-evaluation: %v", err)
	}
}

func TestEnsureDoesNotMutateReceiver(t *testing.T) {
	p := WorkDir("files")
	q := p.Ensure()

	if p.Mkdir {
		t.Fatal("Ensure mutated the original value")
	}
	if !q.Mkdir {
		t.Fatal("Ensure did not set Mkdir on the copy")
	}
}

func TestLitAndFromStep(t *testing.T) {
	lit := Lit(42)
	if lit.Value != 42 {
		t.Fatalf("unexpected literal value %v", lit.Value)
	}

	ref := FromStep("download", "project_dir")
	if ref.StepID != "download" || ref.ReturnName != "project_dir" {
		t.Fatalf("unexpected reference %+v", ref)
	}
}
