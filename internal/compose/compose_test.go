package compose

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ken-run/ken/internal/kenmodel"
)

func writeFile(t *testing.T, dir, rel, contents string) string {
	t.Helper()
	full := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return full
}

func TestComposeRendersSectionsInOrder(t *testing.T) {
	dir := t.TempDir()
	kenningPath := writeFile(t, dir, "kenning.md", "## Frame 1: Orient\nbegin here\n")

	sess := kenmodel.Session{
		ID:      "s1",
		KenPath: "demo/path",
		Task:    "write the report",
		DoneWhen: &kenmodel.DoneWhen{
			Description: "report exists",
			Criteria:    []string{"file written", "tests pass"},
		},
	}

	c := New(BuiltinEngine{})
	result := c.Compose(Input{Session: sess, Mode: ModeFresh, KenningPath: kenningPath, WorkingDir: dir})

	order := []string{"# Session s1", "## Task", "## Definition of Done", "## Communication Contract", "## Kenning"}
	lastIdx := -1
	for _, marker := range order {
		idx := strings.Index(result.Prompt, marker)
		if idx == -1 {
			t.Fatalf("expected prompt to contain %q", marker)
		}
		if idx <= lastIdx {
			t.Fatalf("expected %q to appear after previous section", marker)
		}
		lastIdx = idx
	}
}

func TestComposeIncludesCheckpointWhenPresent(t *testing.T) {
	dir := t.TempDir()
	kenningPath := writeFile(t, dir, "kenning.md", "## Frame 1: Orient\nbegin here\n")

	sess := kenmodel.Session{ID: "s1", KenPath: "demo", Task: "task", Checkpoint: "saved state"}
	c := New(BuiltinEngine{})
	result := c.Compose(Input{Session: sess, Mode: ModeRecover, KenningPath: kenningPath, WorkingDir: dir})

	if !strings.Contains(result.Prompt, "## Previous Checkpoint\nsaved state") {
		t.Fatalf("expected checkpoint section, got:\n%s", result.Prompt)
	}
}

func TestComposeIncludesDependencyResults(t *testing.T) {
	dir := t.TempDir()
	kenningPath := writeFile(t, dir, "kenning.md", "## Frame 1: Orient\nbegin\n")

	sess := kenmodel.Session{ID: "parent", KenPath: "demo", Task: "task"}
	c := New(BuiltinEngine{})
	result := c.Compose(Input{
		Session:     sess,
		Mode:        ModeFresh,
		KenningPath: kenningPath,
		WorkingDir:  dir,
		Dependencies: []DependencyResult{
			{SessionID: "child1", KenPath: "demo/a", Status: kenmodel.StatusComplete, Result: "ok"},
		},
	})

	if !strings.Contains(result.Prompt, "## Dependency Results") || !strings.Contains(result.Prompt, "child1") {
		t.Fatalf("expected dependency results section, got:\n%s", result.Prompt)
	}
}

func TestComposeMissingKenningDegradesWithWarning(t *testing.T) {
	dir := t.TempDir()
	sess := kenmodel.Session{ID: "s1", KenPath: "demo", Task: "task"}
	c := New(BuiltinEngine{})
	result := c.Compose(Input{Session: sess, Mode: ModeFresh, KenningPath: filepath.Join(dir, "missing.md"), WorkingDir: dir})

	if len(result.Warnings) == 0 {
		t.Fatalf("expected a warning for missing kenning file")
	}
	if !strings.Contains(result.Prompt, "kenning file unavailable") {
		t.Fatalf("expected inline placeholder, got:\n%s", result.Prompt)
	}
}

func TestBuiltinEngineSubstitutesFileToken(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes/plan.md", "the plan")

	out, warnings := BuiltinEngine{}.Substitute("see {{file:notes/plan.md}}", dir)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if out != "see the plan" {
		t.Fatalf("unexpected substitution: %q", out)
	}
}

func TestBuiltinEngineMissingFileTokenDegrades(t *testing.T) {
	dir := t.TempDir()
	out, warnings := BuiltinEngine{}.Substitute("see {{file:missing.md}}", dir)
	if len(warnings) == 0 {
		t.Fatalf("expected a warning for missing file token")
	}
	if !strings.Contains(out, "unavailable") {
		t.Fatalf("expected placeholder, got %q", out)
	}
}

func TestBuiltinEngineSubstitutesTreeToken(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/a.go", "package a")
	writeFile(t, dir, "src/b.go", "package b")

	out, warnings := BuiltinEngine{}.Substitute("{{tree:src}}", dir)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if !strings.Contains(out, "a.go") || !strings.Contains(out, "b.go") {
		t.Fatalf("expected tree listing, got %q", out)
	}
}
