package kenning

import (
	"os"
	"path/filepath"
	"testing"
)

func writeKenning(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "kenning.md")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write kenning: %v", err)
	}
	return path
}

func TestParseExtractsFramesInOrder(t *testing.T) {
	path := writeKenning(t, `## Meta
author: nobody

## Frame 1: Orient
Read the task statement first.

## Frame 2: Act
Do the thing.

## Reflection
not a frame
`)

	doc, err := Parse(path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(doc.Frames))
	}
	if doc.Frames[0].Number != 1 || doc.Frames[0].Title != "Orient" {
		t.Fatalf("unexpected frame 0: %+v", doc.Frames[0])
	}
	if doc.Frames[1].Body != "Do the thing." {
		t.Fatalf("unexpected frame 1 body: %q", doc.Frames[1].Body)
	}
}

func TestParseNoFramesYieldsEmptyList(t *testing.T) {
	path := writeKenning(t, "## Meta\nauthor: nobody\n")
	doc, err := Parse(path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Frames) != 0 {
		t.Fatalf("expected no frames, got %d", len(doc.Frames))
	}
}

func TestParseIsCaseAndWhitespaceTolerant(t *testing.T) {
	path := writeKenning(t, "##   frame   3  :   Loose Heading\nbody text\n")
	doc, err := Parse(path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Frames) != 1 || doc.Frames[0].Number != 3 || doc.Frames[0].Title != "Loose Heading" {
		t.Fatalf("unexpected parse result: %+v", doc.Frames)
	}
}

func TestRoundTripParseComposeParse(t *testing.T) {
	path := writeKenning(t, "## Frame 1: First\nline one\nline two\n\n## Frame 2: Second\nanother line\n")
	original, err := Parse(path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	rendered := Render(original)
	roundTripPath := writeKenning(t, rendered)
	reparsed, err := Parse(roundTripPath)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}

	if len(reparsed.Frames) != len(original.Frames) {
		t.Fatalf("frame count mismatch: got %d want %d", len(reparsed.Frames), len(original.Frames))
	}
	for i := range original.Frames {
		if reparsed.Frames[i] != original.Frames[i] {
			t.Fatalf("frame %d mismatch: got %+v want %+v", i, reparsed.Frames[i], original.Frames[i])
		}
	}
}
