// Package kenning parses the kenning file grammar of spec.md §6: a
// UTF-8 markdown document whose `## Frame <N>: <Title>` headings
// delimit frame bodies, tolerating unknown headings the way the
// teacher's jsonl_read.go readers tolerate unknown envelope types.
package kenning

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Frame is one `## Frame <N>: <Title>` section.
type Frame struct {
	Number int
	Title  string
	Body   string
}

// Document is a parsed kenning file: its path and its frames in heading
// order. Non-frame sections (Meta, Task, Reflection, or anything else)
// are not kept.
type Document struct {
	Frames []Frame
	Path   string
}

var frameHeading = regexp.MustCompile(`(?i)^##\s*Frame\s+(\d+)\s*:\s*(.*)$`)

// Parse reads a kenning file and extracts its frames. A file with no
// frame headings yields an empty frame list, not an error — callers
// emit the warning event at compose time, not here.
func Parse(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	var (
		frames  []Frame
		current *Frame
		body    strings.Builder
	)

	flush := func() {
		if current == nil {
			return
		}
		current.Body = strings.TrimRight(body.String(), "\n")
		frames = append(frames, *current)
		current = nil
		body.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		if m := frameHeading.FindStringSubmatch(line); m != nil {
			flush()
			num, err := strconv.Atoi(m[1])
			if err != nil {
				num = 0
			}
			current = &Frame{Number: num, Title: strings.TrimSpace(m[2])}
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(line), "## ") {
			// a non-frame heading (Meta, Task, Reflection, ...) closes
			// whatever frame was open.
			flush()
			continue
		}
		if current != nil {
			body.WriteString(line)
			body.WriteString("\n")
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return Document{}, fmt.Errorf("scan kenning %s: %w", path, err)
	}

	return Document{Frames: frames, Path: path}, nil
}

// Render reconstructs the frame sections of a kenning file from a
// Document, used by the round-trip test (parse -> compose -> parse
// yields the same frame list).
func Render(doc Document) string {
	var sb strings.Builder
	for _, fr := range doc.Frames {
		sb.WriteString(fmt.Sprintf("## Frame %d: %s\n", fr.Number, fr.Title))
		sb.WriteString(fr.Body)
		sb.WriteString("\n\n")
	}
	return sb.String()
}
