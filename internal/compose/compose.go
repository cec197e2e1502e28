// Package compose renders the wake prompt delivered to an agent, per
// spec.md §4.3: a fixed seven-section document assembled from a
// session snapshot, its kenning frames, and (if it just woke from a
// completion trigger) its children's results.
package compose

import (
	"fmt"
	"strings"

	"github.com/ken-run/ken/internal/kenmodel"
	"github.com/ken-run/ken/internal/kenning"
)

// Mode distinguishes a session's first wake from a recovery re-spawn,
// surfaced in the session header per spec.md §4.3 section 1.
type Mode string

const (
	ModeFresh   Mode = "fresh"
	ModeRecover Mode = "recover"
)

// DependencyResult is one child's outcome, reported to a parent that
// just woke from an all_complete/any_complete trigger.
type DependencyResult struct {
	SessionID string
	KenPath   string
	Status    kenmodel.Status
	Result    string
}

// Input is everything the composer needs to render one wake prompt.
type Input struct {
	Session      kenmodel.Session
	Mode         Mode
	KenningPath  string
	WorkingDir   string
	Dependencies []DependencyResult
}

// Warning is emitted (as a warning event by the caller) when
// composition degrades gracefully instead of failing outright.
type Warning struct {
	Message string
}

// Result is the rendered prompt plus any warnings collected along the way.
type Result struct {
	Prompt   string
	Warnings []Warning
}

// Composer renders wake prompts using the configured TemplateEngine
// for grounding-token substitution inside kenning frame bodies.
type Composer struct {
	Engine TemplateEngine
}

// New builds a Composer around engine. A nil engine is treated as
// PassthroughEngine{} (no substitution, still never fails).
func New(engine TemplateEngine) *Composer {
	if engine == nil {
		engine = PassthroughEngine{}
	}
	return &Composer{Engine: engine}
}

// Compose renders the seven sections of spec.md §4.3 in fixed order.
// Composition never fails: missing files or template errors degrade
// to inline placeholder comments and a collected Warning.
func (c *Composer) Compose(in Input) Result {
	var sb strings.Builder
	var warnings []Warning

	writeSection := func(body string) {
		sb.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	// 1. Session header.
	writeSection(fmt.Sprintf("# Session %s\nken_path: %s\nmode: %s", in.Session.ID, in.Session.KenPath, in.Mode))

	// 2. Task statement.
	writeSection(fmt.Sprintf("## Task\n%s", in.Session.Task))

	// 3. Definition-of-done block.
	writeSection(renderDoneWhen(in.Session.DoneWhen))

	// 4. Communication contract.
	writeSection(communicationContract)

	// 5. Recovery context.
	if in.Session.HasCheckpoint() {
		writeSection(fmt.Sprintf("## Previous Checkpoint\n%s", in.Session.Checkpoint))
	}

	// 6. Dependency results.
	if len(in.Dependencies) > 0 {
		writeSection(renderDependencyResults(in.Dependencies))
	}

	// 7. Kenning frames.
	framesSection, frameWarnings := c.renderFrames(in)
	writeSection(framesSection)
	warnings = append(warnings, frameWarnings...)

	return Result{Prompt: strings.TrimRight(sb.String(), "\n") + "\n", Warnings: warnings}
}

func renderDoneWhen(dw *kenmodel.DoneWhen) string {
	if dw == nil {
		return "## Definition of Done\n(none specified)"
	}
	var sb strings.Builder
	sb.WriteString("## Definition of Done\n")
	sb.WriteString(dw.Description)
	sb.WriteString("\n")
	for _, c := range dw.Criteria {
		sb.WriteString(fmt.Sprintf("- %s\n", c))
	}
	if dw.Verify != "" {
		sb.WriteString(fmt.Sprintf("\nVerify: %s\n", dw.Verify))
	}
	return strings.TrimRight(sb.String(), "\n")
}

const communicationContract = `## Communication Contract
Before exiting, send exactly one terminal request, either as JSON
passed to ` + "`ken request '<json>'`" + ` or through the matching ken_* MCP tool:

  {"type":"complete","session_id":"<id>","result":"<text>"}
  {"type":"fail","session_id":"<id>","reason":"<text>"}
  {"type":"sleep","session_id":"<id>","trigger":{...},"checkpoint":"<text>"}
  {"type":"spawn_and_sleep","session_id":"<id>","children":[{"ken_path":"...","task":"..."}],"trigger":{...},"checkpoint":"<text>"}

The engine does not read your stdout for requests. Exiting without
one of these is treated as a crash.`

func renderDependencyResults(deps []DependencyResult) string {
	var sb strings.Builder
	sb.WriteString("## Dependency Results\n")
	for _, d := range deps {
		sb.WriteString(fmt.Sprintf("- %s (%s): status=%s result=%s\n", d.SessionID, d.KenPath, d.Status, d.Result))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (c *Composer) renderFrames(in Input) (string, []Warning) {
	var warnings []Warning

	doc, err := kenning.Parse(in.KenningPath)
	if err != nil {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("kenning %s unreadable: %v", in.KenningPath, err)})
		return "## Kenning\n<!-- kenning file unavailable -->", warnings
	}
	if len(doc.Frames) == 0 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("kenning %s has no frames", in.KenningPath)})
	}

	rendered := kenning.Render(doc)
	substituted, subWarnings := c.Engine.Substitute(rendered, in.WorkingDir)
	warnings = append(warnings, subWarnings...)

	return "## Kenning\n" + substituted, warnings
}
