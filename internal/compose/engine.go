package compose

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	mlld "github.com/mlld-lang/mlld/sdk/go"
)

// TemplateEngine resolves grounding tokens ({{tree:path}}, {{file:path}})
// inside a kenning frame body against workingDir. Implementations must
// never return an error; unresolvable tokens degrade to an inline
// placeholder and a Warning, per spec.md §4.3's "composition never
// fails" invariant.
type TemplateEngine interface {
	Substitute(body, workingDir string) (string, []Warning)
}

// PassthroughEngine performs no substitution, used only as New's
// default when no engine is configured.
type PassthroughEngine struct{}

func (PassthroughEngine) Substitute(body, _ string) (string, []Warning) { return body, nil }

var groundingToken = regexp.MustCompile(`\{\{\s*(tree|file)\s*:\s*([^}]+?)\s*\}\}`)

// BuiltinEngine performs the two grounding-token substitutions
// directly against the filesystem, with no external dependency. It is
// the always-available fallback when mlld is not present.
type BuiltinEngine struct{}

func (BuiltinEngine) Substitute(body, workingDir string) (string, []Warning) {
	var warnings []Warning
	out := groundingToken.ReplaceAllStringFunc(body, func(tok string) string {
		m := groundingToken.FindStringSubmatch(tok)
		kind, rel := m[1], m[2]
		full := filepath.Join(workingDir, rel)
		switch kind {
		case "file":
			data, err := os.ReadFile(full)
			if err != nil {
				warnings = append(warnings, Warning{Message: fmt.Sprintf("grounding file %s unavailable: %v", rel, err)})
				return fmt.Sprintf("<!-- file:%s unavailable -->", rel)
			}
			return string(data)
		case "tree":
			listing, err := renderTree(full)
			if err != nil {
				warnings = append(warnings, Warning{Message: fmt.Sprintf("grounding tree %s unavailable: %v", rel, err)})
				return fmt.Sprintf("<!-- tree:%s unavailable -->", rel)
			}
			return listing
		default:
			return tok
		}
	})
	return out, warnings
}

func renderTree(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		sb.WriteString(name)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// MlldEngine wraps the mlld SDK exactly the way the teacher's
// internal/router.Router wraps it: mlld.New(), a bounded timeout, the
// project working dir, and Execute(path, payload, nil). It is used
// when a .ken/compose.mld preprocessing template is present; otherwise
// it degrades to BuiltinEngine. Whether an mlld binary is installed is
// not checked up front.
type MlldEngine struct {
	client      *mlld.Client
	templatePath string
	available   bool
	fallback    BuiltinEngine
}

// NewMlldEngine builds an MlldEngine for a project. kenDir is the
// project's .ken directory; if compose.mld is absent there, the
// returned engine reports unavailable and every call degrades to
// BuiltinEngine, matching Router.New's graceful degradation.
func NewMlldEngine(kenDir, workingDir string) *MlldEngine {
	templatePath := filepath.Join(kenDir, "compose.mld")
	if _, err := os.Stat(templatePath); os.IsNotExist(err) {
		return &MlldEngine{available: false}
	}

	client := mlld.New()
	client.Timeout = 10 * time.Second
	client.WorkingDir = workingDir

	return &MlldEngine{
		client:       client,
		templatePath: templatePath,
		available:    true,
	}
}

// Available reports whether compose.mld was found, matching
// Router.Available's naming.
func (e *MlldEngine) Available() bool { return e.available }

func (e *MlldEngine) Substitute(body, workingDir string) (string, []Warning) {
	if !e.available {
		return e.fallback.Substitute(body, workingDir)
	}

	payload := struct {
		Body       string `json:"body"`
		WorkingDir string `json:"workingDir"`
	}{Body: body, WorkingDir: workingDir}

	result, err := e.client.Execute(e.templatePath, payload, nil)
	if err != nil {
		builtin, w := e.fallback.Substitute(body, workingDir)
		return builtin, append(w, Warning{Message: fmt.Sprintf("mlld compose execute failed, used builtin engine: %v", err)})
	}
	return result.Output, nil
}
