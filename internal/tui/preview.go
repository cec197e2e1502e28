package tui

import (
	"bytes"
	"os"
	"strings"

	"github.com/alecthomas/chroma"
	"github.com/alecthomas/chroma/formatters"
	"github.com/alecthomas/chroma/lexers"
	"github.com/alecthomas/chroma/styles"
)

const chromaStyleName = "dracula"

// highlightKenning renders a kenning.md file's contents with syntax
// highlighting for the watch dashboard's preview panel, grounded on
// the teacher's chat.highlightCode.
func highlightKenning(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return dimStyle.Render("(no kenning.md at " + path + ")")
	}
	return highlightMarkdown(string(raw))
}

func highlightMarkdown(source string) string {
	if source == "" {
		return ""
	}
	lexer := lexers.Get("markdown")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, source)
	if err != nil {
		return source
	}
	style := styles.Get(chromaStyleName)
	if style == nil {
		style = styles.Fallback
	}
	var buf bytes.Buffer
	if err := formatters.TTY256.Format(&buf, style, iterator); err != nil {
		return source
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
