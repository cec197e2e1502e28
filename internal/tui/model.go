package tui

import (
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ken-run/ken/internal/core"
	"github.com/ken-run/ken/internal/observer"
	"github.com/ken-run/ken/internal/store"
)

const refreshInterval = time.Second

// Options configure the watch dashboard.
type Options struct {
	Store   *store.Store
	Project core.Project
	// RootID scopes the tree to one session's subtree; empty shows
	// every root session as a forest.
	RootID string
}

// Run starts the watch dashboard.
func Run(opts Options) error {
	model := newModel(opts)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}

// flatRow is one visible line of the flattened tree, kept alongside its
// backing node for selection and preview.
type flatRow struct {
	node  *observer.Node
	depth int
}

type model struct {
	store   *store.Store
	project core.Project
	rootID  string

	forest []*observer.Node
	rows   []flatRow
	cursor int

	width, height int
	err           error
	lastRefresh   time.Time
}

func newModel(opts Options) *model {
	return &model{
		store:   opts.Store,
		project: opts.Project,
		rootID:  opts.RootID,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) }))
}

func (m *model) selected() *observer.Node {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return nil
	}
	return m.rows[m.cursor].node
}

func (m *model) kenningPath(node *observer.Node) string {
	return filepath.Join(m.project.KensRoot(), node.Session.KenPath, "kenning.md")
}

func flatten(forest []*observer.Node) []flatRow {
	var rows []flatRow
	var walk func(n *observer.Node, depth int)
	walk = func(n *observer.Node, depth int) {
		rows = append(rows, flatRow{node: n, depth: depth})
		for _, child := range n.Children {
			walk(child, depth+1)
		}
	}
	for _, root := range forest {
		walk(root, 0)
	}
	return rows
}
