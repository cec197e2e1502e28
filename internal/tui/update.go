package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ken-run/ken/internal/observer"
)

type tickMsg time.Time

type refreshedMsg struct {
	forest []*observer.Node
	err    error
}

func (m *model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		forest, err := observer.Tree(m.store, m.rootID)
		return refreshedMsg{forest: forest, err: err}
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	case tickMsg:
		return m, tea.Batch(m.refreshCmd(), tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) }))
	case refreshedMsg:
		return m.handleRefreshedMsg(msg)
	default:
		return m, nil
	}
}

func (m *model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case "r":
		return m, m.refreshCmd()
	}
	return m, nil
}

func (m *model) handleRefreshedMsg(msg refreshedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.err = msg.err
		return m, nil
	}
	m.err = nil
	m.forest = msg.forest
	m.rows = flatten(m.forest)
	m.lastRefresh = time.Now()
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	return m, nil
}
