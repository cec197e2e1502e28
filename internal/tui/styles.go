// Package tui implements `ken watch`, a live bubbletea dashboard over
// the Observer's session tree, grounded on the teacher's
// internal/chat model/update/view split and internal/command/dashboard.go's
// status rendering.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ken-run/ken/internal/kenmodel"
)

var statusStyle = map[kenmodel.Status]lipgloss.Style{
	kenmodel.StatusPending:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	kenmodel.StatusWaking:   lipgloss.NewStyle().Foreground(lipgloss.Color("221")),
	kenmodel.StatusActive:   lipgloss.NewStyle().Foreground(lipgloss.Color("36")).Bold(true),
	kenmodel.StatusSleeping: lipgloss.NewStyle().Foreground(lipgloss.Color("111")),
	kenmodel.StatusComplete: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	kenmodel.StatusFailed:   lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Padding(0, 1)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	pathStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("183"))
	selectedMark = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("242")).Italic(true)
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(0, 1)
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
)

func renderStatus(s kenmodel.Status) string {
	style, ok := statusStyle[s]
	if !ok {
		style = dimStyle
	}
	return style.Render(string(s))
}
