package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/charmbracelet/lipgloss"
)

func (m *model) View() string {
	if m.width == 0 {
		return "loading...\n"
	}

	header := headerStyle.Render(fmt.Sprintf("ken watch — %s", m.project.Root))
	if m.err != nil {
		header += "  " + errStyle.Render(m.err.Error())
	}

	treeWidth := m.width * 3 / 5
	previewWidth := m.width - treeWidth - 4
	if previewWidth < 20 {
		previewWidth = 20
	}

	treePanel := panelStyle.Width(treeWidth).Height(m.height - 6).Render(m.renderTree())
	previewPanel := panelStyle.Width(previewWidth).Height(m.height - 6).Render(m.renderPreview())

	body := lipgloss.JoinHorizontal(lipgloss.Top, treePanel, previewPanel)

	footer := footerStyle.Render(fmt.Sprintf("updated %s  ·  ↑/↓ select  ·  r refresh  ·  q quit",
		humanize.Time(m.lastRefresh)))

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *model) renderTree() string {
	if len(m.rows) == 0 {
		return dimStyle.Render("no sessions yet")
	}
	var b strings.Builder
	for i, row := range m.rows {
		mark := "  "
		if i == m.cursor {
			mark = selectedMark.Render("▸ ")
		}
		indent := strings.Repeat("  ", row.depth)
		sess := row.node.Session
		line := fmt.Sprintf("%s%s%s %s  %s",
			mark, indent, renderStatus(sess.Status), pathStyle.Render(sess.KenPath), dimStyle.Render(humanizeAge(row.node.Age)))
		if row.node.TriggerSummary != "" {
			line += dimStyle.Render(" [" + row.node.TriggerSummary + "]")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m *model) renderPreview() string {
	node := m.selected()
	if node == nil {
		return dimStyle.Render("no session selected")
	}
	sess := node.Session

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", pathStyle.Bold(true).Render(sess.KenPath))
	fmt.Fprintf(&b, "id:     %s\n", sess.ID)
	fmt.Fprintf(&b, "status: %s\n", renderStatus(sess.Status))
	if sess.HasParent() {
		fmt.Fprintf(&b, "parent: %s\n", sess.ParentID)
	}
	fmt.Fprintf(&b, "task:   %s\n\n", sess.Task)

	b.WriteString(highlightKenning(m.kenningPath(node)))
	return b.String()
}

func humanizeAge(d time.Duration) string {
	return humanize.RelTime(time.Now().Add(-d), time.Now(), "ago", "")
}
