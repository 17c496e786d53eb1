package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/zjrosen/neovis/internal/settings"
)

var (
	cursorStyle    = lipgloss.NewStyle().Reverse(true)
	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#1F2328", Dark: "#E6EDF3"}).
			Background(lipgloss.AdaptiveColor{Light: "#D0D7DE", Dark: "#30363D"})
	statusErrorStyle = statusBarStyle.
				Foreground(lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#FF7B72"})
)

// View draws the grid followed by the optional status bar.
func (m Model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}

	rows := m.gridHeight()
	var b strings.Builder
	for r := 0; r < rows; r++ {
		line := ""
		if r < len(m.frame.Rows) {
			line = m.frame.Rows[r]
		}
		line = fit(line, m.width)
		if r == m.frame.CursorRow {
			line = markCursor(line, m.frame.CursorCol)
		}
		b.WriteString(line)
		if r < rows-1 {
			b.WriteByte('\n')
		}
	}

	if m.settings.Bool(settings.StatusBar) && m.height > 1 {
		b.WriteByte('\n')
		b.WriteString(m.statusBar())
	}
	return b.String()
}

func (m Model) statusBar() string {
	left := m.frame.Title
	if left == "" {
		left = "neovis"
	}
	right := fmt.Sprintf("%dx%d", m.width, m.gridHeight())
	style := statusBarStyle
	if m.status != "" {
		right = m.status
		style = statusErrorStyle
	}

	room := m.width - runewidth.StringWidth(right) - 1
	if room < 1 {
		return style.Render(fit(right, m.width))
	}
	left = fit(left, room)
	return style.Render(left + " " + right)
}

// fit truncates or pads s to exactly width cells.
func fit(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = runewidth.Truncate(s, width, "")
	return runewidth.FillRight(s, width)
}

// markCursor highlights the cell at col. Wide characters count as the
// cells they cover.
func markCursor(line string, col int) string {
	if col < 0 {
		return line
	}
	pos := 0
	for i, r := range line {
		w := runewidth.RuneWidth(r)
		if pos+w > col {
			end := i + len(string(r))
			return line[:i] + cursorStyle.Render(line[i:end]) + line[end:]
		}
		pos += w
	}
	return line
}
