package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	summaryBlock = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// terminalWidth returns the stdout width, falling back to 80 when stdout is
// not a terminal.
func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

// statusStyle picks a color for a devbox or health status word.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case "running", "healthy", "ok", "build_complete", "succeeded":
		return okStyle
	case "suspended", "provisioning", "building", "degraded":
		return warnStyle
	case "failed", "shutdown", "unreachable", "unhealthy":
		return errStyle
	default:
		return mutedStyle
	}
}

// renderTable renders rows as a plain aligned table with a styled header,
// truncating to the terminal width.
func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string, style *lipgloss.Style) {
		var parts []string
		for i, cell := range cells {
			pad := widths[i] - lipgloss.Width(cell)
			if pad < 0 {
				pad = 0
			}
			parts = append(parts, cell+strings.Repeat(" ", pad))
		}
		line := strings.Join(parts, "  ")
		if limit := terminalWidth(); lipgloss.Width(line) > limit {
			line = truncateLine(line, limit)
		}
		if style != nil {
			line = style.Render(line)
		}
		b.WriteString(line + "\n")
	}

	writeRow(headers, &headerStyle)
	for _, row := range rows {
		writeRow(row, nil)
	}
	return b.String()
}

// truncateLine hard-truncates a styled line to width columns.
func truncateLine(line string, width int) string {
	if width <= 1 {
		return line
	}
	out := line
	for lipgloss.Width(out) > width-1 && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out + "…"
}

// printSummary renders a bordered summary block to stdout.
func printSummary(title string, lines []string) {
	content := titleStyle.Render(title)
	if len(lines) > 0 {
		content += "\n" + strings.Join(lines, "\n")
	}
	fmt.Println(summaryBlock.Render(content))
}
