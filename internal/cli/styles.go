package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	DoneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	WarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

// Check renders a completion mark.
func Check(done bool) string {
	if done {
		return DoneStyle.Render("[x]")
	}
	return MutedStyle.Render("[ ]")
}

// Week renders seven days oldest first as filled or empty dots.
func Week(days [7]bool) string {
	var b strings.Builder
	for _, d := range days {
		if d {
			b.WriteString(DoneStyle.Render("●"))
		} else {
			b.WriteString(MutedStyle.Render("○"))
		}
	}
	return b.String()
}

// Bar renders a ratio in [0, 1] as a fixed-width progress bar.
func Bar(ratio float64, width int) string {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio*float64(width) + 0.5)
	return DoneStyle.Render(strings.Repeat("█", filled)) +
		MutedStyle.Render(strings.Repeat("░", width-filled)) +
		fmt.Sprintf(" %3.0f%%", ratio*100)
}
