// Package ui renders extraction results and download progress in the terminal.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/EdvinCodes/offgrid/internal/media"
)

var (
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
	badgeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("63")).
			Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// RenderResult formats a result as a bordered card, or as an error line
// when extraction failed.
func RenderResult(res media.Result) string {
	if !res.Success {
		line := errorStyle.Render("✗ " + string(res.Code))
		return line + " " + res.Error
	}

	var b strings.Builder
	b.WriteString(badgeStyle.Render(strings.ToUpper(res.Type.String())))
	b.WriteString("\n\n")
	b.WriteString(res.Description)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s %s", labelStyle.Render("media    "), res.URL)
	if res.Thumbnail != "" {
		fmt.Fprintf(&b, "\n%s %s", labelStyle.Render("thumbnail"), res.Thumbnail)
	}
	return cardStyle.Render(b.String())
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
