package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderSummary formats the end-of-chat statistics.
func RenderSummary(session *Session, styles *Styles) string {
	if styles == nil {
		styles = DefaultStyles()
	}
	st := session.Stats()

	var b strings.Builder
	b.WriteString(styles.Title.Render("Chat Summary"))
	b.WriteString("\n")
	b.WriteString(styles.Subtitle.Render(session.Label))
	b.WriteString("\n\n")

	count := func(color string, n int) string {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true).Render(fmt.Sprintf("%d", n))
	}
	fmt.Fprintf(&b, "  Questions asked:       %d\n", st.Total)
	fmt.Fprintf(&b, "  Answered:              %s\n", count(ColorGreen, st.Answered))
	fmt.Fprintf(&b, "  No information:        %s\n", count(ColorYellow, st.NoInfo))
	fmt.Fprintf(&b, "  Failed:                %s\n", count(ColorRed, st.Failed))
	fmt.Fprintf(&b, "  Estimated tokens:      %d\n", st.Tokens)

	if st.Failed > 0 {
		b.WriteString("\n")
		b.WriteString(styles.Subtitle.Render("Failed questions:"))
		b.WriteString("\n")
		for _, e := range session.Exchanges {
			if e.Status == StatusFailed {
				fmt.Fprintf(&b, "  %s %s\n", styles.StatusFailed.Render("ERROR"), e.Question)
				fmt.Fprintf(&b, "    %s\n", e.Error)
			}
		}
	}
	return b.String()
}
