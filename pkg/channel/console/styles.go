package console

import "github.com/charmbracelet/lipgloss"

// theme groups the styles used to print console transcripts.
type theme struct {
	banner     lipgloss.Style
	botTitle   lipgloss.Style
	botBox     lipgloss.Style
	attachment lipgloss.Style
	notice     lipgloss.Style
	prompt     lipgloss.Style
}

func defaultTheme() theme {
	return theme{
		banner: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("88")),
		botTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("44")).
			Padding(0, 1),
		botBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("44")).
			Padding(0, 1),
		attachment: lipgloss.NewStyle().
			Foreground(lipgloss.Color("114")).
			Bold(true),
		notice: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Italic(true),
		prompt: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")),
	}
}
