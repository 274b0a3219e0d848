package styles

import (
	"github.com/allbin/serialscope/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
)

var (
	// Header styles
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Mauve).
			Background(colors.Surface0).
			Padding(0, 1)

	// Session state styles
	StateConnectedStyle = lipgloss.NewStyle().
				Foreground(colors.Green).
				Bold(true)

	StateDisconnectedStyle = lipgloss.NewStyle().
				Foreground(colors.Red).
				Bold(true)

	StateConnectingStyle = lipgloss.NewStyle().
				Foreground(colors.Yellow).
				Bold(true)

	// Content area styles
	ContentBorderStyle = lipgloss.NewStyle().
				BorderTop(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(colors.Surface1)

	// Input styles
	InputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colors.Surface2).
			Padding(0, 1)

	// Error styles
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Red).
			Align(lipgloss.Center)

	// Quality score styles, banded the same way the analyzer bands its
	// verdicts: good / marginal / bad
	ScoreGoodStyle = lipgloss.NewStyle().
			Foreground(colors.Green)

	ScoreMarginalStyle = lipgloss.NewStyle().
				Foreground(colors.Yellow)

	ScoreBadStyle = lipgloss.NewStyle().
			Foreground(colors.Red)

	// Trend styles
	TrendImprovingStyle = lipgloss.NewStyle().
				Foreground(colors.Teal)

	TrendDeterioratingStyle = lipgloss.NewStyle().
				Foreground(colors.Peach)

	TrendStableStyle = lipgloss.NewStyle().
				Foreground(colors.Subtext0)
)

// ScoreStyle returns the style for a quality score using the standard
// 0.3/0.7 bands
func ScoreStyle(score float64) lipgloss.Style {
	switch {
	case score >= 0.7:
		return ScoreGoodStyle
	case score >= 0.3:
		return ScoreMarginalStyle
	default:
		return ScoreBadStyle
	}
}
