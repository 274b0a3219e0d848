package components

import (
	"fmt"

	"github.com/allbin/serialscope"
	"github.com/allbin/serialscope/internal/tui/colors"
	"github.com/allbin/serialscope/internal/tui/styles"
	"github.com/charmbracelet/lipgloss"
)

// ConnectionInfo is the line configuration shown in the status bar
type ConnectionInfo struct {
	BaudRate int
	DataBits int
	StopBits int
	Parity   serialscope.Parity
}

// StatusBar renders the bottom bar: input mode, device, session state,
// line settings and the rolling quality figures
type StatusBar struct {
	device string
	width  int
	state  serialscope.SessionState
	err    error
	info   *ConnectionInfo

	avgScore float64
	trend    serialscope.Trend
	dropped  uint64
}

func NewStatusBar(device string) *StatusBar {
	return &StatusBar{device: device}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

func (sb *StatusBar) SetConnectionInfo(info *ConnectionInfo) {
	sb.info = info
}

func (sb *StatusBar) SetState(state serialscope.SessionState) {
	sb.state = state
	if state != serialscope.StateError {
		sb.err = nil
	}
}

func (sb *StatusBar) SetError(err error) {
	sb.state = serialscope.StateError
	sb.err = err
}

func (sb *StatusBar) SetQuality(avgScore float64, trend serialscope.Trend) {
	sb.avgScore = avgScore
	sb.trend = trend
}

func (sb *StatusBar) SetDropped(dropped uint64) {
	sb.dropped = dropped
}

func parityToString(p serialscope.Parity) string {
	switch p {
	case serialscope.ParityEven:
		return "E"
	case serialscope.ParityOdd:
		return "O"
	default:
		return "N"
	}
}

// stateIndicator renders a single-character connection state marker
func (sb *StatusBar) stateIndicator() string {
	switch sb.state {
	case serialscope.StateConnected:
		return styles.StateConnectedStyle.Render("●")
	case serialscope.StateConnecting, serialscope.StateDisconnecting:
		return styles.StateConnectingStyle.Render("○")
	default:
		return styles.StateDisconnectedStyle.Render("○")
	}
}

func trendStyle(trend serialscope.Trend) lipgloss.Style {
	switch trend {
	case serialscope.TrendImproving:
		return styles.TrendImprovingStyle
	case serialscope.TrendDeteriorating:
		return styles.TrendDeterioratingStyle
	default:
		return styles.TrendStableStyle
	}
}

// View renders the full status bar at the configured width
func (sb *StatusBar) View(inputMode, sendingMode string, timestamp string) string {
	width := sb.width
	if width <= 0 {
		width = 80
	}

	var modeStyle lipgloss.Style
	if inputMode == "INSERT" {
		modeStyle = lipgloss.NewStyle().
			Foreground(colors.Base).
			Background(colors.Green).
			Bold(true).
			Padding(0, 1)
	} else if inputMode == "FILTER" {
		modeStyle = lipgloss.NewStyle().
			Foreground(colors.Base).
			Background(colors.Mauve).
			Bold(true).
			Padding(0, 1)
	} else {
		modeStyle = lipgloss.NewStyle().
			Foreground(colors.Base).
			Background(colors.Blue).
			Bold(true).
			Padding(0, 1)
	}
	mode := modeStyle.Render(inputMode)

	device := lipgloss.NewStyle().
		Foreground(colors.Mauve).
		Bold(true).
		Padding(0, 1).
		Render(sb.device)

	divider := lipgloss.NewStyle().
		Foreground(colors.Surface2).
		Padding(0, 1).
		Render("│")

	var sendingModeInfo string
	if inputMode == "INSERT" {
		sendingModeInfo = lipgloss.NewStyle().
			Foreground(colors.Peach).
			Bold(true).
			Padding(0, 1).
			Render(fmt.Sprintf("[%s] Tab to toggle", sendingMode))
	}

	var lineInfo string
	if sb.info != nil {
		lineInfo = fmt.Sprintf("⚡ %d baud %d%s%d",
			sb.info.BaudRate,
			sb.info.DataBits,
			parityToString(sb.info.Parity),
			sb.info.StopBits)
	} else {
		lineInfo = "⚡ serial"
	}

	quality := fmt.Sprintf("Q:%.2f", sb.avgScore)
	qualityStyled := styles.ScoreStyle(sb.avgScore).Render(quality) +
		" " + trendStyle(sb.trend).Render(sb.trend.String())

	if sb.dropped > 0 {
		qualityStyled += lipgloss.NewStyle().
			Foreground(colors.Red).
			Render(fmt.Sprintf(" dropped:%d", sb.dropped))
	}

	details := lipgloss.NewStyle().
		Foreground(colors.Subtext0).
		Padding(0, 1).
		Render(lineInfo)

	clock := lipgloss.NewStyle().
		Foreground(colors.Subtext1).
		Padding(0, 1).
		Render(timestamp)

	var leftSide string
	if sendingModeInfo != "" {
		leftSide = lipgloss.JoinHorizontal(lipgloss.Left, mode, device, sb.stateIndicator(), sendingModeInfo, divider)
	} else {
		leftSide = lipgloss.JoinHorizontal(lipgloss.Left, mode, device, sb.stateIndicator(), divider)
	}
	rightSide := lipgloss.JoinHorizontal(lipgloss.Left, qualityStyled, divider, details, divider, clock)

	spacerWidth := width - lipgloss.Width(leftSide) - lipgloss.Width(rightSide)
	if spacerWidth < 1 {
		spacerWidth = 1
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	barStyle := lipgloss.NewStyle().
		Foreground(colors.Text).
		Background(colors.Surface0).
		Width(width)

	return barStyle.Render(lipgloss.JoinHorizontal(lipgloss.Left, leftSide, spacer, rightSide))
}
