package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/allbin/serialscope/internal/tui/colors"
	"github.com/allbin/serialscope/internal/tui/styles"
	"github.com/charmbracelet/lipgloss"
)

// StreamMsg is one line of the data stream: a received or sent chunk
// plus the quality verdict attached by the analyzer
type StreamMsg struct {
	Device    string
	Timestamp time.Time
	Data      []byte
	IsTX      bool
	Score     float64
	Cleaned   bool
	Notice    string // non-data lines: errors, probe requests, state changes
}

type DisplayMode struct {
	ShowHex   bool
	ShowASCII bool
}

type DataFormatter struct {
	mode DisplayMode
}

func NewDataFormatter(showHex, showASCII bool) *DataFormatter {
	return &DataFormatter{
		mode: DisplayMode{
			ShowHex:   showHex,
			ShowASCII: showASCII,
		},
	}
}

func (df *DataFormatter) GetDisplayMode() DisplayMode {
	return df.mode
}

func (df *DataFormatter) ToggleHex() {
	df.mode.ShowHex = !df.mode.ShowHex
}

func (df *DataFormatter) ToggleASCII() {
	df.mode.ShowASCII = !df.mode.ShowASCII
}

// FormatMessage renders one stream line with timestamp, direction
// indicator and the selected data representations
func (df *DataFormatter) FormatMessage(msg StreamMsg) string {
	timestamp := lipgloss.NewStyle().
		Foreground(colors.Subtext0).
		Render(fmt.Sprintf("[%s]", msg.Timestamp.Format("15:04:05.000")))

	if msg.Notice != "" {
		notice := lipgloss.NewStyle().
			Foreground(colors.Peach).
			Bold(true).
			Render("! " + msg.Notice)
		return fmt.Sprintf("%s %s", timestamp, notice)
	}

	var indicator string
	if msg.IsTX {
		indicator = lipgloss.NewStyle().
			Foreground(colors.Peach).
			Bold(true).
			Render("↗ TX")
	} else {
		indicator = lipgloss.NewStyle().
			Foreground(colors.Sky).
			Bold(true).
			Render("↙ RX")
	}

	var parts []string

	if df.mode.ShowHex {
		parts = append(parts, fmt.Sprintf("HEX: % X", msg.Data))
	}

	if df.mode.ShowASCII {
		parts = append(parts, fmt.Sprintf("ASCII: %s", printableOnly(msg.Data)))
	}

	if !df.mode.ShowHex && !df.mode.ShowASCII {
		parts = append(parts, fmt.Sprintf("BYTES: %d", len(msg.Data)))
	}

	// Received chunks carry the analyzer score; cleaned chunks get a marker
	if !msg.IsTX {
		scoreText := fmt.Sprintf("%.2f", msg.Score)
		if msg.Cleaned {
			scoreText += "*"
		}
		parts = append(parts, styles.ScoreStyle(msg.Score).Render("Q:"+scoreText))
	}

	return fmt.Sprintf("%s %s: %s", timestamp, indicator, strings.Join(parts, "  "))
}

func (df *DataFormatter) FormatMessages(messages []StreamMsg) []string {
	formatted := make([]string, len(messages))
	for i, msg := range messages {
		formatted[i] = df.FormatMessage(msg)
	}
	return formatted
}

// printableOnly replaces non-printable bytes with dots so control
// sequences never leak into the terminal
func printableOnly(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		if c >= 32 && c <= 126 {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}
