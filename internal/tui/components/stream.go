package components

import (
	"strings"

	"github.com/allbin/serialscope"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// Stream is the scrolling data view. It keeps the raw messages so the
// display can be re-rendered when the display mode or filter changes,
// and filters lines through a compiled-pattern cache so typing a new
// filter on a busy stream stays cheap.
type Stream struct {
	viewport  viewport.Model
	formatter *DataFormatter
	patterns  *serialscope.PatternCache

	raw    []StreamMsg
	filter string
	lines  []string
}

// maximum retained stream messages; older ones scroll away for good
const streamHistoryLimit = 5000

func NewStream(width, height int) *Stream {
	return &Stream{
		viewport:  viewport.New(width, height),
		formatter: NewDataFormatter(false, true), // ASCII only by default
		patterns:  serialscope.NewPatternCache(serialscope.DefaultPatternCacheConfig()),
	}
}

func (s *Stream) SetSize(width, height int) {
	s.viewport.Width = width
	s.viewport.Height = height
}

func (s *Stream) GetViewport() viewport.Model {
	return s.viewport
}

// AddMessage appends one message and refreshes the display if it passes
// the active filter
func (s *Stream) AddMessage(msg StreamMsg) {
	s.raw = append(s.raw, msg)
	if len(s.raw) > streamHistoryLimit {
		s.raw = s.raw[len(s.raw)-streamHistoryLimit:]
		s.refresh()
		return
	}

	if s.passes(msg) {
		s.lines = append(s.lines, s.formatter.FormatMessage(msg))
		s.viewport.SetContent(strings.Join(s.lines, "\n"))
		s.viewport.GotoBottom()
	}
}

// SetFilter installs a display filter pattern; empty clears it
func (s *Stream) SetFilter(pattern string) {
	s.filter = pattern
	s.refresh()
}

func (s *Stream) Filter() string {
	return s.filter
}

func (s *Stream) Clear() {
	s.raw = nil
	s.lines = nil
	s.viewport.SetContent("")
}

func (s *Stream) ToggleHex() {
	s.formatter.ToggleHex()
	s.refresh()
}

func (s *Stream) ToggleASCII() {
	s.formatter.ToggleASCII()
	s.refresh()
}

// passes applies the filter; notices always show
func (s *Stream) passes(msg StreamMsg) bool {
	if s.filter == "" || msg.Notice != "" {
		return true
	}
	return s.patterns.Matches(string(msg.Data), s.filter, false)
}

// refresh re-renders every retained message through the current display
// mode and filter
func (s *Stream) refresh() {
	s.lines = s.lines[:0]
	for _, msg := range s.raw {
		if s.passes(msg) {
			s.lines = append(s.lines, s.formatter.FormatMessage(msg))
		}
	}
	s.viewport.SetContent(strings.Join(s.lines, "\n"))
	s.viewport.GotoBottom()
}

func (s *Stream) Update(msg tea.Msg) (viewport.Model, tea.Cmd) {
	// Only window sizing reaches the viewport so it never swallows key
	// bindings
	switch msg.(type) {
	case tea.WindowSizeMsg:
		return s.viewport.Update(msg)
	default:
		return s.viewport, nil
	}
}

func (s *Stream) View() string {
	return s.viewport.View()
}
