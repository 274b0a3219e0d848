/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/allbin/serialscope"
	"github.com/allbin/serialscope/internal/tui/components"
	"github.com/allbin/serialscope/internal/tui/keys"
	"github.com/allbin/serialscope/internal/tui/models"
	"github.com/allbin/serialscope/internal/tui/styles"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <device>",
	Short: "Watch a serial device with live quality analysis",
	Long: `Watch a serial device in an interactive terminal interface.

Incoming data streams in real time with timestamps and per-chunk quality
scores. Garbage chunks are marked, a wrong-looking baud rate raises a
probe suggestion, and the status bar tracks the rolling quality trend.

Features:
- Real-time data streaming with quality scores
- Input field for sending data (ASCII and hex modes)
- Regex display filter over the stream
- Sessions overview table
- Optional session logging to file

Example usage:
  serialscope watch /dev/ttyUSB0
  serialscope watch /dev/ttyUSB0 --baud 9600
  serialscope watch /dev/ttyUSB0 --log-dir ./logs --reconnect
  serialscope watch /dev/ttyUSB0 --no-quality`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		device := args[0]

		logDir, _ := cmd.Flags().GetString("log-dir")
		noQuality, _ := cmd.Flags().GetBool("no-quality")
		reconnect, _ := cmd.Flags().GetBool("reconnect")

		if err := runWatchTUI(device, resolveBaud(cmd, device), logDir, noQuality, reconnect); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().IntP("baud", "b", 115200, "Baud rate")
	watchCmd.Flags().String("log-dir", "", "Log session data to files in this directory")
	watchCmd.Flags().Bool("no-quality", false, "Disable quality analysis, show raw data")
	watchCmd.Flags().Bool("reconnect", false, "Reconnect automatically after unexpected disconnects")
}

// connectResultMsg reports the outcome of the background open
type connectResultMsg struct {
	err error
}

// refreshTickMsg drives the periodic status bar and overview refresh
type refreshTickMsg time.Time

// watchModel represents the Bubble Tea model for the watch command
type watchModel struct {
	*models.WatchModel
	registry  *serialscope.PortRegistry
	stream    *components.Stream
	statusBar *components.StatusBar
	input     *components.Input
	overview  *components.SessionsOverview
	help      help.Model
	keys      keys.WatchKeys

	baudRate     int
	showOverview bool
}

func runWatchTUI(device string, baudRate int, logDir string, noQuality, reconnect bool) error {
	logger := newLogger()

	var writer *serialscope.BatchedLogWriter
	registryOpts := []serialscope.RegistryOption{
		serialscope.WithLogger(logger),
	}
	if logDir != "" {
		writerCfg := serialscope.DefaultWriterConfig()
		writerCfg.Dir = logDir
		writer = serialscope.NewBatchedLogWriter(writerCfg, logger)
		registryOpts = append(registryOpts, serialscope.WithLogWriter(writer))
	}
	registry := serialscope.NewPortRegistry(registryOpts...)

	opts := []serialscope.Option{
		serialscope.WithBaudRate(baudRate),
	}
	if noQuality {
		opts = append(opts, serialscope.WithoutQualityAnalysis())
	}
	if reconnect {
		opts = append(opts, serialscope.WithAutoReconnect(2*time.Second, 10))
	}

	// Resolve the line settings up front so the status bar can show them
	// before the port is open
	cfg := serialscope.DefaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return err
		}
	}
	connInfo := &components.ConnectionInfo{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
	}

	m := watchModel{
		WatchModel: models.NewWatchModel(device),
		registry:   registry,
		stream:     components.NewStream(0, 0), // sized by WindowSizeMsg
		statusBar:  components.NewStatusBar(device),
		input:      components.NewInput("Type message and press Enter to send..."),
		overview:   components.NewSessionsOverview(),
		help:       help.New(),
		keys:       keys.NewWatchKeys(),
		baudRate:   cfg.BaudRate,
	}
	m.statusBar.SetState(serialscope.StateConnecting)
	m.statusBar.SetConnectionInfo(connInfo)

	p := tea.NewProgram(&m, tea.WithAltScreen())

	// Open the device in the background so the UI is responsive while
	// open retries run
	go func() {
		err := registry.Open(m.Context(), device, opts...)
		p.Send(connectResultMsg{err: err})
		if err != nil {
			return
		}
		rememberBaud(device, cfg.BaudRate)

		// Pump registry events into the program until the TUI shuts down
		for {
			select {
			case <-m.Context().Done():
				return
			case event := <-registry.Events():
				p.Send(event)
			}
		}
	}()

	_, err := p.Run()

	if closeErr := registry.CloseAll(context.Background()); closeErr != nil && err == nil {
		err = closeErr
	}
	m.Cancel()
	if writer != nil {
		writer.StopAll()
	}
	return err
}

func (m *watchModel) Init() tea.Cmd {
	return refreshTick()
}

func refreshTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return refreshTickMsg(t)
	})
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// Input area (bordered) plus the single-line status bar
		verticalMarginHeight := 3 + 1
		m.stream.SetSize(msg.Width-2, msg.Height-verticalMarginHeight-2)
		m.input.SetWidth(msg.Width)
		m.statusBar.SetWidth(msg.Width)
		m.SetReady(true)

	case connectResultMsg:
		if msg.err != nil {
			m.SetError(msg.err)
			m.statusBar.SetError(msg.err)
			m.addNotice(fmt.Sprintf("connect failed: %v", msg.err))
		} else {
			m.SetConnected(true)
			m.statusBar.SetState(serialscope.StateConnected)
		}

	case refreshTickMsg:
		quality := m.registry.Quality(m.Device())
		m.statusBar.SetQuality(quality.AverageScore, quality.Trend)
		m.statusBar.SetDropped(m.registry.DroppedEvents())
		if m.showOverview {
			m.refreshOverview()
		}
		cmds = append(cmds, refreshTick())

	case serialscope.DataEvent:
		if m.IsReady() {
			m.stream.AddMessage(components.StreamMsg{
				Device:    msg.Device,
				Timestamp: msg.Timestamp,
				Data:      msg.Bytes,
				Score:     msg.Score,
				Cleaned:   msg.Cleaned,
			})
		}

	case serialscope.StateEvent:
		m.statusBar.SetState(msg.NewState)
		m.SetConnected(msg.NewState == serialscope.StateConnected)
		m.addNotice(fmt.Sprintf("%s: %s", msg.Device, msg.NewState))

	case serialscope.ErrorEvent:
		m.addNotice(fmt.Sprintf("%s: %s", msg.Device, msg.Message))

	case serialscope.RateProbeEvent:
		m.addNotice(fmt.Sprintf("%s at %d baud - press q and run 'serialscope probe %s'",
			msg.Reason, msg.CurrentBaud, msg.Device))

	case tea.KeyMsg:
		if m.IsInInsertMode() || m.IsInFilterMode() {
			switch {
			case key.Matches(msg, m.keys.Escape):
				m.SetInputMode(models.InputModeNormal)
				m.input.Blur()
				m.input.SetValue("")
				return m, tea.Batch(cmds...)

			case key.Matches(msg, m.keys.Enter):
				if m.IsInFilterMode() {
					m.stream.SetFilter(m.input.Value())
				} else {
					m.sendInput()
				}
				m.SetInputMode(models.InputModeNormal)
				m.input.Blur()
				m.input.SetValue("")
				return m, tea.Batch(cmds...)

			case key.Matches(msg, m.keys.Up):
				if m.IsInInsertMode() {
					m.input.NavigateHistoryUp()
				}
				return m, tea.Batch(cmds...)

			case key.Matches(msg, m.keys.Down):
				if m.IsInInsertMode() {
					m.input.NavigateHistoryDown()
				}
				return m, tea.Batch(cmds...)

			case key.Matches(msg, m.keys.ToggleSendMode):
				if m.IsInInsertMode() {
					m.input.ToggleSendingMode()
				}
				return m, tea.Batch(cmds...)
			}
		} else {
			switch {
			case key.Matches(msg, m.keys.Quit):
				return m, tea.Quit

			case key.Matches(msg, m.keys.InsertMode):
				m.SetInputMode(models.InputModeInsert)
				m.input.SetPlaceholder("Type message and press Enter to send...")
				m.input.Focus()
				return m, tea.Batch(cmds...)

			case key.Matches(msg, m.keys.Filter):
				m.SetInputMode(models.InputModeFilter)
				m.input.SetPlaceholder("Regex filter, Enter to apply, Esc to cancel...")
				m.input.SetValue(m.stream.Filter())
				m.input.Focus()
				return m, tea.Batch(cmds...)

			case key.Matches(msg, m.keys.Clear):
				m.stream.Clear()

			case key.Matches(msg, m.keys.Help):
				m.help.ShowAll = !m.help.ShowAll

			case key.Matches(msg, m.keys.ToggleHex):
				m.stream.ToggleHex()

			case key.Matches(msg, m.keys.ToggleASCII):
				m.stream.ToggleASCII()

			case key.Matches(msg, m.keys.ToggleOverview):
				m.showOverview = !m.showOverview
				if m.showOverview {
					m.refreshOverview()
				}

			case key.Matches(msg, m.keys.ToggleSendMode):
				m.input.ToggleSendingMode()
			}
		}
	}

	var cmd tea.Cmd
	if m.IsInInsertMode() || m.IsInFilterMode() {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	switch msg.(type) {
	case tea.WindowSizeMsg:
		_, cmd = m.stream.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// sendInput transmits the current input field contents in the active
// sending mode
func (m *watchModel) sendInput() {
	inputStr := m.input.Value()
	if inputStr == "" {
		return
	}

	var payload []byte
	var display []byte
	switch m.input.GetSendingMode() {
	case components.SendingModeHex:
		parsed, err := parseHexInput(inputStr)
		if err != nil {
			m.addNotice(fmt.Sprintf("invalid hex input: %v", err))
			return
		}
		payload = parsed
		display = parsed
	default:
		payload = []byte(inputStr + "\n")
		display = []byte(inputStr)
	}

	if _, err := m.registry.Send(m.Device(), payload); err != nil {
		m.addNotice(fmt.Sprintf("send failed: %v", err))
		return
	}

	m.stream.AddMessage(components.StreamMsg{
		Device:    m.Device(),
		Timestamp: time.Now(),
		Data:      display,
		IsTX:      true,
	})
	m.input.AddToHistory(inputStr)
}

// addNotice puts a non-data line into the stream
func (m *watchModel) addNotice(text string) {
	if !m.IsReady() {
		return
	}
	m.stream.AddMessage(components.StreamMsg{
		Device:    m.Device(),
		Timestamp: time.Now(),
		Notice:    text,
	})
}

// refreshOverview rebuilds the sessions table from the registry snapshot
func (m *watchModel) refreshOverview() {
	devices := m.registry.Devices()
	rows := make([]components.SessionRow, 0, len(devices))
	for _, device := range devices {
		stats, err := m.registry.Statistics(device)
		if err != nil {
			continue
		}
		rows = append(rows, components.SessionRow{
			Device:   device,
			State:    m.registry.State(device),
			BaudRate: m.baudRate,
			Stats:    stats,
			Quality:  m.registry.Quality(device),
		})
	}
	m.overview.SetRows(rows)
}

func (m *watchModel) View() string {
	var content string
	switch {
	case !m.IsReady():
		content = "Initializing..."
	case m.showOverview:
		content = m.overview.View()
	default:
		content = m.stream.View()
	}

	inputMode := m.InputMode().String()
	inputActive := m.IsInInsertMode() || m.IsInFilterMode()
	input := m.input.ViewWithMode(inputMode, inputActive)

	sendingMode := m.input.GetSendingMode().String()
	timestamp := time.Now().Format("15:04:05")
	statusBar := m.statusBar.View(inputMode, sendingMode, timestamp)

	contentWithBorder := styles.ContentBorderStyle.Render(content)

	if m.help.ShowAll {
		return lipgloss.JoinVertical(
			lipgloss.Left,
			contentWithBorder,
			m.help.View(m.keys),
			input,
			statusBar,
		)
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		contentWithBorder,
		input,
		statusBar,
	)
}
