package components

import (
	"fmt"

	"github.com/allbin/serialscope"
	"github.com/allbin/serialscope/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"
)

const (
	columnDevice = "device"
	columnState  = "state"
	columnBaud   = "baud"
	columnRX     = "rx"
	columnTX     = "tx"
	columnScore  = "score"
	columnTrend  = "trend"
)

// SessionRow is one device's line in the overview table
type SessionRow struct {
	Device   string
	State    serialscope.SessionState
	BaudRate int
	Stats    serialscope.Stats
	Quality  serialscope.QualityState
}

// SessionsOverview is the table of all open sessions, shown as an
// alternative to the single-device stream
type SessionsOverview struct {
	table table.Model
}

func NewSessionsOverview() *SessionsOverview {
	columns := []table.Column{
		table.NewColumn(columnDevice, "Device", 18),
		table.NewColumn(columnState, "State", 14),
		table.NewColumn(columnBaud, "Baud", 8),
		table.NewColumn(columnRX, "RX bytes", 10),
		table.NewColumn(columnTX, "TX bytes", 10),
		table.NewColumn(columnScore, "Avg Q", 7),
		table.NewColumn(columnTrend, "Trend", 14),
	}

	t := table.New(columns).
		WithBaseStyle(lipgloss.NewStyle().
			Foreground(colors.Text).
			BorderForeground(colors.Surface1).
			Align(lipgloss.Left)).
		HeaderStyle(lipgloss.NewStyle().
			Foreground(colors.Mauve).
			Bold(true))

	return &SessionsOverview{table: t}
}

// SetRows replaces the table contents with the current session snapshot
func (so *SessionsOverview) SetRows(rows []SessionRow) {
	tableRows := make([]table.Row, 0, len(rows))
	for _, row := range rows {
		tableRows = append(tableRows, table.NewRow(table.RowData{
			columnDevice: row.Device,
			columnState:  row.State.String(),
			columnBaud:   fmt.Sprintf("%d", row.BaudRate),
			columnRX:     fmt.Sprintf("%d", row.Stats.ReceivedBytes),
			columnTX:     fmt.Sprintf("%d", row.Stats.SentBytes),
			columnScore:  fmt.Sprintf("%.2f", row.Quality.AverageScore),
			columnTrend:  row.Quality.Trend.String(),
		}))
	}
	so.table = so.table.WithRows(tableRows)
}

func (so *SessionsOverview) View() string {
	return so.table.View()
}
