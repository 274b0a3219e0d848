package serialscope

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogWriterRoundTrip(t *testing.T) {
	w := NewBatchedLogWriter(WriterConfig{
		Dir:           t.TempDir(),
		FlushInterval: time.Hour, // only the final drain may flush
		BatchSize:     1000,
	}, nil)

	device := "/dev/ttyUSB0"
	require.NoError(t, w.StartSession(device))
	path := w.FilePath(device)
	require.NotEmpty(t, path)

	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	records := []Record{
		{Timestamp: base, Direction: DirectionReceived, Text: "STATUS: OK"},
		{Timestamp: base.Add(time.Second), Direction: DirectionSent, Text: "AT+RESET"},
		{Timestamp: base.Add(2 * time.Second), Direction: DirectionReceived, Text: "READY\r\n"},
	}
	for _, record := range records {
		require.NoError(t, w.Append(device, record))
	}

	require.NoError(t, w.StopSession(device))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "==== serial log: /dev/ttyUSB0 ====")
	assert.Contains(t, content, "==== stopped:")

	// Records appear in append order, trailing line endings trimmed
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 6)
	assert.Equal(t, "[2026-08-29 12:00:00.000] [RX] STATUS: OK", lines[2])
	assert.Equal(t, "[2026-08-29 12:00:01.000] [TX] AT+RESET", lines[3])
	assert.Equal(t, "[2026-08-29 12:00:02.000] [RX] READY", lines[4])
}

func TestLogWriterStopSessionIdempotent(t *testing.T) {
	w := NewBatchedLogWriter(WriterConfig{Dir: t.TempDir()}, nil)
	device := "/dev/ttyUSB0"

	require.NoError(t, w.StartSession(device))
	require.NoError(t, w.StopSession(device))
	assert.NoError(t, w.StopSession(device), "repeated stop must be a no-op")
	assert.NoError(t, w.StopSession("/dev/never_started"))
}

func TestLogWriterAppendWithoutSession(t *testing.T) {
	w := NewBatchedLogWriter(WriterConfig{Dir: t.TempDir()}, nil)

	err := w.Append("/dev/ttyUSB0", Record{Text: "orphan"})
	assert.ErrorIs(t, err, ErrWriterNotStarted)
}

func TestLogWriterBatchThresholdFlush(t *testing.T) {
	w := NewBatchedLogWriter(WriterConfig{
		Dir:           t.TempDir(),
		FlushInterval: time.Hour, // isolate the threshold trigger
		BatchSize:     5,
	}, nil)
	device := "/dev/ttyUSB0"
	require.NoError(t, w.StartSession(device))
	defer w.StopAll()

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Append(device, Record{
			Timestamp: time.Now(),
			Text:      "record",
		}))
	}

	assert.Eventually(t, func() bool {
		return w.Pending(device) == 0
	}, time.Second, 10*time.Millisecond, "threshold must trigger a flush without the timer")
}

func TestLogWriterTimerFlush(t *testing.T) {
	w := NewBatchedLogWriter(WriterConfig{
		Dir:           t.TempDir(),
		FlushInterval: 20 * time.Millisecond,
		BatchSize:     1000, // isolate the timer trigger
	}, nil)
	device := "/dev/ttyUSB0"
	require.NoError(t, w.StartSession(device))
	defer w.StopAll()

	require.NoError(t, w.Append(device, Record{Timestamp: time.Now(), Text: "one"}))

	assert.Eventually(t, func() bool {
		return w.Pending(device) == 0
	}, time.Second, 5*time.Millisecond, "timer must flush a partial batch")
}

func TestLogWriterDuplicateStart(t *testing.T) {
	w := NewBatchedLogWriter(WriterConfig{Dir: t.TempDir()}, nil)
	device := "/dev/ttyUSB0"

	require.NoError(t, w.StartSession(device))
	defer w.StopAll()

	assert.ErrorIs(t, w.StartSession(device), ErrAlreadyOpen)
}

func TestSessionFileName(t *testing.T) {
	started := time.Date(2026, 8, 29, 15, 4, 5, 0, time.UTC)
	got := sessionFileName("/dev/ttyUSB0", started)
	assert.Equal(t, "ttyUSB0_20260829_150405.log", got)
}
