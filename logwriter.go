package serialscope

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Direction marks whether a log record was received or sent
type Direction int

const (
	DirectionReceived Direction = iota
	DirectionSent
)

// String returns the string representation of Direction
func (d Direction) String() string {
	if d == DirectionSent {
		return "TX"
	}
	return "RX"
}

// Record is one log entry for a device. The writer owns it from Append
// until it is flushed to the session file.
type Record struct {
	Device    string
	Timestamp time.Time
	Direction Direction
	Payload   []byte
	Text      string
}

// WriterConfig controls batching of log persistence
type WriterConfig struct {
	Dir           string        // directory for session log files
	FlushInterval time.Duration // periodic flush timer
	BatchSize     int           // queued records that force a flush
}

// DefaultWriterConfig returns the default batching settings
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		Dir:           ".",
		FlushInterval: 100 * time.Millisecond,
		BatchSize:     100,
	}
}

// writerSession is the per-device append-only destination
type writerSession struct {
	device   string
	path     string
	file     *os.File
	started  time.Time
	flushCh  chan struct{}
	done     chan struct{}
	finished sync.WaitGroup

	queueMu sync.Mutex
	queue   []Record

	// flushMu guards the flush itself; an attempt that finds it held is
	// skipped, the next tick catches the backlog
	flushMu sync.Mutex
}

// BatchedLogWriter persists log records per device with bounded latency
// and minimal I/O calls. Appends enqueue; a periodic timer and a size
// threshold each independently trigger a flush that formats a whole
// batch into one buffer and writes it with a single call.
type BatchedLogWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*writerSession
}

// NewBatchedLogWriter creates a writer. A nil logger disables logging.
func NewBatchedLogWriter(cfg WriterConfig, logger *slog.Logger) *BatchedLogWriter {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 100 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &BatchedLogWriter{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*writerSession),
	}
}

// StartSession opens the device's log file and writes the header block
func (w *BatchedLogWriter) StartSession(device string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.sessions[device]; exists {
		return ErrAlreadyOpen
	}

	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	started := time.Now()
	path := filepath.Join(w.cfg.Dir, sessionFileName(device, started))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	header := fmt.Sprintf("==== serial log: %s ====\n==== started: %s ====\n",
		device, started.Format(time.RFC3339))
	if _, err := file.WriteString(header); err != nil {
		file.Close()
		return fmt.Errorf("failed to write log header: %w", err)
	}

	session := &writerSession{
		device:  device,
		path:    path,
		file:    file,
		started: started,
		flushCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	w.sessions[device] = session

	session.finished.Add(1)
	go w.flushLoop(session)

	return nil
}

// StopSession stops the flush timer, drains all remaining records,
// writes the footer and closes the file. Calling it again for the same
// device is a no-op.
func (w *BatchedLogWriter) StopSession(device string) error {
	w.mu.Lock()
	session, exists := w.sessions[device]
	if !exists {
		w.mu.Unlock()
		return nil
	}
	delete(w.sessions, device)
	w.mu.Unlock()

	close(session.done)
	session.finished.Wait()

	// Final drain: nothing queued before StopSession may be lost
	for w.flushSession(session) > 0 {
	}

	footer := fmt.Sprintf("==== stopped: %s ====\n", time.Now().Format(time.RFC3339))
	if _, err := session.file.WriteString(footer); err != nil {
		w.logger.Warn("log footer write failed", "device", device, "error", err)
	}
	return session.file.Close()
}

// StopAll stops every active session
func (w *BatchedLogWriter) StopAll() {
	w.mu.Lock()
	devices := make([]string, 0, len(w.sessions))
	for device := range w.sessions {
		devices = append(devices, device)
	}
	w.mu.Unlock()

	for _, device := range devices {
		if err := w.StopSession(device); err != nil {
			w.logger.Warn("log session stop failed", "device", device, "error", err)
		}
	}
}

// Append enqueues one record for the device. It never blocks on I/O;
// crossing the batch threshold nudges the background flusher.
func (w *BatchedLogWriter) Append(device string, record Record) error {
	w.mu.Lock()
	session, exists := w.sessions[device]
	w.mu.Unlock()
	if !exists {
		return ErrWriterNotStarted
	}

	session.queueMu.Lock()
	session.queue = append(session.queue, record)
	pending := len(session.queue)
	session.queueMu.Unlock()

	if pending >= w.cfg.BatchSize {
		select {
		case session.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Pending returns the number of queued, unflushed records for a device
func (w *BatchedLogWriter) Pending(device string) int {
	w.mu.Lock()
	session, exists := w.sessions[device]
	w.mu.Unlock()
	if !exists {
		return 0
	}
	session.queueMu.Lock()
	defer session.queueMu.Unlock()
	return len(session.queue)
}

// FilePath returns the log file path for an active device session
func (w *BatchedLogWriter) FilePath(device string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if session, exists := w.sessions[device]; exists {
		return session.path
	}
	return ""
}

// flushLoop runs until StopSession, flushing on the timer and on
// threshold nudges
func (w *BatchedLogWriter) flushLoop(session *writerSession) {
	defer session.finished.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-session.done:
			return
		case <-ticker.C:
			w.flushSession(session)
		case <-session.flushCh:
			w.flushSession(session)
		}
	}
}

// flushSession drains up to one batch, formats it into a single buffer
// and writes it with one call. Returns the number of records persisted;
// on a write failure the queue is left intact so the records are retried
// on the next flush.
func (w *BatchedLogWriter) flushSession(session *writerSession) int {
	if !session.flushMu.TryLock() {
		// Another flush is running; the backlog is its problem now
		return 0
	}
	defer session.flushMu.Unlock()

	session.queueMu.Lock()
	n := len(session.queue)
	if n == 0 {
		session.queueMu.Unlock()
		return 0
	}
	if n > w.cfg.BatchSize {
		n = w.cfg.BatchSize
	}
	batch := make([]Record, n)
	copy(batch, session.queue[:n])
	session.queueMu.Unlock()

	var buf bytes.Buffer
	for _, record := range batch {
		formatRecord(&buf, record)
	}

	if _, err := session.file.Write(buf.Bytes()); err != nil {
		w.logger.Warn("log flush failed, records retained",
			"device", session.device, "records", n, "error", err)
		return 0
	}

	session.queueMu.Lock()
	session.queue = session.queue[n:]
	session.queueMu.Unlock()
	return n
}

// formatRecord appends one plain-text log line: [timestamp] [direction] content
func formatRecord(buf *bytes.Buffer, record Record) {
	content := record.Text
	if content == "" {
		content = string(record.Payload)
	}
	content = strings.TrimRight(content, "\r\n")
	fmt.Fprintf(buf, "[%s] [%s] %s\n",
		record.Timestamp.Format("2006-01-02 15:04:05.000"),
		record.Direction, content)
}

// sessionFileName builds the per-session file name from the device and
// the session start timestamp
func sessionFileName(device string, started time.Time) string {
	return fmt.Sprintf("%s_%s.log",
		filepath.Base(device), started.Format("20060102_150405"))
}
