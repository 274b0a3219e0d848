package serialscope

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Session owns one hardware connection end to end: the open/close
// lifecycle, the read loop, the write path and the reconnect policy.
// At most one live handle exists per device name across the process;
// the handle is exclusively owned and never shared.
type Session struct {
	device   string
	cfg      Config
	logger   *slog.Logger
	analyzer *Analyzer         // optional: nil selects the forward-raw path
	writer   *BatchedLogWriter // optional
	publish  func(Event)

	mu     sync.Mutex
	state  SessionState
	handle handle
	closed bool // latched by close; an in-flight open must not commit after this

	// writeMu serializes writes so the handle never sees interleaved data
	writeMu sync.Mutex

	readCancel   context.CancelFunc
	readDone     chan struct{}
	pausedUntil  time.Time
	probeFlagged bool

	receivedBytes    atomic.Uint64
	sentBytes        atomic.Uint64
	receivedMessages atomic.Uint64
	sentMessages     atomic.Uint64
	errorCount       atomic.Uint64

	timesMu        sync.Mutex
	connectedAt    time.Time
	disconnectedAt time.Time
}

// consecutive read errors tolerated before the session goes to Error
const readErrorLimit = 5

func newSession(device string, cfg Config, logger *slog.Logger,
	analyzer *Analyzer, writer *BatchedLogWriter, publish func(Event)) *Session {
	if publish == nil {
		publish = func(Event) {}
	}
	return &Session{
		device:   device,
		cfg:      cfg,
		logger:   logger.With("device", device),
		analyzer: analyzer,
		writer:   writer,
		publish:  publish,
		state:    StateDisconnected,
	}
}

// Device returns the device name identifying this session
func (s *Session) Device() string { return s.device }

// Config returns the session configuration
func (s *Session) Config() Config { return s.cfg }

// State returns the current lifecycle state
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of the cumulative session statistics
func (s *Session) Stats() Stats {
	s.timesMu.Lock()
	connectedAt, disconnectedAt := s.connectedAt, s.disconnectedAt
	s.timesMu.Unlock()

	return Stats{
		ReceivedBytes:    s.receivedBytes.Load(),
		SentBytes:        s.sentBytes.Load(),
		ReceivedMessages: s.receivedMessages.Load(),
		SentMessages:     s.sentMessages.Load(),
		ErrorCount:       s.errorCount.Load(),
		ConnectedAt:      connectedAt,
		DisconnectedAt:   disconnectedAt,
	}
}

// setState transitions the state machine and publishes the change
func (s *Session) setState(next SessionState) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	if prev != next {
		s.publish(StateEvent{Device: s.device, OldState: prev, NewState: next})
	}
}

// open drives Disconnected -> Connecting -> Connected with bounded
// retries and a fixed inter-attempt delay. Residual driver buffers from
// a prior session are discarded so the read loop never sees ghost data.
func (s *Session) open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.mu.Unlock()

	s.setState(StateConnecting)

	var h handle
	err := doRetry(ctx, retryConfig{
		attempts:   s.cfg.OpenAttempts,
		wait:       s.cfg.OpenRetryWait,
		multiplier: 1,
	}, func() error {
		opened, err := openHandle(s.device, s.cfg)
		if err != nil {
			s.logger.Debug("open attempt failed", "error", err)
			return err
		}
		h = opened
		return nil
	})
	if err != nil {
		s.setState(StateError)
		s.publish(ErrorEvent{
			Device:  s.device,
			Message: fmt.Sprintf("open failed after %d attempts: %v", s.cfg.OpenAttempts, err),
		})
		return err
	}

	if flushErr := h.FlushInput(); flushErr != nil {
		s.logger.Debug("input flush on open failed", "error", flushErr)
	}
	if flushErr := h.FlushOutput(); flushErr != nil {
		s.logger.Debug("output flush on open failed", "error", flushErr)
	}

	readCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.closed {
		// A close raced the open and won; the handle must not outlive it
		s.mu.Unlock()
		cancel()
		if closeErr := h.Close(); closeErr != nil && closeErr != ErrHandleClosed {
			s.logger.Debug("closing late-opened handle failed", "error", closeErr)
		}
		s.setState(StateDisconnected)
		return ErrSessionClosed
	}
	s.handle = h
	s.readCancel = cancel
	s.readDone = make(chan struct{})
	s.mu.Unlock()

	s.timesMu.Lock()
	s.connectedAt = time.Now()
	s.timesMu.Unlock()

	s.setState(StateConnected)
	go s.readLoop(readCtx, h, s.readDone)
	return nil
}

// readLoop drains available bytes and forwards each chunk through the
// quality pipeline. It must never block on downstream consumers; every
// forward is a non-blocking enqueue.
func (s *Session) readLoop(ctx context.Context, h handle, done chan struct{}) {
	defer close(done)

	buf := make([]byte, 4096)
	readErrors := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Drain everything the driver has buffered in one read
		if avail, err := h.BytesAvailable(); err == nil && avail > len(buf) {
			buf = make([]byte, avail)
		}

		n, err := h.ReadContext(ctx, buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			readErrors++
			s.errorCount.Add(1)
			s.logger.Warn("read error", "error", err, "consecutive", readErrors)
			if readErrors >= readErrorLimit {
				s.onReadFailure(err)
				return
			}
			continue
		}
		readErrors = 0
		if n == 0 {
			continue
		}

		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		s.receivedBytes.Add(uint64(n))
		s.receivedMessages.Add(1)
		s.handleChunk(chunk)
	}
}

// handleChunk routes one received chunk: through the analyzer when
// quality analysis is enabled, raw otherwise
func (s *Session) handleChunk(chunk []byte) {
	now := time.Now()

	if s.analyzer == nil || !s.cfg.QualityAnalysis {
		s.forward(chunk, now, 0, false)
		return
	}

	if now.Before(s.pausedUntil) {
		return
	}

	verdict := s.analyzer.Analyze(s.device, chunk)
	switch verdict.Action {
	case ActionNormal:
		s.probeFlagged = false
		s.forward(chunk, now, verdict.Score, false)

	case ActionCleanAndProcess:
		s.probeFlagged = false
		s.forward(verdict.Cleaned, now, verdict.Score, true)

	case ActionDiscard:
		s.logger.Debug("chunk discarded", "score", verdict.Score, "bytes", len(chunk))

	case ActionTriggerRateProbe:
		if !s.probeFlagged {
			s.probeFlagged = true
			s.publish(RateProbeEvent{
				Device:      s.device,
				CurrentBaud: s.cfg.BaudRate,
				Reason:      s.analyzer.ProbeReason(s.device),
			})
		}

	case ActionPauseProcessing:
		s.pausedUntil = now.Add(s.cfg.PauseCooldown)
		s.logger.Warn("garbage guard tripped, pausing processing",
			"score", verdict.Score, "bytes", len(chunk))
	}
}

// forward publishes the chunk and enqueues it for persistence
func (s *Session) forward(chunk []byte, ts time.Time, score float64, cleaned bool) {
	s.publish(DataEvent{
		Device:    s.device,
		Bytes:     chunk,
		Timestamp: ts,
		Score:     score,
		Cleaned:   cleaned,
	})

	if s.writer != nil {
		if err := s.writer.Append(s.device, Record{
			Device:    s.device,
			Timestamp: ts,
			Direction: DirectionReceived,
			Payload:   chunk,
			Text:      string(chunk),
		}); err != nil {
			s.logger.Debug("log append failed", "error", err)
		}
	}
}

// Write sends data over the connection. Writes are serialized by a
// per-session lock so the handle never sees interleaved payloads.
func (s *Session) Write(data []byte) (int, error) {
	s.mu.Lock()
	if s.state != StateConnected || s.handle == nil {
		s.mu.Unlock()
		return 0, ErrNotConnected
	}
	h := s.handle
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	n, err := h.Write(data)
	if err != nil {
		s.errorCount.Add(1)
		return n, err
	}
	s.sentBytes.Add(uint64(n))
	s.sentMessages.Add(1)

	if s.writer != nil {
		if appendErr := s.writer.Append(s.device, Record{
			Device:    s.device,
			Timestamp: time.Now(),
			Direction: DirectionSent,
			Payload:   data,
			Text:      string(data),
		}); appendErr != nil {
			s.logger.Debug("log append failed", "error", appendErr)
		}
	}
	return n, nil
}

// onReadFailure moves the session to Error and, if configured, kicks
// off the reconnect sequence
func (s *Session) onReadFailure(err error) {
	s.setState(StateError)
	s.publish(ErrorEvent{
		Device:  s.device,
		Message: fmt.Sprintf("device disconnected: %v", err),
	})

	if s.cfg.AutoReconnect {
		go s.reconnectLoop()
	}
}

// reconnectLoop retries close-then-reopen after the configured delay.
// Attempts are bounded; exhaustion is reported so the caller can decide
// whether to keep the session around.
func (s *Session) reconnectLoop() {
	for attempt := 1; attempt <= s.cfg.ReconnectAttempts; attempt++ {
		time.Sleep(s.cfg.ReconnectWait)

		if s.State() != StateError {
			return // someone closed or revived the session meanwhile
		}

		s.logger.Info("reconnect attempt", "attempt", attempt)
		s.releaseHandle(context.Background())

		if err := s.open(context.Background()); err == nil {
			s.logger.Info("reconnected")
			return
		}
	}

	s.publish(ErrorEvent{
		Device:  s.device,
		Message: ErrReconnectExhausted.Error(),
	})
}

// close runs the full shutdown sequence: final drain, reader stop,
// buffer discard, bounded-retry handle release, then the settle delay
// after which the device name is free for reopening. Every step is
// best-effort; a failed step is logged and the sequence continues.
func (s *Session) close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	cancel := s.readCancel
	done := s.readDone
	s.readCancel = nil
	s.mu.Unlock()

	s.setState(StateDisconnecting)

	// Stop the reader before touching the handle from this goroutine
	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(time.Second):
			s.logger.Warn("read loop did not stop in time")
		}
	}

	closeErr := s.releaseHandle(ctx)

	s.timesMu.Lock()
	s.disconnectedAt = time.Now()
	s.timesMu.Unlock()

	// Settle delay: give the OS time to fully reclaim the handle before
	// the device name is considered free again
	select {
	case <-ctx.Done():
	case <-time.After(s.cfg.SettleDelay):
	}

	if closeErr != nil {
		s.setState(StateError)
		return closeErr
	}
	s.setState(StateDisconnected)
	return nil
}

// releaseHandle drains trailing input, discards buffers and closes the
// handle with bounded retries. The driver may hold the handle briefly
// after a close request, so a locked handle is retried with backoff.
func (s *Session) releaseHandle(ctx context.Context) error {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.mu.Unlock()

	if h == nil {
		return nil
	}

	s.drainTrailing(h)

	if err := h.FlushInput(); err != nil {
		s.logger.Debug("input flush on close failed", "error", err)
	}
	if err := h.FlushOutput(); err != nil {
		s.logger.Debug("output flush on close failed", "error", err)
	}

	attempts := 0
	err := doRetry(ctx, retryConfig{
		attempts:   s.cfg.CloseAttempts,
		wait:       s.cfg.CloseRetryWait,
		maxWait:    s.cfg.CloseRetryWait * 4,
		multiplier: 1.5,
	}, func() error {
		attempts++
		err := h.Close()
		if err == nil || err == ErrHandleClosed {
			return nil
		}
		s.logger.Debug("close attempt failed", "attempt", attempts, "error", err)
		return err
	})
	if err != nil {
		s.errorCount.Add(1)
		return &CloseError{
			Device:   s.device,
			Reason:   closeReasonFor(err),
			Attempts: attempts,
			Err:      err,
		}
	}
	return nil
}

// drainTrailing opportunistically reads whatever is still pending so
// trailing data is not lost on close
func (s *Session) drainTrailing(h handle) {
	avail, err := h.BytesAvailable()
	if err != nil || avail == 0 {
		return
	}

	buf := make([]byte, avail)
	n, err := h.Read(buf)
	if err != nil || n == 0 {
		return
	}

	s.receivedBytes.Add(uint64(n))
	s.receivedMessages.Add(1)
	s.handleChunk(buf[:n])
}

// closeReasonFor classifies a final close failure
func closeReasonFor(err error) CloseReason {
	if ce, ok := err.(*CloseError); ok {
		return ce.Reason
	}
	if err == ErrHandleClosed {
		return CloseInvalidState
	}
	return CloseIOError
}
