package serialscope

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// RegistryOption configures a PortRegistry
type RegistryOption func(*PortRegistry)

// WithLogger sets the logger shared by the registry and its sessions
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *PortRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithAnalyzer sets the quality analyzer shared by all sessions
func WithAnalyzer(analyzer *Analyzer) RegistryOption {
	return func(r *PortRegistry) { r.analyzer = analyzer }
}

// WithLogWriter sets the batched log writer; each opened device gets a
// writer session for the lifetime of its connection
func WithLogWriter(writer *BatchedLogWriter) RegistryOption {
	return func(r *PortRegistry) { r.writer = writer }
}

// WithProber sets the baud-rate prober used by ProbeBaudRates
func WithProber(prober *Prober) RegistryOption {
	return func(r *PortRegistry) { r.prober = prober }
}

// WithEventBuffer sets the capacity of the outbound event channel
func WithEventBuffer(size int) RegistryOption {
	return func(r *PortRegistry) {
		if size > 0 {
			r.eventBuffer = size
		}
	}
}

// PortRegistry tracks at most one session per device name and fans all
// session events out on a single channel. Opening a device that already
// has a session fails; the winning open owns the handle exclusively.
type PortRegistry struct {
	logger      *slog.Logger
	analyzer    *Analyzer
	writer      *BatchedLogWriter
	prober      *Prober
	eventBuffer int

	events  chan Event
	dropped atomic.Uint64

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewPortRegistry creates a registry
func NewPortRegistry(opts ...RegistryOption) *PortRegistry {
	r := &PortRegistry{
		logger:      discardLogger(),
		eventBuffer: 256,
		sessions:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.analyzer == nil {
		r.analyzer = NewAnalyzer(DefaultQualityConfig())
	}
	if r.prober == nil {
		r.prober = NewProber(DefaultProbeConfig(), r.logger)
	}
	r.events = make(chan Event, r.eventBuffer)
	return r
}

// Events returns the outbound event channel. Consumers that fall behind
// lose events rather than stalling the read loops.
func (r *PortRegistry) Events() <-chan Event {
	return r.events
}

// DroppedEvents returns how many events were discarded because the
// consumer fell behind
func (r *PortRegistry) DroppedEvents() uint64 {
	return r.dropped.Load()
}

// publish is the single fan-out point; it never blocks
func (r *PortRegistry) publish(event Event) {
	select {
	case r.events <- event:
	default:
		r.dropped.Add(1)
	}
}

// Open creates a session for the device and connects it. Exactly one
// session may exist per device name; a concurrent or repeated open for
// the same name returns ErrAlreadyOpen.
func (r *PortRegistry) Open(ctx context.Context, device string, opts ...Option) error {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return err
		}
	}

	session := newSession(device, cfg, r.logger, r.analyzer, r.writer, r.publish)

	// Insert before opening so a racing open for the same name loses
	// immediately instead of fighting over the device
	r.mu.Lock()
	if _, exists := r.sessions[device]; exists {
		r.mu.Unlock()
		return ErrAlreadyOpen
	}
	r.sessions[device] = session
	r.mu.Unlock()

	if r.writer != nil {
		if err := r.writer.StartSession(device); err != nil {
			r.logger.Warn("log session start failed", "device", device, "error", err)
		}
	}

	if err := session.open(ctx); err != nil {
		r.remove(device, session)
		if r.writer != nil {
			if stopErr := r.writer.StopSession(device); stopErr != nil {
				r.logger.Warn("log session stop failed", "device", device, "error", stopErr)
			}
		}
		return err
	}
	return nil
}

// Close disconnects the device's session. The session is removed from
// the registry whether or not the close sequence succeeded; a failed
// close returns the error but never leaves a stale entry behind.
func (r *PortRegistry) Close(ctx context.Context, device string) error {
	r.mu.Lock()
	session, exists := r.sessions[device]
	r.mu.Unlock()
	if !exists {
		return ErrNotOpen
	}

	err := session.close(ctx)
	r.remove(device, session)

	if r.analyzer != nil {
		r.analyzer.Reset(device)
	}
	if r.writer != nil {
		if stopErr := r.writer.StopSession(device); stopErr != nil {
			r.logger.Warn("log session stop failed", "device", device, "error", stopErr)
		}
	}
	return err
}

// CloseAll disconnects every open session and returns the first error
func (r *PortRegistry) CloseAll(ctx context.Context) error {
	var firstErr error
	for _, device := range r.Devices() {
		if err := r.Close(ctx, device); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// IsOpen reports whether a session exists for the device
func (r *PortRegistry) IsOpen(device string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.sessions[device]
	return exists
}

// Devices returns the open device names, sorted
func (r *PortRegistry) Devices() []string {
	r.mu.Lock()
	devices := make([]string, 0, len(r.sessions))
	for device := range r.sessions {
		devices = append(devices, device)
	}
	r.mu.Unlock()

	sort.Strings(devices)
	return devices
}

// State returns the session state for a device; devices without a
// session report StateDisconnected
func (r *PortRegistry) State(device string) SessionState {
	r.mu.Lock()
	session, exists := r.sessions[device]
	r.mu.Unlock()
	if !exists {
		return StateDisconnected
	}
	return session.State()
}

// Statistics returns the cumulative counters for an open device
func (r *PortRegistry) Statistics(device string) (Stats, error) {
	r.mu.Lock()
	session, exists := r.sessions[device]
	r.mu.Unlock()
	if !exists {
		return Stats{}, ErrNotOpen
	}
	return session.Stats(), nil
}

// Quality returns the analyzer's accumulated state for a device
func (r *PortRegistry) Quality(device string) QualityState {
	return r.analyzer.State(device)
}

// Send writes data to an open device
func (r *PortRegistry) Send(device string, data []byte) (int, error) {
	r.mu.Lock()
	session, exists := r.sessions[device]
	r.mu.Unlock()
	if !exists {
		return 0, ErrNotOpen
	}
	return session.Write(data)
}

// ProbeBaudRates sweeps candidate speeds for a device that is not
// currently open. Probing needs exclusive access to the hardware, so an
// open session blocks it.
func (r *PortRegistry) ProbeBaudRates(ctx context.Context, device string, perCandidate time.Duration) ([]CandidateResult, error) {
	if r.IsOpen(device) {
		return nil, ErrAlreadyOpen
	}
	return r.prober.ProbeBest(ctx, device, perCandidate)
}

// remove deletes the device entry only if it still maps to this
// session, so a stale failure path never evicts a racing reopen
func (r *PortRegistry) remove(device string, session *Session) {
	r.mu.Lock()
	if r.sessions[device] == session {
		delete(r.sessions, device)
	}
	r.mu.Unlock()
}
