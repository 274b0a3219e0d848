package serialscope

import "time"

// SessionState is the lifecycle state of a device session
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateError
)

// String returns the string representation of SessionState
func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateError:
		return "error"
	default:
		return "disconnected"
	}
}

// Event is the outbound fan-out type consumed by the presentation
// layer. The core never depends on any UI dispatch mechanism; consumers
// own their thread-affinity concerns.
type Event interface {
	EventDevice() string
}

// DataEvent carries a received chunk that passed the quality pipeline
type DataEvent struct {
	Device    string
	Bytes     []byte
	Timestamp time.Time
	Score     float64
	Cleaned   bool
}

// EventDevice implements Event
func (e DataEvent) EventDevice() string { return e.Device }

// StateEvent reports a session state transition
type StateEvent struct {
	Device   string
	OldState SessionState
	NewState SessionState
}

// EventDevice implements Event
func (e StateEvent) EventDevice() string { return e.Device }

// ErrorEvent reports a user-visible failure: open exhausted, unexpected
// disconnect, or reconnect exhausted. Everything else is telemetry-only.
type ErrorEvent struct {
	Device  string
	Message string
}

// EventDevice implements Event
func (e ErrorEvent) EventDevice() string { return e.Device }

// RateProbeEvent signals that the analyzer suspects the configured
// speed is wrong and a baud-rate probe is warranted
type RateProbeEvent struct {
	Device      string
	CurrentBaud int
	Reason      string
}

// EventDevice implements Event
func (e RateProbeEvent) EventDevice() string { return e.Device }

// Stats are cumulative per-session counters. Counters are monotonic and
// written only by the owning session; other goroutines only read.
type Stats struct {
	ReceivedBytes    uint64
	SentBytes        uint64
	ReceivedMessages uint64
	SentMessages     uint64
	ErrorCount       uint64
	ConnectedAt      time.Time
	DisconnectedAt   time.Time
}
