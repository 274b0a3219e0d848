package serialscope

import "time"

// Parity represents the parity mode
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

// String returns the string representation of Parity
func (p Parity) String() string {
	switch p {
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	default:
		return "none"
	}
}

// Config holds the configuration for one monitored serial device.
// The line settings mirror a standard 8N1 setup; the lifecycle settings
// control the open/close/reconnect behavior of the owning session.
type Config struct {
	BaudRate          int
	DataBits          int
	StopBits          int
	Parity            Parity
	ReadTimeoutTenths int // VTIME setting in tenths of seconds (0-255)

	// Open behavior: bounded retries with a fixed inter-attempt delay.
	OpenAttempts  int
	OpenRetryWait time.Duration

	// Close behavior: a locked or mid-I/O handle is retried with short
	// backoff, and the device name is only considered free for reopening
	// after SettleDelay has elapsed.
	CloseAttempts  int
	CloseRetryWait time.Duration
	SettleDelay    time.Duration

	// Reconnect policy applied when a connected session hits an I/O error.
	AutoReconnect     bool
	ReconnectWait     time.Duration
	ReconnectAttempts int

	// QualityAnalysis routes received chunks through the analyzer.
	// When disabled the session forwards raw chunks.
	QualityAnalysis bool

	// PauseCooldown is how long the session stops processing chunks after
	// the analyzer flags a garbage flood.
	PauseCooldown time.Duration
}

// Option is a functional option for configuring a device
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaudRate:          115200,
		DataBits:          8,
		StopBits:          1,
		Parity:            ParityNone,
		ReadTimeoutTenths: 1, // 100ms poll reads in the session read loop

		OpenAttempts:  3,
		OpenRetryWait: 200 * time.Millisecond,

		CloseAttempts:  5,
		CloseRetryWait: 50 * time.Millisecond,
		SettleDelay:    100 * time.Millisecond,

		AutoReconnect:     false,
		ReconnectWait:     2 * time.Second,
		ReconnectAttempts: 5,

		QualityAnalysis: true,
		PauseCooldown:   time.Second,
	}
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) Option {
	return func(c *Config) error {
		if _, err := baudConstant(rate); err != nil {
			return err
		}
		c.BaudRate = rate
		return nil
	}
}

// WithDataBits sets the number of data bits (5, 6, 7, or 8)
func WithDataBits(bits int) Option {
	return func(c *Config) error {
		if bits < 5 || bits > 8 {
			return ErrInvalidConfig
		}
		c.DataBits = bits
		return nil
	}
}

// WithStopBits sets the number of stop bits (1 or 2)
func WithStopBits(bits int) Option {
	return func(c *Config) error {
		if bits != 1 && bits != 2 {
			return ErrInvalidConfig
		}
		c.StopBits = bits
		return nil
	}
}

// WithParity sets the parity mode
func WithParity(parity Parity) Option {
	return func(c *Config) error {
		c.Parity = parity
		return nil
	}
}

// WithReadTimeout sets the read timeout in tenths of seconds (VTIME)
func WithReadTimeout(tenths int) Option {
	return func(c *Config) error {
		if tenths < 0 || tenths > 255 {
			return ErrInvalidConfig
		}
		c.ReadTimeoutTenths = tenths
		return nil
	}
}

// WithOpenRetry sets the bounded open retry policy
func WithOpenRetry(attempts int, wait time.Duration) Option {
	return func(c *Config) error {
		if attempts < 1 || wait < 0 {
			return ErrInvalidConfig
		}
		c.OpenAttempts = attempts
		c.OpenRetryWait = wait
		return nil
	}
}

// WithCloseRetry sets the bounded close retry policy
func WithCloseRetry(attempts int, wait time.Duration) Option {
	return func(c *Config) error {
		if attempts < 1 || wait < 0 {
			return ErrInvalidConfig
		}
		c.CloseAttempts = attempts
		c.CloseRetryWait = wait
		return nil
	}
}

// WithSettleDelay sets the pause after handle release before the device
// name is considered free for reopening
func WithSettleDelay(d time.Duration) Option {
	return func(c *Config) error {
		if d < 0 {
			return ErrInvalidConfig
		}
		c.SettleDelay = d
		return nil
	}
}

// WithAutoReconnect enables close-then-reopen after an I/O failure
func WithAutoReconnect(wait time.Duration, attempts int) Option {
	return func(c *Config) error {
		if wait < 0 || attempts < 1 {
			return ErrInvalidConfig
		}
		c.AutoReconnect = true
		c.ReconnectWait = wait
		c.ReconnectAttempts = attempts
		return nil
	}
}

// WithoutQualityAnalysis disables chunk scoring; the session forwards
// raw chunks directly to the log pipeline and event stream
func WithoutQualityAnalysis() Option {
	return func(c *Config) error {
		c.QualityAnalysis = false
		return nil
	}
}

// WithPauseCooldown sets the processing pause after a garbage flood
func WithPauseCooldown(d time.Duration) Option {
	return func(c *Config) error {
		if d < 0 {
			return ErrInvalidConfig
		}
		c.PauseCooldown = d
		return nil
	}
}

// maxCloseWallClock returns the worst-case wall-clock bound for the close
// sequence: every retry waits plus the final settle delay.
func (c Config) maxCloseWallClock() time.Duration {
	return time.Duration(c.CloseAttempts)*c.CloseRetryWait + c.SettleDelay
}
