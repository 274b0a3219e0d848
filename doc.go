// Package serialscope provides session-based serial port monitoring for
// Linux with data quality analysis, baud rate probing and batched
// session logging.
//
// It is built for watching hardware over serial lines: each device gets
// a managed session with a lifecycle state machine, received data is
// scored for plausibility so line noise and wrong-speed garbage never
// reach the consumer unflagged, and everything is persisted to
// per-session log files with bounded write latency.
//
// # Basic Usage
//
// Open devices through a registry and consume the unified event stream:
//
//	registry := serialscope.NewPortRegistry()
//	err := registry.Open(ctx, "/dev/ttyUSB0",
//	    serialscope.WithBaudRate(115200),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer registry.CloseAll(context.Background())
//
//	for event := range registry.Events() {
//	    switch e := event.(type) {
//	    case serialscope.DataEvent:
//	        fmt.Printf("%s: %s\n", e.Device, e.Bytes)
//	    case serialscope.RateProbeEvent:
//	        fmt.Printf("%s: suspect baud rate (%s)\n", e.Device, e.Reason)
//	    }
//	}
//
// # Configuration Options
//
// Use functional options for per-device configuration:
//
//	err := registry.Open(ctx, "/dev/ttyUSB0",
//	    serialscope.WithBaudRate(9600),
//	    serialscope.WithParity(serialscope.ParityEven),
//	    serialscope.WithAutoReconnect(2*time.Second, 5),
//	    serialscope.WithSettleDelay(100*time.Millisecond),
//	)
//
// # Data Quality Analysis
//
// Received chunks are scored on printable-character ratio, recognizable
// textual shape, byte diversity and chunk length. The score selects an
// action: forward, clean control characters and forward, discard, or
// request a baud rate probe after sustained garbage. Scoring can be
// disabled per device with WithoutQualityAnalysis.
//
// # Baud Rate Probing
//
// When the configured speed looks wrong, sweep the common candidates:
//
//	results, err := registry.ProbeBaudRates(ctx, "/dev/ttyUSB0", 2*time.Second)
//	for _, r := range results {
//	    fmt.Printf("%d baud: %.2f (%s)\n", r.BaudRate, r.Confidence, r.Reason)
//	}
//
// # Port Discovery
//
// List available serial devices and get USB metadata:
//
//	devices, err := serialscope.Scan()
//	for _, device := range devices {
//	    info, _ := serialscope.GetPortInfo(device)
//	    fmt.Printf("%s: %s (VID=%s PID=%s Serial=%s)\n",
//	        info.Path, info.Description, info.VendorID, info.ProductID, info.SerialNumber)
//	}
//
// # USB Device Management (Linux)
//
// Reset hung USB devices programmatically:
//
//	err := serialscope.ResetUSBDevice("/dev/ttyUSB0")
//	err = serialscope.ResetUSBDeviceBySerial("FT123456")
//
// Requires usbreset utility from usbutils package and root/sudo
// permissions.
//
// # Error Handling
//
// The package provides specific error values for robust handling:
//
//	var (
//	    ErrDeviceNotFound     // device path does not exist
//	    ErrAlreadyOpen        // a session already owns the device
//	    ErrNotConnected       // write attempted outside Connected state
//	    ErrReconnectExhausted // reconnect attempts used up
//	    // ... and more
//	)
//
// Use errors.Is() for error type checking:
//
//	if errors.Is(err, serialscope.ErrAlreadyOpen) {
//	    // device is busy in another session
//	}
//
// # Platform Support
//
// Serial I/O is Linux-only (termios via golang.org/x/sys). USB metadata
// extraction and device reset rely on sysfs and the usbreset utility.
//
// # Default Configuration
//
//   - BaudRate: 115200
//   - DataBits: 8
//   - StopBits: 1
//   - Parity: None
//   - Open retries: 3 attempts, 200ms apart
//   - Close retries: 5 attempts, 50ms backoff, 100ms settle delay
//   - Quality analysis: enabled
package serialscope
