package serialscope

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// handle is the low-level hardware connection owned by a session. It is
// an interface so tests can substitute a fake; openHandle is the single
// seam through which real devices are opened.
type handle interface {
	Read(buf []byte) (int, error)
	ReadContext(ctx context.Context, buf []byte) (int, error)
	Write(data []byte) (int, error)
	BytesAvailable() (int, error)
	FlushInput() error
	FlushOutput() error
	Drain() error
	Close() error
}

// openHandle opens the OS-level serial handle. Tests override this to
// inject fake hardware.
var openHandle = func(device string, cfg Config) (handle, error) {
	// Re-verify enumerability so a device that vanished between scan and
	// open fails with the same error as one that never existed
	if !DevicePresent(device) {
		return nil, ErrDeviceNotFound
	}
	return openDevice(device, cfg)
}

// device is the concrete termios-backed implementation of handle
type device struct {
	mu     sync.RWMutex
	fd     int
	closed bool
}

var _ handle = (*device)(nil)

// baudConstants maps supported baud rates to their termios constants
var baudConstants = map[int]uint32{
	1200:    unix.B1200,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
	3000000: unix.B3000000,
	4000000: unix.B4000000,
}

// baudConstant converts an integer baud rate to the unix constant
func baudConstant(rate int) (uint32, error) {
	c, ok := baudConstants[rate]
	if !ok {
		return 0, ErrInvalidBaudRate
	}
	return c, nil
}

// openDevice opens and configures a serial device for raw I/O
func openDevice(devicePath string, cfg Config) (*device, error) {
	fd, err := unix.Open(devicePath, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		switch err {
		case unix.ENOENT:
			return nil, ErrDeviceNotFound
		case unix.EACCES, unix.EPERM:
			return nil, ErrPermissionDenied
		}
		return nil, fmt.Errorf("failed to open %s: %v", devicePath, err)
	}

	if err := configureTermios(fd, cfg); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &device{fd: fd}, nil
}

// configureTermios applies raw-mode line settings from the config
func configureTermios(fd int, cfg Config) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("failed to get termios: %v", err)
	}

	// Raw mode: no input/output/line processing
	termios.Cflag = unix.CREAD | unix.CLOCAL
	termios.Iflag = 0
	termios.Oflag = 0
	termios.Lflag = 0

	switch cfg.DataBits {
	case 5:
		termios.Cflag |= unix.CS5
	case 6:
		termios.Cflag |= unix.CS6
	case 7:
		termios.Cflag |= unix.CS7
	default:
		termios.Cflag |= unix.CS8
	}

	if cfg.StopBits == 2 {
		termios.Cflag |= unix.CSTOPB
	}

	switch cfg.Parity {
	case ParityOdd:
		termios.Cflag |= unix.PARENB | unix.PARODD
	case ParityEven:
		termios.Cflag |= unix.PARENB
	}

	// Poll reads: VMIN=0, VTIME from config (deciseconds)
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = uint8(cfg.ReadTimeoutTenths)

	baud, err := baudConstant(cfg.BaudRate)
	if err != nil {
		return err
	}
	termios.Cflag = (termios.Cflag &^ unix.CBAUD) | baud
	termios.Ispeed = baud
	termios.Ospeed = baud

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("failed to set termios: %v", err)
	}
	return nil
}

// Read reads data from the serial device
func (d *device) Read(buf []byte) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return 0, ErrHandleClosed
	}
	return unix.Read(d.fd, buf)
}

// ReadContext reads data with context cancellation support
func (d *device) ReadContext(ctx context.Context, buf []byte) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return 0, ErrHandleClosed
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	type readResult struct {
		n   int
		err error
	}
	resultCh := make(chan readResult, 1)

	go func() {
		n, err := unix.Read(d.fd, buf)
		resultCh <- readResult{n: n, err: err}
	}()

	select {
	case result := <-resultCh:
		return result.n, result.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Write writes data to the serial device
func (d *device) Write(data []byte) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return 0, ErrHandleClosed
	}
	return unix.Write(d.fd, data)
}

// BytesAvailable returns the number of bytes buffered by the driver and
// readable right now. The session read loop uses it to drain everything
// available in a single read.
func (d *device) BytesAvailable() (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return 0, ErrHandleClosed
	}
	return unix.IoctlGetInt(d.fd, unix.TIOCINQ)
}

// FlushInput discards any unread input data
func (d *device) FlushInput() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrHandleClosed
	}
	return unix.IoctlSetInt(d.fd, unix.TCFLSH, unix.TCIFLUSH)
}

// FlushOutput discards any unwritten output data
func (d *device) FlushOutput() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrHandleClosed
	}
	return unix.IoctlSetInt(d.fd, unix.TCFLSH, unix.TCOFLUSH)
}

// Drain waits until all output written to the device has been transmitted
func (d *device) Drain() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrHandleClosed
	}
	return unix.IoctlSetInt(d.fd, unix.TCSBRK, 1)
}

// Close closes the serial device
func (d *device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrHandleClosed
	}

	err := unix.Close(d.fd)
	d.closed = true
	if err != nil {
		if err == unix.EBUSY {
			return &CloseError{Reason: CloseLocked, Attempts: 1, Err: err}
		}
		return err
	}
	return nil
}
