package serialscope

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRejectsDuplicateOpen(t *testing.T) {
	withFakeHandle(t, func(string, Config) (handle, error) {
		return &fakeHandle{}, nil
	})

	r := NewPortRegistry()
	device := "/dev/ttyUSB0"

	require.NoError(t, r.Open(context.Background(), device, fastConfig()...))
	defer r.CloseAll(context.Background())

	err := r.Open(context.Background(), device, fastConfig()...)
	assert.ErrorIs(t, err, ErrAlreadyOpen)
	assert.Equal(t, []string{device}, r.Devices())
}

func TestRegistryOpenFailureLeavesNoEntry(t *testing.T) {
	withFakeHandle(t, func(string, Config) (handle, error) {
		return nil, ErrDeviceNotFound
	})

	r := NewPortRegistry()
	device := "/dev/ttyUSB0"

	err := r.Open(context.Background(), device, fastConfig()...)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.False(t, r.IsOpen(device))
	assert.Empty(t, r.Devices())

	// The device name is immediately reusable
	withFakeHandle(t, func(string, Config) (handle, error) {
		return &fakeHandle{}, nil
	})
	require.NoError(t, r.Open(context.Background(), device, fastConfig()...))
	r.CloseAll(context.Background())
}

func TestRegistryDataEventFlow(t *testing.T) {
	fake := &fakeHandle{}
	withFakeHandle(t, func(string, Config) (handle, error) { return fake, nil })

	r := NewPortRegistry()
	device := "/dev/ttyUSB0"
	require.NoError(t, r.Open(context.Background(), device, fastConfig()...))
	defer r.CloseAll(context.Background())

	fake.push([]byte("Hello, World! 123\r\n"))

	event := waitForEvent(t, r.Events(), func(e Event) bool {
		_, ok := e.(DataEvent)
		return ok
	})
	data := event.(DataEvent)
	assert.Equal(t, device, data.Device)
	assert.Equal(t, []byte("Hello, World! 123\r\n"), data.Bytes)
	assert.GreaterOrEqual(t, data.Score, 0.7)
	assert.False(t, data.Cleaned)

	stats, err := r.Statistics(device)
	require.NoError(t, err)
	assert.Equal(t, uint64(19), stats.ReceivedBytes)
}

func TestRegistryRateProbeRequest(t *testing.T) {
	fake := &fakeHandle{}
	withFakeHandle(t, func(string, Config) (handle, error) { return fake, nil })

	r := NewPortRegistry()
	device := "/dev/ttyUSB0"
	require.NoError(t, r.Open(context.Background(), device, fastConfig()...))
	defer r.CloseAll(context.Background())

	// Sustained noise must escalate to exactly one probe request
	for i := 0; i < 12; i++ {
		fake.push(noisyChunk())
	}

	event := waitForEvent(t, r.Events(), func(e Event) bool {
		_, ok := e.(RateProbeEvent)
		return ok
	})
	probe := event.(RateProbeEvent)
	assert.Equal(t, device, probe.Device)
	assert.Equal(t, 115200, probe.CurrentBaud)
	assert.Equal(t, "consecutive invalid data", probe.Reason)
}

func TestRegistrySend(t *testing.T) {
	fake := &fakeHandle{}
	withFakeHandle(t, func(string, Config) (handle, error) { return fake, nil })

	r := NewPortRegistry()
	device := "/dev/ttyUSB0"
	require.NoError(t, r.Open(context.Background(), device, fastConfig()...))
	defer r.CloseAll(context.Background())

	n, err := r.Send(device, []byte("AT\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("AT\r\n"), fake.writtenBytes())

	_, err = r.Send("/dev/ttyUSB9", []byte("AT\r\n"))
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestRegistryCloseRemovesSession(t *testing.T) {
	withFakeHandle(t, func(string, Config) (handle, error) {
		return &fakeHandle{}, nil
	})

	r := NewPortRegistry()
	device := "/dev/ttyUSB0"
	require.NoError(t, r.Open(context.Background(), device, fastConfig()...))

	require.NoError(t, r.Close(context.Background(), device))
	assert.False(t, r.IsOpen(device))
	assert.Equal(t, StateDisconnected, r.State(device))

	err := r.Close(context.Background(), device)
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestRegistryCloseAll(t *testing.T) {
	withFakeHandle(t, func(string, Config) (handle, error) {
		return &fakeHandle{}, nil
	})

	r := NewPortRegistry()
	devices := []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyACM0"}
	for _, device := range devices {
		require.NoError(t, r.Open(context.Background(), device, fastConfig()...))
	}
	assert.Len(t, r.Devices(), 3)

	require.NoError(t, r.CloseAll(context.Background()))
	assert.Empty(t, r.Devices())
}

func TestRegistryProbeRequiresClosedDevice(t *testing.T) {
	withFakeHandle(t, func(string, Config) (handle, error) {
		return &fakeHandle{}, nil
	})

	r := NewPortRegistry()
	device := "/dev/ttyUSB0"
	require.NoError(t, r.Open(context.Background(), device, fastConfig()...))
	defer r.CloseAll(context.Background())

	_, err := r.ProbeBaudRates(context.Background(), device, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrAlreadyOpen)
}

func TestRegistryLogWriterIntegration(t *testing.T) {
	fake := &fakeHandle{}
	withFakeHandle(t, func(string, Config) (handle, error) { return fake, nil })

	writer := NewBatchedLogWriter(WriterConfig{
		Dir:           t.TempDir(),
		FlushInterval: 10 * time.Millisecond,
	}, nil)
	r := NewPortRegistry(WithLogWriter(writer))
	device := "/dev/ttyUSB0"

	require.NoError(t, r.Open(context.Background(), device, fastConfig()...))
	path := writer.FilePath(device)
	require.NotEmpty(t, path, "open must start a log session")

	fake.push([]byte("STATUS: OK\r\n"))
	waitForEvent(t, r.Events(), func(e Event) bool {
		_, ok := e.(DataEvent)
		return ok
	})

	require.NoError(t, r.Close(context.Background(), device))
	assert.Empty(t, writer.FilePath(device), "close must stop the log session")
}

func TestRegistryCloseDuringConnectReleasesHandle(t *testing.T) {
	fake := &fakeHandle{}
	started := make(chan struct{})
	release := make(chan struct{})
	withFakeHandle(t, func(string, Config) (handle, error) {
		close(started)
		<-release
		return fake, nil
	})

	r := NewPortRegistry()
	device := "/dev/ttyUSB0"

	openErr := make(chan error, 1)
	go func() {
		openErr <- r.Open(context.Background(), device, fastConfig()...)
	}()

	// Close once the open is blocked inside the OS call
	<-started
	require.NoError(t, r.Close(context.Background(), device))
	assert.False(t, r.IsOpen(device))

	// The late-completing open must not commit the handle
	close(release)
	assert.ErrorIs(t, <-openErr, ErrSessionClosed)
	assert.True(t, fake.isClosed(), "handle opened after close must be released")
	assert.False(t, r.IsOpen(device))
}
