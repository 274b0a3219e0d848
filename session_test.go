package serialscope

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandle is an in-memory handle substituted for real hardware via
// the openHandle seam
type fakeHandle struct {
	mu       sync.Mutex
	incoming [][]byte
	written  []byte
	readErr  error
	closeErr error
	closed   bool
}

var _ handle = (*fakeHandle)(nil)

func (f *fakeHandle) push(chunk []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incoming = append(f.incoming, chunk)
}

func (f *fakeHandle) failReads(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

func (f *fakeHandle) writtenBytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, len(f.written))
	copy(out, f.written)
	return out
}

func (f *fakeHandle) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeHandle) Read(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, ErrHandleClosed
	}
	if f.readErr != nil {
		return 0, f.readErr
	}
	if len(f.incoming) == 0 {
		return 0, nil
	}
	chunk := f.incoming[0]
	f.incoming = f.incoming[1:]
	return copy(buf, chunk), nil
}

func (f *fakeHandle) ReadContext(ctx context.Context, buf []byte) (int, error) {
	for {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return 0, ErrHandleClosed
		}
		if f.readErr != nil {
			err := f.readErr
			f.mu.Unlock()
			return 0, err
		}
		if len(f.incoming) > 0 {
			chunk := f.incoming[0]
			f.incoming = f.incoming[1:]
			f.mu.Unlock()
			return copy(buf, chunk), nil
		}
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (f *fakeHandle) Write(data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, ErrHandleClosed
	}
	f.written = append(f.written, data...)
	return len(data), nil
}

func (f *fakeHandle) BytesAvailable() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, ErrHandleClosed
	}
	if len(f.incoming) == 0 {
		return 0, nil
	}
	return len(f.incoming[0]), nil
}

func (f *fakeHandle) FlushInput() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incoming = nil
	return nil
}

func (f *fakeHandle) FlushOutput() error { return nil }
func (f *fakeHandle) Drain() error       { return nil }

func (f *fakeHandle) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrHandleClosed
	}
	if f.closeErr != nil {
		return f.closeErr
	}
	f.closed = true
	return nil
}

// withFakeHandle swaps the open seam for the test's lifetime
func withFakeHandle(t *testing.T, open func(device string, cfg Config) (handle, error)) {
	t.Helper()
	orig := openHandle
	openHandle = open
	t.Cleanup(func() { openHandle = orig })
}

// fastConfig trims the lifecycle delays so tests stay quick
func fastConfig() []Option {
	return []Option{
		WithOpenRetry(1, time.Millisecond),
		WithCloseRetry(2, time.Millisecond),
		WithSettleDelay(5 * time.Millisecond),
	}
}

// waitForEvent pumps the channel until an event satisfies match
func waitForEvent(t *testing.T, events <-chan Event, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-events:
			if match(e) {
				return e
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
			return nil
		}
	}
}

func TestSessionLifecycleStates(t *testing.T) {
	fake := &fakeHandle{}
	withFakeHandle(t, func(string, Config) (handle, error) { return fake, nil })

	var mu sync.Mutex
	var transitions []SessionState
	publish := func(e Event) {
		if se, ok := e.(StateEvent); ok {
			mu.Lock()
			transitions = append(transitions, se.NewState)
			mu.Unlock()
		}
	}

	cfg := DefaultConfig()
	cfg.SettleDelay = 5 * time.Millisecond
	session := newSession("/dev/ttyUSB0", cfg, discardLogger(), nil, nil, publish)

	require.NoError(t, session.open(context.Background()))
	assert.Equal(t, StateConnected, session.State())

	require.NoError(t, session.close(context.Background()))
	assert.Equal(t, StateDisconnected, session.State())
	assert.True(t, fake.isClosed())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []SessionState{
		StateConnecting, StateConnected, StateDisconnecting, StateDisconnected,
	}, transitions)
}

func TestSessionOpenRetriesThenFails(t *testing.T) {
	attempts := 0
	withFakeHandle(t, func(string, Config) (handle, error) {
		attempts++
		return nil, ErrDeviceNotFound
	})

	cfg := DefaultConfig()
	cfg.OpenAttempts = 3
	cfg.OpenRetryWait = time.Millisecond

	var events []Event
	var mu sync.Mutex
	session := newSession("/dev/ttyUSB0", cfg, discardLogger(), nil, nil, func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	err := session.open(context.Background())
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, StateError, session.State())

	mu.Lock()
	defer mu.Unlock()
	var sawError bool
	for _, e := range events {
		if _, ok := e.(ErrorEvent); ok {
			sawError = true
		}
	}
	assert.True(t, sawError, "exhausted open must publish an error event")
}

func TestSessionCloseWallClockBound(t *testing.T) {
	fake := &fakeHandle{}
	withFakeHandle(t, func(string, Config) (handle, error) { return fake, nil })

	cfg := DefaultConfig()
	cfg.CloseAttempts = 2
	cfg.CloseRetryWait = 5 * time.Millisecond
	cfg.SettleDelay = 20 * time.Millisecond

	session := newSession("/dev/ttyUSB0", cfg, discardLogger(), nil, nil, nil)
	require.NoError(t, session.open(context.Background()))

	start := time.Now()
	require.NoError(t, session.close(context.Background()))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, cfg.SettleDelay,
		"close must hold the settle delay before freeing the device")
	assert.Less(t, elapsed, cfg.maxCloseWallClock()+1500*time.Millisecond)
}

func TestSessionCloseReportsExhaustedRetries(t *testing.T) {
	fake := &fakeHandle{closeErr: errors.New("device busy")}
	withFakeHandle(t, func(string, Config) (handle, error) { return fake, nil })

	cfg := DefaultConfig()
	cfg.CloseAttempts = 3
	cfg.CloseRetryWait = time.Millisecond
	cfg.SettleDelay = time.Millisecond

	session := newSession("/dev/ttyUSB0", cfg, discardLogger(), nil, nil, nil)
	require.NoError(t, session.open(context.Background()))

	err := session.close(context.Background())
	require.Error(t, err)

	var closeErr *CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, "/dev/ttyUSB0", closeErr.Device)
	assert.Equal(t, 3, closeErr.Attempts)
	assert.Equal(t, StateError, session.State())
}

func TestSessionWriteRequiresConnection(t *testing.T) {
	session := newSession("/dev/ttyUSB0", DefaultConfig(), discardLogger(), nil, nil, nil)

	_, err := session.Write([]byte("AT\r\n"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSessionWriteUpdatesStats(t *testing.T) {
	fake := &fakeHandle{}
	withFakeHandle(t, func(string, Config) (handle, error) { return fake, nil })

	cfg := DefaultConfig()
	cfg.SettleDelay = time.Millisecond
	session := newSession("/dev/ttyUSB0", cfg, discardLogger(), nil, nil, nil)
	require.NoError(t, session.open(context.Background()))
	defer session.close(context.Background())

	n, err := session.Write([]byte("AT+RESET\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, []byte("AT+RESET\r\n"), fake.writtenBytes())

	stats := session.Stats()
	assert.Equal(t, uint64(10), stats.SentBytes)
	assert.Equal(t, uint64(1), stats.SentMessages)
}

func TestSessionReadFailureEntersErrorState(t *testing.T) {
	fake := &fakeHandle{}
	withFakeHandle(t, func(string, Config) (handle, error) { return fake, nil })

	var mu sync.Mutex
	var sawDisconnect bool
	publish := func(e Event) {
		if ee, ok := e.(ErrorEvent); ok {
			mu.Lock()
			sawDisconnect = sawDisconnect || ee.Message != ""
			mu.Unlock()
		}
	}

	cfg := DefaultConfig()
	session := newSession("/dev/ttyUSB0", cfg, discardLogger(), nil, nil, publish)
	require.NoError(t, session.open(context.Background()))

	fake.failReads(errors.New("input/output error"))

	assert.Eventually(t, func() bool {
		return session.State() == StateError
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, sawDisconnect)
}

func TestSessionReconnectsAfterReadFailure(t *testing.T) {
	first := &fakeHandle{}
	second := &fakeHandle{}
	var mu sync.Mutex
	opens := 0
	withFakeHandle(t, func(string, Config) (handle, error) {
		mu.Lock()
		defer mu.Unlock()
		opens++
		if opens == 1 {
			return first, nil
		}
		return second, nil
	})

	cfg := DefaultConfig()
	cfg.AutoReconnect = true
	cfg.ReconnectWait = 5 * time.Millisecond
	cfg.ReconnectAttempts = 5
	cfg.OpenAttempts = 1
	cfg.OpenRetryWait = time.Millisecond
	cfg.CloseAttempts = 2
	cfg.CloseRetryWait = time.Millisecond
	cfg.SettleDelay = time.Millisecond

	session := newSession("/dev/ttyUSB0", cfg, discardLogger(), nil, nil, nil)
	require.NoError(t, session.open(context.Background()))

	first.failReads(errors.New("input/output error"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return opens >= 2
	}, 2*time.Second, 5*time.Millisecond, "read failure must trigger a second open before the reconnect completes")

	assert.Eventually(t, func() bool {
		return session.State() == StateConnected
	}, 2*time.Second, 5*time.Millisecond, "session must come back after the link recovers")

	assert.True(t, first.isClosed(), "reconnect must release the failed handle")

	mu.Lock()
	assert.Equal(t, 2, opens)
	mu.Unlock()

	require.NoError(t, session.close(context.Background()))
	assert.True(t, second.isClosed())
}

func TestSessionReconnectExhaustionReported(t *testing.T) {
	first := &fakeHandle{}
	var mu sync.Mutex
	opens := 0
	withFakeHandle(t, func(string, Config) (handle, error) {
		mu.Lock()
		defer mu.Unlock()
		opens++
		if opens == 1 {
			return first, nil
		}
		return nil, ErrDeviceNotFound
	})

	events := make(chan Event, 64)
	publish := func(e Event) {
		select {
		case events <- e:
		default:
		}
	}

	cfg := DefaultConfig()
	cfg.AutoReconnect = true
	cfg.ReconnectWait = 5 * time.Millisecond
	cfg.ReconnectAttempts = 2
	cfg.OpenAttempts = 1
	cfg.OpenRetryWait = time.Millisecond
	cfg.CloseAttempts = 2
	cfg.CloseRetryWait = time.Millisecond
	cfg.SettleDelay = time.Millisecond

	session := newSession("/dev/ttyUSB0", cfg, discardLogger(), nil, nil, publish)
	require.NoError(t, session.open(context.Background()))

	first.failReads(errors.New("input/output error"))

	waitForEvent(t, events, func(e Event) bool {
		ee, ok := e.(ErrorEvent)
		return ok && ee.Message == ErrReconnectExhausted.Error()
	})
	assert.Equal(t, StateError, session.State())
}
