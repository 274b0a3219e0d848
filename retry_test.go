package serialscope

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := doRetry(context.Background(), retryConfig{
		attempts: 5,
		wait:     time.Millisecond,
	}, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoRetryExhaustsBudget(t *testing.T) {
	wantErr := errors.New("persistent")
	calls := 0
	err := doRetry(context.Background(), retryConfig{
		attempts: 3,
		wait:     time.Millisecond,
	}, func() error {
		calls++
		return wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, calls)
}

func TestDoRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- doRetry(ctx, retryConfig{
			attempts: 100,
			wait:     time.Hour,
		}, func() error {
			calls++
			return errors.New("always fails")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls, "cancellation during wait must not retry")
	case <-time.After(time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestDoRetryBackoffCapped(t *testing.T) {
	start := time.Now()
	err := doRetry(context.Background(), retryConfig{
		attempts:   4,
		wait:       time.Millisecond,
		maxWait:    2 * time.Millisecond,
		multiplier: 10,
	}, func() error {
		return errors.New("always fails")
	})

	assert.Error(t, err)
	// 1ms + 2ms + 2ms of waits, far below the uncapped 1+10+100ms
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
