package dwolla

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitWindow_WaitWithoutWindow(t *testing.T) {
	w := &rateLimitWindow{}

	done := make(chan error, 1)
	go func() { done <- w.wait(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait must return immediately when no window is armed")
	}
}

func TestRateLimitWindow_ConcurrentArmsShareOneWindow(t *testing.T) {
	w := &rateLimitWindow{}
	resetAt := time.Now().Add(30 * time.Millisecond)

	const arms = 5
	var wg sync.WaitGroup
	errs := make([]error, arms)

	start := time.Now()
	for i := 0; i < arms; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = w.arm(context.Background(), resetAt)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "armer %d", i)
	}
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond, "all armers must await the reset")
	assert.False(t, w.active(), "window must self-clear once elapsed")
}

func TestRateLimitWindow_WaitersReleasedTogether(t *testing.T) {
	w := &rateLimitWindow{}

	armed := make(chan struct{})
	go func() {
		close(armed)
		_ = w.arm(context.Background(), time.Now().Add(30*time.Millisecond))
	}()
	<-armed

	// Give arm a moment to install the channel.
	require.Eventually(t, w.active, time.Second, time.Millisecond)

	err := w.wait(context.Background())
	require.NoError(t, err)
	assert.False(t, w.active())
}

func TestRateLimitWindow_WaitHonorsCancellation(t *testing.T) {
	w := &rateLimitWindow{}
	go func() { _ = w.arm(context.Background(), time.Now().Add(10*time.Second)) }()
	require.Eventually(t, w.active, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := w.wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimitWindow_RearmAfterClear(t *testing.T) {
	w := &rateLimitWindow{}

	require.NoError(t, w.arm(context.Background(), time.Now().Add(5*time.Millisecond)))
	assert.False(t, w.active())

	require.NoError(t, w.arm(context.Background(), time.Now().Add(5*time.Millisecond)))
	assert.False(t, w.active())
}
