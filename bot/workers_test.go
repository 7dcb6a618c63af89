package bot

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartFlushWorker_FlushesUntilStopped(t *testing.T) {
	var calls atomic.Int32
	stop := startFlushWorker(context.Background(), 10*time.Millisecond, func() int {
		calls.Add(1)
		return 1
	})

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	stop()
	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, calls.Load())

	// A second stop is a no-op
	stop()
}

func TestStartFlushWorker_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	stop := startFlushWorker(ctx, 10*time.Millisecond, func() int {
		calls.Add(1)
		return 0
	})

	cancel()
	// Cleanup still returns once the goroutine has exited
	stop()
	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}
