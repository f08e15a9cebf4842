package xstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMutexCounter is the classic smoke test for the whole runtime: many
// user-level threads spread over several streams, each yielding around a
// critical section protected by a cooperative mutex.
func TestMutexCounter(t *testing.T) {
	initRuntime(t)

	const (
		numStreams        = 4
		threadsPerStream  = 4
		expectedIncrement = numStreams * threadsPerStream
	)

	var (
		mu      Mutex
		counter int
	)

	streams := make([]*Xstream, numStreams)
	for i := range streams {
		streams[i] = mustCreate(t, nil)
	}

	threads := make([]*Thread, 0, expectedIncrement)
	for _, es := range streams {
		for range threadsPerStream {
			th, err := ThreadCreate(es, func() {
				_ = ThreadYield()

				mu.Lock()
				counter++
				mu.Unlock()

				_ = ThreadYield()
			})
			require.NoError(t, err)
			threads = append(threads, th)
		}
	}

	_ = ThreadYield()

	for _, th := range threads {
		require.NoError(t, th.Join())
	}
	for _, es := range streams {
		require.NoError(t, es.Join())
		require.NoError(t, es.Free())
	}

	mu.Lock()
	got := counter
	mu.Unlock()
	assert.Equal(t, expectedIncrement, got)
}

func TestMutex_tryLock(t *testing.T) {
	t.Parallel()

	var mu Mutex
	require.True(t, mu.TryLock())
	require.False(t, mu.TryLock())
	mu.Unlock()
	require.True(t, mu.TryLock())
	mu.Unlock()
}
