package xstream_test

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xstream "github.com/joeycumines/go-xstream"
)

// syncWriter serializes writes from concurrently logging streams.
type syncWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestWithLogger_structuredEvents(t *testing.T) {
	var w syncWriter
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithWriter(&w),
			stumpy.WithTimeField(``),
		),
		stumpy.L.WithLevel(logiface.LevelTrace),
	).Logger()

	require.NoError(t, xstream.Init(xstream.WithLogger(logger)))

	es, err := xstream.XstreamCreate(nil)
	require.NoError(t, err)

	done := make(chan struct{})
	_, err = xstream.ThreadCreate(es, func() { close(done) })
	require.NoError(t, err)
	<-done

	require.NoError(t, es.Join())
	require.NoError(t, es.Free())
	require.NoError(t, xstream.Finalize())

	out := w.String()
	for _, want := range []string{
		"runtime initialized",
		"stream created",
		"stream loop start",
		"thread dispatch start",
		"thread dispatch end",
		"stream loop end",
		"runtime finalized",
	} {
		assert.True(t, strings.Contains(out, want), "expected log output to contain %q, got:\n%s", want, out)
	}
}

func TestWithLogger_disabledByDefault(t *testing.T) {
	// Logging is opt-in: a runtime without WithLogger must work and stay
	// silent.
	require.NoError(t, xstream.Init())
	es, err := xstream.XstreamCreate(nil)
	require.NoError(t, err)
	require.NoError(t, es.Join())
	require.NoError(t, es.Free())
	require.NoError(t, xstream.Finalize())
}
