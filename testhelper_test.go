package xstream

import (
	"runtime"
	"testing"
	"time"
)

// initRuntime initializes the runtime for a test and finalizes it on
// cleanup. Tests using it share process-global state and therefore must
// not run in parallel.
func initRuntime(t *testing.T, opts ...InitOption) {
	t.Helper()
	if err := Init(opts...); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() {
		if err := Finalize(); err != nil {
			t.Errorf("Finalize failed: %v", err)
		}
	})
}

// waitFor spins until cond holds, yielding cooperatively, with a deadline
// guard so a broken condition fails the test instead of hanging it.
func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", msg)
		}
		if err := ThreadYield(); err != nil {
			runtime.Gosched()
		}
	}
}

// mustCreate creates a secondary stream and registers its teardown.
func mustCreate(t *testing.T, sched *Sched) *Xstream {
	t.Helper()
	es, err := XstreamCreate(sched)
	if err != nil {
		t.Fatalf("XstreamCreate failed: %v", err)
	}
	t.Cleanup(func() {
		if es.State() != StateTerminated {
			_ = es.Cancel()
		}
		_ = es.Free()
	})
	return es
}
