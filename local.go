package xstream

import (
	"runtime"
	"sync"
)

// Per-goroutine runtime-local state: the current execution stream and the
// currently running thread or tasklet. This is the moral equivalent of the
// per-kernel-thread pointer a native runtime would keep in TLS; here it is
// keyed by goroutine ID and maintained at context-switch boundaries.
type localState struct {
	xstream *Xstream
	thread  *Thread
	task    *Task
}

var locals sync.Map // goroutine ID (uint64) -> *localState

// localInit registers and returns local state for the calling goroutine.
func localInit() *localState {
	ls := &localState{}
	locals.Store(getGoroutineID(), ls)
	return ls
}

// localGet returns the calling goroutine's local state, or nil when the
// goroutine is not owned by the runtime (an external caller).
func localGet() *localState {
	v, ok := locals.Load(getGoroutineID())
	if !ok {
		return nil
	}
	return v.(*localState)
}

// localFinalize discards the calling goroutine's local state.
func localFinalize() {
	locals.Delete(getGoroutineID())
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
