package xstream

import (
	"runtime"
	"sync/atomic"
)

// spinMutex is a minimal test-and-set spinlock. It guards the scheduler
// stack, whose critical sections are a push, a pop, or a state read, all
// short enough that parking a goroutine would cost more than spinning.
type spinMutex struct {
	v atomic.Uint32
}

func (m *spinMutex) lock() {
	for !m.v.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

func (m *spinMutex) unlock() {
	m.v.Store(0)
}

// held reports whether the lock is currently taken.
func (m *spinMutex) held() bool {
	return m.v.Load() != 0
}
