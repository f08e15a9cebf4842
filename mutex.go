package xstream

import (
	"runtime"
	"sync/atomic"
)

// Mutex is a mutual exclusion lock for user-level threads. A contended
// Lock yields the calling thread instead of parking its goroutine, so the
// stream keeps scheduling other units while the holder runs elsewhere.
// The zero value is an unlocked mutex. It must not be used from a tasklet.
type Mutex struct {
	v atomic.Uint32
}

// Lock acquires the mutex, yielding cooperatively while contended. Called
// from outside a user-level thread it degrades to spinning on the Go
// scheduler.
func (m *Mutex) Lock() {
	for !m.TryLock() {
		if err := ThreadYield(); err != nil {
			runtime.Gosched()
		}
	}
}

// TryLock attempts to acquire the mutex without yielding.
func (m *Mutex) TryLock() bool {
	return m.v.CompareAndSwap(0, 1)
}

// Unlock releases the mutex. It is not an error to unlock from a different
// thread than the locker; the lock is a flag, not an owner record.
func (m *Mutex) Unlock() {
	m.v.Store(0)
}
