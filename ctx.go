package xstream

// Context operations: the coroutine handoff primitive backing user-level
// threads, and the kernel-level context backing execution streams.
//
// A threadContext maps a stackful coroutine onto a goroutine parked on a
// capacity-1 handoff channel. A context switch sends the switching-out
// context to the target's channel and then receives on its own; the value
// received identifies whichever context later switches back in, which is
// how the dispatch loop re-reads the current thread after a suspension
// (the thread that returns control need not be the one switched into).
//
// The capacity-1 buffer makes the handoff race-free: a unit may be pushed
// to another stream's pool and dispatched there before its goroutine has
// finished parking; the wake token simply waits in the buffer.

import (
	"runtime"
)

// threadContext is the saved execution context of a user-level thread or of
// a scheduler hosted on an execution stream.
type threadContext struct {
	// ch is the handoff channel this context parks on. Capacity 1.
	ch chan *threadContext
	// link is the context control returns to when the owner yields or
	// finishes. Retargeted by the dispatching stream before every switch;
	// single-stream-local by contract, so unsynchronised.
	link *threadContext
	// thread is the user-level thread owning this context, or the host
	// thread for a scheduler context.
	thread *Thread
}

// poisonCtx is delivered to a parked context to unwind its goroutine
// without scheduling it again.
var poisonCtx = &threadContext{}

func newThreadContext(t *Thread) *threadContext {
	return &threadContext{ch: make(chan *threadContext, 1), thread: t}
}

// ctxSwitch transfers control from one context to another and parks the
// caller. It returns the context that eventually switches control back.
func ctxSwitch(from, to *threadContext) *threadContext {
	to.ch <- from
	return <-from.ch
}

// ctxFinalSwitch transfers control without parking; the calling goroutine
// is about to exit. Only the single currently running unit of a stream can
// send into its scheduler's context, so a live target's buffer is always
// empty and the send succeeds; should the target hold a stale token, there
// is nobody to hand control to and the token is dropped.
func ctxFinalSwitch(from, to *threadContext) {
	select {
	case to.ch <- from:
	default:
	}
}

// ctxPoison wakes a parked context with the poison token, unwinding its
// goroutine. The non-blocking send makes it safe against contexts whose
// goroutine has already exited.
func ctxPoison(to *threadContext) {
	select {
	case to.ch <- poisonCtx:
	default:
	}
}

// kernelContext is the kernel-level execution context of an execution
// stream: a dedicated goroutine, optionally locked to an OS thread and
// pinned to a CPU.
type kernelContext struct {
	done chan struct{}
}

// ctxCreate runs entry on a new kernel context. When lockThread is set the
// goroutine is locked to its OS thread for the entry's duration, which is
// required for CPU affinity to be meaningful.
func ctxCreate(entry func(), lockThread bool) *kernelContext {
	c := &kernelContext{done: make(chan struct{})}
	go func() {
		defer close(c.done)
		if lockThread {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
		}
		entry()
	}()
	return c
}

// ctxSelf returns a kernel context describing the calling goroutine. It
// cannot be joined.
func ctxSelf() *kernelContext {
	return &kernelContext{}
}

// join blocks until the context's entry function returns. Joining the
// calling goroutine's own context is a deadlock and is guarded against by
// the callers.
func (c *kernelContext) join() {
	if c.done != nil {
		<-c.done
	}
}
