package xstream

import (
	"sync/atomic"
)

// Request bits for an execution stream. Producers set bits with an atomic
// or; the stream's own loop observes them at its loop boundary.
const (
	// xstreamReqJoin asks the stream to terminate after draining its pools.
	xstreamReqJoin uint32 = 1 << iota
	// xstreamReqExit asks the stream to terminate after the current
	// scheduling pass, regardless of remaining work.
	xstreamReqExit
	// xstreamReqCancel is like xstreamReqExit but records that the stream
	// was cancelled by an external caller.
	xstreamReqCancel
)

// Request bits for a user-level thread. Observed at dispatch entry and on
// the return edge of a dispatch.
const (
	// threadReqTerminate is set by the thread wrapper on natural completion.
	threadReqTerminate uint32 = 1 << iota
	// threadReqCancel aborts the thread at its next dispatch boundary.
	threadReqCancel
	// threadReqExit is set by the thread itself to self-terminate.
	threadReqExit
	// threadReqBlock suspends the thread: it is not re-pushed after the
	// current dispatch, and the bit is cleared once observed.
	threadReqBlock
	// threadReqMigrate moves the thread to a different pool at its next
	// dispatch entry; the target pool travels in the migration argument
	// slot, guarded by the thread's mutex.
	threadReqMigrate
)

// Request bits for a tasklet.
const (
	// taskReqCancel aborts the tasklet before it runs.
	taskReqCancel uint32 = 1 << iota
)

// Request bits for a scheduler, set by CheckEvents (or directly via
// Sched.Finish and Sched.Exit) and consulted by the run function.
const (
	// schedReqFinish asks the run function to return once its pools drain.
	schedReqFinish uint32 = 1 << iota
	// schedReqExit asks the run function to return immediately.
	schedReqExit
)

// reqWord is an atomic 32-bit bitset of pending asynchronous requests.
// Producers or bits in; the single consumer tests and clears them at the
// documented safe points. The atomic or/and pair gives the producer's set a
// happens-before edge to the consumer's observation.
type reqWord struct {
	v atomic.Uint32
}

// set ors the given bits into the word.
func (r *reqWord) set(bits uint32) {
	r.v.Or(bits)
}

// clear removes the given bits from the word.
func (r *reqWord) clear(bits uint32) {
	r.v.And(^bits)
}

// load returns the current bitset.
func (r *reqWord) load() uint32 {
	return r.v.Load()
}

// any reports whether any of the given bits are set.
func (r *reqWord) any(bits uint32) bool {
	return r.v.Load()&bits != 0
}
