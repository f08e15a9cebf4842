// Package xstream provides a lightweight user-level threading runtime for
// Go, multiplexing many cooperatively scheduled work units onto a small
// number of execution streams.
//
// # Architecture
//
// The runtime is built around execution streams ([Xstream]), each backed by
// its own kernel-level context. An execution stream drives a stack of
// schedulers ([Sched]); the scheduler on top of the stack repeatedly picks
// work units from its pools ([Pool]) and hands them back to the stream via
// [RunUnit]. Two kinds of work unit exist: user-level threads ([Thread],
// stackful, may yield, block, and migrate between streams) and tasklets
// ([Task], stackless, run to completion).
//
// Asynchronous requests (exit, cancel, join, terminate, block, migrate)
// are signalled through per-stream and per-thread atomic request words and
// honoured at well-defined safe points: the stream's loop boundary, the
// entry to dispatch, and the return edge of a dispatched unit.
//
// # Execution Model
//
// One primary execution stream is bound to the goroutine that calls [Init];
// secondary streams each own a dedicated context created by [XstreamCreate]
// and [Xstream.Start]. Within a single stream execution is cooperative and
// strictly sequential: at most one thread or tasklet runs at a time, and
// only threads may suspend. Across streams the runtime is fully concurrent;
// state transitions linearise through compare-and-swap and request bits use
// or/and on atomic words.
//
// # Thread Safety
//
//   - [XstreamCreate], [Xstream.Start], [Xstream.Cancel], [ThreadCreate],
//     [TaskCreate], and [Thread.Resume] are safe to call from any
//     runtime-owned goroutine
//   - [Xstream.Join], [Exit], and [Xstream.Free] must be called from a
//     user-level thread; they yield cooperatively while waiting
//   - [RunUnit] and [CheckEvents] are scheduler-author API and must only be
//     called from a scheduler's run function
//
// # Usage
//
//	if err := xstream.Init(); err != nil {
//	    log.Fatal(err)
//	}
//	defer xstream.Finalize()
//
//	es, err := xstream.XstreamCreate(nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	_, _ = xstream.ThreadCreate(es, func() {
//	    fmt.Println("hello from a user-level thread")
//	})
//
//	_ = es.Join()
//	_ = es.Free()
//
// # Error Types
//
// All failures are reported as wrapped sentinel errors matching via
// [errors.Is]: [ErrUninitialized], [ErrInvalidXstream], [ErrInvalidUnit],
// [ErrInvalidSched], [ErrWrongState], [ErrPoolAlreadyBound],
// [ErrOutOfMemory]. Losing a state-transition race is not an error: calls
// such as a second [Xstream.Start] reduce to no-ops.
package xstream
