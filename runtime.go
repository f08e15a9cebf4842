package xstream

import (
	"sync/atomic"

	"github.com/joeycumines/logiface"
)

// xstreamRegistry groups the global execution stream containers by
// lifecycle: streams never started, live streams, and terminated streams
// awaiting Free.
type xstreamRegistry struct {
	created contn
	active  contn
	dead    contn
}

// Runtime is the process-wide state of the threading runtime: the stream
// registries, the rank allocator, and the primary stream bound to the
// goroutine that called Init. All package-level operations resolve it
// through the single global slot, so there is at most one live runtime per
// process.
type Runtime struct {
	xstreams xstreamRegistry

	// rank is the monotonic rank allocator; reset (recreated) on Init.
	rank atomic.Uint64

	logger   *logiface.Logger[logiface.Event]
	affinity bool

	primary *Xstream

	// mainThread wraps the goroutine that called Init as a user-level
	// thread of the primary stream.
	mainThread *Thread
}

var globalRuntime atomic.Pointer[Runtime]

// currentRuntime returns the live runtime, or nil before Init or after
// Finalize.
func currentRuntime() *Runtime {
	return globalRuntime.Load()
}

// log returns the runtime's logger; a nil receiver or unset logger yields a
// nil logiface logger, which discards everything.
func (rt *Runtime) log() *logiface.Logger[logiface.Event] {
	if rt == nil {
		return nil
	}
	return rt.logger
}

// newRank allocates the next stream rank.
func (rt *Runtime) newRank() uint64 {
	return rt.rank.Add(1) - 1
}

// moveXstream re-registers a stream into the registry matching its current
// state: created, active (ready or running), or dead (terminated).
func (rt *Runtime) moveXstream(x *Xstream) {
	for _, c := range []*contn{&rt.xstreams.created, &rt.xstreams.active, &rt.xstreams.dead} {
		if c.remove(&x.el) {
			break
		}
	}
	switch x.state.Load() {
	case StateReady, StateRunning:
		rt.xstreams.active.pushBack(&x.el)
	case StateTerminated:
		rt.xstreams.dead.pushBack(&x.el)
	default:
		rt.xstreams.created.pushBack(&x.el)
	}
}

// dropXstream removes a stream from every registry.
func (rt *Runtime) dropXstream(x *Xstream) {
	for _, c := range []*contn{&rt.xstreams.created, &rt.xstreams.active, &rt.xstreams.dead} {
		if c.remove(&x.el) {
			return
		}
	}
}

// Init initializes the runtime: it creates the primary execution stream
// with the default scheduler, binds it to the calling goroutine, and wraps
// that goroutine as the primary stream's main user-level thread. Calling
// Init while a runtime is live returns ErrWrongState.
func Init(opts ...InitOption) error {
	cfg, err := resolveInitOptions(opts)
	if err != nil {
		return err
	}
	rt := &Runtime{logger: cfg.logger, affinity: cfg.affinity}
	if !globalRuntime.CompareAndSwap(nil, rt) {
		return wrapErrf(ErrWrongState, "runtime already initialized")
	}

	es, err := xstreamCreate(rt, newDefaultSched())
	if err != nil {
		globalRuntime.Store(nil)
		return err
	}
	es.typ = XstreamPrimary
	rt.primary = es
	if err := es.Start(); err != nil {
		globalRuntime.Store(nil)
		return err
	}

	mt := newCallerThread(es)
	rt.mainThread = mt
	ls := localInit()
	ls.xstream = es
	ls.thread = mt

	rt.log().Debug().
		Uint64("rank", es.Rank()).
		Log("runtime initialized")
	return nil
}

// newCallerThread wraps the calling goroutine as a running user-level
// thread of the given stream. Its context has no goroutine of its own; the
// caller's own stack is the thread's stack.
func newCallerThread(xs *Xstream) *Thread {
	t := &Thread{
		id:          threadIDCounter.Add(1),
		pool:        xs.mainSched.pools[0],
		lastXstream: xs,
		done:        make(chan struct{}),
	}
	t.el.value = t
	t.state.Store(int32(ThreadRunning))
	t.ctx = newThreadContext(t)
	t.ctx.link = xs.mainSched.ctx
	return t
}

// Finalize tears the runtime down. It must be called from the goroutine
// that called Init. The primary stream drains its pools, terminates, and
// hands control back; the global runtime slot is then cleared so Init may
// be called again.
func Finalize() error {
	rt := currentRuntime()
	if rt == nil {
		return ErrUninitialized
	}
	ls := localGet()
	if ls == nil || ls.thread != rt.mainThread {
		return wrapErrf(ErrInvalidXstream, "finalize must run on the goroutine that called Init")
	}

	p := rt.primary
	mt := rt.mainThread

	// Suspend the caller and ask the primary stream to drain; the stream's
	// loop switches control back here once it has terminated.
	mt.request.set(threadReqBlock)
	mt.setState(ThreadBlocked)
	p.request.set(xstreamReqJoin)
	ctxSwitch(mt.ctx, p.mainSched.ctx)

	rt.moveXstream(p)
	mt.setState(ThreadTerminated)
	mt.termOnce.Do(func() { close(mt.done) })

	localFinalize()
	globalRuntime.Store(nil)

	rt.log().Debug().Log("runtime finalized")
	return nil
}

// NumXstreams returns the number of existing execution streams: those
// created but never started plus the live ones. Terminated streams
// awaiting Free are excluded.
func NumXstreams() (int, error) {
	rt := currentRuntime()
	if rt == nil {
		return 0, ErrUninitialized
	}
	return rt.xstreams.created.len() + rt.xstreams.active.len(), nil
}
