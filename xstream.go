package xstream

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// XstreamType discriminates the primary execution stream from secondary
// ones.
type XstreamType int

const (
	// XstreamSecondary streams own a dedicated kernel context created at
	// Start.
	XstreamSecondary XstreamType = iota
	// XstreamPrimary is the unique stream bound to the goroutine that
	// called Init. It cannot be freed, joined, or cancelled.
	XstreamPrimary
)

// String returns a human-readable representation of the type.
func (t XstreamType) String() string {
	switch t {
	case XstreamPrimary:
		return "Primary"
	case XstreamSecondary:
		return "Secondary"
	default:
		return "Unknown"
	}
}

// Xstream is an execution stream: a kernel-level context plus the stack of
// schedulers driving it. It is the runtime's unit of parallelism. Create
// instances with XstreamCreate; the primary stream is created by Init.
type Xstream struct {
	// Prevent copying
	_ [0]func()

	rank atomic.Uint64
	typ  XstreamType

	// state is the SMP-visible lifecycle state machine.
	state fastState

	// request is the stream's pending asynchronous requests, consumed by
	// the stream's own loop at its loop boundary.
	request reqWord

	// mu guards the name and the created-to-terminated join short-circuit.
	mu   sync.Mutex
	name string

	// topSchedMu serialises scheduler stack push/pop against migration
	// readers inspecting scheduler state.
	topSchedMu spinMutex

	// scheds is the scheduler stack; the top entry is currently
	// scheduling. Guarded by topSchedMu.
	scheds []*Sched

	// mainSched is the bottom of the scheduler stack.
	mainSched *Sched

	// ctx is the stream's kernel context; nil until Start.
	ctx *kernelContext

	rt *Runtime
	el elem
}

// XstreamCreate creates a new secondary execution stream in the created
// state, installing sched as its main scheduler and binding the
// scheduler's pools. A nil sched selects the runtime-provided default
// scheduler.
func XstreamCreate(sched *Sched) (*Xstream, error) {
	rt := currentRuntime()
	if rt == nil {
		return nil, ErrUninitialized
	}
	if sched == nil {
		sched = newDefaultSched()
	} else if sched.run == nil {
		return nil, ErrInvalidSched
	} else if sched.isMain() {
		return nil, wrapErrf(ErrInvalidSched, "scheduler is already another stream's main scheduler")
	}
	return xstreamCreate(rt, sched)
}

func xstreamCreate(rt *Runtime, sched *Sched) (*Xstream, error) {
	x := &Xstream{typ: XstreamSecondary, rt: rt}
	x.el.value = x
	x.rank.Store(rt.newRank())
	if err := x.setMainSched(sched); err != nil {
		return nil, err
	}
	rt.xstreams.created.pushBack(&x.el)
	rt.log().Debug().
		Uint64("rank", x.Rank()).
		Log("stream created")
	return x, nil
}

// Start moves the stream from created to ready and launches its kernel
// context. Starting a stream that is already past created is a no-op, so
// Start is idempotent and safe to race.
func (x *Xstream) Start() error {
	if x == nil {
		return ErrInvalidXstream
	}
	if !x.state.TryTransition(StateCreated, StateReady) {
		return nil
	}

	x.pushSched(x.mainSched)
	x.mainSched.ctx = &threadContext{ch: make(chan *threadContext, 1)}
	x.mainSched.thread = newMainSchedThread(x, x.mainSched.ctx)

	// Re-register as active before the loop can run: the loop's own move
	// to the dead registry must strictly follow this one.
	x.rt.moveXstream(x)

	if x.typ == XstreamPrimary {
		x.ctx = ctxSelf()
		if mt := x.rt.mainThread; mt != nil {
			mt.ctx.link = x.mainSched.ctx
		}
		go x.primaryMain()
	} else {
		x.ctx = ctxCreate(x.secondaryMain, x.rt.affinity)
	}
	return nil
}

// Join blocks, yielding cooperatively, until the stream terminates. A
// stream that was never started is terminated on the spot without its
// kernel context ever being created.
func (x *Xstream) Join() error {
	if x == nil {
		return ErrInvalidXstream
	}
	rt := currentRuntime()
	if rt == nil {
		return ErrUninitialized
	}
	ls := localGet()
	if ls == nil {
		return wrapErrf(ErrInvalidXstream, "join called from a goroutine the runtime does not own")
	}
	if ls.xstream == x {
		return wrapErrf(ErrInvalidXstream, "a stream cannot join itself")
	}
	if x.typ == XstreamPrimary {
		return wrapErrf(ErrInvalidXstream, "the primary stream cannot be joined")
	}

	if x.state.Load() == StateCreated {
		x.mu.Lock()
		// If the state changed meanwhile the stream is live and must be
		// joined the long way.
		if x.state.TryTransition(StateCreated, StateTerminated) {
			rt.moveXstream(x)
			x.mu.Unlock()
			return nil
		}
		x.mu.Unlock()
	}

	x.request.set(xstreamReqJoin)
	for x.state.Load() != StateTerminated {
		if err := ThreadYield(); err != nil {
			runtime.Gosched()
		}
	}
	if x.ctx != nil {
		x.ctx.join()
	}
	return nil
}

// Free releases the stream. A live stream is joined first. The handle must
// not be used afterwards.
func (x *Xstream) Free() error {
	if x == nil {
		return ErrInvalidXstream
	}
	rt := currentRuntime()
	if rt == nil {
		return ErrUninitialized
	}
	ls := localGet()
	if ls == nil {
		return wrapErrf(ErrInvalidXstream, "free called from a goroutine the runtime does not own")
	}
	if ls.xstream == x {
		return wrapErrf(ErrInvalidXstream, "a stream cannot free itself")
	}
	if x.typ == XstreamPrimary {
		return wrapErrf(ErrInvalidXstream, "the primary stream cannot be freed")
	}

	switch x.state.Load() {
	case StateReady, StateRunning:
		if err := x.Join(); err != nil {
			return err
		}
	case StateCreated:
		x.state.TryTransition(StateCreated, StateTerminated)
	}

	x.drainPools()
	rt.dropXstream(x)

	x.mu.Lock()
	x.name = ""
	x.mu.Unlock()

	x.discardMainSched()
	x.topSchedMu.lock()
	x.scheds = nil
	x.topSchedMu.unlock()
	x.ctx = nil
	return nil
}

// Cancel requests the stream's cancellation; it terminates at its next
// loop boundary without draining remaining work.
func (x *Xstream) Cancel() error {
	if x == nil {
		return ErrInvalidXstream
	}
	if x.typ == XstreamPrimary {
		return wrapErrf(ErrInvalidXstream, "the primary stream cannot be cancelled")
	}
	x.request.set(xstreamReqCancel)
	return nil
}

// Exit terminates the stream the calling user-level thread runs on. On
// success it does not return; control leaves through the scheduler's
// teardown path and the thread is reclaimed when the stream is freed.
func Exit() error {
	rt := currentRuntime()
	if rt == nil {
		return ErrUninitialized
	}
	ls := localGet()
	if ls == nil || ls.thread == nil {
		return wrapErrf(ErrInvalidXstream, "exit requires a user-level thread")
	}
	x := ls.xstream
	if x.typ == XstreamPrimary {
		return wrapErrf(ErrInvalidXstream, "the primary stream cannot exit")
	}
	x.request.set(xstreamReqExit)
	for {
		ls.thread.yield()
	}
}

// Self returns the execution stream associated with the calling work unit.
func Self() (*Xstream, error) {
	if currentRuntime() == nil {
		return nil, ErrUninitialized
	}
	ls := localGet()
	if ls == nil || ls.xstream == nil {
		return nil, ErrInvalidXstream
	}
	return ls.xstream, nil
}

// SelfRank returns the rank of the calling work unit's stream.
func SelfRank() (uint64, error) {
	x, err := Self()
	if err != nil {
		return 0, err
	}
	return x.Rank(), nil
}

// Rank returns the stream's rank.
func (x *Xstream) Rank() uint64 {
	return x.rank.Load()
}

// SetRank overrides the stream's rank. Ranks exist for identification
// only; uniqueness is not enforced after an override.
func (x *Xstream) SetRank(rank uint64) error {
	if x == nil {
		return ErrInvalidXstream
	}
	x.rank.Store(rank)
	return nil
}

// State returns the stream's current lifecycle state.
func (x *Xstream) State() XstreamState {
	return x.state.Load()
}

// Type returns whether the stream is primary or secondary.
func (x *Xstream) Type() XstreamType {
	return x.typ
}

// IsPrimary reports whether the stream is the primary stream.
func (x *Xstream) IsPrimary() bool {
	return x.typ == XstreamPrimary
}

// Equal reports whether two handles refer to the same stream.
func (x *Xstream) Equal(y *Xstream) bool {
	return x == y
}

// SetName sets the stream's name.
func (x *Xstream) SetName(name string) error {
	if x == nil {
		return ErrInvalidXstream
	}
	x.mu.Lock()
	x.name = name
	x.mu.Unlock()
	return nil
}

// Name returns the stream's name.
func (x *Xstream) Name() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.name
}

// MainSched returns the stream's main scheduler.
func (x *Xstream) MainSched() *Sched {
	return x.mainSched
}

// MainPools returns the pool set of the stream's main scheduler.
func (x *Xstream) MainPools() []*Pool {
	if x.mainSched == nil {
		return nil
	}
	return x.mainSched.Pools()
}

// SetMainSched replaces the stream's main scheduler. Permitted only while
// the stream is created or ready; every pool of the new scheduler is bound
// to this stream, failing with ErrPoolAlreadyBound (and unwinding the
// partial binding) if any pool is consumed elsewhere. On the primary
// stream the new scheduler is forced automatic and the stream restarts
// immediately.
func (x *Xstream) SetMainSched(s *Sched) error {
	if x == nil {
		return ErrInvalidXstream
	}
	if s == nil {
		s = newDefaultSched()
	} else if s.run == nil {
		return ErrInvalidSched
	}
	return x.setMainSched(s)
}

func (x *Xstream) setMainSched(s *Sched) error {
	st := x.state.Load()
	if st != StateCreated && st != StateReady {
		return wrapErrf(ErrWrongState, "main scheduler may only change while created or ready; stream is %s", st)
	}

	var bound []*Pool
	for _, p := range s.pools {
		if err := p.setConsumer(x); err != nil {
			for _, q := range bound {
				q.clearConsumer(x)
			}
			return err
		}
		bound = append(bound, p)
	}

	if old := x.mainSched; old != nil {
		if x.state.Load() == StateReady {
			popped := x.popSched()
			popped.setState(SchedStopped)
			x.topSchedMu.unlock()
		}
		old.setAssoc(schedAssocNone)
		inNew := make(map[*Pool]bool, len(s.pools))
		for _, p := range s.pools {
			inNew[p] = true
		}
		for _, p := range old.pools {
			if !inNew[p] {
				p.clearConsumer(x)
			}
		}
		if old.ctx != nil {
			ctxPoison(old.ctx)
		}
		x.mainSched = nil
	}

	// The main scheduler is context-switched into and out of uniformly, so
	// it must be ULT-hosted.
	s.typ = SchedULT
	s.setAssoc(schedAssocMain)
	x.mainSched = s

	if x.typ == XstreamPrimary {
		// The primary stream never finishes on its own, so its main
		// scheduler must be reclaimed implicitly at Finalize.
		s.automatic = true
		if mt := x.rt.mainThread; mt != nil {
			mt.mu.Lock()
			mt.pool = s.pools[0]
			mt.mu.Unlock()
		}
		x.state.Store(StateCreated)
		return x.Start()
	}
	return nil
}

// --- scheduler stack ---

func (x *Xstream) pushSched(s *Sched) {
	x.topSchedMu.lock()
	x.scheds = append(x.scheds, s)
	x.topSchedMu.unlock()
}

// popSched removes and returns the top scheduler, leaving the stack lock
// held. The caller marks the scheduler stopped before releasing, so a
// concurrent migration reader never observes a popped-but-running
// scheduler.
func (x *Xstream) popSched() *Sched {
	x.topSchedMu.lock()
	s := x.scheds[len(x.scheds)-1]
	x.scheds[len(x.scheds)-1] = nil
	x.scheds = x.scheds[:len(x.scheds)-1]
	return s
}

// topSched returns the scheduler currently on top of the stack, or nil.
func (x *Xstream) topSched() *Sched {
	x.topSchedMu.lock()
	defer x.topSchedMu.unlock()
	if len(x.scheds) == 0 {
		return nil
	}
	return x.scheds[len(x.scheds)-1]
}

// topSchedCtx returns the context of the scheduler currently on top.
func (x *Xstream) topSchedCtx() *threadContext {
	s := x.topSched()
	if s == nil {
		panic("xstream: stream has no scheduler on its stack")
	}
	return s.ctx
}

// schedDepth returns the current scheduler stack depth.
func (x *Xstream) schedDepth() int {
	x.topSchedMu.lock()
	defer x.topSchedMu.unlock()
	return len(x.scheds)
}

// --- stream loop ---

// secondaryMain is the loop entry of a secondary stream's kernel context.
func (x *Xstream) secondaryMain() {
	if x.rt.affinity {
		if err := setAffinity(x.Rank()); err != nil {
			x.rt.log().Warning().
				Uint64("rank", x.Rank()).
				Err(err).
				Log("failed to set stream affinity")
		}
	}

	ls := localInit()
	ls.xstream = x
	ls.thread = x.mainSched.thread

	x.rt.log().Debug().Uint64("rank", x.Rank()).Log("stream loop start")

	x.loopBody()

	x.state.Store(StateTerminated)
	x.rt.moveXstream(x)
	localFinalize()

	x.rt.log().Debug().Uint64("rank", x.Rank()).Log("stream loop end")
}

// primaryMain is the loop entry of the primary stream's scheduler context.
// It parks until the caller thread first yields into it (or Finalize asks
// it to drain), and on termination hands control back to the goroutine
// that called Init.
func (x *Xstream) primaryMain() {
	s := x.mainSched
	ls := localInit()
	ls.xstream = x
	ls.thread = s.thread

	prev := <-s.ctx.ch
	if prev == poisonCtx {
		// The main scheduler was replaced before ever scheduling.
		localFinalize()
		return
	}
	if t := prev.thread; t != nil {
		x.processReturned(t)
	}

	x.loopBody()

	x.state.Store(StateTerminated)
	localFinalize()
	ctxFinalSwitch(s.ctx, x.rt.mainThread.ctx)
}

// loopBody runs scheduling passes until an exit, cancel, or join request
// is observed at the loop boundary.
func (x *Xstream) loopBody() {
	for {
		x.schedule()

		req := x.request.load()
		// Exit and cancel terminate regardless of remaining work units.
		if req&(xstreamReqExit|xstreamReqCancel) != 0 {
			break
		}
		// Join terminates after the scheduler has drained.
		if req&xstreamReqJoin != 0 {
			break
		}
	}
}

// schedule runs one pass of the main scheduler.
func (x *Xstream) schedule() {
	x.state.Store(StateRunning)

	s := x.mainSched
	s.setState(SchedRunning)
	s.run(s)
	s.setState(SchedTerminated)

	x.state.Store(StateReady)
}

// --- dispatch ---

// RunUnit executes one work unit on the calling stream: user-level threads
// are context-switched into, tasklets are invoked directly. Schedulers call
// it from their run function after picking a unit from one of their pools.
// A unit of unknown kind is an implementer bug in the scheduler or pool and
// panics.
func RunUnit(u Unit, pool *Pool) error {
	if currentRuntime() == nil {
		return ErrUninitialized
	}
	ls := localGet()
	if ls == nil || ls.xstream == nil {
		return ErrInvalidXstream
	}
	if u == nil {
		return ErrInvalidUnit
	}
	_ = pool
	switch v := u.(type) {
	case *Thread:
		return ls.xstream.scheduleThread(v)
	case *Task:
		return ls.xstream.scheduleTask(v)
	default:
		panic("xstream: work unit is neither a thread nor a tasklet")
	}
}

// scheduleThread dispatches one user-level thread: honour pending requests,
// link the thread's context back to the current scheduler, switch in, and
// on return process whichever thread handed control back (it need not be
// the one switched into).
func (x *Xstream) scheduleThread(t *Thread) error {
	if t.request.any(threadReqCancel | threadReqExit) {
		x.terminateThread(t)
		return nil
	}
	if t.request.any(threadReqMigrate) {
		return x.migrateThread(t)
	}

	ls := localGet()
	lastThread, lastTask := ls.thread, ls.task
	ls.thread, ls.task = t, nil

	schedCtx := x.topSchedCtx()
	t.ctx.link = schedCtx

	if t.isSched != nil {
		t.isSched.ctx = t.ctx
		x.pushSched(t.isSched)
		t.isSched.setState(SchedRunning)
	}

	t.lastXstream = x
	t.setState(ThreadRunning)

	x.rt.log().Trace().
		Uint64("rank", x.Rank()).
		Uint64("thread", t.id).
		Log("thread dispatch start")

	prev := ctxSwitch(schedCtx, t.ctx)
	if prev == poisonCtx {
		ls.thread, ls.task = lastThread, lastTask
		return nil
	}

	// The thread that handed control back may differ from the one switched
	// into: a blocked thread can resume and finish on another stream.
	cur := prev.thread
	nx := cur.lastXstream

	nx.rt.log().Trace().
		Uint64("rank", nx.Rank()).
		Uint64("thread", cur.id).
		Log("thread dispatch end")

	if cur.isSched != nil {
		popped := nx.popSched()
		// A migration reading scheduler state must observe the transition
		// before the scheduler can be discarded.
		popped.setState(SchedStopped)
		nx.topSchedMu.unlock()
	}

	nx.processReturned(cur)

	ls.thread, ls.task = lastThread, lastTask
	return nil
}

// processReturned consumes a thread's request word after it returned
// control: terminate beats block beats re-push.
func (x *Xstream) processReturned(t *Thread) {
	req := t.request.load()
	switch {
	case req&(threadReqTerminate|threadReqCancel|threadReqExit) != 0:
		x.terminateThread(t)
	case req&threadReqBlock != 0:
		t.request.clear(threadReqBlock)
	default:
		t.setState(ThreadReady)
		_ = t.currentPool().Push(t)
	}
}

// scheduleTask dispatches one tasklet; it runs to completion on the
// calling goroutine.
func (x *Xstream) scheduleTask(t *Task) error {
	if t.request.any(taskReqCancel) {
		x.terminateTask(t)
		return nil
	}

	ls := localGet()
	lastThread, lastTask := ls.thread, ls.task
	ls.thread, ls.task = nil, t

	t.setState(TaskRunning)
	t.xstream = x

	if t.isSched != nil {
		cur := x.topSched()
		// Tasklets own no stack; a hosted scheduler borrows the current
		// scheduler's context and host thread.
		t.isSched.ctx = cur.ctx
		t.isSched.thread = cur.thread
		x.pushSched(t.isSched)
		t.isSched.setState(SchedRunning)
	}

	x.rt.log().Trace().
		Uint64("rank", x.Rank()).
		Uint64("task", t.id).
		Log("task dispatch start")

	t.fn()

	x.rt.log().Trace().
		Uint64("rank", x.Rank()).
		Uint64("task", t.id).
		Log("task dispatch end")

	if t.isSched != nil {
		popped := x.popSched()
		popped.setState(SchedStopped)
		x.topSchedMu.unlock()
	}

	x.terminateTask(t)

	ls.thread, ls.task = lastThread, lastTask
	return nil
}

// terminateThread finishes a thread: state, joiner notification, and
// unwinding of a goroutine that will never be scheduled again.
func (x *Xstream) terminateThread(t *Thread) {
	t.setState(ThreadTerminated)
	t.termOnce.Do(func() { close(t.done) })
	ctxPoison(t.ctx)
}

// terminateTask finishes a tasklet.
func (x *Xstream) terminateTask(t *Task) {
	t.setState(TaskTerminated)
}

// migrateThread completes a pending migration: extract the target pool
// from the request argument under the thread's mutex, repoint the owning
// pool, push, and start the target's consumer stream if it has never run.
// The migration becomes externally visible only at the push.
func (x *Xstream) migrateThread(t *Thread) error {
	t.mu.Lock()
	cb := t.onMigrate
	t.mu.Unlock()
	if cb != nil {
		cb(t)
	}

	t.mu.Lock()
	pool := t.migrationTarget
	t.migrationTarget = nil
	t.request.clear(threadReqMigrate)
	if pool == nil {
		t.mu.Unlock()
		return ErrInvalidUnit
	}
	consumer := pool.Consumer()
	t.pool = pool
	t.setState(ThreadReady)
	pool.units.pushBack(t.poolElem())
	t.mu.Unlock()

	pool.decNumMigrations()

	x.rt.log().Debug().
		Uint64("thread", t.id).
		Uint64("fromRank", x.Rank()).
		Log("thread migrated")

	if consumer != nil && consumer.state.Load() == StateCreated {
		return consumer.Start()
	}
	return nil
}

// CheckEvents translates the calling stream's pending requests into
// scheduler requests: join asks the scheduler to finish (drain), exit and
// cancel ask it to stop at once. Scheduler run functions must call it
// periodically.
func CheckEvents(s *Sched) error {
	if currentRuntime() == nil {
		return ErrUninitialized
	}
	ls := localGet()
	if ls == nil || ls.xstream == nil {
		return ErrInvalidXstream
	}
	if s == nil {
		return ErrInvalidSched
	}

	req := ls.xstream.request.load()
	if req&xstreamReqJoin != 0 {
		s.Finish()
	}
	if req&(xstreamReqExit|xstreamReqCancel) != 0 {
		s.Exit()
	}

	// TODO: drain the stream's event queue once one exists.

	return nil
}

// drainPools empties every pool this stream consumes, terminating the
// leftover units so their goroutines unwind.
func (x *Xstream) drainPools() {
	if x.mainSched == nil {
		return
	}
	for _, p := range x.mainSched.pools {
		if p.Consumer() != x {
			continue
		}
		for {
			u := p.Pop()
			if u == nil {
				break
			}
			switch v := u.(type) {
			case *Thread:
				x.terminateThread(v)
			case *Task:
				x.terminateTask(v)
			}
		}
	}
}

// discardMainSched detaches (and for automatic schedulers, abandons) the
// stream's main scheduler.
func (x *Xstream) discardMainSched() {
	s := x.mainSched
	if s == nil {
		return
	}
	s.setAssoc(schedAssocNone)
	for _, p := range s.pools {
		p.clearConsumer(x)
	}
	if s.ctx != nil {
		ctxPoison(s.ctx)
	}
	x.mainSched = nil
}
