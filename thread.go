package xstream

import (
	"runtime"
	"sync"
	"sync/atomic"
)

var threadIDCounter atomic.Uint64

// threadUnwind is the panic payload used to unwind a user-level thread's
// goroutine without running the rest of its body.
type threadUnwind struct{}

// Thread is a stackful user-level thread: a cooperatively scheduled work
// unit that may yield, block, and migrate between execution streams.
// Instances must be created with ThreadCreate or ThreadCreateOnPool.
type Thread struct {
	// betteralign:ignore

	id      uint64
	fn      func()
	state   atomic.Int32
	request reqWord

	// ctx is the thread's saved execution context.
	ctx *threadContext

	// pool is the thread's owning pool. Guarded by mu: rewritten during
	// migration while other actors (Resume, the dispatch return edge) read
	// it to re-push the thread.
	pool *Pool

	// lastXstream is the stream the thread last ran on. Written by the
	// dispatching stream immediately before the context switch; the switch
	// itself orders the write before the thread observes it.
	lastXstream *Xstream

	// isSched is non-nil when the thread hosts a nested scheduler; the
	// dispatcher pushes it onto the stream's scheduler stack around the
	// thread's execution.
	isSched *Sched

	// mu guards pool and the migration argument slot.
	mu              sync.Mutex
	migrationTarget *Pool
	onMigrate       func(*Thread)

	el       elem
	done     chan struct{}
	termOnce sync.Once
}

// newThread allocates a thread bound to pool, with its goroutine parked and
// not yet in any pool.
func newThread(pool *Pool, fn func()) *Thread {
	t := &Thread{
		id:   threadIDCounter.Add(1),
		fn:   fn,
		pool: pool,
		done: make(chan struct{}),
	}
	t.el.value = t
	t.state.Store(int32(ThreadReady))
	t.ctx = newThreadContext(t)
	go t.main()
	return t
}

// ThreadCreate creates a user-level thread running fn and pushes it to the
// first pool of the target stream's main scheduler. If that pool's stream
// has never been started, the push starts it.
func ThreadCreate(xs *Xstream, fn func()) (*Thread, error) {
	if xs == nil {
		return nil, ErrInvalidXstream
	}
	s := xs.mainSched
	if s == nil || len(s.pools) == 0 {
		return nil, ErrInvalidSched
	}
	return ThreadCreateOnPool(s.pools[0], fn)
}

// ThreadCreateOnPool creates a user-level thread running fn and pushes it
// to the given pool.
func ThreadCreateOnPool(pool *Pool, fn func()) (*Thread, error) {
	if pool == nil || fn == nil {
		return nil, ErrInvalidUnit
	}
	t := newThread(pool, fn)
	if err := pool.Push(t); err != nil {
		return nil, err
	}
	return t, nil
}

// ThreadCreateSched creates a user-level thread hosting the given scheduler
// and pushes it to pool. When dispatched, the scheduler is pushed onto the
// stream's scheduler stack and its run function executes on the thread; it
// is popped again when run returns.
func ThreadCreateSched(pool *Pool, s *Sched) (*Thread, error) {
	if pool == nil {
		return nil, ErrInvalidUnit
	}
	if s == nil || s.run == nil {
		return nil, ErrInvalidSched
	}
	t := newThread(pool, func() { s.run(s) })
	t.isSched = s
	s.thread = t
	s.setAssoc(schedAssocUnit)
	if err := pool.Push(t); err != nil {
		return nil, err
	}
	return t, nil
}

// newMainSchedThread wraps an execution stream's main-scheduler context in
// a thread so the stream always has a current thread while scheduling. It
// is never pushed to a pool.
func newMainSchedThread(xs *Xstream, ctx *threadContext) *Thread {
	t := &Thread{
		id:          threadIDCounter.Add(1),
		lastXstream: xs,
		done:        make(chan struct{}),
	}
	t.el.value = t
	t.state.Store(int32(ThreadRunning))
	t.ctx = ctx
	ctx.thread = t
	return t
}

// main is the thread's goroutine body. It parks until the first dispatch,
// runs the user function, and hands control back to whatever scheduler
// context the dispatcher last linked.
func (t *Thread) main() {
	if prev := <-t.ctx.ch; prev == poisonCtx {
		// Cancelled before ever running; the dispatcher did the bookkeeping.
		return
	}
	ls := localInit()
	ls.xstream = t.lastXstream
	ls.thread = t

	func() {
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(threadUnwind); !ok {
					panic(r)
				}
			}
		}()
		t.fn()
	}()

	t.request.set(threadReqTerminate)
	localFinalize()
	if t.State() == ThreadTerminated {
		// Unwound by the poison token: the dispatcher already terminated the
		// thread and is not waiting for control to come back.
		return
	}
	ctxFinalSwitch(t.ctx, t.ctx.link)
}

// Kind implements Unit.
func (t *Thread) Kind() UnitKind { return UnitThread }

func (t *Thread) poolElem() *elem { return &t.el }

// ID returns the thread's process-unique ID.
func (t *Thread) ID() uint64 { return t.id }

// State returns the thread's current lifecycle state.
func (t *Thread) State() ThreadState {
	return ThreadState(t.state.Load())
}

func (t *Thread) setState(s ThreadState) {
	t.state.Store(int32(s))
}

// currentPool returns the thread's owning pool.
func (t *Thread) currentPool() *Pool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pool
}

// ThreadSelf returns the calling user-level thread.
func ThreadSelf() (*Thread, error) {
	if currentRuntime() == nil {
		return nil, ErrUninitialized
	}
	ls := localGet()
	if ls == nil || ls.thread == nil {
		return nil, ErrInvalidXstream
	}
	return ls.thread, nil
}

// ThreadYield hands control back to the scheduler of the stream the calling
// thread runs on. The thread is re-pushed to its pool and resumes when next
// picked, possibly on a different stream if it was migrated meanwhile.
func ThreadYield() error {
	if currentRuntime() == nil {
		return ErrUninitialized
	}
	ls := localGet()
	if ls == nil || ls.thread == nil {
		return ErrInvalidXstream
	}
	t := ls.thread
	if t.ctx.link == nil {
		return wrapErrf(ErrInvalidXstream, "scheduler host threads cannot yield")
	}
	t.yield()
	return nil
}

// yield parks the thread until it is next dispatched, then refreshes the
// goroutine-local view: the thread may have been migrated or resumed on a
// different stream while suspended.
func (t *Thread) yield() {
	prev := ctxSwitch(t.ctx, t.ctx.link)
	if prev == poisonCtx {
		panic(threadUnwind{})
	}
	if ls := localGet(); ls != nil {
		ls.xstream = t.lastXstream
		ls.thread = t
		ls.task = nil
	}
}

// ThreadBlock suspends the calling thread. It is not re-pushed to its pool;
// it resumes only when another actor calls Resume.
func ThreadBlock() error {
	if currentRuntime() == nil {
		return ErrUninitialized
	}
	ls := localGet()
	if ls == nil || ls.thread == nil {
		return ErrInvalidXstream
	}
	t := ls.thread
	if t.ctx.link == nil {
		return ErrInvalidXstream
	}
	t.request.set(threadReqBlock)
	t.setState(ThreadBlocked)
	t.yield()
	return nil
}

// Resume makes a blocked thread runnable again by pushing it back to its
// pool. Resuming a thread that is not blocked returns ErrWrongState.
func (t *Thread) Resume() error {
	if t == nil {
		return ErrInvalidUnit
	}
	if !t.state.CompareAndSwap(int32(ThreadBlocked), int32(ThreadReady)) {
		return wrapErrf(ErrWrongState, "thread %d is %s, not blocked", t.id, t.State())
	}
	return t.currentPool().Push(t)
}

// ThreadExit terminates the calling thread at once. On success it does not
// return; the error paths cover calls from outside a user-level thread.
func ThreadExit() error {
	if currentRuntime() == nil {
		return ErrUninitialized
	}
	ls := localGet()
	if ls == nil || ls.thread == nil {
		return ErrInvalidXstream
	}
	ls.thread.request.set(threadReqExit)
	panic(threadUnwind{})
}

// Cancel requests the thread's cancellation. The thread is aborted at its
// next dispatch boundary; a thread mid-execution runs until it yields.
func (t *Thread) Cancel() error {
	if t == nil {
		return ErrInvalidUnit
	}
	t.request.set(threadReqCancel)
	return nil
}

// Join waits until the thread terminates, yielding cooperatively when
// called from a user-level thread and spinning otherwise.
func (t *Thread) Join() error {
	if t == nil {
		return ErrInvalidUnit
	}
	for t.State() != ThreadTerminated {
		if err := ThreadYield(); err != nil {
			runtime.Gosched()
		}
	}
	return nil
}

// MigrateTo requests that the thread move to the given pool. The move takes
// effect at the thread's next dispatch entry; if the target pool's consumer
// stream has never been started, completing the migration starts it.
func (t *Thread) MigrateTo(pool *Pool) error {
	if t == nil {
		return ErrInvalidUnit
	}
	if pool == nil {
		return ErrInvalidUnit
	}
	if t.State() == ThreadTerminated {
		return wrapErrf(ErrWrongState, "thread %d already terminated", t.id)
	}
	t.mu.Lock()
	t.migrationTarget = pool
	t.mu.Unlock()
	pool.incNumMigrations()
	t.request.set(threadReqMigrate)
	return nil
}

// SetMigrationCallback installs a hook invoked on the dispatching stream
// just before each migration of this thread completes.
func (t *Thread) SetMigrationCallback(fn func(*Thread)) {
	t.mu.Lock()
	t.onMigrate = fn
	t.mu.Unlock()
}
