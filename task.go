package xstream

import (
	"sync/atomic"
)

var taskIDCounter atomic.Uint64

// Task is a stackless tasklet: a work unit that runs to completion on the
// dispatching stream and can neither yield nor block. Instances must be
// created with TaskCreate or TaskCreateOnPool.
type Task struct {
	// betteralign:ignore

	id      uint64
	fn      func()
	state   atomic.Int32
	request reqWord

	// pool is the tasklet's owning pool.
	pool *Pool

	// xstream is the stream the tasklet ran on.
	xstream *Xstream

	// isSched is non-nil when the tasklet hosts a nested scheduler. The
	// scheduler borrows the current scheduler's context; tasklets own no
	// stack of their own.
	isSched *Sched

	el elem
}

func newTask(pool *Pool, fn func()) *Task {
	t := &Task{
		id:   taskIDCounter.Add(1),
		fn:   fn,
		pool: pool,
	}
	t.el.value = t
	t.state.Store(int32(TaskReady))
	return t
}

// TaskCreate creates a tasklet running fn and pushes it to the first pool
// of the target stream's main scheduler.
func TaskCreate(xs *Xstream, fn func()) (*Task, error) {
	if xs == nil {
		return nil, ErrInvalidXstream
	}
	s := xs.mainSched
	if s == nil || len(s.pools) == 0 {
		return nil, ErrInvalidSched
	}
	return TaskCreateOnPool(s.pools[0], fn)
}

// TaskCreateOnPool creates a tasklet running fn and pushes it to pool.
func TaskCreateOnPool(pool *Pool, fn func()) (*Task, error) {
	if pool == nil || fn == nil {
		return nil, ErrInvalidUnit
	}
	t := newTask(pool, fn)
	if err := pool.Push(t); err != nil {
		return nil, err
	}
	return t, nil
}

// TaskCreateSched creates a tasklet hosting the given scheduler and pushes
// it to pool. The scheduler runs to completion on the dispatching stream,
// borrowing the enclosing scheduler's context.
func TaskCreateSched(pool *Pool, s *Sched) (*Task, error) {
	if pool == nil {
		return nil, ErrInvalidUnit
	}
	if s == nil || s.run == nil {
		return nil, ErrInvalidSched
	}
	t := newTask(pool, func() { s.run(s) })
	t.isSched = s
	s.setAssoc(schedAssocUnit)
	if err := pool.Push(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Kind implements Unit.
func (t *Task) Kind() UnitKind { return UnitTask }

func (t *Task) poolElem() *elem { return &t.el }

// ID returns the tasklet's process-unique ID.
func (t *Task) ID() uint64 { return t.id }

// State returns the tasklet's current lifecycle state.
func (t *Task) State() TaskState {
	return TaskState(t.state.Load())
}

func (t *Task) setState(s TaskState) {
	t.state.Store(int32(s))
}

// Xstream returns the stream the tasklet last ran on, or nil if it has not
// run.
func (t *Task) Xstream() *Xstream {
	return t.xstream
}

// Cancel requests the tasklet's cancellation. A tasklet that has not yet
// been dispatched is terminated without running; a running tasklet always
// completes (tasklets have no suspension points).
func (t *Task) Cancel() error {
	if t == nil {
		return ErrInvalidUnit
	}
	t.request.set(taskReqCancel)
	return nil
}
