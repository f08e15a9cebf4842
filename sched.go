package xstream

import (
	"runtime"
	"sync/atomic"
)

// SchedType discriminates how a scheduler is hosted.
type SchedType int

const (
	// SchedULT schedulers run on a user-level thread with its own context.
	SchedULT SchedType = iota
	// SchedTasklet schedulers run to completion on a tasklet, borrowing the
	// enclosing scheduler's context.
	SchedTasklet
)

// String returns a human-readable representation of the type.
func (t SchedType) String() string {
	switch t {
	case SchedULT:
		return "ULT"
	case SchedTasklet:
		return "Tasklet"
	default:
		return "Unknown"
	}
}

// schedAssoc tags how a scheduler is currently associated.
type schedAssoc int32

const (
	// schedAssocNone is a scheduler not attached to anything.
	schedAssocNone schedAssoc = iota
	// schedAssocMain is the bottom of some stream's scheduler stack.
	schedAssocMain
	// schedAssocUnit is a nested scheduler hosted by a work unit.
	schedAssocUnit
)

// SchedRun is a scheduler's run function. It repeatedly picks units from
// the scheduler's pools, hands them to the stream via RunUnit, and must
// periodically call CheckEvents so that stream-level requests are honoured.
type SchedRun func(*Sched)

// Sched is a pluggable scheduler: a run function plus the pool set it
// consumes. Create instances with SchedCreate, or pass a nil scheduler to
// XstreamCreate to get the default one.
type Sched struct {
	// betteralign:ignore

	run   SchedRun
	typ   SchedType
	pools []*Pool

	state   atomic.Int32
	assoc   atomic.Int32
	request reqWord

	// automatic schedulers are discarded implicitly when detached from
	// their stream.
	automatic bool

	// eventFreq is the number of dispatches between CheckEvents calls in
	// the default run function.
	eventFreq uint32

	// thread is the scheduler's host thread: the stream's loop context for
	// a main scheduler, the hosting unit's thread for a nested one.
	thread *Thread

	// ctx is the context the stream switches through while this scheduler
	// is on top. Set when the scheduler is installed or dispatched.
	ctx *threadContext
}

// defaultSchedEventFreq is the dispatch interval between event checks in
// the default scheduler.
const defaultSchedEventFreq = 16

// SchedCreate creates a scheduler from a run function and the pools it
// consumes. With an empty pool set a single FIFO pool is created, so every
// scheduler owns at least one pool.
func SchedCreate(run SchedRun, pools []*Pool, opts ...SchedOption) (*Sched, error) {
	if run == nil {
		return nil, ErrInvalidSched
	}
	cfg, err := resolveSchedOptions(opts)
	if err != nil {
		return nil, err
	}
	if len(pools) == 0 {
		pools = []*Pool{NewPool(PoolFIFO)}
	}
	s := &Sched{
		run:       run,
		typ:       cfg.typ,
		pools:     append([]*Pool(nil), pools...),
		automatic: cfg.automatic,
		eventFreq: cfg.eventFreq,
	}
	s.state.Store(int32(SchedReady))
	return s, nil
}

// newDefaultSched creates the runtime-provided scheduler: a single FIFO
// pool drained in order, with periodic event checks. It is automatic, so
// discarding its stream discards it too.
func newDefaultSched() *Sched {
	s, err := SchedCreate(defaultSchedRun, nil, WithSchedAutomatic(true))
	if err != nil {
		panic(err)
	}
	return s
}

// defaultSchedRun drains the scheduler's pools in order, checking events
// every few dispatches while busy and on every pass while idle. It returns
// when asked to exit, or when asked to finish and the pools are empty.
func defaultSchedRun(s *Sched) {
	var dispatched uint32
	for {
		if u, p := s.popReady(); u != nil {
			_ = RunUnit(u, p)
			dispatched++
			if dispatched%s.eventFreq == 0 {
				_ = CheckEvents(s)
			}
		} else {
			_ = CheckEvents(s)
			if s.request.load() == 0 {
				runtime.Gosched()
			}
		}
		req := s.request.load()
		if req&schedReqExit != 0 {
			break
		}
		if req&schedReqFinish != 0 && s.NumUnits() == 0 {
			break
		}
	}
}

// popReady returns the next unit from the scheduler's pool set, scanning
// pools in order, or nil when all are empty.
func (s *Sched) popReady() (Unit, *Pool) {
	for _, p := range s.pools {
		if u := p.Pop(); u != nil {
			return u, p
		}
	}
	return nil, nil
}

// Pools returns the scheduler's pool set.
func (s *Sched) Pools() []*Pool {
	if s == nil {
		return nil
	}
	return append([]*Pool(nil), s.pools...)
}

// NumUnits returns the total number of units across the scheduler's pools.
func (s *Sched) NumUnits() int {
	n := 0
	for _, p := range s.pools {
		n += p.Len()
	}
	return n
}

// Type returns how the scheduler is hosted.
func (s *Sched) Type() SchedType {
	return s.typ
}

// State returns the scheduler's current lifecycle state.
func (s *Sched) State() SchedState {
	return SchedState(s.state.Load())
}

func (s *Sched) setState(st SchedState) {
	s.state.Store(int32(st))
}

// Automatic reports whether the scheduler is discarded implicitly when
// detached from its stream.
func (s *Sched) Automatic() bool {
	return s.automatic
}

// isMain reports whether the scheduler is the bottom of some stream's
// scheduler stack.
func (s *Sched) isMain() bool {
	return schedAssoc(s.assoc.Load()) == schedAssocMain
}

func (s *Sched) setAssoc(a schedAssoc) {
	s.assoc.Store(int32(a))
}

// Finish asks the run function to return once the scheduler's pools drain.
func (s *Sched) Finish() {
	if s == nil {
		return
	}
	s.request.set(schedReqFinish)
}

// Exit asks the run function to return immediately, regardless of remaining
// work.
func (s *Sched) Exit() {
	if s == nil {
		return
	}
	s.request.set(schedReqExit)
}

// HasRequest reports whether a finish or exit has been requested; custom
// run functions use it to decide when to return.
func (s *Sched) HasRequest() (finish, exit bool) {
	req := s.request.load()
	return req&schedReqFinish != 0, req&schedReqExit != 0
}
