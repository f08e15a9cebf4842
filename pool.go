package xstream

import (
	"sync/atomic"
)

// UnitKind discriminates the two kinds of work unit a pool may hold.
type UnitKind int

const (
	// UnitThread is a stackful user-level thread.
	UnitThread UnitKind = iota
	// UnitTask is a stackless run-to-completion tasklet.
	UnitTask
)

// String returns a human-readable representation of the kind.
func (k UnitKind) String() string {
	switch k {
	case UnitThread:
		return "Thread"
	case UnitTask:
		return "Task"
	default:
		return "Unknown"
	}
}

// Unit is a work unit held by a pool: a *Thread or a *Task.
type Unit interface {
	// Kind reports whether the unit is a thread or a tasklet.
	Kind() UnitKind

	// poolElem returns the unit's intrusive pool-membership node.
	poolElem() *elem
}

// PoolKind selects the access discipline of a pool.
type PoolKind int

const (
	// PoolFIFO pops units in insertion order.
	PoolFIFO PoolKind = iota
	// PoolLIFO pops the most recently inserted unit first.
	PoolLIFO
)

// String returns a human-readable representation of the kind.
func (k PoolKind) String() string {
	switch k {
	case PoolFIFO:
		return "FIFO"
	case PoolLIFO:
		return "LIFO"
	default:
		return "Unknown"
	}
}

// Pool is a container of runnable work units with a fixed access discipline
// and at most one consumer execution stream at a time. Binding happens when
// a scheduler owning the pool is installed on a stream; a push to a pool
// whose consumer has never been started starts it on demand.
type Pool struct {
	kind  PoolKind
	units contn

	// consumer is the execution stream bound to drain this pool, if any.
	consumer atomic.Pointer[Xstream]

	// numMigrations counts migrations targeting this pool that have been
	// requested but not yet completed.
	numMigrations atomic.Int64
}

// NewPool creates an empty pool with the given discipline.
func NewPool(kind PoolKind) *Pool {
	return &Pool{kind: kind}
}

// PoolType returns the pool's access discipline.
func (p *Pool) PoolType() PoolKind {
	return p.kind
}

// Len returns the number of units currently in the pool.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return p.units.len()
}

// Push adds a unit to the pool. If the pool's consumer stream exists and
// has never been started, it is started here, which is what makes pushing
// work to an idle stream sufficient to get it running.
func (p *Pool) Push(u Unit) error {
	if p == nil {
		return ErrInvalidUnit
	}
	if u == nil {
		return ErrInvalidUnit
	}
	p.units.pushBack(u.poolElem())
	if es := p.consumer.Load(); es != nil && es.state.Load() == StateCreated {
		return es.Start()
	}
	return nil
}

// Pop removes and returns the next unit per the pool's discipline, or nil
// when the pool is empty.
func (p *Pool) Pop() Unit {
	var e *elem
	switch p.kind {
	case PoolLIFO:
		e = p.units.popBack()
	default:
		e = p.units.popFront()
	}
	if e == nil {
		return nil
	}
	return e.value.(Unit)
}

// Remove detaches a specific unit from the pool. Losing a race against a
// concurrent pop is not an error.
func (p *Pool) Remove(u Unit) error {
	if p == nil || u == nil {
		return ErrInvalidUnit
	}
	p.units.remove(u.poolElem())
	return nil
}

// setConsumer binds the pool to a consumer stream. At most one stream may
// consume a pool at a time; rebinding to the same stream is a no-op.
func (p *Pool) setConsumer(es *Xstream) error {
	for {
		cur := p.consumer.Load()
		if cur == es {
			return nil
		}
		if cur != nil {
			return ErrPoolAlreadyBound
		}
		if p.consumer.CompareAndSwap(nil, es) {
			return nil
		}
	}
}

// clearConsumer releases the binding if it currently points at es.
func (p *Pool) clearConsumer(es *Xstream) {
	p.consumer.CompareAndSwap(es, nil)
}

// Consumer returns the stream currently bound to drain this pool, or nil.
func (p *Pool) Consumer() *Xstream {
	return p.consumer.Load()
}

// NumMigrations returns the number of in-flight migrations targeting this
// pool.
func (p *Pool) NumMigrations() int64 {
	return p.numMigrations.Load()
}

func (p *Pool) incNumMigrations() {
	p.numMigrations.Add(1)
}

func (p *Pool) decNumMigrations() {
	p.numMigrations.Add(-1)
}
