package xstream

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThread_createAndRun(t *testing.T) {
	initRuntime(t)

	es := mustCreate(t, nil)

	var ran atomic.Bool
	th, err := ThreadCreate(es, func() {
		ran.Store(true)
	})
	require.NoError(t, err)

	// The push started the created stream on demand.
	waitFor(t, "stream to start", func() bool { return es.State() != StateCreated })

	require.NoError(t, th.Join())
	assert.True(t, ran.Load())
	assert.Equal(t, ThreadTerminated, th.State())

	require.NoError(t, es.Join())
	require.NoError(t, es.Free())
}

func TestThread_yieldRoundRobin(t *testing.T) {
	initRuntime(t)

	// Push both threads before any stream consumes the pool, so the FIFO
	// order is fixed up front; cooperative yields then alternate strictly.
	pool := NewPool(PoolFIFO)
	var turns [6]uint64
	var idx atomic.Int32
	body := func(id uint64) func() {
		return func() {
			for range 3 {
				turns[idx.Add(1)-1] = id
				_ = ThreadYield()
			}
		}
	}
	a, err := ThreadCreateOnPool(pool, body(1))
	require.NoError(t, err)
	b, err := ThreadCreateOnPool(pool, body(2))
	require.NoError(t, err)

	s, err := SchedCreate(drainingRun, []*Pool{pool})
	require.NoError(t, err)
	es := mustCreate(t, s)
	require.NoError(t, es.Start())

	require.NoError(t, a.Join())
	require.NoError(t, b.Join())
	assert.Equal(t, [6]uint64{1, 2, 1, 2, 1, 2}, turns)

	require.NoError(t, es.Join())
	require.NoError(t, es.Free())
}

func TestThread_blockResume(t *testing.T) {
	initRuntime(t)

	es := mustCreate(t, nil)

	var resumed atomic.Bool
	th, err := ThreadCreate(es, func() {
		_ = ThreadBlock()
		resumed.Store(true)
	})
	require.NoError(t, err)

	waitFor(t, "thread to block", func() bool { return th.State() == ThreadBlocked })
	assert.False(t, resumed.Load())

	// Resuming a non-blocked thread is rejected.
	other, err := ThreadCreate(es, func() {})
	require.NoError(t, err)
	require.NoError(t, other.Join())
	assert.ErrorIs(t, other.Resume(), ErrWrongState)

	require.NoError(t, th.Resume())
	require.NoError(t, th.Join())
	assert.True(t, resumed.Load())

	require.NoError(t, es.Join())
	require.NoError(t, es.Free())
}

func TestThread_cancelBeforeRun(t *testing.T) {
	initRuntime(t)

	// Park the unit in a pool nobody consumes yet, cancel it, then hand the
	// pool to a stream: the dispatcher terminates it without running it.
	pool := NewPool(PoolFIFO)
	var ran atomic.Bool
	th, err := ThreadCreateOnPool(pool, func() { ran.Store(true) })
	require.NoError(t, err)
	require.NoError(t, th.Cancel())

	s, err := SchedCreate(drainingRun, []*Pool{pool})
	require.NoError(t, err)
	es := mustCreate(t, s)
	require.NoError(t, es.Start())

	waitFor(t, "thread termination", func() bool { return th.State() == ThreadTerminated })
	assert.False(t, ran.Load())

	require.NoError(t, es.Join())
	require.NoError(t, es.Free())
}

func TestThread_exitSelf(t *testing.T) {
	initRuntime(t)

	es := mustCreate(t, nil)

	var after atomic.Bool
	th, err := ThreadCreate(es, func() {
		_ = ThreadExit()
		after.Store(true) // unreachable
	})
	require.NoError(t, err)

	require.NoError(t, th.Join())
	assert.False(t, after.Load())
	assert.Equal(t, ThreadTerminated, th.State())

	require.NoError(t, es.Join())
	require.NoError(t, es.Free())
}

func TestThread_migrateThenStart(t *testing.T) {
	initRuntime(t)

	// Stream A runs; stream B is created but never started.
	a := mustCreate(t, nil)
	require.NoError(t, a.Start())
	b := mustCreate(t, nil)

	target := b.MainPools()[0]

	var migrationCbRan atomic.Bool
	var ranOn atomic.Pointer[Xstream]
	th, err := ThreadCreateOnPool(a.MainPools()[0], func() {
		self, err := ThreadSelf()
		if err != nil {
			return
		}
		self.SetMigrationCallback(func(*Thread) { migrationCbRan.Store(true) })
		if err := self.MigrateTo(target); err != nil {
			return
		}
		_ = ThreadYield()
		// Resumed after migration: now on stream B.
		cur, err := Self()
		if err != nil {
			return
		}
		ranOn.Store(cur)
	})
	require.NoError(t, err)

	require.NoError(t, th.Join())
	assert.Same(t, b, ranOn.Load(), "thread should have resumed on stream B")
	assert.True(t, migrationCbRan.Load())
	assert.NotEqual(t, StateCreated, b.State(), "migration must start the target's consumer")
	assert.Equal(t, int64(0), target.NumMigrations())

	require.NoError(t, a.Join())
	require.NoError(t, b.Join())
	require.NoError(t, a.Free())
	require.NoError(t, b.Free())
}

func TestThread_migrateValidation(t *testing.T) {
	initRuntime(t)

	var nilThread *Thread
	assert.ErrorIs(t, nilThread.MigrateTo(NewPool(PoolFIFO)), ErrInvalidUnit)
	assert.ErrorIs(t, nilThread.Cancel(), ErrInvalidUnit)
	assert.ErrorIs(t, nilThread.Resume(), ErrInvalidUnit)
	assert.ErrorIs(t, nilThread.Join(), ErrInvalidUnit)

	es := mustCreate(t, nil)
	th, err := ThreadCreate(es, func() {})
	require.NoError(t, err)
	require.NoError(t, th.Join())
	assert.ErrorIs(t, th.MigrateTo(nil), ErrInvalidUnit)
	assert.ErrorIs(t, th.MigrateTo(NewPool(PoolFIFO)), ErrWrongState)

	require.NoError(t, es.Join())
	require.NoError(t, es.Free())
}

// drainingRun is a minimal scheduler-author run function: drain the first
// pool, honouring stream events.
func drainingRun(s *Sched) {
	p := s.Pools()[0]
	for {
		if u := p.Pop(); u != nil {
			_ = RunUnit(u, p)
		}
		_ = CheckEvents(s)
		if fin, exit := s.HasRequest(); exit || (fin && s.NumUnits() == 0) {
			break
		}
	}
}
