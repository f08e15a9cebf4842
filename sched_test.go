package xstream

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedCreate_validation(t *testing.T) {
	t.Parallel()

	_, err := SchedCreate(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidSched)

	_, err = SchedCreate(drainingRun, nil, WithSchedEventFreq(0))
	assert.ErrorIs(t, err, ErrInvalidSched)

	s, err := SchedCreate(drainingRun, nil)
	require.NoError(t, err)
	assert.Len(t, s.Pools(), 1, "an empty pool set gets a default FIFO pool")
	assert.Equal(t, SchedULT, s.Type())
	assert.Equal(t, SchedReady, s.State())
	assert.False(t, s.Automatic())

	s, err = SchedCreate(drainingRun, nil,
		WithSchedType(SchedTasklet),
		WithSchedAutomatic(true),
		WithSchedEventFreq(4),
		nil, // nil options are skipped
	)
	require.NoError(t, err)
	assert.Equal(t, SchedTasklet, s.Type())
	assert.True(t, s.Automatic())
}

func TestSetMainSched(t *testing.T) {
	t.Run("installs scheduler and binds pools", func(t *testing.T) {
		initRuntime(t)
		es := mustCreate(t, nil)
		pool := NewPool(PoolLIFO)
		s, err := SchedCreate(drainingRun, []*Pool{pool}, WithSchedType(SchedTasklet))
		require.NoError(t, err)

		require.NoError(t, es.SetMainSched(s))
		assert.Same(t, s, es.MainSched())
		assert.Same(t, es, pool.Consumer())
		// Main schedulers are context-switched uniformly, so the type is
		// coerced.
		assert.Equal(t, SchedULT, s.Type())

		require.NoError(t, es.Join())
		require.NoError(t, es.Free())
	})

	t.Run("rejects a pool bound elsewhere", func(t *testing.T) {
		initRuntime(t)
		pool := NewPool(PoolFIFO)
		s1, err := SchedCreate(drainingRun, []*Pool{pool})
		require.NoError(t, err)
		es1 := mustCreate(t, s1)

		s2, err := SchedCreate(drainingRun, []*Pool{pool})
		require.NoError(t, err)
		es2 := mustCreate(t, nil)
		assert.ErrorIs(t, es2.SetMainSched(s2), ErrPoolAlreadyBound)

		// The failed install left the original binding alone.
		assert.Same(t, es1, pool.Consumer())
	})

	t.Run("rejects wrong state", func(t *testing.T) {
		initRuntime(t)
		es := mustCreate(t, nil)
		require.NoError(t, es.Start())
		waitFor(t, "stream running", func() bool { return es.State() == StateRunning })

		s, err := SchedCreate(drainingRun, nil)
		require.NoError(t, err)
		assert.ErrorIs(t, es.SetMainSched(s), ErrWrongState)

		require.NoError(t, es.Join())
		require.NoError(t, es.Free())
	})
}

func TestSched_customRun(t *testing.T) {
	initRuntime(t)

	// A custom scheduler that records how many units it dispatched.
	var dispatched atomic.Int64
	run := func(s *Sched) {
		p := s.Pools()[0]
		for {
			if u := p.Pop(); u != nil {
				dispatched.Add(1)
				_ = RunUnit(u, p)
			}
			_ = CheckEvents(s)
			if fin, exit := s.HasRequest(); exit || (fin && s.NumUnits() == 0) {
				break
			}
		}
	}
	s, err := SchedCreate(run, nil)
	require.NoError(t, err)
	es := mustCreate(t, s)

	var ran atomic.Int64
	for range 8 {
		_, err := TaskCreateOnPool(s.Pools()[0], func() { ran.Add(1) })
		require.NoError(t, err)
	}
	require.NoError(t, es.Start())
	require.NoError(t, es.Join())

	assert.Equal(t, int64(8), ran.Load())
	assert.GreaterOrEqual(t, dispatched.Load(), int64(8))
	assert.Equal(t, SchedTerminated, s.State())

	require.NoError(t, es.Free())
}

func TestCheckEvents_translation(t *testing.T) {
	initRuntime(t)

	// CheckEvents maps stream requests onto scheduler requests: join
	// becomes finish, cancel becomes exit.
	type probe struct {
		finish, exit bool
	}
	results := make(chan probe, 1)
	run := func(s *Sched) {
		for {
			_ = CheckEvents(s)
			if fin, exit := s.HasRequest(); fin || exit {
				results <- probe{fin, exit}
				break
			}
		}
	}
	s, err := SchedCreate(run, nil)
	require.NoError(t, err)
	es := mustCreate(t, s)
	require.NoError(t, es.Start())
	require.NoError(t, es.Join())
	got := <-results
	assert.True(t, got.finish)
	assert.False(t, got.exit)
	require.NoError(t, es.Free())

	results = make(chan probe, 1)
	s2, err := SchedCreate(run, nil)
	require.NoError(t, err)
	es2 := mustCreate(t, s2)
	require.NoError(t, es2.Start())
	require.NoError(t, es2.Cancel())
	require.NoError(t, es2.Join())
	got = <-results
	assert.True(t, got.exit)
	require.NoError(t, es2.Free())
}

func TestCheckEvents_validation(t *testing.T) {
	assert.ErrorIs(t, CheckEvents(nil), ErrUninitialized)

	initRuntime(t)
	// From a goroutine the runtime does not own.
	errCh := make(chan error, 1)
	go func() {
		s, _ := SchedCreate(drainingRun, nil)
		errCh <- CheckEvents(s)
	}()
	assert.ErrorIs(t, <-errCh, ErrInvalidXstream)

	// From the runtime-owned caller, a nil scheduler is rejected.
	assert.ErrorIs(t, CheckEvents(nil), ErrInvalidSched)
}
