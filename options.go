package xstream

import (
	"github.com/joeycumines/logiface"
)

// initOptions holds configuration options for runtime initialization.
type initOptions struct {
	logger   *logiface.Logger[logiface.Event]
	affinity bool
}

// --- Init Options ---

// InitOption configures the runtime at Init.
type InitOption interface {
	applyInit(*initOptions) error
}

// initOptionImpl implements InitOption.
type initOptionImpl struct {
	applyInitFunc func(*initOptions) error
}

func (o *initOptionImpl) applyInit(opts *initOptions) error {
	return o.applyInitFunc(opts)
}

// WithLogger sets the structured logger used for runtime diagnostics.
// A nil logger (the default) disables logging entirely; logiface treats a
// nil logger as disabled, so the hot paths pay only a nil check.
func WithLogger(logger *logiface.Logger[logiface.Event]) InitOption {
	return &initOptionImpl{func(opts *initOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithAffinity sets whether each secondary execution stream locks its
// goroutine to an OS thread and pins that thread to the CPU derived from
// the stream's rank. Only effective on platforms exposing an affinity
// syscall; elsewhere the pinning half is a no-op.
func WithAffinity(enabled bool) InitOption {
	return &initOptionImpl{func(opts *initOptions) error {
		opts.affinity = enabled
		return nil
	}}
}

// resolveInitOptions applies InitOption instances to initOptions.
func resolveInitOptions(opts []InitOption) (*initOptions, error) {
	cfg := &initOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyInit(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// schedOptions holds configuration options for scheduler creation.
type schedOptions struct {
	typ       SchedType
	automatic bool
	eventFreq uint32
}

// --- Sched Options ---

// SchedOption configures a Sched instance.
type SchedOption interface {
	applySched(*schedOptions) error
}

// schedOptionImpl implements SchedOption.
type schedOptionImpl struct {
	applySchedFunc func(*schedOptions) error
}

func (o *schedOptionImpl) applySched(opts *schedOptions) error {
	return o.applySchedFunc(opts)
}

// WithSchedType sets how the scheduler is hosted. Note that a scheduler
// installed as a stream's main scheduler is always coerced to SchedULT.
func WithSchedType(typ SchedType) SchedOption {
	return &schedOptionImpl{func(opts *schedOptions) error {
		opts.typ = typ
		return nil
	}}
}

// WithSchedAutomatic sets whether the scheduler is discarded implicitly
// when detached from its stream.
func WithSchedAutomatic(enabled bool) SchedOption {
	return &schedOptionImpl{func(opts *schedOptions) error {
		opts.automatic = enabled
		return nil
	}}
}

// WithSchedEventFreq sets the number of dispatches between event checks in
// the default run function. Values below 1 are rejected.
func WithSchedEventFreq(freq uint32) SchedOption {
	return &schedOptionImpl{func(opts *schedOptions) error {
		if freq < 1 {
			return wrapErrf(ErrInvalidSched, "event frequency must be at least 1")
		}
		opts.eventFreq = freq
		return nil
	}}
}

// resolveSchedOptions applies SchedOption instances to schedOptions.
func resolveSchedOptions(opts []SchedOption) (*schedOptions, error) {
	cfg := &schedOptions{
		typ:       SchedULT, // default
		eventFreq: defaultSchedEventFreq,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applySched(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
