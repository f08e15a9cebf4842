package xstream

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrUninitialized is returned when the runtime has not been initialized
	// with Init, or has already been finalized.
	ErrUninitialized = errors.New("xstream: runtime is not initialized")

	// ErrInvalidXstream is returned for a nil or unusable execution stream
	// handle, including self-join, self-free, operations restricted on the
	// primary stream, and calls from goroutines the runtime does not own.
	ErrInvalidXstream = errors.New("xstream: invalid execution stream")

	// ErrInvalidUnit is returned when a work unit handle is nil or its kind
	// is not usable for the requested operation.
	ErrInvalidUnit = errors.New("xstream: invalid work unit")

	// ErrInvalidSched is returned when a scheduler handle is nil, lacks a
	// run function, is already another stream's main scheduler, or is given
	// an invalid option value, and when a stream has no main scheduler pool
	// to create a unit on.
	ErrInvalidSched = errors.New("xstream: invalid scheduler")

	// ErrWrongState is returned when an operation is not permitted in the
	// target's current lifecycle state.
	ErrWrongState = errors.New("xstream: operation not permitted in current state")

	// ErrPoolAlreadyBound is returned when installing a scheduler whose pool
	// set contains a pool already consumed by a different execution stream.
	ErrPoolAlreadyBound = errors.New("xstream: pool already has a consumer")

	// ErrOutOfMemory names the allocation-failure error kind. Go reports a
	// failed allocation as a fatal runtime error, so no function of this
	// package returns it.
	ErrOutOfMemory = errors.New("xstream: out of memory")
)

// wrapErrf annotates a sentinel error with call-site context. The result
// matches the sentinel via errors.Is.
func wrapErrf(err error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
