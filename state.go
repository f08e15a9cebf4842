package xstream

import (
	"sync/atomic"
)

// XstreamState represents the lifecycle state of an execution stream.
//
// State Machine:
//
//	StateCreated (0) → StateReady (1)       [Start()]
//	StateCreated (0) → StateTerminated (3)  [Join() short-circuit via CAS]
//	StateReady (1) → StateRunning (2)       [loop begins a scheduling pass]
//	StateRunning (2) → StateReady (1)       [top scheduler's run returned]
//	StateReady (1) → StateTerminated (3)    [loop observed exit/cancel/join]
//
// State Transition Rules:
//   - Use TryTransition() (CAS) for externally contended edges
//     (Created→Ready, Created→Terminated)
//   - Use Store() for edges owned exclusively by the stream's own loop
//     (Ready↔Running, →Terminated at loop exit)
type XstreamState uint32

const (
	// StateCreated indicates the stream exists but has never been started.
	StateCreated XstreamState = iota
	// StateReady indicates the stream has been started and is between
	// scheduling passes.
	StateReady
	// StateRunning indicates the stream is executing its top scheduler.
	StateRunning
	// StateTerminated indicates the stream has stopped permanently.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s XstreamState) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state machine with cache-line padding, preventing
// false sharing between the stream's loop and external mutators.
type fastState struct { // betteralign:ignore
	_ [64]byte      //nolint:unused
	v atomic.Uint32 // State value
	_ [60]byte      //nolint:unused
}

// Load returns the current state atomically.
func (s *fastState) Load() XstreamState {
	return XstreamState(s.v.Load())
}

// Store atomically stores a new state. No transition validation.
func (s *fastState) Store(state XstreamState) {
	s.v.Store(uint32(state))
}

// TryTransition attempts to atomically transition from one state to another.
// Returns true if the transition was taken.
func (s *fastState) TryTransition(from, to XstreamState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// IsTerminal returns true if the stream has terminated.
func (s *fastState) IsTerminal() bool {
	return s.Load() == StateTerminated
}

// SchedState represents the lifecycle state of a scheduler.
type SchedState int32

const (
	// SchedReady indicates the scheduler has been created and its run
	// function has not yet started. Between the scheduling passes of a
	// stream's loop the main scheduler is SchedTerminated, not SchedReady.
	SchedReady SchedState = iota
	// SchedRunning indicates the scheduler's run function is executing.
	SchedRunning
	// SchedStopped indicates the scheduler was popped from a stream's stack;
	// concurrent readers of the stack may still observe it briefly.
	SchedStopped
	// SchedTerminated indicates the scheduler's run function has returned on
	// its hosting stream.
	SchedTerminated
)

// String returns a human-readable representation of the state.
func (s SchedState) String() string {
	switch s {
	case SchedReady:
		return "Ready"
	case SchedRunning:
		return "Running"
	case SchedStopped:
		return "Stopped"
	case SchedTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// ThreadState represents the lifecycle state of a user-level thread.
type ThreadState int32

const (
	// ThreadReady indicates the thread is runnable and belongs to exactly
	// one pool.
	ThreadReady ThreadState = iota
	// ThreadRunning indicates the thread is executing on some stream.
	ThreadRunning
	// ThreadBlocked indicates the thread is suspended and not in any pool;
	// another actor must resume it.
	ThreadBlocked
	// ThreadTerminated indicates the thread has finished or was cancelled.
	ThreadTerminated
)

// String returns a human-readable representation of the state.
func (s ThreadState) String() string {
	switch s {
	case ThreadReady:
		return "Ready"
	case ThreadRunning:
		return "Running"
	case ThreadBlocked:
		return "Blocked"
	case ThreadTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// TaskState represents the lifecycle state of a tasklet. Tasklets cannot
// block, so there is no suspended state.
type TaskState int32

const (
	// TaskReady indicates the tasklet is runnable and belongs to a pool.
	TaskReady TaskState = iota
	// TaskRunning indicates the tasklet's function is executing.
	TaskRunning
	// TaskTerminated indicates the tasklet has finished or was cancelled.
	TaskTerminated
)

// String returns a human-readable representation of the state.
func (s TaskState) String() string {
	switch s {
	case TaskReady:
		return "Ready"
	case TaskRunning:
		return "Running"
	case TaskTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}
