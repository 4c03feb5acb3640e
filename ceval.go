package ceval

import "github.com/wippyai/ceval/protocol"

// State is the coarse engine status derived from a worker's flags.
type State int

const (
	// Initial means no boot has been attempted yet.
	Initial State = iota
	// Loading means boot is in progress and the engine has not identified itself.
	Loading
	// Failed means boot raised an error. It never reverts.
	Failed
	// Idle means the engine is ready and not computing.
	Idle
	// Computing means the engine is ready and analyzing.
	Computing
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case Loading:
		return "loading"
	case Failed:
		return "failed"
	case Idle:
		return "idle"
	case Computing:
		return "computing"
	default:
		return "unknown"
	}
}

// DeriveState computes the state from the flags held by a worker and its
// protocol. It performs no I/O.
func DeriveState(booted, failed, identified, computing bool) State {
	switch {
	case failed:
		return Failed
	case !booted:
		return Initial
	case !identified:
		return Loading
	case computing:
		return Computing
	default:
		return Idle
	}
}

// Worker is the capability every engine variant exposes, whatever boots it.
type Worker interface {
	// Start records work as the latest analysis intent and boots the
	// engine on first use. It never blocks on boot.
	Start(work *protocol.Work)
	// Stop cancels the active computation, if any.
	Stop()
	// State returns the derived engine state.
	State() State
	// EngineName returns the name the engine announced, or "".
	EngineName() string
	// Destroy stops the active computation. The sandbox is kept alive.
	Destroy()
}
