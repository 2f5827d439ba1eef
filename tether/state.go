package tether

import "sync/atomic"

// ConnState represents the supervision state of a session.
type ConnState uint32

// Session connection states.
const (
	// StoppedState indicates that the session has no worker.
	StoppedState ConnState = iota
	// ConnectingState indicates that the worker runs and tries to (re)connect the transport.
	ConnectingState
	// ConnectedState indicates that the link is established and frames flow.
	ConnectedState
)

// IsStopped returns if the current state is stopped.
func (cs ConnState) IsStopped() bool { return cs == StoppedState }

// IsConnecting returns if the current state is connecting.
func (cs ConnState) IsConnecting() bool { return cs == ConnectingState }

// IsConnected returns if the current state is connected.
func (cs ConnState) IsConnected() bool { return cs == ConnectedState }

// String returns string representation of the state.
func (cs ConnState) String() string {
	switch cs {
	case StoppedState:
		return "stopped"
	case ConnectingState:
		return "connecting"
	case ConnectedState:
		return "connected"
	default:
		return "unknown"
	}
}

// StateChangeHandler is invoked when the state of a session changes.
//
// Note: the handler is invoked synchronously on the session worker, never on the goroutine
// calling Start or Stop. Take care with long-running implementations, they delay timeout
// detection. Calling Stop or Close of the same session from the handler deadlocks.
type StateChangeHandler func(s *Session, prevState ConnState, newState ConnState)

// atomicConnState stores a ConnState for lock-free reads by the host.
type atomicConnState struct {
	v atomic.Uint32
}

func (st *atomicConnState) Load() ConnState {
	return ConnState(st.v.Load())
}

// Swap stores state and returns the previous one.
func (st *atomicConnState) Swap(state ConnState) ConnState {
	return ConnState(st.v.Swap(uint32(state)))
}
