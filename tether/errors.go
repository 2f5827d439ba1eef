package tether

import (
	"errors"
	"fmt"
)

// Frame errors. All of them wrap ErrMalformedFrame; a malformed frame is dropped by the
// session and never surfaced as an event.
var (
	// ErrMalformedFrame is the parent of all frame parsing errors.
	ErrMalformedFrame = errors.New("tether: malformed frame")

	// ErrUnknownCommand indicates that the command name of a frame is not recognized.
	ErrUnknownCommand = fmt.Errorf("%w: unknown command", ErrMalformedFrame)

	// ErrArgCount indicates that a recognized command carries the wrong number of arguments.
	ErrArgCount = fmt.Errorf("%w: wrong argument count", ErrMalformedFrame)

	// ErrInvalidArgument indicates that a numeric argument could not be converted.
	ErrInvalidArgument = fmt.Errorf("%w: invalid argument", ErrMalformedFrame)
)

// Session and manager errors.
var (
	// ErrTransportNil indicates that a nil Transport was provided.
	ErrTransportNil = errors.New("tether: transport is nil")

	// ErrAddressEmpty indicates that an empty session address was provided.
	ErrAddressEmpty = errors.New("tether: address is empty")

	// ErrSessionClosed indicates that the session was closed and cannot be started again.
	ErrSessionClosed = errors.New("tether: session closed")

	// ErrSessionExists indicates that a session for the address is already registered.
	ErrSessionExists = errors.New("tether: session already exists")

	// ErrSessionNotFound indicates that no session is registered for the address.
	ErrSessionNotFound = errors.New("tether: session not found")

	// ErrManagerClosed indicates that the manager was closed.
	ErrManagerClosed = errors.New("tether: manager closed")
)

// Transport errors shared by the transport implementations.
var (
	// ErrNotConnected indicates a read or write on a transport that is not streaming.
	ErrNotConnected = errors.New("tether: transport not connected")
)
