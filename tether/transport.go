package tether

import "context"

// Transport is the connection to one peer device as seen by a session worker.
//
// Only the session worker calls Connect, Close, Write and Read; Streaming may additionally be
// called from other goroutines.
type Transport interface {
	// Connect establishes the link. It may block, but must return once ctx is done.
	Connect(ctx context.Context) error

	// Close tears the link down. Closing a closed transport is a no-op.
	Close() error

	// Streaming reports whether the link is currently up. It is a liveness probe that is
	// independent of the session activity timeout.
	Streaming() bool

	// Write transmits text as is; the session has already appended the frame terminator.
	Write(text string) error

	// Read returns the text received since the previous call. It must return promptly with an
	// empty string when nothing is available; a Read that blocks indefinitely starves timeout
	// detection.
	Read() (string, error)
}

// TransportFactory creates the transport for a session address.
type TransportFactory func(address string) (Transport, error)
