// Package tether maintains a persistent control session with a single addressed peer device
// (a "tether") over an unreliable, connection-oriented transport such as a Bluetooth serial
// link.
//
// Both directions carry an ASCII command protocol: frames are terminated by '\n' and tokens
// are separated by a single space. The device streams frames such as
//
//	POS 120 -45 3020
//	BTN_1 1
//	AOK LED
//	ERROR bad command
//
// which the session turns into typed events (PositionUpdate, ButtonEvent, Acknowledgement,
// DeviceError) next to the lifecycle events Connected and Disconnected.
//
// # Supervisor
//
// Each running Session owns one worker goroutine that connects the Transport, retries failed
// connects with a back-off delay, writes the single pending outbound command, reads and
// decodes inbound frames and forces a reconnect when nothing was received for the activity
// timeout (3 seconds by default) or when the transport stops streaming.
//
// # Outbound commands
//
// A session holds at most one not-yet-sent command. SendCommand overwrites an unsent command,
// so only the latest of several commands issued between two worker iterations is transmitted.
//
// # Events
//
// Events are queued without blocking the worker and delivered in emission order to the
// registered EventHandler functions by a dedicated goroutine. A full queue drops the newest
// event and counts it in SessionMetrics.EventDropCount.
//
// # Manager
//
// Manager is a registry of sessions keyed by address, owned by the host application. It
// creates sessions on demand through a TransportFactory and exposes the host-facing surface:
// Start, Stop, SendCommand, Subscribe, State and Position.
package tether
