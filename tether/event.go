package tether

import (
	"fmt"
	"strconv"
)

// EventType is the tag of a typed event.
type EventType uint8

const (
	// ConnectedType tags Connected events.
	ConnectedType EventType = iota + 1
	// DisconnectedType tags Disconnected events.
	DisconnectedType
	// PositionType tags PositionUpdate events.
	PositionType
	// ButtonType tags ButtonEvent events.
	ButtonType
	// AckType tags Acknowledgement events.
	AckType
	// DeviceErrorType tags DeviceError events.
	DeviceErrorType
)

// String returns the wire-friendly name of the event type, used in log records, bridge
// envelopes and NATS subjects.
func (t EventType) String() string {
	switch t {
	case ConnectedType:
		return "connected"
	case DisconnectedType:
		return "disconnected"
	case PositionType:
		return "position"
	case ButtonType:
		return "button"
	case AckType:
		return "ack"
	case DeviceErrorType:
		return "device_error"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// Event is an application-visible notification produced by a session.
//
// The concrete types are Connected, Disconnected, PositionUpdate, ButtonEvent,
// Acknowledgement and DeviceError.
type Event interface {
	Type() EventType
	String() string
}

// EventHandler receives the events of a session in emission order.
//
// Handlers run on the session's delivery goroutine; a slow handler delays the following
// events of the same session but never the session worker.
type EventHandler func(address string, ev Event)

// Connected is emitted after a successful connect.
type Connected struct{}

func (Connected) Type() EventType { return ConnectedType }
func (Connected) String() string  { return "Connected" }

// Disconnected is emitted when an established link is lost or closed.
type Disconnected struct{}

func (Disconnected) Type() EventType { return DisconnectedType }
func (Disconnected) String() string  { return "Disconnected" }

// PositionUpdate carries a device position in centimeters.
type PositionUpdate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (PositionUpdate) Type() EventType { return PositionType }

func (e PositionUpdate) String() string {
	return fmt.Sprintf("PositionUpdate{x=%g, y=%g, z=%g}", e.X, e.Y, e.Z)
}

// Position returns the coordinates of the update.
func (e PositionUpdate) Position() Position {
	return Position(e)
}

// ButtonEvent reports the state of one of the device buttons.
type ButtonEvent struct {
	ID      int  `json:"id"`
	Pressed bool `json:"pressed"`
}

func (ButtonEvent) Type() EventType { return ButtonType }

func (e ButtonEvent) String() string {
	return fmt.Sprintf("ButtonEvent{id=%d, pressed=%t}", e.ID, e.Pressed)
}

// Acknowledgement carries an AOK frame, verbatim.
type Acknowledgement struct {
	Text string `json:"text"`
}

func (Acknowledgement) Type() EventType { return AckType }

func (e Acknowledgement) String() string { return "Acknowledgement{" + strconv.Quote(e.Text) + "}" }

// DeviceError carries an ERROR frame, verbatim.
type DeviceError struct {
	Text string `json:"text"`
}

func (DeviceError) Type() EventType { return DeviceErrorType }

func (e DeviceError) String() string { return "DeviceError{" + strconv.Quote(e.Text) + "}" }

// Position is a device position in centimeters.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}
