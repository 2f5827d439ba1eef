package wsbridge

import (
	"encoding/json"

	"github.com/arloliu/go-tether/tether"
)

// Message types.
const (
	// MsgHello is sent to a client right after the upgrade and carries its client id.
	MsgHello = "hello"
	// MsgSend is a client request to send a command to a device.
	MsgSend = "send"
	// MsgSendResult answers a MsgSend request.
	MsgSendResult = "send_result"
	// MsgError reports an invalid client request.
	MsgError = "error"
)

// Message is the JSON envelope exchanged with WebSocket clients. Event messages use the
// event type name ("position", "button", ...) as Type.
//
// ID correlates a request with its reply; the hub echoes the ID of a request in the
// MsgSendResult or MsgError message answering it.
type Message struct {
	Type     string          `json:"type"`
	ID       string          `json:"id,omitempty"`
	Address  string          `json:"address,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Command  string          `json:"command,omitempty"`
	Accepted *bool           `json:"accepted,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// HelloPayload is the payload of a MsgHello message.
type HelloPayload struct {
	ClientID string `json:"client_id"`
}

// EventMessage builds the envelope of a session event.
func EventMessage(address string, ev tether.Event) (Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Message{}, err
	}

	return Message{Type: ev.Type().String(), Address: address, Payload: payload}, nil
}

// DecodeEvent converts an event message back to a typed event. It returns false for messages
// that do not carry an event.
func DecodeEvent(msg Message) (tether.Event, bool) {
	var ev tether.Event

	switch msg.Type {
	case tether.ConnectedType.String():
		return tether.Connected{}, true
	case tether.DisconnectedType.String():
		return tether.Disconnected{}, true
	case tether.PositionType.String():
		var e tether.PositionUpdate
		if json.Unmarshal(msg.Payload, &e) != nil {
			return nil, false
		}
		ev = e
	case tether.ButtonType.String():
		var e tether.ButtonEvent
		if json.Unmarshal(msg.Payload, &e) != nil {
			return nil, false
		}
		ev = e
	case tether.AckType.String():
		var e tether.Acknowledgement
		if json.Unmarshal(msg.Payload, &e) != nil {
			return nil, false
		}
		ev = e
	case tether.DeviceErrorType.String():
		var e tether.DeviceError
		if json.Unmarshal(msg.Payload, &e) != nil {
			return nil, false
		}
		ev = e
	default:
		return nil, false
	}

	return ev, true
}
