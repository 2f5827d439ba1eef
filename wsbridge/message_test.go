package wsbridge

import (
	"encoding/json"
	"testing"

	"github.com/arloliu/go-tether/tether"
	"github.com/stretchr/testify/require"
)

func TestEventMessage(t *testing.T) {
	require := require.New(t)

	msg, err := EventMessage("00:06:66:4A:1B:2C", tether.PositionUpdate{X: 1, Y: 2.5, Z: -3})
	require.NoError(err)

	data, err := json.Marshal(msg)
	require.NoError(err)
	require.JSONEq(`{"type":"position","address":"00:06:66:4A:1B:2C","payload":{"x":1,"y":2.5,"z":-3}}`, string(data))

	msg, err = EventMessage("dev", tether.Acknowledgement{Text: "AOK LED 1"})
	require.NoError(err)
	data, err = json.Marshal(msg)
	require.NoError(err)
	require.JSONEq(`{"type":"ack","address":"dev","payload":{"text":"AOK LED 1"}}`, string(data))
}

func TestDecodeEvent(t *testing.T) {
	require := require.New(t)

	events := []tether.Event{
		tether.Connected{},
		tether.Disconnected{},
		tether.PositionUpdate{X: 1, Y: 2, Z: 3},
		tether.ButtonEvent{ID: 1, Pressed: true},
		tether.Acknowledgement{Text: "AOK"},
		tether.DeviceError{Text: "ERROR 1"},
	}
	for _, ev := range events {
		msg, err := EventMessage("dev", ev)
		require.NoError(err)

		got, ok := DecodeEvent(msg)
		require.True(ok)
		require.Equal(ev, got)
	}

	_, ok := DecodeEvent(Message{Type: MsgSendResult})
	require.False(ok)
	_, ok = DecodeEvent(Message{Type: "position", Payload: json.RawMessage(`"bad"`)})
	require.False(ok)
}
