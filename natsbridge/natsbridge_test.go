package natsbridge

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/arloliu/go-tether/logger"
	"github.com/arloliu/go-tether/tether"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	subjects []string
	data     [][]byte
	err      error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.data = append(p.data, data)

	return nil
}

func TestBridge_Handle(t *testing.T) {
	require := require.New(t)

	pub := &fakePublisher{}
	b := New(pub, "", nil)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return ts }

	b.Handle("00:06:66:4A:1B:2C", tether.PositionUpdate{X: 1, Y: 2, Z: 3})
	b.Handle("sim.1", tether.ButtonEvent{ID: 1, Pressed: true})

	require.Equal([]string{
		"tether.00:06:66:4A:1B:2C.position",
		"tether.sim_1.button",
	}, pub.subjects)
	require.EqualValues(2, b.Published())

	var rec Record
	require.NoError(json.Unmarshal(pub.data[0], &rec))
	require.Equal("00:06:66:4A:1B:2C", rec.Address)
	require.Equal("position", rec.Type)
	require.True(ts.Equal(rec.Time))
	require.JSONEq(`{"x":1,"y":2,"z":3}`, string(rec.Payload))
}

func TestBridge_PublishFailure(t *testing.T) {
	require := require.New(t)

	l := &logger.MockLogger{}
	l.On("Warn", "natsbridge: publish failed", mock.Anything).Return()

	b := New(&fakePublisher{err: errors.New("nats: connection closed")}, "dev", l)
	b.Handle("a", tether.Connected{})

	require.Zero(b.Published())
	require.EqualValues(1, b.Failed())
	l.AssertNumberOfCalls(t, "Warn", 1)
}

func TestSanitizeToken(t *testing.T) {
	require := require.New(t)

	require.Equal("00:06:66:4A:1B:2C", SanitizeToken("00:06:66:4A:1B:2C"))
	require.Equal("a_b_c_d_e", SanitizeToken("a.b*c>d e"))
	require.Equal("_", SanitizeToken(""))

	b := New(&fakePublisher{}, "fleet", nil)
	require.Equal("fleet.x_y.device_error", b.Subject("x.y", tether.DeviceErrorType))
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1", "test", nil)
	require.Error(t, err)
}
