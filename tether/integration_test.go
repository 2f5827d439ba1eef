package tether_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/go-tether/devicesim"
	"github.com/arloliu/go-tether/tether"
	"github.com/arloliu/go-tether/transport/memory"
	"github.com/arloliu/go-tether/transport/tcp"
	"github.com/stretchr/testify/require"
)

type events struct {
	mu  sync.Mutex
	evs []tether.Event
}

func (e *events) handle(_ string, ev tether.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.evs = append(e.evs, ev)
}

func (e *events) has(want tether.Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ev := range e.evs {
		if ev == want {
			return true
		}
	}

	return false
}

func (e *events) count(typ tether.EventType) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, ev := range e.evs {
		if ev.Type() == typ {
			n++
		}
	}

	return n
}

func (e *events) last() tether.Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.evs) == 0 {
		return nil
	}

	return e.evs[len(e.evs)-1]
}

func testConfig(t *testing.T) *tether.SessionConfig {
	t.Helper()

	cfg, err := tether.NewSessionConfig(
		tether.WithActivityTimeout(500*time.Millisecond),
		tether.WithIdleInterval(2*time.Millisecond),
		tether.WithReconnectDelay(10*time.Millisecond),
	)
	require.NoError(t, err)

	return cfg
}

func TestIntegration_MemoryDevice(t *testing.T) {
	require := require.New(t)

	host, dev := memory.New()
	sim := devicesim.New(devicesim.WithInterval(10 * time.Millisecond))
	sim.SetPosition(150, 250, -50)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sim.Serve(ctx, dev) }()
	defer dev.Close()

	s, err := tether.NewSession(ctx, "00:06:66:4A:1B:2C", host, testConfig(t))
	require.NoError(err)
	defer s.Close()

	rec := &events{}
	s.AddEventHandler(rec.handle)
	require.NoError(s.Start())

	require.Eventually(func() bool { return rec.has(tether.PositionUpdate{X: 1.5, Y: 2.5, Z: -0.5}) }, 2*time.Second, 5*time.Millisecond)
	pos, ok := s.Position()
	require.True(ok)
	require.Equal(tether.Position{X: 1.5, Y: 2.5, Z: -0.5}, pos)

	require.True(s.SendCommand("LED 1"))
	require.Eventually(func() bool { return rec.has(tether.Acknowledgement{Text: "AOK LED 1"}) }, 2*time.Second, 5*time.Millisecond)

	require.NoError(sim.SetButton(1, true))
	require.Eventually(func() bool { return rec.has(tether.ButtonEvent{ID: 1, Pressed: true}) }, 2*time.Second, 5*time.Millisecond)

	// link loss and recovery
	dev.Drop()
	require.Eventually(func() bool { return rec.count(tether.ConnectedType) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(1, rec.count(tether.DisconnectedType))

	require.True(s.SendCommand("FOO"))
	require.Eventually(func() bool { return rec.has(tether.DeviceError{Text: "ERROR UNKNOWN FOO"}) }, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	require.Eventually(func() bool { return rec.last() == tether.Disconnected{} }, 2*time.Second, 5*time.Millisecond)
	require.Equal(2, rec.count(tether.DisconnectedType))
	require.False(dev.Connected())
}

func TestIntegration_DeviceOutOfRange(t *testing.T) {
	require := require.New(t)

	host, dev := memory.New()
	sim := devicesim.New(devicesim.WithInterval(10 * time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sim.Serve(ctx, dev) }()
	defer dev.Close()

	s, err := tether.NewSession(ctx, "dev", host, testConfig(t))
	require.NoError(err)
	defer s.Close()

	rec := &events{}
	s.AddEventHandler(rec.handle)
	require.NoError(s.Start())
	require.Eventually(s.IsConnected, 2*time.Second, 5*time.Millisecond)

	dev.SetAvailable(false)
	dev.Drop()

	require.Eventually(func() bool { return s.Metrics().ConnectFailCount.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(tether.ConnectingState, s.State())
	require.Equal(1, rec.count(tether.DisconnectedType))

	dev.SetAvailable(true)
	require.Eventually(func() bool { return rec.count(tether.ConnectedType) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Zero(s.Metrics().ConnRetryGauge.Load())
}

func TestIntegration_TCPManager(t *testing.T) {
	require := require.New(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)

	sim := devicesim.New(devicesim.WithInterval(10 * time.Millisecond))
	sim.SetPosition(1000, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sim.ServeListener(ctx, ln) }()

	addr := ln.Addr().String()
	mgr, err := tether.NewManager(ctx, func(string) (tether.Transport, error) {
		return tcp.New(addr, tcp.WithReadTimeout(5*time.Millisecond)), nil
	}, tether.WithSessionConfig(testConfig(t)))
	require.NoError(err)
	defer mgr.Close()

	rec := &events{}
	require.NoError(mgr.Start("sim-1"))
	require.NoError(mgr.Subscribe("sim-1", rec.handle))

	require.Eventually(func() bool {
		pos, ok := mgr.Position("sim-1")
		return ok && pos.X == 10
	}, 2*time.Second, 5*time.Millisecond)

	require.True(mgr.SendCommand("sim-1", "PING"))
	require.Eventually(func() bool { return rec.has(tether.Acknowledgement{Text: "AOK PING"}) }, 2*time.Second, 5*time.Millisecond)

	mgr.Stop("sim-1")
	state, ok := mgr.State("sim-1")
	require.True(ok)
	require.Equal(tether.StoppedState, state)
}
