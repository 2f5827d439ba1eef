package tether

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeFactory struct {
	mu         sync.Mutex
	transports map[string]*fakeTransport
	err        error
}

func (f *fakeFactory) create(address string) (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if f.transports == nil {
		f.transports = make(map[string]*fakeTransport)
	}
	t := &fakeTransport{}
	f.transports[address] = t

	return t, nil
}

func (f *fakeFactory) get(address string) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.transports[address]
}

func newTestManager(t *testing.T, opts ...ManagerOption) (*Manager, *fakeFactory) {
	t.Helper()

	cfg, err := NewSessionConfig(WithIdleInterval(2*time.Millisecond), WithReconnectDelay(5*time.Millisecond))
	require.NoError(t, err)

	factory := &fakeFactory{}
	opts = append([]ManagerOption{WithSessionConfig(cfg)}, opts...)
	mgr, err := NewManager(context.Background(), factory.create, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	return mgr, factory
}

func TestNewManager(t *testing.T) {
	require := require.New(t)

	_, err := NewManager(context.Background(), nil)
	require.Error(err)

	_, err = NewManager(context.Background(), (&fakeFactory{}).create, WithSessionConfig(nil))
	require.Error(err)

	_, err = NewManager(context.Background(), (&fakeFactory{}).create, WithManagerLogger(nil))
	require.Error(err)

	mgr, err := NewManager(context.Background(), (&fakeFactory{}).create)
	require.NoError(err)
	require.NoError(mgr.Close())
}

func TestManager_Registry(t *testing.T) {
	require := require.New(t)

	mgr, _ := newTestManager(t)

	s, err := mgr.Create("dev-b")
	require.NoError(err)
	require.Equal("dev-b", s.Address())

	_, err = mgr.Create("dev-b")
	require.ErrorIs(err, ErrSessionExists)

	_, err = mgr.Create("")
	require.ErrorIs(err, ErrAddressEmpty)

	_, err = mgr.Create("dev-a")
	require.NoError(err)

	got, ok := mgr.Get("dev-b")
	require.True(ok)
	require.Same(s, got)

	require.Equal([]string{"dev-a", "dev-b"}, mgr.Addresses())

	count := 0
	mgr.Range(func(*Session) bool { count++; return true })
	require.Equal(2, count)

	require.NoError(mgr.Remove("dev-b"))
	require.ErrorIs(mgr.Remove("dev-b"), ErrSessionNotFound)
	require.Equal([]string{"dev-a"}, mgr.Addresses())
}

func TestManager_FactoryError(t *testing.T) {
	require := require.New(t)

	mgr, factory := newTestManager(t)
	factory.err = errors.New("no such port")

	_, err := mgr.Create("dev")
	require.EqualError(err, "no such port")
	require.Error(mgr.Start("dev"))
	require.Empty(mgr.Addresses())
}

func TestManager_StartStop(t *testing.T) {
	require := require.New(t)

	rec := &eventRecorder{}
	mgr, factory := newTestManager(t, WithEventHandler(rec.handle))

	// unknown addresses
	mgr.Stop("dev")
	require.False(mgr.SendCommand("dev", "LED 1"))
	_, ok := mgr.State("dev")
	require.False(ok)
	_, ok = mgr.Position("dev")
	require.False(ok)
	require.ErrorIs(mgr.Subscribe("dev", rec.handle), ErrSessionNotFound)

	// start creates the session on demand
	require.NoError(mgr.Start("dev"))
	require.NoError(mgr.Start("dev"))
	require.Equal([]string{"dev"}, mgr.Addresses())

	require.Eventually(func() bool {
		state, _ := mgr.State("dev")
		return state.IsConnected()
	}, waitTimeout, waitTick)

	factory.get("dev").push("POS 10 20 30\n")
	require.Eventually(func() bool { _, ok := mgr.Position("dev"); return ok }, waitTimeout, waitTick)
	pos, _ := mgr.Position("dev")
	require.InDelta(0.1, pos.X, 1e-9)
	require.InDelta(0.3, pos.Z, 1e-9)

	require.True(mgr.SendCommand("dev", "LED 1"))
	require.Eventually(func() bool { return len(factory.get("dev").written()) == 1 }, waitTimeout, waitTick)

	mgr.Stop("dev")
	mgr.Stop("dev")
	state, ok := mgr.State("dev")
	require.True(ok)
	require.Equal(StoppedState, state)
	require.False(mgr.SendCommand("dev", "LED 1"))

	require.Eventually(func() bool { return rec.len() == 3 }, waitTimeout, waitTick)
	require.Equal([]EventType{ConnectedType, PositionType, DisconnectedType}, rec.types())

	rec.mu.Lock()
	require.Equal([]string{"dev", "dev", "dev"}, rec.addrs)
	rec.mu.Unlock()
}

func TestManager_Subscribe(t *testing.T) {
	require := require.New(t)

	mgr, _ := newTestManager(t)
	_, err := mgr.Create("dev")
	require.NoError(err)

	rec := &eventRecorder{}
	require.NoError(mgr.Subscribe("dev", rec.handle))
	require.NoError(mgr.Start("dev"))

	require.Eventually(func() bool { return rec.len() == 1 }, waitTimeout, waitTick)
}

func TestManager_StateChangeHandler(t *testing.T) {
	require := require.New(t)

	var mu sync.Mutex
	var addrs []string
	mgr, _ := newTestManager(t, WithStateChangeHandler(func(s *Session, _, newState ConnState) {
		if newState.IsConnected() {
			mu.Lock()
			addrs = append(addrs, s.Address())
			mu.Unlock()
		}
	}))

	require.NoError(mgr.Start("dev-1"))
	require.NoError(mgr.Start("dev-2"))

	require.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(addrs) == 2
	}, waitTimeout, waitTick)
}

func TestManager_Close(t *testing.T) {
	require := require.New(t)

	mgr, factory := newTestManager(t)
	require.NoError(mgr.Start("dev"))
	require.Eventually(func() bool { return factory.get("dev").Streaming() }, waitTimeout, waitTick)

	require.NoError(mgr.Close())
	require.NoError(mgr.Close())
	require.False(factory.get("dev").Streaming())
	require.Empty(mgr.Addresses())

	_, err := mgr.Create("dev")
	require.ErrorIs(err, ErrManagerClosed)
}
