package tether

import (
	"testing"
	"time"

	"github.com/arloliu/go-tether/logger"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

func TestNewSessionConfig(t *testing.T) {
	require := require.New(t)

	t.Run("Defaults", func(t *testing.T) {
		cfg, err := NewSessionConfig()
		require.NoError(err)
		require.Equal(3000*time.Millisecond, cfg.ActivityTimeout())
		require.Equal(DefaultConnectTimeout, cfg.ConnectTimeout())
		require.Equal(DefaultIdleInterval, cfg.IdleInterval())
		require.Equal(DefaultEventQueueSize, cfg.EventQueueSize())
		require.Equal(DefaultMaxFrameSize, cfg.MaxFrameSize())
		require.NotNil(cfg.GetLogger())

		b := cfg.NewBackOff()
		require.Equal(DefaultReconnectInitialDelay, b.(*backoff.ExponentialBackOff).InitialInterval)
	})

	t.Run("Valid Options", func(t *testing.T) {
		l := logger.GetLogger()
		cfg, err := NewSessionConfig(
			WithActivityTimeout(time.Second),
			WithConnectTimeout(2*time.Second),
			WithIdleInterval(0),
			WithEventQueueSize(8),
			WithMaxFrameSize(0),
			WithLogger(l),
		)
		require.NoError(err)
		require.Equal(time.Second, cfg.ActivityTimeout())
		require.Equal(2*time.Second, cfg.ConnectTimeout())
		require.Equal(time.Duration(0), cfg.IdleInterval())
		require.Equal(8, cfg.EventQueueSize())
		require.Equal(0, cfg.MaxFrameSize())
		require.Equal(l, cfg.GetLogger())
	})

	t.Run("Reconnect Delay", func(t *testing.T) {
		cfg, err := NewSessionConfig(WithReconnectDelay(0))
		require.NoError(err)
		require.Equal(time.Duration(0), cfg.NewBackOff().NextBackOff())

		cfg, err = NewSessionConfig(WithReconnectDelay(250 * time.Millisecond))
		require.NoError(err)
		b := cfg.NewBackOff()
		require.Equal(250*time.Millisecond, b.NextBackOff())
		require.Equal(250*time.Millisecond, b.NextBackOff())

		cfg, err = NewSessionConfig(WithReconnectBackOff(func() backoff.BackOff { return &backoff.StopBackOff{} }))
		require.NoError(err)
		require.Equal(backoff.Stop, cfg.NewBackOff().NextBackOff())
	})

	t.Run("Invalid Options", func(t *testing.T) {
		invalid := []SessionOption{
			WithActivityTimeout(10 * time.Millisecond),
			WithActivityTimeout(time.Hour),
			WithConnectTimeout(0),
			WithIdleInterval(-time.Millisecond),
			WithIdleInterval(2 * time.Second),
			WithReconnectBackOff(nil),
			WithReconnectDelay(-time.Second),
			WithEventQueueSize(0),
			WithMaxFrameSize(-1),
			WithLogger(nil),
		}
		for _, opt := range invalid {
			_, err := NewSessionConfig(opt)
			require.Error(err)
		}
	})

	t.Run("Idle Interval Not Shorter Than Activity Timeout", func(t *testing.T) {
		_, err := NewSessionConfig(WithActivityTimeout(100*time.Millisecond), WithIdleInterval(100*time.Millisecond))
		require.Error(err)
	})
}

func TestConnState_String(t *testing.T) {
	require := require.New(t)

	require.Equal("stopped", StoppedState.String())
	require.Equal("connecting", ConnectingState.String())
	require.Equal("connected", ConnectedState.String())
	require.Equal("unknown", ConnState(9).String())
	require.True(ConnectedState.IsConnected())
	require.True(ConnectingState.IsConnecting())
	require.True(StoppedState.IsStopped())
}
