package tether

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-tether/logger"
	"github.com/cenkalti/backoff/v4"
)

// Default session settings.
const (
	DefaultActivityTimeout = 3000 * time.Millisecond // inactivity before a forced reconnect
	DefaultConnectTimeout  = 5 * time.Second         // bound of a single Connect call
	DefaultIdleInterval    = 10 * time.Millisecond   // wait of an iteration without work

	DefaultReconnectInitialDelay = 100 * time.Millisecond
	DefaultReconnectMaxDelay     = 5 * time.Second

	DefaultEventQueueSize = 64
	DefaultMaxFrameSize   = 4096
)

// Setting range limits.
const (
	MinActivityTimeout = 50 * time.Millisecond
	MaxActivityTimeout = 10 * time.Minute

	MaxIdleInterval = time.Second
)

// SessionConfig holds the settings of a session. Create it with NewSessionConfig.
type SessionConfig struct {
	activityTimeout time.Duration
	connectTimeout  time.Duration
	idleInterval    time.Duration

	// newBackOff creates the reconnect back-off policy of one session.
	newBackOff func() backoff.BackOff

	eventQueueSize int
	maxFrameSize   int

	logger logger.Logger
}

// NewSessionConfig creates a session configuration.
//
// opts are functional options applied in order; see With* functions.
func NewSessionConfig(opts ...SessionOption) (*SessionConfig, error) {
	cfg := &SessionConfig{
		activityTimeout: DefaultActivityTimeout,
		connectTimeout:  DefaultConnectTimeout,
		idleInterval:    DefaultIdleInterval,
		newBackOff:      defaultBackOff,
		eventQueueSize:  DefaultEventQueueSize,
		maxFrameSize:    DefaultMaxFrameSize,
		logger:          logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.idleInterval >= cfg.activityTimeout {
		return nil, fmt.Errorf("tether: idle interval %v must be shorter than activity timeout %v",
			cfg.idleInterval, cfg.activityTimeout)
	}

	return cfg, nil
}

// defaultSessionConfig returns the configuration used when nil is passed to NewSession.
func defaultSessionConfig() *SessionConfig {
	cfg, _ := NewSessionConfig()
	return cfg
}

func defaultBackOff() backoff.BackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(DefaultReconnectInitialDelay),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0.1),
		backoff.WithMaxInterval(DefaultReconnectMaxDelay),
		backoff.WithMaxElapsedTime(0), // retry forever
	)
}

// --- Getters ---

// ActivityTimeout returns the inactivity period after which a connected session reconnects.
func (cfg *SessionConfig) ActivityTimeout() time.Duration { return cfg.activityTimeout }

// ConnectTimeout returns the bound of a single connect attempt.
func (cfg *SessionConfig) ConnectTimeout() time.Duration { return cfg.connectTimeout }

// IdleInterval returns the wait performed by a worker iteration that found nothing to do.
func (cfg *SessionConfig) IdleInterval() time.Duration { return cfg.idleInterval }

// EventQueueSize returns the capacity of the per-session event queue.
func (cfg *SessionConfig) EventQueueSize() int { return cfg.eventQueueSize }

// MaxFrameSize returns the largest frame, terminator excluded, accepted by the frame decoder.
func (cfg *SessionConfig) MaxFrameSize() int { return cfg.maxFrameSize }

// NewBackOff returns a fresh reconnect back-off policy.
func (cfg *SessionConfig) NewBackOff() backoff.BackOff { return cfg.newBackOff() }

// GetLogger returns the configured logger.
func (cfg *SessionConfig) GetLogger() logger.Logger { return cfg.logger }

// --- SessionOption ---

// SessionOption is a functional option for configuring a SessionConfig.
type SessionOption interface {
	apply(*SessionConfig) error
}

type sessionOptFunc func(*SessionConfig) error

func (f sessionOptFunc) apply(cfg *SessionConfig) error { return f(cfg) }

// WithActivityTimeout sets the inactivity period after which a connected session reports
// Disconnected and reconnects. Range: 50ms to 10m. Default 3000ms.
func WithActivityTimeout(d time.Duration) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if d < MinActivityTimeout || d > MaxActivityTimeout {
			return fmt.Errorf("tether: activity timeout %v out of range [%v, %v]", d, MinActivityTimeout, MaxActivityTimeout)
		}
		cfg.activityTimeout = d

		return nil
	})
}

// WithConnectTimeout bounds every connect attempt.
func WithConnectTimeout(d time.Duration) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if d <= 0 {
			return errors.New("tether: connect timeout must be positive")
		}
		cfg.connectTimeout = d

		return nil
	})
}

// WithIdleInterval sets the wait of a worker iteration that neither wrote nor received
// anything. It must be shorter than the activity timeout. Zero disables the wait.
func WithIdleInterval(d time.Duration) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if d < 0 || d > MaxIdleInterval {
			return fmt.Errorf("tether: idle interval %v out of range [0, %v]", d, MaxIdleInterval)
		}
		cfg.idleInterval = d

		return nil
	})
}

// WithReconnectBackOff sets the factory of the back-off policy applied between failed
// connect attempts. Each session gets its own policy. A policy returning backoff.Stop is
// reset; sessions never give up reconnecting.
func WithReconnectBackOff(factory func() backoff.BackOff) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if factory == nil {
			return errors.New("tether: back-off factory must not be nil")
		}
		cfg.newBackOff = factory

		return nil
	})
}

// WithReconnectDelay applies a constant delay between failed connect attempts.
// Zero retries immediately.
func WithReconnectDelay(d time.Duration) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if d < 0 {
			return errors.New("tether: reconnect delay must not be negative")
		}
		if d == 0 {
			cfg.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
		} else {
			cfg.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(d) }
		}

		return nil
	})
}

// WithEventQueueSize sets the capacity of the per-session event queue.
func WithEventQueueSize(size int) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if size < 1 {
			return errors.New("tether: event queue size must be >= 1")
		}
		cfg.eventQueueSize = size

		return nil
	})
}

// WithMaxFrameSize sets the largest frame, terminator excluded, the frame decoder accepts.
// Zero disables the limit.
func WithMaxFrameSize(size int) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if size < 0 {
			return errors.New("tether: max frame size must not be negative")
		}
		cfg.maxFrameSize = size

		return nil
	})
}

// WithLogger sets the logger for the session.
func WithLogger(l logger.Logger) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if l == nil {
			return errors.New("tether: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
