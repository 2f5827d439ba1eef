package tether

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-tether/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// Manager is a registry of sessions keyed by peer address.
//
// Sessions created through the manager share its session configuration and its manager-wide
// handlers. The transport of a new session is obtained from the TransportFactory.
type Manager struct {
	ctx     context.Context
	factory TransportFactory
	opts    managerOptions

	sessions *xsync.MapOf[string, *Session]
	createMu sync.Mutex
	closed   atomic.Bool
}

type managerOptions struct {
	sessionCfg    *SessionConfig
	handlers      []EventHandler
	stateHandlers []StateChangeHandler
	logger        logger.Logger
}

// ManagerOption configures a Manager.
type ManagerOption interface {
	apply(opts *managerOptions) error
}

type managerOptFunc func(opts *managerOptions) error

func (f managerOptFunc) apply(opts *managerOptions) error {
	return f(opts)
}

// WithSessionConfig sets the configuration of the sessions created by the manager.
func WithSessionConfig(cfg *SessionConfig) ManagerOption {
	return managerOptFunc(func(opts *managerOptions) error {
		if cfg == nil {
			return errors.New("tether: session config must not be nil")
		}
		opts.sessionCfg = cfg

		return nil
	})
}

// WithEventHandler registers handlers receiving the events of every session.
func WithEventHandler(handlers ...EventHandler) ManagerOption {
	return managerOptFunc(func(opts *managerOptions) error {
		opts.handlers = append(opts.handlers, handlers...)
		return nil
	})
}

// WithStateChangeHandler registers state change handlers on every session.
func WithStateChangeHandler(handlers ...StateChangeHandler) ManagerOption {
	return managerOptFunc(func(opts *managerOptions) error {
		opts.stateHandlers = append(opts.stateHandlers, handlers...)
		return nil
	})
}

// WithManagerLogger sets the logger of the manager.
func WithManagerLogger(l logger.Logger) ManagerOption {
	return managerOptFunc(func(opts *managerOptions) error {
		if l == nil {
			return errors.New("tether: logger must not be nil")
		}
		opts.logger = l

		return nil
	})
}

// NewManager creates a session manager. ctx bounds the lifetime of all sessions.
func NewManager(ctx context.Context, factory TransportFactory, opts ...ManagerOption) (*Manager, error) {
	if factory == nil {
		return nil, errors.New("tether: transport factory must not be nil")
	}

	mopts := managerOptions{logger: logger.GetLogger()}
	for _, opt := range opts {
		if err := opt.apply(&mopts); err != nil {
			return nil, err
		}
	}

	if mopts.sessionCfg == nil {
		cfg, err := NewSessionConfig(WithLogger(mopts.logger))
		if err != nil {
			return nil, err
		}
		mopts.sessionCfg = cfg
	}

	return &Manager{
		ctx:      ctx,
		factory:  factory,
		opts:     mopts,
		sessions: xsync.NewMapOf[string, *Session](),
	}, nil
}

// Create creates a stopped session for address.
// It returns ErrSessionExists when the address is already registered.
func (m *Manager) Create(address string) (*Session, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	if address == "" {
		return nil, ErrAddressEmpty
	}

	m.createMu.Lock()
	defer m.createMu.Unlock()

	if _, ok := m.sessions.Load(address); ok {
		return nil, ErrSessionExists
	}

	t, err := m.factory(address)
	if err != nil {
		return nil, err
	}

	s, err := NewSession(m.ctx, address, t, m.opts.sessionCfg)
	if err != nil {
		return nil, err
	}
	s.AddEventHandler(m.opts.handlers...)
	s.AddStateChangeHandler(m.opts.stateHandlers...)

	m.sessions.Store(address, s)
	m.opts.logger.Debug("tether: session created", "address", address)

	return s, nil
}

// Get returns the session of address.
func (m *Manager) Get(address string) (*Session, bool) {
	return m.sessions.Load(address)
}

// Remove stops and closes the session of address and removes it from the registry.
func (m *Manager) Remove(address string) error {
	s, ok := m.sessions.LoadAndDelete(address)
	if !ok {
		return ErrSessionNotFound
	}

	return s.Close()
}

// Addresses returns the registered addresses in sorted order.
func (m *Manager) Addresses() []string {
	addrs := make([]string, 0, m.sessions.Size())
	m.sessions.Range(func(addr string, _ *Session) bool {
		addrs = append(addrs, addr)
		return true
	})
	sort.Strings(addrs)

	return addrs
}

// Range calls fn for each registered session until fn returns false.
func (m *Manager) Range(fn func(s *Session) bool) {
	m.sessions.Range(func(_ string, s *Session) bool {
		return fn(s)
	})
}

// Start starts the session of address, creating it on demand. Starting a running session is
// a no-op.
func (m *Manager) Start(address string) error {
	s, ok := m.Get(address)
	if !ok {
		var err error
		s, err = m.Create(address)
		if errors.Is(err, ErrSessionExists) {
			s, ok = m.Get(address)
			if !ok {
				return ErrSessionNotFound
			}
		} else if err != nil {
			return err
		}
	}

	return s.Start()
}

// Stop stops the session of address. Stopping an unknown or stopped session is a no-op.
func (m *Manager) Stop(address string) {
	if s, ok := m.Get(address); ok {
		s.Stop()
	}
}

// SendCommand stores cmd as the pending command of the session of address.
// It returns false when the session is unknown or not running, or cmd is invalid.
func (m *Manager) SendCommand(address string, cmd string) bool {
	s, ok := m.Get(address)
	if !ok {
		return false
	}

	return s.SendCommand(cmd)
}

// Subscribe registers handler on the session of address.
func (m *Manager) Subscribe(address string, handler EventHandler) error {
	s, ok := m.Get(address)
	if !ok {
		return ErrSessionNotFound
	}
	s.AddEventHandler(handler)

	return nil
}

// State returns the state of the session of address.
func (m *Manager) State(address string) (ConnState, bool) {
	s, ok := m.Get(address)
	if !ok {
		return StoppedState, false
	}

	return s.State(), true
}

// Position returns the last known position of the session of address.
func (m *Manager) Position(address string) (Position, bool) {
	s, ok := m.Get(address)
	if !ok {
		return Position{}, false
	}

	return s.Position()
}

// Close stops and closes every session. Create fails with ErrManagerClosed afterwards.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	m.createMu.Lock()
	defer m.createMu.Unlock()

	var errs []error
	m.sessions.Range(func(addr string, s *Session) bool {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
		m.sessions.Delete(addr)

		return true
	})

	return errors.Join(errs...)
}
