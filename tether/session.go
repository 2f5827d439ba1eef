package tether

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-tether/internal/task"
	"github.com/arloliu/go-tether/logger"
	"github.com/cenkalti/backoff/v4"
)

// Session is the logical connection to one peer device, identified by its address.
//
// A session is created stopped. Start launches its supervisor worker, Stop tears the worker
// down (emitting Disconnected if a link was up) and Start may be called again afterwards.
// Close stops the session for good and ends event delivery.
//
// All methods are safe for concurrent use.
type Session struct {
	address   string
	cfg       *SessionConfig
	transport Transport
	logger    logger.Logger

	on     atomic.Bool // desired run state, written by the host
	closed atomic.Bool
	state  atomicConnState
	slot   OutboundSlot

	// owned by the worker goroutine
	decoder      *FrameDecoder
	lastActivity time.Time
	retry        backoff.BackOff

	posMu  sync.RWMutex
	pos    Position
	hasPos bool

	handlerMu     sync.RWMutex
	handlers      []EventHandler
	stateHandlers []StateChangeHandler

	events   chan Event
	worker   *task.Manager
	delivery *task.Manager
	lifeMu   sync.Mutex // serializes Start, Stop and Close

	metrics SessionMetrics
}

// NewSession creates a stopped session for address over transport t.
//
// ctx bounds the lifetime of the session goroutines. A nil cfg selects the default
// configuration.
func NewSession(ctx context.Context, address string, t Transport, cfg *SessionConfig) (*Session, error) {
	if address == "" {
		return nil, ErrAddressEmpty
	}
	if t == nil {
		return nil, ErrTransportNil
	}
	if cfg == nil {
		cfg = defaultSessionConfig()
	}

	l := cfg.GetLogger().With("address", address)
	s := &Session{
		address:   address,
		cfg:       cfg,
		transport: t,
		logger:    l,
		decoder:   NewFrameDecoder(cfg.MaxFrameSize()),
		retry:     cfg.NewBackOff(),
		events:    make(chan Event, cfg.EventQueueSize()),
		worker:    task.NewManager(ctx, l),
		delivery:  task.NewManager(ctx, l),
	}

	if err := s.delivery.Start("eventDelivery", s.deliverOnce, nil); err != nil {
		return nil, err
	}

	return s, nil
}

// Address returns the peer address of the session.
func (s *Session) Address() string { return s.address }

// String returns the session in the form "<Tether: ADDRESS>".
func (s *Session) String() string { return "<Tether: " + s.address + ">" }

// Config returns the session configuration.
func (s *Session) Config() *SessionConfig { return s.cfg }

// GetLogger returns the logger of the session.
func (s *Session) GetLogger() logger.Logger { return s.logger }

// Metrics returns the metrics of the session.
func (s *Session) Metrics() *SessionMetrics { return &s.metrics }

// State returns the current supervision state.
func (s *Session) State() ConnState { return s.state.Load() }

// IsRunning reports whether the session was started and not stopped.
func (s *Session) IsRunning() bool { return s.on.Load() }

// IsConnected reports whether the link is currently established.
func (s *Session) IsConnected() bool { return s.state.Load().IsConnected() }

// Position returns the last position received from the device. It returns false when no
// position was received yet.
func (s *Session) Position() (Position, bool) {
	s.posMu.RLock()
	defer s.posMu.RUnlock()

	return s.pos, s.hasPos
}

// AddEventHandler registers handlers receiving the events of the session.
func (s *Session) AddEventHandler(handlers ...EventHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()

	s.handlers = append(s.handlers, handlers...)
}

// AddStateChangeHandler registers handlers invoked on state changes.
func (s *Session) AddStateChangeHandler(handlers ...StateChangeHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()

	s.stateHandlers = append(s.stateHandlers, handlers...)
}

// Start launches the supervisor worker. Starting a running session is a no-op.
func (s *Session) Start() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.closed.Load() {
		return ErrSessionClosed
	}

	if !s.on.CompareAndSwap(false, true) {
		return nil
	}

	// the previous worker, if any, has terminated; re-arm the manager
	s.worker.Wait()
	s.retry.Reset()

	s.logger.Info("tether: session started")

	// the worker enters Connecting on its first iteration
	if err := s.worker.Start("supervisor", s.superviseOnce, s.teardown); err != nil {
		s.on.Store(false)

		return err
	}

	return nil
}

// Stop requests the worker to stop and waits for its teardown. If a link was established,
// Disconnected is emitted and the transport is closed. Stopping a stopped session is a no-op.
//
// Stop cancels an in-flight connect attempt and any back-off or idle wait.
func (s *Session) Stop() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	wasRunning := s.on.CompareAndSwap(true, false)

	// the worker may also be ending on its own after its context was cancelled
	s.worker.Stop()
	s.worker.Wait()

	if wasRunning {
		s.logger.Info("tether: session stopped")
	}
}

// Close stops the session and ends event delivery after the queued events were delivered.
// A closed session cannot be started again.
func (s *Session) Close() error {
	s.Stop()

	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.delivery.Stop()
	s.delivery.Wait()

	return nil
}

// SendCommand stores cmd as the pending outbound command, replacing an unsent one.
//
// It returns false when the session is not running, or when cmd is empty or contains the
// frame terminator. The command is transmitted on the next worker iteration with a link up.
func (s *Session) SendCommand(cmd string) bool {
	if !s.on.Load() {
		s.logger.Debug("tether: command rejected, session not running", "command", cmd)
		return false
	}

	if cmd == "" || strings.ContainsRune(cmd, FrameTerminator) {
		s.logger.Warn("tether: command rejected, invalid text", "command", cmd)
		return false
	}

	if s.slot.Set(cmd) {
		s.metrics.incCommandOverwriteCount()
		s.logger.Debug("tether: unsent command overwritten", "command", cmd)
	}

	return true
}

// setState stores the new state and invokes the state change handlers when it differs
// from the previous one.
func (s *Session) setState(newState ConnState) {
	prevState := s.state.Swap(newState)
	if prevState == newState {
		return
	}

	s.logger.Debug("tether: state changed", "prevState", prevState, "newState", newState)

	s.handlerMu.RLock()
	handlers := s.stateHandlers
	s.handlerMu.RUnlock()

	for _, handler := range handlers {
		if handler != nil {
			handler(s, prevState, newState)
		}
	}
}

func (s *Session) setPosition(p Position) {
	s.posMu.Lock()
	s.pos = p
	s.hasPos = true
	s.posMu.Unlock()
}
