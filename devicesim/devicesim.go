// Package devicesim simulates a tether device: it streams position frames, reports button
// changes and answers host commands with AOK or ERROR frames.
//
// The simulator speaks the device side of the protocol over any io.ReadWriter, so it serves
// an in-memory device end as well as TCP connections.
package devicesim

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/arloliu/go-tether/logger"
	"github.com/arloliu/go-tether/tether"
	"golang.org/x/sync/errgroup"
)

// DefaultInterval is the default period of position frames.
const DefaultInterval = 50 * time.Millisecond

// DefaultCommands are the command names acknowledged by the default command handler.
var DefaultCommands = []string{"LED", "BEEP", "VIBRATE", "PING", "RESET"}

// CommandHandler returns the reply frame, without terminator, for a host command.
type CommandHandler func(cmd string) string

// Simulator is a simulated device.
type Simulator struct {
	interval time.Duration
	jitter   int32
	handler  CommandHandler
	logger   logger.Logger

	mu      sync.Mutex
	pos     [3]int32 // tenths of a millimeter
	buttons [2]bool
	writers map[io.Writer]*sync.Mutex
	cmds    []string
}

// Option configures a Simulator.
type Option func(s *Simulator)

// WithInterval sets the period of position frames. Zero disables position streaming.
func WithInterval(d time.Duration) Option {
	return func(s *Simulator) {
		if d >= 0 {
			s.interval = d
		}
	}
}

// WithJitter makes the position walk randomly by up to n tenths of a millimeter per axis
// between frames.
func WithJitter(n int32) Option {
	return func(s *Simulator) {
		if n >= 0 {
			s.jitter = n
		}
	}
}

// WithCommandHandler replaces the command handler.
func WithCommandHandler(h CommandHandler) Option {
	return func(s *Simulator) {
		if h != nil {
			s.handler = h
		}
	}
}

// WithLogger sets the logger of the simulator.
func WithLogger(l logger.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a simulator positioned at the origin with both buttons released.
func New(opts ...Option) *Simulator {
	s := &Simulator{
		interval: DefaultInterval,
		handler:  AcknowledgeCommands(DefaultCommands...),
		logger:   logger.GetLogger(),
		writers:  make(map[io.Writer]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// AcknowledgeCommands returns a handler answering "AOK <cmd>" to the named commands and
// "ERROR UNKNOWN <cmd>" to any other.
func AcknowledgeCommands(names ...string) CommandHandler {
	known := make(map[string]struct{}, len(names))
	for _, name := range names {
		known[name] = struct{}{}
	}

	return func(cmd string) string {
		name, _, _ := strings.Cut(cmd, string(tether.TokenSeparator))
		if _, ok := known[name]; ok {
			return tether.CmdAck + " " + cmd
		}

		return tether.CmdError + " UNKNOWN " + cmd
	}
}

// SetPosition sets the position reported by the next position frame, in tenths of a
// millimeter.
func (s *Simulator) SetPosition(x, y, z int32) {
	s.mu.Lock()
	s.pos = [3]int32{x, y, z}
	s.mu.Unlock()
}

// SetButton changes the state of button id (1 or 2) and reports it to all connected hosts.
func (s *Simulator) SetButton(id int, pressed bool) error {
	if id != 1 && id != 2 {
		return fmt.Errorf("devicesim: invalid button %d", id)
	}

	s.mu.Lock()
	s.buttons[id-1] = pressed
	s.mu.Unlock()

	state := 0
	if pressed {
		state = 1
	}
	s.broadcast(fmt.Sprintf("BTN_%d %d", id, state))

	return nil
}

// Commands returns the commands received so far.
func (s *Simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.cmds...)
}

// Serve speaks the device protocol on rw until ctx is done or rw fails.
//
// The caller owns rw. A pending read is not interrupted by ctx: Serve returns after the caller
// closes rw, or when rw reports EOF.
func (s *Simulator) Serve(ctx context.Context, rw io.ReadWriter) error {
	wmu := &sync.Mutex{}
	s.mu.Lock()
	s.writers[rw] = wmu
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.writers, rw)
		s.mu.Unlock()
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.readCommands(gctx, rw, wmu)
	})

	if s.interval > 0 {
		g.Go(func() error {
			return s.streamPosition(gctx, rw, wmu)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}

	return err
}

// ServeListener accepts connections on ln and serves each of them until ctx is done.
// ln is closed when ServeListener returns.
func (s *Simulator) ServeListener(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}

				return err
			}

			s.logger.Info("devicesim: host connected", "remote", conn.RemoteAddr().String())
			g.Go(func() error {
				s.serveConn(gctx, conn)
				return nil
			})
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

func (s *Simulator) serveConn(ctx context.Context, conn net.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()

	if err := s.Serve(connCtx, conn); err != nil && connCtx.Err() == nil {
		s.logger.Debug("devicesim: connection ended", "error", err)
	}
	s.logger.Info("devicesim: host disconnected", "remote", conn.RemoteAddr().String())
}

func (s *Simulator) readCommands(ctx context.Context, rw io.ReadWriter, wmu *sync.Mutex) error {
	scanner := bufio.NewScanner(rw)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		cmd := strings.TrimSuffix(scanner.Text(), "\r")
		if cmd == "" {
			continue
		}

		s.mu.Lock()
		s.cmds = append(s.cmds, cmd)
		s.mu.Unlock()

		reply := s.handler(cmd)
		s.logger.Debug("devicesim: command received", "command", cmd, "reply", reply)

		if err := writeFrame(rw, wmu, reply); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	return io.EOF
}

func (s *Simulator) streamPosition(ctx context.Context, w io.Writer, wmu *sync.Mutex) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if err := writeFrame(w, wmu, s.nextPositionFrame()); err != nil {
				return err
			}
		}
	}
}

func (s *Simulator) nextPositionFrame() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.jitter > 0 {
		for i := range s.pos {
			s.pos[i] += rand.Int32N(2*s.jitter+1) - s.jitter //nolint:gosec
		}
	}

	return fmt.Sprintf("%s %d %d %d", tether.CmdPosition, s.pos[0], s.pos[1], s.pos[2])
}

func (s *Simulator) broadcast(frame string) {
	s.mu.Lock()
	writers := make(map[io.Writer]*sync.Mutex, len(s.writers))
	for w, wmu := range s.writers {
		writers[w] = wmu
	}
	s.mu.Unlock()

	for w, wmu := range writers {
		if err := writeFrame(w, wmu, frame); err != nil {
			s.logger.Debug("devicesim: failed to write frame", "frame", frame, "error", err)
		}
	}
}

func writeFrame(w io.Writer, wmu *sync.Mutex, frame string) error {
	wmu.Lock()
	defer wmu.Unlock()

	_, err := io.WriteString(w, tether.EncodeFrame(frame))

	return err
}
