package tether

import (
	"context"
	"time"

	"github.com/arloliu/go-tether/internal/pool"
	"github.com/cenkalti/backoff/v4"
)

// superviseOnce performs a single iteration of the supervisor loop.
//
//  1. Stop requested: end the loop; teardown performs the disconnect sequence.
//  2. Not connected: reset the transport if needed and connect.
//  3. Connected: detect a lost link (activity timeout or streaming loss).
//  4. Write the pending outbound command.
//  5. Read, decode and dispatch all complete frames.
//
// An iteration that neither wrote nor received anything waits for the idle interval.
func (s *Session) superviseOnce(ctx context.Context) bool {
	if !s.on.Load() || ctx.Err() != nil {
		return false
	}

	if !s.IsConnected() && !s.connect(ctx) {
		return true
	}

	if s.linkLost() {
		return true
	}

	worked := s.flushOutbound()
	if s.receive() {
		worked = true
	}

	if !worked {
		pool.Sleep(ctx, s.cfg.IdleInterval())
	}

	return true
}

// connect attempts to establish the link. On failure it waits for the back-off delay and
// returns false.
func (s *Session) connect(ctx context.Context) bool {
	s.setState(ConnectingState)

	if s.transport.Streaming() {
		// left open by a lost link
		s.closeTransport()
	}

	connCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout())
	err := s.transport.Connect(connCtx)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			return false
		}

		s.metrics.incConnectFailCount()
		attempt := s.metrics.incConnRetryGauge()

		delay := s.retry.NextBackOff()
		if delay == backoff.Stop {
			s.retry.Reset()
			delay = s.retry.NextBackOff()
		}

		s.logger.Warn("tether: failed to connect", "error", err, "attempt", attempt, "retryIn", delay)
		pool.Sleep(ctx, delay)

		return false
	}

	s.retry.Reset()
	s.metrics.resetConnRetryGauge()
	s.metrics.incConnectCount()

	// bytes of a previous link cannot complete frames of this one
	s.decoder.Reset()
	s.lastActivity = time.Now()
	s.setState(ConnectedState)
	s.logger.Info("tether: connected")
	s.emit(Connected{})

	return true
}

// linkLost reports and handles the loss of an established link. The transport is not closed
// here; the next connect attempt resets it.
func (s *Session) linkLost() bool {
	elapsed := time.Since(s.lastActivity)
	timedOut := elapsed > s.cfg.ActivityTimeout()
	streaming := s.transport.Streaming()

	if !timedOut && streaming {
		return false
	}

	if timedOut {
		s.metrics.incTimeoutCount()
	}
	s.metrics.incDisconnectCount()

	s.logger.Warn("tether: lost connection", "elapsed", elapsed, "timedOut", timedOut, "streaming", streaming)
	s.setState(ConnectingState)
	s.emit(Disconnected{})

	return true
}

// flushOutbound writes the pending command, if any.
func (s *Session) flushOutbound() bool {
	cmd, ok := s.slot.Take()
	if !ok {
		return false
	}

	if err := s.transport.Write(EncodeFrame(cmd)); err != nil {
		s.metrics.incCommandErrCount()
		s.logger.Error("tether: failed to send command", "command", cmd, "error", err)

		return true
	}

	s.metrics.incCommandSendCount()
	s.logger.Debug("tether: command sent", "command", cmd)

	return true
}

// receive reads from the transport and dispatches every complete frame before returning.
// It reports whether any text was received.
func (s *Session) receive() bool {
	text, err := s.transport.Read()
	if err != nil {
		// a broken link is reported through Streaming on the next iteration
		s.logger.Debug("tether: read failed", "error", err)
		return false
	}

	if text == "" {
		return false
	}

	s.lastActivity = time.Now()

	s.decoder.Push(text)

	for {
		frame, ok := s.decoder.Pull()
		if !ok {
			break
		}
		s.dispatch(frame)
	}

	if n := s.decoder.TakeDropped(); n > 0 {
		s.metrics.addFrameDropCount(uint64(n))
		s.logger.Warn("tether: oversized frames dropped", "count", n, "limit", s.cfg.MaxFrameSize())
	}

	return true
}

// dispatch converts a frame into an event and emits it; malformed frames are dropped.
func (s *Session) dispatch(frame string) {
	s.metrics.incFrameRecvCount()

	ev, err := ParseFrame(frame)
	if err != nil {
		s.metrics.incFrameDropCount()
		s.logger.Warn("tether: frame dropped", "frame", frame, "error", err)

		return
	}

	s.logger.Debug("tether: frame received", "frame", frame, "event", ev.Type())

	if pos, ok := ev.(PositionUpdate); ok {
		s.setPosition(pos.Position())
	}

	s.emit(ev)
}

// teardown runs once when the worker ends: the disconnect sequence when a link is up,
// otherwise a silent close of a transport left streaming.
func (s *Session) teardown() {
	if s.IsConnected() {
		s.setState(StoppedState)
		s.slot.Clear()
		s.decoder.Reset()
		s.metrics.incDisconnectCount()
		s.emit(Disconnected{})
		s.closeTransport()
	} else {
		s.slot.Clear()
		s.decoder.Reset()
		if s.transport.Streaming() {
			s.closeTransport()
		}
		s.setState(StoppedState)
	}

	// a worker ending on its own (panic) leaves the session restartable
	s.on.Store(false)
}

func (s *Session) closeTransport() {
	if err := s.transport.Close(); err != nil {
		s.logger.Error("tether: failed to close transport", "error", err)
	}
}
