package tether

import (
	"context"
)

// emit queues ev for delivery without blocking; the newest event is dropped when the queue
// is full.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.metrics.incEventDropCount()
		s.logger.Warn("tether: event queue full, event dropped", "event", ev.Type())
	}
}

// deliverOnce hands one queued event to the handlers. When the delivery task is stopped the
// remaining queued events are delivered before it ends.
func (s *Session) deliverOnce(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		s.drainEvents()
		return false

	case ev := <-s.events:
		s.deliver(ev)
		return true
	}
}

func (s *Session) drainEvents() {
	for {
		select {
		case ev := <-s.events:
			s.deliver(ev)
		default:
			return
		}
	}
}

func (s *Session) deliver(ev Event) {
	s.handlerMu.RLock()
	handlers := s.handlers
	s.handlerMu.RUnlock()

	for _, handler := range handlers {
		if handler != nil {
			s.callHandler(handler, ev)
		}
	}
}

func (s *Session) callHandler(handler EventHandler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tether: panic in event handler", "event", ev.Type(), "panic", r)
		}
	}()

	handler(s.address, ev)
}
