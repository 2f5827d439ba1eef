package tether

import "sync/atomic"

// OutboundSlot holds at most one command waiting to be transmitted.
//
// The host writes the slot and the session worker takes from it; both sides may run
// concurrently. A Set overwrites a command that was not taken yet: the slot is
// last-write-wins, not a queue.
type OutboundSlot struct {
	cmd atomic.Pointer[string]
}

// Set stores cmd as the pending command. It reports whether an unsent command was
// overwritten.
func (s *OutboundSlot) Set(cmd string) (overwritten bool) {
	return s.cmd.Swap(&cmd) != nil
}

// Take returns and clears the pending command.
func (s *OutboundSlot) Take() (string, bool) {
	p := s.cmd.Swap(nil)
	if p == nil {
		return "", false
	}

	return *p, true
}

// Pending reports whether a command is waiting.
func (s *OutboundSlot) Pending() bool {
	return s.cmd.Load() != nil
}

// Clear drops the pending command, if any.
func (s *OutboundSlot) Clear() {
	s.cmd.Store(nil)
}
