package engine

import (
	"github.com/namikmesic/claude-tether/internal/protocol"
	"github.com/namikmesic/claude-tether/internal/toolcall"
)

// Callbacks is one subscription to a session's incremental updates. All
// fields are optional. Delivery is strictly sequential per session: no
// callback is invoked concurrently with another for the same session, and
// message updates arrive in event order.
type Callbacks struct {
	OnMessage      func(msg protocol.Message)
	OnToolCall     func(state toolcall.State)
	OnStatus       func(status Status)
	OnNotification func(ev protocol.NotificationEvent)
	OnModelChange  func(ev protocol.ModelChangeEvent)
	// OnWarning receives non-fatal conditions such as
	// ErrReconciliationInconsistency.
	OnWarning func(err error)
}

func (s *Session) subscribers() []Callbacks {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	out := make([]Callbacks, len(s.subs))
	copy(out, s.subs)
	return out
}

func (s *Session) emitMessage(msg protocol.Message) {
	for _, cb := range s.subscribers() {
		if cb.OnMessage != nil {
			cb.OnMessage(msg)
		}
	}
}

func (s *Session) emitToolCall(state toolcall.State) {
	for _, cb := range s.subscribers() {
		if cb.OnToolCall != nil {
			cb.OnToolCall(state)
		}
	}
}

func (s *Session) emitStatus(status Status) {
	for _, cb := range s.subscribers() {
		if cb.OnStatus != nil {
			cb.OnStatus(status)
		}
	}
}

func (s *Session) emitNotification(ev protocol.NotificationEvent) {
	for _, cb := range s.subscribers() {
		if cb.OnNotification != nil {
			cb.OnNotification(ev)
		}
	}
}

func (s *Session) emitModelChange(ev protocol.ModelChangeEvent) {
	for _, cb := range s.subscribers() {
		if cb.OnModelChange != nil {
			cb.OnModelChange(ev)
		}
	}
}

func (s *Session) emitWarning(err error) {
	for _, cb := range s.subscribers() {
		if cb.OnWarning != nil {
			cb.OnWarning(err)
		}
	}
}
