// Package engine owns the lifecycle of one resumable agent conversation:
// streaming attempts, retry with reconciliation against the server's
// authoritative transcript, and catch-up polling at session resume. One
// Session serves one logical session owner; callers managing several
// sessions use one Session each.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/namikmesic/claude-tether/internal/api"
	"github.com/namikmesic/claude-tether/internal/protocol"
	"github.com/namikmesic/claude-tether/internal/toolcall"
	"github.com/namikmesic/claude-tether/internal/transcript"
)

// Session is the handle exposed to collaborators: start, send, cancel, and
// subscribe. Transcript and tool-call state live as long as the session.
type Session struct {
	client *api.Client
	opts   Options

	subsMu sync.Mutex
	subs   []Callbacks

	mu      sync.Mutex
	id      string
	status  Status
	err     error
	trans   *transcript.Transcript
	acc     *transcript.Accumulator
	tracker *toolcall.Tracker

	ctx        context.Context
	cancel     context.CancelFunc
	streaming  bool
	runDone    chan struct{}
	pollCancel context.CancelFunc

	// notifyQueue collects observer notifications produced under mu; they
	// are flushed in order after the lock is released so callbacks may
	// safely call back into the session. At most one goroutine drains the
	// queue at a time (flushing), so delivery stays strictly sequential
	// even when the poller and a stream attempt mutate concurrently.
	notifyQueue []func()
	flushing    bool

	// sleep is a seam for tests; production uses sleepCtx.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewSession builds a session over an initial message list (empty to start a
// fresh conversation, a fetched history to resume one). sessionID may be
// empty; the server assigns one on the first stream.
func NewSession(client *api.Client, opts Options, sessionID string, initial []protocol.Message) *Session {
	s := &Session{
		client: client,
		opts:   opts.withDefaults(),
		id:     sessionID,
		status: StatusIdle,
		sleep:  sleepCtx,
		now:    time.Now,
	}
	s.trans = transcript.NewFrom(initial)
	s.acc = transcript.NewAccumulator(s.trans, func(m protocol.Message) {
		s.notifyQueue = append(s.notifyQueue, func() { s.emitMessage(m) })
	})
	s.tracker = toolcall.NewTracker(func(st toolcall.State) {
		s.notifyQueue = append(s.notifyQueue, func() { s.emitToolCall(st) })
	})

	// Seed tool state from history so resumed sessions know which calls
	// already completed. History is not an incremental update, so the
	// queued notifications are discarded.
	for _, m := range s.trans.Messages() {
		s.tracker.Observe(m)
	}
	s.notifyQueue = nil
	return s
}

// apply runs a transcript/tracker mutation under the session lock, then
// flushes the notifications it produced, in order, with the lock released.
// If another goroutine is already flushing (or a callback reentered the
// session), the new notifications are left on the queue for that flusher to
// drain, so no two callbacks ever run concurrently.
func (s *Session) apply(fn func()) {
	s.mu.Lock()
	fn()
	if s.flushing {
		s.mu.Unlock()
		return
	}
	s.flushing = true
	for len(s.notifyQueue) > 0 {
		q := s.notifyQueue
		s.notifyQueue = nil
		s.mu.Unlock()
		for _, notify := range q {
			notify()
		}
		s.mu.Lock()
	}
	s.flushing = false
	s.mu.Unlock()
}

// Subscribe registers one set of callbacks for incremental updates.
func (s *Session) Subscribe(cb Callbacks) {
	s.subsMu.Lock()
	s.subs = append(s.subs, cb)
	s.subsMu.Unlock()
}

// Start binds the session lifetime to ctx and, when resuming a session
// whose trailing message is a recent user message, launches the catch-up
// poller. It never blocks.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	catchUp := s.shouldCatchUpLocked()
	var pollCtx context.Context
	if catchUp {
		pollCtx, s.pollCancel = context.WithCancel(s.ctx)
	}
	s.mu.Unlock()

	if catchUp {
		log.Info().Str("session_id", s.id).Msg("resuming with catch-up polling")
		go s.catchUp(pollCtx)
	}
}

// SendText appends one user message with a single text block and enters the
// streaming flow.
func (s *Session) SendText(text string) error {
	return s.SendMessage(protocol.Message{
		ID:      uuid.New().String(),
		Role:    protocol.RoleUser,
		Created: s.now(),
		Content: []protocol.ContentBlock{{Type: protocol.BlockText, Text: text}},
	})
}

// SendMessage appends one user message and starts a stream attempt. Sending
// pre-empts any catch-up polling still in flight. Only one stream may be
// active per session.
func (s *Session) SendMessage(msg protocol.Message) error {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		return ErrCancelled
	}
	if s.ctx.Err() != nil || s.status == StatusCancelled {
		s.mu.Unlock()
		return ErrCancelled
	}
	if s.streaming {
		s.mu.Unlock()
		return ErrStreamActive
	}
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
	}
	s.streaming = true
	s.err = nil
	s.runDone = make(chan struct{})
	done := s.runDone
	s.mu.Unlock()

	s.apply(func() { s.acc.Merge(msg) })

	go s.run(done)
	return nil
}

// Cancel tears down the active connection, if any, and prevents all further
// retries. Terminal and idempotent.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	changed := s.status != StatusCancelled
	s.status = StatusCancelled
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if changed {
		s.emitStatus(StatusCancelled)
	}
}

// Wait returns a channel closed when the current streaming flow settles
// (completed, failed, or cancelled). With no stream active it returns a
// closed channel.
func (s *Session) Wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runDone == nil || !s.streaming {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.runDone
}

// ID returns the session id, empty until the server assigns one.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Status returns the controller's current state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the terminal error after a non-retryable failure.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Messages returns a copy of the current transcript.
func (s *Session) Messages() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trans.Messages()
}

// ToolCalls returns copies of all tracked tool-call states.
func (s *Session) ToolCalls() []toolcall.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.States()
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	if s.status == status || s.status == StatusCancelled {
		s.mu.Unlock()
		return
	}
	s.status = status
	s.mu.Unlock()
	s.emitStatus(status)
}

// shouldCatchUpLocked reports whether resume-time polling applies: the
// trailing message is from the user and recent enough that the agent may
// still be working on it.
func (s *Session) shouldCatchUpLocked() bool {
	if s.id == "" {
		return false
	}
	last, ok := s.trans.Last()
	if !ok || last.Role != protocol.RoleUser {
		return false
	}
	return s.now().Sub(last.Created) < s.opts.FreshnessWindow
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
