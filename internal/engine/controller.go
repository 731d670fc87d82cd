package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/namikmesic/claude-tether/internal/api"
	"github.com/namikmesic/claude-tether/internal/protocol"
	"github.com/namikmesic/claude-tether/internal/stream"
)

// run drives the retry loop for one send: stream, and on retryable failure
// reconcile then reconnect with capped exponential backoff. Retries continue
// until completion or cancellation; reachability is outside the engine's
// control, so there is no attempt ceiling.
func (s *Session) run(done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.streaming = false
		s.mu.Unlock()
		close(done)
	}()

	s.mu.Lock()
	ctx := s.ctx
	msgs := s.trans.Messages()
	s.mu.Unlock()

	attempt := 0
	decodeAborts := 0

	for {
		if ctx.Err() != nil {
			s.settleCancelled()
			return
		}
		if attempt > 0 {
			delay := backoffDelay(attempt-1, s.opts.BackoffCap)
			log.Info().
				Str("session_id", s.ID()).
				Int("attempt", attempt+1).
				Dur("backoff", delay).
				Msg("waiting before reconnect")
			if err := s.sleep(ctx, delay); err != nil {
				s.settleCancelled()
				return
			}
		}

		err := s.attemptStream(ctx, msgs)
		if err == nil {
			s.setStatus(StatusCompleted)
			return
		}
		if ctx.Err() != nil {
			s.settleCancelled()
			return
		}

		var da *decodeAbortError
		if errors.As(err, &da) {
			// One decode-aborted attempt may be a mangled proxy hop worth
			// one reconnect; a second in a row means the stream itself is
			// broken.
			decodeAborts++
			if decodeAborts >= 2 {
				s.fail(err)
				return
			}
		} else {
			decodeAborts = 0
			if !retryable(err) {
				s.fail(err)
				return
			}
		}

		log.Warn().
			Err(err).
			Str("session_id", s.ID()).
			Int("attempt", attempt+1).
			Msg("stream attempt failed, reconciling before retry")
		s.setStatus(StatusReconciling)

		outcome, nextMsgs, recErr := s.reconcile(ctx)
		if ctx.Err() != nil {
			s.settleCancelled()
			return
		}
		switch {
		case recErr != nil:
			if !retryable(recErr) {
				s.fail(recErr)
				return
			}
			// Transcript fetch hit the same bad network; retry on the
			// locally held view.
			log.Warn().Err(recErr).Msg("reconciliation fetch failed, retrying with local transcript")
			msgs = nextMsgs
		case outcome == reconcileCompleted:
			// The server finished the reply while we were disconnected.
			// Resending would discard that work.
			log.Info().Str("session_id", s.ID()).Msg("server already completed reply, no retry needed")
			s.setStatus(StatusCompleted)
			return
		default:
			msgs = nextMsgs
		}
		attempt++
	}
}

// attemptStream performs one connection: start the stream, decode events in
// arrival order, and feed the accumulator and tracker. Returns nil only on
// a Finish event.
func (s *Session) attemptStream(ctx context.Context, msgs []protocol.Message) error {
	s.setStatus(StatusConnecting)
	attemptID := uuid.New()

	attemptCtx, cancelAttempt := context.WithCancel(ctx)
	defer cancelAttempt()

	// Per-event read guard: a connection that stops emitting everything,
	// pings included, is torn down and treated as a connectivity failure.
	var timedOut atomic.Bool
	guard := time.AfterFunc(s.opts.ReadTimeout, func() {
		timedOut.Store(true)
		cancelAttempt()
	})
	defer guard.Stop()

	body, assigned, err := s.client.StartStream(attemptCtx, s.ID(), msgs)
	if err != nil {
		if timedOut.Load() {
			return &api.CallError{Kind: api.ErrConnectivity, Op: "start stream", Err: &readTimeoutError{timeout: s.opts.ReadTimeout.String()}}
		}
		return err
	}
	defer body.Close()
	guard.Reset(s.opts.ReadTimeout)

	s.mu.Lock()
	if s.id == "" {
		s.id = assigned
	}
	s.mu.Unlock()

	s.setStatus(StatusStreaming)
	log.Debug().
		Str("session_id", s.ID()).
		Str("attempt_id", attemptID.String()).
		Int("messages", len(msgs)).
		Msg("stream open")

	dec := stream.NewDecoder(body)
	decodeErrs := 0

	for {
		ev, err := dec.Next()
		guard.Reset(s.opts.ReadTimeout)
		if err != nil {
			var de *stream.DecodeError
			if errors.As(err, &de) {
				decodeErrs++
				if decodeErrs >= s.opts.DecodeErrorThreshold {
					return &decodeAbortError{count: decodeErrs, last: de}
				}
				// A lone malformed event may be a transient framing
				// glitch; skip it rather than abort the stream.
				log.Warn().Err(de).Int("count", decodeErrs).Msg("skipping malformed event")
				continue
			}
			if timedOut.Load() {
				return &api.CallError{Kind: api.ErrConnectivity, Op: "stream read", Err: &readTimeoutError{timeout: s.opts.ReadTimeout.String()}}
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// EOF or transport failure without a Finish event: the stream
			// ended prematurely.
			return &api.CallError{Kind: api.ErrConnectivity, Op: "stream read", Err: err}
		}

		switch ev := ev.(type) {
		case protocol.MessageEvent:
			s.apply(func() {
				s.acc.Merge(ev.Message)
				s.tracker.Observe(ev.Message)
			})
		case protocol.ErrorEvent:
			return &api.CallError{Kind: api.ErrRemoteServer, Op: "stream", Err: errors.New(ev.Text)}
		case protocol.FinishEvent:
			log.Debug().Str("reason", ev.Reason).Msg("stream finished")
			s.apply(func() { s.tracker.FinishStream() })
			return nil
		case protocol.ModelChangeEvent:
			log.Info().Str("model", ev.Model).Str("mode", ev.Mode).Msg("model changed")
			s.emitModelChange(ev)
		case protocol.NotificationEvent:
			s.emitNotification(ev)
		case protocol.PingEvent:
			// Heartbeat; the read guard was already reset.
		}
	}
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	log.Error().Err(err).Str("session_id", s.ID()).Msg("stream failed terminally")
	s.setStatus(StatusFailed)
}

func (s *Session) settleCancelled() {
	s.mu.Lock()
	already := s.status == StatusCancelled
	s.status = StatusCancelled
	s.mu.Unlock()
	if !already {
		s.emitStatus(StatusCancelled)
	}
}

// retryable reports whether the failure class warrants reconcile-and-retry.
// Client errors and cancellation are final.
func retryable(err error) bool {
	return errors.Is(err, api.ErrConnectivity) || errors.Is(err, api.ErrRemoteServer)
}

// backoffDelay is min(2^n, cap) seconds.
func backoffDelay(n int, cap time.Duration) time.Duration {
	if n > 30 {
		return cap
	}
	d := time.Duration(1<<uint(n)) * time.Second
	if d > cap {
		return cap
	}
	return d
}
