package engine

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/namikmesic/claude-tether/internal/protocol"
)

type reconcileOutcome int

const (
	// reconcileCompleted: the server already holds more than we sent; its
	// transcript was adopted and no retry is needed.
	reconcileCompleted reconcileOutcome = iota
	// reconcileRetry: no new work server-side; retry with the returned
	// message list as the request body.
	reconcileRetry
)

// reconcile fetches the server's authoritative transcript and diffs it
// against local state before any retry is issued. The caller-visible
// transcript never shrinks: a shorter server transcript is a warning, not a
// rollback.
func (s *Session) reconcile(ctx context.Context) (reconcileOutcome, []protocol.Message, error) {
	s.mu.Lock()
	id := s.id
	localLen := s.trans.Len()
	local := s.trans.Messages()
	s.mu.Unlock()

	if id == "" {
		// The first attempt failed before the server assigned a session;
		// there is nothing server-side to reconcile against.
		return reconcileRetry, local, nil
	}

	server, err := s.client.FetchTranscript(ctx, id)
	if err != nil {
		return reconcileRetry, local, err
	}

	switch {
	case len(server) > localLen:
		// The server kept working while we were disconnected. Adopt its
		// transcript wholesale; observers hear each newly revealed message
		// in order, and tool state picks up any completions it carries.
		log.Info().
			Str("session_id", id).
			Int("local", localLen).
			Int("server", len(server)).
			Msg("server transcript ahead of local, adopting")
		s.apply(func() {
			s.acc.Adopt(server)
			for _, m := range server {
				s.tracker.Observe(m)
			}
		})
		return reconcileCompleted, nil, nil

	case len(server) == localLen:
		// No progress server-side; retry with the authoritative copy so
		// the server is never asked to discard work it already holds.
		return reconcileRetry, server, nil

	default:
		// A server restart may have lost unpersisted state. Keep the local
		// view; transient network state must not move the transcript
		// backward relative to what the caller has seen.
		log.Warn().
			Str("session_id", id).
			Int("local", localLen).
			Int("server", len(server)).
			Msg("server transcript shorter than local, keeping local view")
		s.emitWarning(ErrReconciliationInconsistency)
		return reconcileRetry, local, nil
	}
}
