package engine

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/namikmesic/claude-tether/internal/protocol"
)

// catchUp polls the transcript endpoint after resuming a session whose
// trailing user message is fresh enough that the agent may still be working
// unattended. Growth is surfaced once and polling stops; an exhausted budget
// is a normal outcome, not an error. Sending a new message pre-empts the
// poller via its context.
func (s *Session) catchUp(ctx context.Context) {
	s.mu.Lock()
	id := s.id
	baseline := s.trans.Len()
	s.mu.Unlock()

	deadline := s.now().Add(s.opts.PollBudget)

	for i := 0; ; i++ {
		interval := s.opts.PollShortInterval
		if i >= s.opts.PollShortCount {
			interval = s.opts.PollLongInterval
		}
		if s.now().Add(interval).After(deadline) {
			log.Debug().Str("session_id", id).Msg("catch-up budget exhausted, session idle")
			return
		}
		if err := s.sleep(ctx, interval); err != nil {
			return
		}

		msgs, err := s.client.FetchTranscript(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Poll failures are never surfaced; the next tick tries again.
			log.Warn().Err(err).Str("session_id", id).Msg("catch-up poll failed")
			continue
		}
		if ctx.Err() != nil {
			return
		}

		if len(msgs) > baseline {
			if !s.adoptGrowth(ctx, msgs) {
				return
			}
			log.Info().
				Str("session_id", id).
				Int("new_messages", len(msgs)-baseline).
				Msg("catch-up found work completed while disconnected")
			return
		}
	}
}

// adoptGrowth installs a longer server transcript unless polling was
// pre-empted after the fetch returned. pollCancel fires while SendMessage
// holds the session lock, so by the time the closure holds it the
// cancellation is visible and a transcript carrying an unsent user message
// is never replaced.
func (s *Session) adoptGrowth(ctx context.Context, msgs []protocol.Message) bool {
	adopted := false
	s.apply(func() {
		if ctx.Err() != nil {
			return
		}
		adopted = true
		s.acc.Adopt(msgs)
		for _, m := range msgs {
			s.tracker.Observe(m)
		}
	})
	return adopted
}
